package parser

import (
	"regexp"
	"strings"
	"unicode"
)

// Character classes and keyword sets for header detection. These are tuned to
// the Chinese web-novel corpus the library ingests; ASCII chapter headers are
// handled by the CHAPTER pattern below.
const (
	chineseNumerals  = "〇零一二三四五六七八九十百千万"
	romanNumerals    = "IVXLCDM"
	chapterKeywords  = "章节回卷篇部节"
	zeroWidthChars   = "\uFEFF\u200B\u200C\u200D\u202A\u202B\u202C\u202D\u202E"
	trailingDecorSet = "：:、．.()（）-—*~　"
	numericStripSet  = "()（）．.、，：:—-"
)

var headerKeywords = []string{"序", "前言", "自序", "引言", "后记", "跋", "序言", "代序", "代后记"}

var paragraphBreakMarkers = []string{"——", "***", "＊＊＊", "~~~", "=== ", "---"}

var chapterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*(第[\s]*[` + chineseNumerals + `0-9]+[\s]*[` + chapterKeywords + `](?:\s+[` + chineseNumerals + `0-9]+)?)\s*[：:,，、\s．.\-—]*([^\n]*)$`),
	regexp.MustCompile(`^\s*([` + chapterKeywords + `][\s]*[` + chineseNumerals + `0-9]+)\s*[：:,，、\s．.\-—]*([^\n]*)$`),
	regexp.MustCompile(`^\s*((?:CHAPTER|Chapter|chapter)\s+[0-9IVXLCDM]+)\s*[：:,，、\s．.\-—]*([^\n]*)$`),
	regexp.MustCompile(`^\s*([（(][\s]*[` + chineseNumerals + romanNumerals + `]+[\s]*[)）])\s*[：:,，、\s．.\-—]*([^\n]*)$`),
}

var simpleHeaderPattern = regexp.MustCompile(`(?i)^(?:第)?[` + chineseNumerals + `0-9` + romanNumerals + `]+(?:[` + chapterKeywords + `])?$`)

var romanNumeralPattern = regexp.MustCompile(`(?i)^[` + romanNumerals + `]+$`)

// RE2's \s is ASCII-only, so the ideographic space U+3000 common in Chinese
// text is listed explicitly.
var multiBlankPattern = regexp.MustCompile(`\n[\s\x{3000}]*\n[\s\x{3000}]*\n+`)

// looksLikeNumericToken reports whether a token, stripped of decorative
// punctuation, is a pure Chinese / Arabic / Roman numeral.
func looksLikeNumericToken(token string) bool {
	stripped := strings.Trim(token, numericStripSet)
	if stripped == "" {
		return false
	}
	allChinese := true
	for _, r := range stripped {
		if !strings.ContainsRune(chineseNumerals, r) {
			allChinese = false
			break
		}
	}
	if allChinese {
		return true
	}
	allDigits := true
	for _, r := range stripped {
		if r < '0' || r > '9' {
			allDigits = false
			break
		}
	}
	if allDigits {
		return true
	}
	return romanNumeralPattern.MatchString(stripped)
}

// normalizeHeaderLine decides whether a line is a chapter header and returns
// the sanitized title, or "" when the line is body text.
func normalizeHeaderLine(line string) string {
	stripped := strings.TrimSpace(line)
	if stripped == "" || runeLen(stripped) > 40 {
		return ""
	}
	candidate := strings.TrimRight(stripped, trailingDecorSet)
	if candidate == "" {
		return ""
	}
	noSpaces := strings.ReplaceAll(candidate, " ", "")

	for _, keyword := range headerKeywords {
		if strings.HasPrefix(candidate, keyword) {
			return candidate
		}
	}

	if strings.HasPrefix(strings.ToLower(candidate), "chapter") {
		return titleCase(candidate)
	}

	tokens := strings.Fields(candidate)

	if strings.HasPrefix(candidate, "第") && strings.ContainsAny(candidate, chapterKeywords) {
		if len(tokens) > 1 && looksLikeNumericToken(tokens[len(tokens)-1]) {
			return tokens[0] + " · " + tokens[len(tokens)-1]
		}
		if len(tokens) > 0 {
			return tokens[0]
		}
		return candidate
	}

	if len(tokens) == 1 && looksLikeNumericToken(tokens[0]) {
		return tokens[0]
	}

	if len(tokens) == 2 && strings.ContainsAny(tokens[0], chapterKeywords) && looksLikeNumericToken(tokens[1]) {
		return tokens[0] + " · " + tokens[1]
	}

	if looksLikeNumericToken(noSpaces) && runeLen(noSpaces) <= 6 {
		return noSpaces
	}

	for _, pattern := range chapterPatterns {
		match := pattern.FindStringSubmatch(candidate)
		if match == nil {
			continue
		}
		var groups []string
		for _, g := range match[1:] {
			if g != "" {
				groups = append(groups, g)
			}
		}
		return strings.TrimSpace(strings.Join(groups, " "))
	}

	return ""
}

func containsHeaderKeyword(s string) bool {
	for _, keyword := range headerKeywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

func containsBreakMarker(s string) bool {
	for _, marker := range paragraphBreakMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// titleCase uppercases the first letter of every word, lowercasing the rest.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	startOfWord := true
	for _, r := range s {
		if unicode.IsLetter(r) {
			if startOfWord {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(unicode.ToLower(r))
			}
			startOfWord = false
		} else {
			b.WriteRune(r)
			startOfWord = true
		}
	}
	return b.String()
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
