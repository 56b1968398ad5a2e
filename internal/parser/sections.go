package parser

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Chunk size policy for the paragraph-break and auto-chunk fallbacks.
// Sizes are in code points, matching how chapter lengths are budgeted for TTS.
const (
	maxTitleLength  = 512
	targetChunkSize = 2200
	minChunkSize    = 800
	maxChunkSize    = 3600
)

// section is a half-open range [start, end) of code points in the source text.
type section struct {
	title string
	start int
	end   int
}

// lineSpan is one physical line including its terminator, with the rune
// offset of its first character.
type lineSpan struct {
	start int
	text  string
}

func lineOffsets(text []rune) []lineSpan {
	var spans []lineSpan
	offset := 0
	for offset < len(text) {
		end := offset
		for end < len(text) && text[end] != '\n' {
			end++
		}
		if end < len(text) {
			end++ // keep the terminator with the line
		}
		spans = append(spans, lineSpan{start: offset, text: string(text[offset:end])})
		offset = end
	}
	return spans
}

// finalizeSections closes each open-ended section against the start of the
// next one (or EOF).
func finalizeSections(sections []section, textLen int) []section {
	for i := range sections {
		if i+1 < len(sections) {
			sections[i].end = sections[i+1].start
		} else {
			sections[i].end = textLen
		}
	}
	return sections
}

// sectionsFromMatches is the primary strategy: every line whose normalized
// form is a chapter title opens a section right after the header line.
func sectionsFromMatches(text []rune) []section {
	var sections []section
	for _, span := range lineOffsets(text) {
		title := normalizeHeaderLine(span.text)
		if title == "" {
			continue
		}
		sections = append(sections, section{title: title, start: span.start + runeLen(span.text)})
	}
	if len(sections) < 2 {
		return nil
	}
	return finalizeSections(sections, len(text))
}

// sectionsFromSimpleHeaders accepts short bare-ordinal lines, but only when
// they stand alone (blank line before or after). Lines carrying a preface
// keyword are accepted unconditionally.
func sectionsFromSimpleHeaders(text []rune) []section {
	spans := lineOffsets(text)
	var headers []section
	for i, span := range spans {
		stripped := strings.TrimSpace(span.text)
		if stripped == "" {
			continue
		}
		candidate := strings.TrimRight(stripped, trailingDecorSet)
		if runeLen(candidate) > 12 {
			continue
		}
		if simpleHeaderPattern.MatchString(candidate) {
			prevBlank := i > 0 && strings.TrimSpace(spans[i-1].text) == ""
			nextBlank := i+1 < len(spans) && strings.TrimSpace(spans[i+1].text) == ""
			if !prevBlank && !nextBlank {
				continue
			}
			headers = append(headers, section{title: stripped, start: span.start + runeLen(span.text)})
		} else if containsHeaderKeyword(stripped) {
			headers = append(headers, section{title: stripped, start: span.start + runeLen(span.text)})
		}
	}
	if len(headers) < 2 {
		return nil
	}
	return finalizeSections(headers, len(text))
}

// sectionsFromParagraphBreaks splits at runs of three or more blank lines and
// at decorative break-marker lines, dropping segments shorter than
// minChunkSize.
func sectionsFromParagraphBreaks(text []rune) []section {
	// Rune offsets of split points: split start -> position where the next
	// segment resumes.
	breaks := make(map[int]int)

	s := string(text)
	byteToRune := buildByteToRuneIndex(s)
	for _, loc := range multiBlankPattern.FindAllStringIndex(s, -1) {
		breaks[byteToRune[loc[0]]] = byteToRune[loc[1]]
	}

	for _, span := range lineOffsets(text) {
		stripped := strings.TrimSpace(span.text)
		if stripped == "" {
			continue
		}
		if containsBreakMarker(stripped) {
			breaks[span.start] = span.start + runeLen(span.text)
		}
	}

	if len(breaks) == 0 {
		return nil
	}

	starts := make([]int, 0, len(breaks))
	for k := range breaks {
		starts = append(starts, k)
	}
	sort.Ints(starts)

	var sections []section
	last := 0
	idx := 1
	for _, splitStart := range starts {
		if splitStart-last < minChunkSize {
			continue
		}
		sections = append(sections, section{
			title: fmt.Sprintf("段落分段 %03d", idx),
			start: last,
			end:   splitStart,
		})
		idx++
		last = breaks[splitStart]
	}
	if len(text)-last >= minChunkSize {
		sections = append(sections, section{
			title: fmt.Sprintf("段落分段 %03d", idx),
			start: last,
			end:   len(text),
		})
	}
	if len(sections) < 2 {
		return nil
	}
	return sections
}

// sectionsFromAutoChunks greedily cuts the text into chunks of roughly
// targetChunkSize, never exceeding maxChunkSize. Always yields at least one
// section for non-empty text.
func sectionsFromAutoChunks(text []rune) []section {
	var sections []section
	length := len(text)
	start := 0
	chunkIndex := 1
	for start < length {
		tentativeEnd := min(length, start+maxChunkSize)
		splitPoint := findSplitPoint(text, start, tentativeEnd)
		sections = append(sections, section{
			title: fmt.Sprintf("自动分段 %03d", chunkIndex),
			start: start,
			end:   splitPoint,
		})
		chunkIndex++
		start = splitPoint
		for start < length && unicode.IsSpace(text[start]) {
			start++
		}
	}
	return sections
}

// findSplitPoint prefers the rightmost blank-line break in
// [start+target, maxEnd), then the rightmost sentence terminator, then a hard
// cut at maxEnd.
func findSplitPoint(text []rune, start, maxEnd int) int {
	length := len(text)
	searchEnd := min(length, maxEnd)
	preferred := min(length, start+targetChunkSize)
	minPos := min(length, start+minChunkSize)
	if minPos >= searchEnd {
		return searchEnd
	}

	split := -1
	for i := searchEnd - 2; i >= preferred; i-- {
		if text[i] == '\n' && text[i+1] == '\n' {
			split = i
			break
		}
	}
	if split == -1 || split <= start {
		for _, delim := range []rune{'。', '！', '？', '；', '.', '!', '?'} {
			for i := searchEnd - 1; i >= preferred; i-- {
				if text[i] == delim {
					split = i + 1
					break
				}
			}
			if split != -1 {
				break
			}
		}
	}
	if split == -1 || split <= start {
		split = searchEnd
	}
	return split
}

// buildByteToRuneIndex maps byte offsets of s to rune offsets, including the
// terminating offset, so regexp byte positions can address the rune slice.
func buildByteToRuneIndex(s string) map[int]int {
	idx := make(map[int]int, len(s)/2)
	runeIdx := 0
	for byteIdx := range s {
		idx[byteIdx] = runeIdx
		runeIdx++
	}
	idx[len(s)] = runeIdx
	return idx
}
