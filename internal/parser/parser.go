// Package parser turns heterogeneous TXT book files into an ordered chapter
// list. Chapter boundaries come from a cascade of strategies: explicit header
// patterns, bare ordinal headers, decorative paragraph breaks, and finally
// size-based auto chunking so every non-empty file yields at least one
// chapter.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/anqingli/tingshu/internal/domain"
	"github.com/anqingli/tingshu/internal/infra/logger"
)

type BookParser struct {
	log *logger.Logger
}

func New(log *logger.Logger) *BookParser {
	return &BookParser{log: log}
}

// ParseFile reads path (best-effort UTF-8, invalid bytes discarded) and
// segments it into chapters. It fails with domain.ErrNoChapters only when no
// strategy yields a single non-empty chapter.
func (p *BookParser) ParseFile(path string) (*domain.BookMeta, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read book file: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	meta, err := p.Parse(stem, strings.ToValidUTF8(string(raw), ""))
	if err != nil {
		return nil, fmt.Errorf("%w in %s", err, path)
	}
	return meta, nil
}

// Parse segments already-decoded text. name is the fallback title when the
// file has no usable header line (typically the file stem).
func (p *BookParser) Parse(name, raw string) (*domain.BookMeta, error) {
	text := []rune(raw)
	title, author := extractHeader(name, raw)

	sections := p.locateSections(name, text)
	if len(sections) == 0 {
		return nil, domain.ErrNoChapters
	}

	chapters := make([]domain.Chapter, 0, len(sections))
	for _, sec := range sections {
		content := cleanText(string(text[sec.start:sec.end]))
		if content == "" {
			continue
		}
		chapters = append(chapters, domain.Chapter{
			Index:   len(chapters) + 1,
			Title:   p.sanitizeTitle(sec.title),
			Content: content,
		})
	}
	if len(chapters) == 0 {
		return nil, domain.ErrNoChapters
	}

	return &domain.BookMeta{Title: title, Author: author, Chapters: chapters}, nil
}

// locateSections runs the strategy cascade; the first strategy producing at
// least two sections wins, with auto chunking as the catch-all.
func (p *BookParser) locateSections(name string, text []rune) []section {
	if sections := sectionsFromMatches(text); sections != nil {
		return sections
	}
	if sections := sectionsFromSimpleHeaders(text); sections != nil {
		p.logf("Using simple header fallback for %s", name)
		return sections
	}
	if sections := sectionsFromParagraphBreaks(text); sections != nil {
		p.logf("Using paragraph break fallback for %s", name)
		return sections
	}
	sections := sectionsFromAutoChunks(text)
	if sections != nil {
		p.logf("Using auto chunk fallback for %s", name)
	}
	return sections
}

func (p *BookParser) sanitizeTitle(title string) string {
	trimmed := strings.TrimSpace(title)
	runes := []rune(trimmed)
	if len(runes) > maxTitleLength {
		if p.log != nil {
			p.log.Warn("Chapter title too long (%d chars), truncating to %d", len(runes), maxTitleLength)
		}
		return string(runes[:maxTitleLength])
	}
	return trimmed
}

func (p *BookParser) logf(format string, v ...any) {
	if p.log != nil {
		p.log.Info(format, v...)
	}
}

// extractHeader pulls the book title from the first non-blank line and the
// author from the second, but only when that line carries an authorship
// marker.
func extractHeader(fallbackTitle, text string) (title, author string) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
			if len(lines) == 2 {
				break
			}
		}
	}
	title = fallbackTitle
	if len(lines) > 0 {
		title = lines[0]
	}
	if len(lines) > 1 {
		authorLine := lines[1]
		if strings.Contains(authorLine, "著") || strings.Contains(authorLine, "作者") {
			author = authorLine
		}
	}
	return title, author
}

var spaceRunPattern = regexp.MustCompile(`[ \t]+`)

// cleanText normalizes section content: strips carriage returns and
// zero-width characters, collapses space runs, and drops blank lines.
func cleanText(text string) string {
	cleaned := strings.ReplaceAll(text, "\r", "")
	for _, ch := range zeroWidthChars {
		cleaned = strings.ReplaceAll(cleaned, string(ch), "")
	}
	cleaned = spaceRunPattern.ReplaceAllString(cleaned, " ")
	var paragraphs []string
	for _, para := range strings.Split(cleaned, "\n") {
		if trimmed := strings.TrimSpace(para); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return strings.Join(paragraphs, "\n")
}
