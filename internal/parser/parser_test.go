package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anqingli/tingshu/internal/domain"
	"github.com/anqingli/tingshu/internal/infra/logger"
)

func testParser(t *testing.T) *BookParser {
	t.Helper()
	log, err := logger.New("", logger.LevelError)
	require.NoError(t, err)
	return New(log)
}

func TestNormalizeHeaderLine(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"第一章 开端", "第一章"},
		{"第十二章", "第十二章"},
		{"  第三章：重逢  ", "第三章：重逢"},
		{"序言", "序言"},
		{"前言", "前言"},
		{"后记", "后记"},
		{"一二三", "一二三"},
		{"chapter 5", "Chapter 5"},
		{"CHAPTER IV", "Chapter Iv"},
		{"这是一行普通的正文，不是章节标题。", ""},
		{"", ""},
		{strings.Repeat("长", 41), ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeHeaderLine(tc.line), "line %q", tc.line)
	}
}

func TestParseChapterHeaders(t *testing.T) {
	text := `测试小说
张三 著

第一章 开端

开端的正文。

第二章 转折

转折的正文。

第三章 结局

结局的正文。
`
	meta, err := testParser(t).Parse("fallback", text)
	require.NoError(t, err)

	assert.Equal(t, "测试小说", meta.Title)
	assert.Equal(t, "张三 著", meta.Author)

	require.Len(t, meta.Chapters, 3)
	for i, ch := range meta.Chapters {
		assert.Equal(t, i+1, ch.Index)
	}
	assert.Equal(t, "第一章", meta.Chapters[0].Title)
	assert.Contains(t, meta.Chapters[0].Content, "开端的正文")
	assert.Contains(t, meta.Chapters[2].Content, "结局的正文")
}

func TestParseSimpleHeaderFallback(t *testing.T) {
	// "第1" has no chapter keyword, so the primary pattern strategy skips it;
	// the bare-ordinal fallback accepts it when it stands alone.
	text := "开头。\n\n第1\n\n甲部分的内容。\n\n第2\n\n乙部分的内容。\n"

	meta, err := testParser(t).Parse("book", text)
	require.NoError(t, err)

	require.Len(t, meta.Chapters, 2)
	assert.Equal(t, "第1", meta.Chapters[0].Title)
	assert.Equal(t, "第2", meta.Chapters[1].Title)
	assert.Contains(t, meta.Chapters[0].Content, "甲部分的内容")
}

func TestParseParagraphBreakFallback(t *testing.T) {
	seg1 := strings.Repeat("甲", 900)
	seg2 := strings.Repeat("乙", 900)
	text := seg1 + "\n\n\n" + seg2

	meta, err := testParser(t).Parse("book", text)
	require.NoError(t, err)

	require.Len(t, meta.Chapters, 2)
	assert.Equal(t, "段落分段 001", meta.Chapters[0].Title)
	assert.Equal(t, "段落分段 002", meta.Chapters[1].Title)
	assert.Equal(t, seg1, meta.Chapters[0].Content)
	assert.Equal(t, seg2, meta.Chapters[1].Content)
}

func TestParseBreakMarkerFallback(t *testing.T) {
	seg1 := strings.Repeat("甲", 900)
	seg2 := strings.Repeat("乙", 900)
	text := seg1 + "\n***\n" + seg2

	meta, err := testParser(t).Parse("book", text)
	require.NoError(t, err)

	require.Len(t, meta.Chapters, 2)
	assert.Equal(t, "段落分段 001", meta.Chapters[0].Title)
	assert.Equal(t, "段落分段 002", meta.Chapters[1].Title)
	assert.Equal(t, seg1, meta.Chapters[0].Content)
	assert.Equal(t, seg2, meta.Chapters[1].Content)
}

func TestParseParagraphBreakFullWidthSpace(t *testing.T) {
	seg1 := strings.Repeat("甲", 900)
	seg2 := strings.Repeat("乙", 900)
	// a blank line holding only an ideographic space still counts as blank
	text := seg1 + "\n　\n\n" + seg2

	meta, err := testParser(t).Parse("book", text)
	require.NoError(t, err)

	require.Len(t, meta.Chapters, 2)
	assert.Equal(t, seg1, meta.Chapters[0].Content)
	assert.Equal(t, seg2, meta.Chapters[1].Content)
}

func TestParseAutoChunkFallback(t *testing.T) {
	text := strings.Repeat("天", 5000)

	meta, err := testParser(t).Parse("book", text)
	require.NoError(t, err)

	require.Len(t, meta.Chapters, 2)
	assert.Equal(t, "自动分段 001", meta.Chapters[0].Title)
	assert.Equal(t, "自动分段 002", meta.Chapters[1].Title)
	assert.Equal(t, 3600, len([]rune(meta.Chapters[0].Content)))
	assert.Equal(t, 1400, len([]rune(meta.Chapters[1].Content)))
}

func TestParseAutoChunkSplitsAtSentence(t *testing.T) {
	sentence := strings.Repeat("话", 99) + "。"
	text := strings.Repeat(sentence, 40) // 4000 runes

	meta, err := testParser(t).Parse("book", text)
	require.NoError(t, err)

	require.Len(t, meta.Chapters, 2)
	first := []rune(meta.Chapters[0].Content)
	assert.GreaterOrEqual(t, len(first), 2200)
	assert.LessOrEqual(t, len(first), 3600)
	assert.Equal(t, '。', first[len(first)-1])
}

func TestParseShortTextSingleChunk(t *testing.T) {
	meta, err := testParser(t).Parse("book", "第一章 开端\n只有一个章节标题时退回自动分段。")
	require.NoError(t, err)

	require.Len(t, meta.Chapters, 1)
	assert.Equal(t, "自动分段 001", meta.Chapters[0].Title)
}

func TestParseEmptyText(t *testing.T) {
	_, err := testParser(t).Parse("book", "")
	assert.ErrorIs(t, err, domain.ErrNoChapters)

	_, err = testParser(t).Parse("book", "   \n\n  \n")
	assert.ErrorIs(t, err, domain.ErrNoChapters)
}

func TestExtractHeader(t *testing.T) {
	title, author := extractHeader("fallback", "书名\n作者：李四\n正文")
	assert.Equal(t, "书名", title)
	assert.Equal(t, "作者：李四", author)

	// second line without an authorship marker is not an author
	title, author = extractHeader("fallback", "书名\n第一章\n正文")
	assert.Equal(t, "书名", title)
	assert.Empty(t, author)

	title, author = extractHeader("fallback", "\n\n  \n")
	assert.Equal(t, "fallback", title)
	assert.Empty(t, author)
}

func TestSanitizeTitle(t *testing.T) {
	p := testParser(t)

	assert.Equal(t, "短标题", p.sanitizeTitle("  短标题  "))

	long := strings.Repeat("题", 600)
	got := p.sanitizeTitle(long)
	assert.Equal(t, 512, len([]rune(got)))
}

func TestCleanText(t *testing.T) {
	in := "\uFEFF第一行\r\n\n  缩进\t的  行  \n\n\u200B\n末行"
	want := "第一行\n缩进 的 行\n末行"
	assert.Equal(t, want, cleanText(in))
}
