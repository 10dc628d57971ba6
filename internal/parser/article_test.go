package parser

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTrimArticle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		max     int
		want    string
	}{
		{"short content unchanged", "  hello world  ", 100, "hello world"},
		{"no limit", "aaaa\n\nbbbb", 0, "aaaa\n\nbbbb"},
		{"paragraph boundary", "aaaa\n\nbbbb\n\ncccc", 10, "aaaa\n\nbbbb"},
		{"dangling heading removed", "para one\n\n# Heading\n\nlong paragraph text", 25, "para one"},
		{
			"sentence boundary",
			"First sentence here. Second sentence is longer than the rest.",
			30,
			"First sentence here.",
		},
		{"word boundary", "abcdefghij klmnopqrst uvwxyz", 15, "abcdefghij"},
		{"multibyte runes", "ééééé ééééé", 7, "ééééé"},
		{"hard cut", "abcdefghijklmnopqrstuvwxyz", 5, "abcde"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrimArticle(tt.content, tt.max)
			if got != tt.want {
				t.Errorf("TrimArticle() = %q, want %q", got, tt.want)
			}
			if tt.max > 0 && utf8.RuneCountInString(got) > tt.max {
				t.Errorf("TrimArticle() returned %d runes, limit %d", utf8.RuneCountInString(got), tt.max)
			}
		})
	}
}

func TestTrimArticle_LongDocument(t *testing.T) {
	para := strings.Repeat("Swift concurrency uses actors. ", 20)
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("## Section\n\n")
		b.WriteString(para)
		b.WriteString("\n\n")
	}

	got := TrimArticle(b.String(), DefaultMaxArticleChars)
	if n := utf8.RuneCountInString(got); n > DefaultMaxArticleChars {
		t.Fatalf("trimmed article has %d runes, limit %d", n, DefaultMaxArticleChars)
	}
	if strings.HasSuffix(got, "## Section") {
		t.Errorf("trimmed article ends with a dangling heading")
	}
}

func TestContentLength(t *testing.T) {
	if got := ContentLength("  héllo \n"); got != 5 {
		t.Errorf("ContentLength() = %d, want 5", got)
	}
}
