package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxArticleChars bounds the article text sent for extraction.
const DefaultMaxArticleChars = 15000

// TrimArticle shortens markdown content to at most maxChars runes, cutting
// at a paragraph or heading boundary. A first paragraph that alone exceeds
// the limit is cut at a sentence boundary, then at a word boundary.
// A heading left dangling at the end of the result is removed.
func TrimArticle(content string, maxChars int) string {
	content = strings.TrimSpace(content)
	if maxChars <= 0 || utf8.RuneCountInString(content) <= maxChars {
		return content
	}

	var kept []string
	n := 0
	for _, para := range splitParagraphs(content) {
		size := utf8.RuneCountInString(para)
		if len(kept) > 0 {
			size += 2 // "\n\n"
		}
		if n+size > maxChars {
			if len(kept) == 0 {
				return cutText(para, maxChars)
			}
			break
		}
		kept = append(kept, para)
		n += size
	}

	for len(kept) > 1 && strings.HasPrefix(kept[len(kept)-1], "#") {
		kept = kept[:len(kept)-1]
	}

	return strings.Join(kept, "\n\n")
}

// ContentLength reports the length of content in runes after trimming
// surrounding whitespace.
func ContentLength(content string) int {
	return utf8.RuneCountInString(strings.TrimSpace(content))
}

func splitParagraphs(content string) []string {
	raw := strings.Split(content, "\n\n")
	paras := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// cutText cuts text to at most maxChars runes, preferring the last sentence
// end in the second half of the window, then the last space.
func cutText(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	window := runes[:maxChars]

	for i := len(window) - 1; i >= maxChars/2; i-- {
		r := window[i]
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			return string(window[:i+1])
		}
	}

	for i := len(window) - 1; i > 0; i-- {
		if unicode.IsSpace(window[i]) {
			return strings.TrimSpace(string(window[:i]))
		}
	}

	return string(window)
}
