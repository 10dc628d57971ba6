package dedup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePairs(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want [][2]int
	}{
		{
			name: "two pairs with commentary",
			text: "Similar: 1, 5 (both ask about closures)\nSimilar: 3, 7 (both ask about ARC)",
			n:    10,
			want: [][2]int{{0, 4}, {2, 6}},
		},
		{"sentinel", "NO_DUPLICATES", 10, nil},
		{"sentinel wins over pairs", "Similar: 1, 2\nNO_DUPLICATES", 10, nil},
		{"missing marker", "1, 2 look alike", 10, nil},
		{"single number", "Similar: 2", 10, nil},
		{"out of range", "Similar: 1, 4", 3, nil},
		{"zero index", "Similar: 0, 1", 3, nil},
		{"self pair", "Similar: 2, 2", 3, nil},
		{"garbage", "I cannot help with that.", 3, nil},
		{"marker mid-line", "- Similar: 2 and 3", 3, [][2]int{{1, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePairs(tt.text, tt.n))
		})
	}
}

func TestOraclePrompt(t *testing.T) {
	p := OraclePrompt("iOS interview", []string{"What is ARC?", "Explain GCD"})

	assert.Contains(t, p, "iOS interview questions")
	assert.Contains(t, p, "1. What is ARC?\n2. Explain GCD\n")
	assert.Contains(t, p, NoDuplicates)
	assert.True(t, strings.HasSuffix(p, "Similar pairs:"))
}
