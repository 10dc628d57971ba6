package dedup

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Oracle reports pairs of questions that mean the same thing.
// Indices in the returned pairs are 0-based positions in questions.
type Oracle interface {
	SimilarPairs(ctx context.Context, questions []string) ([][2]int, error)
}

// Markers used in the oracle prompt and response.
const (
	PairMarker   = "Similar:"
	NoDuplicates = "NO_DUPLICATES"
)

var digitsRe = regexp.MustCompile(`\d+`)

// OraclePrompt renders the enumerated question list the oracle answers.
// Questions are numbered from 1.
func OraclePrompt(topic string, questions []string) string {
	if topic == "" {
		topic = "interview"
	}

	var list strings.Builder
	for i, q := range questions {
		fmt.Fprintf(&list, "%d. %s\n", i+1, q)
	}

	return fmt.Sprintf(`Analyze these %s questions and identify which ones are DUPLICATES or VERY SIMILAR in meaning.

Questions:
%s
Return pairs of similar question numbers in format:
%s 1, 5 (both ask about the same concept)
%s 3, 7 (both ask about the same concept)

Only return pairs that ask essentially the same thing. If no duplicates, return "%s".

Similar pairs:`, topic, list.String(), PairMarker, PairMarker, NoDuplicates)
}

// ParsePairs extracts 0-based index pairs from an oracle response.
// Lines without the marker, or with fewer than two numbers, are ignored.
// A response containing the no-duplicates sentinel yields no pairs.
func ParsePairs(text string, n int) [][2]int {
	if strings.Contains(text, NoDuplicates) {
		return nil
	}

	var pairs [][2]int
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, PairMarker) {
			continue
		}
		nums := digitsRe.FindAllString(line, 2)
		if len(nums) < 2 {
			continue
		}
		a, errA := strconv.Atoi(nums[0])
		b, errB := strconv.Atoi(nums[1])
		if errA != nil || errB != nil {
			continue
		}
		a, b = a-1, b-1
		if a < 0 || b < 0 || a == b || (n > 0 && (a >= n || b >= n)) {
			continue
		}
		pairs = append(pairs, [2]int{a, b})
	}
	return pairs
}
