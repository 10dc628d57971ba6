package dedup

import "strings"

// Score returns the similarity of two questions in [0, 1].
// Identical normalized forms score exactly 1.0; otherwise the score is the
// Jaccard index of the two whitespace-delimited token sets, and 0.0 when
// either set is empty.
func Score(q1, q2 string) float64 {
	return scoreNormalized(Normalize(q1), Normalize(q2))
}

func scoreNormalized(n1, n2 string) float64 {
	if n1 == n2 {
		return 1.0
	}

	set1 := tokenSet(n1)
	set2 := tokenSet(n2)
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	// Iterate the smaller set so the loop is symmetric in cost.
	small, large := set1, set2
	if len(small) > len(large) {
		small, large = large, small
	}

	intersection := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			intersection++
		}
	}
	union := len(set1) + len(set2) - intersection

	return float64(intersection) / float64(union)
}

func tokenSet(normalized string) map[string]struct{} {
	fields := strings.Fields(normalized)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
