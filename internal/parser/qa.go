// Package parser turns language-model output into question/answer records
// and prepares article text for extraction.
package parser

import (
	"strings"

	"github.com/raphaelgruber/qaharvest/internal/models"
)

// Policy controls how ParseQA reads model output.
type Policy struct {
	// RequireAnswer drops records that have no answer text. When false,
	// such records get models.AnswerNotProvided.
	RequireAnswer bool

	// NoResultsMarker, when present anywhere in the text, yields no records.
	NoResultsMarker string

	QuestionPrefix string
	AnswerPrefix   string
}

// DefaultNoResultsMarker is the sentinel the extraction prompt asks for when
// an article contains no questions.
const DefaultNoResultsMarker = "NO_IOS_QA"

var (
	// AcceptOpenQuestions keeps questions without answers.
	AcceptOpenQuestions = Policy{
		NoResultsMarker: DefaultNoResultsMarker,
		QuestionPrefix:  "Q:",
		AnswerPrefix:    "A:",
	}

	// SkipUnanswered drops questions without answers.
	SkipUnanswered = Policy{
		RequireAnswer:   true,
		NoResultsMarker: DefaultNoResultsMarker,
		QuestionPrefix:  "Q:",
		AnswerPrefix:    "A:",
	}
)

func (p Policy) withDefaults() Policy {
	if p.QuestionPrefix == "" {
		p.QuestionPrefix = "Q:"
	}
	if p.AnswerPrefix == "" {
		p.AnswerPrefix = "A:"
	}
	return p
}

// ParseQA reads line-oriented "Q:"/"A:" output. A question line opens a
// record and closes the previous one. An answer line sets the open record's
// answer, or extends it if one is already set. Other non-empty lines extend
// the answer once it has started. Text before the first question is ignored.
//
// ParseQA never fails: malformed input yields fewer or no records.
// Only Question and Answer are filled in on the returned pairs.
func ParseQA(raw string, policy Policy) []models.QAPair {
	policy = policy.withDefaults()

	if policy.NoResultsMarker != "" && strings.Contains(raw, policy.NoResultsMarker) {
		return nil
	}

	var (
		pairs    []models.QAPair
		question string
		answer   string
		open     bool
	)

	flush := func() {
		if !open {
			return
		}
		open = false
		if question == "" {
			return
		}
		// Models sometimes echo the sentinel themselves.
		if answer == "" || answer == models.AnswerNotProvided {
			if policy.RequireAnswer {
				return
			}
			answer = models.AnswerNotProvided
		}
		pairs = append(pairs, models.QAPair{Question: question, Answer: answer})
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, policy.QuestionPrefix):
			flush()
			question = strings.TrimSpace(strings.TrimPrefix(line, policy.QuestionPrefix))
			answer = ""
			open = true
		case strings.HasPrefix(line, policy.AnswerPrefix):
			if !open {
				continue
			}
			answer = appendText(answer, strings.TrimSpace(strings.TrimPrefix(line, policy.AnswerPrefix)))
		default:
			if open && answer != "" {
				answer = appendText(answer, line)
			}
		}
	}
	flush()

	return pairs
}

func appendText(existing, more string) string {
	switch {
	case more == "":
		return existing
	case existing == "":
		return more
	default:
		return existing + " " + more
	}
}
