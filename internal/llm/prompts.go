package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/qaharvest/internal/dedup"
	"github.com/raphaelgruber/qaharvest/internal/metrics"
	"github.com/raphaelgruber/qaharvest/internal/parser"
)

// Generator is anything that completes a prompt. *Model implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ExtractionPrompt asks for Q:/A: pairs about topic found in article, or
// noResults when there are none.
func ExtractionPrompt(topic, article, noResults string) string {
	if noResults == "" {
		noResults = parser.DefaultNoResultsMarker
	}

	return fmt.Sprintf(`Extract %[1]s interview questions and answers from this article. Be thorough in finding answers.

ANSWER EXTRACTION RULES:
1. Look for EXPLICIT answers (direct Q&A format)
2. Look for IMPLICIT answers (discussions, explanations, context about the topic)
3. If a question is asked, search the ENTIRE article for related information
4. Summarize relevant paragraphs as answers
5. Extract code examples or technical explanations as answers
6. If discussing a concept, that discussion IS the answer
7. Only use "Answer not provided" if there is truly NO relevant information

FORMAT:
Q: [question]
A: [answer - can be a summary, explanation, or discussion from the article]

CONTENT TYPES TO EXTRACT:
- Interview questions with answers
- Technical questions with explanations
- Conceptual questions with discussions
- Architecture/design questions with reasoning
- Best practices with explanations
- Common mistakes with solutions

QUALITY RULES:
- ONLY %[1]s content
- Answers should be 1-3 sentences (concise but complete)
- Include code snippets if relevant
- If NO %[1]s questions are found at all, return "%[2]s"

Article:
%[3]s

Q&A Pairs:`, topic, noResults, article)
}

// PairOracle asks a language model which questions in a batch share a
// meaning. It implements dedup.Oracle.
type PairOracle struct {
	gen     Generator
	topic   string
	metrics *metrics.Collector
}

// NewPairOracle creates an oracle backed by gen.
func NewPairOracle(gen Generator, topic string, m *metrics.Collector) *PairOracle {
	return &PairOracle{gen: gen, topic: topic, metrics: m}
}

var _ dedup.Oracle = (*PairOracle)(nil)

// SimilarPairs returns 0-based index pairs of same-meaning questions.
func (o *PairOracle) SimilarPairs(ctx context.Context, questions []string) ([][2]int, error) {
	start := time.Now()
	topic := "interview"
	if o.topic != "" {
		topic = o.topic + " interview"
	}
	text, err := o.gen.Generate(ctx, dedup.OraclePrompt(topic, questions))
	o.metrics.Observe(metrics.OpOracle, start, err)
	if err != nil {
		return nil, fmt.Errorf("similar pairs: %w", err)
	}
	return dedup.ParsePairs(text, len(questions)), nil
}
