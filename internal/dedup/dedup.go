package dedup

import (
	"context"
	"fmt"
	"log/slog"
)

// Threshold presets. 0.7 is the default.
const (
	ThresholdLoose    = 0.5
	ThresholdBalanced = 0.7
	ThresholdStrict   = 0.9
)

// Pass identifies which stage of Filter dropped a candidate.
type Pass string

const (
	PassExact  Pass = "exact"
	PassFuzzy  Pass = "fuzzy"
	PassOracle Pass = "oracle"
)

// Config controls the dedup passes.
type Config struct {
	// Threshold is the minimum score at which two questions are the same.
	// Must be in (0, 1].
	Threshold float64

	// OracleMaxBatch skips the oracle pass for batches larger than this.
	OracleMaxBatch int
	// OracleMinBatch skips the oracle pass unless more than this many
	// candidates survive the exact and fuzzy passes.
	OracleMinBatch int
	// OracleWindow caps how many survivors are sent to the oracle.
	OracleWindow int
}

// DefaultConfig returns the balanced threshold and the oracle limits.
func DefaultConfig() Config {
	return Config{
		Threshold:      ThresholdBalanced,
		OracleMaxBatch: 50,
		OracleMinBatch: 5,
		OracleWindow:   30,
	}
}

// Validate checks the threshold range. NaN is rejected.
func (c Config) Validate() error {
	if !(c.Threshold > 0 && c.Threshold <= 1) {
		return fmt.Errorf("dedup threshold must be in (0, 1], got %v", c.Threshold)
	}
	return nil
}

// Match is the outcome of checking one candidate against a corpus.
type Match struct {
	Duplicate bool
	// Question is the corpus entry that matched, empty when not a duplicate.
	Question string
	Score    float64
}

// IsDuplicate scans corpus in order and reports the first entry whose score
// against candidate meets threshold. The first match wins even when a later
// entry would score higher. An empty corpus never yields a duplicate.
func IsDuplicate(candidate string, corpus []string, threshold float64) Match {
	norm := Normalize(candidate)
	for _, existing := range corpus {
		if score := scoreNormalized(norm, Normalize(existing)); score >= threshold {
			return Match{Duplicate: true, Question: existing, Score: score}
		}
	}
	return Match{}
}

// Decision records why a candidate was dropped.
type Decision struct {
	// Index is the candidate position in the Filter input.
	Index    int
	Question string
	Pass     Pass
	Matched  string
	Score    float64
}

// Result is the outcome of Filter. Kept holds input indices in input order.
type Result struct {
	Kept    []int
	Dropped []Decision
}

// Deduplicator runs the exact, fuzzy and optional oracle passes over a batch
// of candidate questions. It never mutates its inputs; callers persist Kept.
type Deduplicator struct {
	cfg    Config
	oracle Oracle
	logger *slog.Logger
}

// New creates a Deduplicator. oracle may be nil to disable the oracle pass.
func New(cfg Config, oracle Oracle, logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{cfg: cfg, oracle: oracle, logger: logger}
}

// Config returns the configuration in use.
func (d *Deduplicator) Config() Config {
	return d.cfg
}

// Check runs IsDuplicate with the configured threshold.
func (d *Deduplicator) Check(candidate string, corpus []string) Match {
	return IsDuplicate(candidate, corpus, d.cfg.Threshold)
}

// entry caches the normalized form of a corpus question.
type entry struct {
	text string
	norm string
}

// Filter decides keep/drop for each candidate against the existing corpus
// (persisted questions, in insertion order) and against earlier candidates
// of the same batch.
//
// Oracle failures are logged and the fuzzy-pass result is returned as is.
func (d *Deduplicator) Filter(ctx context.Context, candidates []string, existing []string) Result {
	var res Result

	// Exact pass: drop repeats of any prior normalized form.
	seen := make(map[string]string, len(existing)+len(candidates))
	corpus := make([]entry, 0, len(existing)+len(candidates))
	for _, q := range existing {
		n := Normalize(q)
		if _, ok := seen[n]; !ok {
			seen[n] = q
		}
		corpus = append(corpus, entry{text: q, norm: n})
	}

	survivors := make([]int, 0, len(candidates))
	norms := make([]string, len(candidates))
	for i, q := range candidates {
		n := Normalize(q)
		norms[i] = n
		if prior, ok := seen[n]; ok {
			res.Dropped = append(res.Dropped, Decision{
				Index: i, Question: q, Pass: PassExact, Matched: prior, Score: 1.0,
			})
			continue
		}
		seen[n] = q
		survivors = append(survivors, i)
	}

	// Fuzzy pass: existing corpus first, then kept in-batch candidates.
	for _, i := range survivors {
		dropped := false
		for _, e := range corpus {
			if score := scoreNormalized(norms[i], e.norm); score >= d.cfg.Threshold {
				res.Dropped = append(res.Dropped, Decision{
					Index: i, Question: candidates[i], Pass: PassFuzzy, Matched: e.text, Score: score,
				})
				dropped = true
				break
			}
		}
		if dropped {
			continue
		}
		res.Kept = append(res.Kept, i)
		corpus = append(corpus, entry{text: candidates[i], norm: norms[i]})
	}

	if d.oracle == nil || !d.oracleEligible(len(candidates), len(res.Kept)) {
		return res
	}

	return d.applyOracle(ctx, candidates, res)
}

func (d *Deduplicator) oracleEligible(batch, survivors int) bool {
	if d.cfg.OracleMaxBatch > 0 && batch > d.cfg.OracleMaxBatch {
		d.logger.Debug("skipping oracle pass, batch too large", "batch", batch, "max", d.cfg.OracleMaxBatch)
		return false
	}
	return survivors > d.cfg.OracleMinBatch
}

// applyOracle asks the oracle for same-meaning pairs among the first
// OracleWindow survivors. For each reported pair the later-listed question
// is dropped and the first is kept.
func (d *Deduplicator) applyOracle(ctx context.Context, candidates []string, res Result) Result {
	window := res.Kept
	if d.cfg.OracleWindow > 0 && len(window) > d.cfg.OracleWindow {
		window = window[:d.cfg.OracleWindow]
	}

	questions := make([]string, len(window))
	for i, idx := range window {
		questions[i] = candidates[idx]
	}

	pairs, err := d.oracle.SimilarPairs(ctx, questions)
	if err != nil {
		d.logger.Warn("oracle pass failed, keeping fuzzy results", "questions", len(questions), "error", err)
		return res
	}

	drop := make(map[int]Decision)
	for _, p := range pairs {
		first, second := p[0], p[1]
		if first < 0 || second < 0 || first >= len(window) || second >= len(window) || first == second {
			continue
		}
		idx := window[second]
		if _, ok := drop[idx]; ok {
			continue
		}
		drop[idx] = Decision{
			Index:    idx,
			Question: candidates[idx],
			Pass:     PassOracle,
			Matched:  candidates[window[first]],
			Score:    Score(candidates[idx], candidates[window[first]]),
		}
	}
	if len(drop) == 0 {
		return res
	}

	kept := make([]int, 0, len(res.Kept)-len(drop))
	for _, idx := range res.Kept {
		if dec, ok := drop[idx]; ok {
			res.Dropped = append(res.Dropped, dec)
			continue
		}
		kept = append(kept, idx)
	}
	res.Kept = kept

	d.logger.Debug("oracle pass dropped questions", "count", len(drop))
	return res
}
