package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/qaharvest/internal/dedup"
	"github.com/raphaelgruber/qaharvest/internal/metrics"
	"github.com/raphaelgruber/qaharvest/internal/models"
)

// Page size bounds for List.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// QAService persists extracted Q&A pairs after deduplicating them against
// the stored corpus.
type QAService struct {
	store   Store
	dedup   *dedup.Deduplicator
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time

	// corpus serializes read-compare-insert so two batches cannot both
	// keep the same new question.
	corpus sync.Mutex
}

// NewQAService creates a QAService.
func NewQAService(store Store, d *dedup.Deduplicator, logger *slog.Logger, m *metrics.Collector) *QAService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QAService{store: store, dedup: d, logger: logger, metrics: m, now: time.Now}
}

// Deduplicator returns the engine used by Save.
func (s *QAService) Deduplicator() *dedup.Deduplicator {
	return s.dedup
}

// Save deduplicates pairs against every persisted question and against each
// other, stamps the survivors with jobID, url and the current time, and
// inserts them. Returns the number inserted.
func (s *QAService) Save(ctx context.Context, jobID, url string, pairs []models.QAPair) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}

	s.corpus.Lock()
	defer s.corpus.Unlock()

	start := time.Now()
	existing, err := s.store.ListQuestions(ctx)
	if err != nil {
		s.metrics.RecordFailure(metrics.OpDedup, time.Since(start))
		return 0, fmt.Errorf("load question corpus: %w", err)
	}

	candidates := make([]string, len(pairs))
	for i, p := range pairs {
		candidates[i] = p.Question
	}

	res := s.dedup.Filter(ctx, candidates, existing)
	s.metrics.RecordTiming(metrics.OpDedup, time.Since(start))

	for _, d := range res.Dropped {
		s.logger.Debug("duplicate question dropped",
			"job_id", jobID,
			"pass", string(d.Pass),
			"question", d.Question,
			"matched", d.Matched,
			"score", d.Score,
		)
	}

	if len(res.Kept) == 0 {
		s.logger.Info("all questions were duplicates", "job_id", jobID, "candidates", len(pairs))
		return 0, nil
	}

	ts := s.now().UTC().Truncate(time.Microsecond)
	keep := make([]models.QAPair, 0, len(res.Kept))
	for _, idx := range res.Kept {
		p := pairs[idx]
		p.JobID = jobID
		p.SourceURL = url
		p.Timestamp = ts
		keep = append(keep, p)
	}

	n, err := s.store.InsertQAPairs(ctx, keep)
	if err != nil {
		return 0, fmt.Errorf("insert qa pairs: %w", err)
	}

	s.logger.Info("qa pairs saved",
		"job_id", jobID,
		"candidates", len(pairs),
		"inserted", n,
		"dropped", len(res.Dropped),
	)
	return n, nil
}

// Results returns the pairs extracted by one job. Never nil.
func (s *QAService) Results(ctx context.Context, jobID string) ([]models.QAPair, error) {
	pairs, err := s.store.ListQAPairsByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job results: %w", err)
	}
	if pairs == nil {
		pairs = []models.QAPair{}
	}
	return pairs, nil
}

// ClampPage normalizes paging input: limit defaults to DefaultPageLimit
// when <= 0 and is capped at MaxPageLimit; offset is at least 0.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// List returns one page of all stored pairs, newest first.
func (s *QAService) List(ctx context.Context, limit, offset int) (*models.QAPage, error) {
	limit, offset = ClampPage(limit, offset)

	total, items, err := s.store.PaginateQA(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("paginate qa: %w", err)
	}
	if items == nil {
		items = []models.QAPair{}
	}
	return &models.QAPage{Total: total, Limit: limit, Offset: offset, Items: items}, nil
}

// Stats returns store-wide counts with the given queue length filled in.
func (s *QAService) Stats(ctx context.Context, queueSize int) (models.Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return models.Stats{}, fmt.Errorf("stats: %w", err)
	}
	st.SuccessRate = models.SuccessRate(st.Completed, st.TotalJobs)
	st.QueueSize = queueSize
	return st, nil
}
