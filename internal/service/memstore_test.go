package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/raphaelgruber/qaharvest/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory Store for service tests.
type memStore struct {
	mu     sync.Mutex
	jobs   []models.Job
	pairs  []models.QAPair
	nextID int64

	// insertErr, when set, is returned once by InsertJob after the job is
	// stored, simulating a lost unique-constraint race.
	insertErr error
}

func newMemStore() *memStore { return &memStore{} }

func (s *memStore) FindJobByURL(_ context.Context, url string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.URL == url {
			return &j, nil
		}
	}
	return nil, nil
}

func (s *memStore) InsertJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		err := s.insertErr
		s.insertErr = nil
		winner := *job
		winner.ID = "winner"
		s.jobs = append(s.jobs, winner)
		return err
	}
	for _, j := range s.jobs {
		if j.URL == job.URL {
			return models.ErrJobExists
		}
	}
	s.jobs = append(s.jobs, *job)
	return nil
}

func (s *memStore) UpdateJob(_ context.Context, id string, u models.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			u.Apply(&s.jobs[i])
			return nil
		}
	}
	return models.ErrNotFound
}

func (s *memStore) GetJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == id {
			return &j, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListCompletedURLs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var urls []string
	for _, j := range s.jobs {
		if j.Status == models.JobStatusCompleted {
			urls = append(urls, j.URL)
		}
	}
	return urls, nil
}

func (s *memStore) ListJobsByStatus(_ context.Context, status models.JobStatus) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Job
	for _, j := range s.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *memStore) ListQuestions(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qs := make([]string, len(s.pairs))
	for i, p := range s.pairs {
		qs[i] = p.Question
	}
	return qs, nil
}

func (s *memStore) InsertQAPairs(_ context.Context, pairs []models.QAPair) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pairs {
		s.nextID++
		p.ID = s.nextID
		s.pairs = append(s.pairs, p)
	}
	return len(pairs), nil
}

func (s *memStore) ListQAPairsByJob(_ context.Context, jobID string) ([]models.QAPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.QAPair
	for _, p := range s.pairs {
		if p.JobID == jobID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) PaginateQA(_ context.Context, limit, offset int) (int, []models.QAPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := slices.Clone(s.pairs)
	slices.Reverse(all)
	if offset >= len(all) {
		return len(s.pairs), nil, nil
	}
	end := min(offset+limit, len(all))
	return len(s.pairs), all[offset:end], nil
}

func (s *memStore) Stats(_ context.Context) (models.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := models.Stats{TotalQA: len(s.pairs), TotalJobs: len(s.jobs)}
	for _, j := range s.jobs {
		switch j.Status {
		case models.JobStatusCompleted:
			st.Completed++
			st.UniqueURLs++
		case models.JobStatusFailed:
			st.Failed++
		}
	}
	return st, nil
}

func (s *memStore) DeleteTerminalJobsBefore(_ context.Context, cutoff time.Time, cascade bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []models.Job
	removed := make(map[string]bool)
	for _, j := range s.jobs {
		if j.Status.IsTerminal() && j.CreatedAt.Before(cutoff) {
			removed[j.ID] = true
			continue
		}
		kept = append(kept, j)
	}
	s.jobs = kept
	if cascade {
		s.pairs = slices.DeleteFunc(s.pairs, func(p models.QAPair) bool { return removed[p.JobID] })
	}
	return len(removed), nil
}

func (s *memStore) Close(context.Context) error { return nil }
