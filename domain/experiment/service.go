package experiment

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Common errors for experiment operations.
var (
	ErrNotFound    = errors.New("experiment not found")
	ErrDuplicateID = errors.New("experiment with this ID already exists")
)

// Service provides the experiment journal used by acquisition runs.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new experiment service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get retrieves an experiment by id.
func (s *Service) Get(ctx context.Context, id string) (*Experiment, error) {
	exp, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, ErrNotFound
	}
	return exp, nil
}

// List retrieves all experiments, newest first.
func (s *Service) List(ctx context.Context) ([]*Experiment, error) {
	exps, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(exps, func(i, j int) bool {
		if !exps[i].StartedAt.Equal(exps[j].StartedAt) {
			return exps[i].StartedAt.After(exps[j].StartedAt)
		}
		return exps[i].ID < exps[j].ID
	})
	return exps, nil
}

// Captures returns the capture metadata of an experiment.
func (s *Service) Captures(ctx context.Context, id string) ([]Capture, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.FindCaptures(ctx, id)
}

// Delete removes an experiment.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Begin records the start of a run.
func (s *Service) Begin(ctx context.Context, exp *Experiment) error {
	exp.State = StateRunning
	if exp.StartedAt.IsZero() {
		exp.StartedAt = s.now()
	}
	return s.repo.Insert(ctx, exp.Clone())
}

// Complete records the terminal state of a run.
func (s *Service) Complete(ctx context.Context, exp *Experiment) error {
	if exp.FinishedAt.IsZero() {
		exp.FinishedAt = s.now()
	}
	if !exp.Finished() {
		exp.State = StateCompleted
	}
	return s.repo.Update(ctx, exp.Clone())
}

// RecordSink returns a CaptureSink that stores capture metadata in the
// repository.
func (s *Service) RecordSink() CaptureSink {
	return recordSink{repo: s.repo}
}

type recordSink struct {
	repo Repository
}

func (r recordSink) Save(ctx context.Context, rec *CaptureRecord) error {
	return r.repo.InsertCapture(ctx, rec.Capture)
}
