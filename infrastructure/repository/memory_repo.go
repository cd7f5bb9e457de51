package repository

import (
	"context"
	"sync"

	"squid-go/domain/experiment"
)

// MemoryExperimentRepository is an in-process experiment.Repository used
// when no database is configured.
type MemoryExperimentRepository struct {
	mu          sync.RWMutex
	experiments map[string]*experiment.Experiment
	captures    map[string][]experiment.Capture
}

var _ experiment.Repository = (*MemoryExperimentRepository)(nil)

// NewMemoryExperimentRepository creates an empty repository.
func NewMemoryExperimentRepository() *MemoryExperimentRepository {
	return &MemoryExperimentRepository{
		experiments: make(map[string]*experiment.Experiment),
		captures:    make(map[string][]experiment.Capture),
	}
}

func (r *MemoryExperimentRepository) FindByID(_ context.Context, id string) (*experiment.Experiment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exp, ok := r.experiments[id]
	if !ok {
		return nil, nil
	}
	return exp.Clone(), nil
}

func (r *MemoryExperimentRepository) FindAll(_ context.Context) ([]*experiment.Experiment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*experiment.Experiment, 0, len(r.experiments))
	for _, exp := range r.experiments {
		out = append(out, exp.Clone())
	}
	return out, nil
}

func (r *MemoryExperimentRepository) Insert(_ context.Context, exp *experiment.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.experiments[exp.ID]; ok {
		return experiment.ErrDuplicateID
	}
	r.experiments[exp.ID] = exp.Clone()
	return nil
}

func (r *MemoryExperimentRepository) Update(_ context.Context, exp *experiment.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.experiments[exp.ID]; !ok {
		return experiment.ErrNotFound
	}
	r.experiments[exp.ID] = exp.Clone()
	return nil
}

func (r *MemoryExperimentRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.experiments[id]; !ok {
		return experiment.ErrNotFound
	}
	delete(r.experiments, id)
	delete(r.captures, id)
	return nil
}

func (r *MemoryExperimentRepository) InsertCapture(_ context.Context, c experiment.Capture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures[c.ExperimentID] = append(r.captures[c.ExperimentID], c)
	return nil
}

func (r *MemoryExperimentRepository) FindCaptures(_ context.Context, experimentID string) ([]experiment.Capture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]experiment.Capture(nil), r.captures[experimentID]...), nil
}
