package experiment

import "context"

// Repository defines the interface for experiment persistence operations.
type Repository interface {
	// FindByID retrieves an experiment by its id.
	// Returns nil if not found.
	FindByID(ctx context.Context, id string) (*Experiment, error)

	// FindAll retrieves all experiments.
	FindAll(ctx context.Context) ([]*Experiment, error)

	// Insert creates a new experiment record.
	Insert(ctx context.Context, exp *Experiment) error

	// Update replaces an existing experiment record.
	Update(ctx context.Context, exp *Experiment) error

	// Delete removes an experiment and its captures.
	Delete(ctx context.Context, id string) error

	// InsertCapture stores the metadata of one captured image.
	InsertCapture(ctx context.Context, c Capture) error

	// FindCaptures returns the captures of an experiment in capture order.
	FindCaptures(ctx context.Context, experimentID string) ([]Capture, error)
}
