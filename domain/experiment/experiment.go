// Package experiment defines the persisted record of an acquisition run and
// the metadata of every image it captured.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"squid-go/domain/hardware"
)

// Run states as persisted.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateAborted   = "aborted"
	StateFailed    = "failed"
)

// FailedFOV identifies a FOV that could not be imaged.
type FailedFOV struct {
	TimePoint int
	RegionID  string
	FOVIndex  int
	Error     string
}

// Experiment is one acquisition run.
type Experiment struct {
	// ID is the run's experiment id (a UUID)
	ID string

	// Name is the user-facing experiment name
	Name string

	PlanName   string
	Regions    []string
	Channels   []string
	TimePoints int
	Planes     int

	TotalFOVs      int
	TotalImages    int
	CompletedFOVs  int
	CapturedImages int
	FailedFOVs     []FailedFOV

	State      string
	Error      string
	OutputDir  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Finished reports whether the run reached a terminal state.
func (e *Experiment) Finished() bool {
	return e.State == StateCompleted || e.State == StateAborted || e.State == StateFailed
}

// Duration returns how long the run took, or has taken so far.
func (e *Experiment) Duration() time.Duration {
	if e.FinishedAt.IsZero() {
		return time.Since(e.StartedAt)
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Clone creates a deep copy of the experiment.
func (e *Experiment) Clone() *Experiment {
	c := *e
	c.Regions = append([]string(nil), e.Regions...)
	c.Channels = append([]string(nil), e.Channels...)
	c.FailedFOVs = append([]FailedFOV(nil), e.FailedFOVs...)
	return &c
}

// Capture is the metadata of one captured image.
type Capture struct {
	ExperimentID string
	TimePoint    int
	RegionID     string
	RegionIndex  int
	FOVIndex     int
	ZIndex       int
	Channel      string
	X, Y, Z      float64
	FrameID      int64
	Width        int
	Height       int
	PixelFormat  string
	CapturedAt   time.Time
	// File is set by sinks that write the pixels somewhere.
	File string
}

// FileStem returns the name shared by every file of this capture.
func (c Capture) FileStem() string {
	return fmt.Sprintf("%s_%03d_%03d_%s", sanitize(c.RegionID), c.FOVIndex, c.ZIndex, sanitize(c.Channel))
}

// CaptureRecord pairs capture metadata with the frame it describes.
type CaptureRecord struct {
	Capture
	Frame hardware.Frame
}

// CaptureSink persists capture records. Save runs on the acquisition worker
// goroutine. A sink that writes the pixels to a file sets rec.File so later
// sinks see it.
type CaptureSink interface {
	Save(ctx context.Context, rec *CaptureRecord) error
}

// MultiSink saves to every sink in order and joins their errors.
type MultiSink []CaptureSink

// Save implements CaptureSink.
func (m MultiSink) Save(ctx context.Context, rec *CaptureRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sanitize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
