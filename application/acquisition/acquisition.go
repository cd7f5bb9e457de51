// Package acquisition runs multi-dimensional acquisitions: a controller owns
// the lifecycle state machine and a background worker visits every time
// point, region, FOV, z-plane and channel of a plan in order.
package acquisition

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"squid-go/application/autofocus"
	"squid-go/application/service"
	"squid-go/application/stream"
	"squid-go/core/eventbus"
	"squid-go/domain/experiment"
	"squid-go/domain/hardware"
	"squid-go/infrastructure/telemetry"
)

var (
	// ErrAlreadyRunning is returned when starting while a run is active.
	ErrAlreadyRunning = errors.New("acquisition already running")
	// ErrNotRunning is returned by pause, resume and stop without a run.
	ErrNotRunning = errors.New("no acquisition running")
	// ErrBusy is returned when another operation owns the hardware.
	ErrBusy = errors.New("hardware busy")
)

// Camera is the part of the camera service the worker drives.
type Camera interface {
	StartStreaming() error
	StopStreaming() error
	SendTrigger() error
	ReadFrame(timeout time.Duration) (hardware.Frame, error)
}

// Stage is the part of the stage service the worker drives.
type Stage interface {
	MoveToXY(x, y float64) error
	MoveTo(axis hardware.Axis, mm float64) error
	Position() hardware.Position
}

// Illumination is the part of the illumination service the worker drives.
type Illumination interface {
	TurnOn(source int) error
	TurnOff(source int) error
	AllOff() error
}

// ModeApplier applies a channel configuration without a bus round trip.
type ModeApplier interface {
	ApplyForAcquisition(name string) error
}

// FrameRouter receives captured frames for display.
type FrameRouter interface {
	BeginAcquisition(everyN int)
	OnFrameCaptured(f hardware.Frame, info stream.CaptureInfo)
	FlushPending()
	EndAcquisition()
}

// ContrastFocuser runs a contrast autofocus sweep.
type ContrastFocuser interface {
	Run(ctx context.Context, cfg autofocus.ContrastConfig) (autofocus.Result, error)
}

// LaserFocuser corrects Z against a stored reflection reference.
type LaserFocuser interface {
	HasReference() bool
	Correct() (autofocus.Result, error)
}

// LiveStopper ends live preview before a run takes the hardware.
type LiveStopper interface {
	IsLive() bool
	StopLive() error
}

// Journal records runs as experiments.
type Journal interface {
	Begin(ctx context.Context, exp *experiment.Experiment) error
	Complete(ctx context.Context, exp *experiment.Experiment) error
}

// Config holds the controller's dependencies and timing.
type Config struct {
	EventBus  eventbus.EventBus
	Gate      *service.ModeGate
	Logger    *slog.Logger
	Collector telemetry.Collector

	Camera       Camera
	Stage        Stage
	Illumination Illumination
	Mode         ModeApplier
	Stream       FrameRouter

	// Optional.
	Contrast ContrastFocuser
	Laser    LaserFocuser
	Live     LiveStopper
	Sink     experiment.CaptureSink
	Journal  Journal

	// FrameTimeout bounds each ReadFrame.
	FrameTimeout time.Duration
	// SaveTimeout bounds each sink Save and journal write.
	SaveTimeout time.Duration
	// PauseInterval is how often a paused worker rechecks its flags.
	PauseInterval time.Duration
	// ProgressInterval is the minimum spacing of progress events.
	ProgressInterval time.Duration
	// MoveRetries is how often a transient stage failure is retried.
	MoveRetries int
	// MoveBackoff is the first retry delay; it doubles per attempt.
	MoveBackoff time.Duration
	// ShutdownTimeout bounds how long Shutdown waits for the worker.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default timing.
func DefaultConfig() Config {
	return Config{
		FrameTimeout:     5 * time.Second,
		SaveTimeout:      10 * time.Second,
		PauseInterval:    50 * time.Millisecond,
		ProgressInterval: 250 * time.Millisecond,
		MoveRetries:      3,
		MoveBackoff:      25 * time.Millisecond,
		ShutdownTimeout:  10 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Collector == nil {
		c.Collector = telemetry.Noop()
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = d.FrameTimeout
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = d.SaveTimeout
	}
	if c.PauseInterval <= 0 {
		c.PauseInterval = d.PauseInterval
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = d.ProgressInterval
	}
	if c.MoveRetries < 0 {
		c.MoveRetries = 0
	}
	if c.MoveBackoff <= 0 {
		c.MoveBackoff = d.MoveBackoff
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
}
