// Package autofocus finds the focal plane before imaging an FOV, either by
// sweeping Z and scoring image contrast or by reading a reflection laser
// displacement against a stored reference.
package autofocus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"squid-go/domain/hardware"
)

// Stage is the subset of the stage service used by autofocus.
type Stage interface {
	MoveTo(axis hardware.Axis, mm float64) error
	MoveRelative(axis hardware.Axis, mm float64) error
	Position() hardware.Position
}

// Camera is the subset of the camera service used by contrast autofocus.
type Camera interface {
	SendTrigger() error
	ReadFrame(timeout time.Duration) (hardware.Frame, error)
}

// Result reports where autofocus left the stage.
type Result struct {
	ZMM   float64
	Score float64
	Steps int
	// Aborted is set when the context ended before the sweep finished; the
	// stage is still moved to the best plane seen so far.
	Aborted bool
}

// ContrastConfig describes a Z sweep.
type ContrastConfig struct {
	Steps  int
	StepUm float64
	// StopThreshold ends the sweep once the score falls below
	// max*StopThreshold. Zero disables early stopping.
	StopThreshold float64
	FrameTimeout  time.Duration
}

// DefaultContrastConfig returns a ten plane sweep.
func DefaultContrastConfig() ContrastConfig {
	return ContrastConfig{Steps: 10, StepUm: 1.5, StopThreshold: 0.85, FrameTimeout: 2 * time.Second}
}

// Contrast runs contrast-maximizing autofocus sweeps.
type Contrast struct {
	stage  Stage
	camera Camera
	logger *slog.Logger
}

// NewContrast creates a contrast autofocus over the given services.
func NewContrast(stage Stage, camera Camera, logger *slog.Logger) *Contrast {
	if logger == nil {
		logger = slog.Default()
	}
	return &Contrast{stage: stage, camera: camera, logger: logger.With("component", "contrast_af")}
}

// Run sweeps Steps planes centred on the current Z, then moves to the plane
// with the highest score. The caller is responsible for illumination.
func (c *Contrast) Run(ctx context.Context, cfg ContrastConfig) (Result, error) {
	if cfg.Steps < 1 {
		return Result{}, errors.New("autofocus needs at least one step")
	}
	if cfg.StepUm <= 0 {
		return Result{}, errors.New("autofocus step must be positive")
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = 2 * time.Second
	}

	step := cfg.StepUm / 1000
	startZ := c.stage.Position().Z - step*math.Round(float64(cfg.Steps)/2)

	best := Result{ZMM: c.stage.Position().Z, Score: -1}
	bestIdx := -1
	maxScore := 0.0
	for i := 0; i < cfg.Steps; i++ {
		if ctx.Err() != nil {
			c.logger.Warn("Autofocus aborted, using best plane so far", "steps", i)
			best.Aborted = true
			break
		}
		z := startZ + float64(i+1)*step
		if err := c.stage.MoveTo(hardware.AxisZ, z); err != nil {
			return Result{}, fmt.Errorf("autofocus move: %w", err)
		}
		if err := c.camera.SendTrigger(); err != nil {
			return Result{}, fmt.Errorf("autofocus trigger: %w", err)
		}
		frame, err := c.camera.ReadFrame(cfg.FrameTimeout)
		if err != nil {
			return Result{}, fmt.Errorf("autofocus read: %w", err)
		}

		score := FocusMeasure(frame)
		best.Steps = i + 1
		c.logger.Debug("Focus measure", "step", i, "z", z, "score", score)
		if score > best.Score {
			bestIdx = i
			best.Score = score
			best.ZMM = c.stage.Position().Z
		}
		maxScore = math.Max(maxScore, score)
		if cfg.StopThreshold > 0 && score < maxScore*cfg.StopThreshold {
			break
		}
	}

	if best.Score < 0 {
		return best, errors.New("autofocus captured no frames")
	}
	if err := c.stage.MoveTo(hardware.AxisZ, best.ZMM); err != nil {
		return Result{}, fmt.Errorf("autofocus final move: %w", err)
	}
	switch bestIdx {
	case 0:
		c.logger.Info("Focus found at the bottom of the sweep range")
	case cfg.Steps - 1:
		c.logger.Info("Focus found at the top of the sweep range")
	}
	return best, nil
}

// FocusMeasure returns the normalized gray level variance of a frame.
// Sharper images score higher.
func FocusMeasure(f hardware.Frame) float64 {
	n := len(f.Pixels)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, p := range f.Pixels {
		sum += float64(p)
	}
	mean := sum / float64(n)
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, p := range f.Pixels {
		d := float64(p) - mean
		sq += d * d
	}
	return sq / float64(n) / mean
}
