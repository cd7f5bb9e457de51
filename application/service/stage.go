package service

import (
	"fmt"
	"time"

	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/domain/hardware"
)

// StageConfig holds stage-specific settings.
type StageConfig struct {
	Config
	// WaitTimeout bounds every move-and-wait.
	WaitTimeout      time.Duration
	LoadingPosition  hardware.Position
	ScanningPosition hardware.Position
}

// DefaultStageConfig returns stage defaults.
func DefaultStageConfig(cfg Config) StageConfig {
	return StageConfig{
		Config:           cfg,
		WaitTimeout:      10 * time.Second,
		LoadingPosition:  hardware.Position{X: 0.5, Y: 0.5, Z: 0},
		ScanningPosition: hardware.Position{X: 20, Y: 20, Z: 1},
	}
}

// StageService owns the XYZ stage. Every operation blocks until the stage
// reports idle or WaitTimeout expires, then publishes the new position.
type StageService struct {
	base
	stage   hardware.Stage
	cfg     StageConfig
	lastPos hardware.Position
}

// NewStageService wraps stage and subscribes to stage commands.
func NewStageService(stage hardware.Stage, cfg StageConfig) *StageService {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	s := &StageService{stage: stage, cfg: cfg}
	s.init(cfg.Config, "stage_service")

	handle(&s.base, func(c command.MoveStage) error { return s.MoveRelative(c.Axis, c.DistanceMM) })
	handle(&s.base, func(c command.MoveStageTo) error { return s.MoveTo(c.Axis, c.PositionMM) })
	handle(&s.base, func(c command.MoveStageToXY) error { return s.MoveToXY(c.XMM, c.YMM) })
	handle(&s.base, func(c command.HomeStage) error { return s.Home(c.Axes...) })
	handle(&s.base, func(c command.ZeroStage) error { return s.Zero(c.Axes...) })
	handle(&s.base, func(command.MoveStageToLoadingPosition) error { return s.MoveToLoadingPosition() })
	handle(&s.base, func(command.MoveStageToScanningPosition) error { return s.MoveToScanningPosition() })

	if pos, err := stage.Position(); err == nil {
		s.lastPos = pos
		s.publish(event.NewStagePositionChanged(pos.X, pos.Y, pos.Z))
	}
	return s
}

// Limits returns the software travel limits.
func (s *StageService) Limits() hardware.StageLimits {
	return s.stage.Limits()
}

// Position returns the last known position.
func (s *StageService) Position() hardware.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPos
}

// op runs fn under the lock, waits for idle, refreshes the cached position
// and publishes it after unlocking.
func (s *StageService) op(name string, fn func() error) error {
	s.mu.Lock()
	err := fn()
	if err == nil {
		if werr := s.stage.WaitForIdle(s.cfg.WaitTimeout); werr != nil {
			err = fmt.Errorf("wait for idle: %w", werr)
		}
	}
	pos, perr := s.stage.Position()
	if perr == nil {
		s.lastPos = pos
	}
	s.mu.Unlock()

	if perr == nil {
		s.publish(event.NewStagePositionChanged(pos.X, pos.Y, pos.Z))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// MoveRelative moves one axis by mm, shortened so the target stays inside
// the software limits.
func (s *StageService) MoveRelative(axis hardware.Axis, mm float64) error {
	return s.op("move relative", func() error {
		pos, err := s.stage.Position()
		if err != nil {
			return err
		}
		cur := pos.Get(axis)
		target := s.stage.Limits().For(axis).Clamp(cur + mm)
		return s.stage.MoveRelative(axis, target-cur)
	})
}

// MoveTo moves one axis to an absolute position clamped to the limits.
func (s *StageService) MoveTo(axis hardware.Axis, mm float64) error {
	return s.op("move to", func() error {
		return s.stage.MoveAbsolute(axis, s.stage.Limits().For(axis).Clamp(mm))
	})
}

// MoveToXY moves X then Y to an absolute position.
func (s *StageService) MoveToXY(x, y float64) error {
	return s.op("move to xy", func() error {
		lim := s.stage.Limits()
		if err := s.stage.MoveAbsolute(hardware.AxisX, lim.X.Clamp(x)); err != nil {
			return err
		}
		return s.stage.MoveAbsolute(hardware.AxisY, lim.Y.Clamp(y))
	})
}

// Home homes the given axes; no axes means all.
func (s *StageService) Home(axes ...hardware.Axis) error {
	if len(axes) == 0 {
		axes = hardware.AllAxes
	}
	return s.op("home", func() error { return s.stage.Home(axes...) })
}

// Zero declares the current position of the given axes as zero.
func (s *StageService) Zero(axes ...hardware.Axis) error {
	if len(axes) == 0 {
		axes = hardware.AllAxes
	}
	return s.op("zero", func() error { return s.stage.Zero(axes...) })
}

// WaitForIdle blocks until the stage stops moving.
func (s *StageService) WaitForIdle(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage.WaitForIdle(timeout)
}

// MoveToLoadingPosition lowers Z first, then parks XY for sample exchange.
func (s *StageService) MoveToLoadingPosition() error {
	p := s.cfg.LoadingPosition
	return s.op("loading position", func() error {
		lim := s.stage.Limits()
		if err := s.stage.MoveAbsolute(hardware.AxisZ, lim.Z.Clamp(p.Z)); err != nil {
			return err
		}
		if err := s.stage.MoveAbsolute(hardware.AxisX, lim.X.Clamp(p.X)); err != nil {
			return err
		}
		return s.stage.MoveAbsolute(hardware.AxisY, lim.Y.Clamp(p.Y))
	})
}

// MoveToScanningPosition moves XY back over the sample, then raises Z.
func (s *StageService) MoveToScanningPosition() error {
	p := s.cfg.ScanningPosition
	return s.op("scanning position", func() error {
		lim := s.stage.Limits()
		if err := s.stage.MoveAbsolute(hardware.AxisX, lim.X.Clamp(p.X)); err != nil {
			return err
		}
		if err := s.stage.MoveAbsolute(hardware.AxisY, lim.Y.Clamp(p.Y)); err != nil {
			return err
		}
		return s.stage.MoveAbsolute(hardware.AxisZ, lim.Z.Clamp(p.Z))
	})
}
