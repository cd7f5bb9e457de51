package service

import (
	"fmt"

	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/domain/hardware"
)

// PiezoService owns the optional piezo Z stage. With no piezo installed it
// registers no handlers and every direct call returns hardware.ErrNotPresent.
type PiezoService struct {
	base
	pz  hardware.Piezo
	pos float64
}

// NewPiezoService wraps pz, which may be nil.
func NewPiezoService(pz hardware.Piezo, cfg Config) *PiezoService {
	s := &PiezoService{pz: pz}
	s.init(cfg, "piezo_service")
	if pz == nil {
		s.logger.Info("No piezo installed")
		return s
	}

	handle(&s.base, func(c command.SetPiezoPosition) error {
		_, err := s.MoveTo(c.PositionUm)
		return err
	})
	handle(&s.base, func(c command.MovePiezoRelative) error {
		_, err := s.MoveRelative(c.DeltaUm)
		return err
	})
	handle(&s.base, func(command.HomePiezo) error {
		_, err := s.Home()
		return err
	})

	if p, err := pz.Position(); err == nil {
		s.pos = p
		s.publish(event.NewPiezoPositionChanged(p))
	}
	return s
}

// Available reports whether a piezo is installed.
func (s *PiezoService) Available() bool {
	return s.pz != nil
}

// Range returns the travel range, or the zero range without a piezo.
func (s *PiezoService) Range() hardware.Range {
	if s.pz == nil {
		return hardware.Range{}
	}
	return s.pz.Range()
}

// Position returns the last applied position.
func (s *PiezoService) Position() (float64, error) {
	if s.pz == nil {
		return 0, hardware.ErrNotPresent
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, nil
}

// MoveTo moves to an absolute position clamped to the travel range.
func (s *PiezoService) MoveTo(um float64) (float64, error) {
	if s.pz == nil {
		return 0, hardware.ErrNotPresent
	}
	v := s.pz.Range().Clamp(um)

	s.mu.Lock()
	if err := s.pz.MoveTo(v); err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("piezo move: %w", err)
	}
	s.pos = v
	s.mu.Unlock()

	s.publish(event.NewPiezoPositionChanged(v))
	return v, nil
}

// MoveRelative moves by delta from the last applied position.
func (s *PiezoService) MoveRelative(deltaUm float64) (float64, error) {
	if s.pz == nil {
		return 0, hardware.ErrNotPresent
	}
	s.mu.Lock()
	target := s.pos + deltaUm
	s.mu.Unlock()
	return s.MoveTo(target)
}

// Home returns to the centre of the travel range.
func (s *PiezoService) Home() (float64, error) {
	if s.pz == nil {
		return 0, hardware.ErrNotPresent
	}
	return s.MoveTo(s.pz.Range().Center())
}
