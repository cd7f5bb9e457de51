package service

import (
	"fmt"

	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/domain/hardware"
)

// FilterService owns the optional filter wheels. With no wheel installed it
// registers no handlers and every direct call returns hardware.ErrNotPresent.
type FilterService struct {
	base
	fw        hardware.FilterWheel
	positions map[int]int
}

// NewFilterService wraps fw, which may be nil, and publishes the initial
// slot of every wheel.
func NewFilterService(fw hardware.FilterWheel, cfg Config) *FilterService {
	s := &FilterService{fw: fw, positions: make(map[int]int)}
	s.init(cfg, "filter_service")
	if fw == nil {
		s.logger.Info("No filter wheel installed")
		return s
	}

	handle(&s.base, func(c command.SetFilterPosition) error {
		_, err := s.SetPosition(c.Wheel, c.Position)
		return err
	})
	handle(&s.base, func(c command.HomeFilterWheel) error { return s.Home(c.Wheel) })

	for _, w := range fw.Wheels() {
		p, err := fw.Position(w)
		if err != nil {
			s.logger.Warn("Failed to read filter position", "wheel", w, "error", err)
			continue
		}
		s.positions[w] = p
		s.publish(event.NewFilterPositionChanged(w, p))
	}
	return s
}

// Available reports whether a filter wheel is installed.
func (s *FilterService) Available() bool {
	return s.fw != nil
}

// Position returns the last applied slot of a wheel.
func (s *FilterService) Position(wheel int) (int, error) {
	if s.fw == nil {
		return 0, hardware.ErrNotPresent
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[wheel]
	if !ok {
		return 0, fmt.Errorf("unknown filter wheel %d", wheel)
	}
	return p, nil
}

// SetPosition selects a slot clamped to 1..Slots and returns it.
func (s *FilterService) SetPosition(wheel, position int) (int, error) {
	if s.fw == nil {
		return 0, hardware.ErrNotPresent
	}
	p := hardware.ClampInt(position, 1, s.fw.Slots())

	s.mu.Lock()
	if err := s.fw.SetPosition(wheel, p); err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("set filter position: %w", err)
	}
	s.positions[wheel] = p
	s.mu.Unlock()

	s.publish(event.NewFilterPositionChanged(wheel, p))
	return p, nil
}

// Home homes a wheel and publishes its position.
func (s *FilterService) Home(wheel int) error {
	if s.fw == nil {
		return hardware.ErrNotPresent
	}

	s.mu.Lock()
	if err := s.fw.Home(wheel); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("home filter wheel: %w", err)
	}
	p, err := s.fw.Position(wheel)
	if err == nil {
		s.positions[wheel] = p
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("read filter position: %w", err)
	}
	s.publish(event.NewFilterPositionChanged(wheel, p))
	return nil
}
