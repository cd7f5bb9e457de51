package simulated

import (
	"sync"
	"time"

	"squid-go/domain/hardware"
)

// Stage is a simulated XYZ stage. Moves complete instantly unless a latency
// is set; FocusZMM is the z at which the simulated sample is in focus.
type Stage struct {
	instrument

	mu       sync.Mutex
	pos      hardware.Position
	limits   hardware.StageLimits
	focusZMM float64
	busy     bool
}

var _ hardware.Stage = (*Stage)(nil)

// DefaultStageLimits returns travel limits of a typical plate stage.
func DefaultStageLimits() hardware.StageLimits {
	return hardware.StageLimits{
		X: hardware.Range{Min: 0, Max: 120},
		Y: hardware.Range{Min: 0, Max: 80},
		Z: hardware.Range{Min: 0, Max: 6},
	}
}

// NewStage creates a simulated stage at the origin.
func NewStage(limits hardware.StageLimits, log *CallLog) *Stage {
	s := &Stage{limits: limits, focusZMM: 1}
	s.instrument.init("stage", log)
	return s
}

// SetFocusZ sets the in-focus z position.
func (s *Stage) SetFocusZ(mm float64) {
	s.mu.Lock()
	s.focusZMM = mm
	s.mu.Unlock()
}

// DefocusUm implements FocusSource.
func (s *Stage) DefocusUm() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (s.pos.Z - s.focusZMM) * 1000
}

func (s *Stage) move(op string, axis hardware.Axis, value float64, target func(cur float64) float64) error {
	done, err := s.enter(op, value, string(axis))
	defer done()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pos = s.pos.With(axis, target(s.pos.Get(axis)))
	s.mu.Unlock()
	return nil
}

func (s *Stage) MoveRelative(axis hardware.Axis, mm float64) error {
	return s.move("MoveRelative", axis, mm, func(cur float64) float64 { return cur + mm })
}

func (s *Stage) MoveAbsolute(axis hardware.Axis, mm float64) error {
	return s.move("MoveAbsolute", axis, mm, func(float64) float64 { return mm })
}

func (s *Stage) Position() (hardware.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, nil
}

func (s *Stage) Home(axes ...hardware.Axis) error {
	for _, a := range axes {
		if err := s.move("Home", a, 0, func(float64) float64 { return s.limits.For(a).Min }); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stage) Zero(axes ...hardware.Axis) error {
	for _, a := range axes {
		if err := s.move("Zero", a, 0, func(float64) float64 { return 0 }); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stage) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// SetBusy forces the busy flag, for exercising WaitForIdle timeouts.
func (s *Stage) SetBusy(busy bool) {
	s.mu.Lock()
	s.busy = busy
	s.mu.Unlock()
}

func (s *Stage) WaitForIdle(timeout time.Duration) error {
	done, err := s.enter("WaitForIdle", timeout.Seconds(), "")
	defer done()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for s.IsBusy() {
		if time.Now().After(deadline) {
			return hardware.ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (s *Stage) Limits() hardware.StageLimits {
	return s.limits
}
