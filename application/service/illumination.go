package service

import (
	"fmt"

	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/domain/hardware"
)

// IntensityRange bounds illumination intensities in percent.
var IntensityRange = hardware.Range{Min: 0, Max: 100}

// SourceState is the last applied state of one light source.
type SourceState struct {
	Intensity float64
	On        bool
}

// IlluminationService owns the light sources.
type IlluminationService struct {
	base
	il      hardware.Illumination
	sources map[int]SourceState
}

// NewIlluminationService wraps il and subscribes to SetIllumination.
func NewIlluminationService(il hardware.Illumination, cfg Config) *IlluminationService {
	s := &IlluminationService{il: il, sources: make(map[int]SourceState)}
	s.init(cfg, "illumination_service")

	for _, src := range il.Sources() {
		s.sources[src] = SourceState{}
	}

	handle(&s.base, func(c command.SetIllumination) error {
		_, err := s.Apply(c.Source, c.Intensity, c.On)
		return err
	})
	return s
}

// Source returns the state of one source.
func (s *IlluminationService) Source(source int) SourceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sources[source]
}

// SetIntensity applies a clamped intensity and returns the applied value.
func (s *IlluminationService) SetIntensity(source int, percent float64) (float64, error) {
	v := IntensityRange.Clamp(percent)

	s.mu.Lock()
	if err := s.il.SetIntensity(source, v); err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("set intensity of source %d: %w", source, err)
	}
	st := s.sources[source]
	st.Intensity = v
	s.sources[source] = st
	s.mu.Unlock()

	s.publish(event.NewIlluminationStateChanged(source, st.Intensity, st.On))
	return v, nil
}

// Apply sets a clamped intensity and switches the source in one locked
// step, then publishes a single state snapshot.
func (s *IlluminationService) Apply(source int, percent float64, on bool) (SourceState, error) {
	v := IntensityRange.Clamp(percent)

	s.mu.Lock()
	if err := s.il.SetIntensity(source, v); err != nil {
		s.mu.Unlock()
		return SourceState{}, fmt.Errorf("set intensity of source %d: %w", source, err)
	}
	st := s.sources[source]
	st.Intensity = v
	s.sources[source] = st

	var err error
	if on {
		err = s.il.TurnOn(source)
	} else {
		err = s.il.TurnOff(source)
	}
	if err == nil {
		st.On = on
		s.sources[source] = st
	}
	s.mu.Unlock()

	s.publish(event.NewIlluminationStateChanged(source, st.Intensity, st.On))
	if err != nil {
		return st, fmt.Errorf("switch source %d: %w", source, err)
	}
	return st, nil
}

// TurnOn switches a source on.
func (s *IlluminationService) TurnOn(source int) error {
	return s.switchSource(source, true)
}

// TurnOff switches a source off.
func (s *IlluminationService) TurnOff(source int) error {
	return s.switchSource(source, false)
}

func (s *IlluminationService) switchSource(source int, on bool) error {
	s.mu.Lock()
	var err error
	if on {
		err = s.il.TurnOn(source)
	} else {
		err = s.il.TurnOff(source)
	}
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("switch source %d: %w", source, err)
	}
	st := s.sources[source]
	st.On = on
	s.sources[source] = st
	s.mu.Unlock()

	s.publish(event.NewIlluminationStateChanged(source, st.Intensity, st.On))
	return nil
}

// AllOff switches every known source off. It keeps going after a failure and
// returns the first error.
func (s *IlluminationService) AllOff() error {
	var first error
	for _, src := range s.il.Sources() {
		if err := s.TurnOff(src); err != nil && first == nil {
			first = err
		}
	}
	return first
}
