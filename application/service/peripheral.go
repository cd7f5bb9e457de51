package service

import (
	"fmt"
	"math"

	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/domain/hardware"
)

// DACPercent converts a normalized (0..1) or percent (0..100) value to a
// clamped percentage and the 16-bit DAC code.
func DACPercent(value float64) (float64, uint16) {
	pct := value
	if pct >= 0 && pct <= 1 {
		pct *= 100
	}
	pct = IntensityRange.Clamp(pct)
	return pct, uint16(math.Round(pct * 65535 / 100))
}

// PeripheralService owns the microcontroller IO: DAC outputs, the camera
// trigger generator, the autofocus laser and the joystick.
type PeripheralService struct {
	base
	io         hardware.Peripheral
	triggering bool
	fps        float64
	laser      bool
}

// NewPeripheralService wraps io and subscribes to peripheral commands.
func NewPeripheralService(io hardware.Peripheral, cfg Config) *PeripheralService {
	s := &PeripheralService{io: io}
	s.init(cfg, "peripheral_service")

	handle(&s.base, func(c command.SetDAC) error {
		_, err := s.SetDAC(c.Channel, c.Value)
		return err
	})
	handle(&s.base, func(command.StartCameraTrigger) error { return s.StartCameraTrigger() })
	handle(&s.base, func(command.StopCameraTrigger) error { return s.StopCameraTrigger() })
	handle(&s.base, func(c command.SetCameraTriggerFrequency) error {
		_, err := s.SetCameraTriggerFrequency(c.FPS)
		return err
	})
	handle(&s.base, func(c command.SetAFLaser) error { return s.SetAFLaser(c.On) })
	handle(&s.base, func(c command.SetJoystick) error { return s.SetJoystick(c.Enabled) })
	return s
}

// SetDAC writes an analog output and returns the applied percentage.
func (s *PeripheralService) SetDAC(channel int, value float64) (float64, error) {
	pct, raw := DACPercent(value)

	s.mu.Lock()
	err := s.io.SetDAC(channel, raw)
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("set dac %d: %w", channel, err)
	}

	s.publish(event.NewDACValueChanged(channel, pct, raw))
	return pct, nil
}

// StartCameraTrigger starts the hardware trigger generator.
func (s *PeripheralService) StartCameraTrigger() error {
	s.mu.Lock()
	err := s.io.StartCameraTrigger()
	if err == nil {
		s.triggering = true
	}
	fps := s.fps
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("start camera trigger: %w", err)
	}

	s.publish(event.NewCameraTriggerChanged(true, fps))
	return nil
}

// StopCameraTrigger stops the hardware trigger generator.
func (s *PeripheralService) StopCameraTrigger() error {
	s.mu.Lock()
	err := s.io.StopCameraTrigger()
	if err == nil {
		s.triggering = false
	}
	fps := s.fps
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("stop camera trigger: %w", err)
	}

	s.publish(event.NewCameraTriggerChanged(false, fps))
	return nil
}

// SetCameraTriggerFrequency sets the hardware trigger rate, clamped.
func (s *PeripheralService) SetCameraTriggerFrequency(fps float64) (float64, error) {
	v := TriggerFPSRange.Clamp(fps)

	s.mu.Lock()
	err := s.io.SetCameraTriggerFrequency(v)
	if err == nil {
		s.fps = v
	}
	running := s.triggering
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("set trigger frequency: %w", err)
	}

	s.publish(event.NewCameraTriggerChanged(running, v))
	return v, nil
}

// SetAFLaser switches the autofocus laser.
func (s *PeripheralService) SetAFLaser(on bool) error {
	s.mu.Lock()
	err := s.io.SetAFLaser(on)
	if err == nil {
		s.laser = on
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("set af laser: %w", err)
	}

	s.publish(event.NewAFLaserChanged(on))
	return nil
}

// AFLaserOn reports the last applied laser state.
func (s *PeripheralService) AFLaserOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.laser
}

// SetJoystick enables or disables manual stage control.
func (s *PeripheralService) SetJoystick(enabled bool) error {
	s.mu.Lock()
	err := s.io.SetJoystick(enabled)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("set joystick: %w", err)
	}

	s.publish(event.NewJoystickChanged(enabled))
	return nil
}
