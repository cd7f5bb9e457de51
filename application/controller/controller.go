// Package controller holds the small pieces of cross-service coordination
// that do not own hardware: the active channel configuration, the objective
// and live preview.
package controller

import (
	"log/slog"

	"squid-go/application/service"
	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/core/eventbus"
)

// CameraSettings is the part of the camera service a mode switch touches.
type CameraSettings interface {
	SetExposureTime(ms float64) (float64, error)
	SetAnalogGain(gain float64) (float64, error)
}

// IlluminationControl is the part of the illumination service controllers use.
type IlluminationControl interface {
	SetIntensity(source int, percent float64) (float64, error)
	TurnOn(source int) error
	TurnOff(source int) error
}

// FilterControl is the part of the filter service a mode switch touches.
type FilterControl interface {
	Available() bool
	SetPosition(wheel, position int) (int, error)
}

// LiveCamera is the part of the camera service live preview uses.
type LiveCamera interface {
	StartStreaming() error
	StopStreaming() error
	SendTrigger() error
	State() service.CameraState
}

// HardwareTrigger drives the trigger generator of the IO board.
type HardwareTrigger interface {
	StartCameraTrigger() error
	StopCameraTrigger() error
	SetCameraTriggerFrequency(fps float64) (float64, error)
}

// Config holds the dependencies shared by every controller.
type Config struct {
	EventBus eventbus.EventBus
	Gate     *service.ModeGate
	Logger   *slog.Logger
}

type component struct {
	bus    eventbus.EventBus
	gate   *service.ModeGate
	subs   *eventbus.Subscriptions
	logger *slog.Logger
}

func (c *component) init(cfg Config, name string) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c.bus = cfg.EventBus
	c.gate = cfg.Gate
	c.subs = eventbus.NewSubscriptions(cfg.EventBus)
	c.logger = cfg.Logger.With("component", name)
}

func (c *component) publish(e event.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

// Shutdown unsubscribes the controller. Safe to call more than once.
func (c *component) Shutdown() {
	c.subs.UnsubscribeAll()
}

func on[T event.Event](c *component, fn func(T) error) {
	if c.bus == nil {
		return
	}
	c.subs.Add(eventbus.Subscribe(c.bus, func(cmd T) {
		if c.gate != nil && command.IsHardwareCommand(cmd) && c.gate.BlocksCommands() {
			c.logger.Info("Ignoring command due to global mode gate",
				"command", cmd.EventName(), "mode", c.gate.Mode().String())
			return
		}
		if err := fn(cmd); err != nil {
			c.logger.Warn("Command failed", "command", cmd.EventName(), "error", err)
		}
	}))
}
