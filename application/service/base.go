// Package service wraps each hardware device in a service that owns it
// exclusively. A service serializes device access with its own lock, clamps
// requested values to the device limits, and publishes the resulting state
// after releasing the lock.
package service

import (
	"log/slog"
	"sync"

	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/core/eventbus"
)

// Config holds the dependencies shared by every service.
type Config struct {
	EventBus eventbus.EventBus
	// Gate, when set, suppresses hardware commands arriving over the bus
	// while an acquisition owns the hardware.
	Gate   *ModeGate
	Logger *slog.Logger
}

type base struct {
	mu     sync.Mutex
	bus    eventbus.EventBus
	subs   *eventbus.Subscriptions
	gate   *ModeGate
	logger *slog.Logger
	once   sync.Once
}

func (b *base) init(cfg Config, component string) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	b.bus = cfg.EventBus
	b.subs = eventbus.NewSubscriptions(cfg.EventBus)
	b.gate = cfg.Gate
	b.logger = cfg.Logger.With("component", component)
}

func (b *base) publish(e event.Event) {
	if b.bus != nil {
		b.bus.Publish(e)
	}
}

// Shutdown unsubscribes every command handler. Safe to call more than once.
func (b *base) Shutdown() {
	b.once.Do(func() {
		b.subs.UnsubscribeAll()
		b.logger.Debug("Service shut down")
	})
}

// handle subscribes fn to commands of type T. Failures are logged and the
// command is skipped; hardware commands are dropped while the gate is closed.
func handle[T event.Event](b *base, fn func(T) error) {
	if b.bus == nil {
		return
	}
	b.subs.Add(eventbus.Subscribe(b.bus, func(cmd T) {
		if b.gate != nil && command.IsHardwareCommand(cmd) && b.gate.BlocksCommands() {
			b.logger.Info("Ignoring command due to global mode gate",
				"command", cmd.EventName(), "mode", b.gate.Mode().String())
			return
		}
		if err := fn(cmd); err != nil {
			b.logger.Warn("Command failed", "command", cmd.EventName(), "error", err)
		}
	}))
}
