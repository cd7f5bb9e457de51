package service

import (
	"log/slog"
	"sync"

	"squid-go/core/event"
	"squid-go/core/eventbus"
	"squid-go/core/state"
)

// ModeGate owns the process-wide operating mode.
type ModeGate struct {
	mu     sync.RWMutex
	mode   state.GlobalMode
	bus    eventbus.EventBus
	logger *slog.Logger
}

// NewModeGate creates a gate in ModeIdle.
func NewModeGate(bus eventbus.EventBus, logger *slog.Logger) *ModeGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModeGate{bus: bus, logger: logger.With("component", "mode_gate")}
}

// Mode returns the current mode.
func (g *ModeGate) Mode() state.GlobalMode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mode
}

// BlocksCommands reports whether bus hardware commands are suppressed.
func (g *ModeGate) BlocksCommands() bool {
	return g.Mode().BlocksUIHardwareCommands()
}

// Set switches mode and publishes GlobalModeChanged when it changed.
func (g *ModeGate) Set(mode state.GlobalMode, reason string) {
	g.Enter(mode, reason)
}

// Enter switches to mode only if the current mode is one of from. It
// reports whether the switch happened.
func (g *ModeGate) Enter(mode state.GlobalMode, reason string, from ...state.GlobalMode) bool {
	g.mu.Lock()
	old := g.mode
	allowed := len(from) == 0
	for _, f := range from {
		if f == old {
			allowed = true
			break
		}
	}
	if !allowed {
		g.mu.Unlock()
		return false
	}
	g.mode = mode
	g.mu.Unlock()

	if old != mode {
		g.logger.Info("Global mode changed", "from", old.String(), "to", mode.String(), "reason", reason)
		if g.bus != nil {
			g.bus.Publish(event.NewGlobalModeChanged(old, mode, reason))
		}
	}
	return true
}
