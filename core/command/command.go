// Package command defines the imperative events accepted on the bus.
// Commands are published by front ends and consumed by exactly one service
// or controller.
package command

import "squid-go/core/event"

// Command is the base interface for all commands.
type Command interface {
	event.Event
	isCommand()
}

// HardwareCommand is a command that mutates hardware directly. These are
// ignored while an acquisition owns the hardware.
type HardwareCommand interface {
	Command
	isHardware()
}

type base struct {
	event.Meta
}

func (base) isCommand() {}

type hwCommand struct {
	base
}

func (hwCommand) isHardware() {}

func stamped() base { return base{Meta: event.Stamp()} }

func stampedHW() hwCommand { return hwCommand{base: stamped()} }

// IsHardwareCommand reports whether e is a hardware-mutating command.
func IsHardwareCommand(e event.Event) bool {
	_, ok := e.(HardwareCommand)
	return ok
}
