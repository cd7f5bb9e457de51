// Package hardware defines the narrow device interfaces consumed by the
// services. Vendor drivers and simulators implement them; nothing outside
// the owning service may call into a device directly.
package hardware

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNotPresent is returned by direct service calls on optional
	// hardware that is not installed.
	ErrNotPresent = errors.New("hardware not present")
	// ErrTimeout is returned when a blocking wait expires.
	ErrTimeout = errors.New("hardware operation timed out")
	// ErrDisconnected marks a device that stopped responding for good.
	ErrDisconnected = errors.New("hardware disconnected")
)

// IsFatal reports whether err means the device can no longer be used.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDisconnected)
}

// IsTransient reports whether err is a recoverable, per-operation failure.
func IsTransient(err error) bool {
	return err != nil && !IsFatal(err)
}

// Range is an inclusive numeric interval.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Clamp returns v limited to [Min, Max]. NaN clamps to Min.
func (r Range) Clamp(v float64) float64 {
	if math.IsNaN(v) || v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Center returns the midpoint of the range.
func (r Range) Center() float64 {
	return (r.Min + r.Max) / 2
}

// ClampInt limits v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Axis names a stage axis.
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
	AxisZ Axis = "z"
)

// AllAxes lists the stage axes in homing order.
var AllAxes = []Axis{AxisZ, AxisX, AxisY}

// ParseAxis converts a case-insensitive axis name.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return AxisX, nil
	case "y", "Y":
		return AxisY, nil
	case "z", "Z":
		return AxisZ, nil
	default:
		return "", fmt.Errorf("unknown axis %q", s)
	}
}

// Position is a stage position in millimetres.
type Position struct {
	X, Y, Z float64
}

// Get returns the coordinate of one axis.
func (p Position) Get(axis Axis) float64 {
	switch axis {
	case AxisX:
		return p.X
	case AxisY:
		return p.Y
	default:
		return p.Z
	}
}

// With returns a copy of p with one axis replaced.
func (p Position) With(axis Axis, v float64) Position {
	switch axis {
	case AxisX:
		p.X = v
	case AxisY:
		p.Y = v
	default:
		p.Z = v
	}
	return p
}

// StageLimits holds the software travel limits per axis.
type StageLimits struct {
	X Range `yaml:"x" json:"x"`
	Y Range `yaml:"y" json:"y"`
	Z Range `yaml:"z" json:"z"`
}

// For returns the limits of one axis.
func (l StageLimits) For(axis Axis) Range {
	switch axis {
	case AxisX:
		return l.X
	case AxisY:
		return l.Y
	default:
		return l.Z
	}
}

// Stage is a motorized XYZ stage.
type Stage interface {
	MoveRelative(axis Axis, mm float64) error
	MoveAbsolute(axis Axis, mm float64) error
	Position() (Position, error)
	Home(axes ...Axis) error
	Zero(axes ...Axis) error
	IsBusy() bool
	WaitForIdle(timeout time.Duration) error
	Limits() StageLimits
}

// Illumination drives the light sources. Intensities are percentages.
type Illumination interface {
	SetIntensity(source int, percent float64) error
	TurnOn(source int) error
	TurnOff(source int) error
	Sources() []int
}

// Piezo is a single-axis piezo Z positioner in micrometres.
type Piezo interface {
	MoveTo(um float64) error
	Position() (float64, error)
	Range() Range
}

// FilterWheel drives one or more filter wheels with 1-based slots.
type FilterWheel interface {
	SetPosition(wheel, position int) error
	Position(wheel int) (int, error)
	Home(wheel int) error
	Wheels() []int
	Slots() int
}

// Peripheral is the microcontroller IO board: DAC outputs, trigger
// generator, autofocus laser and joystick.
type Peripheral interface {
	SetDAC(channel int, raw uint16) error
	StartCameraTrigger() error
	StopCameraTrigger() error
	SetCameraTriggerFrequency(fps float64) error
	SetAFLaser(on bool) error
	SetJoystick(enabled bool) error
}

// DisplacementSensor measures the focus offset seen by the reflection
// autofocus camera.
type DisplacementSensor interface {
	MeasureDisplacementUm() (float64, error)
}
