package autofocus

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"squid-go/domain/hardware"
)

// ErrNoReference is returned when correcting before a reference was set.
var ErrNoReference = errors.New("laser autofocus reference not set")

// ErrOutOfRange is returned when the measured displacement is implausible.
var ErrOutOfRange = errors.New("laser autofocus displacement out of range")

// LaserSwitch turns the autofocus laser on and off.
type LaserSwitch interface {
	SetAFLaser(on bool) error
}

// PiezoMover moves a piezo objective positioner relative to its position.
type PiezoMover interface {
	Available() bool
	MoveRelative(deltaUm float64) (float64, error)
}

// LaserConfig configures reflection autofocus.
type LaserConfig struct {
	// RangeUm bounds displacements that are trusted.
	RangeUm float64
	Logger  *slog.Logger
}

// DefaultLaserConfig returns laser autofocus defaults.
func DefaultLaserConfig() LaserConfig {
	return LaserConfig{RangeUm: 200}
}

// Laser is a reflection autofocus. It owns the displacement sensor and
// corrects Z by the displacement from a stored reference.
type Laser struct {
	mu     sync.Mutex
	sensor hardware.DisplacementSensor
	laser  LaserSwitch
	stage  Stage
	piezo  PiezoMover
	cfg    LaserConfig
	logger *slog.Logger

	reference    float64
	hasReference bool
}

// NewLaser creates a laser autofocus. piezo may be nil; when present, Z
// corrections go to the piezo instead of the stage.
func NewLaser(sensor hardware.DisplacementSensor, laser LaserSwitch, stage Stage, piezo PiezoMover, cfg LaserConfig) *Laser {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RangeUm <= 0 {
		cfg.RangeUm = 200
	}
	return &Laser{
		sensor: sensor,
		laser:  laser,
		stage:  stage,
		piezo:  piezo,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "laser_af"),
	}
}

// HasReference reports whether SetReference succeeded.
func (l *Laser) HasReference() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasReference
}

// Reference returns the stored reference reading.
func (l *Laser) Reference() (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reference, l.hasReference
}

// SetReference stores the current reading as the in-focus reference.
func (l *Laser) SetReference() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, err := l.measure()
	if err != nil {
		return err
	}
	l.reference = v
	l.hasReference = true
	l.logger.Info("Laser autofocus reference set", "reading_um", v)
	return nil
}

// MeasureDisplacement returns the displacement from the reference in
// micrometres.
func (l *Laser) MeasureDisplacement() (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.hasReference {
		return math.NaN(), ErrNoReference
	}
	v, err := l.measure()
	if err != nil {
		return math.NaN(), err
	}
	return v - l.reference, nil
}

// Correct measures the displacement and moves Z to cancel it. Implausible
// readings leave Z untouched.
func (l *Laser) Correct() (Result, error) {
	d, err := l.MeasureDisplacement()
	if err != nil {
		return Result{}, err
	}
	if math.Abs(d) > l.cfg.RangeUm {
		l.logger.Warn("Displacement out of range, keeping Z", "displacement_um", d)
		return Result{ZMM: l.stage.Position().Z}, fmt.Errorf("%w: %.1f um", ErrOutOfRange, d)
	}

	if l.piezo != nil && l.piezo.Available() {
		if _, err := l.piezo.MoveRelative(-d); err != nil {
			return Result{}, fmt.Errorf("laser af piezo move: %w", err)
		}
	} else if err := l.stage.MoveRelative(hardware.AxisZ, -d/1000); err != nil {
		return Result{}, fmt.Errorf("laser af stage move: %w", err)
	}
	return Result{ZMM: l.stage.Position().Z, Score: d, Steps: 1}, nil
}

// measure must be called with l.mu held.
func (l *Laser) measure() (float64, error) {
	if err := l.laser.SetAFLaser(true); err != nil {
		return 0, fmt.Errorf("af laser on: %w", err)
	}
	v, err := l.sensor.MeasureDisplacementUm()
	if offErr := l.laser.SetAFLaser(false); offErr != nil {
		l.logger.Warn("Failed to turn off AF laser", "error", offErr)
	}
	if err != nil {
		return 0, fmt.Errorf("measure displacement: %w", err)
	}
	return v, nil
}
