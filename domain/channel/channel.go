// Package channel holds the named imaging channel configurations: the
// bundle of exposure, gain, illumination and filter applied for one
// imaging mode.
package channel

import (
	"errors"
	"fmt"
)

// ErrUnknownChannel is returned when a channel name is not registered.
var ErrUnknownChannel = errors.New("unknown channel configuration")

// Config is one channel configuration.
type Config struct {
	Name                  string
	ExposureMs            float64
	AnalogGain            float64
	IlluminationSource    int
	IlluminationIntensity float64
	// FilterWheel is 0 when the channel does not use a filter wheel.
	FilterWheel    int
	FilterPosition int
	// ZOffsetUm is applied relative to the focus plane while imaging this channel.
	ZOffsetUm            float64
	EmissionWavelengthNm int
	Color                string
}

// HasFilter reports whether the channel selects a filter slot.
func (c Config) HasFilter() bool {
	return c.FilterWheel > 0 && c.FilterPosition > 0
}

// Validate checks the configuration for values no device can apply.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("channel name is required")
	}
	if c.ExposureMs <= 0 {
		return fmt.Errorf("channel %s: exposure must be positive", c.Name)
	}
	if c.IlluminationIntensity < 0 {
		return fmt.Errorf("channel %s: illumination intensity must not be negative", c.Name)
	}
	return nil
}

// Objective describes a microscope objective.
type Objective struct {
	Name          string
	Magnification float64
	NA            float64
	// TubeLensMM is the focal length the magnification was specified for.
	TubeLensMM float64
}

// PixelSizeUm returns the sample-plane pixel size for a sensor pixel pitch,
// binning and system tube lens.
func (o Objective) PixelSizeUm(sensorPixelUm float64, binning int, systemTubeLensMM float64) float64 {
	if o.Magnification <= 0 {
		return 0
	}
	if binning < 1 {
		binning = 1
	}
	mag := o.Magnification
	if o.TubeLensMM > 0 && systemTubeLensMM > 0 {
		mag = o.Magnification * systemTubeLensMM / o.TubeLensMM
	}
	return sensorPixelUm * float64(binning) / mag
}
