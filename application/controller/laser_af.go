package controller

import (
	"squid-go/core/command"
	"squid-go/core/event"
)

// LaserReference is the part of laser autofocus that stores the in-focus
// reading.
type LaserReference interface {
	SetReference() error
	Reference() (float64, bool)
}

// LaserAFConfig configures the laser autofocus controller.
type LaserAFConfig struct {
	Config
	Laser LaserReference
}

// LaserAFController stores the laser autofocus reference on request.
type LaserAFController struct {
	component
	laser LaserReference
}

// NewLaserAFController subscribes to SetLaserAFReference. The command is a
// hardware command and is ignored while acquiring.
func NewLaserAFController(cfg LaserAFConfig) *LaserAFController {
	c := &LaserAFController{laser: cfg.Laser}
	c.init(cfg.Config, "laser_af_controller")

	on(&c.component, func(command.SetLaserAFReference) error {
		return c.SetReference()
	})
	return c
}

// SetReference measures and stores the reference, then publishes
// LaserAFReferenceSet.
func (c *LaserAFController) SetReference() error {
	if err := c.laser.SetReference(); err != nil {
		return err
	}
	v, _ := c.laser.Reference()
	c.publish(event.NewLaserAFReferenceSet(v))
	return nil
}
