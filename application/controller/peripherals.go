package controller

import (
	"sync"

	"squid-go/application/service"
	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/domain/channel"
)

// CameraState reports the current camera settings.
type CameraState interface {
	State() service.CameraState
}

// PeripheralsConfig configures the peripherals controller.
type PeripheralsConfig struct {
	Config
	Registry *channel.Registry
	Mode     *MicroscopeModeController
	Camera   CameraState
	// SensorPixelUm is the physical camera pixel pitch.
	SensorPixelUm float64
	// TubeLensMM is the tube lens of the microscope body.
	TubeLensMM float64
}

// PeripheralsController owns the objective selection and the filter
// auto-switch flag.
type PeripheralsController struct {
	component
	cfg PeripheralsConfig

	mu        sync.Mutex
	objective channel.Objective
	selected  bool
}

// NewPeripheralsController subscribes to SetObjective and
// SetFilterAutoSwitch.
func NewPeripheralsController(cfg PeripheralsConfig) *PeripheralsController {
	c := &PeripheralsController{cfg: cfg}
	c.init(cfg.Config, "peripherals_controller")

	on(&c.component, func(cmd command.SetObjective) error {
		c.SetObjective(cmd.Name)
		return nil
	})
	on(&c.component, func(cmd command.SetFilterAutoSwitch) error {
		c.SetFilterAutoSwitch(cmd.Enabled)
		return nil
	})
	return c
}

// SetObjective selects an objective and publishes ObjectiveChanged and
// PixelSizeChanged. It reports false for unknown names.
func (c *PeripheralsController) SetObjective(name string) bool {
	obj, ok := c.cfg.Registry.Objective(name)
	if !ok {
		c.logger.Warn("Ignoring unknown objective", "objective", name)
		return false
	}
	c.mu.Lock()
	c.objective = obj
	c.selected = true
	c.mu.Unlock()

	c.publish(event.NewObjectiveChanged(obj.Name, obj.Magnification))
	c.publish(event.NewPixelSizeChanged(c.PixelSizeUm()))
	return true
}

// Objective returns the selected objective.
func (c *PeripheralsController) Objective() (channel.Objective, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.objective, c.selected
}

// PixelSizeUm returns the sample-plane pixel size for the selected
// objective and the current binning, or zero before an objective is set.
func (c *PeripheralsController) PixelSizeUm() float64 {
	obj, ok := c.Objective()
	if !ok {
		return 0
	}
	binning := 1
	if c.cfg.Camera != nil {
		binning = c.cfg.Camera.State().BinningX
	}
	return obj.PixelSizeUm(c.cfg.SensorPixelUm, binning, c.cfg.TubeLensMM)
}

// FOVSizeMM returns the imaged footprint for a frame of the given size.
func (c *PeripheralsController) FOVSizeMM(width, height int) (float64, float64) {
	ps := c.PixelSizeUm()
	return float64(width) * ps / 1000, float64(height) * ps / 1000
}

// SetFilterAutoSwitch toggles filter moves on mode changes.
func (c *PeripheralsController) SetFilterAutoSwitch(enabled bool) {
	if c.cfg.Mode != nil {
		c.cfg.Mode.SetFilterAutoSwitch(enabled)
	}
	c.publish(event.NewFilterAutoSwitchChanged(enabled))
}
