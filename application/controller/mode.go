package controller

import (
	"fmt"
	"sync"

	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/domain/channel"
)

// ModeConfig configures the microscope mode controller.
type ModeConfig struct {
	Config
	Registry     *channel.Registry
	Camera       CameraSettings
	Illumination IlluminationControl
	// Filter may be nil when no filter wheel is installed.
	Filter FilterControl
}

// MicroscopeModeController tracks the active channel configuration and
// applies it to the camera, illumination and filter services.
type MicroscopeModeController struct {
	component
	cfg ModeConfig

	applyMu sync.Mutex

	mu         sync.Mutex
	active     string
	autoSwitch bool
}

// NewMicroscopeModeController subscribes to SetMicroscopeMode and
// UpdateChannelConfigs. Filter auto-switching starts enabled.
func NewMicroscopeModeController(cfg ModeConfig) *MicroscopeModeController {
	c := &MicroscopeModeController{cfg: cfg, autoSwitch: true}
	c.init(cfg.Config, "mode_controller")

	on(&c.component, func(cmd command.SetMicroscopeMode) error { return c.SetMode(cmd.Channel) })
	on(&c.component, func(cmd command.UpdateChannelConfigs) error { return c.UpdateChannelConfigs(cmd.Configs) })
	return c
}

// SetMode applies the named configuration and publishes
// MicroscopeModeChanged. Unknown names are ignored.
func (c *MicroscopeModeController) SetMode(name string) error {
	cfg, ok := c.cfg.Registry.Get(name)
	if !ok {
		c.logger.Debug("Ignoring unknown channel configuration", "channel", name)
		return nil
	}
	if err := c.apply(cfg); err != nil {
		return err
	}
	c.publish(event.NewMicroscopeModeChanged(name))
	return nil
}

// ApplyForAcquisition applies the named configuration through direct
// service calls. MicroscopeModeChanged is only published when the active
// configuration actually changes, so the acquisition loop does not flood
// the bus. Unknown names are ignored.
func (c *MicroscopeModeController) ApplyForAcquisition(name string) error {
	cfg, ok := c.cfg.Registry.Get(name)
	if !ok {
		c.logger.Debug("Ignoring unknown channel configuration", "channel", name)
		return nil
	}
	c.mu.Lock()
	changed := c.active != name
	c.mu.Unlock()

	if err := c.apply(cfg); err != nil {
		return err
	}
	if changed {
		c.publish(event.NewMicroscopeModeChanged(name))
	}
	return nil
}

// apply sets camera, then illumination, then filter. The services publish
// while applyMu is held, so handlers must not call back into apply.
func (c *MicroscopeModeController) apply(cfg channel.Config) error {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	autoSwitch := c.FilterAutoSwitch()

	if _, err := c.cfg.Camera.SetExposureTime(cfg.ExposureMs); err != nil {
		return fmt.Errorf("apply %s: %w", cfg.Name, err)
	}
	if _, err := c.cfg.Camera.SetAnalogGain(cfg.AnalogGain); err != nil {
		return fmt.Errorf("apply %s: %w", cfg.Name, err)
	}
	if _, err := c.cfg.Illumination.SetIntensity(cfg.IlluminationSource, cfg.IlluminationIntensity); err != nil {
		return fmt.Errorf("apply %s: %w", cfg.Name, err)
	}
	if autoSwitch && cfg.HasFilter() && c.cfg.Filter != nil && c.cfg.Filter.Available() {
		if _, err := c.cfg.Filter.SetPosition(cfg.FilterWheel, cfg.FilterPosition); err != nil {
			return fmt.Errorf("apply %s: %w", cfg.Name, err)
		}
	}

	c.mu.Lock()
	c.active = cfg.Name
	c.mu.Unlock()
	return nil
}

// Active returns the active configuration, if any.
func (c *MicroscopeModeController) Active() (channel.Config, bool) {
	c.mu.Lock()
	name := c.active
	c.mu.Unlock()
	if name == "" {
		return channel.Config{}, false
	}
	return c.cfg.Registry.Get(name)
}

// UpdateChannelConfigs replaces the available configurations and publishes
// their names. The active configuration is cleared if it disappeared.
func (c *MicroscopeModeController) UpdateChannelConfigs(configs []channel.Config) error {
	if err := c.cfg.Registry.Replace(configs); err != nil {
		return fmt.Errorf("update channel configs: %w", err)
	}
	c.mu.Lock()
	if _, ok := c.cfg.Registry.Get(c.active); !ok {
		c.active = ""
	}
	c.mu.Unlock()

	c.publish(event.NewChannelConfigurationsChanged(c.cfg.Registry.Names()))
	return nil
}

// SetFilterAutoSwitch enables or disables moving the filter wheel on mode
// changes.
func (c *MicroscopeModeController) SetFilterAutoSwitch(enabled bool) {
	c.mu.Lock()
	c.autoSwitch = enabled
	c.mu.Unlock()
}

// FilterAutoSwitch reports whether mode changes move the filter wheel.
func (c *MicroscopeModeController) FilterAutoSwitch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoSwitch
}
