package controller

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/core/state"
	"squid-go/domain/hardware"
)

// ErrBusy is returned when live preview cannot start because an acquisition
// owns the hardware.
var ErrBusy = errors.New("hardware busy")

// LiveStream is the part of the stream handler live preview switches.
type LiveStream interface {
	SetLiveMode(live bool)
}

// LiveConfig configures the live controller.
type LiveConfig struct {
	Config
	Camera       LiveCamera
	Illumination IlluminationControl
	Mode         *MicroscopeModeController
	Stream       LiveStream
	// Trigger is used when the camera is in hardware trigger mode. May be nil.
	Trigger HardwareTrigger
}

// LiveController runs live preview: it streams the camera, lights the active
// channel and triggers frames until stopped.
type LiveController struct {
	component
	cfg LiveConfig

	mu      sync.Mutex
	live    bool
	channel string
	lit     int
	hasLit  bool
	stop    chan struct{}
	wg      sync.WaitGroup
	usingHW bool
}

// NewLiveController subscribes to StartLive, StopLive and mode changes.
func NewLiveController(cfg LiveConfig) *LiveController {
	c := &LiveController{cfg: cfg}
	c.init(cfg.Config, "live_controller")

	on(&c.component, func(cmd command.StartLive) error { return c.StartLive(cmd.Channel) })
	on(&c.component, func(command.StopLive) error { return c.StopLive() })
	on(&c.component, func(e event.MicroscopeModeChanged) error { return c.onModeChanged(e.Channel) })
	return c
}

// IsLive reports whether live preview is running.
func (c *LiveController) IsLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// StartLive starts preview, switching to channel first when it is not
// empty. Starting while already live only switches the channel.
func (c *LiveController) StartLive(channel string) error {
	if c.gate != nil && !c.gate.Enter(state.ModeLive, "live started", state.ModeIdle, state.ModeLive) {
		c.logger.Info("Refusing live preview", "mode", c.gate.Mode().String())
		return ErrBusy
	}

	wasLive := c.IsLive()
	if channel != "" && c.cfg.Mode != nil {
		if err := c.cfg.Mode.SetMode(channel); err != nil {
			if !wasLive {
				c.leaveLiveMode()
			}
			return err
		}
	}
	if wasLive {
		return nil
	}

	if err := c.cfg.Camera.StartStreaming(); err != nil {
		c.leaveLiveMode()
		return fmt.Errorf("start live: %w", err)
	}

	name := ""
	if c.cfg.Mode != nil {
		if active, ok := c.cfg.Mode.Active(); ok {
			name = active.Name
			if err := c.light(active.IlluminationSource); err != nil {
				c.logger.Warn("Failed to turn on illumination", "error", err)
			}
		}
	}
	if c.cfg.Stream != nil {
		c.cfg.Stream.SetLiveMode(true)
	}

	c.mu.Lock()
	c.live = true
	c.channel = name
	c.mu.Unlock()
	c.startTriggering()

	c.logger.Info("Live preview started", "channel", name)
	c.publish(event.NewLiveStateChanged(true, name))
	return nil
}

// StopLive stops preview and turns the illumination off.
func (c *LiveController) StopLive() error {
	c.mu.Lock()
	if !c.live {
		c.mu.Unlock()
		return nil
	}
	c.live = false
	name := c.channel
	c.mu.Unlock()

	c.stopTriggering()
	if err := c.unlight(); err != nil {
		c.logger.Warn("Failed to turn off illumination", "error", err)
	}
	if c.cfg.Stream != nil {
		c.cfg.Stream.SetLiveMode(false)
	}
	err := c.cfg.Camera.StopStreaming()
	c.leaveLiveMode()

	c.logger.Info("Live preview stopped")
	c.publish(event.NewLiveStateChanged(false, name))
	if err != nil {
		return fmt.Errorf("stop live: %w", err)
	}
	return nil
}

func (c *LiveController) leaveLiveMode() {
	if c.gate != nil {
		c.gate.Enter(state.ModeIdle, "live stopped", state.ModeLive)
	}
}

// onModeChanged moves the light to the new channel while live.
func (c *LiveController) onModeChanged(name string) error {
	c.mu.Lock()
	live := c.live
	c.mu.Unlock()
	if !live || c.cfg.Mode == nil {
		return nil
	}
	active, ok := c.cfg.Mode.Active()
	if !ok || active.Name != name {
		return nil
	}
	if err := c.unlight(); err != nil {
		return err
	}
	if err := c.light(active.IlluminationSource); err != nil {
		return err
	}
	c.mu.Lock()
	c.channel = name
	c.mu.Unlock()
	return nil
}

func (c *LiveController) light(source int) error {
	if err := c.cfg.Illumination.TurnOn(source); err != nil {
		return err
	}
	c.mu.Lock()
	c.lit = source
	c.hasLit = true
	c.mu.Unlock()
	return nil
}

func (c *LiveController) unlight() error {
	c.mu.Lock()
	source, ok := c.lit, c.hasLit
	c.hasLit = false
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.cfg.Illumination.TurnOff(source)
}

func (c *LiveController) startTriggering() {
	st := c.cfg.Camera.State()
	switch {
	case st.TriggerMode == hardware.TriggerContinuous:
		return
	case st.TriggerMode == hardware.TriggerHardware && c.cfg.Trigger != nil:
		if _, err := c.cfg.Trigger.SetCameraTriggerFrequency(st.TriggerFPS); err != nil {
			c.logger.Warn("Failed to set trigger frequency", "error", err)
		}
		if err := c.cfg.Trigger.StartCameraTrigger(); err != nil {
			c.logger.Warn("Failed to start hardware trigger", "error", err)
			return
		}
		c.mu.Lock()
		c.usingHW = true
		c.mu.Unlock()
		return
	}

	fps := st.TriggerFPS
	if fps <= 0 {
		fps = 10
	}
	stop := make(chan struct{})
	c.mu.Lock()
	c.stop = stop
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.cfg.Camera.SendTrigger(); err != nil {
					c.logger.Debug("Live trigger failed", "error", err)
				}
			}
		}
	}()
}

func (c *LiveController) stopTriggering() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	hw := c.usingHW
	c.usingHW = false
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		c.wg.Wait()
	}
	if hw {
		if err := c.cfg.Trigger.StopCameraTrigger(); err != nil {
			c.logger.Warn("Failed to stop hardware trigger", "error", err)
		}
	}
}

// Shutdown stops live preview and unsubscribes.
func (c *LiveController) Shutdown() {
	if err := c.StopLive(); err != nil {
		c.logger.Warn("Stop live on shutdown failed", "error", err)
	}
	c.component.Shutdown()
}
