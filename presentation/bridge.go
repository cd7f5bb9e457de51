// Package presentation is the Fyne front end. It talks to the microscope
// only through the event bus and the coordinator's query methods.
package presentation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fyne.io/fyne/v2"

	"squid-go/application"
	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/core/eventbus"
	"squid-go/core/state"
	"squid-go/domain/experiment"
	"squid-go/domain/hardware"
)

// UIEventBridge routes UI actions to the bus and state events back to the
// UI. Every callback runs on the Fyne main goroutine.
type UIEventBridge struct {
	coordinator *application.Coordinator
	eventBus    eventbus.EventBus
	logger      *slog.Logger
	run         func(func())

	callbacks   *UICallbacks
	callbacksMu sync.RWMutex

	runMu        sync.Mutex
	experimentID string

	subscriptionID eventbus.SubscriptionID
	closeOnce      sync.Once
}

// UICallbacks contains callbacks for UI updates.
type UICallbacks struct {
	// Hardware state
	OnExposureChanged     func(ms float64)
	OnGainChanged         func(gain float64)
	OnStagePosition       func(x, y, z float64)
	OnIlluminationChanged func(source int, intensity float64, on bool)

	// Modes
	OnChannelChanged    func(channel string)
	OnGlobalModeChanged func(mode state.GlobalMode)
	OnLiveChanged       func(live bool, channel string)
	OnObjectiveChanged  func(name string, pixelSizeUm float64)

	// Acquisition
	OnAcquisitionStarted      func(experimentID string, totalFOVs, totalImages int)
	OnAcquisitionProgress     func(p event.AcquisitionProgress)
	OnAcquisitionStateChanged func(s state.AcquisitionState)
	OnFOVFailed               func(fov event.FOVRef, err error)
	OnAcquisitionFinished     func(e event.AcquisitionFinished)
}

// BridgeConfig holds configuration for UIEventBridge.
type BridgeConfig struct {
	Coordinator *application.Coordinator
	Logger      *slog.Logger
	// Run posts a function to the UI goroutine. Defaults to fyne.Do.
	Run func(func())
}

// NewUIEventBridge creates a new UI event bridge.
func NewUIEventBridge(cfg *BridgeConfig) *UIEventBridge {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Run == nil {
		cfg.Run = fyne.Do
	}

	b := &UIEventBridge{
		coordinator: cfg.Coordinator,
		eventBus:    cfg.Coordinator.Bus,
		logger:      cfg.Logger.With("component", "ui_bridge"),
		run:         cfg.Run,
		callbacks:   &UICallbacks{},
	}
	b.subscriptionID = b.eventBus.SubscribeAll(b.handleEvent)
	return b
}

// SetCallbacks sets the UI callbacks.
func (b *UIEventBridge) SetCallbacks(callbacks *UICallbacks) {
	b.callbacksMu.Lock()
	defer b.callbacksMu.Unlock()
	b.callbacks = callbacks
}

// Close unsubscribes from the event bus.
func (b *UIEventBridge) Close() {
	b.closeOnce.Do(func() {
		b.eventBus.Unsubscribe(b.subscriptionID)
	})
}

// Command dispatching methods

// SetExposure requests a new exposure time.
func (b *UIEventBridge) SetExposure(ms float64) {
	b.coordinator.Dispatch(command.NewSetExposureTime(ms))
}

// SetGain requests a new analog gain.
func (b *UIEventBridge) SetGain(gain float64) {
	b.coordinator.Dispatch(command.NewSetAnalogGain(gain))
}

// Jog moves one axis relative to its position.
func (b *UIEventBridge) Jog(axis hardware.Axis, mm float64) {
	b.coordinator.Dispatch(command.NewMoveStage(axis, mm))
}

// MoveTo moves the stage to an XY position.
func (b *UIEventBridge) MoveTo(x, y float64) {
	b.coordinator.Dispatch(command.NewMoveStageToXY(x, y))
}

// Home homes every stage axis.
func (b *UIEventBridge) Home() {
	b.coordinator.Dispatch(command.NewHomeStage(hardware.AllAxes...))
}

// SetChannel switches the active channel configuration.
func (b *UIEventBridge) SetChannel(name string) {
	b.coordinator.Dispatch(command.NewSetMicroscopeMode(name))
}

// SetObjective selects an objective.
func (b *UIEventBridge) SetObjective(name string) {
	b.coordinator.Dispatch(command.NewSetObjective(name))
}

// StartLive starts live preview on the given channel.
func (b *UIEventBridge) StartLive(channel string) {
	b.coordinator.Dispatch(command.NewStartLive(channel))
}

// StopLive stops live preview.
func (b *UIEventBridge) StopLive() {
	b.coordinator.Dispatch(command.NewStopLive())
}

// SetLaserAFReference stores the current laser autofocus reading as the
// in-focus reference.
func (b *UIEventBridge) SetLaserAFReference() {
	b.coordinator.Dispatch(command.NewSetLaserAFReference())
}

// StartAcquisition builds the named template against the current optics
// and publishes StartAcquisition. Build errors are returned directly.
func (b *UIEventBridge) StartAcquisition(template string) error {
	p, err := b.coordinator.BuildPlan(template)
	if err != nil {
		return err
	}
	b.coordinator.Dispatch(command.NewStartAcquisition(p))
	return nil
}

// PauseAcquisition pauses the current run.
func (b *UIEventBridge) PauseAcquisition() {
	b.coordinator.Dispatch(command.NewPauseAcquisition())
}

// ResumeAcquisition resumes a paused run.
func (b *UIEventBridge) ResumeAcquisition() {
	b.coordinator.Dispatch(command.NewResumeAcquisition())
}

// StopAcquisition aborts the current run.
func (b *UIEventBridge) StopAcquisition() {
	b.coordinator.Dispatch(command.NewStopAcquisition())
}

// Query methods

// Status returns the current microscope status.
func (b *UIEventBridge) Status() application.Status {
	return b.coordinator.Status()
}

// Channels returns the channel names in declaration order.
func (b *UIEventBridge) Channels() []string {
	return b.coordinator.Registry.Names()
}

// Objectives returns the objective names.
func (b *UIEventBridge) Objectives() []string {
	objs := b.coordinator.Registry.Objectives()
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.Name
	}
	return out
}

// HasLaserAF reports whether the rig has a laser autofocus sensor.
func (b *UIEventBridge) HasLaserAF() bool {
	return b.coordinator.LaserAF != nil
}

// Templates returns the plan template names.
func (b *UIEventBridge) Templates() []string {
	return b.coordinator.Templates()
}

// Experiments lists recorded experiments, newest first.
func (b *UIEventBridge) Experiments(ctx context.Context) ([]*experiment.Experiment, error) {
	return b.coordinator.Experiments.List(ctx)
}

// ExperimentCaptures returns the capture records of an experiment.
func (b *UIEventBridge) ExperimentCaptures(ctx context.Context, id string) ([]experiment.Capture, error) {
	return b.coordinator.Experiments.Captures(ctx, id)
}

// DeleteExperiment removes an experiment record. The active run cannot be
// deleted.
func (b *UIEventBridge) DeleteExperiment(ctx context.Context, id string) error {
	if id == b.coordinator.Acquisition.ExperimentID() && b.coordinator.Acquisition.State().IsActive() {
		return fmt.Errorf("experiment %s is still running", id)
	}
	return b.coordinator.Experiments.Delete(ctx, id)
}

// ExperimentID returns the run the bridge currently reports on.
func (b *UIEventBridge) ExperimentID() string {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.experimentID
}

// Event handling

// current tracks the active run. AcquisitionStarted switches to a new run;
// every other run-scoped event must match it.
func (b *UIEventBridge) current(e event.AcquisitionEvent) bool {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if _, ok := e.(event.AcquisitionStarted); ok {
		b.experimentID = e.RunID()
		return true
	}
	return e.RunID() == b.experimentID
}

func (b *UIEventBridge) handleEvent(e event.Event) {
	if ae, ok := e.(event.AcquisitionEvent); ok && !b.current(ae) {
		b.logger.Debug("Dropping event of a previous run", "event", e.EventName(), "experiment_id", ae.RunID())
		return
	}

	b.callbacksMu.RLock()
	callbacks := b.callbacks
	b.callbacksMu.RUnlock()

	if callbacks == nil {
		return
	}

	switch evt := e.(type) {
	case event.ExposureTimeChanged:
		if fn := callbacks.OnExposureChanged; fn != nil {
			b.run(func() { fn(evt.ExposureMs) })
		}

	case event.AnalogGainChanged:
		if fn := callbacks.OnGainChanged; fn != nil {
			b.run(func() { fn(evt.Gain) })
		}

	case event.StagePositionChanged:
		if fn := callbacks.OnStagePosition; fn != nil {
			b.run(func() { fn(evt.XMM, evt.YMM, evt.ZMM) })
		}

	case event.IlluminationStateChanged:
		if fn := callbacks.OnIlluminationChanged; fn != nil {
			b.run(func() { fn(evt.Source, evt.Intensity, evt.On) })
		}

	case event.MicroscopeModeChanged:
		if fn := callbacks.OnChannelChanged; fn != nil {
			b.run(func() { fn(evt.Channel) })
		}

	case event.GlobalModeChanged:
		if fn := callbacks.OnGlobalModeChanged; fn != nil {
			b.run(func() { fn(evt.NewMode) })
		}

	case event.LiveStateChanged:
		if fn := callbacks.OnLiveChanged; fn != nil {
			b.run(func() { fn(evt.Live, evt.Channel) })
		}

	case event.PixelSizeChanged:
		if fn := callbacks.OnObjectiveChanged; fn != nil {
			name := ""
			if obj, ok := b.coordinator.Peripherals.Objective(); ok {
				name = obj.Name
			}
			b.run(func() { fn(name, evt.PixelSizeUm) })
		}

	case event.AcquisitionStarted:
		if fn := callbacks.OnAcquisitionStarted; fn != nil {
			b.run(func() { fn(evt.RunID(), evt.TotalFOVs, evt.TotalImages) })
		}

	case event.AcquisitionProgress:
		if fn := callbacks.OnAcquisitionProgress; fn != nil {
			b.run(func() { fn(evt) })
		}

	case event.AcquisitionStateChanged:
		if fn := callbacks.OnAcquisitionStateChanged; fn != nil {
			b.run(func() { fn(evt.NewState) })
		}

	case event.FOVFailed:
		if fn := callbacks.OnFOVFailed; fn != nil {
			b.run(func() { fn(evt.FOV, evt.Error) })
		}

	case event.AcquisitionFinished:
		if fn := callbacks.OnAcquisitionFinished; fn != nil {
			b.run(func() { fn(evt) })
		}
	}
}

// formatETA renders a remaining duration for the progress label.
func formatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	return d.Round(time.Second).String()
}
