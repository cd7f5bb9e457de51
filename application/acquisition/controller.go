package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/core/eventbus"
	"squid-go/core/state"
	"squid-go/domain/experiment"
	"squid-go/domain/plan"
)

// run is the state shared between the controller and one worker.
type run struct {
	id     string
	plan   plan.Plan
	ctx    context.Context
	cancel context.CancelFunc
	paused atomic.Bool
	done   chan struct{}
	exp    *experiment.Experiment
	// settling is set under Controller.mu once the worker loop returned;
	// pause and stop are refused from then on.
	settling bool
	// inflight counts control calls still publishing their events.
	inflight sync.WaitGroup
}

// Controller owns the acquisition lifecycle:
// Idle -> Running <-> Paused -> (Completed | Aborted | Failed) -> Idle.
type Controller struct {
	cfg    Config
	bus    eventbus.EventBus
	subs   *eventbus.Subscriptions
	logger *slog.Logger

	// startMu serializes Start so the gate and the state move together.
	startMu sync.Mutex

	mu     sync.Mutex
	state  state.AcquisitionState
	run    *run
	lastID string

	shutdownOnce sync.Once
}

// NewController creates a controller and subscribes to the acquisition
// commands.
func NewController(cfg Config) *Controller {
	cfg.applyDefaults()
	c := &Controller{
		cfg:    cfg,
		bus:    cfg.EventBus,
		subs:   eventbus.NewSubscriptions(cfg.EventBus),
		logger: cfg.Logger.With("component", "acquisition"),
		state:  state.StateIdle,
	}
	if c.bus == nil {
		return c
	}

	c.subs.Add(eventbus.Subscribe(c.bus, func(cmd command.StartAcquisition) {
		if _, err := c.Start(cmd.Plan); err != nil {
			c.logger.Warn("Start acquisition ignored", "error", err)
		}
	}))
	c.subs.Add(eventbus.Subscribe(c.bus, func(command.PauseAcquisition) {
		if err := c.Pause(); err != nil {
			c.logger.Debug("Pause ignored", "error", err)
		}
	}))
	c.subs.Add(eventbus.Subscribe(c.bus, func(command.ResumeAcquisition) {
		if err := c.Resume(); err != nil {
			c.logger.Debug("Resume ignored", "error", err)
		}
	}))
	c.subs.Add(eventbus.Subscribe(c.bus, func(command.StopAcquisition) {
		if err := c.Stop(); err != nil {
			c.logger.Debug("Stop ignored", "error", err)
		}
	}))
	return c
}

// State returns the lifecycle state.
func (c *Controller) State() state.AcquisitionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ExperimentID returns the id of the current run, or of the last one when
// idle. Subscribers use it to drop events from older runs.
func (c *Controller) ExperimentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != nil {
		return c.run.id
	}
	return c.lastID
}

// Start validates p, takes the hardware and spawns the worker. It returns
// the experiment id of the new run. The run works on its own copy of p.
func (c *Controller) Start(p plan.Plan) (string, error) {
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("invalid plan: %w", err)
	}
	p = p.Clone()

	c.startMu.Lock()
	defer c.startMu.Unlock()

	if !c.State().CanStart() {
		return "", ErrAlreadyRunning
	}

	if c.cfg.Live != nil && c.cfg.Live.IsLive() {
		if err := c.cfg.Live.StopLive(); err != nil {
			c.logger.Warn("Failed to stop live preview", "error", err)
		}
	}
	if g := c.cfg.Gate; g != nil {
		if !g.Enter(state.ModeAcquiring, "acquisition started", state.ModeIdle) {
			return "", fmt.Errorf("%w: mode is %s", ErrBusy, g.Mode())
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     uuid.New().String(),
		plan:   p,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		exp:    newExperiment(p),
	}
	r.exp.ID = r.id

	c.mu.Lock()
	from, err := c.transitionLocked(state.StateRunning)
	if err != nil {
		c.mu.Unlock()
		cancel()
		if g := c.cfg.Gate; g != nil {
			g.Set(state.ModeIdle, "acquisition start failed")
		}
		return "", err
	}
	c.run = r
	c.mu.Unlock()
	c.announce(r.id, from, state.StateRunning)

	if c.cfg.Journal != nil {
		jctx, jcancel := context.WithTimeout(context.Background(), c.cfg.SaveTimeout)
		if err := c.cfg.Journal.Begin(jctx, r.exp); err != nil {
			c.logger.Warn("Failed to record experiment", "experiment_id", r.id, "error", err)
		}
		jcancel()
	}

	c.logger.Info("Acquisition started",
		"experiment_id", r.id,
		"plan", p.Name,
		"regions", len(p.Regions),
		"fovs", p.TotalFOVs(),
		"images", p.TotalImages(),
	)
	c.publish(event.NewAcquisitionStarted(r.id, p.TotalFOVs(), p.TotalImages(), p.NumTimePoints()))

	go c.execute(r)
	return r.id, nil
}

// control checks allowed, moves to the target state and applies the run
// flag change in one critical section. The returned run holds an inflight
// slot the caller releases once its events are published; the worker waits
// for it before settling so events keep their order.
func (c *Controller) control(allowed func(state.AcquisitionState) bool, to state.AcquisitionState, apply func(*run)) (*run, state.AcquisitionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.run
	if r == nil || r.settling || !allowed(c.state) {
		return nil, c.state, ErrNotRunning
	}
	from, err := c.transitionLocked(to)
	if err != nil {
		return nil, from, err
	}
	apply(r)
	r.inflight.Add(1)
	return r, from, nil
}

// Pause parks the worker before its next FOV.
func (c *Controller) Pause() error {
	r, from, err := c.control(state.AcquisitionState.CanPause, state.StatePaused, func(r *run) {
		r.paused.Store(true)
	})
	if err != nil {
		return err
	}
	defer r.inflight.Done()

	c.announce(r.id, from, state.StatePaused)
	c.publish(event.NewAcquisitionPaused(r.id))
	return nil
}

// Resume continues a paused run.
func (c *Controller) Resume() error {
	r, from, err := c.control(state.AcquisitionState.CanResume, state.StateRunning, func(r *run) {
		r.paused.Store(false)
	})
	if err != nil {
		return err
	}
	defer r.inflight.Done()

	c.announce(r.id, from, state.StateRunning)
	c.publish(event.NewAcquisitionResumed(r.id))
	return nil
}

// Stop asks the worker to abort. The worker returns the hardware to a safe
// state and publishes AcquisitionFinished.
func (c *Controller) Stop() error {
	r, from, err := c.control(state.AcquisitionState.CanAbort, state.StateAborting, func(r *run) {
		r.cancel()
	})
	if err != nil {
		return err
	}
	defer r.inflight.Done()

	c.announce(r.id, from, state.StateAborting)
	if g := c.cfg.Gate; g != nil {
		// The worker only releases the gate after the inflight slot is
		// returned, so the run still owns it here.
		g.Enter(state.ModeAborting, "acquisition stop requested", state.ModeAcquiring)
	}
	c.logger.Info("Acquisition stop requested", "experiment_id", r.id)
	return nil
}

// Wait blocks until the current run, if any, has finished.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops a running acquisition, waits for the worker and
// unsubscribes. Safe to call more than once.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		if err := c.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
			c.logger.Warn("Failed to stop acquisition", "error", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
		defer cancel()
		if err := c.Wait(ctx); err != nil {
			c.logger.Warn("Acquisition worker did not stop in time", "error", err)
		}
		c.subs.UnsubscribeAll()
	})
}

// transitionLocked moves the state machine. c.mu must be held.
func (c *Controller) transitionLocked(to state.AcquisitionState) (state.AcquisitionState, error) {
	from := c.state
	if !from.CanTransitionTo(to) {
		return from, state.NewTransitionError(from, to, "invalid transition")
	}
	c.state = to
	return from, nil
}

// announce logs and publishes a transition. Call it without c.mu held.
func (c *Controller) announce(id string, from, to state.AcquisitionState) {
	c.logger.Info("State changed", "from", from, "to", to)
	c.publish(event.NewAcquisitionStateChanged(id, from, to))
}

func (c *Controller) publish(e event.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

// execute runs the worker and settles the run afterwards.
func (c *Controller) execute(r *run) {
	defer close(r.done)

	w := newWorker(c, r)
	err := w.safeLoop()
	w.safeState()

	c.mu.Lock()
	r.settling = true
	current := c.state
	c.mu.Unlock()
	// No control call can start from here on; wait for the ones under way.
	r.inflight.Wait()

	final, result := state.StateCompleted, "completed"
	switch {
	case err != nil:
		final, result = state.StateFailed, "failed"
	case r.ctx.Err() != nil || current == state.StateAborting:
		final, result = state.StateAborted, "aborted"
	}

	// Completed is only reachable from Running and Aborted only from Aborting.
	switch {
	case final == state.StateCompleted && current == state.StatePaused:
		c.settle(r, state.StateRunning)
	case final == state.StateAborted && current != state.StateAborting:
		c.settle(r, state.StateAborting)
	}
	c.settle(r, final)

	if final == state.StateCompleted {
		w.progress.report(true, w.plan.NumTimePoints()-1, len(w.plan.Regions)-1, "")
	}

	fin := event.NewAcquisitionFinished(r.id, final == state.StateCompleted, err)
	fin.Aborted = final == state.StateAborted
	fin.CompletedFOVs = w.progress.completed
	fin.TotalFOVs = w.progress.total
	fin.CapturedImages = w.progress.captured
	fin.FailedFOVs = w.failed
	c.publish(fin)
	c.cfg.Collector.IncAcquisitions(result)

	c.complete(r, w, final, err)

	c.logger.Info("Acquisition finished",
		"experiment_id", r.id,
		"result", result,
		"completed_fovs", fin.CompletedFOVs,
		"failed_fovs", len(fin.FailedFOVs),
		"images", fin.CapturedImages,
		"duration", time.Since(w.progress.started),
	)

	r.cancel()
	if g := c.cfg.Gate; g != nil {
		g.Set(state.ModeIdle, "acquisition finished")
	}
	c.settle(r, state.StateIdle)
}

// settle moves a finished run towards Idle. Only the worker changes the
// state once the run is settling. Reaching Idle detaches the run in the
// same critical section.
func (c *Controller) settle(r *run, to state.AcquisitionState) {
	c.mu.Lock()
	from, err := c.transitionLocked(to)
	if to == state.StateIdle {
		c.lastID = r.id
		c.run = nil
	}
	c.mu.Unlock()
	if err != nil {
		c.logger.Error("Failed to settle acquisition", "error", err)
		return
	}
	c.announce(r.id, from, to)
}

// complete writes the terminal experiment record.
func (c *Controller) complete(r *run, w *worker, final state.AcquisitionState, err error) {
	exp := r.exp
	exp.CompletedFOVs = w.progress.completed
	exp.CapturedImages = w.progress.captured
	exp.FailedFOVs = append(exp.FailedFOVs, w.failures...)
	switch final {
	case state.StateCompleted:
		exp.State = experiment.StateCompleted
	case state.StateAborted:
		exp.State = experiment.StateAborted
	default:
		exp.State = experiment.StateFailed
	}
	if err != nil {
		exp.Error = err.Error()
	}
	exp.FinishedAt = time.Now()

	if c.cfg.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SaveTimeout)
	defer cancel()
	if jerr := c.cfg.Journal.Complete(ctx, exp); jerr != nil {
		c.logger.Warn("Failed to record experiment result", "experiment_id", r.id, "error", jerr)
	}
}

func newExperiment(p plan.Plan) *experiment.Experiment {
	name := p.Output.ExperimentName
	if name == "" {
		name = p.Name
	}
	exp := &experiment.Experiment{
		Name:        name,
		PlanName:    p.Name,
		TimePoints:  p.NumTimePoints(),
		Planes:      p.NumPlanes(),
		TotalFOVs:   p.TotalFOVs(),
		TotalImages: p.TotalImages(),
		OutputDir:   p.Output.BaseDir,
		StartedAt:   time.Now(),
	}
	for _, r := range p.Regions {
		exp.Regions = append(exp.Regions, r.ID)
	}
	for _, ch := range p.Channels {
		exp.Channels = append(exp.Channels, ch.Name)
	}
	return exp
}
