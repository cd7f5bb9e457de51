package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff"

	"squid-go/application/autofocus"
	"squid-go/application/stream"
	"squid-go/core/event"
	"squid-go/domain/channel"
	"squid-go/domain/experiment"
	"squid-go/domain/hardware"
	"squid-go/domain/plan"
)

// zTolerance is the smallest Z difference worth a stage move, in mm.
const zTolerance = 1e-6

type fovKey struct {
	region string
	index  int
}

// worker runs one acquisition on its own goroutine. Nothing in it is shared
// with other goroutines except through the run's flags and the bus.
type worker struct {
	c      *Controller
	cfg    Config
	run    *run
	ctx    context.Context
	plan   plan.Plan
	logger *slog.Logger

	progress *progress
	lastZ    map[fovKey]float64
	failed   []event.FOVRef
	failures []experiment.FailedFOV

	laserWarned bool
}

func newWorker(c *Controller, r *run) *worker {
	p := r.plan
	return &worker{
		c:      c,
		cfg:    c.cfg,
		run:    r,
		ctx:    r.ctx,
		plan:   p,
		logger: c.logger.With("experiment_id", r.id),
		progress: newProgress(r.id, p.TotalFOVs(), p.NumTimePoints(), len(p.Regions),
			c.cfg.ProgressInterval, c.publish, c.cfg.Collector),
		lastZ: make(map[fovKey]float64),
	}
}

// safeLoop runs loop and turns a panic into a fatal error.
func (w *worker) safeLoop() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("Acquisition worker panicked", "error", rec)
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return w.loop()
}

// loop visits time points, regions and FOVs in plan order. It returns an
// error only for fatal failures; an abort returns nil.
func (w *worker) loop() error {
	p := w.plan
	everyN := p.DisplayEveryN
	if p.FOVsPerTimePoint() == 1 {
		// single-FOV runs show every frame
		everyN = 0
	}
	w.cfg.Stream.BeginAcquisition(everyN)
	defer w.cfg.Stream.EndAcquisition()

	if err := w.cfg.Camera.StartStreaming(); err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}

	start := time.Now()
	n := p.NumTimePoints()
	for tp := 0; tp < n; {
		if !w.waitUntil(start.Add(time.Duration(tp) * p.Interval)) {
			return nil
		}
		for ri, region := range p.Regions {
			for fi, fov := range region.FOVs {
				if w.checkpoint() {
					return nil
				}
				if err := w.visit(tp, ri, region, fi, fov); err != nil {
					return err
				}
			}
		}
		tp++

		if p.Interval <= 0 {
			continue
		}
		for tp < n && time.Since(start) > time.Duration(tp)*p.Interval {
			w.logger.Warn("Skipping overdue time point", "time_point", tp)
			w.progress.skip(p.FOVsPerTimePoint())
			tp++
		}
	}
	return nil
}

// waitUntil sleeps until t while honouring abort. It reports false when the
// run was aborted.
func (w *worker) waitUntil(t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		return w.ctx.Err() == nil
	}
	w.logger.Info("Waiting for next time point", "in", d.Round(time.Millisecond))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-w.ctx.Done():
		return false
	}
}

// checkpoint parks while paused and reports whether the run was aborted.
func (w *worker) checkpoint() bool {
	for w.run.paused.Load() {
		select {
		case <-w.ctx.Done():
			return true
		case <-time.After(w.cfg.PauseInterval):
		}
	}
	return w.ctx.Err() != nil
}

// visit images one FOV and records the outcome. Only fatal errors are
// returned.
func (w *worker) visit(tp, ri int, region plan.Region, fi int, fov plan.FOV) error {
	ref := event.FOVRef{TimePoint: tp, RegionID: region.ID, FOVIndex: fi}
	started := time.Now()
	err := w.imageFOV(ref, ri, fov)
	elapsed := time.Since(started)

	switch {
	case err == nil:
		w.progress.fovDone(elapsed, true)
		w.cfg.Collector.ObserveFOVDuration(elapsed)
	case w.ctx.Err() != nil:
		// aborted mid-FOV
		return nil
	case hardware.IsFatal(err):
		w.logger.Error("Fatal hardware failure", "region", region.ID, "fov", fi, "error", err)
		return err
	default:
		w.logger.Warn("FOV failed", "time_point", tp, "region", region.ID, "fov", fi, "error", err)
		w.progress.fovDone(elapsed, false)
		w.failed = append(w.failed, ref)
		w.failures = append(w.failures, experiment.FailedFOV{
			TimePoint: tp,
			RegionID:  region.ID,
			FOVIndex:  fi,
			Error:     err.Error(),
		})
		w.cfg.Collector.IncFOVFailures()
		w.c.publish(event.NewFOVFailed(w.run.id, ref, err))
	}

	w.c.publish(event.NewAcquisitionRegionProgress(w.run.id, region.ID, fi+1, len(region.FOVs)))
	w.progress.report(false, tp, ri, "")
	return nil
}

func (w *worker) imageFOV(ref event.FOVRef, ri int, fov plan.FOV) error {
	p := w.plan
	key := fovKey{ref.RegionID, ref.FOVIndex}

	z := fov.Z
	if p.UseLastZ {
		if last, ok := w.lastZ[key]; ok {
			z = last
		}
	}
	if err := w.retry("move to fov", func() error { return w.cfg.Stage.MoveToXY(fov.X, fov.Y) }); err != nil {
		return err
	}
	if err := w.moveZ(z); err != nil {
		return err
	}
	w.c.publish(event.NewCurrentFOVRegistered(w.run.id, fov.X, fov.Y, p.FOVWidthMM, p.FOVHeightMM))

	if p.Autofocus.Due(ref.FOVIndex) {
		focused, err := w.autofocus()
		switch {
		case err == nil:
			z = focused
		case w.ctx.Err() != nil, hardware.IsFatal(err):
			return err
		default:
			w.logger.Warn("Autofocus failed, imaging at current Z", "region", ref.RegionID, "fov", ref.FOVIndex, "error", err)
		}
	}
	w.lastZ[key] = z

	current := z
	for zi, offset := range p.ZStack.Offsets() {
		for _, ch := range p.Channels {
			if w.ctx.Err() != nil {
				return w.ctx.Err()
			}
			target := z + (offset+ch.ZOffsetUm)/1000
			if math.Abs(target-current) > zTolerance {
				if err := w.moveZ(target); err != nil {
					return err
				}
				current = target
			}
			if err := w.capture(ref, ri, zi, ch); err != nil {
				return err
			}
		}
	}
	if math.Abs(current-z) > zTolerance {
		return w.moveZ(z)
	}
	return nil
}

func (w *worker) moveZ(z float64) error {
	return w.retry("move z", func() error { return w.cfg.Stage.MoveTo(hardware.AxisZ, z) })
}

// capture applies the channel, exposes one frame, routes it to display and
// hands it to the sink.
func (w *worker) capture(ref event.FOVRef, ri, zi int, ch channel.Config) error {
	if err := w.cfg.Mode.ApplyForAcquisition(ch.Name); err != nil {
		return fmt.Errorf("apply %s: %w", ch.Name, err)
	}
	frame, err := w.expose(ch.IlluminationSource)
	if err != nil {
		return err
	}

	pos := w.cfg.Stage.Position()
	w.cfg.Stream.OnFrameCaptured(frame, stream.CaptureInfo{
		ExperimentID: w.run.id,
		FOV:          ref,
		ZIndex:       zi,
		Channel:      ch.Name,
		X:            pos.X,
		Y:            pos.Y,
		Z:            pos.Z,
	})
	w.c.publish(event.NewAcquisitionCoordinates(w.run.id, ref, zi, ch.Name, pos.X, pos.Y, pos.Z))
	w.progress.captureDone()
	w.cfg.Collector.IncCaptures()

	if w.cfg.Sink == nil {
		return nil
	}
	capturedAt := frame.Timestamp
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	rec := &experiment.CaptureRecord{
		Capture: experiment.Capture{
			ExperimentID: w.run.id,
			TimePoint:    ref.TimePoint,
			RegionID:     ref.RegionID,
			RegionIndex:  ri,
			FOVIndex:     ref.FOVIndex,
			ZIndex:       zi,
			Channel:      ch.Name,
			X:            pos.X,
			Y:            pos.Y,
			Z:            pos.Z,
			FrameID:      frame.ID,
			Width:        frame.Width,
			Height:       frame.Height,
			PixelFormat:  string(frame.Format),
			CapturedAt:   capturedAt,
		},
		Frame: frame,
	}
	// Saves are not tied to the run context so an abort never truncates a
	// file that is being written.
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.SaveTimeout)
	defer cancel()
	if err := w.cfg.Sink.Save(ctx, rec); err != nil {
		return fmt.Errorf("save capture: %w", err)
	}
	return nil
}

// expose lights source for the duration of one triggered frame.
func (w *worker) expose(source int) (hardware.Frame, error) {
	if err := w.cfg.Illumination.TurnOn(source); err != nil {
		return hardware.Frame{}, fmt.Errorf("illumination on: %w", err)
	}
	frame, err := w.trigger()
	if offErr := w.cfg.Illumination.TurnOff(source); offErr != nil && err == nil {
		err = fmt.Errorf("illumination off: %w", offErr)
	}
	return frame, err
}

func (w *worker) trigger() (hardware.Frame, error) {
	if err := w.cfg.Camera.SendTrigger(); err != nil {
		return hardware.Frame{}, err
	}
	return w.cfg.Camera.ReadFrame(w.cfg.FrameTimeout)
}

// autofocus runs the plan's autofocus and returns the focus Z.
func (w *worker) autofocus() (float64, error) {
	af := w.plan.Autofocus
	switch af.Mode {
	case plan.AutofocusContrast:
		if w.cfg.Contrast == nil {
			return w.cfg.Stage.Position().Z, nil
		}
		return w.contrastAF(af)
	case plan.AutofocusLaser:
		if w.cfg.Laser == nil || !w.cfg.Laser.HasReference() {
			if !w.laserWarned {
				w.logger.Warn("Laser autofocus has no reference, skipping")
				w.laserWarned = true
			}
			return w.cfg.Stage.Position().Z, nil
		}
		res, err := w.cfg.Laser.Correct()
		w.c.publish(event.NewAutofocusCompleted(w.run.id, "laser", res.ZMM, err == nil))
		if err != nil {
			return 0, fmt.Errorf("laser autofocus: %w", err)
		}
		return res.ZMM, nil
	}
	return w.cfg.Stage.Position().Z, nil
}

func (w *worker) contrastAF(af plan.Autofocus) (float64, error) {
	ch := w.plan.Channels[0]
	for _, c := range w.plan.Channels {
		if c.Name == af.Channel {
			ch = c
			break
		}
	}
	if err := w.cfg.Mode.ApplyForAcquisition(ch.Name); err != nil {
		return 0, fmt.Errorf("apply %s: %w", ch.Name, err)
	}

	cfg := autofocus.DefaultContrastConfig()
	if af.Steps > 0 {
		cfg.Steps = af.Steps
	}
	if af.StepUm > 0 {
		cfg.StepUm = af.StepUm
	}
	if af.StopThreshold > 0 {
		cfg.StopThreshold = af.StopThreshold
	}
	cfg.FrameTimeout = w.cfg.FrameTimeout

	if err := w.cfg.Illumination.TurnOn(ch.IlluminationSource); err != nil {
		return 0, fmt.Errorf("illumination on: %w", err)
	}
	res, err := w.cfg.Contrast.Run(w.ctx, cfg)
	if offErr := w.cfg.Illumination.TurnOff(ch.IlluminationSource); offErr != nil && err == nil {
		err = fmt.Errorf("illumination off: %w", offErr)
	}
	w.c.publish(event.NewAutofocusCompleted(w.run.id, "contrast", res.ZMM, err == nil && !res.Aborted))
	if err != nil {
		return 0, fmt.Errorf("contrast autofocus: %w", err)
	}
	if res.Aborted {
		return 0, w.ctx.Err()
	}
	return res.ZMM, nil
}

// retry runs a stage operation, retrying transient failures with
// exponential backoff. Fatal failures and aborts end it immediately.
func (w *worker) retry(name string, op func() error) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     w.cfg.MoveBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Second,
		MaxElapsedTime:      30 * time.Second,
		Clock:               backoff.SystemClock,
	}
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if hardware.IsFatal(err) || w.ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if attempt <= w.cfg.MoveRetries {
			w.logger.Warn("Stage operation failed, retrying", "op", name, "attempt", attempt, "error", err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.cfg.MoveRetries)), w.ctx))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// safeState turns every light off and stops streaming. Errors are logged
// and every step is attempted.
func (w *worker) safeState() {
	if err := w.cfg.Illumination.AllOff(); err != nil {
		w.logger.Error("Failed to turn illumination off", "error", err)
	}
	if err := w.cfg.Camera.StopStreaming(); err != nil && !errors.Is(err, hardware.ErrNotPresent) {
		w.logger.Error("Failed to stop streaming", "error", err)
	}
}
