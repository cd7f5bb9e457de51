package event

import (
	"time"

	"squid-go/core/state"
)

// AcquisitionEvent is implemented by lifecycle events scoped to one run.
// Subscribers compare ExperimentID to drop events from a previous run.
type AcquisitionEvent interface {
	Event
	RunID() string
}

type runScope struct {
	ExperimentID string
}

func (r runScope) RunID() string { return r.ExperimentID }

// FOVRef identifies one field of view of one time point.
type FOVRef struct {
	TimePoint int
	RegionID  string
	FOVIndex  int
}

// AcquisitionStarted is published once the worker has been spawned.
type AcquisitionStarted struct {
	Meta
	runScope
	TotalFOVs   int
	TotalImages int
	TimePoints  int
}

func NewAcquisitionStarted(experimentID string, totalFOVs, totalImages, timePoints int) AcquisitionStarted {
	return AcquisitionStarted{
		Meta:        Stamp(),
		runScope:    runScope{experimentID},
		TotalFOVs:   totalFOVs,
		TotalImages: totalImages,
		TimePoints:  timePoints,
	}
}

func (AcquisitionStarted) EventName() string { return "AcquisitionStarted" }

// AcquisitionProgress is a coarse, rate-bounded progress snapshot.
// Percent is FOV-count based; ETA is derived from the mean FOV duration.
type AcquisitionProgress struct {
	Meta
	runScope
	CompletedFOVs   int
	TotalFOVs       int
	CapturedImages  int
	TimePoint       int
	TotalTimePoints int
	RegionIndex     int
	TotalRegions    int
	Channel         string
	Percent         float64
	Elapsed         time.Duration
	ETA             time.Duration
}

func NewAcquisitionProgress(experimentID string) AcquisitionProgress {
	return AcquisitionProgress{Meta: Stamp(), runScope: runScope{experimentID}}
}

func (AcquisitionProgress) EventName() string { return "AcquisitionProgress" }

// AcquisitionRegionProgress reports progress inside the current region.
type AcquisitionRegionProgress struct {
	Meta
	runScope
	RegionID      string
	CompletedFOVs int
	TotalFOVs     int
}

func NewAcquisitionRegionProgress(experimentID, regionID string, completed, total int) AcquisitionRegionProgress {
	return AcquisitionRegionProgress{
		Meta:          Stamp(),
		runScope:      runScope{experimentID},
		RegionID:      regionID,
		CompletedFOVs: completed,
		TotalFOVs:     total,
	}
}

func (AcquisitionRegionProgress) EventName() string { return "AcquisitionRegionProgress" }

// AcquisitionStateChanged is published on every lifecycle transition.
type AcquisitionStateChanged struct {
	Meta
	runScope
	OldState state.AcquisitionState
	NewState state.AcquisitionState
}

func NewAcquisitionStateChanged(experimentID string, oldState, newState state.AcquisitionState) AcquisitionStateChanged {
	return AcquisitionStateChanged{
		Meta:     Stamp(),
		runScope: runScope{experimentID},
		OldState: oldState,
		NewState: newState,
	}
}

func (AcquisitionStateChanged) EventName() string { return "AcquisitionStateChanged" }

// AcquisitionPaused is published when a pause is accepted. The worker parks
// before its next FOV.
type AcquisitionPaused struct {
	Meta
	runScope
}

func NewAcquisitionPaused(experimentID string) AcquisitionPaused {
	return AcquisitionPaused{Meta: Stamp(), runScope: runScope{experimentID}}
}

func (AcquisitionPaused) EventName() string { return "AcquisitionPaused" }

// AcquisitionResumed is published when a paused run continues.
type AcquisitionResumed struct {
	Meta
	runScope
}

func NewAcquisitionResumed(experimentID string) AcquisitionResumed {
	return AcquisitionResumed{Meta: Stamp(), runScope: runScope{experimentID}}
}

func (AcquisitionResumed) EventName() string { return "AcquisitionResumed" }

// FOVFailed is published when a field of view is skipped after an error.
type FOVFailed struct {
	Meta
	runScope
	FOV   FOVRef
	Error error
}

func NewFOVFailed(experimentID string, fov FOVRef, err error) FOVFailed {
	return FOVFailed{Meta: Stamp(), runScope: runScope{experimentID}, FOV: fov, Error: err}
}

func (FOVFailed) EventName() string { return "FOVFailed" }

// AcquisitionFinished is published exactly once per run.
type AcquisitionFinished struct {
	Meta
	runScope
	Success        bool
	Aborted        bool
	Error          error // non-nil on fatal failure
	CompletedFOVs  int
	TotalFOVs      int
	CapturedImages int
	FailedFOVs     []FOVRef
}

func NewAcquisitionFinished(experimentID string, success bool, err error) AcquisitionFinished {
	return AcquisitionFinished{
		Meta:     Stamp(),
		runScope: runScope{experimentID},
		Success:  success,
		Error:    err,
	}
}

func (AcquisitionFinished) EventName() string { return "AcquisitionFinished" }

// CurrentFOVRegistered is published when the stage arrives at a new FOV, so
// navigation views can draw the imaged footprint.
type CurrentFOVRegistered struct {
	Meta
	runScope
	XMM, YMM float64
	WidthMM  float64
	HeightMM float64
}

func NewCurrentFOVRegistered(experimentID string, x, y, w, h float64) CurrentFOVRegistered {
	return CurrentFOVRegistered{
		Meta:     Stamp(),
		runScope: runScope{experimentID},
		XMM:      x,
		YMM:      y,
		WidthMM:  w,
		HeightMM: h,
	}
}

func (CurrentFOVRegistered) EventName() string { return "CurrentFOVRegistered" }

// AcquisitionCoordinates carries the lightweight coordinates of one capture.
// It never carries pixel data.
type AcquisitionCoordinates struct {
	Meta
	runScope
	FOV     FOVRef
	ZIndex  int
	Channel string
	XMM     float64
	YMM     float64
	ZMM     float64
}

func NewAcquisitionCoordinates(experimentID string, fov FOVRef, zIndex int, channel string, x, y, z float64) AcquisitionCoordinates {
	return AcquisitionCoordinates{
		Meta:     Stamp(),
		runScope: runScope{experimentID},
		FOV:      fov,
		ZIndex:   zIndex,
		Channel:  channel,
		XMM:      x,
		YMM:      y,
		ZMM:      z,
	}
}

func (AcquisitionCoordinates) EventName() string { return "AcquisitionCoordinates" }

// AutofocusCompleted is published after an autofocus routine settled.
type AutofocusCompleted struct {
	Meta
	runScope
	Method  string
	ZMM     float64
	Success bool
}

func NewAutofocusCompleted(experimentID, method string, z float64, success bool) AutofocusCompleted {
	return AutofocusCompleted{
		Meta:     Stamp(),
		runScope: runScope{experimentID},
		Method:   method,
		ZMM:      z,
		Success:  success,
	}
}

func (AutofocusCompleted) EventName() string { return "AutofocusCompleted" }
