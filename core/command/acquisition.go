package command

import "squid-go/domain/plan"

// StartAcquisition hands a plan to the acquisition orchestrator.
type StartAcquisition struct {
	base
	Plan plan.Plan
}

func NewStartAcquisition(p plan.Plan) StartAcquisition {
	return StartAcquisition{base: stamped(), Plan: p}
}

func (StartAcquisition) EventName() string { return "StartAcquisition" }

// PauseAcquisition parks the running acquisition between FOVs.
type PauseAcquisition struct {
	base
}

func NewPauseAcquisition() PauseAcquisition { return PauseAcquisition{base: stamped()} }

func (PauseAcquisition) EventName() string { return "PauseAcquisition" }

// ResumeAcquisition continues a paused acquisition.
type ResumeAcquisition struct {
	base
}

func NewResumeAcquisition() ResumeAcquisition { return ResumeAcquisition{base: stamped()} }

func (ResumeAcquisition) EventName() string { return "ResumeAcquisition" }

// StopAcquisition aborts the running acquisition.
type StopAcquisition struct {
	base
}

func NewStopAcquisition() StopAcquisition { return StopAcquisition{base: stamped()} }

func (StopAcquisition) EventName() string { return "StopAcquisition" }
