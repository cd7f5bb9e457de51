package command

import "squid-go/domain/hardware"

// MoveStage moves one axis by a relative distance.
type MoveStage struct {
	hwCommand
	Axis       hardware.Axis
	DistanceMM float64
}

func NewMoveStage(axis hardware.Axis, mm float64) MoveStage {
	return MoveStage{hwCommand: stampedHW(), Axis: axis, DistanceMM: mm}
}

func (MoveStage) EventName() string { return "MoveStage" }

// MoveStageTo moves one axis to an absolute position.
type MoveStageTo struct {
	hwCommand
	Axis       hardware.Axis
	PositionMM float64
}

func NewMoveStageTo(axis hardware.Axis, mm float64) MoveStageTo {
	return MoveStageTo{hwCommand: stampedHW(), Axis: axis, PositionMM: mm}
}

func (MoveStageTo) EventName() string { return "MoveStageTo" }

// MoveStageToXY moves X and Y to an absolute position.
type MoveStageToXY struct {
	hwCommand
	XMM, YMM float64
}

func NewMoveStageToXY(x, y float64) MoveStageToXY {
	return MoveStageToXY{hwCommand: stampedHW(), XMM: x, YMM: y}
}

func (MoveStageToXY) EventName() string { return "MoveStageToXY" }

// HomeStage homes the listed axes.
type HomeStage struct {
	hwCommand
	Axes []hardware.Axis
}

func NewHomeStage(axes ...hardware.Axis) HomeStage {
	return HomeStage{hwCommand: stampedHW(), Axes: axes}
}

func (HomeStage) EventName() string { return "HomeStage" }

// ZeroStage declares the current position of the listed axes as zero.
type ZeroStage struct {
	hwCommand
	Axes []hardware.Axis
}

func NewZeroStage(axes ...hardware.Axis) ZeroStage {
	return ZeroStage{hwCommand: stampedHW(), Axes: axes}
}

func (ZeroStage) EventName() string { return "ZeroStage" }

// MoveStageToLoadingPosition parks the stage for sample exchange.
type MoveStageToLoadingPosition struct {
	hwCommand
}

func NewMoveStageToLoadingPosition() MoveStageToLoadingPosition {
	return MoveStageToLoadingPosition{hwCommand: stampedHW()}
}

func (MoveStageToLoadingPosition) EventName() string { return "MoveStageToLoadingPosition" }

// MoveStageToScanningPosition returns the stage to the scanning area.
type MoveStageToScanningPosition struct {
	hwCommand
}

func NewMoveStageToScanningPosition() MoveStageToScanningPosition {
	return MoveStageToScanningPosition{hwCommand: stampedHW()}
}

func (MoveStageToScanningPosition) EventName() string { return "MoveStageToScanningPosition" }
