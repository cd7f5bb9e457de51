package command

import (
	"testing"

	"squid-go/core/event"
	"squid-go/domain/hardware"
	"squid-go/domain/plan"
)

func TestCommand_Names(t *testing.T) {
	tests := []struct {
		cmd      Command
		expected string
	}{
		{NewSetExposureTime(10), "SetExposureTime"},
		{NewSetAnalogGain(2), "SetAnalogGain"},
		{NewSetROI(0, 0, 10, 10), "SetROI"},
		{NewSetBinning(2, 2), "SetBinning"},
		{NewSetPixelFormat("MONO8"), "SetPixelFormat"},
		{NewSetTriggerMode("Software"), "SetTriggerMode"},
		{NewSetTriggerFPS(5), "SetTriggerFPS"},
		{NewMoveStage(hardware.AxisX, 1), "MoveStage"},
		{NewMoveStageTo(hardware.AxisZ, 1), "MoveStageTo"},
		{NewMoveStageToXY(1, 2), "MoveStageToXY"},
		{NewHomeStage(hardware.AxisX), "HomeStage"},
		{NewZeroStage(hardware.AxisZ), "ZeroStage"},
		{NewMoveStageToLoadingPosition(), "MoveStageToLoadingPosition"},
		{NewMoveStageToScanningPosition(), "MoveStageToScanningPosition"},
		{NewSetIllumination(11, 50, true), "SetIllumination"},
		{NewSetPiezoPosition(100), "SetPiezoPosition"},
		{NewMovePiezoRelative(1), "MovePiezoRelative"},
		{NewHomePiezo(), "HomePiezo"},
		{NewSetFilterPosition(1, 2), "SetFilterPosition"},
		{NewHomeFilterWheel(1), "HomeFilterWheel"},
		{NewSetDAC(0, 50), "SetDAC"},
		{NewStartCameraTrigger(), "StartCameraTrigger"},
		{NewStopCameraTrigger(), "StopCameraTrigger"},
		{NewSetCameraTriggerFrequency(10), "SetCameraTriggerFrequency"},
		{NewSetAFLaser(true), "SetAFLaser"},
		{NewSetJoystick(true), "SetJoystick"},
		{NewSetMicroscopeMode("BF"), "SetMicroscopeMode"},
		{NewUpdateChannelConfigs(nil), "UpdateChannelConfigs"},
		{NewSetObjective("20x"), "SetObjective"},
		{NewSetFilterAutoSwitch(true), "SetFilterAutoSwitch"},
		{NewStartLive(""), "StartLive"},
		{NewStopLive(), "StopLive"},
		{NewStartAcquisition(plan.Plan{}), "StartAcquisition"},
		{NewPauseAcquisition(), "PauseAcquisition"},
		{NewResumeAcquisition(), "ResumeAcquisition"},
		{NewStopAcquisition(), "StopAcquisition"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.cmd.EventName(); got != tt.expected {
				t.Errorf("EventName() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsHardwareCommand(t *testing.T) {
	tests := []struct {
		name     string
		event    event.Event
		expected bool
	}{
		{"SetExposureTime", NewSetExposureTime(1), true},
		{"MoveStage literal", MoveStage{Axis: hardware.AxisX, DistanceMM: 1}, true},
		{"SetIllumination", NewSetIllumination(0, 1, true), true},
		{"SetMicroscopeMode", NewSetMicroscopeMode("BF"), true},
		{"SetLaserAFReference", NewSetLaserAFReference(), true},
		{"StartLive", NewStartLive(""), false},
		{"StopAcquisition", NewStopAcquisition(), false},
		{"state event", event.NewExposureTimeChanged(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHardwareCommand(tt.event); got != tt.expected {
				t.Errorf("IsHardwareCommand() = %v, want %v", got, tt.expected)
			}
		})
	}
}
