package command

// SetIllumination sets the intensity of one source and switches it.
type SetIllumination struct {
	hwCommand
	Source    int
	Intensity float64
	On        bool
}

func NewSetIllumination(source int, intensity float64, on bool) SetIllumination {
	return SetIllumination{hwCommand: stampedHW(), Source: source, Intensity: intensity, On: on}
}

func (SetIllumination) EventName() string { return "SetIllumination" }

// SetPiezoPosition moves the piezo to an absolute position in micrometres.
type SetPiezoPosition struct {
	hwCommand
	PositionUm float64
}

func NewSetPiezoPosition(um float64) SetPiezoPosition {
	return SetPiezoPosition{hwCommand: stampedHW(), PositionUm: um}
}

func (SetPiezoPosition) EventName() string { return "SetPiezoPosition" }

// MovePiezoRelative moves the piezo by a relative distance in micrometres.
type MovePiezoRelative struct {
	hwCommand
	DeltaUm float64
}

func NewMovePiezoRelative(um float64) MovePiezoRelative {
	return MovePiezoRelative{hwCommand: stampedHW(), DeltaUm: um}
}

func (MovePiezoRelative) EventName() string { return "MovePiezoRelative" }

// HomePiezo returns the piezo to the centre of its range.
type HomePiezo struct {
	hwCommand
}

func NewHomePiezo() HomePiezo { return HomePiezo{hwCommand: stampedHW()} }

func (HomePiezo) EventName() string { return "HomePiezo" }

// SetFilterPosition selects a slot on a filter wheel (1-based).
type SetFilterPosition struct {
	hwCommand
	Wheel    int
	Position int
}

func NewSetFilterPosition(wheel, position int) SetFilterPosition {
	return SetFilterPosition{hwCommand: stampedHW(), Wheel: wheel, Position: position}
}

func (SetFilterPosition) EventName() string { return "SetFilterPosition" }

// HomeFilterWheel homes a filter wheel.
type HomeFilterWheel struct {
	hwCommand
	Wheel int
}

func NewHomeFilterWheel(wheel int) HomeFilterWheel {
	return HomeFilterWheel{hwCommand: stampedHW(), Wheel: wheel}
}

func (HomeFilterWheel) EventName() string { return "HomeFilterWheel" }

// SetDAC writes an analog output. Value is either normalized (0..1) or a
// percentage (0..100).
type SetDAC struct {
	hwCommand
	Channel int
	Value   float64
}

func NewSetDAC(channel int, value float64) SetDAC {
	return SetDAC{hwCommand: stampedHW(), Channel: channel, Value: value}
}

func (SetDAC) EventName() string { return "SetDAC" }

// StartCameraTrigger starts the hardware trigger generator.
type StartCameraTrigger struct {
	hwCommand
}

func NewStartCameraTrigger() StartCameraTrigger {
	return StartCameraTrigger{hwCommand: stampedHW()}
}

func (StartCameraTrigger) EventName() string { return "StartCameraTrigger" }

// StopCameraTrigger stops the hardware trigger generator.
type StopCameraTrigger struct {
	hwCommand
}

func NewStopCameraTrigger() StopCameraTrigger {
	return StopCameraTrigger{hwCommand: stampedHW()}
}

func (StopCameraTrigger) EventName() string { return "StopCameraTrigger" }

// SetCameraTriggerFrequency sets the hardware trigger rate.
type SetCameraTriggerFrequency struct {
	hwCommand
	FPS float64
}

func NewSetCameraTriggerFrequency(fps float64) SetCameraTriggerFrequency {
	return SetCameraTriggerFrequency{hwCommand: stampedHW(), FPS: fps}
}

func (SetCameraTriggerFrequency) EventName() string { return "SetCameraTriggerFrequency" }

// SetAFLaser switches the autofocus laser.
type SetAFLaser struct {
	hwCommand
	On bool
}

func NewSetAFLaser(on bool) SetAFLaser {
	return SetAFLaser{hwCommand: stampedHW(), On: on}
}

func (SetAFLaser) EventName() string { return "SetAFLaser" }

// SetJoystick enables or disables the manual joystick.
type SetJoystick struct {
	hwCommand
	Enabled bool
}

func NewSetJoystick(enabled bool) SetJoystick {
	return SetJoystick{hwCommand: stampedHW(), Enabled: enabled}
}

func (SetJoystick) EventName() string { return "SetJoystick" }

// SetLaserAFReference stores the current laser autofocus reading as the
// in-focus reference.
type SetLaserAFReference struct {
	hwCommand
}

func NewSetLaserAFReference() SetLaserAFReference {
	return SetLaserAFReference{hwCommand: stampedHW()}
}

func (SetLaserAFReference) EventName() string { return "SetLaserAFReference" }
