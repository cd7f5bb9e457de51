package event

// IlluminationStateChanged is published after a light source changed.
type IlluminationStateChanged struct {
	Meta
	Source    int
	Intensity float64
	On        bool
}

func NewIlluminationStateChanged(source int, intensity float64, on bool) IlluminationStateChanged {
	return IlluminationStateChanged{Meta: Stamp(), Source: source, Intensity: intensity, On: on}
}

func (IlluminationStateChanged) EventName() string { return "IlluminationStateChanged" }

// DACValueChanged is published after an analog output was written.
type DACValueChanged struct {
	Meta
	Channel int
	Percent float64
	Raw     uint16
}

func NewDACValueChanged(channel int, percent float64, raw uint16) DACValueChanged {
	return DACValueChanged{Meta: Stamp(), Channel: channel, Percent: percent, Raw: raw}
}

func (DACValueChanged) EventName() string { return "DACValueChanged" }

// CameraTriggerChanged is published when the hardware trigger generator changes.
type CameraTriggerChanged struct {
	Meta
	Running bool
	FPS     float64
}

func NewCameraTriggerChanged(running bool, fps float64) CameraTriggerChanged {
	return CameraTriggerChanged{Meta: Stamp(), Running: running, FPS: fps}
}

func (CameraTriggerChanged) EventName() string { return "CameraTriggerChanged" }

// AFLaserChanged is published when the autofocus laser is switched.
type AFLaserChanged struct {
	Meta
	On bool
}

func NewAFLaserChanged(on bool) AFLaserChanged {
	return AFLaserChanged{Meta: Stamp(), On: on}
}

func (AFLaserChanged) EventName() string { return "AFLaserChanged" }

// JoystickChanged is published when the joystick is enabled or disabled.
type JoystickChanged struct {
	Meta
	Enabled bool
}

func NewJoystickChanged(enabled bool) JoystickChanged {
	return JoystickChanged{Meta: Stamp(), Enabled: enabled}
}

func (JoystickChanged) EventName() string { return "JoystickChanged" }

// LaserAFReferenceSet is published when the laser autofocus reference is
// stored.
type LaserAFReferenceSet struct {
	Meta
	ReadingUm float64
}

func NewLaserAFReferenceSet(readingUm float64) LaserAFReferenceSet {
	return LaserAFReferenceSet{Meta: Stamp(), ReadingUm: readingUm}
}

func (LaserAFReferenceSet) EventName() string { return "LaserAFReferenceSet" }
