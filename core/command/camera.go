package command

// SetExposureTime requests a new exposure time in milliseconds.
type SetExposureTime struct {
	hwCommand
	ExposureMs float64
}

func NewSetExposureTime(ms float64) SetExposureTime {
	return SetExposureTime{hwCommand: stampedHW(), ExposureMs: ms}
}

func (SetExposureTime) EventName() string { return "SetExposureTime" }

// SetAnalogGain requests a new analog gain.
type SetAnalogGain struct {
	hwCommand
	Gain float64
}

func NewSetAnalogGain(gain float64) SetAnalogGain {
	return SetAnalogGain{hwCommand: stampedHW(), Gain: gain}
}

func (SetAnalogGain) EventName() string { return "SetAnalogGain" }

// SetROI requests a new sensor region of interest.
type SetROI struct {
	hwCommand
	X, Y, Width, Height int
}

func NewSetROI(x, y, w, h int) SetROI {
	return SetROI{hwCommand: stampedHW(), X: x, Y: y, Width: w, Height: h}
}

func (SetROI) EventName() string { return "SetROI" }

// SetBinning requests a new binning factor.
type SetBinning struct {
	hwCommand
	X, Y int
}

func NewSetBinning(x, y int) SetBinning {
	return SetBinning{hwCommand: stampedHW(), X: x, Y: y}
}

func (SetBinning) EventName() string { return "SetBinning" }

// SetPixelFormat requests a new pixel format.
type SetPixelFormat struct {
	hwCommand
	Format string
}

func NewSetPixelFormat(format string) SetPixelFormat {
	return SetPixelFormat{hwCommand: stampedHW(), Format: format}
}

func (SetPixelFormat) EventName() string { return "SetPixelFormat" }

// SetTriggerMode selects software, hardware or continuous triggering.
type SetTriggerMode struct {
	hwCommand
	Mode string
}

func NewSetTriggerMode(mode string) SetTriggerMode {
	return SetTriggerMode{hwCommand: stampedHW(), Mode: mode}
}

func (SetTriggerMode) EventName() string { return "SetTriggerMode" }

// SetTriggerFPS sets the software trigger rate.
type SetTriggerFPS struct {
	hwCommand
	FPS float64
}

func NewSetTriggerFPS(fps float64) SetTriggerFPS {
	return SetTriggerFPS{hwCommand: stampedHW(), FPS: fps}
}

func (SetTriggerFPS) EventName() string { return "SetTriggerFPS" }
