package event

// ExposureTimeChanged is published after the camera applied an exposure.
type ExposureTimeChanged struct {
	Meta
	ExposureMs float64
}

func NewExposureTimeChanged(ms float64) ExposureTimeChanged {
	return ExposureTimeChanged{Meta: Stamp(), ExposureMs: ms}
}

func (ExposureTimeChanged) EventName() string { return "ExposureTimeChanged" }

// AnalogGainChanged is published after the camera applied a gain.
type AnalogGainChanged struct {
	Meta
	Gain float64
}

func NewAnalogGainChanged(gain float64) AnalogGainChanged {
	return AnalogGainChanged{Meta: Stamp(), Gain: gain}
}

func (AnalogGainChanged) EventName() string { return "AnalogGainChanged" }

// ROIChanged is published after the camera region of interest changed.
type ROIChanged struct {
	Meta
	X, Y, Width, Height int
}

func NewROIChanged(x, y, w, h int) ROIChanged {
	return ROIChanged{Meta: Stamp(), X: x, Y: y, Width: w, Height: h}
}

func (ROIChanged) EventName() string { return "ROIChanged" }

// BinningChanged is published after the camera binning changed.
type BinningChanged struct {
	Meta
	X, Y int
}

func NewBinningChanged(x, y int) BinningChanged {
	return BinningChanged{Meta: Stamp(), X: x, Y: y}
}

func (BinningChanged) EventName() string { return "BinningChanged" }

// PixelFormatChanged is published after the camera pixel format changed.
type PixelFormatChanged struct {
	Meta
	Format string
}

func NewPixelFormatChanged(format string) PixelFormatChanged {
	return PixelFormatChanged{Meta: Stamp(), Format: format}
}

func (PixelFormatChanged) EventName() string { return "PixelFormatChanged" }

// TriggerModeChanged is published after the camera trigger mode changed.
type TriggerModeChanged struct {
	Meta
	Mode string
}

func NewTriggerModeChanged(mode string) TriggerModeChanged {
	return TriggerModeChanged{Meta: Stamp(), Mode: mode}
}

func (TriggerModeChanged) EventName() string { return "TriggerModeChanged" }

// TriggerFPSChanged is published after the software trigger rate changed.
type TriggerFPSChanged struct {
	Meta
	FPS float64
}

func NewTriggerFPSChanged(fps float64) TriggerFPSChanged {
	return TriggerFPSChanged{Meta: Stamp(), FPS: fps}
}

func (TriggerFPSChanged) EventName() string { return "TriggerFPSChanged" }

// StreamingChanged is published when camera streaming starts or stops.
type StreamingChanged struct {
	Meta
	Streaming bool
}

func NewStreamingChanged(streaming bool) StreamingChanged {
	return StreamingChanged{Meta: Stamp(), Streaming: streaming}
}

func (StreamingChanged) EventName() string { return "StreamingChanged" }
