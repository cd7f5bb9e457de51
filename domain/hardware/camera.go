package hardware

import "time"

// PixelFormat names a sensor pixel format.
type PixelFormat string

const (
	PixelMono8  PixelFormat = "MONO8"
	PixelMono12 PixelFormat = "MONO12"
	PixelMono16 PixelFormat = "MONO16"
)

// TriggerMode selects how exposures are started.
type TriggerMode string

const (
	TriggerSoftware   TriggerMode = "Software"
	TriggerHardware   TriggerMode = "Hardware"
	TriggerContinuous TriggerMode = "Continuous"
)

// ROI is a sensor region of interest in unbinned pixels.
type ROI struct {
	X, Y, Width, Height int
}

// Frame is one image read from the camera. Pixels are row-major.
type Frame struct {
	ID        int64
	Width     int
	Height    int
	Format    PixelFormat
	Pixels    []uint16
	Timestamp time.Time
}

// FrameCallback receives frames from the driver, possibly on a driver goroutine.
type FrameCallback func(Frame)

// Camera is a scientific camera.
type Camera interface {
	SetExposureTime(ms float64) error
	ExposureTime() float64
	ExposureLimits() Range

	SetAnalogGain(gain float64) error
	AnalogGain() float64
	GainLimits() Range

	SetROI(roi ROI) error
	ROI() ROI
	SensorSize() (width, height int)

	SetBinning(x, y int) error
	Binning() (x, y int)
	MaxBinning() int

	SetPixelFormat(f PixelFormat) error
	PixelFormat() PixelFormat
	PixelFormats() []PixelFormat

	SetTriggerMode(m TriggerMode) error
	TriggerMode() TriggerMode

	SetFrameCallback(fn FrameCallback)
	StartStreaming() error
	StopStreaming() error
	IsStreaming() bool

	SendTrigger() error
	ReadFrame(timeout time.Duration) (Frame, error)
}
