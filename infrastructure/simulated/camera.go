package simulated

import (
	"fmt"
	"math"
	"sync"
	"time"

	"squid-go/domain/hardware"
)

// FocusSource reports how far the sample is from focus, in micrometres.
type FocusSource interface {
	DefocusUm() float64
}

// CameraConfig configures the simulated camera.
type CameraConfig struct {
	Width, Height int
	Exposure      hardware.Range
	Gain          hardware.Range
	MaxBinning    int
}

// DefaultCameraConfig returns a small sensor suited to tests.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		Width:      64,
		Height:     64,
		Exposure:   hardware.Range{Min: 0.1, Max: 5000},
		Gain:       hardware.Range{Min: 0, Max: 24},
		MaxBinning: 4,
	}
}

// Camera is a simulated camera. Triggered frames are a checkerboard whose
// contrast falls off with defocus, so contrast autofocus has a real peak.
type Camera struct {
	instrument
	cfg   CameraConfig
	focus FocusSource

	mu        sync.Mutex
	exposure  float64
	gain      float64
	roi       hardware.ROI
	binX      int
	binY      int
	format    hardware.PixelFormat
	trigger   hardware.TriggerMode
	streaming bool
	callback  hardware.FrameCallback
	nextID    int64
	frames    chan hardware.Frame
}

var _ hardware.Camera = (*Camera)(nil)

// NewCamera creates a simulated camera. focus may be nil.
func NewCamera(cfg CameraConfig, log *CallLog, focus FocusSource) *Camera {
	c := &Camera{
		cfg:      cfg,
		focus:    focus,
		exposure: 10,
		roi:      hardware.ROI{Width: cfg.Width, Height: cfg.Height},
		binX:     1,
		binY:     1,
		format:   hardware.PixelMono16,
		trigger:  hardware.TriggerSoftware,
		frames:   make(chan hardware.Frame, 64),
	}
	c.instrument.init("camera", log)
	return c
}

func (c *Camera) SetExposureTime(ms float64) error {
	done, err := c.enter("SetExposureTime", ms, "")
	defer done()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.exposure = ms
	c.mu.Unlock()
	return nil
}

func (c *Camera) ExposureTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exposure
}

func (c *Camera) ExposureLimits() hardware.Range { return c.cfg.Exposure }

func (c *Camera) SetAnalogGain(gain float64) error {
	done, err := c.enter("SetAnalogGain", gain, "")
	defer done()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.gain = gain
	c.mu.Unlock()
	return nil
}

func (c *Camera) AnalogGain() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gain
}

func (c *Camera) GainLimits() hardware.Range { return c.cfg.Gain }

func (c *Camera) SetROI(roi hardware.ROI) error {
	done, err := c.enter("SetROI", float64(roi.Width), fmt.Sprintf("%d,%d,%d,%d", roi.X, roi.Y, roi.Width, roi.Height))
	defer done()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.roi = roi
	c.mu.Unlock()
	return nil
}

func (c *Camera) ROI() hardware.ROI {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roi
}

func (c *Camera) SensorSize() (int, int) { return c.cfg.Width, c.cfg.Height }

func (c *Camera) SetBinning(x, y int) error {
	done, err := c.enter("SetBinning", float64(x), fmt.Sprintf("%dx%d", x, y))
	defer done()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.binX, c.binY = x, y
	c.mu.Unlock()
	return nil
}

func (c *Camera) Binning() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.binX, c.binY
}

func (c *Camera) MaxBinning() int { return c.cfg.MaxBinning }

func (c *Camera) SetPixelFormat(f hardware.PixelFormat) error {
	done, err := c.enter("SetPixelFormat", 0, string(f))
	defer done()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.format = f
	c.mu.Unlock()
	return nil
}

func (c *Camera) PixelFormat() hardware.PixelFormat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

func (c *Camera) PixelFormats() []hardware.PixelFormat {
	return []hardware.PixelFormat{hardware.PixelMono8, hardware.PixelMono12, hardware.PixelMono16}
}

func (c *Camera) SetTriggerMode(m hardware.TriggerMode) error {
	done, err := c.enter("SetTriggerMode", 0, string(m))
	defer done()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.trigger = m
	c.mu.Unlock()
	return nil
}

func (c *Camera) TriggerMode() hardware.TriggerMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trigger
}

func (c *Camera) SetFrameCallback(fn hardware.FrameCallback) {
	c.mu.Lock()
	c.callback = fn
	c.mu.Unlock()
}

func (c *Camera) StartStreaming() error {
	done, err := c.enter("StartStreaming", 0, "")
	defer done()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.streaming = true
	c.mu.Unlock()
	return nil
}

func (c *Camera) StopStreaming() error {
	done, err := c.enter("StopStreaming", 0, "")
	defer done()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.streaming = false
	c.mu.Unlock()
	return nil
}

func (c *Camera) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// SendTrigger synthesizes one frame. The frame callback runs on the calling
// goroutine and the frame is also queued for ReadFrame.
func (c *Camera) SendTrigger() error {
	done, err := c.enter("SendTrigger", 0, "")
	defer done()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.streaming {
		c.mu.Unlock()
		return fmt.Errorf("camera not streaming")
	}
	c.nextID++
	frame := c.render(c.nextID)
	cb := c.callback
	c.mu.Unlock()

	select {
	case c.frames <- frame:
	default:
		// oldest frame is dropped when nobody reads
		select {
		case <-c.frames:
		default:
		}
		c.frames <- frame
	}

	if cb != nil {
		cb(frame)
	}
	return nil
}

// ReadFrame returns the oldest unread triggered frame.
func (c *Camera) ReadFrame(timeout time.Duration) (hardware.Frame, error) {
	done, err := c.enter("ReadFrame", 0, "")
	defer done()
	if err != nil {
		return hardware.Frame{}, err
	}

	select {
	case f := <-c.frames:
		return f, nil
	case <-time.After(timeout):
		return hardware.Frame{}, hardware.ErrTimeout
	}
}

// render must be called with c.mu held.
func (c *Camera) render(id int64) hardware.Frame {
	w := c.roi.Width / c.binX
	h := c.roi.Height / c.binY
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	defocus := 0.0
	if c.focus != nil {
		defocus = c.focus.DefocusUm()
	}
	amplitude := 20000 / (1 + (defocus/5)*(defocus/5))
	base := math.Min(c.exposure*50, 30000)

	pixels := make([]uint16, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := base
			if (x/4+y/4)%2 == 0 {
				v += amplitude
			}
			pixels[y*w+x] = uint16(math.Min(v, 65535))
		}
	}

	return hardware.Frame{
		ID:        id,
		Width:     w,
		Height:    h,
		Format:    c.format,
		Pixels:    pixels,
		Timestamp: time.Now(),
	}
}
