package service

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/domain/hardware"
)

// TriggerFPSRange bounds the software trigger rate.
var TriggerFPSRange = hardware.Range{Min: 0.1, Max: 200}

// CameraState is a consistent snapshot of the camera settings.
type CameraState struct {
	ExposureMs  float64
	AnalogGain  float64
	ROI         hardware.ROI
	BinningX    int
	BinningY    int
	PixelFormat hardware.PixelFormat
	TriggerMode hardware.TriggerMode
	TriggerFPS  float64
	Streaming   bool
}

// CameraService owns the camera.
type CameraService struct {
	base
	cam   hardware.Camera
	state CameraState

	cbMu    sync.RWMutex
	onFrame hardware.FrameCallback
}

// NewCameraService wraps cam, subscribes to camera commands and publishes
// the initial settings.
func NewCameraService(cam hardware.Camera, cfg Config) *CameraService {
	s := &CameraService{cam: cam}
	s.init(cfg, "camera_service")

	bx, by := cam.Binning()
	s.state = CameraState{
		ExposureMs:  cam.ExposureTime(),
		AnalogGain:  cam.AnalogGain(),
		ROI:         cam.ROI(),
		BinningX:    bx,
		BinningY:    by,
		PixelFormat: cam.PixelFormat(),
		TriggerMode: cam.TriggerMode(),
		TriggerFPS:  10,
		Streaming:   cam.IsStreaming(),
	}
	cam.SetFrameCallback(s.dispatchFrame)

	handle(&s.base, func(c command.SetExposureTime) error {
		_, err := s.SetExposureTime(c.ExposureMs)
		return err
	})
	handle(&s.base, func(c command.SetAnalogGain) error {
		_, err := s.SetAnalogGain(c.Gain)
		return err
	})
	handle(&s.base, func(c command.SetROI) error {
		_, err := s.SetROI(hardware.ROI{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height})
		return err
	})
	handle(&s.base, func(c command.SetBinning) error { return s.SetBinning(c.X, c.Y) })
	handle(&s.base, func(c command.SetPixelFormat) error { return s.SetPixelFormat(hardware.PixelFormat(c.Format)) })
	handle(&s.base, func(c command.SetTriggerMode) error { return s.SetTriggerMode(hardware.TriggerMode(c.Mode)) })
	handle(&s.base, func(c command.SetTriggerFPS) error {
		s.SetTriggerFPS(c.FPS)
		return nil
	})

	st := s.State()
	s.publish(event.NewExposureTimeChanged(st.ExposureMs))
	s.publish(event.NewAnalogGainChanged(st.AnalogGain))
	s.publish(event.NewBinningChanged(st.BinningX, st.BinningY))
	s.publish(event.NewPixelFormatChanged(string(st.PixelFormat)))
	s.publish(event.NewTriggerModeChanged(string(st.TriggerMode)))

	return s
}

// State returns a snapshot of the camera settings.
func (s *CameraService) State() CameraState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetExposureTime applies a clamped exposure and returns the applied value.
func (s *CameraService) SetExposureTime(ms float64) (float64, error) {
	s.mu.Lock()
	v := s.cam.ExposureLimits().Clamp(ms)
	if err := s.cam.SetExposureTime(v); err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("set exposure: %w", err)
	}
	s.state.ExposureMs = v
	s.mu.Unlock()

	s.publish(event.NewExposureTimeChanged(v))
	return v, nil
}

// SetAnalogGain applies a clamped gain and returns the applied value.
func (s *CameraService) SetAnalogGain(gain float64) (float64, error) {
	s.mu.Lock()
	v := s.cam.GainLimits().Clamp(gain)
	if err := s.cam.SetAnalogGain(v); err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("set gain: %w", err)
	}
	s.state.AnalogGain = v
	s.mu.Unlock()

	s.publish(event.NewAnalogGainChanged(v))
	return v, nil
}

// SetROI applies a region of interest clamped to the sensor.
func (s *CameraService) SetROI(roi hardware.ROI) (hardware.ROI, error) {
	s.mu.Lock()
	w, h := s.cam.SensorSize()
	r := hardware.ROI{
		X: hardware.ClampInt(roi.X, 0, w-1),
		Y: hardware.ClampInt(roi.Y, 0, h-1),
	}
	r.Width = hardware.ClampInt(roi.Width, 1, w-r.X)
	r.Height = hardware.ClampInt(roi.Height, 1, h-r.Y)
	if err := s.cam.SetROI(r); err != nil {
		s.mu.Unlock()
		return hardware.ROI{}, fmt.Errorf("set roi: %w", err)
	}
	s.state.ROI = r
	s.mu.Unlock()

	s.publish(event.NewROIChanged(r.X, r.Y, r.Width, r.Height))
	return r, nil
}

// SetBinning applies a binning factor clamped to what the sensor supports.
func (s *CameraService) SetBinning(x, y int) error {
	s.mu.Lock()
	maxBin := s.cam.MaxBinning()
	bx, by := hardware.ClampInt(x, 1, maxBin), hardware.ClampInt(y, 1, maxBin)
	if err := s.cam.SetBinning(bx, by); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("set binning: %w", err)
	}
	s.state.BinningX, s.state.BinningY = bx, by
	s.mu.Unlock()

	s.publish(event.NewBinningChanged(bx, by))
	return nil
}

// SetPixelFormat applies a pixel format. Unsupported formats are rejected
// without touching the camera.
func (s *CameraService) SetPixelFormat(f hardware.PixelFormat) error {
	s.mu.Lock()
	if !slices.Contains(s.cam.PixelFormats(), f) {
		s.mu.Unlock()
		return fmt.Errorf("unsupported pixel format %q", f)
	}
	if err := s.cam.SetPixelFormat(f); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("set pixel format: %w", err)
	}
	s.state.PixelFormat = f
	s.mu.Unlock()

	s.publish(event.NewPixelFormatChanged(string(f)))
	return nil
}

// SetTriggerMode selects software, hardware or continuous triggering.
func (s *CameraService) SetTriggerMode(m hardware.TriggerMode) error {
	switch m {
	case hardware.TriggerSoftware, hardware.TriggerHardware, hardware.TriggerContinuous:
	default:
		return fmt.Errorf("unknown trigger mode %q", m)
	}

	s.mu.Lock()
	if err := s.cam.SetTriggerMode(m); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("set trigger mode: %w", err)
	}
	s.state.TriggerMode = m
	s.mu.Unlock()

	s.publish(event.NewTriggerModeChanged(string(m)))
	return nil
}

// SetTriggerFPS records the software trigger rate used by live preview.
func (s *CameraService) SetTriggerFPS(fps float64) float64 {
	v := TriggerFPSRange.Clamp(fps)
	s.mu.Lock()
	s.state.TriggerFPS = v
	s.mu.Unlock()

	s.publish(event.NewTriggerFPSChanged(v))
	return v
}

// StartStreaming enables frame delivery.
func (s *CameraService) StartStreaming() error {
	s.mu.Lock()
	if s.state.Streaming {
		s.mu.Unlock()
		return nil
	}
	if err := s.cam.StartStreaming(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("start streaming: %w", err)
	}
	s.state.Streaming = true
	s.mu.Unlock()

	s.publish(event.NewStreamingChanged(true))
	return nil
}

// StopStreaming disables frame delivery. It always reaches the camera so it
// can be used to force a safe state.
func (s *CameraService) StopStreaming() error {
	s.mu.Lock()
	err := s.cam.StopStreaming()
	if err == nil {
		s.state.Streaming = false
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("stop streaming: %w", err)
	}
	s.publish(event.NewStreamingChanged(false))
	return nil
}

// SendTrigger starts one exposure.
func (s *CameraService) SendTrigger() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cam.SendTrigger(); err != nil {
		return fmt.Errorf("send trigger: %w", err)
	}
	return nil
}

// ReadFrame waits up to timeout for the next frame.
func (s *CameraService) ReadFrame(timeout time.Duration) (hardware.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.cam.ReadFrame(timeout)
	if err != nil {
		return hardware.Frame{}, fmt.Errorf("read frame: %w", err)
	}
	return f, nil
}

// SetFrameCallback routes driver frames to fn. The callback may run on a
// driver goroutine.
func (s *CameraService) SetFrameCallback(fn hardware.FrameCallback) {
	s.cbMu.Lock()
	s.onFrame = fn
	s.cbMu.Unlock()
}

func (s *CameraService) dispatchFrame(f hardware.Frame) {
	s.cbMu.RLock()
	fn := s.onFrame
	s.cbMu.RUnlock()
	if fn != nil {
		fn(f)
	}
}
