package presentation

import (
	"image"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"squid-go/application/stream"
	"squid-go/domain/hardware"
)

// LiveView displays frames delivered by the stream handler. Frames arriving
// faster than the UI repaints replace each other; only the newest is drawn.
type LiveView struct {
	widget.BaseWidget
	image *canvas.Image
	run   func(func())

	mu      sync.Mutex
	pending *image.Gray
	posted  bool
	info    stream.CaptureInfo
	frames  int64
}

// NewLiveView creates a live view. run posts work to the UI goroutine; nil
// selects fyne.Do.
func NewLiveView(run func(func())) *LiveView {
	if run == nil {
		run = fyne.Do
	}
	v := &LiveView{
		image: canvas.NewImageFromImage(image.NewGray(image.Rect(0, 0, 1, 1))),
		run:   run,
	}
	v.image.FillMode = canvas.ImageFillContain
	v.image.ScaleMode = canvas.ImageScaleFastest
	v.image.SetMinSize(fyne.NewSize(480, 480))
	v.ExtendBaseWidget(v)
	return v
}

// CreateRenderer implements fyne.Widget.
func (v *LiveView) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(v.image)
}

// InitDisplay sizes the backing image before the first frame.
func (v *LiveView) InitDisplay(width, height int) {
	v.run(func() {
		v.image.Image = image.NewGray(image.Rect(0, 0, width, height))
		v.image.Refresh()
	})
}

// OnFrame converts a frame and schedules a repaint.
func (v *LiveView) OnFrame(frame hardware.Frame, info stream.CaptureInfo) {
	img := FrameImage(frame)
	if img == nil {
		return
	}

	v.mu.Lock()
	v.pending = img
	v.info = info
	v.frames++
	if v.posted {
		v.mu.Unlock()
		return
	}
	v.posted = true
	v.mu.Unlock()

	v.run(v.paint)
}

func (v *LiveView) paint() {
	v.mu.Lock()
	img := v.pending
	v.pending = nil
	v.posted = false
	v.mu.Unlock()

	if img == nil {
		return
	}
	v.image.Image = img
	v.image.Refresh()
}

// Image returns the image currently shown.
func (v *LiveView) Image() image.Image {
	return v.image.Image
}

// LastInfo returns the capture info of the newest frame.
func (v *LiveView) LastInfo() stream.CaptureInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.info
}

// Frames returns how many frames were received.
func (v *LiveView) Frames() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frames
}

// FrameImage converts a 16-bit frame to an 8-bit grey image, stretching the
// frame's own range to full scale. It returns nil for malformed frames.
func FrameImage(f hardware.Frame) *image.Gray {
	if f.Width <= 0 || f.Height <= 0 || len(f.Pixels) < f.Width*f.Height {
		return nil
	}
	n := f.Width * f.Height
	lo, hi := f.Pixels[0], f.Pixels[0]
	for _, p := range f.Pixels[:n] {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}

	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	span := uint32(hi - lo)
	for i, p := range f.Pixels[:n] {
		if span == 0 {
			img.Pix[i] = 0
			continue
		}
		img.Pix[i] = uint8(uint32(p-lo) * 255 / span)
	}
	return img
}

var (
	_ stream.Sink        = (*LiveView)(nil)
	_ stream.Initializer = (*LiveView)(nil)
)
