package presentation

import (
	"testing"

	"squid-go/application/stream"
	"squid-go/domain/hardware"
)

func TestFrameImage_Stretch(t *testing.T) {
	f := hardware.Frame{Width: 2, Height: 2, Pixels: []uint16{100, 200, 300, 100}}
	img := FrameImage(f)
	if img == nil {
		t.Fatal("FrameImage() = nil")
	}
	want := []uint8{0, 127, 255, 0}
	for i, v := range want {
		if img.Pix[i] != v {
			t.Errorf("Pix[%d] = %d, want %d", i, img.Pix[i], v)
		}
	}
}

func TestFrameImage_Flat(t *testing.T) {
	img := FrameImage(hardware.Frame{Width: 1, Height: 2, Pixels: []uint16{7, 7}})
	if img == nil || img.Pix[0] != 0 || img.Pix[1] != 0 {
		t.Errorf("flat frame not black: %v", img)
	}
}

func TestFrameImage_Malformed(t *testing.T) {
	if FrameImage(hardware.Frame{Width: 4, Height: 4, Pixels: make([]uint16, 3)}) != nil {
		t.Error("short frame should give nil")
	}
	if FrameImage(hardware.Frame{}) != nil {
		t.Error("empty frame should give nil")
	}
}

func TestLiveView_CoalescesRepaints(t *testing.T) {
	var queued []func()
	v := NewLiveView(func(fn func()) { queued = append(queued, fn) })

	for i := 0; i < 3; i++ {
		px := uint16(i)
		v.OnFrame(hardware.Frame{ID: int64(i), Width: 1, Height: 2, Pixels: []uint16{0, px + 1}},
			stream.CaptureInfo{Channel: "BF", ZIndex: i})
	}

	if len(queued) != 1 {
		t.Fatalf("queued repaints = %d, want 1", len(queued))
	}
	queued[0]()

	if v.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", v.Frames())
	}
	if v.LastInfo().ZIndex != 2 {
		t.Errorf("LastInfo().ZIndex = %d, want 2", v.LastInfo().ZIndex)
	}
	if b := v.Image().Bounds(); b.Dx() != 1 || b.Dy() != 2 {
		t.Errorf("image bounds = %v", b)
	}

	v.OnFrame(hardware.Frame{Width: 1, Height: 1, Pixels: []uint16{1}}, stream.CaptureInfo{})
	if len(queued) != 2 {
		t.Errorf("queued repaints after paint = %d, want 2", len(queued))
	}
}
