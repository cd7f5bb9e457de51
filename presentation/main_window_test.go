package presentation

import (
	"context"
	"strings"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"

	"squid-go/core/state"
	"squid-go/domain/hardware"
)

func newTestWindow(t *testing.T) (*MainWindow, *UIEventBridge) {
	t.Helper()
	c := newTestCoordinator(t)
	b := newTestBridge(t, c)
	a := test.NewTempApp(t)
	w := NewMainWindow(&MainWindowConfig{App: a, Bridge: b, Stream: c.Stream, Run: direct})
	t.Cleanup(w.Cleanup)
	return w, b
}

func TestMainWindow_InitialState(t *testing.T) {
	w, _ := newTestWindow(t)

	if w.channelSelect.Selected != "BF LED matrix full" {
		t.Errorf("channel = %q", w.channelSelect.Selected)
	}
	if w.objectiveSelect.Selected != "4x" {
		t.Errorf("objective = %q", w.objectiveSelect.Selected)
	}
	if w.modeLabel.Text != state.ModeIdle.String() {
		t.Errorf("mode label = %q", w.modeLabel.Text)
	}
	if !w.pauseBtn.Disabled() || !w.stopBtn.Disabled() {
		t.Error("pause and stop should start disabled")
	}
}

func TestMainWindow_FollowsStateEvents(t *testing.T) {
	w, b := newTestWindow(t)

	b.SetExposure(25)
	b.Jog(hardware.AxisX, 1)
	syncBus(t, b.coordinator)

	if w.exposureEntry.Text != "25" {
		t.Errorf("exposure entry = %q, want 25", w.exposureEntry.Text)
	}
	if !strings.HasPrefix(w.positionLabel.Text, "X 1.000") {
		t.Errorf("position label = %q", w.positionLabel.Text)
	}
}

func TestMainWindow_RunsTemplate(t *testing.T) {
	w, b := newTestWindow(t)

	w.templateSelect.SetSelected("wellplate-96-brightfield")
	test.Tap(w.startBtn)
	syncBus(t, b.coordinator)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.coordinator.Acquisition.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	syncBus(t, b.coordinator)
	if err := b.coordinator.Stream.Sync(ctx); err != nil {
		t.Fatalf("Stream.Sync() error = %v", err)
	}

	if !strings.HasPrefix(w.statusLabel.Text, "Completed, 16 images") {
		t.Errorf("status = %q", w.statusLabel.Text)
	}
	if w.progressBar.Value != 100 {
		t.Errorf("progress = %v, want 100", w.progressBar.Value)
	}
	if !w.pauseBtn.Disabled() || w.startBtn.Disabled() {
		t.Error("controls not reset after the run")
	}
	if w.live.Frames() == 0 {
		t.Error("live view received no frames")
	}
}

func TestMainWindow_SetsLaserAFReference(t *testing.T) {
	w, b := newTestWindow(t)

	if w.afReferenceBtn.Disabled() {
		t.Fatal("AF reference button should be enabled on a rig with laser AF")
	}
	if b.coordinator.Laser.HasReference() {
		t.Fatal("reference set before the button was tapped")
	}

	test.Tap(w.afReferenceBtn)
	syncBus(t, b.coordinator)

	if !b.coordinator.Laser.HasReference() {
		t.Error("laser AF reference not set")
	}
}
