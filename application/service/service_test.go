package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/core/eventbus"
	"squid-go/core/state"
	"squid-go/domain/hardware"
	"squid-go/infrastructure/simulated"
)

type fixture struct {
	bus  eventbus.EventBus
	gate *ModeGate
	rig  *simulated.Rig
	cfg  Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := eventbus.New(eventbus.DefaultConfig())
	t.Cleanup(bus.Close)
	gate := NewModeGate(bus, nil)
	return &fixture{
		bus:  bus,
		gate: gate,
		rig:  simulated.NewRig(),
		cfg:  Config{EventBus: bus, Gate: gate},
	}
}

func (f *fixture) sync(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.bus.Sync(ctx))
}

// recorder collects every event of type T delivered by the bus.
type recorder[T event.Event] struct {
	mu     sync.Mutex
	events []T
}

func record[T event.Event](bus eventbus.EventBus) *recorder[T] {
	r := &recorder[T]{}
	eventbus.Subscribe(bus, func(e T) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.events...)
}

func (r *recorder[T]) last(t *testing.T) T {
	t.Helper()
	all := r.all()
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

func TestCameraService_ClampsExposure(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"in range", 25, 25},
		{"above max", 10000, 5000},
		{"below min", -4, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			svc := NewCameraService(f.rig.Camera, f.cfg)
			defer svc.Shutdown()
			changes := record[event.ExposureTimeChanged](f.bus)

			f.bus.Publish(command.NewSetExposureTime(tt.in))
			f.sync(t)

			assert.Equal(t, tt.want, changes.last(t).ExposureMs)
			calls := f.rig.Log.Filter("camera", "SetExposureTime")
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0].Value)
			assert.Equal(t, tt.want, svc.State().ExposureMs)
		})
	}
}

func TestCameraService_ClampsGainAndROI(t *testing.T) {
	f := newFixture(t)
	svc := NewCameraService(f.rig.Camera, f.cfg)
	defer svc.Shutdown()

	gain, err := svc.SetAnalogGain(99)
	require.NoError(t, err)
	assert.Equal(t, 24.0, gain)

	roi, err := svc.SetROI(hardware.ROI{X: 60, Y: -5, Width: 100, Height: 10})
	require.NoError(t, err)
	assert.Equal(t, hardware.ROI{X: 60, Y: 0, Width: 4, Height: 10}, roi)
}

func TestCameraService_RejectsUnsupportedPixelFormat(t *testing.T) {
	f := newFixture(t)
	svc := NewCameraService(f.rig.Camera, f.cfg)
	defer svc.Shutdown()

	err := svc.SetPixelFormat("RGB32")
	assert.Error(t, err)
	assert.Equal(t, hardware.PixelMono16, svc.State().PixelFormat)
}

func TestCameraService_SerializesConcurrentCalls(t *testing.T) {
	f := newFixture(t)
	f.rig.Camera.SetLatency(time.Millisecond)
	svc := NewCameraService(f.rig.Camera, f.cfg)
	defer svc.Shutdown()

	var wg sync.WaitGroup
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := svc.SetExposureTime(float64(10 + g*100 + i))
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 0, f.rig.Camera.Overlaps())
	assert.Equal(t, 40, f.rig.Log.Count("camera", "SetExposureTime"))
}

func TestCameraService_PublishesAfterUnlock(t *testing.T) {
	f := newFixture(t)
	svc := NewCameraService(f.rig.Camera, f.cfg)
	defer svc.Shutdown()

	// The handler reads service state from the dispatch goroutine while the
	// direct call below also runs there, so the publish is delivered inline.
	var seen float64
	eventbus.Subscribe(f.bus, func(e event.ExposureTimeChanged) {
		seen = svc.State().ExposureMs
	})
	eventbus.Subscribe(f.bus, func(e pokeEvent) {
		_, _ = svc.SetExposureTime(42)
	})

	f.bus.Publish(pokeEvent{})
	f.sync(t)
	assert.Equal(t, 42.0, seen)
}

type pokeEvent struct{}

func (pokeEvent) EventName() string { return "poke" }

func TestCameraService_StreamingAndFrames(t *testing.T) {
	f := newFixture(t)
	svc := NewCameraService(f.rig.Camera, f.cfg)
	defer svc.Shutdown()

	var got []hardware.Frame
	svc.SetFrameCallback(func(fr hardware.Frame) { got = append(got, fr) })

	require.Error(t, svc.SendTrigger())
	require.NoError(t, svc.StartStreaming())
	require.NoError(t, svc.SendTrigger())

	frame, err := svc.ReadFrame(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 64, frame.Width)
	require.Len(t, got, 1)
	assert.Equal(t, frame.ID, got[0].ID)

	require.NoError(t, svc.StopStreaming())
	assert.False(t, svc.State().Streaming)
}

func TestService_GateBlocksHardwareCommands(t *testing.T) {
	f := newFixture(t)
	cam := NewCameraService(f.rig.Camera, f.cfg)
	defer cam.Shutdown()
	stage := NewStageService(f.rig.Stage, DefaultStageConfig(f.cfg))
	defer stage.Shutdown()

	f.gate.Set(state.ModeAcquiring, "test")
	f.bus.Publish(command.NewSetExposureTime(50))
	f.bus.Publish(command.NewMoveStageTo(hardware.AxisX, 10))
	f.sync(t)

	assert.Equal(t, 0, f.rig.Log.Count("camera", "SetExposureTime"))
	assert.Equal(t, 0, f.rig.Log.Count("stage", "MoveAbsolute"))

	// direct calls from the acquisition worker still work
	_, err := cam.SetExposureTime(50)
	require.NoError(t, err)

	f.gate.Set(state.ModeIdle, "test")
	f.bus.Publish(command.NewMoveStageTo(hardware.AxisX, 10))
	f.sync(t)
	assert.Equal(t, 1, f.rig.Log.Count("stage", "MoveAbsolute"))
}

func TestService_ShutdownIsIdempotent(t *testing.T) {
	f := newFixture(t)
	svc := NewCameraService(f.rig.Camera, f.cfg)

	svc.Shutdown()
	svc.Shutdown()

	f.bus.Publish(command.NewSetExposureTime(50))
	f.sync(t)
	assert.Equal(t, 0, f.rig.Log.Count("camera", "SetExposureTime"))
}

func TestStageService_ClampsToLimits(t *testing.T) {
	f := newFixture(t)
	positions := record[event.StagePositionChanged](f.bus)
	svc := NewStageService(f.rig.Stage, DefaultStageConfig(f.cfg))
	defer svc.Shutdown()

	f.bus.Publish(command.NewMoveStageTo(hardware.AxisX, 500))
	f.sync(t)

	calls := f.rig.Log.Filter("stage", "MoveAbsolute")
	require.Len(t, calls, 1)
	assert.Equal(t, 120.0, calls[0].Value)
	assert.Equal(t, 120.0, positions.last(t).XMM)

	require.NoError(t, svc.MoveRelative(hardware.AxisX, 30))
	assert.Equal(t, 120.0, svc.Position().X)

	require.NoError(t, svc.MoveRelative(hardware.AxisY, -10))
	assert.Equal(t, 0.0, svc.Position().Y)
}

func TestStageService_LoadingPositionLowersZFirst(t *testing.T) {
	f := newFixture(t)
	svc := NewStageService(f.rig.Stage, DefaultStageConfig(f.cfg))
	defer svc.Shutdown()

	require.NoError(t, svc.MoveToXY(50, 40))
	require.NoError(t, svc.MoveTo(hardware.AxisZ, 2))
	f.rig.Log.Reset()

	require.NoError(t, svc.MoveToLoadingPosition())
	calls := f.rig.Log.Filter("stage", "MoveAbsolute")
	require.Len(t, calls, 3)
	assert.Equal(t, "z", calls[0].Text)
	assert.Equal(t, "x", calls[1].Text)
	assert.Equal(t, "y", calls[2].Text)
}

func TestStageService_WaitTimeout(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultStageConfig(f.cfg)
	cfg.WaitTimeout = 20 * time.Millisecond
	svc := NewStageService(f.rig.Stage, cfg)
	defer svc.Shutdown()

	f.rig.Stage.SetBusy(true)
	err := svc.MoveTo(hardware.AxisX, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, hardware.ErrTimeout)
	assert.True(t, hardware.IsTransient(err))
}

func TestIlluminationService_CommandClampsAndSwitches(t *testing.T) {
	f := newFixture(t)
	changes := record[event.IlluminationStateChanged](f.bus)
	svc := NewIlluminationService(f.rig.Illumination, f.cfg)
	defer svc.Shutdown()

	f.bus.Publish(command.NewSetIllumination(11, 140, true))
	f.sync(t)

	last := changes.last(t)
	assert.Equal(t, 11, last.Source)
	assert.Equal(t, 100.0, last.Intensity)
	assert.True(t, last.On)
	assert.True(t, f.rig.Illumination.IsOn(11))

	require.NoError(t, svc.AllOff())
	assert.False(t, f.rig.Illumination.AnyOn())
	assert.Equal(t, SourceState{Intensity: 100}, svc.Source(11))
}

func TestIlluminationService_OneSnapshotPerCommand(t *testing.T) {
	f := newFixture(t)
	changes := record[event.IlluminationStateChanged](f.bus)
	svc := NewIlluminationService(f.rig.Illumination, f.cfg)
	defer svc.Shutdown()

	f.bus.Publish(command.NewSetIllumination(0, 40, true))
	f.bus.Publish(command.NewSetIllumination(0, 10, false))
	f.sync(t)

	got := changes.all()
	require.Len(t, got, 2)
	assert.Equal(t, 40.0, got[0].Intensity)
	assert.True(t, got[0].On)
	assert.Equal(t, 10.0, got[1].Intensity)
	assert.False(t, got[1].On)
	assert.Equal(t, SourceState{Intensity: 10}, svc.Source(0))
}

func TestIlluminationService_ApplySwitchFailure(t *testing.T) {
	f := newFixture(t)
	changes := record[event.IlluminationStateChanged](f.bus)
	svc := NewIlluminationService(f.rig.Illumination, f.cfg)
	defer svc.Shutdown()

	f.rig.Illumination.SetFault("TurnOn", simulated.FailAlways(errors.New("lamp fault")))
	st, err := svc.Apply(0, 55, true)
	require.Error(t, err)
	f.sync(t)

	assert.Equal(t, SourceState{Intensity: 55}, st)
	assert.False(t, f.rig.Illumination.IsOn(0))
	got := changes.all()
	require.Len(t, got, 1)
	assert.False(t, got[0].On)
	assert.Equal(t, 55.0, got[0].Intensity)
}

func TestPiezoService_Absent(t *testing.T) {
	f := newFixture(t)
	svc := NewPiezoService(nil, f.cfg)
	defer svc.Shutdown()

	assert.False(t, svc.Available())
	_, err := svc.MoveTo(10)
	assert.ErrorIs(t, err, hardware.ErrNotPresent)
	_, err = svc.Position()
	assert.ErrorIs(t, err, hardware.ErrNotPresent)

	// commands are a silent no-op
	f.bus.Publish(command.NewSetPiezoPosition(10))
	f.sync(t)
}

func TestPiezoService_ClampsAndHomes(t *testing.T) {
	f := newFixture(t)
	svc := NewPiezoService(f.rig.Piezo, f.cfg)
	defer svc.Shutdown()

	v, err := svc.MoveTo(450)
	require.NoError(t, err)
	assert.Equal(t, 300.0, v)

	v, err = svc.MoveRelative(-400)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	v, err = svc.Home()
	require.NoError(t, err)
	assert.Equal(t, 150.0, v)
}

func TestFilterService(t *testing.T) {
	f := newFixture(t)
	positions := record[event.FilterPositionChanged](f.bus)
	svc := NewFilterService(f.rig.Filter, f.cfg)
	defer svc.Shutdown()
	f.sync(t)
	require.Len(t, positions.all(), 1, "initial position published")

	f.bus.Publish(command.NewSetFilterPosition(1, 20))
	f.sync(t)
	assert.Equal(t, 8, positions.last(t).Position)

	p, err := svc.Position(1)
	require.NoError(t, err)
	assert.Equal(t, 8, p)

	require.NoError(t, svc.Home(1))
	p, _ = svc.Position(1)
	assert.Equal(t, 1, p)

	absent := NewFilterService(nil, f.cfg)
	_, err = absent.SetPosition(1, 2)
	assert.ErrorIs(t, err, hardware.ErrNotPresent)
}

func TestDACPercent(t *testing.T) {
	tests := []struct {
		in      float64
		wantPct float64
		wantRaw uint16
	}{
		{0.5, 50, 32768},
		{1, 100, 65535},
		{25, 25, 16384},
		{150, 100, 65535},
		{-3, 0, 0},
	}
	for _, tt := range tests {
		pct, raw := DACPercent(tt.in)
		assert.Equal(t, tt.wantPct, pct, "in=%v", tt.in)
		assert.Equal(t, tt.wantRaw, raw, "in=%v", tt.in)
	}
}

func TestPeripheralService(t *testing.T) {
	f := newFixture(t)
	triggers := record[event.CameraTriggerChanged](f.bus)
	svc := NewPeripheralService(f.rig.Peripheral, f.cfg)
	defer svc.Shutdown()

	f.bus.Publish(command.NewSetDAC(0, 0.5))
	f.bus.Publish(command.NewSetCameraTriggerFrequency(500))
	f.bus.Publish(command.NewStartCameraTrigger())
	f.bus.Publish(command.NewSetAFLaser(true))
	f.sync(t)

	assert.Equal(t, uint16(32768), f.rig.Peripheral.DAC(0))
	last := triggers.last(t)
	assert.True(t, last.Running)
	assert.Equal(t, 200.0, last.FPS)
	assert.True(t, svc.AFLaserOn())
	assert.True(t, f.rig.Peripheral.AFLaserOn())
}
