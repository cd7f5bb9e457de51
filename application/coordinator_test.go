package application

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"squid-go/core/command"
	"squid-go/core/event"
	"squid-go/core/eventbus"
	"squid-go/core/state"
	"squid-go/domain/experiment"
	"squid-go/domain/plan"
	"squid-go/infrastructure/simulated"
	"squid-go/resources"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newCoordinator(t *testing.T, outputDir string) (*Coordinator, *simulated.Rig) {
	t.Helper()
	rig := simulated.NewRig()
	cfg := DefaultCoordinatorConfig()
	cfg.Hardware = SimulatedHardware(rig)
	cfg.Resources = resources.Files
	cfg.OutputDir = outputDir
	cfg.Acquisition.FrameTimeout = time.Second
	cfg.Acquisition.PauseInterval = 5 * time.Millisecond

	c, err := NewCoordinator(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c, rig
}

func syncBus(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Bus.Sync(ctx))
}

func TestNewCoordinator_LoadsResources(t *testing.T) {
	c, _ := newCoordinator(t, "")

	assert.Equal(t, 5, c.Registry.Count())
	assert.Equal(t, []string{"timelapse-fluorescence", "wellplate-96-brightfield"}, c.Templates())
	assert.NotNil(t, c.Laser)
	assert.Nil(t, c.Images)

	obj, ok := c.Peripherals.Objective()
	require.True(t, ok)
	assert.Equal(t, "4x", obj.Name)

	active, ok := c.Mode.Active()
	require.True(t, ok)
	assert.Equal(t, "BF LED matrix full", active.Name)
}

func TestNewCoordinator_RequiresCoreDevices(t *testing.T) {
	cfg := DefaultCoordinatorConfig()
	cfg.Hardware.Camera = nil
	_, err := NewCoordinator(cfg)
	assert.Error(t, err)
}

func TestNewCoordinator_BadResources(t *testing.T) {
	cfg := DefaultCoordinatorConfig()
	cfg.Resources = fstest.MapFS{"channels.yaml": {Data: []byte("channels: [")}}
	_, err := NewCoordinator(cfg)
	assert.Error(t, err)
}

func TestCoordinator_BuildPlan(t *testing.T) {
	c, _ := newCoordinator(t, "")

	p, err := c.BuildPlan("wellplate-96-brightfield")
	require.NoError(t, err)
	assert.Len(t, p.Regions, 4)
	assert.Equal(t, 16, p.TotalFOVs())

	optics := c.Optics()
	assert.InDelta(t, optics.FOVWidthMM, p.FOVWidthMM, 1e-12)
	assert.Greater(t, optics.FOVWidthMM, 0.0)

	_, err = c.BuildPlan("missing")
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestCoordinator_DispatchReachesService(t *testing.T) {
	c, _ := newCoordinator(t, "")

	c.Dispatch(command.NewSetExposureTime(42))
	syncBus(t, c)
	assert.InDelta(t, 42, c.Camera.State().ExposureMs, 1e-9)

	c.Gate.Set(state.ModeAcquiring, "test")
	c.Dispatch(command.NewSetExposureTime(7))
	syncBus(t, c)
	assert.InDelta(t, 42, c.Camera.State().ExposureMs, 1e-9)
}

func TestCoordinator_StartTemplate(t *testing.T) {
	dir := t.TempDir()
	c, rig := newCoordinator(t, dir)

	id, err := c.StartTemplate("wellplate-96-brightfield")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Acquisition.Wait(ctx))

	exp, err := c.Experiments.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, experiment.StateCompleted, exp.State)
	assert.Equal(t, 16, exp.CapturedImages)

	captures, err := c.Experiments.Captures(ctx, id)
	require.NoError(t, err)
	require.Len(t, captures, 16)
	for _, capture := range captures {
		require.NotEmpty(t, capture.File)
		_, err := os.Stat(capture.File)
		assert.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, id), filepath.Dir(filepath.Dir(capture.File)))
	}

	assert.False(t, rig.Illumination.AnyOn())
	assert.False(t, rig.Camera.IsStreaming())
	assert.Equal(t, state.ModeIdle, c.Gate.Mode())
}

func TestCoordinator_StopIsIdempotent(t *testing.T) {
	c, _ := newCoordinator(t, "")
	c.Stop()
	c.Stop()
}

func TestCoordinator_Status(t *testing.T) {
	c, _ := newCoordinator(t, "")

	s := c.Status()
	assert.Equal(t, state.ModeIdle.String(), s.Mode)
	assert.Equal(t, state.StateIdle.String(), s.Acquisition)
	assert.Equal(t, "BF LED matrix full", s.Channel)
	assert.Equal(t, "4x", s.Objective)
	assert.False(t, s.Live)
	assert.Greater(t, s.PixelSizeUm, 0.0)
}

func TestCoordinator_LaserAutofocusAfterReferenceCommand(t *testing.T) {
	c, rig := newCoordinator(t, t.TempDir())
	require.NotNil(t, c.LaserAF)

	var mu sync.Mutex
	var completed []event.AutofocusCompleted
	eventbus.Subscribe(c.Bus, func(e event.AutofocusCompleted) {
		mu.Lock()
		completed = append(completed, e)
		mu.Unlock()
	})

	c.Dispatch(command.NewSetLaserAFReference())
	syncBus(t, c)
	require.True(t, c.Laser.HasReference())
	require.Equal(t, 1, rig.Log.Count("laseraf", "Measure"))

	p, err := c.BuildPlan("wellplate-96-brightfield")
	require.NoError(t, err)
	p.Autofocus = plan.Autofocus{Mode: plan.AutofocusLaser}
	fovs := 0
	for _, r := range p.Regions {
		fovs += len(r.FOVs)
	}

	_, err = c.Acquisition.Start(p)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Acquisition.Wait(ctx))
	syncBus(t, c)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, completed, fovs)
	for _, e := range completed {
		assert.Equal(t, "laser", e.Method)
		assert.True(t, e.Success)
	}
	assert.Greater(t, rig.Log.Count("laseraf", "Measure"), fovs)
}

func TestCoordinator_LaserReferenceIgnoredWhileAcquiring(t *testing.T) {
	c, _ := newCoordinator(t, t.TempDir())
	c.Gate.Set(state.ModeAcquiring, "test")

	c.Dispatch(command.NewSetLaserAFReference())
	syncBus(t, c)

	assert.False(t, c.Laser.HasReference())
}
