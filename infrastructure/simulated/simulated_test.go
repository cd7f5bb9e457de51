package simulated

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squid-go/domain/hardware"
)

func TestProbe_DetectsOverlap(t *testing.T) {
	cam := NewCamera(DefaultCameraConfig(), NewCallLog(), nil)
	cam.SetLatency(20 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cam.SetExposureTime(5)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, cam.Overlaps())
}

func TestProbe_FailOnCall(t *testing.T) {
	log := NewCallLog()
	st := NewStage(DefaultStageLimits(), log)
	boom := errors.New("boom")
	st.SetFault("MoveAbsolute", FailOnCall(boom, 2))

	require.NoError(t, st.MoveAbsolute(hardware.AxisX, 1))
	assert.ErrorIs(t, st.MoveAbsolute(hardware.AxisX, 2), boom)
	require.NoError(t, st.MoveAbsolute(hardware.AxisX, 3))

	assert.Equal(t, 3, log.Count("stage", "MoveAbsolute"))
	pos, _ := st.Position()
	assert.Equal(t, 3.0, pos.X)

	st.SetFault("MoveAbsolute", nil)
	require.NoError(t, st.MoveAbsolute(hardware.AxisX, 4))
}

func TestCamera_TriggerAndRead(t *testing.T) {
	cam := NewCamera(DefaultCameraConfig(), nil, nil)

	assert.Error(t, cam.SendTrigger(), "trigger without streaming")

	var got []int64
	cam.SetFrameCallback(func(f hardware.Frame) { got = append(got, f.ID) })
	require.NoError(t, cam.StartStreaming())
	require.NoError(t, cam.SendTrigger())

	f, err := cam.ReadFrame(time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.ID)
	assert.Equal(t, 64*64, len(f.Pixels))
	assert.Equal(t, []int64{1}, got)

	_, err = cam.ReadFrame(5 * time.Millisecond)
	assert.ErrorIs(t, err, hardware.ErrTimeout)
}

func TestCamera_ContrastFallsWithDefocus(t *testing.T) {
	st := NewStage(DefaultStageLimits(), nil)
	st.SetFocusZ(1)
	cam := NewCamera(DefaultCameraConfig(), nil, st)
	require.NoError(t, cam.StartStreaming())

	spread := func(z float64) int {
		require.NoError(t, st.MoveAbsolute(hardware.AxisZ, z))
		require.NoError(t, cam.SendTrigger())
		f, err := cam.ReadFrame(time.Second)
		require.NoError(t, err)
		lo, hi := f.Pixels[0], f.Pixels[0]
		for _, p := range f.Pixels {
			if p < lo {
				lo = p
			}
			if p > hi {
				hi = p
			}
		}
		return int(hi) - int(lo)
	}

	inFocus := spread(1)
	outOfFocus := spread(1.02)
	assert.Greater(t, inFocus, outOfFocus)
}

func TestStage_WaitForIdleTimeout(t *testing.T) {
	st := NewStage(DefaultStageLimits(), nil)
	require.NoError(t, st.WaitForIdle(10*time.Millisecond))

	st.SetBusy(true)
	assert.ErrorIs(t, st.WaitForIdle(5*time.Millisecond), hardware.ErrTimeout)
}

func TestRig_SharesLog(t *testing.T) {
	rig := NewRig()
	require.NoError(t, rig.Stage.MoveAbsolute(hardware.AxisX, 10))
	require.NoError(t, rig.Illumination.TurnOn(11))
	require.NoError(t, rig.Illumination.TurnOff(11))

	calls := rig.Log.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "stage", calls[0].Device)
	assert.Equal(t, "TurnOff", calls[2].Op)
	assert.False(t, rig.Illumination.AnyOn())

	d, err := rig.LaserAF.MeasureDisplacementUm()
	require.NoError(t, err)
	assert.InDelta(t, -1000, d, 1e-9)
}
