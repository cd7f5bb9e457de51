package experiment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sinkFunc func(ctx context.Context, rec *CaptureRecord) error

func (f sinkFunc) Save(ctx context.Context, rec *CaptureRecord) error { return f(ctx, rec) }

func TestCapture_FileStem(t *testing.T) {
	c := Capture{RegionID: "A1", FOVIndex: 7, ZIndex: 12, Channel: "Fluorescence 488 nm"}
	assert.Equal(t, "A1_007_012_Fluorescence_488_nm", c.FileStem())
}

func TestMultiSink_AnnotatesAndJoinsErrors(t *testing.T) {
	errDisk := errors.New("disk full")
	var seen string
	sink := MultiSink{
		sinkFunc(func(_ context.Context, rec *CaptureRecord) error {
			rec.File = "a.fits"
			return nil
		}),
		sinkFunc(func(_ context.Context, rec *CaptureRecord) error {
			seen = rec.File
			return errDisk
		}),
	}

	err := sink.Save(context.Background(), &CaptureRecord{})
	assert.ErrorIs(t, err, errDisk)
	assert.Equal(t, "a.fits", seen)
}

func TestExperiment_CloneIsDeep(t *testing.T) {
	e := &Experiment{Channels: []string{"BF"}, FailedFOVs: []FailedFOV{{FOVIndex: 1}}}
	c := e.Clone()
	c.Channels[0] = "changed"
	c.FailedFOVs[0].FOVIndex = 9
	assert.Equal(t, "BF", e.Channels[0])
	assert.Equal(t, 1, e.FailedFOVs[0].FOVIndex)
}

func TestExperiment_Finished(t *testing.T) {
	assert.False(t, (&Experiment{State: StateRunning}).Finished())
	assert.True(t, (&Experiment{State: StateAborted}).Finished())
}
