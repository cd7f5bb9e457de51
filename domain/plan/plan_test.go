package plan

import (
	"math"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squid-go/domain/channel"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func testPlan() Plan {
	return Plan{
		Regions: []Region{
			{ID: "A1", FOVs: []FOV{{X: 0}, {X: 1}}},
			{ID: "A2", FOVs: []FOV{{X: 2}, {X: 3}, {X: 4}}},
		},
		Channels: []channel.Config{
			{Name: "BF", ExposureMs: 10},
			{Name: "GFP", ExposureMs: 100},
		},
		ZStack:     ZStack{Planes: 3, StepUm: 1.5},
		TimePoints: 2,
	}
}

func TestPlan_Totals(t *testing.T) {
	p := testPlan()

	assert.Equal(t, 5, p.FOVsPerTimePoint())
	assert.Equal(t, 10, p.TotalFOVs())
	assert.Equal(t, 6, p.ImagesPerFOV())
	assert.Equal(t, 60, p.TotalImages())
	assert.Equal(t, []string{"BF", "GFP"}, p.ChannelNames())
}

func TestPlan_DefaultsToOne(t *testing.T) {
	p := Plan{}
	assert.Equal(t, 1, p.NumTimePoints())
	assert.Equal(t, 1, p.NumPlanes())
}

func TestPlan_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Plan)
		wantErr bool
	}{
		{"valid", func(p *Plan) {}, false},
		{"no regions", func(p *Plan) { p.Regions = nil }, true},
		{"no channels", func(p *Plan) { p.Channels = nil }, true},
		{"empty region", func(p *Plan) { p.Regions[0].FOVs = nil }, true},
		{"duplicate region", func(p *Plan) { p.Regions[1].ID = "A1" }, true},
		{"bad channel", func(p *Plan) { p.Channels[0].ExposureMs = 0 }, true},
		{"zero z step", func(p *Plan) { p.ZStack.StepUm = 0 }, true},
		{"negative interval", func(p *Plan) { p.Interval = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPlan().Clone()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlan_CloneDoesNotAlias(t *testing.T) {
	p := testPlan()
	c := p.Clone()
	c.Regions[0].FOVs[0].X = 99
	c.Channels[0].Name = "changed"

	assert.Equal(t, 0.0, p.Regions[0].FOVs[0].X)
	assert.Equal(t, "BF", p.Channels[0].Name)
}

func TestZStack_Offsets(t *testing.T) {
	tests := []struct {
		name     string
		z        ZStack
		expected []float64
	}{
		{"single", ZStack{Planes: 1, StepUm: 2}, []float64{0}},
		{"zero planes", ZStack{}, []float64{0}},
		{"from bottom", ZStack{Planes: 3, StepUm: 2, Mode: ZFromBottom}, []float64{0, 2, 4}},
		{"from top", ZStack{Planes: 3, StepUm: 2, Mode: ZFromTop}, []float64{0, -2, -4}},
		{"from center", ZStack{Planes: 3, StepUm: 2, Mode: ZFromCenter}, []float64{-2, 0, 2}},
		{"from center even", ZStack{Planes: 2, StepUm: 2, Mode: ZFromCenter}, []float64{-1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.z.Offsets())
		})
	}
}

func TestAutofocus_Due(t *testing.T) {
	tests := []struct {
		name     string
		af       Autofocus
		fov      int
		expected bool
	}{
		{"off", Autofocus{Mode: AutofocusOff}, 0, false},
		{"contrast every fov", Autofocus{Mode: AutofocusContrast}, 3, true},
		{"contrast every 3 at 0", Autofocus{Mode: AutofocusContrast, EveryNFOVs: 3}, 0, true},
		{"contrast every 3 at 2", Autofocus{Mode: AutofocusContrast, EveryNFOVs: 3}, 2, false},
		{"contrast every 3 at 3", Autofocus{Mode: AutofocusContrast, EveryNFOVs: 3}, 3, true},
		{"laser always", Autofocus{Mode: AutofocusLaser, EveryNFOVs: 5}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.af.Due(tt.fov); got != tt.expected {
				t.Errorf("Due(%d) = %v, want %v", tt.fov, got, tt.expected)
			}
		})
	}
}

func TestGridFOVs_Serpentine(t *testing.T) {
	fovs := GridFOVs(GridSpec{
		CenterX:     10,
		CenterY:     20,
		FOVWidthMM:  1,
		FOVHeightMM: 1,
		NX:          3,
		NY:          2,
		Serpentine:  true,
	})
	require.Len(t, fovs, 6)

	wantX := []float64{9, 10, 11, 11, 10, 9}
	wantY := []float64{19.5, 19.5, 19.5, 20.5, 20.5, 20.5}
	for i, f := range fovs {
		assert.True(t, approx(f.X, wantX[i]), "fov %d x=%v want %v", i, f.X, wantX[i])
		assert.True(t, approx(f.Y, wantY[i]), "fov %d y=%v want %v", i, f.Y, wantY[i])
	}
}

func TestGridFOVs_OverlapFromScanSize(t *testing.T) {
	// step = 0.9mm; n = ceil((2-1)/0.9)+1 = 3
	fovs := GridFOVs(GridSpec{FOVWidthMM: 1, FOVHeightMM: 1, OverlapPercent: 10, ScanSizeMM: 2, Shape: ShapeSquare})
	assert.Len(t, fovs, 9)
	assert.True(t, approx(fovs[1].X-fovs[0].X, 0.9))
}

func TestGridFOVs_SingleTileWhenScanSmallerThanFOV(t *testing.T) {
	fovs := GridFOVs(GridSpec{CenterX: 5, CenterY: 6, FOVWidthMM: 1, FOVHeightMM: 1, ScanSizeMM: 0.5})
	require.Len(t, fovs, 1)
	assert.Equal(t, FOV{X: 5, Y: 6}, fovs[0])
}

func TestGridFOVs_CircleDropsCorners(t *testing.T) {
	square := GridFOVs(GridSpec{FOVWidthMM: 1, FOVHeightMM: 1, ScanSizeMM: 10, Shape: ShapeSquare})
	circle := GridFOVs(GridSpec{FOVWidthMM: 1, FOVHeightMM: 1, ScanSizeMM: 10, Shape: ShapeCircle})
	assert.Less(t, len(circle), len(square))
	assert.NotEmpty(t, circle)
}

func TestParseWellID(t *testing.T) {
	tests := []struct {
		id       string
		row, col int
		wantErr  bool
	}{
		{"A1", 0, 0, false},
		{"b3", 1, 2, false},
		{"H12", 7, 11, false},
		{"AA1", 26, 0, false},
		{"1A", 0, 0, true},
		{"A", 0, 0, true},
		{"A0", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			row, col, err := ParseWellID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWellID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (row != tt.row || col != tt.col) {
				t.Errorf("ParseWellID() = %d,%d, want %d,%d", row, col, tt.row, tt.col)
			}
		})
	}
}

func TestWellID_RoundTrip(t *testing.T) {
	for _, id := range []string{"A1", "H12", "P24", "AF48"} {
		row, col, err := ParseWellID(id)
		require.NoError(t, err)
		assert.Equal(t, id, WellID(row, col))
	}
}

func TestWellplate_WellCenter(t *testing.T) {
	wp, err := LookupWellplate("96")
	require.NoError(t, err)

	x, y, err := wp.WellCenter("B3")
	require.NoError(t, err)
	assert.True(t, approx(x, 11.31+2*9))
	assert.True(t, approx(y, 10.75+9))

	_, _, err = wp.WellCenter("I1")
	assert.Error(t, err)

	_, err = LookupWellplate("7")
	assert.Error(t, err)
}

const templateYAML = `
name: screen
wellplate: "96"
wells: [A1, A2]
nx: 2
ny: 1
overlapPercent: 0
serpentine: true
channels: [BF, GFP]
zStack: {planes: 3, stepUm: 1, mode: FROM_CENTER}
timePoints: 2
interval: 5m
autofocus: {mode: contrast, everyNFOVs: 2, steps: 7, stepUm: 1.5}
`

func testRegistry() *channel.Registry {
	reg := channel.NewRegistry()
	reg.Register(channel.Config{Name: "BF", ExposureMs: 10})
	reg.Register(channel.Config{Name: "GFP", ExposureMs: 100})
	return reg
}

func TestTemplate_Build(t *testing.T) {
	tpl, err := ParseTemplate([]byte(templateYAML))
	require.NoError(t, err)

	p, err := tpl.Build(testRegistry(), Optics{FOVWidthMM: 0.5, FOVHeightMM: 0.5, FocusZMM: 1.2})
	require.NoError(t, err)

	assert.Equal(t, "screen", p.Name)
	require.Len(t, p.Regions, 2)
	assert.Equal(t, "A1", p.Regions[0].ID)
	assert.Len(t, p.Regions[0].FOVs, 2)
	assert.Equal(t, 1.2, p.Regions[0].FOVs[0].Z)
	assert.Equal(t, ZFromCenter, p.ZStack.Mode)
	assert.Equal(t, 5*time.Minute, p.Interval)
	assert.Equal(t, AutofocusContrast, p.Autofocus.Mode)
	assert.Equal(t, 2*2*2, p.TotalFOVs())
}

func TestTemplate_BuildUnknownChannel(t *testing.T) {
	tpl, err := ParseTemplate([]byte("name: x\npositions: [{x: 1, y: 1}]\nchannels: [DAPI]\n"))
	require.NoError(t, err)

	_, err = tpl.Build(testRegistry(), Optics{FOVWidthMM: 1, FOVHeightMM: 1})
	assert.ErrorIs(t, err, channel.ErrUnknownChannel)
}

func TestLoadTemplates(t *testing.T) {
	fsys := fstest.MapFS{
		"plans/screen.yaml": {Data: []byte(templateYAML)},
		"plans/README.md":   {Data: []byte("ignored")},
	}
	got, err := LoadTemplates(fsys, "plans")
	require.NoError(t, err)
	assert.Contains(t, got, "screen")
	assert.Len(t, got, 1)

	_, err = ParseTemplate([]byte("interval: 5m\n"))
	assert.Error(t, err)
}
