package channel

import (
	"errors"
	"math"
	"testing"
	"testing/fstest"
)

const testYAML = `
channels:
  - name: BF LED matrix full
    exposureMs: 12
    analogGain: 0
    illumination: {source: 0, intensity: 20}
  - name: Fluorescence 488 nm Ex
    exposureMs: 100
    analogGain: 10
    illumination: {source: 11, intensity: 35}
    filter: {wheel: 1, position: 3}
    zOffsetUm: 1.5
    emissionNm: 525
    color: "#1FFF00"
objectives:
  - name: 20x
    magnification: 20
    na: 0.4
    tubeLensMM: 180
`

func TestLoader_Load(t *testing.T) {
	reg := NewRegistry()
	if err := NewLoader(reg).Load([]byte(testYAML)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if reg.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", reg.Count())
	}
	names := reg.Names()
	if names[0] != "BF LED matrix full" || names[1] != "Fluorescence 488 nm Ex" {
		t.Errorf("Names() = %v, want declaration order", names)
	}

	fl, ok := reg.Get("Fluorescence 488 nm Ex")
	if !ok {
		t.Fatal("Get() missing fluorescence channel")
	}
	if fl.ExposureMs != 100 || fl.IlluminationSource != 11 || fl.FilterPosition != 3 || !fl.HasFilter() {
		t.Errorf("unexpected channel %+v", fl)
	}

	bf, _ := reg.Get("BF LED matrix full")
	if bf.HasFilter() {
		t.Error("BF channel should not select a filter")
	}

	obj, ok := reg.Objective("20x")
	if !ok || obj.Magnification != 20 {
		t.Errorf("Objective(20x) = %+v, %v", obj, ok)
	}
}

func TestLoader_LoadFromFS(t *testing.T) {
	fsys := fstest.MapFS{"config/channels.yaml": {Data: []byte(testYAML)}}
	reg := NewRegistry()
	if err := NewLoader(reg).LoadFromFS(fsys, "config/channels.yaml"); err != nil {
		t.Fatalf("LoadFromFS() error = %v", err)
	}
	if reg.Count() != 2 {
		t.Errorf("Count() = %d, want 2", reg.Count())
	}

	if err := NewLoader(reg).LoadFromFS(fsys, "missing.yaml"); err == nil {
		t.Error("LoadFromFS(missing) expected error")
	}
}

func TestLoader_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", "channels:\n  - exposureMs: 10\n"},
		{"zero exposure", "channels:\n  - name: a\n    exposureMs: 0\n"},
		{"duplicate", "channels:\n  - name: a\n    exposureMs: 1\n  - name: a\n    exposureMs: 2\n"},
		{"bad objective", "objectives:\n  - name: x\n    magnification: 0\n"},
		{"malformed", "channels: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewLoader(NewRegistry()).Load([]byte(tt.yaml)); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Config{Name: "A", ExposureMs: 1})
	reg.Register(Config{Name: "B", ExposureMs: 2})

	got, err := reg.Lookup("B", "A")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got[0].Name != "B" || got[1].Name != "A" {
		t.Errorf("Lookup() order = %v", got)
	}

	_, err = reg.Lookup("A", "C")
	if !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Lookup() error = %v, want ErrUnknownChannel", err)
	}
}

func TestRegistry_RegisterReplacesInPlace(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Config{Name: "A", ExposureMs: 1})
	reg.Register(Config{Name: "B", ExposureMs: 2})
	reg.Register(Config{Name: "A", ExposureMs: 5})

	all := reg.All()
	if len(all) != 2 || all[0].Name != "A" || all[0].ExposureMs != 5 {
		t.Errorf("All() = %+v", all)
	}
}

func TestObjective_PixelSizeUm(t *testing.T) {
	tests := []struct {
		name     string
		obj      Objective
		binning  int
		tube     float64
		expected float64
	}{
		{"plain", Objective{Magnification: 20}, 1, 0, 0.185},
		{"binned", Objective{Magnification: 20}, 2, 0, 0.37},
		{"tube lens scaled", Objective{Magnification: 20, TubeLensMM: 180}, 1, 90, 0.37},
		{"zero binning treated as 1", Objective{Magnification: 10}, 0, 0, 0.37},
		{"no magnification", Objective{}, 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.obj.PixelSizeUm(3.7, tt.binning, tt.tube)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("PixelSizeUm() = %v, want %v", got, tt.expected)
			}
		})
	}
}
