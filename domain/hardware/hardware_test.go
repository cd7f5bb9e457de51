package hardware

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestRange_Clamp(t *testing.T) {
	r := Range{Min: 0.1, Max: 1000}
	tests := []struct {
		name     string
		in       float64
		expected float64
	}{
		{"below", -5, 0.1},
		{"inside", 20, 20},
		{"above", 5000, 1000},
		{"at min", 0.1, 0.1},
		{"at max", 1000, 1000},
		{"nan", math.NaN(), 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Clamp(tt.in); got != tt.expected {
				t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.expected)
			}
		})
	}
}

func TestClampInt(t *testing.T) {
	if got := ClampInt(0, 1, 6); got != 1 {
		t.Errorf("ClampInt(0,1,6) = %v, want 1", got)
	}
	if got := ClampInt(9, 1, 6); got != 6 {
		t.Errorf("ClampInt(9,1,6) = %v, want 6", got)
	}
	if got := ClampInt(3, 1, 6); got != 3 {
		t.Errorf("ClampInt(3,1,6) = %v, want 3", got)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		fatal     bool
		transient bool
	}{
		{"nil", nil, false, false},
		{"timeout", ErrTimeout, false, true},
		{"wrapped timeout", fmt.Errorf("move x: %w", ErrTimeout), false, true},
		{"disconnected", ErrDisconnected, true, false},
		{"wrapped disconnected", fmt.Errorf("read frame: %w", ErrDisconnected), true, false},
		{"other", errors.New("checksum mismatch"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
			if got := IsTransient(tt.err); got != tt.transient {
				t.Errorf("IsTransient() = %v, want %v", got, tt.transient)
			}
		})
	}
}

func TestPosition_GetWith(t *testing.T) {
	p := Position{X: 1, Y: 2, Z: 3}
	if p.Get(AxisY) != 2 {
		t.Errorf("Get(y) = %v, want 2", p.Get(AxisY))
	}
	q := p.With(AxisZ, 9)
	if q.Z != 9 || p.Z != 3 {
		t.Errorf("With(z) = %+v from %+v", q, p)
	}
}

func TestParseAxis(t *testing.T) {
	for _, s := range []string{"x", "Y", "z"} {
		if _, err := ParseAxis(s); err != nil {
			t.Errorf("ParseAxis(%q) error = %v", s, err)
		}
	}
	if _, err := ParseAxis("w"); err == nil {
		t.Error("ParseAxis(w) expected error")
	}
}
