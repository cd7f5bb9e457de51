// Package plan describes acquisition runs: the regions and fields of view to
// visit, the channels to image, and the z-stack, timing and autofocus
// policies. A Plan is built once per run and never mutated afterwards.
package plan

import (
	"errors"
	"fmt"
	"time"

	"squid-go/domain/channel"
)

// FOV is one stage position inside a region, in millimetres.
type FOV struct {
	X, Y, Z float64
}

// Region is an ordered set of FOVs, for example one well.
type Region struct {
	ID      string
	CenterX float64
	CenterY float64
	CenterZ float64
	FOVs    []FOV
}

// ZStackMode selects where the stack starts relative to the focus plane.
type ZStackMode string

const (
	ZFromBottom ZStackMode = "FROM_BOTTOM"
	ZFromCenter ZStackMode = "FROM_CENTER"
	ZFromTop    ZStackMode = "FROM_TOP"
)

// ZStack describes the focal planes imaged at every FOV.
type ZStack struct {
	Planes int
	StepUm float64
	Mode   ZStackMode
}

// Offsets returns the plane offsets in micrometres relative to the focus
// plane, in imaging order.
func (z ZStack) Offsets() []float64 {
	n := z.Planes
	if n < 1 {
		n = 1
	}
	out := make([]float64, n)
	for i := range out {
		switch z.Mode {
		case ZFromTop:
			out[i] = -float64(i) * z.StepUm
		case ZFromCenter:
			out[i] = (float64(i) - float64(n-1)/2) * z.StepUm
		default:
			out[i] = float64(i) * z.StepUm
		}
	}
	return out
}

// AutofocusMode selects the autofocus strategy.
type AutofocusMode string

const (
	AutofocusOff      AutofocusMode = "off"
	AutofocusContrast AutofocusMode = "contrast"
	AutofocusLaser    AutofocusMode = "laser"
)

// Autofocus is the per-run autofocus policy.
type Autofocus struct {
	Mode AutofocusMode
	// EveryNFOVs runs contrast autofocus on every Nth FOV of a region
	// (1 means every FOV).
	EveryNFOVs int
	// Steps and StepUm define the contrast sweep.
	Steps  int
	StepUm float64
	// StopThreshold ends the sweep early once the focus measure falls
	// below max*StopThreshold after passing the peak. Zero disables it.
	StopThreshold float64
	// Channel names the channel used for contrast autofocus.
	Channel string
}

// Enabled reports whether any autofocus runs.
func (a Autofocus) Enabled() bool {
	return a.Mode == AutofocusContrast || a.Mode == AutofocusLaser
}

// Due reports whether autofocus runs at the given FOV index of a region.
func (a Autofocus) Due(fovIndex int) bool {
	if !a.Enabled() {
		return false
	}
	if a.Mode == AutofocusLaser || a.EveryNFOVs <= 1 {
		return true
	}
	return fovIndex%a.EveryNFOVs == 0
}

// Output names where captured images go.
type Output struct {
	BaseDir        string
	ExperimentName string
}

// Plan is an immutable description of one acquisition run.
type Plan struct {
	Name       string
	Regions    []Region
	Channels   []channel.Config
	ZStack     ZStack
	TimePoints int
	Interval   time.Duration
	Autofocus  Autofocus
	Output     Output
	// UseLastZ reuses the focus found at each FOV in the previous time point.
	UseLastZ bool
	// DisplayEveryN throttles display to every Nth frame; 0 or 1 shows all.
	DisplayEveryN int
	// FOVWidthMM and FOVHeightMM describe the imaged footprint.
	FOVWidthMM  float64
	FOVHeightMM float64
}

// Validate checks that the plan can be executed.
func (p Plan) Validate() error {
	if len(p.Regions) == 0 {
		return errors.New("plan has no regions")
	}
	if len(p.Channels) == 0 {
		return errors.New("plan has no channels")
	}
	ids := make(map[string]struct{}, len(p.Regions))
	for _, r := range p.Regions {
		if len(r.FOVs) == 0 {
			return fmt.Errorf("region %q has no FOVs", r.ID)
		}
		if _, dup := ids[r.ID]; dup {
			return fmt.Errorf("duplicate region %q", r.ID)
		}
		ids[r.ID] = struct{}{}
	}
	for _, c := range p.Channels {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	if p.ZStack.Planes > 1 && p.ZStack.StepUm <= 0 {
		return errors.New("z-stack step must be positive")
	}
	if p.TimePoints > 1 && p.Interval < 0 {
		return errors.New("time point interval must not be negative")
	}
	return nil
}

// NumTimePoints returns the number of time points, at least one.
func (p Plan) NumTimePoints() int {
	if p.TimePoints < 1 {
		return 1
	}
	return p.TimePoints
}

// NumPlanes returns the number of z-planes, at least one.
func (p Plan) NumPlanes() int {
	if p.ZStack.Planes < 1 {
		return 1
	}
	return p.ZStack.Planes
}

// FOVsPerTimePoint returns the FOV count summed over all regions.
func (p Plan) FOVsPerTimePoint() int {
	n := 0
	for _, r := range p.Regions {
		n += len(r.FOVs)
	}
	return n
}

// TotalFOVs returns the FOV visits of the whole run.
func (p Plan) TotalFOVs() int {
	return p.FOVsPerTimePoint() * p.NumTimePoints()
}

// ImagesPerFOV returns the captures taken at one FOV.
func (p Plan) ImagesPerFOV() int {
	return len(p.Channels) * p.NumPlanes()
}

// TotalImages returns the captures of the whole run.
func (p Plan) TotalImages() int {
	return p.TotalFOVs() * p.ImagesPerFOV()
}

// ChannelNames returns the channel names in imaging order.
func (p Plan) ChannelNames() []string {
	out := make([]string, len(p.Channels))
	for i, c := range p.Channels {
		out[i] = c.Name
	}
	return out
}

// Clone returns a deep copy so the caller's slices cannot alias the run.
func (p Plan) Clone() Plan {
	out := p
	out.Regions = make([]Region, len(p.Regions))
	for i, r := range p.Regions {
		r.FOVs = append([]FOV(nil), r.FOVs...)
		out.Regions[i] = r
	}
	out.Channels = append([]channel.Config(nil), p.Channels...)
	return out
}
