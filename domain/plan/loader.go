package plan

import (
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"squid-go/domain/channel"
)

// Template is a reusable acquisition recipe. It becomes a Plan once bound
// to the channel registry and the current optics.
type Template struct {
	Name           string        `yaml:"name"`
	Wellplate      string        `yaml:"wellplate,omitempty"`
	Wells          []string      `yaml:"wells,omitempty"`
	Positions      []yamlPoint   `yaml:"positions,omitempty"`
	ScanSizeMM     float64       `yaml:"scanSizeMM,omitempty"`
	Shape          Shape         `yaml:"shape,omitempty"`
	NX             int           `yaml:"nx,omitempty"`
	NY             int           `yaml:"ny,omitempty"`
	OverlapPercent float64       `yaml:"overlapPercent"`
	Serpentine     bool          `yaml:"serpentine"`
	Channels       []string      `yaml:"channels"`
	ZStack         yamlZStack    `yaml:"zStack"`
	TimePoints     int           `yaml:"timePoints"`
	Interval       duration      `yaml:"interval,omitempty"`
	Autofocus      yamlAutofocus `yaml:"autofocus"`
	UseLastZ       bool          `yaml:"useLastZ,omitempty"`
	DisplayEveryN  int           `yaml:"displayEveryN,omitempty"`
	OutputDir      string        `yaml:"outputDir,omitempty"`
}

type yamlPoint struct {
	ID string  `yaml:"id"`
	X  float64 `yaml:"x"`
	Y  float64 `yaml:"y"`
	Z  float64 `yaml:"z"`
}

type yamlZStack struct {
	Planes int        `yaml:"planes"`
	StepUm float64    `yaml:"stepUm"`
	Mode   ZStackMode `yaml:"mode"`
}

type yamlAutofocus struct {
	Mode          AutofocusMode `yaml:"mode"`
	EveryNFOVs    int           `yaml:"everyNFOVs"`
	Steps         int           `yaml:"steps"`
	StepUm        float64       `yaml:"stepUm"`
	StopThreshold float64       `yaml:"stopThreshold"`
	Channel       string        `yaml:"channel"`
}

// duration is a wrapper for time.Duration that handles YAML parsing.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// ParseTemplate decodes a YAML acquisition template.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse plan template: %w", err)
	}
	if t.Name == "" {
		return nil, fmt.Errorf("plan template requires a name")
	}
	return &t, nil
}

// LoadTemplates reads every .yaml file of a directory in fsys.
func LoadTemplates(fsys fs.FS, dir string) (map[string]*Template, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}

	out := make(map[string]*Template)
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		path := dir + "/" + entry.Name()
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", path, err)
		}
		t, err := ParseTemplate(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out[t.Name] = t
	}
	return out, nil
}

func isYAML(name string) bool {
	n := len(name)
	return (n > 5 && name[n-5:] == ".yaml") || (n > 4 && name[n-4:] == ".yml")
}

// Optics carries the values a template needs from the live system.
type Optics struct {
	FOVWidthMM  float64
	FOVHeightMM float64
	FocusZMM    float64
}

// Build resolves channel names and geometry into an executable Plan.
func (t *Template) Build(reg *channel.Registry, optics Optics) (Plan, error) {
	channels, err := reg.Lookup(t.Channels...)
	if err != nil {
		return Plan{}, err
	}

	grid := GridSpec{
		CenterZ:        optics.FocusZMM,
		FOVWidthMM:     optics.FOVWidthMM,
		FOVHeightMM:    optics.FOVHeightMM,
		OverlapPercent: t.OverlapPercent,
		ScanSizeMM:     t.ScanSizeMM,
		Shape:          t.Shape,
		NX:             t.NX,
		NY:             t.NY,
		Serpentine:     t.Serpentine,
	}

	var regions []Region
	switch {
	case t.Wellplate != "":
		wp, err := LookupWellplate(t.Wellplate)
		if err != nil {
			return Plan{}, err
		}
		if regions, err = wp.WellRegions(t.Wells, grid); err != nil {
			return Plan{}, err
		}
	default:
		for i, p := range t.Positions {
			id := p.ID
			if id == "" {
				id = fmt.Sprintf("P%d", i+1)
			}
			z := p.Z
			if z == 0 {
				z = optics.FocusZMM
			}
			g := grid
			g.CenterX, g.CenterY, g.CenterZ = p.X, p.Y, z
			regions = append(regions, GridRegion(id, g))
		}
	}

	mode := t.ZStack.Mode
	if mode == "" {
		mode = ZFromBottom
	}
	afMode := t.Autofocus.Mode
	if afMode == "" {
		afMode = AutofocusOff
	}

	p := Plan{
		Name:     t.Name,
		Regions:  regions,
		Channels: channels,
		ZStack: ZStack{
			Planes: t.ZStack.Planes,
			StepUm: t.ZStack.StepUm,
			Mode:   mode,
		},
		TimePoints: t.TimePoints,
		Interval:   time.Duration(t.Interval),
		Autofocus: Autofocus{
			Mode:          afMode,
			EveryNFOVs:    t.Autofocus.EveryNFOVs,
			Steps:         t.Autofocus.Steps,
			StepUm:        t.Autofocus.StepUm,
			StopThreshold: t.Autofocus.StopThreshold,
			Channel:       t.Autofocus.Channel,
		},
		Output:        Output{BaseDir: t.OutputDir, ExperimentName: t.Name},
		UseLastZ:      t.UseLastZ,
		DisplayEveryN: t.DisplayEveryN,
		FOVWidthMM:    optics.FOVWidthMM,
		FOVHeightMM:   optics.FOVHeightMM,
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}
