package channel

import (
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"
)

// yamlFile is the YAML structure for channel definitions.
type yamlFile struct {
	Channels   []yamlChannel   `yaml:"channels"`
	Objectives []yamlObjective `yaml:"objectives"`
}

type yamlChannel struct {
	Name         string          `yaml:"name"`
	ExposureMs   float64         `yaml:"exposureMs"`
	AnalogGain   float64         `yaml:"analogGain"`
	Illumination yamlIllum       `yaml:"illumination"`
	Filter       *yamlFilterSlot `yaml:"filter,omitempty"`
	ZOffsetUm    float64         `yaml:"zOffsetUm,omitempty"`
	EmissionNm   int             `yaml:"emissionNm,omitempty"`
	Color        string          `yaml:"color,omitempty"`
}

type yamlIllum struct {
	Source    int     `yaml:"source"`
	Intensity float64 `yaml:"intensity"`
}

type yamlFilterSlot struct {
	Wheel    int `yaml:"wheel"`
	Position int `yaml:"position"`
}

type yamlObjective struct {
	Name          string  `yaml:"name"`
	Magnification float64 `yaml:"magnification"`
	NA            float64 `yaml:"na"`
	TubeLensMM    float64 `yaml:"tubeLensMM"`
}

// Loader populates a Registry from YAML documents.
type Loader struct {
	registry *Registry
}

// NewLoader creates a new loader that populates the given registry.
func NewLoader(registry *Registry) *Loader {
	return &Loader{registry: registry}
}

// LoadFromFS reads one YAML file from fsys.
func (l *Loader) LoadFromFS(fsys fs.FS, path string) error {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("failed to read channel file %s: %w", path, err)
	}
	if err := l.Load(data); err != nil {
		return fmt.Errorf("failed to load channel file %s: %w", path, err)
	}
	return nil
}

// Load parses a YAML document and replaces the registry contents.
func (l *Loader) Load(data []byte) error {
	var yf yamlFile
	if err := yaml.Unmarshal(data, &yf); err != nil {
		return fmt.Errorf("failed to parse channels: %w", err)
	}

	configs := make([]Config, 0, len(yf.Channels))
	for _, yc := range yf.Channels {
		configs = append(configs, convertYAMLChannel(yc))
	}
	if err := l.registry.Replace(configs); err != nil {
		return err
	}

	for _, yo := range yf.Objectives {
		if yo.Name == "" || yo.Magnification <= 0 {
			return fmt.Errorf("objective %q: magnification must be positive", yo.Name)
		}
		l.registry.RegisterObjective(Objective{
			Name:          yo.Name,
			Magnification: yo.Magnification,
			NA:            yo.NA,
			TubeLensMM:    yo.TubeLensMM,
		})
	}
	return nil
}

func convertYAMLChannel(yc yamlChannel) Config {
	c := Config{
		Name:                  yc.Name,
		ExposureMs:            yc.ExposureMs,
		AnalogGain:            yc.AnalogGain,
		IlluminationSource:    yc.Illumination.Source,
		IlluminationIntensity: yc.Illumination.Intensity,
		ZOffsetUm:             yc.ZOffsetUm,
		EmissionWavelengthNm:  yc.EmissionNm,
		Color:                 yc.Color,
	}
	if yc.Filter != nil {
		c.FilterWheel = yc.Filter.Wheel
		c.FilterPosition = yc.Filter.Position
	}
	return c
}
