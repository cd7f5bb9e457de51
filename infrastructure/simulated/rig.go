package simulated

import "squid-go/domain/hardware"

// Rig bundles one simulator per device class sharing a single call log.
type Rig struct {
	Log          *CallLog
	Camera       *Camera
	Stage        *Stage
	Illumination *Illumination
	Piezo        *Piezo
	Filter       *FilterWheel
	Peripheral   *Peripheral
	LaserAF      *DisplacementSensor
}

// NewRig creates a complete simulated microscope.
func NewRig() *Rig {
	log := NewCallLog()
	stage := NewStage(DefaultStageLimits(), log)
	return &Rig{
		Log:          log,
		Camera:       NewCamera(DefaultCameraConfig(), log, stage),
		Stage:        stage,
		Illumination: NewIllumination([]int{0, 11, 12, 13, 14}, log),
		Piezo:        NewPiezo(hardware.Range{Min: 0, Max: 300}, log),
		Filter:       NewFilterWheel([]int{1}, 8, log),
		Peripheral:   NewPeripheral(log),
		LaserAF:      NewDisplacementSensor(stage, log),
	}
}
