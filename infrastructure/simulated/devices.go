package simulated

import (
	"fmt"
	"sync"

	"squid-go/domain/hardware"
)

// Illumination is a simulated light engine.
type Illumination struct {
	instrument

	mu        sync.Mutex
	sources   []int
	intensity map[int]float64
	on        map[int]bool
}

var _ hardware.Illumination = (*Illumination)(nil)

// NewIllumination creates a light engine with the given source ids.
func NewIllumination(sources []int, log *CallLog) *Illumination {
	il := &Illumination{
		sources:   append([]int(nil), sources...),
		intensity: make(map[int]float64),
		on:        make(map[int]bool),
	}
	il.instrument.init("illumination", log)
	return il
}

func (il *Illumination) known(source int) bool {
	for _, s := range il.sources {
		if s == source {
			return true
		}
	}
	return false
}

func (il *Illumination) SetIntensity(source int, percent float64) error {
	done, err := il.enter("SetIntensity", percent, fmt.Sprint(source))
	defer done()
	if err != nil {
		return err
	}
	if !il.known(source) {
		return fmt.Errorf("unknown illumination source %d", source)
	}
	il.mu.Lock()
	il.intensity[source] = percent
	il.mu.Unlock()
	return nil
}

func (il *Illumination) TurnOn(source int) error {
	done, err := il.enter("TurnOn", 0, fmt.Sprint(source))
	defer done()
	if err != nil {
		return err
	}
	if !il.known(source) {
		return fmt.Errorf("unknown illumination source %d", source)
	}
	il.mu.Lock()
	il.on[source] = true
	il.mu.Unlock()
	return nil
}

func (il *Illumination) TurnOff(source int) error {
	done, err := il.enter("TurnOff", 0, fmt.Sprint(source))
	defer done()
	if err != nil {
		return err
	}
	il.mu.Lock()
	il.on[source] = false
	il.mu.Unlock()
	return nil
}

func (il *Illumination) Sources() []int {
	return append([]int(nil), il.sources...)
}

// IsOn reports whether a source is lit.
func (il *Illumination) IsOn(source int) bool {
	il.mu.Lock()
	defer il.mu.Unlock()
	return il.on[source]
}

// AnyOn reports whether any source is lit.
func (il *Illumination) AnyOn() bool {
	il.mu.Lock()
	defer il.mu.Unlock()
	for _, v := range il.on {
		if v {
			return true
		}
	}
	return false
}

// Piezo is a simulated piezo objective positioner.
type Piezo struct {
	instrument

	mu  sync.Mutex
	pos float64
	rng hardware.Range
}

var _ hardware.Piezo = (*Piezo)(nil)

// NewPiezo creates a piezo with the given travel range in micrometres.
func NewPiezo(rng hardware.Range, log *CallLog) *Piezo {
	p := &Piezo{rng: rng, pos: rng.Center()}
	p.instrument.init("piezo", log)
	return p
}

func (p *Piezo) MoveTo(um float64) error {
	done, err := p.enter("MoveTo", um, "")
	defer done()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.pos = um
	p.mu.Unlock()
	return nil
}

func (p *Piezo) Position() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos, nil
}

func (p *Piezo) Range() hardware.Range { return p.rng }

// FilterWheel is a simulated set of filter wheels.
type FilterWheel struct {
	instrument

	mu     sync.Mutex
	wheels []int
	slots  int
	pos    map[int]int
}

var _ hardware.FilterWheel = (*FilterWheel)(nil)

// NewFilterWheel creates wheels with the given ids, all at slot 1.
func NewFilterWheel(wheels []int, slots int, log *CallLog) *FilterWheel {
	fw := &FilterWheel{wheels: append([]int(nil), wheels...), slots: slots, pos: make(map[int]int)}
	for _, w := range wheels {
		fw.pos[w] = 1
	}
	fw.instrument.init("filter", log)
	return fw
}

func (fw *FilterWheel) SetPosition(wheel, position int) error {
	done, err := fw.enter("SetPosition", float64(position), fmt.Sprint(wheel))
	defer done()
	if err != nil {
		return err
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, ok := fw.pos[wheel]; !ok {
		return fmt.Errorf("unknown filter wheel %d", wheel)
	}
	fw.pos[wheel] = position
	return nil
}

func (fw *FilterWheel) Position(wheel int) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	p, ok := fw.pos[wheel]
	if !ok {
		return 0, fmt.Errorf("unknown filter wheel %d", wheel)
	}
	return p, nil
}

func (fw *FilterWheel) Home(wheel int) error {
	done, err := fw.enter("Home", 1, fmt.Sprint(wheel))
	defer done()
	if err != nil {
		return err
	}
	fw.mu.Lock()
	fw.pos[wheel] = 1
	fw.mu.Unlock()
	return nil
}

func (fw *FilterWheel) Wheels() []int { return append([]int(nil), fw.wheels...) }

func (fw *FilterWheel) Slots() int { return fw.slots }

// Peripheral is a simulated microcontroller IO board.
type Peripheral struct {
	instrument

	mu         sync.Mutex
	dac        map[int]uint16
	triggering bool
	fps        float64
	laser      bool
	joystick   bool
}

var _ hardware.Peripheral = (*Peripheral)(nil)

// NewPeripheral creates an IO board with all outputs off.
func NewPeripheral(log *CallLog) *Peripheral {
	p := &Peripheral{dac: make(map[int]uint16), joystick: true}
	p.instrument.init("peripheral", log)
	return p
}

func (p *Peripheral) SetDAC(channel int, raw uint16) error {
	done, err := p.enter("SetDAC", float64(raw), fmt.Sprint(channel))
	defer done()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.dac[channel] = raw
	p.mu.Unlock()
	return nil
}

// DAC returns the last raw value written to a channel.
func (p *Peripheral) DAC(channel int) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dac[channel]
}

func (p *Peripheral) StartCameraTrigger() error {
	done, err := p.enter("StartCameraTrigger", 0, "")
	defer done()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.triggering = true
	p.mu.Unlock()
	return nil
}

func (p *Peripheral) StopCameraTrigger() error {
	done, err := p.enter("StopCameraTrigger", 0, "")
	defer done()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.triggering = false
	p.mu.Unlock()
	return nil
}

func (p *Peripheral) SetCameraTriggerFrequency(fps float64) error {
	done, err := p.enter("SetCameraTriggerFrequency", fps, "")
	defer done()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.fps = fps
	p.mu.Unlock()
	return nil
}

func (p *Peripheral) SetAFLaser(on bool) error {
	v := 0.0
	if on {
		v = 1
	}
	done, err := p.enter("SetAFLaser", v, "")
	defer done()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.laser = on
	p.mu.Unlock()
	return nil
}

// AFLaserOn reports the laser state.
func (p *Peripheral) AFLaserOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.laser
}

func (p *Peripheral) SetJoystick(enabled bool) error {
	v := 0.0
	if enabled {
		v = 1
	}
	done, err := p.enter("SetJoystick", v, "")
	defer done()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.joystick = enabled
	p.mu.Unlock()
	return nil
}

// DisplacementSensor reports the stage defocus the way a reflection
// autofocus camera would, plus a configurable offset.
type DisplacementSensor struct {
	instrument
	focus FocusSource

	mu     sync.Mutex
	offset float64
}

var _ hardware.DisplacementSensor = (*DisplacementSensor)(nil)

// NewDisplacementSensor creates a sensor reading from focus.
func NewDisplacementSensor(focus FocusSource, log *CallLog) *DisplacementSensor {
	d := &DisplacementSensor{focus: focus}
	d.instrument.init("laseraf", log)
	return d
}

// SetOffset adds a constant to every reading.
func (d *DisplacementSensor) SetOffset(um float64) {
	d.mu.Lock()
	d.offset = um
	d.mu.Unlock()
}

func (d *DisplacementSensor) MeasureDisplacementUm() (float64, error) {
	done, err := d.enter("Measure", 0, "")
	defer done()
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	off := d.offset
	d.mu.Unlock()
	return d.focus.DefocusUm() + off, nil
}
