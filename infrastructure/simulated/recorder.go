// Package simulated provides in-process device simulators. Every simulator
// records the calls it receives so tests can assert ordering and detect
// overlapping access, and the headless driver uses them as stand-in
// hardware.
package simulated

import (
	"sync"
	"sync/atomic"
	"time"
)

// Call is one recorded device call.
type Call struct {
	Device string
	Op     string
	Value  float64
	Text   string
	At     time.Time
}

// CallLog is an append-only, goroutine-safe record of device calls. One log
// may be shared by several devices to capture cross-device ordering.
type CallLog struct {
	mu    sync.Mutex
	calls []Call
}

// NewCallLog creates an empty log.
func NewCallLog() *CallLog {
	return &CallLog{}
}

func (l *CallLog) add(c Call) {
	if l == nil {
		return
	}
	c.At = time.Now()
	l.mu.Lock()
	l.calls = append(l.calls, c)
	l.mu.Unlock()
}

// Calls returns a copy of all recorded calls.
func (l *CallLog) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Call(nil), l.calls...)
}

// Filter returns the calls matching device and, when non-empty, op.
func (l *CallLog) Filter(device, op string) []Call {
	var out []Call
	for _, c := range l.Calls() {
		if c.Device == device && (op == "" || c.Op == op) {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many calls match device and op.
func (l *CallLog) Count(device, op string) int {
	return len(l.Filter(device, op))
}

// Reset clears the log.
func (l *CallLog) Reset() {
	l.mu.Lock()
	l.calls = nil
	l.mu.Unlock()
}

// FaultFunc decides whether the nth call (1-based) of an operation fails.
type FaultFunc func(n int) error

// instrument is embedded by every simulator. It records calls and injects
// latency and faults.
type instrument struct {
	device  string
	log     *CallLog
	latency atomic.Int64

	inFlight atomic.Int32
	overlaps atomic.Int32

	faultMu sync.Mutex
	faults  map[string]FaultFunc
	counts  map[string]int
}

func (p *instrument) init(device string, log *CallLog) {
	p.device = device
	p.log = log
}

// SetLatency makes every call sleep for d while it is in flight.
func (p *instrument) SetLatency(d time.Duration) {
	p.latency.Store(int64(d))
}

// SetFault installs a fault for one operation; nil removes it.
func (p *instrument) SetFault(op string, fn FaultFunc) {
	p.faultMu.Lock()
	defer p.faultMu.Unlock()
	if p.faults == nil {
		p.faults = make(map[string]FaultFunc)
	}
	if fn == nil {
		delete(p.faults, op)
		return
	}
	p.faults[op] = fn
}

// Overlaps returns how many calls started while another call was in flight.
func (p *instrument) Overlaps() int {
	return int(p.overlaps.Load())
}

// enter records a call and returns the function that ends it plus any
// injected fault.
func (p *instrument) enter(op string, value float64, text string) (func(), error) {
	if p.inFlight.Add(1) > 1 {
		p.overlaps.Add(1)
	}
	p.log.add(Call{Device: p.device, Op: op, Value: value, Text: text})

	if d := time.Duration(p.latency.Load()); d > 0 {
		time.Sleep(d)
	}

	p.faultMu.Lock()
	if p.counts == nil {
		p.counts = make(map[string]int)
	}
	p.counts[op]++
	n := p.counts[op]
	fn := p.faults[op]
	p.faultMu.Unlock()

	var err error
	if fn != nil {
		err = fn(n)
	}
	return func() { p.inFlight.Add(-1) }, err
}

// FailAlways returns a fault that fails every call with err.
func FailAlways(err error) FaultFunc {
	return func(int) error { return err }
}

// FailOnCall returns a fault that fails only the given call numbers.
func FailOnCall(err error, calls ...int) FaultFunc {
	set := make(map[int]struct{}, len(calls))
	for _, c := range calls {
		set[c] = struct{}{}
	}
	return func(n int) error {
		if _, ok := set[n]; ok {
			return err
		}
		return nil
	}
}
