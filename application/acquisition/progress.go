package acquisition

import (
	"time"

	"golang.org/x/time/rate"

	"squid-go/core/event"
	"squid-go/infrastructure/telemetry"
)

// progress tracks FOV-count based progress of one run and publishes
// rate-bounded snapshots. It is only touched by the worker goroutine.
type progress struct {
	id         string
	total      int
	timePoints int
	regions    int

	processed int
	completed int
	captured  int

	started  time.Time
	fovTime  time.Duration
	fovCount int

	limiter   *rate.Limiter
	publish   func(event.Event)
	collector telemetry.Collector
}

func newProgress(id string, total, timePoints, regions int, interval time.Duration, publish func(event.Event), collector telemetry.Collector) *progress {
	return &progress{
		id:         id,
		total:      total,
		timePoints: timePoints,
		regions:    regions,
		started:    time.Now(),
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		publish:    publish,
		collector:  collector,
	}
}

// fovDone accounts one visited FOV. Failed FOVs count as processed.
func (p *progress) fovDone(d time.Duration, ok bool) {
	p.processed++
	if ok {
		p.completed++
	}
	p.fovTime += d
	p.fovCount++
}

// skip accounts FOVs that will never be visited.
func (p *progress) skip(n int) {
	p.processed += n
}

func (p *progress) captureDone() {
	p.captured++
}

func (p *progress) percent() float64 {
	if p.total <= 0 {
		return 100
	}
	pct := float64(p.processed) / float64(p.total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// eta extrapolates the mean FOV duration over the remaining FOVs.
func (p *progress) eta() time.Duration {
	if p.fovCount == 0 {
		return 0
	}
	remaining := p.total - p.processed
	if remaining <= 0 {
		return 0
	}
	return p.fovTime / time.Duration(p.fovCount) * time.Duration(remaining)
}

func (p *progress) snapshot(timePoint, region int, channel string) event.AcquisitionProgress {
	e := event.NewAcquisitionProgress(p.id)
	e.CompletedFOVs = p.processed
	e.TotalFOVs = p.total
	e.CapturedImages = p.captured
	e.TimePoint = timePoint
	e.TotalTimePoints = p.timePoints
	e.RegionIndex = region
	e.TotalRegions = p.regions
	e.Channel = channel
	e.Percent = p.percent()
	e.Elapsed = time.Since(p.started)
	e.ETA = p.eta()
	return e
}

// report publishes a snapshot unless one went out within the interval.
// force bypasses the limiter.
func (p *progress) report(force bool, timePoint, region int, channel string) {
	if !force && !p.limiter.Allow() {
		return
	}
	e := p.snapshot(timePoint, region, channel)
	p.collector.SetAcquisitionProgress(e.Percent)
	p.publish(e)
}
