// Package telemetry exposes runtime counters of the frame path and the
// acquisition worker.
package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector receives telemetry from the stream handler and the acquisition
// worker. Calls happen inline on hot paths and must be cheap.
type Collector interface {
	IncFramesReceived()
	IncFramesDelivered()
	IncFramesDropped(reason string)
	IncCaptures()
	IncFOVFailures()
	ObserveFOVDuration(d time.Duration)
	SetAcquisitionProgress(percent float64)
	IncAcquisitions(result string)
}

type noopCollector struct{}

// Noop returns a collector that discards everything.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncFramesReceived()               {}
func (noopCollector) IncFramesDelivered()              {}
func (noopCollector) IncFramesDropped(string)          {}
func (noopCollector) IncCaptures()                     {}
func (noopCollector) IncFOVFailures()                  {}
func (noopCollector) ObserveFOVDuration(time.Duration) {}
func (noopCollector) SetAcquisitionProgress(float64)   {}
func (noopCollector) IncAcquisitions(string)           {}

// PrometheusCollector exports the counters as Prometheus metrics.
type PrometheusCollector struct {
	framesReceived  prometheus.Counter
	framesDelivered prometheus.Counter
	framesDropped   *prometheus.CounterVec
	captures        prometheus.Counter
	fovFailures     prometheus.Counter
	fovDuration     prometheus.Histogram
	progress        prometheus.Gauge
	acquisitions    *prometheus.CounterVec
}

// NewPrometheusCollector registers the metrics with reg, reusing collectors
// that are already registered.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusCollector{}
	var err error
	if p.framesReceived, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "squid_stream_frames_received_total",
		Help: "Frames handed to the stream handler.",
	})); err != nil {
		return nil, err
	}
	if p.framesDelivered, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "squid_stream_frames_delivered_total",
		Help: "Frames delivered to display sinks.",
	})); err != nil {
		return nil, err
	}
	if p.framesDropped, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "squid_stream_frames_dropped_total",
		Help: "Frames not delivered to display sinks, by reason.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if p.captures, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "squid_acquisition_captures_total",
		Help: "Images captured by acquisition runs.",
	})); err != nil {
		return nil, err
	}
	if p.fovFailures, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "squid_acquisition_fov_failures_total",
		Help: "FOVs that failed during acquisition runs.",
	})); err != nil {
		return nil, err
	}
	if p.fovDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "squid_acquisition_fov_duration_seconds",
		Help:    "Time spent imaging one FOV.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})); err != nil {
		return nil, err
	}
	if p.progress, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "squid_acquisition_progress_percent",
		Help: "Progress of the current acquisition run.",
	})); err != nil {
		return nil, err
	}
	if p.acquisitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "squid_acquisitions_total",
		Help: "Finished acquisition runs, by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	return p, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func (p *PrometheusCollector) IncFramesReceived()  { p.framesReceived.Inc() }
func (p *PrometheusCollector) IncFramesDelivered() { p.framesDelivered.Inc() }

func (p *PrometheusCollector) IncFramesDropped(reason string) {
	p.framesDropped.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) IncCaptures()    { p.captures.Inc() }
func (p *PrometheusCollector) IncFOVFailures() { p.fovFailures.Inc() }

func (p *PrometheusCollector) ObserveFOVDuration(d time.Duration) {
	p.fovDuration.Observe(d.Seconds())
}

func (p *PrometheusCollector) SetAcquisitionProgress(percent float64) {
	p.progress.Set(percent)
}

func (p *PrometheusCollector) IncAcquisitions(result string) {
	p.acquisitions.WithLabelValues(result).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
