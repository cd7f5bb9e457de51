// Package stream carries image frames from the camera to display sinks. It is
// the data plane: frames never travel over the event bus.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"squid-go/core/event"
	"squid-go/domain/hardware"
	"squid-go/infrastructure/telemetry"
)

// ErrClosed is returned by Sync after Close.
var ErrClosed = errors.New("stream handler closed")

// Drop reasons reported to telemetry.
const (
	DropThrottled = "throttled"
	DropFPSLimit  = "fps_limit"
	DropQueueFull = "queue_full"
	DropIgnored   = "ignored"
)

// CaptureInfo describes where a frame was taken. Live frames carry only
// Live=true.
type CaptureInfo struct {
	ExperimentID string
	FOV          event.FOVRef
	ZIndex       int
	Channel      string
	X, Y, Z      float64
	Live         bool
}

// Sink receives delivered frames on the handler's delivery goroutine. Sinks
// must not modify the pixel buffer.
type Sink interface {
	OnFrame(frame hardware.Frame, info CaptureInfo)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(frame hardware.Frame, info CaptureInfo)

func (f SinkFunc) OnFrame(frame hardware.Frame, info CaptureInfo) { f(frame, info) }

// Initializer is implemented by sinks that size their display from the
// first frame. It is called once before that frame is delivered.
type Initializer interface {
	InitDisplay(width, height int)
}

// SinkID identifies a registered sink.
type SinkID uint64

// Config configures a Handler.
type Config struct {
	// QueueSize bounds frames waiting for delivery; further frames are dropped.
	QueueSize int
	// LiveFPS caps display delivery in live mode. Zero disables the cap.
	LiveFPS   float64
	Logger    *slog.Logger
	Collector telemetry.Collector
}

// DefaultConfig returns handler defaults.
func DefaultConfig() Config {
	return Config{QueueSize: 64, LiveFPS: 30}
}

type item struct {
	frame   hardware.Frame
	info    CaptureInfo
	barrier chan struct{}
}

type sinkEntry struct {
	id   SinkID
	sink Sink
}

// Handler routes frames to sinks through one delivery goroutine, so sinks
// see frames strictly in arrival order and never concurrently.
type Handler struct {
	cfg       Config
	logger    *slog.Logger
	collector telemetry.Collector

	mu          sync.Mutex
	sinks       []sinkEntry
	nextID      SinkID
	everyN      int
	counter     int
	pending     []item
	acquiring   bool
	live        bool
	lastLive    time.Time
	initialized bool

	fpsMu      sync.Mutex
	fpsStart   time.Time
	fpsFrames  int
	fps        float64
	totalCount int64

	queue chan item
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// New starts a handler.
func New(cfg Config) *Handler {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Collector == nil {
		cfg.Collector = telemetry.Noop()
	}
	h := &Handler{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "stream_handler"),
		collector: cfg.Collector,
		queue:     make(chan item, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

// AddSink registers a sink and returns its id.
func (h *Handler) AddSink(s Sink) SinkID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.sinks = append(h.sinks, sinkEntry{id: h.nextID, sink: s})
	return h.nextID
}

// RemoveSink unregisters a sink. Unknown ids are ignored.
func (h *Handler) RemoveSink(id SinkID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.sinks {
		if e.id == id {
			h.sinks = append(h.sinks[:i:i], h.sinks[i+1:]...)
			return
		}
	}
}

// SetLiveMode switches live preview on or off. Live mode disables throttling
// and applies the display FPS cap.
func (h *Handler) SetLiveMode(live bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live = live
	h.lastLive = time.Time{}
	if live {
		h.everyN = 0
		h.pending = nil
	}
}

// BeginAcquisition prepares for an acquisition run. Only frames passed to
// OnFrameCaptured are routed until EndAcquisition, and display receives
// every Nth of them. everyN <= 1 delivers every frame.
func (h *Handler) BeginAcquisition(everyN int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.acquiring = true
	h.live = false
	h.everyN = everyN
	h.counter = 0
	h.pending = nil
	h.initialized = false
}

// EndAcquisition delivers the buffered frames and leaves acquisition mode.
func (h *Handler) EndAcquisition() {
	h.FlushPending()
	h.mu.Lock()
	h.acquiring = false
	h.everyN = 0
	h.mu.Unlock()
}

// OnFrame is the camera callback. Raw frames are routed as live frames and
// ignored while an acquisition is running, since the acquisition worker
// routes its own frames with capture metadata.
func (h *Handler) OnFrame(f hardware.Frame) {
	h.mu.Lock()
	acquiring := h.acquiring
	h.mu.Unlock()
	if acquiring {
		h.collector.IncFramesDropped(DropIgnored)
		return
	}
	h.OnFrameCaptured(f, CaptureInfo{Live: true})
}

// OnFrameCaptured routes one frame. It may be called from any goroutine and
// never blocks on sinks.
func (h *Handler) OnFrameCaptured(f hardware.Frame, info CaptureInfo) {
	h.collector.IncFramesReceived()
	h.countFPS()

	h.mu.Lock()
	it := item{frame: f, info: info}
	if h.live && h.cfg.LiveFPS > 0 {
		now := time.Now()
		if !h.lastLive.IsZero() && now.Sub(h.lastLive) < time.Duration(float64(time.Second)/h.cfg.LiveFPS) {
			h.mu.Unlock()
			h.collector.IncFramesDropped(DropFPSLimit)
			return
		}
		h.lastLive = now
	}
	var batch []item
	if h.everyN > 1 {
		h.counter++
		if h.counter%h.everyN != 0 {
			h.pending = append(h.pending, it)
			if len(h.pending) > h.everyN-1 {
				h.pending = h.pending[1:]
			}
			h.mu.Unlock()
			return
		}
		// buffered frames go out ahead of the Nth frame
		batch = h.pending
		h.pending = nil
	}
	// enqueued under h.mu so FlushPending cannot interleave
	for _, b := range batch {
		h.enqueue(b)
	}
	h.enqueue(it)
	h.mu.Unlock()
}

// FlushPending delivers the frames held back by throttling, oldest first.
func (h *Handler) FlushPending() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, it := range h.pending {
		h.enqueue(it)
	}
	h.pending = nil
}

func (h *Handler) enqueue(it item) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.queue <- it:
	case <-h.done:
	default:
		h.collector.IncFramesDropped(DropQueueFull)
		h.logger.Warn("Dropping frame, delivery queue full", "frame", it.frame.ID)
	}
}

func (h *Handler) countFPS() {
	h.fpsMu.Lock()
	defer h.fpsMu.Unlock()
	now := time.Now()
	h.totalCount++
	if h.fpsStart.IsZero() {
		h.fpsStart = now
	}
	h.fpsFrames++
	if elapsed := now.Sub(h.fpsStart); elapsed >= time.Second {
		h.fps = float64(h.fpsFrames) / elapsed.Seconds()
		h.fpsStart = now
		h.fpsFrames = 0
	}
}

// FPS returns the incoming frame rate measured over the last second.
func (h *Handler) FPS() float64 {
	h.fpsMu.Lock()
	defer h.fpsMu.Unlock()
	return h.fps
}

// FrameCount returns the number of frames received.
func (h *Handler) FrameCount() int64 {
	h.fpsMu.Lock()
	defer h.fpsMu.Unlock()
	return h.totalCount
}

// Sync waits until every frame queued before the call has been delivered.
func (h *Handler) Sync(ctx context.Context) error {
	select {
	case <-h.done:
		return ErrClosed
	default:
	}

	barrier := make(chan struct{})
	select {
	case h.queue <- item{barrier: barrier}:
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-barrier:
		return nil
	case <-h.done:
		h.wg.Wait()
		select {
		case <-barrier:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close delivers queued frames and stops the delivery goroutine.
func (h *Handler) Close() {
	h.once.Do(func() {
		close(h.done)
		h.wg.Wait()
	})
}

func (h *Handler) run() {
	defer h.wg.Done()
	for {
		select {
		case it := <-h.queue:
			h.deliver(it)
		case <-h.done:
			for {
				select {
				case it := <-h.queue:
					h.deliver(it)
				default:
					return
				}
			}
		}
	}
}

func (h *Handler) deliver(it item) {
	if it.barrier != nil {
		close(it.barrier)
		return
	}

	h.mu.Lock()
	sinks := h.sinks
	first := !h.initialized
	h.initialized = true
	h.mu.Unlock()

	for _, e := range sinks {
		if first {
			if in, ok := e.sink.(Initializer); ok {
				h.safe(func() { in.InitDisplay(it.frame.Width, it.frame.Height) })
			}
		}
		h.safe(func() { e.sink.OnFrame(it.frame, it.info) })
	}
	h.collector.IncFramesDelivered()
}

func (h *Handler) safe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Frame sink panicked", "panic", r)
		}
	}()
	fn()
}
