package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squid-go/application"
	"squid-go/domain/experiment"
	"squid-go/infrastructure/telemetry"
	"squid-go/resources"
)

type fixture struct {
	c      *application.Coordinator
	reg    *prometheus.Registry
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	collector, err := telemetry.NewPrometheusCollector(reg)
	require.NoError(t, err)

	cfg := application.DefaultCoordinatorConfig()
	cfg.Resources = resources.Files
	cfg.Collector = collector
	cfg.Acquisition.FrameTimeout = time.Second
	c, err := application.NewCoordinator(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Stop)

	return &fixture{c: c, reg: reg, router: NewRouter(Config{Coordinator: c, Gatherer: reg})}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) sync(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.c.Bus.Sync(ctx))
}

func TestRouter_Status(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var s application.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, "BF LED matrix full", s.Channel)
	assert.Equal(t, "Idle", s.Acquisition)
}

func TestRouter_Listings(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/templates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Len(t, names, 2)

	rec = f.do(t, http.MethodGet, "/channels", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Fluorescence 488 nm Ex")
}

func TestRouter_HardwareCommands(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/camera/exposure", `{"value":33}`).Code)
	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/camera/gain", `{"value":1e6}`).Code)
	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/stage/axis/x/pos?relative=true", `{"value":2}`).Code)
	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/stage/axis/y/pos", `{"value":5}`).Code)
	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/mode", `{"name":"Fluorescence 561 nm Ex"}`).Code)
	f.sync(t)

	s := f.c.Status()
	assert.InDelta(t, 33, s.Camera.ExposureMs, 1e-9)
	assert.InDelta(t, 24, s.Camera.AnalogGain, 1e-9, "gain is clamped to the camera range")
	assert.InDelta(t, 2, s.Stage.X, 1e-9)
	assert.InDelta(t, 5, s.Stage.Y, 1e-9)
	assert.Equal(t, "Fluorescence 561 nm Ex", s.Channel)
}

func TestRouter_BadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"bad axis", http.MethodPost, "/stage/axis/q/pos", `{"value":1}`, http.StatusBadRequest},
		{"bad relative", http.MethodPost, "/stage/axis/x/pos?relative=maybe", `{"value":1}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/camera/exposure", `{`, http.StatusBadRequest},
		{"unknown channel", http.MethodPost, "/mode", `{"name":"nope"}`, http.StatusNotFound},
		{"unknown objective", http.MethodPost, "/objective", `{"name":"100x"}`, http.StatusNotFound},
		{"unknown template", http.MethodPost, "/acquisition/start", `{"name":"nope"}`, http.StatusNotFound},
		{"unknown experiment", http.MethodGet, "/experiments/nope", "", http.StatusNotFound},
		{"unknown captures", http.MethodGet, "/experiments/nope/captures", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestRouter_AcquisitionLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/acquisition/start", `{"name":"wellplate-96-brightfield"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started startResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.ExperimentID)

	second := f.do(t, http.MethodPost, "/acquisition/start", `{"name":"wellplate-96-brightfield"}`)
	if second.Code != http.StatusAccepted {
		assert.Equal(t, http.StatusConflict, second.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	require.NoError(t, f.c.Acquisition.Wait(ctx))

	rec = f.do(t, http.MethodGet, "/experiments/"+started.ExperimentID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var exp experiment.Experiment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exp))
	assert.Equal(t, experiment.StateCompleted, exp.State)
	assert.Equal(t, 16, exp.TotalFOVs)

	rec = f.do(t, http.MethodGet, "/experiments/"+started.ExperimentID+"/captures", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var caps []experiment.Capture
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &caps))
	assert.Len(t, caps, 16)

	rec = f.do(t, http.MethodGet, "/experiments/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/acquisition/stop", "").Code)
	f.sync(t)

	rec = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `squid_acquisitions_total{result="completed"}`)
	n, err := testutil.GatherAndCount(f.reg, "squid_acquisition_captures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestServer_ServeUntilCancelled(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), f.router, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRouter_LaserAFReference(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.c.Laser.HasReference())

	rec := f.do(t, http.MethodPost, "/autofocus/laser/reference", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.sync(t)

	assert.True(t, f.c.Laser.HasReference())
}
