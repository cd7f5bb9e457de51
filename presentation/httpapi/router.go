// Package httpapi exposes the microscope over HTTP. Hardware requests are
// published as commands and answered with 202; their outcome arrives as
// state visible under /status.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"squid-go/application"
	"squid-go/application/acquisition"
	"squid-go/core/command"
	"squid-go/domain/channel"
	"squid-go/domain/experiment"
	"squid-go/domain/hardware"
	"squid-go/infrastructure/telemetry"
)

// Config configures the router.
type Config struct {
	Coordinator *application.Coordinator
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type api struct {
	c      *application.Coordinator
	logger *slog.Logger
}

// NewRouter builds the route table.
func NewRouter(cfg Config) chi.Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &api{c: cfg.Coordinator, logger: cfg.Logger.With("component", "httpapi")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(a.logRequests)

	r.Get("/status", a.status)
	r.Get("/channels", a.channels)
	r.Get("/templates", a.templates)
	r.Handle("/metrics", telemetry.Handler(cfg.Gatherer))

	r.Route("/camera", func(r chi.Router) {
		r.Post("/exposure", a.setExposure)
		r.Post("/gain", a.setGain)
	})
	r.Route("/stage", func(r chi.Router) {
		r.Post("/home", a.home)
		r.Post("/axis/{axis}/pos", a.move)
	})
	r.Post("/mode", a.setMode)
	r.Post("/objective", a.setObjective)
	r.Post("/live/start", a.startLive)
	r.Post("/live/stop", a.publish(func() command.Command { return command.NewStopLive() }))
	r.Post("/autofocus/laser/reference", a.setLaserReference)

	r.Route("/acquisition", func(r chi.Router) {
		r.Post("/start", a.startAcquisition)
		r.Post("/pause", a.publish(func() command.Command { return command.NewPauseAcquisition() }))
		r.Post("/resume", a.publish(func() command.Command { return command.NewResumeAcquisition() }))
		r.Post("/stop", a.publish(func() command.Command { return command.NewStopAcquisition() }))
	})

	r.Route("/experiments", func(r chi.Router) {
		r.Get("/", a.listExperiments)
		r.Get("/{id}", a.getExperiment)
		r.Get("/{id}/captures", a.captures)
	})
	return r
}

// valueRequest carries one number.
type valueRequest struct {
	Value float64 `json:"value"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type startResponse struct {
	ExperimentID string `json:"experiment_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.c.Status())
}

func (a *api) channels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.c.Registry.All())
}

func (a *api) templates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.c.Templates())
}

func (a *api) setExposure(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if !decode(w, r, &req) {
		return
	}
	a.accept(w, command.NewSetExposureTime(req.Value))
}

func (a *api) setGain(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if !decode(w, r, &req) {
		return
	}
	a.accept(w, command.NewSetAnalogGain(req.Value))
}

func (a *api) home(w http.ResponseWriter, r *http.Request) {
	a.accept(w, command.NewHomeStage(hardware.AllAxes...))
}

// move handles absolute moves, or relative ones with ?relative=true.
func (a *api) move(w http.ResponseWriter, r *http.Request) {
	axis, err := hardware.ParseAxis(chi.URLParam(r, "axis"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	relative := false
	if q := r.URL.Query().Get("relative"); q != "" {
		if relative, err = strconv.ParseBool(q); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	var req valueRequest
	if !decode(w, r, &req) {
		return
	}
	if relative {
		a.accept(w, command.NewMoveStage(axis, req.Value))
		return
	}
	a.accept(w, command.NewMoveStageTo(axis, req.Value))
}

func (a *api) setMode(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	if _, ok := a.c.Registry.Get(req.Name); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", channel.ErrUnknownChannel, req.Name))
		return
	}
	a.accept(w, command.NewSetMicroscopeMode(req.Name))
}

func (a *api) setObjective(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	if _, ok := a.c.Registry.Objective(req.Name); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown objective %q", req.Name))
		return
	}
	a.accept(w, command.NewSetObjective(req.Name))
}

func (a *api) setLaserReference(w http.ResponseWriter, r *http.Request) {
	if a.c.LaserAF == nil {
		writeError(w, http.StatusNotFound, errors.New("no laser autofocus configured"))
		return
	}
	a.accept(w, command.NewSetLaserAFReference())
}

func (a *api) startLive(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	a.accept(w, command.NewStartLive(req.Name))
}

// startAcquisition builds and starts a template directly so the caller gets
// the experiment ID or the reason it was refused.
func (a *api) startAcquisition(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := a.c.StartTemplate(req.Name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, startResponse{ExperimentID: id})
	case errors.Is(err, application.ErrUnknownTemplate):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, acquisition.ErrAlreadyRunning), errors.Is(err, acquisition.ErrBusy):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusUnprocessableEntity, err)
	}
}

func (a *api) listExperiments(w http.ResponseWriter, r *http.Request) {
	exps, err := a.c.Experiments.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, exps)
}

func (a *api) getExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := a.c.Experiments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, experimentStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (a *api) captures(w http.ResponseWriter, r *http.Request) {
	caps, err := a.c.Experiments.Captures(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, experimentStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

func experimentStatus(err error) int {
	if errors.Is(err, experiment.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (a *api) publish(build func() command.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.accept(w, build())
	}
}

func (a *api) accept(w http.ResponseWriter, cmd command.Command) {
	a.c.Dispatch(cmd)
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
