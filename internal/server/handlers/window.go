package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/eventwindow/eventwindow/internal/core"
	"github.com/eventwindow/eventwindow/internal/core/engine"
	"github.com/eventwindow/eventwindow/internal/core/store"
	"github.com/eventwindow/eventwindow/internal/core/window"
	apperrors "github.com/eventwindow/eventwindow/internal/errors"
)

const maxBodyBytes = 4096

// RunLister reads completed windows from history.
type RunLister interface {
	ListRuns(ctx context.Context, q store.RunQuery) ([]core.WindowRun, error)
}

// WindowHandler exposes a tracker over HTTP.
type WindowHandler struct {
	tracker *engine.Tracker
	runs    RunLister
}

// NewWindowHandler creates a handler. runs may be nil when history is disabled.
func NewWindowHandler(tracker *engine.Tracker, runs RunLister) *WindowHandler {
	return &WindowHandler{tracker: tracker, runs: runs}
}

// LimitResponse reports the window limit.
type LimitResponse struct {
	Result string          `json:"result,omitempty"`
	Limit  window.Duration `json:"limit"`
}

// TickResponse reports the outcome of a lifecycle operation.
type TickResponse struct {
	Result string           `json:"result"`
	T      window.Timestamp `json:"t"`
}

// StopResponse reports a stopped window and the run it produced.
type StopResponse struct {
	Result   string           `json:"result"`
	T        window.Timestamp `json:"t"`
	Run      *core.WindowRun  `json:"run,omitempty"`
	Recorded bool             `json:"recorded"`
}

// WindowTimeResponse reports the window span at a tick.
type WindowTimeResponse struct {
	T          window.Timestamp `json:"t"`
	WindowTime window.Duration  `json:"window_time"`
}

// EventResponse reports the live event count at a tick.
type EventResponse struct {
	Result string           `json:"result,omitempty"`
	T      window.Timestamp `json:"t"`
	Count  window.Count     `json:"count"`
}

// RunsResponse lists stored runs, newest first.
type RunsResponse struct {
	Runs  []core.WindowRun `json:"runs"`
	Count int              `json:"count"`
}

type windowRequest struct {
	T     *uint32 `json:"t"`
	Limit *uint32 `json:"limit"`
}

// GetLimit handles GET /v1/window/limit.
func (h *WindowHandler) GetLimit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, LimitResponse{Limit: h.tracker.Limit()})
}

// SetLimit handles PUT /v1/window/limit.
func (h *WindowHandler) SetLimit(w http.ResponseWriter, r *http.Request) {
	body, err := decodeWindowRequest(w, r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if body.Limit == nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("limit is required"))
		return
	}

	limit := window.Duration(*body.Limit)
	res := h.tracker.SetLimit(limit)
	if envelope := apperrors.FromResult(r.Context(), "limit_set", res); envelope != nil {
		respondWithError(w, r, envelope)
		return
	}
	writeJSON(w, r, http.StatusOK, LimitResponse{Result: res.String(), Limit: limit})
}

// Start handles POST /v1/window/start.
func (h *WindowHandler) Start(w http.ResponseWriter, r *http.Request) {
	ts, err := h.bodyTick(w, r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	res := h.tracker.Start(ts)
	if envelope := apperrors.FromResult(r.Context(), "start", res); envelope != nil {
		respondWithError(w, r, envelope)
		return
	}
	writeJSON(w, r, http.StatusOK, TickResponse{Result: res.String(), T: ts})
}

// Stop handles POST /v1/window/stop. A run that could not be saved is still
// returned, with recorded set to false.
func (h *WindowHandler) Stop(w http.ResponseWriter, r *http.Request) {
	ts, err := h.bodyTick(w, r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	res, run, saveErr := h.tracker.Stop(r.Context(), ts)
	if envelope := apperrors.FromResult(r.Context(), "stop", res); envelope != nil {
		respondWithError(w, r, envelope)
		return
	}
	writeJSON(w, r, http.StatusOK, StopResponse{
		Result:   res.String(),
		T:        ts,
		Run:      run,
		Recorded: h.tracker.Recording() && saveErr == nil,
	})
}

// WindowTime handles GET /v1/window/time.
func (h *WindowHandler) WindowTime(w http.ResponseWriter, r *http.Request) {
	ts, err := h.queryTick(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, WindowTimeResponse{T: ts, WindowTime: h.tracker.WindowTime(ts)})
}

// AddEvent handles POST /v1/events.
func (h *WindowHandler) AddEvent(w http.ResponseWriter, r *http.Request) {
	ts, err := h.bodyTick(w, r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	res, count := h.tracker.Add(ts)
	if envelope := apperrors.FromResult(r.Context(), "event_add", res); envelope != nil {
		respondWithError(w, r, envelope)
		return
	}
	writeJSON(w, r, http.StatusOK, EventResponse{Result: res.String(), T: ts, Count: count})
}

// EventCount handles GET /v1/events/count.
func (h *WindowHandler) EventCount(w http.ResponseWriter, r *http.Request) {
	ts, err := h.queryTick(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, EventResponse{T: ts, Count: h.tracker.Count(ts)})
}

// ClearEvents handles DELETE /v1/events. t is optional.
func (h *WindowHandler) ClearEvents(w http.ResponseWriter, r *http.Request) {
	ts, err := h.queryTick(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	h.tracker.Clear(ts)
	w.WriteHeader(http.StatusNoContent)
}

// Snapshot handles GET /v1/snapshot.
func (h *WindowHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	ts, err := h.queryTick(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.tracker.Snapshot(ts))
}

// Runs handles GET /v1/runs.
func (h *WindowHandler) Runs(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("run history is disabled"))
		return
	}

	limit := store.DefaultRunLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondWithError(w, r, apperrors.NewInvalidInputError("limit must be a positive integer"))
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), store.RunQuery{All: true, Limit: limit})
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "Failed to list window runs"))
		return
	}
	if runs == nil {
		runs = []core.WindowRun{}
	}
	writeJSON(w, r, http.StatusOK, RunsResponse{Runs: runs, Count: len(runs)})
}

// bodyTick reads the optional t from a JSON body, defaulting to the tracker clock.
func (h *WindowHandler) bodyTick(w http.ResponseWriter, r *http.Request) (window.Timestamp, error) {
	body, err := decodeWindowRequest(w, r)
	if err != nil {
		return 0, err
	}
	if body.T == nil {
		return h.tracker.Now(), nil
	}
	return window.Timestamp(*body.T), nil
}

// queryTick reads the optional t query parameter, defaulting to the tracker clock.
func (h *WindowHandler) queryTick(r *http.Request) (window.Timestamp, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("t"))
	if raw == "" {
		return h.tracker.Now(), nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, apperrors.WrapInvalidInput(r.Context(), err, fmt.Sprintf("t must be an unsigned 32-bit tick, got %q", raw))
	}
	return window.Timestamp(v), nil
}

func decodeWindowRequest(w http.ResponseWriter, r *http.Request) (windowRequest, error) {
	var body windowRequest
	if r.Body == nil {
		return body, nil
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return body, apperrors.WrapInvalidInput(r.Context(), err, "Unable to read request body")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return body, nil
	}
	if err := sonic.Unmarshal(data, &body); err != nil {
		return body, apperrors.WrapInvalidInput(r.Context(), err, "Request body must be a JSON object with optional t and limit")
	}
	return body, nil
}
