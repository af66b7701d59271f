// Package httpapi exposes the timeline control surface and the resolved
// bundle over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"ride-replay/internal/dataset"
	"ride-replay/internal/replay"
	"ride-replay/internal/timeline"
)

// Handler serves the replay API. All methods are safe for concurrent use.
type Handler struct {
	engine *replay.Engine
	ctrl   *timeline.Controller
	store  *dataset.Store
}

func NewHandler(engine *replay.Engine, ctrl *timeline.Controller, store *dataset.Store) *Handler {
	return &Handler{engine: engine, ctrl: ctrl, store: store}
}

// Router wires the handler into a chi router with CORS for the given origins.
func (h *Handler) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/timeline", h.GetTimeline)
		r.Put("/timeline", h.PutTimeline)
		r.Get("/frame", h.GetFrame)
		r.Get("/results/{minute}", h.GetResult)
		r.Get("/datasets", h.GetDatasets)
		r.Get("/stats", h.GetStats)
	})
	return r
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// TimelineResponse is the JSON response for GET /api/timeline
type TimelineResponse struct {
	CurrentTime float64 `json:"currentTime"`
	MinTime     float64 `json:"minTime"`
	MaxTime     float64 `json:"maxTime"`
	Seq         uint64  `json:"seq"`
}

// SetTimeRequest is the body of PUT /api/timeline
type SetTimeRequest struct {
	Time *float64 `json:"time"`
}

// ResultResponse is the JSON response for GET /api/results/{minute}
type ResultResponse struct {
	Result    dataset.ResultRecord      `json:"resultRecord"`
	Histogram []dataset.HistogramBucket `json:"histogram"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	state := "ready"
	if !h.store.Ready() {
		state = "loading"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"state":     state,
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	tick := h.ctrl.Current()
	min, max := h.ctrl.Bounds()
	writeJSON(w, http.StatusOK, TimelineResponse{CurrentTime: tick.Time, MinTime: min, MaxTime: max, Seq: tick.Seq})
}

// PutTimeline moves the current time (clamped to the bounds) and returns the
// frame resolved for it.
func (h *Handler) PutTimeline(w http.ResponseWriter, r *http.Request) {
	var req SetTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Time == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing time"})
		return
	}
	f, err := h.engine.SetTime(*req.Time)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// GetFrame returns the committed frame. With ?at=T it resolves a frame for T
// without moving the timeline.
func (h *Handler) GetFrame(w http.ResponseWriter, r *http.Request) {
	at := r.URL.Query().Get("at")
	if at == "" {
		f, err := h.engine.Latest()
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
		return
	}
	t, err := strconv.ParseFloat(at, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid at"})
		return
	}
	snap, err := h.store.Snapshot()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	min, max := h.ctrl.Bounds()
	t = timeline.Clamp(t, min, max)
	writeJSON(w, http.StatusOK, replay.Resolve(snap, timeline.Tick{Time: t}, min, max))
}

func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	minute, err := strconv.Atoi(chi.URLParam(r, "minute"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid minute"})
		return
	}
	snap, err := h.store.Snapshot()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	res := replay.ResolveResult(snap, float64(minute))
	writeJSON(w, http.StatusOK, ResultResponse{Result: res, Histogram: res.HistogramSeries()})
}

func (h *Handler) GetDatasets(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Snapshot()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": snap.Statuses})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Snapshot()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if snap.Summary == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "stats summary unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, snap.Summary)
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, dataset.ErrNotReady) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"state": "loading"})
		return
	}
	log.Printf("http: %v", err)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}
