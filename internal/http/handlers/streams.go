package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/streampulse/internal/models"
	"github.com/jmylchreest/streampulse/internal/repository"
)

// defaultMetricsWindow is how far back the metrics endpoint looks when no
// range is given.
const defaultMetricsWindow = time.Hour

// StreamHandler serves stream records and their metric history.
type StreamHandler struct {
	streams repository.StreamRepository
	metrics repository.MetricRepository
	logger  *slog.Logger
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(streams repository.StreamRepository, metrics repository.MetricRepository, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		streams: streams,
		metrics: metrics,
		logger:  logger.With("component", "stream_handler"),
	}
}

// Register mounts the stream routes on the router.
func (h *StreamHandler) Register(r chi.Router) {
	r.Get("/streams", h.ListStreams)
	r.Get("/streams/{id}", h.GetStream)
	r.Get("/streams/{id}/errors", h.GetStreamErrors)
	r.Get("/streams/{id}/metrics", h.GetStreamMetrics)
}

// ListStreams returns all monitored streams. The "url" query parameter
// narrows the list to the stream with that exact source URL.
func (h *StreamHandler) ListStreams(w http.ResponseWriter, r *http.Request) {
	if url := r.URL.Query().Get("url"); url != "" {
		stream, err := h.streams.GetByURL(r.Context(), url)
		if err != nil {
			h.logger.Error("looking up stream by URL failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "listing streams failed")
			return
		}
		matches := []*models.Stream{}
		if stream != nil {
			matches = append(matches, stream)
		}
		writeJSON(w, http.StatusOK, matches)
		return
	}

	streams, err := h.streams.GetAll(r.Context())
	if err != nil {
		h.logger.Error("listing streams failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "listing streams failed")
		return
	}
	writeJSON(w, http.StatusOK, streams)
}

// GetStream returns a single stream record.
func (h *StreamHandler) GetStream(w http.ResponseWriter, r *http.Request) {
	stream, ok := h.loadStream(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, stream)
}

// GetStreamErrors returns a stream's ledger entries.
func (h *StreamHandler) GetStreamErrors(w http.ResponseWriter, r *http.Request) {
	stream, ok := h.loadStream(w, r)
	if !ok {
		return
	}
	errors := stream.StreamErrors
	if errors == nil {
		errors = models.ErrorList{}
	}
	writeJSON(w, http.StatusOK, errors)
}

// GetStreamMetrics returns the stream's metric samples within the requested
// window. The "window" query parameter accepts a Go duration and defaults to
// one hour.
func (h *StreamHandler) GetStreamMetrics(w http.ResponseWriter, r *http.Request) {
	stream, ok := h.loadStream(w, r)
	if !ok {
		return
	}

	window := defaultMetricsWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window duration")
			return
		}
		window = parsed
	}

	samples, err := h.metrics.ListByStream(r.Context(), stream.ID, time.Now().Add(-window))
	if err != nil {
		h.logger.Error("listing metrics failed",
			slog.String("stream_id", stream.ID.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "listing metrics failed")
		return
	}
	if samples == nil {
		samples = []*models.Metric{}
	}
	writeJSON(w, http.StatusOK, samples)
}

// loadStream resolves the {id} path parameter to a stream record, writing
// the error response itself when the lookup fails.
func (h *StreamHandler) loadStream(w http.ResponseWriter, r *http.Request) (*models.Stream, bool) {
	id, err := models.ParseULID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stream id")
		return nil, false
	}

	stream, err := h.streams.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("loading stream failed",
			slog.String("stream_id", id.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "loading stream failed")
		return nil, false
	}
	if stream == nil {
		writeError(w, http.StatusNotFound, "stream not found")
		return nil, false
	}
	return stream, true
}
