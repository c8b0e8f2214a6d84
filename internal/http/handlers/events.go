package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/streampulse/internal/events"
)

// defaultHeartbeatInterval keeps idle SSE connections alive through proxies.
const defaultHeartbeatInterval = 30 * time.Second

// EventsHandler streams bus events to clients over SSE.
type EventsHandler struct {
	bus               *events.Bus
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// NewEventsHandler creates an SSE handler over the given bus.
func NewEventsHandler(bus *events.Bus, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		bus:               bus,
		heartbeatInterval: defaultHeartbeatInterval,
		logger:            logger.With("component", "events_handler"),
	}
}

// SetHeartbeatInterval overrides the heartbeat interval, for tests.
func (h *EventsHandler) SetHeartbeatInterval(interval time.Duration) {
	h.heartbeatInterval = interval
}

// Register mounts the events route on the router.
func (h *EventsHandler) Register(r chi.Router) {
	r.Get("/events", h.StreamEvents)
}

// StreamEvents serves the event feed until the client disconnects. Each bus
// event becomes one SSE message with the topic as the event name.
func (h *EventsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub.ID)

	rc := http.NewResponseController(w)

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	// An initial comment establishes the connection and triggers onopen in
	// browsers.
	fmt.Fprintf(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		h.logger.Debug("initial flush failed", slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				h.logger.Debug("heartbeat flush failed, client likely disconnected",
					slog.String("error", err.Error()))
				return
			}
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				h.logger.Debug("writing event failed",
					slog.String("topic", event.Topic),
					slog.String("error", err.Error()))
				return
			}
			if err := rc.Flush(); err != nil {
				h.logger.Debug("event flush failed, client likely disconnected",
					slog.String("topic", event.Topic),
					slog.String("error", err.Error()))
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event events.Event) error {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		_, writeErr := fmt.Fprintf(w, "event: %s\ndata: {\"error\": \"marshal error\"}\n\n", event.Topic)
		if writeErr != nil {
			return writeErr
		}
		return nil
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Topic, data)
	return err
}
