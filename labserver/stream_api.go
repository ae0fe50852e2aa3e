package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/virtlab-edu/virtlab-go/internal/platform/auth"
	"github.com/virtlab-edu/virtlab-go/internal/platform/httpserver"
	"github.com/virtlab-edu/virtlab-go/internal/platform/notify"
)

type streamAPI struct {
	logger *slog.Logger
	events *notify.Registry
}

func newStreamAPI(logger *slog.Logger, events *notify.Registry) *streamAPI {
	return &streamAPI{logger: logger, events: events}
}

func (api *streamAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/runs/events", api.handleRunEvents)
}

func writeSSE(w http.ResponseWriter, event string, payload any) error {
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", blob); err != nil {
		return err
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// handleRunEvents streams run lifecycle events as SSE. Admins see every
// event; students only events for their own runs.
func (api *streamAPI) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Message: "missing identity"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}
	flusher.Flush()

	reqID, _ := httpserver.RequestIDFromContext(r.Context())
	_ = writeSSE(w, "ready", map[string]any{
		"server_ts":  time.Now().UTC().Unix(),
		"request_id": reqID,
	})

	events, cancel := api.events.Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			if !identity.IsAdmin() && event.UserID != identity.UserID {
				continue
			}
			if err := writeSSE(w, event.Type, event); err != nil {
				api.logger.Debug("run event stream write failed", "error", err)
				return
			}
		}
	}
}
