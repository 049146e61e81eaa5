package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	mw "github.com/genbridge/genbridge/internal/api/middleware"
	"github.com/genbridge/genbridge/internal/api/response"
	"github.com/genbridge/genbridge/pkg/models"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 25 * time.Second

// EventSource exposes per-tenant progress subscriptions. Implemented by the
// progress bus.
type EventSource interface {
	Subscribe(tenantID uuid.UUID) (<-chan models.ProgressEvent, func())
}

// NewEventsHandler returns the handler for GET /api/v1/events: a
// server-sent-events stream of this tenant's task progress. The stream stays
// open until the client disconnects.
func NewEventsHandler(source EventSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Streaming unsupported", nil)
			return
		}

		events, cancel := source.Subscribe(tenantID)
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case event, open := <-events:
				if !open {
					return
				}
				payload, err := json.Marshal(event)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}
}
