package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/genbridge/genbridge/internal/adapter"
	mw "github.com/genbridge/genbridge/internal/api/middleware"
	"github.com/genbridge/genbridge/internal/api/response"
	"github.com/genbridge/genbridge/internal/credential"
	"github.com/genbridge/genbridge/pkg/models"
)

// Submitter runs tasks end to end. Implemented by the task service.
type Submitter interface {
	Submit(ctx context.Context, tenantID uuid.UUID, vendor string, req models.TaskRequest) (*models.TaskResult, error)
	SubmitStream(ctx context.Context, tenantID uuid.UUID, vendor string, req models.TaskRequest, onDelta func(string)) (*models.TaskResult, error)
}

// StatusReader looks up the cached lifecycle status of a task.
type StatusReader interface {
	GetTaskStatus(ctx context.Context, taskID string) (string, bool, error)
}

type taskRequestBody struct {
	Vendor         string            `json:"vendor"`
	Kind           string            `json:"kind"`
	Prompt         string            `json:"prompt"`
	NegativePrompt string            `json:"negative_prompt"`
	Seed           *int64            `json:"seed"`
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	Steps          int               `json:"steps"`
	Extras         map[string]string `json:"extras"`
}

var validKinds = map[models.TaskKind]bool{
	models.KindChat:          true,
	models.KindPromptRefine:  true,
	models.KindTextToImage:   true,
	models.KindImageToPrompt: true,
	models.KindImageToVideo:  true,
	models.KindTextToVideo:   true,
	models.KindImageEdit:     true,
}

func decodeTaskRequest(w http.ResponseWriter, r *http.Request) (string, models.TaskRequest, bool) {
	var body taskRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return "", models.TaskRequest{}, false
	}

	if body.Vendor == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "vendor is required", nil)
		return "", models.TaskRequest{}, false
	}

	kind := models.TaskKind(body.Kind)
	if !validKinds[kind] {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			fmt.Sprintf("kind %q is not a known task kind", body.Kind), nil)
		return "", models.TaskRequest{}, false
	}

	if body.Prompt == "" && kind != models.KindImageToPrompt {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "prompt is required", nil)
		return "", models.TaskRequest{}, false
	}

	return body.Vendor, models.TaskRequest{
		Kind:           kind,
		Prompt:         body.Prompt,
		NegativePrompt: body.NegativePrompt,
		Seed:           body.Seed,
		Width:          body.Width,
		Height:         body.Height,
		Steps:          body.Steps,
		Extras:         body.Extras,
	}, true
}

// NewSubmitTaskHandler returns the handler for POST /api/v1/tasks. The call
// blocks until the task reaches a terminal state; live progress is available
// on the events stream.
func NewSubmitTaskHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		vendor, req, ok := decodeTaskRequest(w, r)
		if !ok {
			return
		}

		result, err := svc.Submit(r.Context(), tenantID, vendor, req)
		if err != nil {
			writeTaskError(w, err)
			return
		}

		response.JSON(w, result)
	}
}

// NewStreamTaskHandler returns the handler for POST /api/v1/tasks/stream.
// Chat deltas are written as SSE events, ending with a "result" event
// carrying the terminal TaskResult.
func NewStreamTaskHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		vendor, req, ok := decodeTaskRequest(w, r)
		if !ok {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Streaming unsupported", nil)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		result, err := svc.SubmitStream(r.Context(), tenantID, vendor, req, func(delta string) {
			payload, _ := json.Marshal(map[string]string{"delta": delta})
			fmt.Fprintf(w, "event: delta\ndata: %s\n\n", payload)
			flusher.Flush()
		})
		if err != nil {
			// Headers are already on the wire; the error becomes a
			// terminal SSE event instead of a status code.
			payload, _ := json.Marshal(map[string]string{"error": err.Error()})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
			flusher.Flush()
			return
		}

		payload, _ := json.Marshal(result)
		fmt.Fprintf(w, "event: result\ndata: %s\n\n", payload)
		flusher.Flush()
	}
}

// NewGetTaskStatusHandler returns the handler for GET /api/v1/tasks/{taskID}.
func NewGetTaskStatusHandler(statuses StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		if _, err := uuid.Parse(taskID); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "taskID must be a UUID", nil)
			return
		}

		status, found, err := statuses.GetTaskStatus(r.Context(), taskID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read task status", nil)
			return
		}
		if !found {
			response.Error(w, http.StatusNotFound, "TASK_NOT_FOUND", "Unknown or expired task", nil)
			return
		}

		response.JSON(w, map[string]string{"id": taskID, "status": status})
	}
}

// writeTaskError maps dispatch errors onto HTTP statuses. Vendor failures
// are the vendor's fault (502), resolution failures are the caller's (4xx).
func writeTaskError(w http.ResponseWriter, err error) {
	var (
		vce *adapter.VendorCallError
		uce *adapter.UnsupportedCapabilityError
	)

	switch {
	case errors.Is(err, credential.ErrNoCredential):
		response.Error(w, http.StatusBadRequest, "NO_CREDENTIAL",
			"No usable credential for this vendor", nil)
	case errors.Is(err, credential.ErrMisconfigured):
		response.Error(w, http.StatusUnprocessableEntity, "CREDENTIAL_MISCONFIGURED",
			"A credential record exists but is incomplete", nil)
	case errors.As(err, &uce):
		response.Error(w, http.StatusBadRequest, "UNSUPPORTED_CAPABILITY", uce.Error(), nil)
	case errors.Is(err, adapter.ErrPollTimeout):
		response.Error(w, http.StatusGatewayTimeout, "POLL_TIMEOUT",
			"The vendor did not finish the job in time", nil)
	case errors.As(err, &vce):
		response.Error(w, http.StatusBadGateway, "VENDOR_ERROR", vce.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
