package models

import (
	"time"

	"github.com/google/uuid"
)

// ProgressEvent is one task lifecycle update fanned out to a tenant's
// subscribers. Fire-and-forget: no acknowledgment, no replay.
type ProgressEvent struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Assets    []Asset   `json:"assets,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressFunc receives progress events from adapters and the poller.
// Implementations must not block the caller.
type ProgressFunc func(event ProgressEvent)

// ClampProgress normalizes vendor-reported progress to the 0–100 range.
// Fractional values in (0, 1] are treated as ratios and rescaled.
func ClampProgress(raw float64) int {
	if raw > 0 && raw <= 1 {
		raw *= 100
	}
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return int(raw)
}
