// Package models contains shared data models used across the GenBridge codebase.
package models

import "encoding/json"

// TaskKind identifies which generative capability a task requests.
type TaskKind string

const (
	KindChat          TaskKind = "chat"
	KindPromptRefine  TaskKind = "prompt_refine"
	KindTextToImage   TaskKind = "text_to_image"
	KindImageToPrompt TaskKind = "image_to_prompt"
	KindImageToVideo  TaskKind = "image_to_video"
	KindTextToVideo   TaskKind = "text_to_video"
	KindImageEdit     TaskKind = "image_edit"
)

// Task lifecycle statuses. A task is terminal once succeeded or failed.
const (
	TaskStatusQueued    = "queued"
	TaskStatusRunning   = "running"
	TaskStatusSucceeded = "succeeded"
	TaskStatusFailed    = "failed"
)

// TaskRequest describes one generative task. Immutable once submitted;
// vendor-specific knobs travel in Extras (model override, reference image
// URLs, aspect ratio, streaming toggle) so the dispatcher stays vendor-agnostic.
type TaskRequest struct {
	Kind           TaskKind          `json:"kind"`
	Prompt         string            `json:"prompt"`
	NegativePrompt string            `json:"negative_prompt,omitempty"`
	Seed           *int64            `json:"seed,omitempty"`
	Width          int               `json:"width,omitempty"`
	Height         int               `json:"height,omitempty"`
	Steps          int               `json:"steps,omitempty"`
	Extras         map[string]string `json:"extras,omitempty"`
}

// Extra returns a vendor knob from Extras, or def when absent.
func (r TaskRequest) Extra(key, def string) string {
	if v, ok := r.Extras[key]; ok && v != "" {
		return v
	}
	return def
}

// AssetType enumerates the media kinds a task can produce.
type AssetType string

const (
	AssetTypeImage AssetType = "image"
	AssetTypeVideo AssetType = "video"
)

// Asset is one piece of generated media. Before ingestion URL points at a
// vendor host; after ingestion it points at durable storage.
type Asset struct {
	Type         AssetType `json:"type"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// TaskResult is the terminal output of one task invocation. Raw holds the
// vendor's opaque response payload for audit.
type TaskResult struct {
	ID     string          `json:"id"`
	Kind   TaskKind        `json:"kind"`
	Status string          `json:"status"`
	Text   string          `json:"text,omitempty"`
	Assets []Asset         `json:"assets,omitempty"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}
