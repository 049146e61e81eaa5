// Package kling integrates the Kling video generation API, a
// create-then-poll vendor: task creation returns a job ID and the media URL
// becomes available only after polling reaches a terminal state.
package kling

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/genbridge/genbridge/internal/adapter"
	"github.com/genbridge/genbridge/internal/config"
	"github.com/genbridge/genbridge/pkg/models"
)

const vendorName = "kling"

type Adapter struct {
	cfg    config.KlingConfig
	client *http.Client
}

func New(cfg config.KlingConfig) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *Adapter) Name() string { return vendorName }

// --- wire types ---

type createRequest struct {
	ModelName      string `json:"model_name"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Image          string `json:"image,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	Duration       string `json:"duration,omitempty"`
	Mode           string `json:"mode,omitempty"`
}

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type createData struct {
	TaskID string `json:"task_id"`
}

type taskData struct {
	TaskID        string `json:"task_id"`
	TaskStatus    string `json:"task_status"`
	TaskStatusMsg string `json:"task_status_msg"`
	TaskResult    struct {
		Videos []struct {
			URL      string `json:"url"`
			CoverURL string `json:"cover_image_url"`
		} `json:"videos"`
	} `json:"task_result"`
}

// --- capabilities ---

func (a *Adapter) TextToVideo(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error) {
	return a.generate(ctx, req, pctx, "/v1/videos/text2video", "")
}

func (a *Adapter) ImageToVideo(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error) {
	image := req.Extra("image_url", "")
	if image == "" {
		return nil, &adapter.VendorCallError{Vendor: vendorName, Message: "image_to_video requires extras.image_url"}
	}
	return a.generate(ctx, req, pctx, "/v1/videos/image2video", image)
}

func (a *Adapter) generate(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext, path, image string) (*models.TaskResult, error) {
	body := createRequest{
		ModelName:      a.model(req, pctx),
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Image:          image,
		AspectRatio:    req.Extra("aspect_ratio", ""),
		Duration:       req.Extra("duration", ""),
		Mode:           req.Extra("mode", ""),
	}

	var out envelope[createData]
	if err := adapter.PostJSON(ctx, a.client, vendorName, pctx.BaseURL+path, pctx.SecretKey, body, &out); err != nil {
		return nil, err
	}
	if out.Code != 0 {
		return nil, &adapter.VendorCallError{Vendor: vendorName, Message: fmt.Sprintf("create rejected (code %d): %s", out.Code, out.Message)}
	}
	if out.Data.TaskID == "" {
		return nil, &adapter.VendorCallError{Vendor: vendorName, Message: "create response missing task_id"}
	}

	// The dispatcher has already moved the task to running; reporting the
	// accepted job as queued would walk the stream backwards.
	pctx.Emit(models.ProgressEvent{
		TenantID:  pctx.TenantID,
		TaskID:    out.Data.TaskID,
		Status:    models.TaskStatusRunning,
		Message:   "job accepted",
		Timestamp: time.Now().UTC(),
	})

	asset, err := a.poller(path).Poll(ctx, pctx, out.Data.TaskID)
	if err != nil {
		return nil, err
	}

	return &models.TaskResult{
		ID:     out.Data.TaskID,
		Kind:   req.Kind,
		Status: models.TaskStatusSucceeded,
		Assets: []models.Asset{asset},
	}, nil
}

func (a *Adapter) poller(path string) *adapter.Poller {
	return &adapter.Poller{
		Vendor:    vendorName,
		Fetch:     a.fetchStatus(path),
		Interval:  a.cfg.PollInterval,
		Timeout:   a.cfg.PollTimeout,
		AssetType: models.AssetTypeVideo,
	}
}

// fetchStatus reads one observation of a job. Status lives at
// {create-path}/{task_id}; the video URL appears only in the terminal
// payload.
func (a *Adapter) fetchStatus(path string) adapter.StatusFunc {
	return func(ctx context.Context, pctx models.ProviderContext, jobID string) (adapter.JobStatus, error) {
		var out envelope[taskData]
		url := fmt.Sprintf("%s%s/%s", pctx.BaseURL, path, jobID)
		if err := adapter.GetJSON(ctx, a.client, vendorName, url, pctx.SecretKey, &out); err != nil {
			return adapter.JobStatus{}, err
		}
		if out.Code != 0 {
			return adapter.JobStatus{}, &adapter.VendorCallError{Vendor: vendorName, Message: fmt.Sprintf("status rejected (code %d): %s", out.Code, out.Message)}
		}

		status := adapter.JobStatus{
			Status:  out.Data.TaskStatus,
			Message: out.Data.TaskStatusMsg,
		}
		if vids := out.Data.TaskResult.Videos; len(vids) > 0 {
			status.URL = vids[0].URL
			status.Thumbnail = vids[0].CoverURL
		}
		return status, nil
	}
}

func (a *Adapter) model(req models.TaskRequest, pctx models.ProviderContext) string {
	if pctx.Model != "" {
		return pctx.Model
	}
	return req.Extra("model", a.cfg.VideoModel)
}

var _ adapter.VideoGenerator = (*Adapter)(nil)
