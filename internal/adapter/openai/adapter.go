// Package openai integrates the OpenAI-compatible chat and image APIs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genbridge/genbridge/internal/adapter"
	"github.com/genbridge/genbridge/internal/config"
	"github.com/genbridge/genbridge/pkg/models"
)

const vendorName = "openai"

// Adapter implements chat, image generation, image description, and image
// editing against OpenAI-compatible endpoints.
type Adapter struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func New(cfg config.OpenAIConfig) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (a *Adapter) Name() string { return vendorName }

// --- wire types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n,omitempty"`
	Size   string `json:"size,omitempty"`
	Image  string `json:"image,omitempty"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// --- capabilities ---

func (a *Adapter) RunChat(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error) {
	body := chatRequest{
		Model:    a.chatModel(req, pctx),
		Messages: chatMessages(req),
	}

	var out chatResponse
	if err := a.postWithFallback(ctx, pctx, "/chat/completions", body, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, &adapter.VendorCallError{Vendor: vendorName, Message: "empty choices in chat response"}
	}

	return &models.TaskResult{
		ID:     resultID(out.ID),
		Kind:   req.Kind,
		Status: models.TaskStatusSucceeded,
		Text:   out.Choices[0].Message.Content,
	}, nil
}

// StreamChat streams completion deltas. Delivery to onDelta happens on a
// separate goroutine so a slow consumer never stalls the parse loop;
// deltas that cannot be buffered are dropped.
func (a *Adapter) StreamChat(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext, onDelta func(string)) (*models.TaskResult, error) {
	body := chatRequest{
		Model:    a.chatModel(req, pctx),
		Messages: chatMessages(req),
		Stream:   true,
	}

	httpReq, err := jsonRequest(ctx, pctx.BaseURL+"/chat/completions", pctx.SecretKey, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, adapter.ClassifyError(vendorName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &adapter.VendorCallError{Vendor: vendorName, Status: resp.StatusCode, Message: "streaming chat rejected"}
	}

	deltas := make(chan string, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for d := range deltas {
			onDelta(d)
		}
	}()

	var full strings.Builder
	err = adapter.ReadEventStream(resp.Body, func(data string) error {
		var chunk chatStreamChunk
		if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr != nil {
			return nil // skip malformed keep-alive frames
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content == "" {
				continue
			}
			full.WriteString(c.Delta.Content)
			select {
			case deltas <- c.Delta.Content:
			default:
			}
		}
		return nil
	})
	close(deltas)
	<-done
	if err != nil {
		return nil, fmt.Errorf("reading chat stream: %w", err)
	}

	return &models.TaskResult{
		ID:     resultID(""),
		Kind:   req.Kind,
		Status: models.TaskStatusSucceeded,
		Text:   full.String(),
	}, nil
}

func (a *Adapter) TextToImage(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error) {
	body := imageRequest{
		Model:  a.imageModel(req, pctx),
		Prompt: req.Prompt,
		N:      1,
		Size:   imageSize(req),
	}

	var out imageResponse
	if err := a.postWithFallback(ctx, pctx, "/images/generations", body, &out); err != nil {
		return nil, err
	}
	return imageResult(req.Kind, out)
}

func (a *Adapter) ImageToPrompt(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error) {
	imageURL := req.Extra("image_url", "")
	if imageURL == "" {
		return nil, &adapter.VendorCallError{Vendor: vendorName, Message: "image_to_prompt requires extras.image_url"}
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = "Describe this image as a detailed generation prompt."
	}

	body := chatRequest{
		Model: a.chatModel(req, pctx),
		Messages: []chatMessage{{
			Role: "user",
			Content: []map[string]any{
				{"type": "text", "text": prompt},
				{"type": "image_url", "image_url": map[string]string{"url": imageURL}},
			},
		}},
	}

	var out chatResponse
	if err := a.postWithFallback(ctx, pctx, "/chat/completions", body, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, &adapter.VendorCallError{Vendor: vendorName, Message: "empty choices in vision response"}
	}

	return &models.TaskResult{
		ID:     resultID(out.ID),
		Kind:   req.Kind,
		Status: models.TaskStatusSucceeded,
		Text:   out.Choices[0].Message.Content,
	}, nil
}

func (a *Adapter) ImageEdit(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error) {
	imageURL := req.Extra("image_url", "")
	if imageURL == "" {
		return nil, &adapter.VendorCallError{Vendor: vendorName, Message: "image_edit requires extras.image_url"}
	}

	body := imageRequest{
		Model:  a.imageModel(req, pctx),
		Prompt: req.Prompt,
		Image:  imageURL,
		Size:   imageSize(req),
	}

	var out imageResponse
	if err := a.postWithFallback(ctx, pctx, "/images/edits", body, &out); err != nil {
		return nil, err
	}
	return imageResult(req.Kind, out)
}

// --- helpers ---

// postWithFallback sends against the resolved base URL and retries exactly
// once against the official endpoint when a custom endpoint answers non-2xx.
func (a *Adapter) postWithFallback(ctx context.Context, pctx models.ProviderContext, path string, body, out any) error {
	err := adapter.PostJSON(ctx, a.client, vendorName, pctx.BaseURL+path, pctx.SecretKey, body, out)
	if err == nil {
		return nil
	}
	if pctx.BaseURL != a.cfg.OfficialBaseURL && adapter.RetryableStatus(err) {
		return adapter.PostJSON(ctx, a.client, vendorName, a.cfg.OfficialBaseURL+path, pctx.SecretKey, body, out)
	}
	return err
}

func (a *Adapter) chatModel(req models.TaskRequest, pctx models.ProviderContext) string {
	if pctx.Model != "" {
		return pctx.Model
	}
	return req.Extra("model", a.cfg.ChatModel)
}

func (a *Adapter) imageModel(req models.TaskRequest, pctx models.ProviderContext) string {
	if pctx.Model != "" {
		return pctx.Model
	}
	return req.Extra("model", a.cfg.ImageModel)
}

func chatMessages(req models.TaskRequest) []chatMessage {
	var msgs []chatMessage
	if req.Kind == models.KindPromptRefine {
		msgs = append(msgs, chatMessage{
			Role:    "system",
			Content: "You rewrite user prompts into rich, specific prompts for generative image and video models. Reply with the refined prompt only.",
		})
	} else if sys := req.Extra("system_prompt", ""); sys != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: sys})
	}
	return append(msgs, chatMessage{Role: "user", Content: req.Prompt})
}

func imageSize(req models.TaskRequest) string {
	if req.Width > 0 && req.Height > 0 {
		return fmt.Sprintf("%dx%d", req.Width, req.Height)
	}
	return ""
}

func imageResult(kind models.TaskKind, out imageResponse) (*models.TaskResult, error) {
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return nil, &adapter.VendorCallError{Vendor: vendorName, Message: "no image URL in response"}
	}

	assets := make([]models.Asset, 0, len(out.Data))
	for _, d := range out.Data {
		if d.URL == "" {
			continue
		}
		assets = append(assets, models.Asset{Type: models.AssetTypeImage, URL: d.URL})
	}

	return &models.TaskResult{
		ID:     resultID(""),
		Kind:   kind,
		Status: models.TaskStatusSucceeded,
		Assets: assets,
	}, nil
}

func jsonRequest(ctx context.Context, url, secret string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	return req, nil
}

func resultID(vendorID string) string {
	if vendorID != "" {
		return vendorID
	}
	return uuid.NewString()
}

var (
	_ adapter.ChatRunner     = (*Adapter)(nil)
	_ adapter.ChatStreamer   = (*Adapter)(nil)
	_ adapter.ImageGenerator = (*Adapter)(nil)
	_ adapter.ImageDescriber = (*Adapter)(nil)
	_ adapter.ImageEditor    = (*Adapter)(nil)
)
