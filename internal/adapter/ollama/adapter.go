// Package ollama integrates a self-hosted Ollama instance. Ollama is a
// passthrough vendor: no stored secret, auth (if any) is handled by the
// network in front of it.
package ollama

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/genbridge/genbridge/internal/adapter"
	"github.com/genbridge/genbridge/internal/config"
	"github.com/genbridge/genbridge/pkg/models"
)

const vendorName = "ollama"

type Adapter struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func New(cfg config.OllamaConfig) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (a *Adapter) Name() string { return vendorName }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func (a *Adapter) RunChat(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error) {
	var msgs []chatMessage
	if req.Kind == models.KindPromptRefine {
		msgs = append(msgs, chatMessage{
			Role:    "system",
			Content: "You rewrite user prompts into rich, specific prompts for generative image and video models. Reply with the refined prompt only.",
		})
	} else if sys := req.Extra("system_prompt", ""); sys != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: sys})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:    a.model(req, pctx),
		Messages: msgs,
		Stream:   false,
	}

	var out chatResponse
	if err := adapter.PostJSON(ctx, a.client, vendorName, a.baseURL(pctx)+"/api/chat", "", body, &out); err != nil {
		return nil, err
	}
	if out.Message.Content == "" {
		return nil, &adapter.VendorCallError{Vendor: vendorName, Message: "empty chat response"}
	}

	return &models.TaskResult{
		ID:     uuid.NewString(),
		Kind:   req.Kind,
		Status: models.TaskStatusSucceeded,
		Text:   out.Message.Content,
	}, nil
}

// baseURL prefers the resolved per-tenant endpoint, falling back to the
// configured default instance.
func (a *Adapter) baseURL(pctx models.ProviderContext) string {
	if pctx.BaseURL != "" {
		return pctx.BaseURL
	}
	return a.cfg.BaseURL
}

func (a *Adapter) model(req models.TaskRequest, pctx models.ProviderContext) string {
	if pctx.Model != "" {
		return pctx.Model
	}
	return req.Extra("model", a.cfg.Model)
}

var _ adapter.ChatRunner = (*Adapter)(nil)
