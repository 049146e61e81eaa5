// Package mock provides a configurable in-memory adapter for tests.
package mock

import (
	"context"

	"github.com/genbridge/genbridge/internal/adapter"
	"github.com/genbridge/genbridge/pkg/models"
)

// Adapter implements every capability with injectable functions. Leave a
// field nil to get a canned success.
type Adapter struct {
	VendorName string

	RunChatFunc       func(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error)
	StreamChatFunc    func(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext, onDelta func(string)) (*models.TaskResult, error)
	TextToImageFunc   func(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error)
	TextToVideoFunc   func(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error)
	ImageToVideoFunc  func(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error)
	ImageToPromptFunc func(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error)
	ImageEditFunc     func(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error)
}

func New() *Adapter {
	return &Adapter{VendorName: "mock"}
}

func (m *Adapter) Name() string {
	if m.VendorName != "" {
		return m.VendorName
	}
	return "mock"
}

func canned(req models.TaskRequest, text string, assets ...models.Asset) (*models.TaskResult, error) {
	return &models.TaskResult{
		ID:     "mock-task",
		Kind:   req.Kind,
		Status: models.TaskStatusSucceeded,
		Text:   text,
		Assets: assets,
	}, nil
}

func (m *Adapter) RunChat(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error) {
	if m.RunChatFunc != nil {
		return m.RunChatFunc(ctx, req, pctx)
	}
	return canned(req, "mock chat response")
}

func (m *Adapter) StreamChat(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext, onDelta func(string)) (*models.TaskResult, error) {
	if m.StreamChatFunc != nil {
		return m.StreamChatFunc(ctx, req, pctx, onDelta)
	}
	onDelta("mock ")
	onDelta("stream")
	return canned(req, "mock stream")
}

func (m *Adapter) TextToImage(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error) {
	if m.TextToImageFunc != nil {
		return m.TextToImageFunc(ctx, req, pctx)
	}
	return canned(req, "", models.Asset{Type: models.AssetTypeImage, URL: "https://mock.example/image.png"})
}

func (m *Adapter) TextToVideo(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error) {
	if m.TextToVideoFunc != nil {
		return m.TextToVideoFunc(ctx, req, pctx)
	}
	return canned(req, "", models.Asset{Type: models.AssetTypeVideo, URL: "https://mock.example/video.mp4"})
}

func (m *Adapter) ImageToVideo(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error) {
	if m.ImageToVideoFunc != nil {
		return m.ImageToVideoFunc(ctx, req, pctx)
	}
	return canned(req, "", models.Asset{Type: models.AssetTypeVideo, URL: "https://mock.example/video.mp4"})
}

func (m *Adapter) ImageToPrompt(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error) {
	if m.ImageToPromptFunc != nil {
		return m.ImageToPromptFunc(ctx, req, pctx)
	}
	return canned(req, "mock image description")
}

func (m *Adapter) ImageEdit(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error) {
	if m.ImageEditFunc != nil {
		return m.ImageEditFunc(ctx, req, pctx)
	}
	return canned(req, "", models.Asset{Type: models.AssetTypeImage, URL: "https://mock.example/edited.png"})
}

var (
	_ adapter.ChatRunner     = (*Adapter)(nil)
	_ adapter.ChatStreamer   = (*Adapter)(nil)
	_ adapter.ImageGenerator = (*Adapter)(nil)
	_ adapter.VideoGenerator = (*Adapter)(nil)
	_ adapter.ImageDescriber = (*Adapter)(nil)
	_ adapter.ImageEditor    = (*Adapter)(nil)
)
