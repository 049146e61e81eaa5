// Package adapter defines the capability contract that every vendor
// integration implements, plus the shared transport and polling helpers
// adapters are built from.
package adapter

import (
	"context"
	"fmt"
	"sort"

	"github.com/genbridge/genbridge/pkg/models"
)

// Adapter is the base contract: each vendor integration knows the wire
// format of exactly one vendor family. Capabilities are declared by
// implementing the optional interfaces below; the dispatcher type-asserts
// and fails fast when one is absent.
type Adapter interface {
	Name() string
}

// ChatRunner runs a chat or prompt-refine completion.
type ChatRunner interface {
	RunChat(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error)
}

// ChatStreamer streams chat deltas as the vendor produces them. The
// terminal TaskResult carries the full concatenated text.
type ChatStreamer interface {
	StreamChat(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext, onDelta func(delta string)) (*models.TaskResult, error)
}

// ImageGenerator produces one or more images from a text prompt.
type ImageGenerator interface {
	TextToImage(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error)
}

// VideoGenerator produces a video from a text prompt or a reference image.
type VideoGenerator interface {
	TextToVideo(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error)
	ImageToVideo(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error)
}

// ImageDescriber reverse-engineers a prompt from an image.
type ImageDescriber interface {
	ImageToPrompt(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error)
}

// ImageEditor edits an existing image under a text instruction.
type ImageEditor interface {
	ImageEdit(ctx context.Context, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error)
}

// Registry maps vendor name to its adapter. Built once at startup; safe for
// concurrent reads afterwards.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its vendor name. Registering the same
// vendor twice is a programming error.
func (r *Registry) Register(a Adapter) error {
	if _, exists := r.adapters[a.Name()]; exists {
		return fmt.Errorf("adapter %q already registered", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Get returns the adapter for a vendor, or an error naming the vendor when
// none is registered.
func (r *Registry) Get(vendor string) (Adapter, error) {
	a, ok := r.adapters[vendor]
	if !ok {
		return nil, fmt.Errorf("unknown vendor %q: must be one of %v", vendor, r.Vendors())
	}
	return a, nil
}

// Vendors lists registered vendor names, sorted.
func (r *Registry) Vendors() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
