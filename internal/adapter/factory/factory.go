// Package factory assembles the adapter registry from configuration.
package factory

import (
	"fmt"

	"github.com/genbridge/genbridge/internal/adapter"
	"github.com/genbridge/genbridge/internal/adapter/kling"
	"github.com/genbridge/genbridge/internal/adapter/ollama"
	"github.com/genbridge/genbridge/internal/adapter/openai"
	"github.com/genbridge/genbridge/internal/config"
)

// NewRegistry builds the registry with every supported vendor family.
func NewRegistry(cfg config.VendorsConfig) (*adapter.Registry, error) {
	reg := adapter.NewRegistry()

	for _, a := range []adapter.Adapter{
		openai.New(cfg.OpenAI),
		kling.New(cfg.Kling),
		ollama.New(cfg.Ollama),
	} {
		if err := reg.Register(a); err != nil {
			return nil, fmt.Errorf("registering %s adapter: %w", a.Name(), err)
		}
	}

	return reg, nil
}
