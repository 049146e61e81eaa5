// Package task dispatches generative tasks: it resolves credentials, routes
// to the vendor adapter, tracks progress, applies the shared-credential
// circuit breaker, and re-hosts result media.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/genbridge/genbridge/internal/adapter"
	"github.com/genbridge/genbridge/internal/cache"
	"github.com/genbridge/genbridge/internal/config"
	"github.com/genbridge/genbridge/internal/credential"
	"github.com/genbridge/genbridge/internal/progress"
	"github.com/genbridge/genbridge/internal/store"
	"github.com/genbridge/genbridge/pkg/models"
)

// statusTTL bounds how long a task status survives in the cache.
const statusTTL = 24 * time.Hour

// Ingestor re-hosts one vendor asset on durable storage.
type Ingestor interface {
	Ingest(ctx context.Context, tenantID uuid.UUID, asset models.Asset) (models.Asset, error)
}

// Service runs one task end to end. Stateless per call; safe for concurrent
// use.
type Service struct {
	store    store.Store
	cache    cache.Cache
	resolver *credential.Resolver
	registry *adapter.Registry
	bus      *progress.Bus
	ingestor Ingestor
	breaker  config.BreakerConfig
	// requireHosting fails a task when ingestion fails instead of
	// degrading to the vendor URL.
	requireHosting bool
	logger         *slog.Logger
}

func NewService(
	st store.Store,
	c cache.Cache,
	resolver *credential.Resolver,
	registry *adapter.Registry,
	bus *progress.Bus,
	ingestor Ingestor,
	breaker config.BreakerConfig,
	requireHosting bool,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:          st,
		cache:          c,
		resolver:       resolver,
		registry:       registry,
		bus:            bus,
		ingestor:       ingestor,
		breaker:        breaker,
		requireHosting: requireHosting,
		logger:         logger,
	}
}

// run tracks the lifecycle of one task invocation and guarantees exactly one
// terminal event.
type run struct {
	svc      *Service
	taskID   string
	tenantID uuid.UUID
	vendor   string
	kind     models.TaskKind
	done     bool
}

// Submit executes a task synchronously and returns its terminal result.
// Every submission produces exactly one terminal progress event on the bus,
// and an error is always both reported on the bus and returned to the
// caller.
func (s *Service) Submit(ctx context.Context, tenantID uuid.UUID, vendor string, req models.TaskRequest) (*models.TaskResult, error) {
	r := s.begin(ctx, tenantID, vendor, req.Kind)

	pctx, a, err := s.prepare(ctx, r, req)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	r.emit(ctx, models.TaskStatusRunning, 5, "dispatching to "+vendor, nil)

	result, err := s.dispatch(ctx, a, req, pctx)
	s.settleBreaker(ctx, pctx, err)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	if err := s.ingestAssets(ctx, r, result); err != nil {
		return nil, r.fail(ctx, err)
	}

	result.ID = r.taskID
	r.emit(ctx, models.TaskStatusSucceeded, 100, "", result.Assets)
	r.done = true
	return result, nil
}

// SubmitStream executes a streaming chat task, forwarding text deltas to
// onDelta as the vendor produces them. Non-chat kinds and vendors without
// streaming support fail with UnsupportedCapabilityError.
func (s *Service) SubmitStream(ctx context.Context, tenantID uuid.UUID, vendor string, req models.TaskRequest, onDelta func(string)) (*models.TaskResult, error) {
	r := s.begin(ctx, tenantID, vendor, req.Kind)

	if req.Kind != models.KindChat && req.Kind != models.KindPromptRefine {
		return nil, r.fail(ctx, &adapter.UnsupportedCapabilityError{Vendor: vendor, Kind: req.Kind})
	}

	pctx, a, err := s.prepare(ctx, r, req)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	streamer, ok := a.(adapter.ChatStreamer)
	if !ok {
		return nil, r.fail(ctx, &adapter.UnsupportedCapabilityError{Vendor: vendor, Kind: req.Kind})
	}

	r.emit(ctx, models.TaskStatusRunning, 5, "dispatching to "+vendor, nil)

	result, err := streamer.StreamChat(ctx, req, pctx, onDelta)
	s.settleBreaker(ctx, pctx, err)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	result.ID = r.taskID
	r.emit(ctx, models.TaskStatusSucceeded, 100, "", nil)
	r.done = true
	return result, nil
}

func (s *Service) begin(ctx context.Context, tenantID uuid.UUID, vendor string, kind models.TaskKind) *run {
	r := &run{
		svc:      s,
		taskID:   uuid.NewString(),
		tenantID: tenantID,
		vendor:   vendor,
		kind:     kind,
	}
	r.emit(ctx, models.TaskStatusQueued, 0, "", nil)
	return r
}

// prepare resolves the credential context and the adapter, and wires
// progress forwarding so adapter-internal events (poller ticks) reach the
// bus under this task's identity.
func (s *Service) prepare(ctx context.Context, r *run, req models.TaskRequest) (models.ProviderContext, adapter.Adapter, error) {
	pctx, err := s.resolver.Resolve(ctx, r.tenantID, r.vendor, req.Extra("model", ""))
	if err != nil {
		return pctx, nil, fmt.Errorf("resolving credential: %w", err)
	}

	a, err := s.registry.Get(r.vendor)
	if err != nil {
		return pctx, nil, err
	}

	pctx.OnProgress = func(e models.ProgressEvent) {
		// Adapters report under the vendor job ID; the bus speaks our
		// task ID. Terminal statuses stay the service's responsibility.
		if e.Status == models.TaskStatusSucceeded || e.Status == models.TaskStatusFailed {
			return
		}
		e.TenantID = r.tenantID
		e.TaskID = r.taskID
		s.bus.Publish(e)
	}

	return pctx, a, nil
}

// dispatch routes one request to the adapter capability matching its kind.
func (s *Service) dispatch(ctx context.Context, a adapter.Adapter, req models.TaskRequest, pctx models.ProviderContext) (*models.TaskResult, error) {
	unsupported := &adapter.UnsupportedCapabilityError{Vendor: a.Name(), Kind: req.Kind}

	switch req.Kind {
	case models.KindChat, models.KindPromptRefine:
		runner, ok := a.(adapter.ChatRunner)
		if !ok {
			return nil, unsupported
		}
		return runner.RunChat(ctx, req, pctx)
	case models.KindTextToImage:
		gen, ok := a.(adapter.ImageGenerator)
		if !ok {
			return nil, unsupported
		}
		return gen.TextToImage(ctx, req, pctx)
	case models.KindTextToVideo:
		gen, ok := a.(adapter.VideoGenerator)
		if !ok {
			return nil, unsupported
		}
		return gen.TextToVideo(ctx, req, pctx)
	case models.KindImageToVideo:
		gen, ok := a.(adapter.VideoGenerator)
		if !ok {
			return nil, unsupported
		}
		return gen.ImageToVideo(ctx, req, pctx)
	case models.KindImageToPrompt:
		desc, ok := a.(adapter.ImageDescriber)
		if !ok {
			return nil, unsupported
		}
		return desc.ImageToPrompt(ctx, req, pctx)
	case models.KindImageEdit:
		editor, ok := a.(adapter.ImageEditor)
		if !ok {
			return nil, unsupported
		}
		return editor.ImageEdit(ctx, req, pctx)
	default:
		return nil, fmt.Errorf("unknown task kind %q", req.Kind)
	}
}

// settleBreaker updates circuit-breaker counters after a vendor call.
// Bookkeeping failures are logged, never surfaced: they must not change the
// task outcome.
func (s *Service) settleBreaker(ctx context.Context, pctx models.ProviderContext, callErr error) {
	if pctx.CredentialID == uuid.Nil {
		return
	}

	if callErr == nil {
		if err := s.store.ResetCredentialFailures(ctx, pctx.CredentialID); err != nil {
			s.logger.Error("resetting credential failures", "credential_id", pctx.CredentialID, "error", err)
		}
		return
	}

	// Only vendor-side failures count against the credential. A poll
	// timeout or cancelled context says nothing about the secret.
	var vce *adapter.VendorCallError
	if !errors.As(callErr, &vce) || errors.Is(callErr, context.Canceled) {
		return
	}

	if err := s.store.IncrementCredentialFailure(ctx, pctx.CredentialID, s.breaker.FailureThreshold, s.breaker.Cooldown); err != nil {
		s.logger.Error("incrementing credential failures", "credential_id", pctx.CredentialID, "error", err)
	}
}

// ingestAssets swaps vendor URLs for durable ones. Without RequireHosting an
// ingestion failure degrades to the vendor URL; the task still succeeds.
func (s *Service) ingestAssets(ctx context.Context, r *run, result *models.TaskResult) error {
	for idx, asset := range result.Assets {
		hosted, err := s.ingestor.Ingest(ctx, r.tenantID, asset)
		if err != nil {
			if s.requireHosting {
				return fmt.Errorf("ingesting asset: %w", err)
			}
			s.logger.Warn("asset ingestion failed, serving vendor URL",
				"task_id", r.taskID, "url", asset.URL, "error", err)
			continue
		}
		result.Assets[idx] = hosted
	}
	return nil
}

func (r *run) emit(ctx context.Context, status string, pct int, message string, assets []models.Asset) {
	r.svc.bus.Publish(models.ProgressEvent{
		TenantID:  r.tenantID,
		TaskID:    r.taskID,
		Status:    status,
		Progress:  pct,
		Message:   message,
		Assets:    assets,
		Timestamp: time.Now().UTC(),
	})
	if err := r.svc.cache.SetTaskStatus(ctx, r.taskID, status, statusTTL); err != nil {
		r.svc.logger.Warn("caching task status", "task_id", r.taskID, "error", err)
	}
}

// fail emits the single terminal failure event and passes the error through
// unchanged so HTTP mapping can inspect it.
func (r *run) fail(ctx context.Context, err error) error {
	if r.done {
		return err
	}
	r.done = true
	r.emit(ctx, models.TaskStatusFailed, 100, err.Error(), nil)
	r.svc.logger.Error("task failed",
		"task_id", r.taskID, "tenant_id", r.tenantID, "vendor", r.vendor, "kind", r.kind, "error", err)
	return err
}
