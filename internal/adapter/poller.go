package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/genbridge/genbridge/pkg/models"
)

// JobStatus is one observation of a create-then-poll vendor job.
type JobStatus struct {
	Status   string  // vendor vocabulary, normalized via NormalizeStatus
	Progress float64 // raw vendor progress, 0–1 or 0–100
	URL      string
	Thumbnail string
	Message  string
}

// StatusFunc fetches the current status of a remote job.
type StatusFunc func(ctx context.Context, pctx models.ProviderContext, jobID string) (JobStatus, error)

// Poller watches a create-then-poll vendor job until it reaches a terminal
// state. One Poller is built per adapter with that vendor's fetch function.
type Poller struct {
	Vendor    string
	Fetch     StatusFunc
	Interval  time.Duration
	Timeout   time.Duration
	AssetType models.AssetType
}

// Poll loops until the job succeeds with a resolvable media URL, fails, or
// the deadline passes. A succeeded status without a URL is treated as still
// running: vendors sometimes report success one tick before the URL is
// populated. The deadline is checked before each sleep; an in-flight status
// request is never forcefully interrupted.
func (p *Poller) Poll(ctx context.Context, pctx models.ProviderContext, jobID string) (models.Asset, error) {
	deadline := time.Now().Add(p.Timeout)

	for {
		if time.Now().After(deadline) {
			return models.Asset{}, fmt.Errorf("job %s: %w", jobID, ErrPollTimeout)
		}

		select {
		case <-ctx.Done():
			return models.Asset{}, ctx.Err()
		case <-time.After(p.Interval):
		}

		status, err := p.Fetch(ctx, pctx, jobID)
		if err != nil {
			return models.Asset{}, err
		}

		normalized := NormalizeStatus(status.Status)
		pctx.Emit(models.ProgressEvent{
			TenantID:  pctx.TenantID,
			TaskID:    jobID,
			Status:    models.TaskStatusRunning,
			Progress:  models.ClampProgress(status.Progress),
			Message:   status.Message,
			Timestamp: time.Now().UTC(),
		})

		switch normalized {
		case models.TaskStatusFailed:
			msg := status.Message
			if msg == "" {
				msg = "job failed"
			}
			return models.Asset{}, &VendorCallError{Vendor: p.Vendor, Message: fmt.Sprintf("job %s: %s", jobID, msg)}
		case models.TaskStatusSucceeded:
			if status.URL == "" {
				continue
			}
			return models.Asset{
				Type:         p.AssetType,
				URL:          status.URL,
				ThumbnailURL: status.Thumbnail,
			}, nil
		}
	}
}

// Snapshot performs a single status fetch without committing to the full
// wait.
func (p *Poller) Snapshot(ctx context.Context, pctx models.ProviderContext, jobID string) (JobStatus, error) {
	return p.Fetch(ctx, pctx, jobID)
}
