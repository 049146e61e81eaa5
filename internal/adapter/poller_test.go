package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbridge/genbridge/pkg/models"
)

// scriptedFetch replays a fixed sequence of statuses, then repeats the last.
func scriptedFetch(statuses []JobStatus) StatusFunc {
	var mu sync.Mutex
	i := 0
	return func(_ context.Context, _ models.ProviderContext, _ string) (JobStatus, error) {
		mu.Lock()
		defer mu.Unlock()
		s := statuses[i]
		if i < len(statuses)-1 {
			i++
		}
		return s, nil
	}
}

func testPoller(fetch StatusFunc) *Poller {
	return &Poller{
		Vendor:    "testvendor",
		Fetch:     fetch,
		Interval:  time.Millisecond,
		Timeout:   time.Second,
		AssetType: models.AssetTypeVideo,
	}
}

func TestPoller_SucceededWithoutURLKeepsPolling(t *testing.T) {
	p := testPoller(scriptedFetch([]JobStatus{
		{Status: "running", Progress: 0.42},
		{Status: "succeeded", URL: ""},
		{Status: "succeeded", URL: "https://vendor.example/video.mp4"},
	}))

	asset, err := p.Poll(context.Background(), models.ProviderContext{}, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "https://vendor.example/video.mp4", asset.URL)
	assert.Equal(t, models.AssetTypeVideo, asset.Type)
}

func TestPoller_FailedJobReturnsVendorReason(t *testing.T) {
	p := testPoller(scriptedFetch([]JobStatus{
		{Status: "running", Progress: 10},
		{Status: "failed", Message: "content policy violation"},
	}))

	_, err := p.Poll(context.Background(), models.ProviderContext{}, "job-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content policy violation")

	var vce *VendorCallError
	require.ErrorAs(t, err, &vce)
	assert.Equal(t, "testvendor", vce.Vendor)
}

func TestPoller_Timeout(t *testing.T) {
	p := testPoller(scriptedFetch([]JobStatus{{Status: "running", Progress: 50}}))
	p.Timeout = 20 * time.Millisecond
	p.Interval = 5 * time.Millisecond

	_, err := p.Poll(context.Background(), models.ProviderContext{}, "job-3")
	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestPoller_EmitsProgress(t *testing.T) {
	var mu sync.Mutex
	var events []models.ProgressEvent
	pctx := models.ProviderContext{
		TenantID: uuid.New(),
		OnProgress: func(e models.ProgressEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	}

	p := testPoller(scriptedFetch([]JobStatus{
		{Status: "running", Progress: 0.42},
		{Status: "succeeded", URL: "https://vendor.example/v.mp4", Progress: 1},
	}))

	_, err := p.Poll(context.Background(), pctx, "job-4")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, 42, events[0].Progress)
	assert.Equal(t, 100, events[1].Progress)
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Progress, 0)
		assert.LessOrEqual(t, e.Progress, 100)
	}
}

func TestPoller_Snapshot(t *testing.T) {
	p := testPoller(scriptedFetch([]JobStatus{{Status: "running", Progress: 33}}))

	status, err := p.Snapshot(context.Background(), models.ProviderContext{}, "job-5")
	require.NoError(t, err)
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, float64(33), status.Progress)
}

func TestPoller_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := testPoller(scriptedFetch([]JobStatus{{Status: "running"}}))
	p.Interval = time.Hour

	_, err := p.Poll(ctx, models.ProviderContext{}, "job-6")
	assert.ErrorIs(t, err, context.Canceled)
}
