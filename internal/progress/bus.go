// Package progress fans task progress events out to SSE subscribers.
package progress

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/genbridge/genbridge/pkg/models"
)

// defaultBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind starts losing events rather than stalling publishers.
const defaultBuffer = 64

// Bus is an in-process, per-tenant publish/subscribe hub. Publishing never
// blocks: events to a full subscriber are dropped, the task pipeline must
// not stall on a slow SSE client.
type Bus struct {
	mu      sync.RWMutex
	buffer  int
	tenants map[uuid.UUID]map[*subscriber]struct{}
	logger  *slog.Logger
}

type subscriber struct {
	ch chan models.ProgressEvent
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		buffer:  defaultBuffer,
		tenants: make(map[uuid.UUID]map[*subscriber]struct{}),
		logger:  logger,
	}
}

// Subscribe registers a listener for one tenant's events. The returned
// cancel function unregisters the listener and closes the channel; it is
// safe to call more than once.
func (b *Bus) Subscribe(tenantID uuid.UUID) (<-chan models.ProgressEvent, func()) {
	sub := &subscriber{ch: make(chan models.ProgressEvent, b.buffer)}

	b.mu.Lock()
	subs, ok := b.tenants[tenantID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		b.tenants[tenantID] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.tenants[tenantID]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(b.tenants, tenantID)
				}
			}
			b.mu.Unlock()
			close(sub.ch)
		})
	}

	return sub.ch, cancel
}

// Publish delivers an event to every subscriber of its tenant. Tenants are
// isolated: an event is never visible outside its own tenant's subscribers.
func (b *Bus) Publish(event models.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.tenants[event.TenantID] {
		select {
		case sub.ch <- event:
		default:
			if b.logger != nil {
				b.logger.Debug("dropping progress event for slow subscriber",
					"tenant_id", event.TenantID,
					"task_id", event.TaskID,
				)
			}
		}
	}
}

// SubscriberCount reports active subscribers for a tenant.
func (b *Bus) SubscriberCount(tenantID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tenants[tenantID])
}
