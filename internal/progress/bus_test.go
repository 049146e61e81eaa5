package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbridge/genbridge/pkg/models"
)

func event(tenantID uuid.UUID, taskID string) models.ProgressEvent {
	return models.ProgressEvent{
		TenantID:  tenantID,
		TaskID:    taskID,
		Status:    models.TaskStatusRunning,
		Progress:  50,
		Timestamp: time.Now().UTC(),
	}
}

func TestBus_PublishReachesSubscriber(t *testing.T) {
	bus := NewBus(nil)
	tenant := uuid.New()

	ch, cancel := bus.Subscribe(tenant)
	defer cancel()

	bus.Publish(event(tenant, "task-1"))

	select {
	case e := <-ch:
		assert.Equal(t, "task-1", e.TaskID)
		assert.Equal(t, tenant, e.TenantID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_TenantIsolation(t *testing.T) {
	bus := NewBus(nil)
	tenantA, tenantB := uuid.New(), uuid.New()

	chA, cancelA := bus.Subscribe(tenantA)
	defer cancelA()
	chB, cancelB := bus.Subscribe(tenantB)
	defer cancelB()

	bus.Publish(event(tenantA, "task-a"))

	select {
	case e := <-chA:
		assert.Equal(t, "task-a", e.TaskID)
	case <-time.After(time.Second):
		t.Fatal("tenant A never got its event")
	}

	select {
	case e := <-chB:
		t.Fatalf("tenant B received foreign event %q", e.TaskID)
	default:
	}
}

func TestBus_FanOut(t *testing.T) {
	bus := NewBus(nil)
	tenant := uuid.New()

	ch1, cancel1 := bus.Subscribe(tenant)
	defer cancel1()
	ch2, cancel2 := bus.Subscribe(tenant)
	defer cancel2()

	require.Equal(t, 2, bus.SubscriberCount(tenant))

	bus.Publish(event(tenant, "task-x"))

	for _, ch := range []<-chan models.ProgressEvent{ch1, ch2} {
		select {
		case e := <-ch:
			assert.Equal(t, "task-x", e.TaskID)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed fan-out event")
		}
	}
}

func TestBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus(nil)
	tenant := uuid.New()

	_, cancel := bus.Subscribe(tenant)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Publish well past the buffer; must never block.
		for i := 0; i < defaultBuffer*3; i++ {
			bus.Publish(event(tenant, "flood"))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBus_CancelRemovesSubscriber(t *testing.T) {
	bus := NewBus(nil)
	tenant := uuid.New()

	ch, cancel := bus.Subscribe(tenant)
	cancel()
	cancel() // safe to call twice

	assert.Equal(t, 0, bus.SubscriberCount(tenant))

	_, open := <-ch
	assert.False(t, open, "channel must be closed after cancel")

	// Publishing to a tenant with no subscribers is a no-op.
	bus.Publish(event(tenant, "task-after-cancel"))
}
