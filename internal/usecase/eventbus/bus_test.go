package eventbus

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"switchd/internal/domain"
)

func newTestBus() *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newEvent(t domain.EventType) domain.Event {
	return domain.Event{Type: t, Timestamp: time.Now()}
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventSettingsChanged, func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventSettingsChanged {
			got.Add(1)
		}
	})

	bus.Publish(context.Background(), newEvent(domain.EventSettingsChanged))
	bus.Publish(context.Background(), newEvent(domain.EventSwitchToggled))
	bus.Close()
	if got.Load() != 1 {
		t.Fatalf("expected 1, got %d", got.Load())
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventSettingsChanged))
	bus.Publish(context.Background(), newEvent(domain.EventCommandExecuted))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2, got %d", got.Load())
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	unsub := bus.Subscribe(domain.EventSettingsChanged, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventSettingsChanged))
	bus.Flush()
	if got.Load() != 1 {
		t.Fatalf("expected 1 before unsub, got %d", got.Load())
	}

	unsub()
	unsub() // idempotent
	bus.Publish(context.Background(), newEvent(domain.EventSettingsChanged))
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("expected still 1 after unsub, got %d", got.Load())
	}
}

func TestUnsubscribeKeepsOthers(t *testing.T) {
	bus := newTestBus()

	var a, b atomic.Int32
	unsubA := bus.SubscribeAll(func(_ context.Context, _ domain.Event) { a.Add(1) })
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) { b.Add(1) })

	unsubA()
	bus.Publish(context.Background(), newEvent(domain.EventSettingsChanged))
	bus.Close()

	if a.Load() != 0 || b.Load() != 1 {
		t.Fatalf("a=%d b=%d, want 0 and 1", a.Load(), b.Load())
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventSettingsChanged, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), newEvent(domain.EventSettingsChanged))
		}()
	}
	wg.Wait()
	bus.Close()

	if got.Load() != 100 {
		t.Fatalf("expected 100, got %d", got.Load())
	}
}

func TestPanicRecovery(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventSettingsChanged, func(_ context.Context, _ domain.Event) {
		panic("boom")
	})
	bus.Subscribe(domain.EventSettingsChanged, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventSettingsChanged))
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("expected 1 (second handler), got %d", got.Load())
	}
}

func TestCloseDrainsAndRejectsNew(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventSettingsChanged, func(_ context.Context, _ domain.Event) {
		time.Sleep(50 * time.Millisecond)
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventSettingsChanged))
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("expected handler to have run, got %d", got.Load())
	}

	bus.Publish(context.Background(), newEvent(domain.EventSettingsChanged))
	bus.Close()
	if got.Load() != 1 {
		t.Fatalf("expected no delivery after close, got %d", got.Load())
	}
	if bus.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", bus.Dropped())
	}
}
