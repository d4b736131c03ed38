package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDispatcherRunsSameKeyInOrder(t *testing.T) {
	d := NewDispatcher(nil, WithWorkers(3), WithQueueSize(8))
	ctx := context.Background()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 20; i++ {
		i := i
		err := d.Submit(ctx, Task{Key: "job-1", Name: "flush", Run: func(context.Context) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	d.Shutdown(context.Background())

	if len(got) != 20 {
		t.Fatalf("expected 20 tasks to run, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("tasks ran out of order: %v", got)
		}
	}
}

func TestDispatcherShutdownDrainsAndRejects(t *testing.T) {
	d := NewDispatcher(nil, WithWorkers(1), WithTaskTimeout(time.Second))
	ran := make(chan struct{}, 1)
	_ = d.Submit(context.Background(), Task{Key: "k", Run: func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		ran <- struct{}{}
		return errors.New("logged, not returned")
	}})
	d.Shutdown(context.Background())

	select {
	case <-ran:
	default:
		t.Fatalf("queued task did not run before shutdown returned")
	}
	if err := d.Submit(context.Background(), Task{Key: "k", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	d.Shutdown(context.Background())
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := NewDispatcher(nil, WithWorkers(1))
	done := make(chan struct{})
	_ = d.Submit(context.Background(), Task{Key: "k", Run: func(context.Context) error { panic("boom") }})
	_ = d.Submit(context.Background(), Task{Key: "k", Run: func(context.Context) error { close(done); return nil }})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker died after panic")
	}
	d.Shutdown(context.Background())
}
