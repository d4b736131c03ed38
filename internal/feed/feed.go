// Package feed carries job change notifications between writers and the
// subscriptions that re-read the job store.
package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Change announces that a job document was written.
type Change struct {
	JobID   uuid.UUID `json:"job_id"`
	Version int64     `json:"version"`
	Deleted bool      `json:"deleted,omitempty"`
}

// Bus publishes and fans out change notifications.
// Handlers must not block; they run on the publisher's goroutine for the
// local bus and on the connection's dispatch goroutine for NATS.
type Bus interface {
	Publish(ctx context.Context, c Change) error
	Subscribe(handler func(Change)) (cancel func(), err error)
	Close()
}

// LocalBus is an in-process Bus.
type LocalBus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]func(Change)
	closed   bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[int]func(Change))}
}

func (b *LocalBus) Publish(_ context.Context, c Change) error {
	b.mu.RLock()
	hs := make([]func(Change), 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.RUnlock()
	for _, h := range hs {
		h(c)
	}
	return nil
}

func (b *LocalBus) Subscribe(handler func(Change)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}, nil
	}
	id := b.next
	b.next++
	b.handlers[id] = handler
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}, nil
}

func (b *LocalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[int]func(Change))
}
