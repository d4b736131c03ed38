package async

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by Submit once Shutdown has begun.
var ErrClosed = errors.New("dispatcher is shutting down")

// Task is a unit of background work. Tasks sharing a Key run one at a time
// in submission order.
type Task struct {
	Key  string
	Name string
	Run  func(ctx context.Context) error
}

// Dispatcher runs tasks on a fixed set of workers, one queue per worker.
// Tasks are detached from the submitter's lifetime and finish even if the
// caller goes away; Shutdown drains what was accepted.
type Dispatcher struct {
	logger  *slog.Logger
	workers int
	size    int
	timeout time.Duration

	shards []chan Task
	wg     sync.WaitGroup
	once   sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*Dispatcher)

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.size = n
		}
	}
}

func WithTaskTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

func NewDispatcher(logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		logger:  logger,
		workers: 4,
		size:    256,
		timeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(d)
	}
	d.start()
	return d
}

func (d *Dispatcher) start() {
	d.once.Do(func() {
		d.shards = make([]chan Task, d.workers)
		for i := range d.shards {
			d.shards[i] = make(chan Task, d.size)
			d.wg.Add(1)
			go func(workerID int, ch <-chan Task) {
				defer d.wg.Done()
				d.logger.Debug("dispatch worker started", "worker_id", workerID)

				for task := range ch {
					d.run(workerID, task)
				}

				d.logger.Debug("dispatch worker stopped", "worker_id", workerID)
			}(i+1, d.shards[i])
		}
	})
}

func (d *Dispatcher) run(workerID int, task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("task panicked", "worker_id", workerID, "task", task.Name, "key", task.Key, "panic", r)
		}
	}()
	if err := task.Run(ctx); err != nil {
		d.logger.Error("task failed", "worker_id", workerID, "task", task.Name, "key", task.Key, "error", err)
		return
	}
	d.logger.Debug("task done", "worker_id", workerID, "task", task.Name, "key", task.Key)
}

func (d *Dispatcher) shard(key string) chan Task {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return d.shards[int(h.Sum32()%uint32(len(d.shards)))]
}

// Submit queues task. When the shard is full it blocks until space frees up
// or ctx is done.
func (d *Dispatcher) Submit(ctx context.Context, task Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("cannot submit: dispatcher is shutting down", "task", task.Name, "key", task.Key)
		return ErrClosed
	}
	ch := d.shard(task.Key)
	select {
	case ch <- task:
		return nil
	default:
	}
	d.logger.Warn("dispatch queue full, applying backpressure", "task", task.Name, "key", task.Key)
	select {
	case ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); d.wg.Wait() }()

	select {
	case <-ctx.Done():
		d.logger.Warn("shutdown interrupted by context")
	case <-done:
		d.logger.Info("dispatcher drained, shutdown complete")
	}
}
