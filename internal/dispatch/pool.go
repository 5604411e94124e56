// Package dispatch runs background work after a webhook has been answered.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueFull = errors.New("dispatch queue full")
	ErrClosed    = errors.New("dispatcher closed")
)

// Task is a unit of background work. Run receives a context that is not
// tied to the request that scheduled it.
type Task struct {
	Kind    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// PanicError is returned for a task that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("task panicked: %v", e.Value) }

// Stats are cumulative pool counters.
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Capacity  int   `json:"capacity"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panicked  int64 `json:"panicked"`
}

// Pool is a fixed set of workers draining a bounded queue.
type Pool struct {
	workers int
	queue   chan Task
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.RWMutex
	closed  bool
	started bool

	completed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64

	// OnDone, if set, is called after every task with its outcome.
	OnDone func(kind string, err error)
}

func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers: workers,
		queue:   make(chan Task, queueSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		group:   &errgroup.Group{},
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.group.Go(func() error {
			for t := range p.queue {
				p.run(t)
			}
			return nil
		})
	}
}

// Submit enqueues t without blocking.
func (p *Pool) Submit(t Task) error {
	if t.Run == nil {
		return errors.New("dispatch: task has no Run func")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) run(t Task) {
	ctx := p.ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	err := p.safeRun(ctx, t)
	if err == nil {
		p.completed.Add(1)
	} else {
		var pe *PanicError
		if errors.As(err, &pe) {
			p.panicked.Add(1)
			p.logger.Error("background task panicked", "kind", t.Kind, "panic", fmt.Sprint(pe.Value), "stack", string(pe.Stack))
		}
		p.failed.Add(1)
	}
	if p.OnDone != nil {
		p.OnDone(t.Kind, err)
	}
}

func (p *Pool) safeRun(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return t.Run(ctx)
}

// Shutdown stops accepting tasks and waits for queued ones to finish. If
// ctx expires first, running tasks see their context cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if !started {
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Queued:    len(p.queue),
		Capacity:  cap(p.queue),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panicked:  p.panicked.Load(),
	}
}
