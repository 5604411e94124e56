package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPool_RunsTasks(t *testing.T) {
	p := NewPool(3, 10, quietLogger())
	p.Start()

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		if err := p.Submit(Task{Kind: "completion", Run: func(ctx context.Context) error {
			n.Add(1)
			return nil
		}}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if n.Load() != 10 {
		t.Errorf("expected 10 tasks run, got %d", n.Load())
	}
	if s := p.Stats(); s.Completed != 10 || s.Failed != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestPool_QueueFull(t *testing.T) {
	p := NewPool(1, 1, quietLogger())
	release := make(chan struct{})
	started := make(chan struct{})
	p.Start()
	defer func() {
		close(release)
		p.Shutdown(context.Background())
	}()

	p.Submit(Task{Kind: "relay", Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}})
	<-started

	if err := p.Submit(Task{Kind: "relay", Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("expected the queue slot to be free, got %v", err)
	}
	err := p.Submit(Task{Kind: "relay", Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p := NewPool(1, 1, quietLogger())
	p.Start()
	p.Shutdown(context.Background())

	err := p.Submit(Task{Kind: "relay", Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("second shutdown should be a no-op, got %v", err)
	}
}

func TestPool_PanicIsContained(t *testing.T) {
	p := NewPool(1, 4, quietLogger())

	var mu sync.Mutex
	var outcomes []error
	p.OnDone = func(kind string, err error) {
		mu.Lock()
		outcomes = append(outcomes, err)
		mu.Unlock()
	}
	p.Start()

	p.Submit(Task{Kind: "completion", Run: func(context.Context) error { panic("boom") }})
	p.Submit(Task{Kind: "completion", Run: func(context.Context) error { return nil }})
	p.Shutdown(context.Background())

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	var pe *PanicError
	if !errors.As(outcomes[0], &pe) || pe.Value != "boom" {
		t.Errorf("expected PanicError, got %v", outcomes[0])
	}
	if outcomes[1] != nil {
		t.Errorf("worker should survive the panic, got %v", outcomes[1])
	}
	if s := p.Stats(); s.Panicked != 1 || s.Completed != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestPool_TaskTimeout(t *testing.T) {
	p := NewPool(1, 1, quietLogger())
	p.Start()

	errCh := make(chan error, 1)
	p.Submit(Task{Kind: "completion", Timeout: 20 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	}})
	p.Shutdown(context.Background())

	if err := <-errCh; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestPool_ShutdownDeadlineCancelsTasks(t *testing.T) {
	p := NewPool(1, 1, quietLogger())
	p.Start()

	p.Submit(Task{Kind: "relay", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded from shutdown, got %v", err)
	}
}
