package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/attribution-monitor/internal/pkg/logger"
)

// ErrQueueFull is returned when an export was dropped.
var ErrQueueFull = errors.New("archive: queue full")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("archive: closed")

// Async hands exports to a background worker so a slow backend never
// stalls aggregation. When the queue is full the export is dropped.
type Async struct {
	inner   Archiver
	queue   chan Export
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	// OnDrop and OnFailure are optional hooks for metrics.
	OnDrop    func(Export)
	OnFailure func(Export, error)
}

// NewAsync starts one worker draining a queue of size into inner.
func NewAsync(inner Archiver, size int) *Async {
	if size <= 0 {
		size = 64
	}
	a := &Async{
		inner:   inner,
		queue:   make(chan Export, size),
		timeout: 2 * time.Minute,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Archive enqueues e without blocking. Body is retained until written.
func (a *Async) Archive(_ context.Context, e Export) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- e:
		return nil
	default:
		if a.OnDrop != nil {
			a.OnDrop(e)
		}
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer a.wg.Done()
	for e := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.inner.Archive(ctx, e)
		cancel()
		if err != nil {
			logger.Warn("archive write failed", "app_id", e.AppID, "endpoint", e.Endpoint, "key", e.Key(), "error", err)
			if a.OnFailure != nil {
				a.OnFailure(e, err)
			}
		}
	}
}

// Close stops accepting exports and waits for queued ones to be written.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	a.wg.Wait()
}
