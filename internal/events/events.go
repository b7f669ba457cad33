// Package events carries "submission submitted" events from the web server
// to the report pipeline, either in-process or through RabbitMQ.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// SubmissionEvent announces a submitted exam.
type SubmissionEvent struct {
	SubmissionID int64     `json:"submission_id"`
	PublicID     string    `json:"public_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Handler processes one event.
type Handler func(ctx context.Context, ev SubmissionEvent) error

// Publisher announces submissions.
type Publisher interface {
	PublishSubmitted(ctx context.Context, ev SubmissionEvent) error
}

// ErrClosed is returned when publishing to a closed bus.
var ErrClosed = errors.New("event bus closed")

// LocalBus runs handlers on a fixed pool of goroutines fed by a buffered
// channel. It is used when the server and pipeline share a process.
type LocalBus struct {
	ch      chan SubmissionEvent
	handler Handler
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewLocalBus starts workers goroutines that call h until Close.
func NewLocalBus(ctx context.Context, workers, buffer int, h Handler) *LocalBus {
	if workers < 1 {
		workers = 1
	}
	b := &LocalBus{ch: make(chan SubmissionEvent, buffer), handler: h}
	for i := range workers {
		b.wg.Add(1)
		go b.work(ctx, i+1)
	}
	return b
}

func (b *LocalBus) work(ctx context.Context, id int) {
	defer b.wg.Done()
	for ev := range b.ch {
		if err := b.handler(ctx, ev); err != nil {
			slog.Error("submission event failed", "worker", id, "submission_id", ev.SubmissionID, "error", err)
		}
	}
}

// PublishSubmitted queues ev, blocking while the buffer is full.
func (b *LocalBus) PublishSubmitted(ctx context.Context, ev SubmissionEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued ones to finish.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}
