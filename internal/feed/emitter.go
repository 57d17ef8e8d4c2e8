package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ideaforge/ideaforge-go/internal/platform/logutil"
	"github.com/ideaforge/ideaforge-go/internal/store"
)

// Event is one outbox entry. Either field may be nil; both set means the
// transition produced a notification and an activity entry together.
type Event struct {
	Notification *store.Notification
	Activity     *store.Activity
}

// EmitterConfig configures the outbox emitter.
type EmitterConfig struct {
	// QueueSize bounds the outbox. Enqueue drops (with a warning) when full.
	QueueSize int

	// MaxTries bounds delivery attempts per record before the event is dropped.
	MaxTries uint

	// InitialInterval seeds the exponential backoff between attempts.
	InitialInterval time.Duration
}

// ApplyDefaults sets defaults for unset fields.
func (c *EmitterConfig) ApplyDefaults() {
	if c.QueueSize == 0 {
		c.QueueSize = 256
	}
	if c.MaxTries == 0 {
		c.MaxTries = 5
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = 50 * time.Millisecond
	}
}

// Emitter is the notification/activity outbox dispatcher.
type Emitter struct {
	sink store.FeedStore
	log  *slog.Logger
	cfg  EmitterConfig

	queue chan Event
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewEmitter creates an emitter. Call Start to launch the dispatcher and
// Close to drain and stop it.
func NewEmitter(sink store.FeedStore, log *slog.Logger, cfg EmitterConfig) *Emitter {
	cfg.ApplyDefaults()
	return &Emitter{
		sink:  sink,
		log:   logutil.NoopIfNil(log),
		cfg:   cfg,
		queue: make(chan Event, cfg.QueueSize),
	}
}

// Start launches the dispatcher goroutine. ctx bounds delivery attempts;
// cancelling it abandons retries in flight but Close still drains the queue.
func (e *Emitter) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for ev := range e.queue {
			e.deliver(ctx, ev)
		}
	}()
}

// Enqueue adds an event to the outbox without blocking. Returns false if
// the event was dropped (queue full or emitter closed).
func (e *Emitter) Enqueue(ev Event) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.log.Warn("feed event dropped, emitter closed")
		return false
	}

	select {
	case e.queue <- ev:
		return true
	default:
		e.log.Warn("feed event dropped, outbox full", "queue_size", e.cfg.QueueSize)
		return false
	}
}

// Close stops accepting events, drains the queue and waits for the
// dispatcher to finish.
func (e *Emitter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	e.wg.Wait()
	return nil
}

func (e *Emitter) deliver(ctx context.Context, ev Event) {
	if ev.Notification != nil {
		if err := e.writeWithRetry(ctx, func() error {
			return e.sink.AppendNotification(ctx, ev.Notification)
		}); err != nil {
			e.log.Warn("notification dropped after retries",
				"type", ev.Notification.Type,
				"user_id", ev.Notification.UserID,
				"error", err)
		}
	}
	if ev.Activity != nil {
		if err := e.writeWithRetry(ctx, func() error {
			return e.sink.AppendActivity(ctx, ev.Activity)
		}); err != nil {
			e.log.Warn("activity dropped after retries",
				"type", ev.Activity.Type,
				"user_id", ev.Activity.UserID,
				"error", err)
		}
	}
}

func (e *Emitter) writeWithRetry(ctx context.Context, write func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.InitialInterval

	_, err := backoff.Retry(ctx,
		func() (struct{}, error) {
			return struct{}{}, write()
		},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(e.cfg.MaxTries),
	)
	return err
}
