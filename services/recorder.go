package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/michaelc143/Planarc/database"
)

//go:generate mockgen -source=recorder.go -destination=mock_sink_test.go -package=services

// ActivitySink persists activity events.
type ActivitySink interface {
	AppendActivity(ctx context.Context, ev database.ActivityEvent) error
}

const writeTimeout = 5 * time.Second

// Recorder delivers activity events to a sink from a single background
// worker. Record never blocks: when the buffer is full the event is dropped
// with a warning. Failed writes are retried a bounded number of times and
// then discarded.
type Recorder struct {
	sink    ActivitySink
	logger  *slog.Logger
	retries int
	backoff time.Duration

	events chan database.ActivityEvent
	done   chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewRecorder starts the worker. Call Close to drain and stop it.
func NewRecorder(sink ActivitySink, logger *slog.Logger, buffer, retries int, backoff time.Duration) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 1
	}
	if retries < 0 {
		retries = 0
	}
	r := &Recorder{
		sink:    sink,
		logger:  logger,
		retries: retries,
		backoff: backoff,
		events:  make(chan database.ActivityEvent, buffer),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues ev for persistence.
func (r *Recorder) Record(ev database.ActivityEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("activity recorder closed, dropping event",
			"board_id", ev.BoardID, "action", ev.Action, "entity_type", ev.EntityType)
		return
	}
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("activity buffer full, dropping event",
			"board_id", ev.BoardID, "action", ev.Action, "entity_type", ev.EntityType)
	}
}

// Close stops accepting events and waits until queued ones are written.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.events)
		r.mu.Unlock()
	})
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.events {
		r.write(ev)
	}
}

func (r *Recorder) write(ev database.ActivityEvent) {
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 && r.backoff > 0 {
			time.Sleep(r.backoff * time.Duration(attempt))
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = r.sink.AppendActivity(ctx, ev)
		cancel()
		if err == nil {
			return
		}
		r.logger.Debug("activity write failed", "attempt", attempt+1, "error", err)
	}
	r.logger.Error("discarding activity event",
		"board_id", ev.BoardID,
		"action", ev.Action,
		"entity_type", ev.EntityType,
		"entity_id", ev.EntityID,
		"attempts", r.retries+1,
		"error", err,
	)
}
