package profile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taste-trails/localguide/internal/model"
)

// Recorder drains profile events to the store without blocking the
// orchestrator. Submit never waits: when the buffer is full the event
// is dropped with a log line, since losing a search-log entry is
// cheaper than delaying a recommendation.
type Recorder struct {
	store  Store
	events chan model.ProfileEvent

	wg      sync.WaitGroup
	stopped sync.Once
	done    chan struct{}

	// writeTimeout bounds one store write.
	writeTimeout time.Duration
}

// NewRecorder starts a recorder with the given buffer depth.
func NewRecorder(store Store, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		store:        store,
		events:       make(chan model.ProfileEvent, buffer),
		done:         make(chan struct{}),
		writeTimeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// Submit queues one event. Fire-and-forget: errors and overflow are
// logged, never returned.
func (r *Recorder) Submit(ev model.ProfileEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case r.events <- ev:
	default:
		zap.L().Warn("profile recorder buffer full, dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.String("user_id", ev.UserID),
		)
	}
}

// Stop drains remaining events and blocks until the worker exits.
func (r *Recorder) Stop() {
	r.stopped.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for {
		select {
		case ev := <-r.events:
			r.apply(ev)
		case <-r.done:
			for {
				select {
				case ev := <-r.events:
					r.apply(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) apply(ev model.ProfileEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()
	if err := ApplyEvent(ctx, r.store, ev.UserID, ev); err != nil {
		zap.L().Warn("profile event write failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("user_id", ev.UserID),
			zap.Error(err),
		)
	}
}
