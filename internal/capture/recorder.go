// Package capture is the single write path of the audit trail. Business code
// hands events to a Recorder, which validates them and persists them from a
// background worker so a storage outage never fails the operation being
// recorded.
package capture

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opencampus/trail/internal/domain"
	redisstore "github.com/opencampus/trail/internal/store/redis"
)

const appendTimeout = 5 * time.Second

// FeedPublisher pushes persisted events to the live operator feed.
type FeedPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// AlertSink receives failure-status security events for out-of-band alerting.
type AlertSink interface {
	Alert(ctx context.Context, e *domain.AuditEvent) error
}

// Options tunes a Recorder. The zero value gets sane defaults.
type Options struct {
	QueueSize        int // bounded queue between callers and the writer worker
	MetadataMaxBytes int // serialized metadata cap; <=0 disables
	Publisher        FeedPublisher
	Alerts           AlertSink
}

// Recorder validates and enqueues audit events onto a bounded channel drained
// by a dedicated writer goroutine. Enqueueing never blocks: when the queue is
// full the event is dropped and counted, because rejecting a user action over
// a slow audit writer is worse than losing the record of it.
type Recorder struct {
	store         domain.EventRepository
	queue         chan *domain.AuditEvent
	metadataLimit int
	publisher     FeedPublisher
	alerts        AlertSink

	// mu orders enqueues against Close: producers hold the read lock while
	// checking closed and sending, Close takes the write lock to flip the
	// flag and close the queue, so a send can never land on a closed channel.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

func NewRecorder(store domain.EventRepository, opts Options) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	r := &Recorder{
		store:         store,
		queue:         make(chan *domain.AuditEvent, opts.QueueSize),
		metadataLimit: opts.MetadataMaxBytes,
		publisher:     opts.Publisher,
		alerts:        opts.Alerts,
		done:          make(chan struct{}),
	}
	go r.run()
	return r
}

// Record validates the event and hands it to the writer worker. The only
// error callers can see is a schema violation; persistence failures are
// contained inside the worker.
func (r *Recorder) Record(_ context.Context, e *domain.AuditEvent) error {
	if verr := e.Normalize(r.metadataLimit); verr != nil {
		invalidTotal.Inc()
		log.Warn().Str("field", verr.Field).Str("action", e.Action).Msg("audit event rejected")
		return verr
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		droppedTotal.Inc()
		log.Warn().Str("action", e.Action).Msg("audit event dropped: recorder closed")
		return nil
	}

	select {
	case r.queue <- e:
		queueDepth.Set(float64(len(r.queue)))
	default:
		droppedTotal.Inc()
		log.Warn().Str("action", e.Action).Msg("audit event dropped: queue full")
	}
	return nil
}

// RecordSync validates and appends in the caller's goroutine, returning the
// assigned event ID. Used where the write must be durable before returning,
// like the retention pass entry; request paths should prefer Record.
func (r *Recorder) RecordSync(ctx context.Context, e *domain.AuditEvent) (uuid.UUID, error) {
	if verr := e.Normalize(r.metadataLimit); verr != nil {
		invalidTotal.Inc()
		return uuid.Nil, verr
	}

	id, err := r.store.Append(ctx, e)
	if err != nil {
		return uuid.Nil, err
	}

	capturedTotal.WithLabelValues(string(e.Category), string(e.Status)).Inc()
	r.fanOut(ctx, e)
	return id, nil
}

// Close stops accepting events and drains the queue, bounded by ctx.
func (r *Recorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		queueDepth.Set(float64(len(r.queue)))
		r.append(e)
	}
}

func (r *Recorder) append(e *domain.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	if _, err := r.store.Append(ctx, e); err != nil {
		droppedTotal.Inc()
		log.Error().Err(err).Str("action", e.Action).Msg("audit append failed, event dropped")
		return
	}

	capturedTotal.WithLabelValues(string(e.Category), string(e.Status)).Inc()
	r.fanOut(ctx, e)
}

// fanOut pushes the persisted event to the live feed and the alert sink.
// Both are best effort; the event is already durable at this point.
func (r *Recorder) fanOut(ctx context.Context, e *domain.AuditEvent) {
	if r.publisher != nil {
		payload, err := json.Marshal(e)
		if err != nil {
			log.Error().Err(err).Msg("audit feed marshal failed")
		} else {
			if err := r.publisher.Publish(ctx, redisstore.FeedChannelAll, payload); err != nil {
				log.Debug().Err(err).Msg("audit feed publish failed")
			}
			if err := r.publisher.Publish(ctx, redisstore.FeedChannel(string(e.Category)), payload); err != nil {
				log.Debug().Err(err).Msg("audit feed publish failed")
			}
		}
	}

	if r.alerts != nil && e.Status == domain.StatusFailure &&
		(e.Category == domain.CategoryAuthentication || e.Category == domain.CategorySystem) {
		if err := r.alerts.Alert(ctx, e); err != nil {
			log.Warn().Err(err).Str("action", e.Action).Msg("audit alert failed")
		}
	}
}
