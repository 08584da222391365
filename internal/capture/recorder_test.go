package capture_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/trail/internal/capture"
	"github.com/opencampus/trail/internal/domain"
)

// ---------------------------------------------------------------------------
// Mock EventRepository
// ---------------------------------------------------------------------------

type mockRepo struct {
	mu       sync.Mutex
	appended []*domain.AuditEvent

	appendFunc func(ctx context.Context, e *domain.AuditEvent) (uuid.UUID, error)
	appendedCh chan *domain.AuditEvent
}

func newMockRepo() *mockRepo {
	return &mockRepo{appendedCh: make(chan *domain.AuditEvent, 64)}
}

func (m *mockRepo) Append(ctx context.Context, e *domain.AuditEvent) (uuid.UUID, error) {
	if m.appendFunc != nil {
		id, err := m.appendFunc(ctx, e)
		if err != nil {
			return uuid.Nil, err
		}
		m.record(e)
		return id, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, err
	}
	e.ID = id
	e.Timestamp = time.Now()
	m.record(e)
	return id, nil
}

func (m *mockRepo) record(e *domain.AuditEvent) {
	m.mu.Lock()
	m.appended = append(m.appended, e)
	m.mu.Unlock()
	m.appendedCh <- e
}

func (m *mockRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appended)
}

func (m *mockRepo) Search(context.Context, domain.Filter, int, int) ([]*domain.AuditEvent, int, error) {
	return nil, 0, nil
}

func (m *mockRepo) Stats(context.Context, domain.Filter) (*domain.Stats, error) {
	return &domain.Stats{}, nil
}

func (m *mockRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// ---------------------------------------------------------------------------
// Mock feed publisher and alert sink
// ---------------------------------------------------------------------------

type mockPublisher struct {
	mu       sync.Mutex
	channels []string
}

func (p *mockPublisher) Publish(_ context.Context, channel string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	return nil
}

func (p *mockPublisher) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.channels...)
}

type mockAlerts struct {
	mu     sync.Mutex
	events []*domain.AuditEvent
}

func (a *mockAlerts) Alert(_ context.Context, e *domain.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *mockAlerts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

func validEvent() *domain.AuditEvent {
	return &domain.AuditEvent{
		ActorType: domain.ActorAdmin,
		ActorName: "Dana Admin",
		Action:    "teacher_created",
		Category:  domain.CategoryUserManagement,
		Details:   "Dana Admin created teacher Kim Nguyen",
	}
}

func waitAppend(t *testing.T, repo *mockRepo) *domain.AuditEvent {
	t.Helper()
	select {
	case e := <-repo.appendedCh:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for append")
		return nil
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRecord(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		repo := newMockRepo()
		rec := capture.NewRecorder(repo, capture.Options{})
		defer func() { _ = rec.Close(context.Background()) }()

		require.NoError(t, rec.Record(context.Background(), validEvent()))

		appended := waitAppend(t, repo)
		assert.Equal(t, "teacher_created", appended.Action)
		assert.Equal(t, domain.StatusSuccess, appended.Status, "status defaults to success")
	})

	t.Run("rejects_invalid_event", func(t *testing.T) {
		t.Parallel()

		repo := newMockRepo()
		rec := capture.NewRecorder(repo, capture.Options{})
		defer func() { _ = rec.Close(context.Background()) }()

		e := validEvent()
		e.Category = "billing"
		err := rec.Record(context.Background(), e)

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "category", verr.Field)
		assert.ErrorIs(t, err, domain.ErrInvalidEvent)
		assert.Zero(t, repo.count())
	})

	t.Run("storage_failure_is_contained", func(t *testing.T) {
		t.Parallel()

		repo := newMockRepo()
		repo.appendFunc = func(context.Context, *domain.AuditEvent) (uuid.UUID, error) {
			return uuid.Nil, domain.ErrStorageUnavailable
		}
		rec := capture.NewRecorder(repo, capture.Options{})

		// The caller's path is unaffected by a dead store.
		assert.NoError(t, rec.Record(context.Background(), validEvent()))
		assert.NoError(t, rec.Close(context.Background()))
		assert.Zero(t, repo.count())
	})

	t.Run("queue_full_drops_instead_of_blocking", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		repo := newMockRepo()
		repo.appendFunc = func(_ context.Context, e *domain.AuditEvent) (uuid.UUID, error) {
			<-release
			return uuid.NewV7()
		}

		rec := capture.NewRecorder(repo, capture.Options{QueueSize: 1})

		// First event occupies the worker, second fills the queue, the rest
		// must be dropped without blocking this goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 5; i++ {
				_ = rec.Record(context.Background(), validEvent())
			}
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Record blocked on a full queue")
		}

		close(release)
		require.NoError(t, rec.Close(context.Background()))
		assert.LessOrEqual(t, repo.count(), 2)
	})

	t.Run("concurrent_record_and_close_never_panics", func(t *testing.T) {
		t.Parallel()

		// Hammer the Record/Close window: an enqueue that slips past the
		// closed check must never land on a closed queue.
		for i := 0; i < 500; i++ {
			rec := capture.NewRecorder(newMockRepo(), capture.Options{QueueSize: 4})

			var wg sync.WaitGroup
			start := make(chan struct{})
			for p := 0; p < 4; p++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					assert.NotPanics(t, func() {
						_ = rec.Record(context.Background(), validEvent())
					})
				}()
			}
			close(start)
			require.NoError(t, rec.Close(context.Background()))
			wg.Wait()
		}
	})

	t.Run("after_close_drops_silently", func(t *testing.T) {
		t.Parallel()

		repo := newMockRepo()
		rec := capture.NewRecorder(repo, capture.Options{})
		require.NoError(t, rec.Close(context.Background()))

		assert.NoError(t, rec.Record(context.Background(), validEvent()))
		assert.Zero(t, repo.count())
	})
}

func TestRecordSync(t *testing.T) {
	t.Parallel()

	t.Run("returns_assigned_id", func(t *testing.T) {
		t.Parallel()

		repo := newMockRepo()
		rec := capture.NewRecorder(repo, capture.Options{})
		defer func() { _ = rec.Close(context.Background()) }()

		id, err := rec.RecordSync(context.Background(), validEvent())
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)
	})

	t.Run("surfaces_storage_error", func(t *testing.T) {
		t.Parallel()

		repo := newMockRepo()
		repo.appendFunc = func(context.Context, *domain.AuditEvent) (uuid.UUID, error) {
			return uuid.Nil, errors.New("connection refused")
		}
		rec := capture.NewRecorder(repo, capture.Options{})
		defer func() { _ = rec.Close(context.Background()) }()

		_, err := rec.RecordSync(context.Background(), validEvent())
		assert.Error(t, err)
	})
}

func TestFanOut(t *testing.T) {
	t.Parallel()

	t.Run("publishes_to_firehose_and_category_channel", func(t *testing.T) {
		t.Parallel()

		repo := newMockRepo()
		pub := &mockPublisher{}
		rec := capture.NewRecorder(repo, capture.Options{Publisher: pub})

		require.NoError(t, rec.Record(context.Background(), validEvent()))
		waitAppend(t, repo)
		require.NoError(t, rec.Close(context.Background()))

		assert.Contains(t, pub.seen(), "audit:feed:all")
		assert.Contains(t, pub.seen(), "audit:feed:user_management")
	})

	t.Run("alerts_on_auth_failure_only", func(t *testing.T) {
		t.Parallel()

		repo := newMockRepo()
		alerts := &mockAlerts{}
		rec := capture.NewRecorder(repo, capture.Options{Alerts: alerts})

		loginFailure := validEvent()
		loginFailure.Category = domain.CategoryAuthentication
		loginFailure.Action = "login_failure"
		loginFailure.Status = domain.StatusFailure
		require.NoError(t, rec.Record(context.Background(), loginFailure))
		waitAppend(t, repo)

		paymentFailure := validEvent()
		paymentFailure.Category = domain.CategoryPayment
		paymentFailure.Status = domain.StatusFailure
		require.NoError(t, rec.Record(context.Background(), paymentFailure))
		waitAppend(t, repo)

		require.NoError(t, rec.Close(context.Background()))
		assert.Equal(t, 1, alerts.count())
	})
}
