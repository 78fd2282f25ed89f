package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := NewOutboxStore(mock)

	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), "practice-1", TypeAppointmentBooked, pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if _, err := store.Insert(context.Background(), "practice-1", TypeAppointmentBooked, map[string]string{"foo": "bar"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "practice_id", "type", "payload", "created_at"}).AddRow(id, "practice-1", TypeAppointmentBooked, []byte("{\"foo\":\"bar\"}"), now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOutboxInsertTxUsesCallerTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewOutboxStore(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), "practice-1", TypeAppointmentBooked, []byte(`{"pet":"Bella"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectRollback()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	id, err := store.InsertTx(context.Background(), tx, "practice-1", TypeAppointmentBooked, map[string]string{"pet": "Bella"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	require.NoError(t, tx.Rollback(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = store.InsertTx(context.Background(), nil, "practice-1", TypeAppointmentBooked, nil)
	assert.Error(t, err)
}

// memoryPending hands out entries until they are marked delivered.
type memoryPending struct {
	mu        sync.Mutex
	entries   []OutboxEntry
	delivered []uuid.UUID
	fetches   int
}

func (m *memoryPending) FetchPending(_ context.Context, limit int32) ([]OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	var out []OutboxEntry
	for _, e := range m.entries {
		if m.isDelivered(e.ID) {
			continue
		}
		out = append(out, e)
		if len(out) == int(limit) {
			break
		}
	}
	return out, nil
}

func (m *memoryPending) isDelivered(id uuid.UUID) bool {
	for _, d := range m.delivered {
		if d == id {
			return true
		}
	}
	return false
}

func (m *memoryPending) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, id)
	return true, nil
}

type flakyHandler struct {
	mu      sync.Mutex
	fail    uuid.UUID
	handled []uuid.UUID
}

func (h *flakyHandler) Handle(_ context.Context, entry OutboxEntry) error {
	if entry.ID == h.fail {
		return errors.New("queue unavailable")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, entry.ID)
	return nil
}

func (h *flakyHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestDelivererCatchUpClearsBacklog(t *testing.T) {
	store := &memoryPending{}
	for i := 0; i < 7; i++ {
		store.entries = append(store.entries, OutboxEntry{ID: uuid.New(), Type: TypeAppointmentBooked})
	}
	handler := &flakyHandler{}

	NewDeliverer(store, handler, nil).WithBatchSize(3).catchUp(context.Background())

	assert.Equal(t, 7, handler.count())
	// 3 + 3 + 1: the short batch ends the loop.
	assert.Equal(t, 3, store.fetches)
}

func TestDelivererDrainSkipsFailedEntries(t *testing.T) {
	good, bad := uuid.New(), uuid.New()
	store := &memoryPending{entries: []OutboxEntry{
		{ID: bad, Type: TypeAppointmentBooked},
		{ID: good, Type: TypeAppointmentBooked},
	}}
	handler := &flakyHandler{fail: bad}

	fetched, delivered := NewDeliverer(store, handler, nil).drain(context.Background())

	assert.Equal(t, 2, fetched)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, []uuid.UUID{good}, handler.handled)
	assert.Equal(t, []uuid.UUID{good}, store.delivered)
}

func TestDelivererStartStopsOnCancel(t *testing.T) {
	store := &memoryPending{entries: []OutboxEntry{{ID: uuid.New()}}}
	handler := &flakyHandler{}
	d := NewDeliverer(store, handler, nil).WithInterval(5 * time.Millisecond).WithBatchSize(5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return handler.count() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliverer did not stop after cancel")
	}
}
