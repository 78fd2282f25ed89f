package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

// OutboxEntry is one undelivered event row.
type OutboxEntry struct {
	ID         uuid.UUID
	PracticeID string
	Type       string
	Payload    json.RawMessage
	CreatedAt  time.Time
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type outboxQuerier interface {
	execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	insertOutboxSQL = `
		INSERT INTO outbox (id, practice_id, type, payload)
		VALUES ($1, $2, $3, $4)
	`
	pendingOutboxSQL = `
		SELECT id, practice_id, type, payload, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	markDeliveredSQL = `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
)

// OutboxStore reads and writes the outbox table.
type OutboxStore struct {
	db outboxQuerier
}

// NewOutboxStore accepts a *pgxpool.Pool or anything with the same Exec and
// Query methods.
func NewOutboxStore(db outboxQuerier) *OutboxStore {
	if db == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: db}
}

// Insert writes an event outside any caller transaction.
func (s *OutboxStore) Insert(ctx context.Context, practiceID, eventType string, payload any) (uuid.UUID, error) {
	return insertEntry(ctx, s.db, practiceID, eventType, payload)
}

// InsertTx writes an event on tx, so it commits or rolls back with the
// caller's own writes.
func (s *OutboxStore) InsertTx(ctx context.Context, tx pgx.Tx, practiceID, eventType string, payload any) (uuid.UUID, error) {
	if tx == nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: nil transaction")
	}
	return insertEntry(ctx, tx, practiceID, eventType, payload)
}

func insertEntry(ctx context.Context, db execer, practiceID, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal %s: %w", eventType, err)
	}
	id := uuid.New()
	if _, err := db.Exec(ctx, insertOutboxSQL, id, practiceID, eventType, data); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return id, nil
}

// FetchPending returns up to limit undelivered entries, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	rows, err := s.db.Query(ctx, pendingOutboxSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			entry   OutboxEntry
			payload []byte
		)
		if err := rows.Scan(&entry.ID, &entry.PracticeID, &entry.Type, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append(json.RawMessage(nil), payload...)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkDelivered reports false when another deliverer got there first.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, markDeliveredSQL, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

type pendingSource interface {
	FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
}

// Deliverer polls the outbox and hands each entry to a DeliveryHandler.
// Entries whose handler fails stay pending and are retried on a later tick.
type Deliverer struct {
	store     pendingSource
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(store pendingSource, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Start drains once immediately, then on every tick, and returns when ctx is
// cancelled.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		d.catchUp(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// catchUp keeps draining while full batches are delivered, so a backlog
// clears without waiting one interval per batch.
func (d *Deliverer) catchUp(ctx context.Context) {
	for ctx.Err() == nil {
		fetched, delivered := d.drain(ctx)
		if fetched < int(d.batchSize) || delivered == 0 {
			return
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) (fetched, delivered int) {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0, 0
	}
	for _, entry := range entries {
		log := d.logger.With("event_id", entry.ID.String(), "type", entry.Type, "practice_id", entry.PracticeID)
		if err := d.handler.Handle(ctx, entry); err != nil {
			log.Error("outbox delivery failed", "error", err)
			continue
		}
		ok, err := d.store.MarkDelivered(ctx, entry.ID)
		if err != nil {
			log.Error("failed to mark outbox delivered", "error", err)
			continue
		}
		if ok {
			delivered++
			log.Debug("outbox delivered")
		}
	}
	return len(entries), delivered
}
