package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/appraise-cli/internal/db"
	"github.com/sells-group/appraise-cli/internal/executor"
	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/provenance"
	"github.com/sells-group/appraise-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: closeFn, now: func() time.Time { return time.Now().UTC() }}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS items (
	id         TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflows (
	id         TEXT PRIMARY KEY,
	item_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	record     JSONB NOT NULL,
	started_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS step_events (
	id          TEXT PRIMARY KEY,
	seq         BIGSERIAL,
	workflow_id TEXT NOT NULL,
	item_id     TEXT,
	step_name   TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	data        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS provenance_ledger (
	id          TEXT PRIMARY KEY,
	seq         BIGSERIAL,
	item_id     TEXT NOT NULL,
	workflow_id TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	event_count INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	item_id        TEXT PRIMARY KEY,
	workflow_id    TEXT NOT NULL,
	status         TEXT NOT NULL,
	images         JSONB NOT NULL DEFAULT '[]',
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	failed_stage   TEXT NOT NULL DEFAULT '',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_workflows_item_id ON workflows(item_id);
CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_workflows_started_at ON workflows(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_step_events_workflow_id ON step_events(workflow_id, created_at);
CREATE INDEX IF NOT EXISTS idx_provenance_ledger_item_id ON provenance_ledger(item_id, created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateItem(ctx context.Context, item model.Item) (*model.Item, error) {
	if err := provenance.ValidateItem(item); err != nil {
		return nil, eris.Wrapf(err, "postgres: invalid item %s", item.ID)
	}
	item = prepareItem(item, s.now())
	data, err := json.Marshal(item)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal item")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO items (id, data, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		item.ID, data, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert item %s", item.ID)
	}
	return &item, nil
}

func (s *PostgresStore) GetItem(ctx context.Context, id string) (*model.Item, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM items WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "item %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get item %s", id)
	}
	item, err := decodeItem(data)
	if err != nil {
		return nil, eris.Wrap(err, "postgres")
	}
	return item, nil
}

func (s *PostgresStore) UpdateItem(ctx context.Context, id string, patch model.ItemPatch) (*model.Item, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin update item")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var data []byte
	err = tx.QueryRow(ctx, `SELECT data FROM items WHERE id = $1 FOR UPDATE`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "item %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lock item %s", id)
	}
	current, err := decodeItem(data)
	if err != nil {
		return nil, eris.Wrap(err, "postgres")
	}

	updated := patch.Apply(*current)
	updated.UpdatedAt = s.now()
	out, err := json.Marshal(updated)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal item")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE items SET data = $1, updated_at = $2 WHERE id = $3`,
		out, updated.UpdatedAt, id,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: update item %s", id)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit update item")
	}
	return &updated, nil
}

// ImportItems bulk-loads new items with COPY.
func (s *PostgresStore) ImportItems(ctx context.Context, items []model.Item) (int64, error) {
	now := s.now()
	rows := make([][]any, 0, len(items))
	for i, it := range items {
		if err := provenance.ValidateItem(it); err != nil {
			return 0, eris.Wrapf(err, "postgres: invalid item %d", i+1)
		}
		it = prepareItem(it, now)
		data, err := json.Marshal(it)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal item")
		}
		rows = append(rows, []any{it.ID, data, it.CreatedAt, it.UpdatedAt})
	}
	n, err := db.CopyFrom(ctx, s.pool, "items", []string{"id", "data", "created_at", "updated_at"}, rows)
	return n, eris.Wrap(err, "postgres: import items")
}

func (s *PostgresStore) SaveWorkflow(ctx context.Context, rec model.WorkflowRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal workflow")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO workflows (id, item_id, status, record, started_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, record = EXCLUDED.record`,
		rec.WorkflowID, rec.ItemID, string(rec.Status), data, rec.StartedAt,
	)
	return eris.Wrapf(err, "postgres: save workflow %s", rec.WorkflowID)
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*model.WorkflowRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM workflows WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "workflow %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get workflow %s", id)
	}
	rec, err := decodeWorkflow(data)
	if err != nil {
		return nil, eris.Wrap(err, "postgres")
	}
	return rec, nil
}

func (s *PostgresStore) ListWorkflows(ctx context.Context, filter model.WorkflowFilter) ([]model.WorkflowRecord, error) {
	query := `SELECT record FROM workflows WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ItemID != "" {
		query += fmt.Sprintf(` AND item_id = $%d`, argIdx)
		args = append(args, filter.ItemID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.StartedAfter.IsZero() {
		query += fmt.Sprintf(` AND started_at > $%d`, argIdx)
		args = append(args, filter.StartedAfter)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list workflows")
	}
	defer rows.Close()

	var out []model.WorkflowRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan workflow")
		}
		rec, err := decodeWorkflow(data)
		if err != nil {
			return nil, eris.Wrap(err, "postgres")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list workflows iterate")
}

func (s *PostgresStore) LogEvent(ctx context.Context, ev executor.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal event")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO step_events (id, workflow_id, item_id, step_name, event_type, data, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.WorkflowID, ev.ItemID, ev.StepName, string(ev.Type), data, ev.Timestamp,
	)
	return eris.Wrapf(err, "postgres: insert event %s", ev.ID)
}

func (s *PostgresStore) ListEvents(ctx context.Context, workflowID string) ([]executor.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM step_events WHERE workflow_id = $1 ORDER BY created_at, seq`,
		workflowID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var out []executor.Event
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		ev, err := decodeEvent(data)
		if err != nil {
			return nil, eris.Wrap(err, "postgres")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

func (s *PostgresStore) AppendLedger(ctx context.Context, entry model.LedgerEntry) error {
	entry = prepareLedger(entry, s.now())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO provenance_ledger (id, item_id, workflow_id, fingerprint, event_count, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.ItemID, entry.WorkflowID, entry.Fingerprint, entry.EventCount, entry.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: append ledger for item %s", entry.ItemID)
}

func (s *PostgresStore) GetLedger(ctx context.Context, itemID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, item_id, workflow_id, fingerprint, event_count, created_at
		 FROM provenance_ledger WHERE item_id = $1 ORDER BY created_at, seq`,
		itemID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get ledger")
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.ItemID, &e.WorkflowID, &e.Fingerprint, &e.EventCount, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ledger")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get ledger iterate")
}

// Dead letter queue methods

const dlqColumns = `item_id, workflow_id, status, images, error, error_type, failed_stage,
	retry_count, max_retries, next_retry_at, created_at, last_failed_at`

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	images, err := json.Marshal(entry.Images)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq images")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue (`+dlqColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (item_id) DO UPDATE SET
		   workflow_id = $2, status = $3, images = $4, error = $5, error_type = $6,
		   failed_stage = $7, max_retries = $9, last_failed_at = $12`,
		entry.ItemID, entry.WorkflowID, string(entry.Status), images, entry.Error, entry.ErrorType,
		entry.FailedStage, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrapf(err, "postgres: enqueue dlq %s", entry.ItemID)
}

func (s *PostgresStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT ` + dlqColumns + ` FROM dead_letter_queue
	          WHERE next_retry_at <= $1 AND retry_count < max_retries`
	args := []any{s.now()}
	argIdx := 2

	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY next_retry_at ASC, item_id LIMIT $%d`, argIdx)
	args = append(args, dlqLimit(filter))
	return s.queryDLQ(ctx, query, args...)
}

func (s *PostgresStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT ` + dlqColumns + ` FROM dead_letter_queue WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY last_failed_at DESC, item_id LIMIT $%d`, argIdx)
	args = append(args, dlqLimit(filter))
	return s.queryDLQ(ctx, query, args...)
}

func (s *PostgresStore) queryDLQ(ctx context.Context, query string, args ...any) ([]resilience.DLQEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var status string
		var images []byte
		if err := rows.Scan(&e.ItemID, &e.WorkflowID, &status, &images, &e.Error, &e.ErrorType,
			&e.FailedStage, &e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if err := json.Unmarshal(images, &e.Images); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq images")
		}
		e.Status = model.WorkflowStatus(status)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: query dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, itemID string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = $3
		 WHERE item_id = $4`,
		nextRetryAt, lastErr, s.now(), itemID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", itemID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "dlq entry %s", itemID)
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, itemID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE item_id = $1`, itemID)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}

var _ Store = (*PostgresStore)(nil)
