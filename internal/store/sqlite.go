package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/appraise-cli/internal/executor"
	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/provenance"
	"github.com/sells-group/appraise-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Timestamps used for ordering are stored as unix nanoseconds.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS items (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS workflows (
	id         TEXT PRIMARY KEY,
	item_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	record     TEXT NOT NULL,
	started_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS step_events (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	item_id     TEXT,
	step_name   TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	data        TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS provenance_ledger (
	id          TEXT PRIMARY KEY,
	item_id     TEXT NOT NULL,
	workflow_id TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	event_count INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	item_id        TEXT PRIMARY KEY,
	workflow_id    TEXT NOT NULL,
	status         TEXT NOT NULL,
	images         TEXT NOT NULL DEFAULT '[]',
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	failed_stage   TEXT NOT NULL DEFAULT '',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  INTEGER NOT NULL,
	created_at     INTEGER NOT NULL,
	last_failed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workflows_item_id ON workflows(item_id);
CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status);
CREATE INDEX IF NOT EXISTS idx_step_events_workflow_id ON step_events(workflow_id);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_provenance_ledger_item_id ON provenance_ledger(item_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateItem(ctx context.Context, item model.Item) (*model.Item, error) {
	if err := provenance.ValidateItem(item); err != nil {
		return nil, eris.Wrapf(err, "sqlite: invalid item %s", item.ID)
	}
	item = prepareItem(item, s.now())
	data, err := json.Marshal(item)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal item")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO items (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		item.ID, string(data), item.CreatedAt.UnixNano(), item.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert item %s", item.ID)
	}
	return &item, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*model.Item, error) {
	return getItem(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getItem(ctx context.Context, q queryRower, id string) (*model.Item, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM items WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "item %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get item %s", id)
	}
	item, err := decodeItem([]byte(data))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite")
	}
	return item, nil
}

func (s *SQLiteStore) UpdateItem(ctx context.Context, id string, patch model.ItemPatch) (*model.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin update item")
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := getItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	updated := patch.Apply(*current)
	updated.UpdatedAt = s.now()
	data, err := json.Marshal(updated)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal item")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET data = ?, updated_at = ? WHERE id = ?`,
		string(data), updated.UpdatedAt.UnixNano(), id,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: update item %s", id)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit update item")
	}
	return &updated, nil
}

func (s *SQLiteStore) ImportItems(ctx context.Context, items []model.Item) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now()
	for i, it := range items {
		if err := provenance.ValidateItem(it); err != nil {
			return 0, eris.Wrapf(err, "sqlite: invalid item %d", i+1)
		}
		it = prepareItem(it, now)
		data, err := json.Marshal(it)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal item")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			it.ID, string(data), it.CreatedAt.UnixNano(), it.UpdatedAt.UnixNano(),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import item %s", it.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return int64(len(items)), nil
}

func (s *SQLiteStore) SaveWorkflow(ctx context.Context, rec model.WorkflowRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal workflow")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, item_id, status, record, started_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, record = excluded.record`,
		rec.WorkflowID, rec.ItemID, string(rec.Status), string(data), rec.StartedAt.UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: save workflow %s", rec.WorkflowID)
}

func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*model.WorkflowRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM workflows WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "workflow %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get workflow %s", id)
	}
	rec, err := decodeWorkflow([]byte(data))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite")
	}
	return rec, nil
}

func (s *SQLiteStore) ListWorkflows(ctx context.Context, filter model.WorkflowFilter) ([]model.WorkflowRecord, error) {
	query := `SELECT record FROM workflows WHERE 1=1`
	var args []any

	if filter.ItemID != "" {
		query += ` AND item_id = ?`
		args = append(args, filter.ItemID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.StartedAfter.IsZero() {
		query += ` AND started_at > ?`
		args = append(args, filter.StartedAfter.UnixNano())
	}
	query += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list workflows")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.WorkflowRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan workflow")
		}
		rec, err := decodeWorkflow([]byte(data))
		if err != nil {
			return nil, eris.Wrap(err, "sqlite")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list workflows iterate")
}

func (s *SQLiteStore) LogEvent(ctx context.Context, ev executor.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal event")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO step_events (id, workflow_id, item_id, step_name, event_type, data, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.WorkflowID, ev.ItemID, ev.StepName, string(ev.Type), string(data), ev.Timestamp.UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: insert event %s", ev.ID)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, workflowID string) ([]executor.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM step_events WHERE workflow_id = ? ORDER BY created_at, rowid`,
		workflowID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close() //nolint:errcheck

	var out []executor.Event
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		ev, err := decodeEvent([]byte(data))
		if err != nil {
			return nil, eris.Wrap(err, "sqlite")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

func (s *SQLiteStore) AppendLedger(ctx context.Context, entry model.LedgerEntry) error {
	entry = prepareLedger(entry, s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provenance_ledger (id, item_id, workflow_id, fingerprint, event_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ItemID, entry.WorkflowID, entry.Fingerprint, entry.EventCount, entry.CreatedAt.UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: append ledger for item %s", entry.ItemID)
}

func (s *SQLiteStore) GetLedger(ctx context.Context, itemID string) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, workflow_id, fingerprint, event_count, created_at
		 FROM provenance_ledger WHERE item_id = ? ORDER BY created_at, rowid`,
		itemID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get ledger")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var created int64
		if err := rows.Scan(&e.ID, &e.ItemID, &e.WorkflowID, &e.Fingerprint, &e.EventCount, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ledger")
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get ledger iterate")
}

// Dead letter queue methods

const sqliteDLQColumns = `item_id, workflow_id, status, images, error, error_type, failed_stage,
	retry_count, max_retries, next_retry_at, created_at, last_failed_at`

// EnqueueDLQ inserts the item's dead letter, or refreshes the failure details
// of an existing one. Retry count, schedule and creation time are kept.
func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	images, err := json.Marshal(entry.Images)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq images")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue (`+sqliteDLQColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (item_id) DO UPDATE SET
		   workflow_id = excluded.workflow_id, status = excluded.status, images = excluded.images,
		   error = excluded.error, error_type = excluded.error_type, failed_stage = excluded.failed_stage,
		   max_retries = excluded.max_retries, last_failed_at = excluded.last_failed_at`,
		entry.ItemID, entry.WorkflowID, string(entry.Status), string(images), entry.Error, entry.ErrorType,
		entry.FailedStage, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt.UnixNano(), entry.CreatedAt.UnixNano(), entry.LastFailedAt.UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: enqueue dlq %s", entry.ItemID)
}

// DequeueDLQ returns entries that are due and still have retries left,
// earliest first.
func (s *SQLiteStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT ` + sqliteDLQColumns + ` FROM dead_letter_queue
	          WHERE next_retry_at <= ? AND retry_count < max_retries`
	args := []any{s.now().UnixNano()}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY next_retry_at ASC, item_id LIMIT ?`
	args = append(args, dlqLimit(filter))
	return s.queryDLQ(ctx, query, args...)
}

// ListDLQ returns every entry, most recently failed first.
func (s *SQLiteStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT ` + sqliteDLQColumns + ` FROM dead_letter_queue WHERE 1=1`
	var args []any
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY last_failed_at DESC, item_id LIMIT ?`
	args = append(args, dlqLimit(filter))
	return s.queryDLQ(ctx, query, args...)
}

func (s *SQLiteStore) queryDLQ(ctx context.Context, query string, args ...any) ([]resilience.DLQEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query dlq")
	}
	defer rows.Close() //nolint:errcheck

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var status, images string
		var next, created, lastFailed int64
		if err := rows.Scan(&e.ItemID, &e.WorkflowID, &status, &images, &e.Error, &e.ErrorType,
			&e.FailedStage, &e.RetryCount, &e.MaxRetries, &next, &created, &lastFailed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		if err := json.Unmarshal([]byte(images), &e.Images); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq images")
		}
		e.Status = model.WorkflowStatus(status)
		e.NextRetryAt = time.Unix(0, next).UTC()
		e.CreatedAt = time.Unix(0, created).UTC()
		e.LastFailedAt = time.Unix(0, lastFailed).UTC()
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: query dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, itemID string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE item_id = ?`,
		nextRetryAt.UnixNano(), lastErr, s.now().UnixNano(), itemID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", itemID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: increment dlq rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "dlq entry %s", itemID)
	}
	return nil
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE item_id = ?`, itemID)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}

var _ Store = (*SQLiteStore)(nil)
