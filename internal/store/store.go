// Package store persists items, workflow records, step events and the
// provenance ledger.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/appraise-cli/internal/executor"
	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/resilience"
)

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = eris.New("store: not found")

// IsNotFound reports whether err means the entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store defines the persistence interface for the appraisal pipeline.
type Store interface {
	// Items
	CreateItem(ctx context.Context, item model.Item) (*model.Item, error)
	GetItem(ctx context.Context, id string) (*model.Item, error)
	UpdateItem(ctx context.Context, id string, patch model.ItemPatch) (*model.Item, error)
	ImportItems(ctx context.Context, items []model.Item) (int64, error)

	// Workflows
	SaveWorkflow(ctx context.Context, rec model.WorkflowRecord) error
	GetWorkflow(ctx context.Context, id string) (*model.WorkflowRecord, error)
	ListWorkflows(ctx context.Context, filter model.WorkflowFilter) ([]model.WorkflowRecord, error)

	// Step events
	LogEvent(ctx context.Context, ev executor.Event) error
	ListEvents(ctx context.Context, workflowID string) ([]executor.Event, error)

	// Provenance ledger
	AppendLedger(ctx context.Context, entry model.LedgerEntry) error
	GetLedger(ctx context.Context, itemID string) ([]model.LedgerEntry, error)

	// Dead letter queue, keyed by item ID
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, itemID string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, itemID string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// defaultListLimit bounds ListWorkflows when the filter sets none.
const defaultListLimit = 100

func listLimit(f model.WorkflowFilter) int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

func dlqLimit(f resilience.DLQFilter) int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}
