package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/appraise-cli/internal/executor"
	"github.com/sells-group/appraise-cli/internal/model"
)

// prepareItem fills in the ID and timestamps of a new item.
func prepareItem(item model.Item, now time.Time) model.Item {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	return item
}

func decodeItem(raw []byte) (*model.Item, error) {
	var item model.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, eris.Wrap(err, "unmarshal item")
	}
	return &item, nil
}

func decodeWorkflow(raw []byte) (*model.WorkflowRecord, error) {
	var rec model.WorkflowRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, eris.Wrap(err, "unmarshal workflow")
	}
	return &rec, nil
}

func decodeEvent(raw []byte) (executor.Event, error) {
	var ev executor.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, eris.Wrap(err, "unmarshal event")
	}
	return ev, nil
}

// prepareLedger fills in the ID and timestamp of a new ledger entry.
func prepareLedger(entry model.LedgerEntry, now time.Time) model.LedgerEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry
}
