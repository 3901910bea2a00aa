package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/appraise-cli/internal/executor"
	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/resilience"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateItem(ctx context.Context, item model.Item) (*model.Item, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Item), args.Error(1)
}

func (m *mockStore) GetItem(ctx context.Context, id string) (*model.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Item), args.Error(1)
}

func (m *mockStore) UpdateItem(ctx context.Context, id string, patch model.ItemPatch) (*model.Item, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Item), args.Error(1)
}

func (m *mockStore) ImportItems(ctx context.Context, items []model.Item) (int64, error) {
	args := m.Called(ctx, items)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) SaveWorkflow(ctx context.Context, rec model.WorkflowRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockStore) GetWorkflow(ctx context.Context, id string) (*model.WorkflowRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WorkflowRecord), args.Error(1)
}

func (m *mockStore) ListWorkflows(ctx context.Context, filter model.WorkflowFilter) ([]model.WorkflowRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.WorkflowRecord), args.Error(1)
}

func (m *mockStore) LogEvent(ctx context.Context, ev executor.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *mockStore) ListEvents(ctx context.Context, workflowID string) ([]executor.Event, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]executor.Event), args.Error(1)
}

func (m *mockStore) AppendLedger(ctx context.Context, entry model.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockStore) GetLedger(ctx context.Context, itemID string) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LedgerEntry), args.Error(1)
}

func (m *mockStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]resilience.DLQEntry), args.Error(1)
}

func (m *mockStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]resilience.DLQEntry), args.Error(1)
}

func (m *mockStore) IncrementDLQRetry(ctx context.Context, itemID string, nextRetryAt time.Time, lastErr string) error {
	args := m.Called(ctx, itemID, nextRetryAt, lastErr)
	return args.Error(0)
}

func (m *mockStore) RemoveDLQ(ctx context.Context, itemID string) error {
	args := m.Called(ctx, itemID)
	return args.Error(0)
}

func (m *mockStore) CountDLQ(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Vision Mock ---

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) AnalyzeImages(ctx context.Context, images []model.ImageRef, item *model.ItemContext) (*model.ImageAnalysis, error) {
	args := m.Called(ctx, images, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ImageAnalysis), args.Error(1)
}

// --- Hasher Mock ---

type mockHasher struct {
	mock.Mock
}

func (m *mockHasher) Verify(ctx context.Context, ref model.ImageRef, expected string) model.ImageHash {
	args := m.Called(ctx, ref, expected)
	return args.Get(0).(model.ImageHash)
}
