package resilience

import (
	"time"

	"github.com/sells-group/appraise-cli/internal/model"
)

// Error classes recorded on dead letters.
const (
	ErrorTransient = "transient"
	ErrorPermanent = "permanent"
)

// maxRetryDelay caps the dead letter backoff.
const maxRetryDelay = 24 * time.Hour

// DLQEntry is an item whose last workflow failed or ended partial, kept so the
// workflow can be run again later. There is at most one entry per item.
type DLQEntry struct {
	ItemID       string               `json:"item_id"`
	WorkflowID   string               `json:"workflow_id"`
	Status       model.WorkflowStatus `json:"status"`
	Images       []model.ImageRef     `json:"images,omitempty"`
	Error        string               `json:"error"`
	ErrorType    string               `json:"error_type"` // "transient" or "permanent"
	FailedStage  string               `json:"failed_stage,omitempty"`
	RetryCount   int                  `json:"retry_count"`
	MaxRetries   int                  `json:"max_retries"`
	NextRetryAt  time.Time            `json:"next_retry_at"`
	CreatedAt    time.Time            `json:"created_at"`
	LastFailedAt time.Time            `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ErrorClass reduces ClassifyError to the two dead letter classes. Open
// breakers and timeouts are transient.
func ErrorClass(err error) string {
	switch ClassifyError(err) {
	case "":
		return ""
	case "transient", "timeout", "circuit_open":
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// RetryDelay is base·2^retryCount, capped at 24h.
func RetryDelay(base time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return min(d, maxRetryDelay)
}
