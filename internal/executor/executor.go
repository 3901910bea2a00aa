// Package executor runs pipeline steps behind a circuit breaker, a retry loop
// and a per-attempt timeout, and reports each step's lifecycle as events.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/appraise-cli/internal/resilience"
)

// DefaultStepTimeout bounds each attempt when Config.StepTimeout is unset.
const DefaultStepTimeout = 10 * time.Second

// Config holds the step policy shared by every step.
type Config struct {
	StepTimeout time.Duration
	Retry       resilience.RetryConfig
}

// DefaultConfig is 10s per attempt and three retries at 1s, 2s, 4s.
func DefaultConfig() Config {
	return Config{
		StepTimeout: DefaultStepTimeout,
		Retry:       resilience.DefaultRetryConfig(),
	}
}

// Executor runs steps. It is safe for concurrent use.
type Executor struct {
	breakers  *resilience.Registry
	cfg       Config
	sink      EventSink
	overrides Overrides
	now       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithSink sets where lifecycle events go.
func WithSink(s EventSink) Option {
	return func(ex *Executor) { ex.sink = s }
}

// WithOverrides enables sandbox results.
func WithOverrides(o Overrides) Option {
	return func(ex *Executor) { ex.overrides = o }
}

// WithSleep replaces the wait between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(ex *Executor) { ex.cfg.Retry.Sleep = sleep }
}

// WithClock overrides the clock used for event timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(ex *Executor) { ex.now = now }
}

// New creates an Executor using breakers for per-step circuit state.
func New(breakers *resilience.Registry, cfg Config, opts ...Option) *Executor {
	if breakers == nil {
		breakers = resilience.NewRegistry(resilience.DefaultCircuitBreakerConfig())
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	ex := &Executor{
		breakers: breakers,
		cfg:      cfg,
		sink:     NopSink{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

// Breakers returns the registry the executor trips.
func (ex *Executor) Breakers() *resilience.Registry {
	return ex.breakers
}

// RunStep runs op(input) as step name. A sandbox override for the item
// returns immediately. Otherwise the call goes breaker(retry(timeout(op))):
// each attempt is individually bounded, and exhausting the retries counts as
// one breaker failure. A final attempt that timed out trips the breaker at
// once. Open-breaker and timeout failures come back as a
// *resilience.DegradedServiceError after a fallback event.
func RunStep[I, O any](ctx context.Context, ex *Executor, name string, op func(context.Context, I) (O, error), input I, workflowID, itemID string) (O, error) {
	var zero O

	if p, ok := ex.Resolve(itemID, name).(SandboxOverride); ok {
		return sandboxResult[O](name, p.Result)
	}

	base := Event{WorkflowID: workflowID, StepName: name, ItemID: itemID}
	ex.emit(ctx, base, EventStart, nil)
	start := ex.now()

	breaker := ex.breakers.Get(name)
	retryCfg := ex.cfg.Retry
	retryCfg.ShouldRetry = retryable
	retryCfg.OnRetry = resilience.RetryLogger(name, workflowID)

	attempts := 0
	out, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (O, error) {
		return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (O, error) {
			attempts++
			return resilience.WithTimeout(ctx, name, ex.cfg.StepTimeout, func(ctx context.Context) (O, error) {
				return op(ctx, input)
			})
		})
	})

	base.Attempt = attempts
	base.Duration = ex.now().Sub(start)

	if err == nil {
		ex.emit(ctx, base, EventSuccess, nil)
		return out, nil
	}

	var timeout *resilience.TimeoutError
	timedOut := errors.As(err, &timeout)
	if timedOut {
		breaker.TripNow()
	}

	ex.emit(ctx, base, EventFailure, err)

	if timedOut || errors.Is(err, resilience.ErrCircuitOpen) {
		ex.emit(ctx, base, EventFallback, err)
		return zero, &resilience.DegradedServiceError{Operation: name, Cause: err}
	}
	return zero, err
}

// retryable retries every step failure except a cancelled caller and a
// StageFailure, which would fail the same way again.
func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !resilience.IsStageFailure(err)
}

func (ex *Executor) emit(ctx context.Context, base Event, typ EventType, err error) {
	ev := base
	ev.ID = uuid.NewString()
	ev.Type = typ
	ev.Timestamp = ex.now().UTC()
	if err != nil {
		ev.Error = err.Error()
		ev.Metadata = map[string]any{"error_class": resilience.ClassifyError(err)}
	}
	ex.sink.LogEvent(ctx, ev)
}

// sandboxResult converts a canned result to O. Values of another shape, such
// as maps decoded from YAML, are converted through JSON.
func sandboxResult[O any](step string, result any) (O, error) {
	var out O
	if v, ok := result.(O); ok {
		return v, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return out, &resilience.StageFailure{Stage: step, Err: eris.Wrap(err, "executor: encode sandbox result")}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &resilience.StageFailure{Stage: step, Err: eris.Wrap(err, "executor: decode sandbox result")}
	}
	return out, nil
}
