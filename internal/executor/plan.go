package executor

// Plan says how a step will be satisfied: by running it or by a canned result.
type Plan interface {
	plan()
}

// RealExecution runs the step through timeout, retry and the breaker.
type RealExecution struct{}

// SandboxOverride returns Result without running the step.
type SandboxOverride struct {
	Result any
}

func (RealExecution) plan()   {}
func (SandboxOverride) plan() {}

// Overrides looks up a canned result for an item's step.
type Overrides interface {
	Lookup(itemID, step string) (any, bool)
}

// Resolve decides the plan for one step. Without overrides configured it is
// always RealExecution.
func (ex *Executor) Resolve(itemID, step string) Plan {
	if ex.overrides == nil || itemID == "" {
		return RealExecution{}
	}
	if result, ok := ex.overrides.Lookup(itemID, step); ok {
		return SandboxOverride{Result: result}
	}
	return RealExecution{}
}
