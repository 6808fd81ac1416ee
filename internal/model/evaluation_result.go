package model

// State describes the assessed condition of a resource relative to its
// desired configuration.
type State string

const (
	// StateSatisfied means the resource already matches the desired state.
	StateSatisfied State = "satisfied"
	// StateMissing means the resource does not exist yet.
	StateMissing State = "missing"
	// StateDrifted means the resource exists but differs from the desired state.
	StateDrifted State = "drifted"
	// StateBlocked means the current state could not be determined.
	StateBlocked State = "blocked"
	// StateUnknown is the zero value for unassessed resources.
	StateUnknown State = "unknown"
)

// EvaluationResult contains the result of evaluating a step's current state
// against its desired state. It is returned by Plugin.Evaluate() and passed
// to Plugin.Apply() when action is required.
type EvaluationResult struct {
	// StepID is the unique identifier of the evaluated step.
	StepID string

	// CurrentState is the assessed condition of the resource.
	CurrentState State

	// RequiresAction indicates whether Apply() should be called.
	RequiresAction bool

	// Message is a human-readable description of the state assessment.
	Message string

	// Diff optionally describes what would change; populated when
	// RequiresAction is true so dry-run output stays informative.
	Diff string

	// InternalData is opaque data passed from Evaluate() to Apply() to
	// avoid recomputation.
	InternalData any
}
