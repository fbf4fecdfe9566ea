// internal/agent/errors.go
package agent

// ErrorCode is a string type used for structured failure reporting from the
// episode loop. Using a custom type ensures that only predefined constants
// can be used where an ErrorCode is expected.
type ErrorCode string

const (
	// -- Observation Errors --
	ErrCodeObservationFailure ErrorCode = "OBSERVATION_FAILURE"
	// ErrCodeDegenerateScreen indicates the device reported a screen too
	// small to target, so every coordinate would be meaningless.
	ErrCodeDegenerateScreen ErrorCode = "DEGENERATE_SCREEN"

	// -- Decision Errors --
	ErrCodePlannerFailure ErrorCode = "PLANNER_FAILURE"

	// -- Admission Errors --
	// ErrCodeVetoed indicates the tracker refused the action before it
	// reached the device.
	ErrCodeVetoed ErrorCode = "ACTION_VETOED"
	// ErrCodeRepeatCeiling indicates the planner emitted the same action
	// type too many consecutive times and the episode was cut short.
	ErrCodeRepeatCeiling ErrorCode = "REPEAT_CEILING"

	// -- Execution Errors --
	ErrCodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"

	// -- Progress Errors --
	ErrCodeStalled ErrorCode = "SCREEN_STALLED"

	// -- Episode Control --
	ErrCodeStepBudget ErrorCode = "STEP_BUDGET_EXHAUSTED"
	ErrCodeAborted    ErrorCode = "ABORTED"
)
