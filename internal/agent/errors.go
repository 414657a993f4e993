// internal/agent/errors.go
package agent

import "fmt"

// ErrorCode is a string type used for structured error reporting across
// the decision loop. Using a custom type ensures only predefined
// constants can appear where an ErrorCode is expected.
type ErrorCode string

const (
	// -- Planning Errors --
	ErrCodeInsufficientContext ErrorCode = "INSUFFICIENT_CONTEXT"
	ErrCodeNoSafeCandidate     ErrorCode = "NO_SAFE_CANDIDATE"
	ErrCodeUnderGeneration     ErrorCode = "UNDER_GENERATION"
	ErrCodeMalformedOracle     ErrorCode = "MALFORMED_ORACLE_RESPONSE"

	// -- Execution Errors --
	ErrCodeAmbiguousTarget   ErrorCode = "AMBIGUOUS_TARGET"
	ErrCodeElementNotFound   ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeInteractionFailed ErrorCode = "INTERACTION_FAILED"

	// -- Loop Errors --
	ErrCodeBudgetExceeded ErrorCode = "BUDGET_EXCEEDED"
)

// PlanError is a planning-layer failure carrying its taxonomy code.
// Recoverable codes get a bounded retry inside the planner; everything
// else is downgraded by the loop controller to a pause outcome.
type PlanError struct {
	Code   ErrorCode
	Reason string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// planErrorf builds a PlanError with a formatted reason.
func planErrorf(code ErrorCode, format string, args ...any) *PlanError {
	return &PlanError{Code: code, Reason: fmt.Sprintf(format, args...)}
}
