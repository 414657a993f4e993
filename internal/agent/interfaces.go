// File: internal/agent/interfaces.go
package agent

import (
	"context"
	"time"

	"github.com/tablewise/tablepilot/api/schemas"
)

// Observer produces a fresh PageState snapshot of the live page. It must
// not mutate the page.
type Observer interface {
	Observe(ctx context.Context) (schemas.PageState, error)
}

// Element is one interactive element located by the environment. The
// resolver only ever interacts with elements through this capability.
type Element interface {
	Visible() bool
	Enabled() bool
	Click(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	SelectOption(ctx context.Context, value string) error
	Describe() string
}

// Environment is the abstract queryable browser capability the resolver
// executes against. It keeps the resolver ignorant of how elements are
// actually located or driven.
type Environment interface {
	// CurrentURL reports the page's current location.
	CurrentURL(ctx context.Context) (string, error)
	// Query returns every element matching the spec under its declared
	// strategy, visible or not. The resolver applies the
	// exactly-one-visible-enabled rule itself.
	Query(ctx context.Context, spec schemas.TargetSpec) ([]Element, error)
	// Navigate loads a URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// Scroll moves the viewport ("top", "bottom", or one page down).
	Scroll(ctx context.Context, target string) error
	// AwaitNetworkIdle polls for network quiescence up to the timeout and
	// reports whether it was observed.
	AwaitNetworkIdle(ctx context.Context, timeout time.Duration) bool
	// Screenshot captures the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Planner decides the next step from the goal, the fresh page snapshot
// and the session history.
type Planner interface {
	Plan(ctx context.Context, goal string, page schemas.PageState, memory *schemas.Memory) (schemas.Decision, error)
}

// Resolver performs one atomic interaction. It never returns an error:
// every failure mode is represented inside the ExecutionResult.
type Resolver interface {
	Execute(ctx context.Context, action schemas.ActionDescriptor) schemas.ExecutionResult
}

// Verifier classifies a completed step. Implementations must be pure:
// identical inputs yield identical outcomes.
type Verifier interface {
	Verify(result schemas.ExecutionResult, page schemas.PageState) schemas.StepOutcome
}

// Recorder receives every completed step for persistence. The loop calls
// it but does not depend on its success.
type Recorder interface {
	RecordStep(ctx context.Context, rec schemas.StepRecord) error
}
