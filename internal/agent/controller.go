// File: internal/agent/controller.go
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tablewise/tablepilot/api/schemas"
	"github.com/tablewise/tablepilot/internal/config"
)

// LoopState names the controller's position in the decision cycle.
type LoopState string

const (
	StateIdle      LoopState = "idle"
	StateObserving LoopState = "observing"
	StatePlanning  LoopState = "planning"
	StateExecuting LoopState = "executing"
	StateVerifying LoopState = "verifying"
	StateHalted    LoopState = "halted"
)

// HaltCause names the terminal condition a session ended in.
type HaltCause string

const (
	HaltFinish         HaltCause = "finish"
	HaltStop           HaltCause = "stop"
	HaltAsk            HaltCause = "ask"
	HaltPause          HaltCause = "pause"
	HaltBudgetExceeded HaltCause = "budget_exceeded"
	HaltCancelled      HaltCause = "cancelled"
)

// SessionResult is what the caller receives when the loop halts. Every
// halt carries a human-readable reason; no failure is silent.
type SessionResult struct {
	Cause      HaltCause            `json:"cause"`
	Reason     string               `json:"reason"`
	Iterations int                  `json:"iterations"`
	FinalURL   string               `json:"final_url,omitempty"`
	Question   *schemas.Question    `json:"question,omitempty"`
	Stop       *schemas.StopState   `json:"stop_state,omitempty"`
	History    []schemas.StepRecord `json:"-"`
}

// LoopController owns the iteration budget and the session memory and
// sequences Observe, Plan, Execute, Verify until a terminal state. It is
// single-threaded and cooperative: one iteration at a time, cancellation
// honored at iteration boundaries.
type LoopController struct {
	cfg      config.AgentConfig
	logger   *zap.Logger
	observer Observer
	planner  Planner
	resolver Resolver
	verifier Verifier
	recorder Recorder

	memory schemas.Memory
	state  LoopState
}

func NewLoopController(
	logger *zap.Logger,
	cfg config.AgentConfig,
	observer Observer,
	planner Planner,
	resolver Resolver,
	verifier Verifier,
	recorder Recorder,
) *LoopController {
	return &LoopController{
		cfg:      cfg,
		logger:   logger.Named("loop"),
		observer: observer,
		planner:  planner,
		resolver: resolver,
		verifier: verifier,
		recorder: recorder,
		state:    StateIdle,
	}
}

// History returns a copy of the session memory for audit.
func (c *LoopController) History() []schemas.StepRecord {
	return c.memory.Records()
}

func (c *LoopController) setState(next LoopState) {
	if c.state != next {
		c.logger.Debug("State transition",
			zap.String("from", string(c.state)),
			zap.String("to", string(next)))
		c.state = next
	}
}

// Run drives one session from Idle to a Halted terminal state. The
// returned error is non-nil only for caller-level conditions
// (cancellation); every in-loop failure is folded into the result.
func (c *LoopController) Run(ctx context.Context, goal string) (*SessionResult, error) {
	c.logger.Info("Session starting",
		zap.String("goal", goal),
		zap.Int("max_iterations", c.cfg.MaxIterations))

	for {
		if c.memory.Len() >= c.cfg.MaxIterations {
			return c.halt(HaltBudgetExceeded, fmt.Sprintf(
				"%s: iteration budget of %d exhausted without reaching an end state",
				ErrCodeBudgetExceeded, c.cfg.MaxIterations)), nil
		}
		if err := ctx.Err(); err != nil {
			c.halt(HaltCancelled, "session cancelled between iterations")
			return nil, err
		}

		halted, result := c.iterate(ctx, goal)
		if halted {
			return result, nil
		}
	}
}

// iterate runs one full Observe-Plan-Execute-Verify cycle. It returns
// (true, result) when the session reached a terminal state.
func (c *LoopController) iterate(ctx context.Context, goal string) (bool, *SessionResult) {
	iteration := c.memory.Len()

	// -- Observe --
	c.setState(StateObserving)
	page, err := c.observer.Observe(ctx)
	if err != nil {
		c.logger.Error("Observation failed", zap.Error(err))
		return true, c.halt(HaltPause, fmt.Sprintf("failed to observe page state: %v", err))
	}
	c.logger.Info("Page observed",
		zap.Int("iteration", iteration),
		zap.String("url", page.URL),
		zap.String("title", page.Title))

	// -- Plan --
	c.setState(StatePlanning)
	decision, err := c.planner.Plan(ctx, goal, page, &c.memory)
	if err != nil {
		c.logger.Warn("Planning failed", zap.Error(err))
		outcome := pauseOutcome(err.Error(), page.URL)
		c.commit(ctx, page, schemas.Decision{Kind: schemas.DecisionStop, Reason: err.Error(),
			Stop: &schemas.StopState{Status: schemas.StopBlocked}}, nil, outcome)
		return true, c.halt(HaltPause, err.Error())
	}

	switch decision.Kind {
	case schemas.DecisionAsk:
		outcome := pauseOutcome("waiting for the user to supply missing information", page.URL)
		c.commit(ctx, page, decision, nil, outcome)
		result := c.halt(HaltAsk, decision.Question.Text)
		result.Question = decision.Question
		return true, result

	case schemas.DecisionStop:
		outcome := schemas.StepOutcome{
			Status:           schemas.StepFinish,
			Reason:           decision.Reason,
			ShouldContinue:   false,
			CurrentURL:       page.URL,
			EndStateDetected: decision.Stop != nil && decision.Stop.Status == schemas.StopReadyToBook,
			Details:          map[string]any{"stop": true},
		}
		c.commit(ctx, page, decision, nil, outcome)
		result := c.halt(HaltStop, decision.Reason)
		result.Stop = decision.Stop
		result.FinalURL = page.URL
		return true, result
	}

	// -- Execute --
	c.setState(StateExecuting)
	execResult := c.resolver.Execute(ctx, decision.Chosen.Action)

	// -- Verify --
	c.setState(StateVerifying)
	postPage, err := c.observer.Observe(ctx)
	if err != nil {
		c.logger.Warn("Re-observation failed, verifying against a minimal snapshot", zap.Error(err))
		postPage = schemas.PageState{URL: execResult.PostURL, CapturedAt: time.Now().UTC()}
	}
	outcome := c.verifier.Verify(execResult, postPage)
	c.commit(ctx, page, decision, &execResult, outcome)
	c.logger.Info("Step verified",
		zap.Int("iteration", iteration),
		zap.String("status", string(outcome.Status)),
		zap.String("reason", outcome.Reason))

	switch outcome.Status {
	case schemas.StepFinish:
		result := c.halt(HaltFinish, outcome.Reason)
		result.FinalURL = outcome.CurrentURL
		return true, result
	case schemas.StepPause:
		result := c.halt(HaltPause, outcome.Reason)
		result.FinalURL = outcome.CurrentURL
		return true, result
	}
	return false, nil
}

// commit appends exactly one record to memory and hands it to the
// recorder. Recorder failures are logged and ignored; persistence never
// aborts the loop.
func (c *LoopController) commit(ctx context.Context, page schemas.PageState, decision schemas.Decision, exec *schemas.ExecutionResult, outcome schemas.StepOutcome) {
	rec := schemas.StepRecord{
		Index:     c.memory.Len(),
		Page:      page,
		Decision:  decision,
		Execution: exec,
		Outcome:   outcome,
		Timestamp: time.Now().UTC(),
	}
	c.memory.Append(rec)
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordStep(ctx, rec); err != nil {
		c.logger.Warn("Failed to persist step record",
			zap.Int("index", rec.Index),
			zap.Error(err))
	}
}

func (c *LoopController) halt(cause HaltCause, reason string) *SessionResult {
	c.setState(StateHalted)
	c.logger.Info("Session halted",
		zap.String("cause", string(cause)),
		zap.String("reason", reason),
		zap.Int("iterations", c.memory.Len()))
	return &SessionResult{
		Cause:      cause,
		Reason:     reason,
		Iterations: c.memory.Len(),
		History:    c.memory.Records(),
	}
}

func pauseOutcome(reason, url string) schemas.StepOutcome {
	return schemas.StepOutcome{
		Status:         schemas.StepPause,
		Reason:         reason,
		ShouldContinue: false,
		CurrentURL:     url,
		Details:        map[string]any{},
	}
}
