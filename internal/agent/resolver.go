// File: internal/agent/resolver.go
package agent

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tablewise/tablepilot/api/schemas"
)

// defaultExpectTimeout bounds signal polling when the action carries no
// expectation block of its own.
const defaultExpectTimeout = 5 * time.Second

// signalPollInterval is how often the URL is re-read while waiting for
// the url_changed signal.
const signalPollInterval = 250 * time.Millisecond

// ActionResolver performs one atomic browser interaction per call. It
// makes no decisions: the target is located through the ordered strategy
// chain, the interaction is performed, and the expected signals are
// polled. Every failure mode is captured inside the ExecutionResult;
// nothing escapes this boundary as an error.
type ActionResolver struct {
	env    Environment
	logger *zap.Logger
}

var _ Resolver = (*ActionResolver)(nil)

func NewActionResolver(logger *zap.Logger, env Environment) *ActionResolver {
	return &ActionResolver{
		env:    env,
		logger: logger.Named("resolver"),
	}
}

// Execute runs a single action end to end. The returned result always
// carries the attempted action, the pre/post URLs as far as they could
// be read, the signals observed so far, and a best-effort screenshot.
func (r *ActionResolver) Execute(ctx context.Context, action schemas.ActionDescriptor) schemas.ExecutionResult {
	result := schemas.ExecutionResult{
		Action:      action,
		SignalsSeen: []string{},
	}
	if preURL, err := r.env.CurrentURL(ctx); err == nil {
		result.PreURL = preURL
	}

	if err := r.perform(ctx, action); err != nil {
		result.Error = err.Error()
		r.finish(ctx, &result)
		r.logger.Warn("Action failed",
			zap.String("action", summarizeAction(action)),
			zap.String("error", result.Error))
		return result
	}

	r.awaitSignals(ctx, action, &result)
	result.OK = true
	r.finish(ctx, &result)
	r.logger.Info("Action executed",
		zap.String("action", summarizeAction(action)),
		zap.Strings("signals", result.SignalsSeen))
	return result
}

// finish fills in the post-action URL and the best-effort screenshot.
// Screenshot failure never flips the success flag.
func (r *ActionResolver) finish(ctx context.Context, result *schemas.ExecutionResult) {
	if postURL, err := r.env.CurrentURL(ctx); err == nil {
		result.PostURL = postURL
	}
	shot, err := r.env.Screenshot(ctx)
	if err != nil {
		r.logger.Debug("Screenshot capture failed", zap.Error(err))
		return
	}
	result.Screenshot = shot
}

// perform dispatches the interaction itself. Targetless actions go
// straight to the environment; everything else resolves a single element
// first.
func (r *ActionResolver) perform(ctx context.Context, action schemas.ActionDescriptor) error {
	switch action.Type {
	case schemas.ActionNavigate:
		return r.env.Navigate(ctx, action.Value)
	case schemas.ActionScroll:
		return r.env.Scroll(ctx, action.Value)
	case schemas.ActionWait:
		return r.wait(ctx, action.Value)
	}

	if action.Target == nil {
		return fmt.Errorf("%s: action %q requires a target", ErrCodeInteractionFailed, action.Type)
	}
	el, err := r.resolve(ctx, *action.Target)
	if err != nil {
		return err
	}

	switch action.Type {
	case schemas.ActionClick:
		err = el.Click(ctx)
	case schemas.ActionFill:
		err = el.Fill(ctx, action.Value)
	case schemas.ActionSelect:
		err = el.SelectOption(ctx, action.Value)
	default:
		return fmt.Errorf("%s: unsupported action type %q", ErrCodeInteractionFailed, action.Type)
	}
	if err != nil {
		return fmt.Errorf("%s: %s on %s: %v", ErrCodeInteractionFailed, action.Type, el.Describe(), err)
	}
	return nil
}

// resolve walks the strategy chain starting at the declared strategy and
// continuing through the canonical order. The first strategy that yields
// exactly one visible, enabled element wins. More than one candidate
// under a single strategy is ambiguous and fails immediately rather than
// guessing; zero matches across every strategy is a not-found failure.
func (r *ActionResolver) resolve(ctx context.Context, spec schemas.TargetSpec) (Element, error) {
	for _, strategy := range resolutionChain(spec.Strategy) {
		attempt := spec
		attempt.Strategy = strategy
		matches, err := r.env.Query(ctx, attempt)
		if err != nil {
			r.logger.Debug("Strategy query failed",
				zap.String("strategy", string(strategy)),
				zap.Error(err))
			continue
		}

		usable := make([]Element, 0, len(matches))
		for _, m := range matches {
			if m.Visible() && m.Enabled() {
				usable = append(usable, m)
			}
		}
		switch len(usable) {
		case 0:
			continue
		case 1:
			return usable[0], nil
		default:
			return nil, fmt.Errorf("%s: strategy %q matched %d elements for %q",
				ErrCodeAmbiguousTarget, strategy, len(usable), spec.Value)
		}
	}
	return nil, fmt.Errorf("Element not found: %s", spec.Value)
}

// resolutionChain starts at the declared strategy and appends the rest
// of the canonical order, deduplicated.
func resolutionChain(first schemas.TargetStrategy) []schemas.TargetStrategy {
	chain := make([]schemas.TargetStrategy, 0, len(schemas.StrategyOrder))
	chain = append(chain, first)
	for _, s := range schemas.StrategyOrder {
		if s != first {
			chain = append(chain, s)
		}
	}
	return chain
}

// wait pauses for the duration in the action's value. The value is
// seconds, either bare ("2") or a Go duration string ("1500ms").
func (r *ActionResolver) wait(ctx context.Context, value string) error {
	d := time.Second
	if value != "" {
		if secs, err := strconv.ParseFloat(value, 64); err == nil {
			d = time.Duration(secs * float64(time.Second))
		} else if parsed, err := time.ParseDuration(value); err == nil {
			d = parsed
		} else {
			return fmt.Errorf("%s: invalid wait duration %q", ErrCodeInteractionFailed, value)
		}
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// awaitSignals polls for the signals named in the expectation block up
// to its timeout. Absent signals are simply not recorded; they never
// fail the action.
func (r *ActionResolver) awaitSignals(ctx context.Context, action schemas.ActionDescriptor, result *schemas.ExecutionResult) {
	if action.Expect == nil || len(action.Expect.Signals) == 0 {
		return
	}
	timeout := action.Expect.Timeout()
	if timeout <= 0 {
		timeout = defaultExpectTimeout
	}
	deadline := time.Now().Add(timeout)

	for _, signal := range action.Expect.Signals {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		switch signal {
		case schemas.SignalURLChanged:
			if r.pollURLChanged(ctx, result.PreURL, remaining) {
				result.SignalsSeen = append(result.SignalsSeen, schemas.SignalURLChanged)
			}
		case schemas.SignalNetworkIdle:
			if r.env.AwaitNetworkIdle(ctx, remaining) {
				result.SignalsSeen = append(result.SignalsSeen, schemas.SignalNetworkIdle)
			}
		default:
			r.logger.Debug("Unknown expected signal ignored", zap.String("signal", signal))
		}
	}
}

// pollURLChanged re-reads the location until it differs from preURL or
// the window closes.
func (r *ActionResolver) pollURLChanged(ctx context.Context, preURL string, window time.Duration) bool {
	deadline := time.Now().Add(window)
	for {
		if current, err := r.env.CurrentURL(ctx); err == nil && current != preURL {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-time.After(signalPollInterval):
		case <-ctx.Done():
			return false
		}
	}
}
