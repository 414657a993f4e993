// File: internal/agent/verifier.go
package agent

import (
	"fmt"
	"strings"

	"github.com/tablewise/tablepilot/api/schemas"
	"github.com/tablewise/tablepilot/internal/config"
)

// OutcomeVerifier classifies one completed step from the execution
// result and a fresh page snapshot. It is a pure function of its inputs:
// no hidden state, identical inputs always yield identical outcomes.
//
// Classification order is fixed: execution failure, then blocked
// indicators, then end-state indicators, then continue. A page showing
// both an error banner and a final confirmation button is classified as
// blocked; the error wins over apparent progress.
type OutcomeVerifier struct {
	blockedPatterns []string
	finalizePhrases []string
}

var _ Verifier = (*OutcomeVerifier)(nil)

func NewOutcomeVerifier(cfg config.AgentConfig) *OutcomeVerifier {
	return &OutcomeVerifier{
		blockedPatterns: lowerAll(cfg.BlockedPatterns),
		finalizePhrases: lowerAll(cfg.FinalizePhrases),
	}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// Verify produces exactly one StepOutcome.
func (v *OutcomeVerifier) Verify(result schemas.ExecutionResult, page schemas.PageState) schemas.StepOutcome {
	if !result.OK {
		return schemas.StepOutcome{
			Status:           schemas.StepPause,
			Reason:           result.Error,
			ShouldContinue:   false,
			CurrentURL:       page.URL,
			EndStateDetected: false,
			Details:          map[string]any{"failed_action": string(result.Action.Type)},
		}
	}

	if pattern, found := v.findBlockedIndicator(page); found {
		return schemas.StepOutcome{
			Status:           schemas.StepPause,
			Reason:           fmt.Sprintf("Page shows a blocked or error state: %q", pattern),
			ShouldContinue:   false,
			CurrentURL:       page.URL,
			EndStateDetected: false,
			Details:          map[string]any{"blocked_indicator": pattern},
		}
	}

	if control, found := v.findEndStateControl(page); found {
		return schemas.StepOutcome{
			Status:           schemas.StepFinish,
			Reason:           fmt.Sprintf("Final confirmation control %q reached; booking is ready", control),
			ShouldContinue:   false,
			CurrentURL:       page.URL,
			EndStateDetected: true,
			Details: map[string]any{
				"matched_control": control,
				"booking_ready":   true,
			},
		}
	}

	return schemas.StepOutcome{
		Status:           schemas.StepContinue,
		Reason:           "Step completed, no end state detected",
		ShouldContinue:   true,
		CurrentURL:       page.URL,
		EndStateDetected: false,
		Details: map[string]any{
			"url_changed":  result.PreURL != "" && result.PreURL != result.PostURL,
			"signals_seen": result.SignalsSeen,
		},
	}
}

// findBlockedIndicator scans the page title and visible text for the
// configured error patterns.
func (v *OutcomeVerifier) findBlockedIndicator(page schemas.PageState) (string, bool) {
	haystack := strings.ToLower(page.Title + "\n" + page.VisibleText)
	for _, pattern := range v.blockedPatterns {
		if strings.Contains(haystack, pattern) {
			return pattern, true
		}
	}
	return "", false
}

// findEndStateControl scans the visible interactive elements for a final
// confirmation control.
func (v *OutcomeVerifier) findEndStateControl(page schemas.PageState) (string, bool) {
	for _, el := range page.InteractiveElements() {
		if !el.Visible {
			continue
		}
		lowered := strings.ToLower(el.Text)
		for _, phrase := range v.finalizePhrases {
			if strings.Contains(lowered, phrase) {
				return el.Text, true
			}
		}
	}
	return "", false
}
