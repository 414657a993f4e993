// File: internal/agent/prompt.go
package agent

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/tablewise/tablepilot/api/schemas"
)

// plannerSystemPrompt is the core instruction set for the reasoning
// oracle. The oracle must respond with a single JSON object listing 2-4
// scored candidate actions; everything it returns is re-validated before
// use.
const plannerSystemPrompt = `You are the planning component of 'tablepilot', an autonomous agent that navigates a restaurant reservation website on behalf of a user.
You receive the user's goal, a structured snapshot of the current page, and a summary of the steps taken so far. You must propose the next browser action.

Respond with a SINGLE JSON object and nothing else:
{
  "candidates": [
    {
      "action": {
        "type": "click" | "fill" | "select" | "navigate" | "scroll" | "wait",
        "target": {"strategy": "id" | "css" | "text" | "aria" | "role", "value": "<string>"},
        "value": "<fill text, option label, URL, scroll direction, or wait duration>",
        "expect": {"signals": ["url_changed", "network_idle"], "timeout_ms": 5000}
      },
      "scores": {"goal_progress": 0-5, "safety": 0-5, "robustness": 0-5, "success": 0-5},
      "why": "<one sentence>"
    }
  ]
}

Rules:
1. Propose between 2 and 4 candidates. Fewer than 2 is a contract violation.
2. Only target elements present in the page snapshot. Prefer the "id" strategy when the element has an id, then "css" using the element's selector.
3. Scores are independent integers from 0 to 5. goal_progress: how far this moves the reservation forward. safety: how reversible and low-risk it is. robustness: how likely the target resolves uniquely. success: how likely the interaction itself succeeds.
4. NEVER propose clicking any final confirmation control (e.g. "Complete reservation", "Book now"). The session must stop short of committing the booking.
5. NEVER propose signing in, creating an account, or entering payment details.
6. Stay on the reservation site. Do not navigate to unrelated domains.
7. "navigate" and "wait" need no target. "scroll" takes a direction ("down", "top", "bottom") as its value.`

// plannerRetryAddendum hardens the prompt for the single bounded retry
// after the oracle returned fewer than two candidates.
const plannerRetryAddendum = `

STRICT MODE: your previous response contained fewer than 2 candidates, which is invalid.
You MUST return at least 2 and at most 4 candidates this time. If the page offers only one
obviously useful action, still include a second lower-scored alternative such as a "scroll"
or "wait" action. Return only the JSON object.`

// pageSummary is the trimmed page view serialized into the user prompt.
// It drops bounding boxes and other fields the oracle has no use for.
type pageSummary struct {
	URL         string           `json:"url"`
	Title       string           `json:"title"`
	Buttons     []elementSummary `json:"buttons,omitempty"`
	TextInputs  []elementSummary `json:"text_inputs,omitempty"`
	Dropdowns   []elementSummary `json:"dropdowns,omitempty"`
	Links       []elementSummary `json:"links,omitempty"`
	Clickables  []elementSummary `json:"clickable_elements,omitempty"`
	VisibleText string           `json:"visible_text,omitempty"`
}

type elementSummary struct {
	Tag         string   `json:"tag"`
	Text        string   `json:"text,omitempty"`
	ID          string   `json:"id,omitempty"`
	AriaLabel   string   `json:"aria_label,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Href        string   `json:"href,omitempty"`
	Options     []string `json:"options,omitempty"`
	Selector    string   `json:"selector,omitempty"`
}

// historySummary is one past step as shown to the oracle: enough to avoid
// repeating failed actions without replaying whole page snapshots.
type historySummary struct {
	Index   int    `json:"step"`
	Kind    string `json:"decision"`
	Action  string `json:"action,omitempty"`
	OK      *bool  `json:"ok,omitempty"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
	URL     string `json:"url,omitempty"`
}

const historyLookback = 10

// maxVisibleTextLen bounds the page text excerpt sent to the oracle.
const maxVisibleTextLen = 2000

func summarizeElements(els []schemas.ElementDescriptor) []elementSummary {
	out := make([]elementSummary, 0, len(els))
	for _, el := range els {
		if !el.Visible {
			continue
		}
		out = append(out, elementSummary{
			Tag:         el.Tag,
			Text:        el.Text,
			ID:          el.ID,
			AriaLabel:   el.AriaLabel,
			Placeholder: el.Placeholder,
			Href:        el.Href,
			Options:     el.Options,
			Selector:    el.Selector,
		})
	}
	return out
}

func summarizePage(page schemas.PageState) pageSummary {
	text := page.VisibleText
	if len(text) > maxVisibleTextLen {
		text = text[:maxVisibleTextLen]
	}
	return pageSummary{
		URL:         page.URL,
		Title:       page.Title,
		Buttons:     summarizeElements(page.Buttons),
		TextInputs:  summarizeElements(page.TextInputs),
		Dropdowns:   summarizeElements(page.Dropdowns),
		Links:       summarizeElements(page.Links),
		Clickables:  summarizeElements(page.Clickables),
		VisibleText: text,
	}
}

func summarizeAction(a schemas.ActionDescriptor) string {
	var b strings.Builder
	b.WriteString(string(a.Type))
	if a.Target != nil {
		fmt.Fprintf(&b, " %s=%q", a.Target.Strategy, a.Target.Value)
	}
	if a.Value != "" {
		fmt.Fprintf(&b, " value=%q", a.Value)
	}
	return b.String()
}

func summarizeHistory(memory *schemas.Memory) []historySummary {
	if memory == nil {
		return nil
	}
	recent := memory.Recent(historyLookback)
	out := make([]historySummary, 0, len(recent))
	for _, rec := range recent {
		h := historySummary{
			Index:   rec.Index,
			Kind:    string(rec.Decision.Kind),
			Outcome: string(rec.Outcome.Status),
			Reason:  rec.Outcome.Reason,
			URL:     rec.Outcome.CurrentURL,
		}
		if rec.Decision.Chosen != nil {
			h.Action = summarizeAction(rec.Decision.Chosen.Action)
		}
		if rec.Execution != nil {
			ok := rec.Execution.OK
			h.OK = &ok
		}
		out = append(out, h)
	}
	return out
}

// buildUserPrompt assembles the goal, the current page snapshot and the
// recent history into the oracle's user message.
func buildUserPrompt(goal string, page schemas.PageState, memory *schemas.Memory) (string, error) {
	pageJSON, err := json.MarshalIndent(summarizePage(page), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize page snapshot: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "GOAL:\n%s\n\n", goal)
	fmt.Fprintf(&b, "CURRENT PAGE:\n%s\n\n", pageJSON)

	if history := summarizeHistory(memory); len(history) > 0 {
		histJSON, err := json.MarshalIndent(history, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to serialize history: %w", err)
		}
		fmt.Fprintf(&b, "RECENT STEPS (oldest first):\n%s\n\n", histJSON)
	}

	b.WriteString("Propose the next action candidates as the single JSON object described in your instructions.")
	return b.String(), nil
}
