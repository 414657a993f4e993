// api/schemas/browser.go
package schemas

import "time"

// BoundingBox describes an element's position and size in CSS pixels,
// as reported by the observation layer.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementDescriptor is an immutable snapshot of one interactive element.
// It is produced by the observer and never mutated afterwards.
type ElementDescriptor struct {
	Tag         string      `json:"tag"`
	Text        string      `json:"text,omitempty"`
	ID          string      `json:"id,omitempty"`
	Name        string      `json:"name,omitempty"`
	AriaLabel   string      `json:"aria_label,omitempty"`
	Class       string      `json:"class,omitempty"`
	Type        string      `json:"type,omitempty"` // input type attribute, where applicable
	Placeholder string      `json:"placeholder,omitempty"`
	Href        string      `json:"href,omitempty"`    // links only
	Options     []string    `json:"options,omitempty"` // select dropdowns only
	Visible     bool        `json:"is_visible"`
	Enabled     bool        `json:"is_enabled"`
	Box         BoundingBox `json:"position"`
	// Selector is a stable CSS selector the observer generated for this
	// element, usable by the execution layer as a css-strategy target.
	Selector string `json:"selector"`
}

// PageState is a structured snapshot of the live page, grouped by the
// semantic role of each element. Produced fresh each iteration; consumed
// read-only by the planner and the verifier.
type PageState struct {
	URL          string              `json:"url"`
	Title        string              `json:"title"`
	Buttons      []ElementDescriptor `json:"buttons"`
	TextInputs   []ElementDescriptor `json:"text_inputs"`
	Dropdowns    []ElementDescriptor `json:"select_dropdowns"`
	Links        []ElementDescriptor `json:"links"`
	Clickables   []ElementDescriptor `json:"clickable_elements"`
	FormElements []ElementDescriptor `json:"form_elements"`
	VisibleText  string              `json:"visible_text"`
	CapturedAt   time.Time           `json:"timestamp"`
}

// InteractiveElements returns the groups the planner treats as actionable
// targets, flattened in a stable order.
func (p *PageState) InteractiveElements() []ElementDescriptor {
	out := make([]ElementDescriptor, 0,
		len(p.Buttons)+len(p.TextInputs)+len(p.Dropdowns)+len(p.Links)+len(p.Clickables))
	out = append(out, p.Buttons...)
	out = append(out, p.TextInputs...)
	out = append(out, p.Dropdowns...)
	out = append(out, p.Links...)
	out = append(out, p.Clickables...)
	return out
}

// TargetStrategy enumerates the element resolution strategies the
// execution layer understands.
type TargetStrategy string

const (
	StrategyID   TargetStrategy = "id"   // match on the element's id attribute
	StrategyCSS  TargetStrategy = "css"  // match on a CSS selector
	StrategyText TargetStrategy = "text" // exact visible-text match
	StrategyAria TargetStrategy = "aria" // match on aria-label
	StrategyRole TargetStrategy = "role" // match on ARIA role (optionally with accessible name)
)

// StrategyOrder is the canonical resolution fallback order.
var StrategyOrder = []TargetStrategy{StrategyID, StrategyCSS, StrategyText, StrategyAria, StrategyRole}

// ValidStrategy reports whether s is one of the known strategies.
func ValidStrategy(s TargetStrategy) bool {
	for _, known := range StrategyOrder {
		if s == known {
			return true
		}
	}
	return false
}

// TargetSpec locates exactly one element at execution time. It lives for
// a single step and is never persisted beyond it.
type TargetSpec struct {
	Strategy TargetStrategy `json:"strategy"`
	Value    string         `json:"value"`
	Role     string         `json:"role,omitempty"` // role strategy only
	Name     string         `json:"name,omitempty"` // accessible name, role strategy only
}

// ActionType enumerates the interactions the execution layer can perform.
type ActionType string

const (
	ActionClick    ActionType = "click"
	ActionFill     ActionType = "fill"
	ActionSelect   ActionType = "select"
	ActionNavigate ActionType = "navigate"
	ActionScroll   ActionType = "scroll"
	ActionWait     ActionType = "wait"
)

// ValidActionType reports whether t is one of the known action types.
func ValidActionType(t ActionType) bool {
	switch t {
	case ActionClick, ActionFill, ActionSelect, ActionNavigate, ActionScroll, ActionWait:
		return true
	}
	return false
}

// Signal names the execution layer knows how to poll for after an interaction.
const (
	SignalURLChanged  = "url_changed"
	SignalNetworkIdle = "network_idle"
)

// Expectation names the signals an action is expected to trigger and how
// long the execution layer should poll for them. The timeout arrives from
// the oracle as plain milliseconds.
type Expectation struct {
	Signals   []string `json:"signals"`
	TimeoutMS int      `json:"timeout_ms"`
}

// Timeout is the polling window as a duration. Zero when unset.
func (e *Expectation) Timeout() time.Duration {
	return time.Duration(e.TimeoutMS) * time.Millisecond
}

// ActionDescriptor is one concrete interaction decided by the planner and
// consumed by the execution layer. Navigate, scroll and wait actions carry
// no target; the value payload holds the fill text, select option, URL,
// scroll direction or wait duration depending on the type.
type ActionDescriptor struct {
	Type   ActionType   `json:"type"`
	Target *TargetSpec  `json:"target,omitempty"`
	Value  string       `json:"value,omitempty"`
	Expect *Expectation `json:"expect,omitempty"`
}

// NeedsTarget reports whether this action type requires a resolvable target.
func (a ActionDescriptor) NeedsTarget() bool {
	switch a.Type {
	case ActionNavigate, ActionWait, ActionScroll:
		return false
	}
	return true
}
