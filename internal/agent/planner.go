// File: internal/agent/planner.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/tablewise/tablepilot/api/schemas"
	"github.com/tablewise/tablepilot/internal/config"
)

// CandidatePlanner turns (goal, page, history) into a Decision by asking
// the reasoning oracle for scored candidate actions and applying the
// safety rails locally: finalize detection, required-slot checks, the
// domain allow-list and the forbidden-phrase filter. The oracle is
// treated as untrusted; everything it returns is validated here.
type CandidatePlanner struct {
	cfg    config.AgentConfig
	logger *zap.Logger
	llm    schemas.LLMClient
	slots  []compiledSlot
}

type compiledSlot struct {
	name     string
	patterns []*regexp.Regexp
}

// Statically assert that CandidatePlanner implements the Planner interface.
var _ Planner = (*CandidatePlanner)(nil)

// NewCandidatePlanner compiles the required-slot patterns up front so a
// bad pattern surfaces at construction rather than mid-session.
func NewCandidatePlanner(logger *zap.Logger, llm schemas.LLMClient, cfg config.AgentConfig) (*CandidatePlanner, error) {
	p := &CandidatePlanner{
		cfg:    cfg,
		logger: logger.Named("planner"),
		llm:    llm,
	}
	for _, slot := range cfg.RequiredSlots {
		cs := compiledSlot{name: slot.Name}
		for _, pat := range slot.Patterns {
			re, err := regexp.Compile(pat)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q for slot %q: %w", pat, slot.Name, err)
			}
			cs.patterns = append(cs.patterns, re)
		}
		p.slots = append(p.slots, cs)
	}
	return p, nil
}

// Plan produces exactly one Decision. Finalize detection and the
// required-slot check run before the oracle is consulted, so the
// forbidden final action is never even proposed and an under-specified
// goal costs no oracle call.
func (p *CandidatePlanner) Plan(ctx context.Context, goal string, page schemas.PageState, memory *schemas.Memory) (schemas.Decision, error) {
	if control, found := p.findFinalizeControl(page); found {
		p.logger.Info("Final confirmation control detected, stopping short of booking",
			zap.String("control", control),
			zap.String("url", page.URL))
		return schemas.Decision{
			Kind:   schemas.DecisionStop,
			Reason: fmt.Sprintf("Final confirmation control %q is present; stopping before the irreversible step", control),
			Stop: &schemas.StopState{
				Status: schemas.StopReadyToBook,
				Summary: map[string]any{
					"url":              page.URL,
					"title":            page.Title,
					"finalize_control": control,
				},
			},
		}, nil
	}

	if missing := p.missingSlots(goal); len(missing) > 0 {
		p.logger.Info("Goal is missing required details, asking the user",
			zap.Strings("missing", missing))
		return schemas.Decision{
			Kind:   schemas.DecisionAsk,
			Reason: string(ErrCodeInsufficientContext),
			Question: &schemas.Question{
				Text:         fmt.Sprintf("I need more details before I can continue: %s. Please restate the goal with this information.", strings.Join(missing, ", ")),
				FieldsNeeded: missing,
			},
		}, nil
	}

	candidates, err := p.generateCandidates(ctx, goal, page, memory, false)
	var planErr *PlanError
	if errors.As(err, &planErr) && planErr.Code == ErrCodeUnderGeneration {
		p.logger.Warn("Oracle returned fewer than 2 candidates, retrying once with a stricter prompt",
			zap.String("reason", planErr.Reason))
		candidates, err = p.generateCandidates(ctx, goal, page, memory, true)
	}
	if err != nil {
		return schemas.Decision{}, err
	}

	safe := p.filterCandidates(candidates, page)
	if len(safe) == 0 {
		return schemas.Decision{}, planErrorf(ErrCodeNoSafeCandidate,
			"all %d candidates were discarded by the safety filters", len(candidates))
	}

	chosen := selectCandidate(safe)
	p.logger.Info("Action selected",
		zap.String("action", summarizeAction(chosen.Action)),
		zap.Int("total_score", chosen.Scores.Total()),
		zap.Int("candidates", len(safe)))
	return schemas.Decision{
		Kind:   schemas.DecisionAct,
		Reason: chosen.Why,
		Chosen: &chosen,
	}, nil
}

// findFinalizeControl scans the visible interactive elements for any of
// the configured final-confirmation phrases.
func (p *CandidatePlanner) findFinalizeControl(page schemas.PageState) (string, bool) {
	for _, el := range page.InteractiveElements() {
		if !el.Visible {
			continue
		}
		for _, phrase := range p.cfg.FinalizePhrases {
			if strings.Contains(strings.ToLower(el.Text), strings.ToLower(phrase)) {
				return el.Text, true
			}
		}
	}
	return "", false
}

// missingSlots returns the required slots not resolvable from the goal
// text. The controller restarts with an augmented goal after an ask, so
// the goal string is the single source for slot values.
func (p *CandidatePlanner) missingSlots(goal string) []string {
	var missing []string
	for _, slot := range p.slots {
		found := false
		for _, re := range slot.patterns {
			if re.MatchString(goal) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, slot.name)
		}
	}
	return missing
}

// oracleResponse is the shape the oracle is instructed to return.
type oracleResponse struct {
	Candidates []schemas.Candidate `json:"candidates"`
}

func (p *CandidatePlanner) generateCandidates(ctx context.Context, goal string, page schemas.PageState, memory *schemas.Memory, strict bool) ([]schemas.Candidate, error) {
	userPrompt, err := buildUserPrompt(goal, page, memory)
	if err != nil {
		return nil, planErrorf(ErrCodeMalformedOracle, "failed to build prompt: %v", err)
	}

	systemPrompt := plannerSystemPrompt
	if strict {
		systemPrompt += plannerRetryAddendum
	}

	apiCtx := ctx
	if p.cfg.PlanTimeout > 0 {
		var cancel context.CancelFunc
		apiCtx, cancel = context.WithTimeout(ctx, p.cfg.PlanTimeout)
		defer cancel()
	}

	response, err := p.llm.Generate(apiCtx, schemas.GenerationRequest{
		SystemPrompt:    systemPrompt,
		UserPrompt:      userPrompt,
		ForceJSONFormat: true,
		Temperature:     p.cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, planErrorf(ErrCodeMalformedOracle, "oracle call failed: %v", err)
	}

	candidates, err := parseOracleResponse(response)
	if err != nil {
		return nil, err
	}
	if len(candidates) < 2 {
		return nil, planErrorf(ErrCodeUnderGeneration, "oracle returned %d candidate(s), need at least 2", len(candidates))
	}
	if len(candidates) > 4 {
		candidates = candidates[:4]
	}
	for i, c := range candidates {
		if err := validateCandidate(c); err != nil {
			return nil, planErrorf(ErrCodeMalformedOracle, "candidate %d is invalid: %v", i, err)
		}
	}
	return candidates, nil
}

var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

// parseOracleResponse extracts the JSON object from the oracle's reply,
// tolerating markdown code fences and surrounding prose.
func parseOracleResponse(response string) ([]schemas.Candidate, error) {
	response = strings.TrimSpace(response)
	var jsonStringToParse string

	matches := jsonBlockRegex.FindStringSubmatch(response)
	if len(matches) > 1 {
		jsonStringToParse = strings.TrimSpace(matches[1])
	} else {
		firstBracket := strings.Index(response, "{")
		lastBracket := strings.LastIndex(response, "}")
		if firstBracket != -1 && lastBracket != -1 && lastBracket > firstBracket {
			jsonStringToParse = response[firstBracket : lastBracket+1]
		} else {
			jsonStringToParse = response
		}
	}

	if jsonStringToParse == "" {
		return nil, planErrorf(ErrCodeMalformedOracle, "could not find any JSON in the oracle response")
	}

	var parsed oracleResponse
	if err := json.Unmarshal([]byte(jsonStringToParse), &parsed); err != nil {
		return nil, planErrorf(ErrCodeMalformedOracle, "failed to unmarshal extracted JSON: %v", err)
	}
	return parsed.Candidates, nil
}

// validateCandidate enforces the structural contract on a single oracle
// candidate: known action type, known strategy, target present when the
// action needs one, and every score in range.
func validateCandidate(c schemas.Candidate) error {
	if !schemas.ValidActionType(c.Action.Type) {
		return fmt.Errorf("unknown action type %q", c.Action.Type)
	}
	if c.Action.NeedsTarget() {
		if c.Action.Target == nil {
			return fmt.Errorf("action %q requires a target", c.Action.Type)
		}
		if !schemas.ValidStrategy(c.Action.Target.Strategy) {
			return fmt.Errorf("unknown target strategy %q", c.Action.Target.Strategy)
		}
		if c.Action.Target.Value == "" {
			return fmt.Errorf("target value must not be empty")
		}
	}
	if c.Action.Type == schemas.ActionNavigate && c.Action.Value == "" {
		return fmt.Errorf("navigate action requires a URL value")
	}
	if !c.Scores.InRange() {
		return fmt.Errorf("scores out of range: %+v", c.Scores)
	}
	return nil
}

// filterCandidates applies the hard safety filters before any scoring
// comparison. A discarded candidate never competes, no matter its score.
func (p *CandidatePlanner) filterCandidates(candidates []schemas.Candidate, page schemas.PageState) []schemas.Candidate {
	safe := make([]schemas.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if reason := p.rejectCandidate(c, page); reason != "" {
			p.logger.Warn("Candidate discarded by safety filter",
				zap.String("action", summarizeAction(c.Action)),
				zap.String("reason", reason))
			continue
		}
		safe = append(safe, c)
	}
	return safe
}

// rejectCandidate returns a non-empty reason when the candidate violates
// a hard constraint: leaving the domain allow-list, targeting a
// forbidden control, or targeting a final confirmation control.
func (p *CandidatePlanner) rejectCandidate(c schemas.Candidate, page schemas.PageState) string {
	if c.Action.Type == schemas.ActionNavigate {
		if !p.hostAllowed(c.Action.Value) {
			return fmt.Sprintf("navigation target %q is outside the allowed domains", c.Action.Value)
		}
	}
	if c.Action.Target == nil {
		return ""
	}

	lowered := strings.ToLower(c.Action.Target.Value)
	for _, phrase := range p.cfg.FinalizePhrases {
		if strings.Contains(lowered, strings.ToLower(phrase)) {
			return fmt.Sprintf("target matches finalize phrase %q", phrase)
		}
	}
	for _, phrase := range p.cfg.ForbiddenPhrases {
		if strings.Contains(lowered, strings.ToLower(phrase)) {
			return fmt.Sprintf("target matches forbidden phrase %q", phrase)
		}
	}

	// A click on a link whose destination leaves the allow-list is as
	// unsafe as an explicit navigation there.
	if c.Action.Type == schemas.ActionClick {
		if href, ok := linkDestination(page, *c.Action.Target); ok && !p.hostAllowed(href) {
			return fmt.Sprintf("link destination %q is outside the allowed domains", href)
		}
	}
	return ""
}

// linkDestination resolves the candidate's target against the snapshot's
// links and reports the matched link's absolute href, if any.
func linkDestination(page schemas.PageState, spec schemas.TargetSpec) (string, bool) {
	for _, link := range page.Links {
		if link.Href == "" || !strings.Contains(link.Href, "://") {
			continue
		}
		switch spec.Strategy {
		case schemas.StrategyID:
			if link.ID == spec.Value {
				return link.Href, true
			}
		case schemas.StrategyCSS:
			if link.Selector == spec.Value {
				return link.Href, true
			}
		case schemas.StrategyText:
			if strings.TrimSpace(link.Text) == spec.Value {
				return link.Href, true
			}
		case schemas.StrategyAria:
			if link.AriaLabel == spec.Value {
				return link.Href, true
			}
		}
	}
	return "", false
}

// hostAllowed reports whether the URL's host is on, or a subdomain of, a
// host in the allow-list.
func (p *CandidatePlanner) hostAllowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		// Relative URLs stay on the current site.
		return !strings.Contains(raw, "://")
	}
	for _, allowed := range p.cfg.AllowedHosts {
		allowed = strings.ToLower(strings.TrimPrefix(allowed, "www."))
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// selectCandidate picks the winner deterministically: highest total,
// then highest safety, then earliest generation order.
func selectCandidate(candidates []schemas.Candidate) schemas.Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case c.Scores.Total() > best.Scores.Total():
			best = c
		case c.Scores.Total() == best.Scores.Total() && c.Scores.Safety > best.Scores.Safety:
			best = c
		}
	}
	return best
}
