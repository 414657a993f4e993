// File: internal/agent/planner_test.go
package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/tablepilot/api/schemas"
	"github.com/tablewise/tablepilot/internal/config"
	"github.com/tablewise/tablepilot/internal/observability"
)

const completeGoal = "reserve at Ruth's Chris Steak House for 7pm, 2 people"

func newTestPlanner(t *testing.T, llm schemas.LLMClient) *CandidatePlanner {
	t.Helper()
	cfg := config.NewDefaultConfig().Agent
	p, err := NewCandidatePlanner(observability.GetLogger(), llm, cfg)
	require.NoError(t, err)
	return p
}

func searchPage() schemas.PageState {
	return schemas.PageState{
		URL:   "https://www.opentable.com/",
		Title: "OpenTable",
		TextInputs: []schemas.ElementDescriptor{
			{Tag: "input", ID: "restaurant-search", Placeholder: "Location, Restaurant, or Cuisine",
				Visible: true, Enabled: true, Selector: "#restaurant-search"},
		},
		Buttons: []schemas.ElementDescriptor{
			{Tag: "button", Text: "Let's go", Visible: true, Enabled: true, Selector: "button.search"},
		},
	}
}

func TestPlanChoosesSearchFill(t *testing.T) {
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return(`{
		"candidates": [
			{
				"action": {"type": "fill", "target": {"strategy": "id", "value": "restaurant-search"}, "value": "Ruth's Chris Steak House"},
				"scores": {"goal_progress": 5, "safety": 5, "robustness": 5, "success": 5},
				"why": "Search for the restaurant by name"
			},
			{
				"action": {"type": "scroll", "value": "down"},
				"scores": {"goal_progress": 1, "safety": 5, "robustness": 5, "success": 5},
				"why": "Look for other entry points"
			}
		]
	}`, nil).Once()

	planner := newTestPlanner(t, llm)
	decision, err := planner.Plan(context.Background(), completeGoal, searchPage(), &schemas.Memory{})

	require.NoError(t, err)
	require.Equal(t, schemas.DecisionAct, decision.Kind)
	require.NotNil(t, decision.Chosen)
	assert.Equal(t, schemas.ActionFill, decision.Chosen.Action.Type)
	require.NotNil(t, decision.Chosen.Action.Target)
	assert.Equal(t, schemas.StrategyID, decision.Chosen.Action.Target.Strategy)
	assert.Equal(t, "restaurant-search", decision.Chosen.Action.Target.Value)
	assert.Equal(t, "Ruth's Chris Steak House", decision.Chosen.Action.Value)
	llm.AssertExpectations(t)
}

func TestPlanStopsOnFinalizeControl(t *testing.T) {
	llm := new(MockLLMClient)
	page := schemas.PageState{
		URL: "https://www.opentable.com/booking/details",
		Buttons: []schemas.ElementDescriptor{
			{Tag: "button", Text: "Complete Reservation", Visible: true, Enabled: true},
		},
	}

	planner := newTestPlanner(t, llm)
	decision, err := planner.Plan(context.Background(), completeGoal, page, &schemas.Memory{})

	require.NoError(t, err)
	require.Equal(t, schemas.DecisionStop, decision.Kind)
	require.NotNil(t, decision.Stop)
	assert.Equal(t, "ready_to_book", decision.Stop.Status)
	assert.Equal(t, "Complete Reservation", decision.Stop.Summary["finalize_control"])
	// The pre-check must run before the oracle is ever consulted.
	llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestPlanFinalizeIgnoresHiddenControl(t *testing.T) {
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return(twoScrollCandidates(), nil).Once()
	page := searchPage()
	page.Buttons = append(page.Buttons, schemas.ElementDescriptor{
		Tag: "button", Text: "Complete Reservation", Visible: false, Enabled: true,
	})

	planner := newTestPlanner(t, llm)
	decision, err := planner.Plan(context.Background(), completeGoal, page, &schemas.Memory{})

	require.NoError(t, err)
	assert.Equal(t, schemas.DecisionAct, decision.Kind)
}

func TestPlanAsksWhenSlotsMissing(t *testing.T) {
	llm := new(MockLLMClient)
	planner := newTestPlanner(t, llm)

	decision, err := planner.Plan(context.Background(), "reserve at Ruth's Chris", searchPage(), &schemas.Memory{})

	require.NoError(t, err)
	require.Equal(t, schemas.DecisionAsk, decision.Kind)
	require.NotNil(t, decision.Question)
	assert.ElementsMatch(t, []string{"time", "party_size"}, decision.Question.FieldsNeeded)
	llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func twoScrollCandidates() string {
	return `{
		"candidates": [
			{"action": {"type": "scroll", "value": "down"},
			 "scores": {"goal_progress": 2, "safety": 5, "robustness": 5, "success": 5}, "why": "a"},
			{"action": {"type": "wait", "value": "1"},
			 "scores": {"goal_progress": 1, "safety": 5, "robustness": 5, "success": 5}, "why": "b"}
		]
	}`
}

func TestPlanRetriesOnceOnUnderGeneration(t *testing.T) {
	single := `{"candidates": [{"action": {"type": "scroll", "value": "down"},
		"scores": {"goal_progress": 2, "safety": 5, "robustness": 5, "success": 5}, "why": "only one"}]}`

	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return !strings.Contains(req.SystemPrompt, "STRICT MODE")
	})).Return(single, nil).Once()
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return strings.Contains(req.SystemPrompt, "STRICT MODE")
	})).Return(twoScrollCandidates(), nil).Once()

	planner := newTestPlanner(t, llm)
	decision, err := planner.Plan(context.Background(), completeGoal, searchPage(), &schemas.Memory{})

	require.NoError(t, err)
	assert.Equal(t, schemas.DecisionAct, decision.Kind)
	llm.AssertExpectations(t)
}

func TestPlanFailsAfterSecondUnderGeneration(t *testing.T) {
	single := `{"candidates": [{"action": {"type": "wait", "value": "1"},
		"scores": {"goal_progress": 1, "safety": 5, "robustness": 5, "success": 5}, "why": "x"}]}`

	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return(single, nil).Twice()

	planner := newTestPlanner(t, llm)
	_, err := planner.Plan(context.Background(), completeGoal, searchPage(), &schemas.Memory{})

	var planErr *PlanError
	require.ErrorAs(t, err, &planErr)
	assert.Equal(t, ErrCodeUnderGeneration, planErr.Code)
	llm.AssertExpectations(t)
}

func TestPlanFailsOnMalformedResponse(t *testing.T) {
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return("I cannot help with that.", nil).Once()

	planner := newTestPlanner(t, llm)
	_, err := planner.Plan(context.Background(), completeGoal, searchPage(), &schemas.Memory{})

	var planErr *PlanError
	require.ErrorAs(t, err, &planErr)
	assert.Equal(t, ErrCodeMalformedOracle, planErr.Code)
}

func TestPlanFailsOnOracleError(t *testing.T) {
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("rate limited")).Once()

	planner := newTestPlanner(t, llm)
	_, err := planner.Plan(context.Background(), completeGoal, searchPage(), &schemas.Memory{})

	var planErr *PlanError
	require.ErrorAs(t, err, &planErr)
	assert.Equal(t, ErrCodeMalformedOracle, planErr.Code)
}

func TestPlanRejectsOutOfRangeScores(t *testing.T) {
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return(`{
		"candidates": [
			{"action": {"type": "scroll", "value": "down"},
			 "scores": {"goal_progress": 9, "safety": 5, "robustness": 5, "success": 5}, "why": "a"},
			{"action": {"type": "wait", "value": "1"},
			 "scores": {"goal_progress": 1, "safety": 5, "robustness": 5, "success": 5}, "why": "b"}
		]
	}`, nil).Once()

	planner := newTestPlanner(t, llm)
	_, err := planner.Plan(context.Background(), completeGoal, searchPage(), &schemas.Memory{})

	var planErr *PlanError
	require.ErrorAs(t, err, &planErr)
	assert.Equal(t, ErrCodeMalformedOracle, planErr.Code)
}

func TestPlanDiscardsOffDomainNavigation(t *testing.T) {
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return(`{
		"candidates": [
			{"action": {"type": "navigate", "value": "https://evil.example.com/phish"},
			 "scores": {"goal_progress": 5, "safety": 5, "robustness": 5, "success": 5}, "why": "a"},
			{"action": {"type": "navigate", "value": "http://attacker.test/"},
			 "scores": {"goal_progress": 4, "safety": 4, "robustness": 4, "success": 4}, "why": "b"}
		]
	}`, nil).Once()

	planner := newTestPlanner(t, llm)
	_, err := planner.Plan(context.Background(), completeGoal, searchPage(), &schemas.Memory{})

	var planErr *PlanError
	require.ErrorAs(t, err, &planErr)
	assert.Equal(t, ErrCodeNoSafeCandidate, planErr.Code)
}

func TestPlanFilterRunsBeforeScoring(t *testing.T) {
	// The off-domain candidate scores highest; the filter must discard it
	// before any comparison so the lower-scored on-site action wins.
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return(`{
		"candidates": [
			{"action": {"type": "navigate", "value": "https://evil.example.com/"},
			 "scores": {"goal_progress": 5, "safety": 5, "robustness": 5, "success": 5}, "why": "a"},
			{"action": {"type": "navigate", "value": "https://www.opentable.com/ruths-chris"},
			 "scores": {"goal_progress": 3, "safety": 3, "robustness": 3, "success": 3}, "why": "b"}
		]
	}`, nil).Once()

	planner := newTestPlanner(t, llm)
	decision, err := planner.Plan(context.Background(), completeGoal, searchPage(), &schemas.Memory{})

	require.NoError(t, err)
	require.Equal(t, schemas.DecisionAct, decision.Kind)
	assert.Equal(t, "https://www.opentable.com/ruths-chris", decision.Chosen.Action.Value)
}

func TestPlanDiscardsForbiddenAndFinalizeTargets(t *testing.T) {
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return(`{
		"candidates": [
			{"action": {"type": "click", "target": {"strategy": "text", "value": "Sign in"}},
			 "scores": {"goal_progress": 5, "safety": 5, "robustness": 5, "success": 5}, "why": "a"},
			{"action": {"type": "click", "target": {"strategy": "text", "value": "Complete reservation"}},
			 "scores": {"goal_progress": 5, "safety": 5, "robustness": 5, "success": 5}, "why": "b"},
			{"action": {"type": "scroll", "value": "down"},
			 "scores": {"goal_progress": 1, "safety": 5, "robustness": 5, "success": 5}, "why": "c"}
		]
	}`, nil).Once()

	planner := newTestPlanner(t, llm)
	decision, err := planner.Plan(context.Background(), completeGoal, searchPage(), &schemas.Memory{})

	require.NoError(t, err)
	require.Equal(t, schemas.DecisionAct, decision.Kind)
	assert.Equal(t, schemas.ActionScroll, decision.Chosen.Action.Type)
}

func TestPlanDiscardsClickOnOffDomainLink(t *testing.T) {
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return(`{
		"candidates": [
			{"action": {"type": "click", "target": {"strategy": "text", "value": "Partner offers"}},
			 "scores": {"goal_progress": 5, "safety": 5, "robustness": 5, "success": 5}, "why": "a"},
			{"action": {"type": "scroll", "value": "down"},
			 "scores": {"goal_progress": 1, "safety": 5, "robustness": 5, "success": 5}, "why": "b"}
		]
	}`, nil).Once()

	page := searchPage()
	page.Links = []schemas.ElementDescriptor{
		{Tag: "a", Text: "Partner offers", Href: "https://ads.example.net/offers", Visible: true, Enabled: true},
	}

	planner := newTestPlanner(t, llm)
	decision, err := planner.Plan(context.Background(), completeGoal, page, &schemas.Memory{})

	require.NoError(t, err)
	assert.Equal(t, schemas.ActionScroll, decision.Chosen.Action.Type)
}

func TestSelectCandidateTieBreaks(t *testing.T) {
	mk := func(why string, gp, safety int) schemas.Candidate {
		return schemas.Candidate{
			Action: schemas.ActionDescriptor{Type: schemas.ActionScroll, Value: "down"},
			Scores: schemas.ScoreVector{GoalProgress: gp, Safety: safety, Robustness: 0, Success: 0},
			Why:    why,
		}
	}

	t.Run("higher total wins", func(t *testing.T) {
		got := selectCandidate([]schemas.Candidate{mk("low", 1, 1), mk("high", 4, 1)})
		assert.Equal(t, "high", got.Why)
	})

	t.Run("equal total, higher safety wins", func(t *testing.T) {
		got := selectCandidate([]schemas.Candidate{mk("risky", 4, 1), mk("safe", 2, 3)})
		assert.Equal(t, "safe", got.Why)
	})

	t.Run("equal total and safety, first proposed wins", func(t *testing.T) {
		got := selectCandidate([]schemas.Candidate{mk("first", 2, 3), mk("second", 2, 3)})
		assert.Equal(t, "first", got.Why)
	})
}

func TestHostAllowed(t *testing.T) {
	planner := newTestPlanner(t, new(MockLLMClient))

	assert.True(t, planner.hostAllowed("https://www.opentable.com/r/some-place"))
	assert.True(t, planner.hostAllowed("https://opentable.com/"))
	assert.True(t, planner.hostAllowed("https://m.opentable.com/search"))
	assert.True(t, planner.hostAllowed("/restaurant/profile/123"))
	assert.False(t, planner.hostAllowed("https://notopentable.com/"))
	assert.False(t, planner.hostAllowed("https://evil.example.com/opentable.com"))
}

func TestParseOracleResponseHandlesFences(t *testing.T) {
	fenced := "Here you go:\n```json\n" + twoScrollCandidates() + "\n```\nGood luck!"
	candidates, err := parseOracleResponse(fenced)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}
