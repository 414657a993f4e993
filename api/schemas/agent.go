// api/schemas/agent.go
package schemas

import "time"

// ScoreDimMax is the inclusive upper bound for each scoring dimension.
const ScoreDimMax = 5

// ScoreVector holds the four independent candidate scoring dimensions,
// each an integer in [0, ScoreDimMax].
type ScoreVector struct {
	GoalProgress int `json:"goal_progress"`
	Safety       int `json:"safety"`
	Robustness   int `json:"robustness"`
	Success      int `json:"success"`
}

// Total is the derived sum of the four dimensions. It is always computed,
// never trusted from the wire.
func (s ScoreVector) Total() int {
	return s.GoalProgress + s.Safety + s.Robustness + s.Success
}

// InRange reports whether every dimension lies within [0, ScoreDimMax].
func (s ScoreVector) InRange() bool {
	for _, v := range []int{s.GoalProgress, s.Safety, s.Robustness, s.Success} {
		if v < 0 || v > ScoreDimMax {
			return false
		}
	}
	return true
}

// Candidate is one scored, proposed-but-not-yet-chosen action. Candidates
// are ephemeral: all but the chosen one are discarded within a single
// planning call.
type Candidate struct {
	Action ActionDescriptor `json:"action"`
	Scores ScoreVector      `json:"scores"`
	Why    string           `json:"why"`
}

// DecisionKind tags the active variant of a Decision.
type DecisionKind string

const (
	DecisionAct  DecisionKind = "act"
	DecisionAsk  DecisionKind = "ask"
	DecisionStop DecisionKind = "stop"
)

// Question carries the information the planner needs from the user before
// it can proceed.
type Question struct {
	Text         string   `json:"text"`
	FieldsNeeded []string `json:"fields_needed"`
}

// StopStatus values emitted with a stop Decision.
const (
	StopReadyToBook = "ready_to_book"
	StopDone        = "done"
	StopBlocked     = "blocked"
)

// StopState summarizes why the planner decided the session is over.
type StopState struct {
	Status  string         `json:"status"`
	Summary map[string]any `json:"summary,omitempty"`
}

// Decision is the planner's tagged union: exactly one of Chosen, Question
// or Stop is populated, matching Kind.
type Decision struct {
	Kind     DecisionKind `json:"decision"`
	Reason   string       `json:"reason"`
	Chosen   *Candidate   `json:"chosen,omitempty"`
	Question *Question    `json:"question,omitempty"`
	Stop     *StopState   `json:"stop_state,omitempty"`
}

// ExecutionResult reports the outcome of one executed action. It is
// immutable once produced; every execution failure mode is represented
// here rather than raised.
type ExecutionResult struct {
	OK          bool             `json:"ok"`
	Action      ActionDescriptor `json:"action"`
	PreURL      string           `json:"pre_url"`
	PostURL     string           `json:"post_url"`
	SignalsSeen []string         `json:"signals_seen"`
	// Screenshot holds the best-effort post-action capture. It is kept out
	// of JSON records; the artifact recorder persists it separately.
	Screenshot []byte `json:"-"`
	Error      string `json:"error,omitempty"`
}

// StepStatus tags the active variant of a StepOutcome.
type StepStatus string

const (
	StepContinue StepStatus = "continue"
	StepFinish   StepStatus = "finish"
	StepPause    StepStatus = "pause"
)

// StepOutcome is the verifier's classification of one completed step.
type StepOutcome struct {
	Status           StepStatus     `json:"status"`
	Reason           string         `json:"reason"`
	ShouldContinue   bool           `json:"should_continue"`
	CurrentURL       string         `json:"current_url"`
	EndStateDetected bool           `json:"end_state_detected"`
	Details          map[string]any `json:"details"`
}

// StepRecord is one completed iteration: what was seen, what was decided,
// what happened, and how it was judged. Execution is nil when the decision
// short-circuited the execute step (ask or stop).
type StepRecord struct {
	Index     int              `json:"index"`
	Page      PageState        `json:"page_state"`
	Decision  Decision         `json:"decision"`
	Execution *ExecutionResult `json:"execution,omitempty"`
	Outcome   StepOutcome      `json:"outcome"`
	Timestamp time.Time        `json:"timestamp"`
}

// Memory is the append-only, gapless session history. It is owned
// exclusively by the loop controller; consumers receive snapshots.
type Memory struct {
	records []StepRecord
}

// Append records one completed iteration, assigning it the next index.
func (m *Memory) Append(rec StepRecord) {
	rec.Index = len(m.records)
	m.records = append(m.records, rec)
}

// Len returns the number of completed iterations.
func (m *Memory) Len() int { return len(m.records) }

// Records returns a copy of the history for read-only consumption.
func (m *Memory) Records() []StepRecord {
	out := make([]StepRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Recent returns up to n of the most recent records, oldest first.
func (m *Memory) Recent(n int) []StepRecord {
	if n <= 0 || len(m.records) == 0 {
		return nil
	}
	start := len(m.records) - n
	if start < 0 {
		start = 0
	}
	out := make([]StepRecord, len(m.records)-start)
	copy(out, m.records[start:])
	return out
}
