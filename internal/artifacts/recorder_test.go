// File: internal/artifacts/recorder_test.go
package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablewise/tablepilot/api/schemas"
	"github.com/tablewise/tablepilot/internal/agent"
	"github.com/tablewise/tablepilot/internal/config"
)

func newTestRecorder(t *testing.T) *FileRecorder {
	t.Helper()
	r, err := NewFileRecorder(config.OutputConfig{
		Dir:             t.TempDir(),
		SaveScreenshots: true,
	}, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestRecordStepWritesAllArtifacts(t *testing.T) {
	r := newTestRecorder(t)

	rec := schemas.StepRecord{
		Index: 3,
		Page:  schemas.PageState{URL: "https://www.opentable.com/"},
		Decision: schemas.Decision{
			Kind:   schemas.DecisionAct,
			Chosen: &schemas.Candidate{Action: schemas.ActionDescriptor{Type: schemas.ActionScroll, Value: "down"}},
		},
		Execution: &schemas.ExecutionResult{
			OK:         true,
			PostURL:    "https://www.opentable.com/",
			Screenshot: []byte{0x89, 0x50, 0x4e, 0x47},
		},
		Outcome: schemas.StepOutcome{Status: schemas.StepContinue, ShouldContinue: true},
	}
	require.NoError(t, r.RecordStep(context.Background(), rec))

	for _, name := range []string{"state_003.json", "plan_003.json", "execution_003.json", "verification_003.json", "screenshot_003.png"} {
		_, err := os.Stat(filepath.Join(r.Dir(), name))
		assert.NoError(t, err, "expected artifact %s", name)
	}

	data, err := os.ReadFile(filepath.Join(r.Dir(), "verification_003.json"))
	require.NoError(t, err)
	var outcome schemas.StepOutcome
	require.NoError(t, json.Unmarshal(data, &outcome))
	assert.Equal(t, schemas.StepContinue, outcome.Status)
}

func TestRecordStepSkipsExecutionFilesForStopIterations(t *testing.T) {
	r := newTestRecorder(t)

	rec := schemas.StepRecord{
		Index:    0,
		Decision: schemas.Decision{Kind: schemas.DecisionStop, Stop: &schemas.StopState{Status: schemas.StopReadyToBook}},
		Outcome:  schemas.StepOutcome{Status: schemas.StepFinish, EndStateDetected: true},
	}
	require.NoError(t, r.RecordStep(context.Background(), rec))

	_, err := os.Stat(filepath.Join(r.Dir(), "execution_000.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(r.Dir(), "screenshot_000.png"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(r.Dir(), "plan_000.json"))
	assert.NoError(t, err)
}

func TestWriteSummary(t *testing.T) {
	r := newTestRecorder(t)

	require.NoError(t, r.WriteSummary(&agent.SessionResult{
		Cause:      agent.HaltStop,
		Reason:     "booking is ready",
		Iterations: 4,
	}))

	data, err := os.ReadFile(filepath.Join(r.Dir(), "session_result.json"))
	require.NoError(t, err)
	var result agent.SessionResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, agent.HaltStop, result.Cause)
	assert.Equal(t, 4, result.Iterations)
}
