// File: internal/artifacts/recorder.go
// The recorder persists one set of artifacts per completed iteration:
// the page snapshot, the decision, the execution result, the verifier's
// outcome and the post-action screenshot. The loop calls it but never
// depends on its success; a broken disk must not stop a session.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/tablewise/tablepilot/api/schemas"
	"github.com/tablewise/tablepilot/internal/agent"
	"github.com/tablewise/tablepilot/internal/config"
)

// FileRecorder writes per-iteration artifacts under a session directory
// named by date and a short run id.
type FileRecorder struct {
	dir             string
	saveScreenshots bool
	logger          *zap.Logger
}

var _ agent.Recorder = (*FileRecorder)(nil)

// NewFileRecorder creates the session directory up front so path errors
// surface at startup rather than mid-run.
func NewFileRecorder(cfg config.OutputConfig, logger *zap.Logger) (*FileRecorder, error) {
	runID := uuid.NewString()[:8]
	dir := filepath.Join(cfg.Dir, fmt.Sprintf("session_%s_%s", time.Now().UTC().Format("20060102_150405"), runID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}
	logger.Info("Recording session artifacts", zap.String("dir", dir))
	return &FileRecorder{
		dir:             dir,
		saveScreenshots: cfg.SaveScreenshots,
		logger:          logger.Named("recorder"),
	}, nil
}

// Dir returns the session artifact directory.
func (r *FileRecorder) Dir() string { return r.dir }

// RecordStep writes the iteration's artifacts. The first write error is
// returned so the caller can log it; partial artifact sets are accepted.
func (r *FileRecorder) RecordStep(_ context.Context, rec schemas.StepRecord) error {
	var firstErr error
	write := func(name string, v any) {
		data, err := json.MarshalIndent(v, "", "  ")
		if err == nil {
			err = os.WriteFile(filepath.Join(r.dir, name), data, 0o644)
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	write(fmt.Sprintf("state_%03d.json", rec.Index), rec.Page)
	write(fmt.Sprintf("plan_%03d.json", rec.Index), rec.Decision)
	if rec.Execution != nil {
		write(fmt.Sprintf("execution_%03d.json", rec.Index), rec.Execution)
	}
	write(fmt.Sprintf("verification_%03d.json", rec.Index), rec.Outcome)

	if r.saveScreenshots && rec.Execution != nil && len(rec.Execution.Screenshot) > 0 {
		name := fmt.Sprintf("screenshot_%03d.png", rec.Index)
		if err := os.WriteFile(filepath.Join(r.dir, name), rec.Execution.Screenshot, 0o644); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return firstErr
}

// WriteSummary persists the terminal session result next to the
// per-iteration artifacts.
func (r *FileRecorder) WriteSummary(result *agent.SessionResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.dir, "session_result.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write session summary: %w", err)
	}
	return nil
}
