// File: internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tablewise/tablepilot/api/schemas"
	"github.com/tablewise/tablepilot/internal/config"
)

// NewClient is a factory that constructs the reasoning oracle client for
// the configured provider.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		logger.Info("Instantiated LLM client",
			zap.String("provider", string(cfg.Provider)),
			zap.String("model", cfg.Model))
		return client, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider '%s'", cfg.Provider)
	}
}
