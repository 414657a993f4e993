// File: internal/llmclient/gemini.go
package llmclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/tablewise/tablepilot/api/schemas"
	"github.com/tablewise/tablepilot/internal/config"
)

// GeminiClient adapts the Google GenAI SDK to the LLMClient boundary.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	maxTok  int
	logger  *zap.Logger
}

var _ schemas.LLMClient = (*GeminiClient)(nil)

// NewGeminiClient builds a client against the Gemini API backend. The
// API key comes from configuration (usually the GEMINI_API_KEY
// environment variable).
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is not configured (set GEMINI_API_KEY)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return &GeminiClient{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.APITimeout,
		maxTok:  cfg.MaxTokens,
		logger:  logger.Named("gemini"),
	}, nil
}

// Generate sends one prompt pair and returns the raw response text. The
// caller is responsible for validating whatever comes back.
func (g *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if g.maxTok > 0 {
		genCfg.MaxOutputTokens = int32(g.maxTok)
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.ForceJSONFormat {
		genCfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.UserPrompt), genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	text := resp.Text()
	g.logger.Debug("Generation complete",
		zap.String("model", g.model),
		zap.Duration("latency", time.Since(start)),
		zap.Int("response_chars", len(text)))
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}
