package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/waypointlabs/waypoint/api/schemas"
	"github.com/waypointlabs/waypoint/internal/config"
)

// Gateway wraps an LLMClient and enforces the never-throws boundary: every
// call yields a GenerationResult, with exhausted or permanent failures flagged
// on the result rather than returned as an error.
type Gateway struct {
	client schemas.LLMClient
	logger *zap.Logger
}

// NewGateway wraps the given client.
func NewGateway(client schemas.LLMClient, logger *zap.Logger) *Gateway {
	return &Gateway{
		client: client,
		logger: logger.Named("gateway"),
	}
}

// Call performs one completion turn. On failure the result carries a short
// degraded text so the controller can keep making forward progress.
func (g *Gateway) Call(ctx context.Context, req schemas.GenerationRequest) schemas.GenerationResult {
	result, err := g.client.GenerateResponse(ctx, req)
	if err != nil {
		g.logger.Warn("Model call failed after retries", zap.Error(err))
		return schemas.GenerationResult{
			Text: fmt.Sprintf("[gateway error: %v]", err),
			Err:  err.Error(),
		}
	}
	return result
}

// NewClient is a factory function that creates an LLMClient based on the
// configured provider.
func NewClient(cfg config.GatewayConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiClient(cfg, logger)
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q", cfg.Provider)
	}
}
