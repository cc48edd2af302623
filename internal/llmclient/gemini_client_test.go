package llmclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waypointlabs/waypoint/api/schemas"
	"github.com/waypointlabs/waypoint/internal/config"
)

const successBody = `{
	"candidates": [{"content": {"parts": [{"text": "click(element_id=5)"}], "role": "model"}, "finishReason": "STOP"}],
	"usageMetadata": {"promptTokenCount": 100, "candidatesTokenCount": 20, "totalTokenCount": 120}
}`

func testGatewayConfig(endpoint string) config.GatewayConfig {
	return config.GatewayConfig{
		Provider:       "gemini",
		APIKey:         "test-key",
		Model:          "gemini-test",
		Endpoint:       endpoint,
		APITimeout:     5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxTokens:      1024,
	}
}

func newTestClient(t *testing.T, endpoint string) *GeminiClient {
	t.Helper()
	client, err := NewGeminiClient(testGatewayConfig(endpoint), zap.NewNop())
	require.NoError(t, err)
	return client
}

func basicRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		SystemPrompt: "You navigate a UI.",
		Messages:     []schemas.Message{{Role: "user", Content: "goal: oil capacity"}},
	}
}

func TestGenerateResponseSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		w.Write([]byte(successBody))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.GenerateResponse(context.Background(), basicRequest())
	require.NoError(t, err)
	assert.Equal(t, "click(element_id=5)", result.Text)
	assert.Equal(t, schemas.TokenUsage{Prompt: 100, Completion: 20, Total: 120}, result.Usage)
}

func TestGenerateResponseRetriesTransientOverload(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(successBody))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.GenerateResponse(context.Background(), basicRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	// Usage reflects only the billed final attempt, not the two 503s.
	assert.Equal(t, 120, result.Usage.Total)
}

func TestGenerateResponseExhaustsRetryCap(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.GenerateResponse(context.Background(), basicRequest())
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load(), "should stop at the attempt cap")
}

func TestGenerateResponsePermanentErrorDoesNotRetry(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.GenerateResponse(context.Background(), basicRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGenerateResponseBlockedContentIsPermanent(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"candidates": [{"content": {"parts": []}, "finishReason": "SAFETY"}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.GenerateResponse(context.Background(), basicRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
	assert.Equal(t, int32(1), hits.Load())
}

func TestNewGeminiClientRequiresAPIKey(t *testing.T) {
	cfg := testGatewayConfig("http://unused")
	cfg.APIKey = ""
	_, err := NewGeminiClient(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestToolSchemaRendering(t *testing.T) {
	var captured atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		captured.Store(string(buf))
		w.Write([]byte(successBody))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	req := basicRequest()
	req.Tools = []schemas.ToolDef{{
		Name:        "click",
		Description: "Click an element by id.",
		Parameters:  schemas.ToolParams{Required: []string{"element_id"}, Optional: []string{"reason"}},
	}}
	_, err := client.GenerateResponse(context.Background(), req)
	require.NoError(t, err)
	body, _ := captured.Load().(string)
	assert.Contains(t, body, "click(element_id, [reason])")
}

func TestGatewayFlagsFailures(t *testing.T) {
	mock := NewMockClient().
		EnqueueError(errors.New("retries exhausted"))
	gw := NewGateway(mock, zap.NewNop())

	result := gw.Call(context.Background(), basicRequest())
	assert.True(t, result.Failed())
	assert.Contains(t, result.Text, "gateway error")

	mock2 := NewMockClient().Enqueue("done()", schemas.TokenUsage{Total: 10})
	gw2 := NewGateway(mock2, zap.NewNop())
	result = gw2.Call(context.Background(), basicRequest())
	assert.False(t, result.Failed())
	assert.Equal(t, "done()", result.Text)
}

func TestNewClientFactory(t *testing.T) {
	_, err := NewClient(config.GatewayConfig{Provider: "mock"}, zap.NewNop())
	assert.NoError(t, err)

	_, err = NewClient(config.GatewayConfig{Provider: "gemini", APIKey: "k"}, zap.NewNop())
	assert.NoError(t, err)

	_, err = NewClient(config.GatewayConfig{Provider: "smoke-signals"}, zap.NewNop())
	assert.Error(t, err)
}
