package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/platform/httpx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

// Client produces JSON documents constrained by a structured-output schema.
type Client interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	RPS        float64
	Burst      int
	MaxRetries int
}

type client struct {
	api        *goopenai.Client
	model      string
	limiter    *rate.Limiter
	maxRetries int
	log        *logger.Logger
}

func NewClient(cfg Config, baseLog *logger.Logger) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &client{
		api:        goopenai.NewClientWithConfig(apiCfg),
		model:      cfg.Model,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		maxRetries: cfg.MaxRetries,
		log:        baseLog.With("service", "OpenAIClient", "model", cfg.Model),
	}, nil
}

func (c *client) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error) {
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", schemaName, err)
	}
	req := goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Schema: json.RawMessage(schemaBytes),
				Strict: true,
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := httpx.Sleep(ctx, backoff(attempt)); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isRetryable(err) {
				c.log.Warn("generation request failed, retrying", "schema", schemaName, "attempt", attempt+1, "error", err)
				continue
			}
			return nil, fmt.Errorf("openai %s: %w", schemaName, err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("openai %s: no choices returned", schemaName)
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if !json.Valid([]byte(content)) {
			return nil, fmt.Errorf("openai %s: response is not valid JSON", schemaName)
		}
		return json.RawMessage(content), nil
	}
	return nil, perrors.Infra("openai."+schemaName, lastErr)
}

func isRetryable(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return httpx.IsRetryableHTTPStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return httpx.IsRetryableHTTPStatus(reqErr.HTTPStatusCode)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func backoff(attempt int) time.Duration {
	return httpx.Backoff(attempt, 500*time.Millisecond, 8*time.Second)
}
