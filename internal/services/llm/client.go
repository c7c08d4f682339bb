package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"aurax/internal/config"
	"aurax/internal/services"
	"aurax/internal/stage"
)

const defaultHTTPTimeout = 60 * time.Second

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// ConfigFrom extracts client settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}
}

// Completion is a decoded chat reply with its cost.
type Completion struct {
	Content          string
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64
}

// Client wraps an OpenAI-compatible chat completion API.
type Client struct {
	cfg    Config
	client openai.Client
}

// Option customizes the client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	if o.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(o.httpClient))
	}
	return &Client{cfg: cfg, client: openai.NewClient(reqOpts...)}
}

// Model reports the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// CompleteJSON issues a JSON-only chat completion with the supplied prompts
// and returns the raw reply content.
func (c *Client) CompleteJSON(ctx context.Context, op, systemPrompt, userPrompt string) (Completion, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" || userPrompt == "" {
		return Completion{}, services.Wrap(services.ErrValidation, "", op, "system and user prompts are required", nil)
	}
	if c.cfg.APIKey == "" {
		return Completion{}, services.Wrap(services.ErrConfiguration, "", op, "api key required", nil)
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return Completion{}, classifyError(ctx, op, err)
	}

	out := Completion{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	out.Cost = Cost(c.cfg.Model, out.PromptTokens, out.CompletionTokens)
	for _, choice := range resp.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			out.Content = content
			return out, nil
		}
	}
	finish := ""
	if len(resp.Choices) > 0 {
		finish = string(resp.Choices[0].FinishReason)
	}
	return out, services.Wrap(services.ErrTransient, "", op, fmt.Sprintf("empty content (finish_reason=%q)", finish), nil)
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) stage.Health {
	const name = "llm"
	completion, err := c.CompleteJSON(ctx, "llm health", "You must respond with JSON only.", `Respond with {"ok":true}`)
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(completion.Content, &parsed); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("parse payload: %v", err))
	}
	if !parsed.OK {
		return stage.Unhealthy(name, "unexpected response")
	}
	return stage.Healthy(name)
}

func classifyError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		detail := fmt.Sprintf("http %d", status)
		if msg := strings.TrimSpace(apiErr.Message); msg != "" {
			detail += ": " + msg
		}
		switch {
		case status == http.StatusRequestTimeout,
			status == http.StatusTooManyRequests,
			status >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "", op, detail, err)
		case status == http.StatusUnauthorized, status == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "", op, detail, err)
		default:
			return services.Wrap(services.ErrValidation, "", op, detail, err)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTransient, "", op, "request timed out", err)
	}
	return services.Wrap(services.ErrTransient, "", op, "request failed", err)
}
