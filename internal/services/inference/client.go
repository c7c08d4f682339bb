package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"aurax/internal/config"
	"aurax/internal/services"
	"aurax/internal/stage"
)

const (
	defaultHTTPTimeout      = 10 * time.Minute
	defaultGPUCostPerSecond = 0.002
	defaultStemModel        = "htdemucs"
	maxErrorBody            = 4 << 10
)

// Config captures the runtime settings required to reach the service.
type Config struct {
	BaseURL          string
	APIKey           string
	TimeoutSeconds   int
	GPUCostPerSecond float64
	StemModel        string
}

// ConfigFrom extracts client settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		BaseURL:          cfg.Inference.BaseURL,
		APIKey:           cfg.Inference.APIKey,
		TimeoutSeconds:   cfg.Inference.TimeoutSeconds,
		GPUCostPerSecond: cfg.Inference.GPUCostPerSecond,
		StemModel:        cfg.Inference.StemModel,
	}
}

// HTTPDoer describes the HTTP client used by the inference client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements the audio stage capabilities over HTTP.
type Client struct {
	cfg        Config
	httpClient HTTPDoer
}

var (
	_ stage.Composer      = (*Client)(nil)
	_ stage.Arranger      = (*Client)(nil)
	_ stage.Mixer         = (*Client)(nil)
	_ stage.Masterer      = (*Client)(nil)
	_ stage.Evaluator     = (*Client)(nil)
	_ stage.StemSeparator = (*Client)(nil)
	_ stage.HealthChecker = (*Client)(nil)
)

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs an inference client. A blank base URL is a
// configuration error.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.BaseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "inference client", "base_url is required", nil)
	}
	if cfg.GPUCostPerSecond <= 0 {
		cfg.GPUCostPerSecond = defaultGPUCostPerSecond
	}
	if strings.TrimSpace(cfg.StemModel) == "" {
		cfg.StemModel = defaultStemModel
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// HealthCheck probes GET {base}/health.
func (c *Client) HealthCheck(ctx context.Context) stage.Health {
	const name = "inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return stage.Unhealthy(name, fmt.Sprintf("health endpoint returned %d", resp.StatusCode))
	}
	return stage.Healthy(name)
}

// BaseURL reports the configured service root.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

// post sends body to path and decodes the JSON response into out.
func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return services.Wrap(services.ErrValidation, "", op, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "", op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.authorize(req)
	if id, ok := services.RunIDFromContext(ctx); ok {
		req.Header.Set("X-Run-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(ctx, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return classifyStatus(op, resp.StatusCode, raw)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, "", op, "decode response", err)
	}
	return nil
}

type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

type nestedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// parseErrorBody extracts a machine code and message from either
// {"error":"...","code":"..."} or {"error":{"code":"...","message":"..."}}.
func parseErrorBody(raw []byte) (code, message string) {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", strings.TrimSpace(string(raw))
	}
	code, message = body.Code, body.Message
	if len(body.Error) > 0 {
		var nested nestedError
		var text string
		switch {
		case json.Unmarshal(body.Error, &nested) == nil:
			if code == "" {
				code = nested.Code
			}
			if message == "" {
				message = nested.Message
			}
		case json.Unmarshal(body.Error, &text) == nil:
			if message == "" {
				message = text
			}
		}
	}
	return strings.ToLower(strings.TrimSpace(code)), strings.TrimSpace(message)
}

func classifyStatus(op string, status int, raw []byte) error {
	code, message := parseErrorBody(raw)
	if message == "" {
		message = http.StatusText(status)
	}
	detail := fmt.Sprintf("http %d: %s", status, message)
	switch {
	case status == http.StatusInsufficientStorage,
		code == "out_of_memory",
		code == "resource_exhausted":
		return services.Wrap(services.ErrResourceExhausted, "", op, detail, nil)
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "", op, detail, nil)
	default:
		return services.Wrap(services.ErrValidation, "", op, detail, nil)
	}
}

func classifyTransportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTransient, "", op, "request timed out", err)
	}
	return services.Wrap(services.ErrTransient, "", op, "request failed", err)
}
