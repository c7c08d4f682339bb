package inference

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"aurax/internal/generation"
	"aurax/internal/services"
	"aurax/internal/stage"
)

// audioRef is the wire form of a payload. Exactly one of URL or Audio is
// normally set; the service accepts either.
type audioRef struct {
	URL         string `json:"audio_url,omitempty"`
	Audio       string `json:"audio,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

func toWire(p generation.Payload) audioRef {
	ref := audioRef{URL: p.URL, ContentType: p.ContentType}
	if len(p.Data) > 0 {
		ref.Audio = base64.StdEncoding.EncodeToString(p.Data)
	}
	return ref
}

func (a audioRef) payload(op string) (generation.Payload, error) {
	p := generation.Payload{URL: strings.TrimSpace(a.URL), ContentType: a.ContentType}
	if a.Audio != "" {
		data, err := base64.StdEncoding.DecodeString(a.Audio)
		if err != nil {
			return generation.Payload{}, services.Wrap(services.ErrValidation, "", op, "decode audio", err)
		}
		p.Data = data
		p.Size = len(data)
	}
	if p.Empty() {
		return generation.Payload{}, services.Wrap(services.ErrTransient, "", op, "response carried no audio", nil)
	}
	if p.ContentType == "" {
		p.ContentType = "audio/wav"
	}
	return p, nil
}

type usage struct {
	Cost           *float64 `json:"cost,omitempty"`
	ProcessingTime float64  `json:"processing_time"`
}

func (c *Client) cost(u usage) float64 {
	if u.Cost != nil {
		return *u.Cost
	}
	return u.ProcessingTime * c.cfg.GPUCostPerSecond
}

func (u usage) elapsed() time.Duration {
	return time.Duration(u.ProcessingTime * float64(time.Second))
}

type audioResponse struct {
	audioRef
	usage
}

func (c *Client) output(op string, resp audioResponse) (stage.Output, error) {
	payload, err := resp.audioRef.payload(op)
	if err != nil {
		return stage.Output{Cost: c.cost(resp.usage)}, err
	}
	return stage.Output{Payload: payload, Cost: c.cost(resp.usage), ProcessingTime: resp.elapsed()}, nil
}

type generateRequest struct {
	Prompt      string   `json:"prompt"`
	Duration    float64  `json:"duration"`
	Style       string   `json:"style,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
}

// Compose calls POST /v1/generate.
func (c *Client) Compose(ctx context.Context, params stage.ComposeParams) (stage.Output, error) {
	var resp audioResponse
	if err := c.post(ctx, "generate", "/v1/generate", generateRequest{
		Prompt:      params.Prompt,
		Duration:    params.Duration,
		Style:       params.Style,
		Temperature: params.Temperature,
		TopK:        params.TopK,
	}, &resp); err != nil {
		return stage.Output{}, err
	}
	return c.output("generate", resp)
}

type arrangeRequest struct {
	audioRef
	Style string `json:"style,omitempty"`
}

// Arrange calls POST /v1/arrange.
func (c *Client) Arrange(ctx context.Context, payload generation.Payload, style string) (stage.Output, error) {
	var resp audioResponse
	if err := c.post(ctx, "arrange", "/v1/arrange", arrangeRequest{audioRef: toWire(payload), Style: style}, &resp); err != nil {
		return stage.Output{}, err
	}
	return c.output("arrange", resp)
}

// Mix calls POST /v1/mix.
func (c *Client) Mix(ctx context.Context, payload generation.Payload) (stage.Output, error) {
	var resp audioResponse
	if err := c.post(ctx, "mix", "/v1/mix", toWire(payload), &resp); err != nil {
		return stage.Output{}, err
	}
	return c.output("mix", resp)
}

// Master calls POST /v1/master.
func (c *Client) Master(ctx context.Context, payload generation.Payload) (stage.Output, error) {
	var resp audioResponse
	if err := c.post(ctx, "master", "/v1/master", toWire(payload), &resp); err != nil {
		return stage.Output{}, err
	}
	return c.output("master", resp)
}

type evaluateRequest struct {
	audioRef
	Prompt string `json:"prompt"`
}

type evaluateResponse struct {
	Score    *float64           `json:"score"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	Feedback string             `json:"feedback,omitempty"`
	usage
}

// EvaluateQuality calls POST /v1/evaluate. Scores outside [0, 1] are clamped.
func (c *Client) EvaluateQuality(ctx context.Context, payload generation.Payload, prompt string) (stage.EvaluationOutput, error) {
	var resp evaluateResponse
	if err := c.post(ctx, "evaluate", "/v1/evaluate", evaluateRequest{audioRef: toWire(payload), Prompt: prompt}, &resp); err != nil {
		return stage.EvaluationOutput{}, err
	}
	if resp.Score == nil {
		return stage.EvaluationOutput{Cost: c.cost(resp.usage)}, services.Wrap(services.ErrTransient, "", "evaluate", "response carried no score", nil)
	}
	assessment := generation.QualityAssessment{
		Score:    *resp.Score,
		Metrics:  resp.Metrics,
		Feedback: strings.TrimSpace(resp.Feedback),
	}
	return stage.EvaluationOutput{
		Assessment:     assessment.Clamp(),
		Cost:           c.cost(resp.usage),
		ProcessingTime: resp.elapsed(),
	}, nil
}

type stemsRequest struct {
	audioRef
	Model string `json:"model"`
}

type stemsResponse struct {
	Stems []struct {
		Name string `json:"name"`
		audioRef
	} `json:"stems"`
	usage
}

// SeparateStems calls POST /v1/stems with the configured separation model.
func (c *Client) SeparateStems(ctx context.Context, payload generation.Payload) (stage.StemsOutput, error) {
	var resp stemsResponse
	if err := c.post(ctx, "stems", "/v1/stems", stemsRequest{audioRef: toWire(payload), Model: c.cfg.StemModel}, &resp); err != nil {
		return stage.StemsOutput{}, err
	}
	stems := make([]generation.Stem, 0, len(resp.Stems))
	for _, s := range resp.Stems {
		p, err := s.audioRef.payload("stems")
		if err != nil {
			return stage.StemsOutput{Cost: c.cost(resp.usage)}, err
		}
		stems = append(stems, generation.Stem{Name: strings.TrimSpace(s.Name), Payload: p})
	}
	return stage.StemsOutput{Stems: stems, Cost: c.cost(resp.usage), ProcessingTime: resp.elapsed()}, nil
}
