package generation

import (
	"fmt"
	"math"
	"strings"

	"aurax/internal/services"
)

// Request is a validated music generation request.
type Request struct {
	Prompt           string   `json:"prompt" yaml:"prompt"`
	Style            string   `json:"style,omitempty" yaml:"style,omitempty"`
	Duration         float64  `json:"duration" yaml:"duration"`
	QualityThreshold float64  `json:"quality_threshold" yaml:"quality_threshold"`
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopK             *int     `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	SeparateStems    bool     `json:"separate_stems,omitempty" yaml:"separate_stems,omitempty"`
}

// Defaults supplies values for request fields a caller left unset.
type Defaults struct {
	Style            string
	Duration         float64
	QualityThreshold float64
	Temperature      float64
	TopK             int
}

// Draft is a request as submitted by a caller, before defaults are applied.
// Nil pointers mean "use the default".
type Draft struct {
	Prompt           string   `json:"prompt" yaml:"prompt"`
	Style            string   `json:"style,omitempty" yaml:"style,omitempty"`
	Duration         *float64 `json:"duration,omitempty" yaml:"duration,omitempty"`
	QualityThreshold *float64 `json:"quality_threshold,omitempty" yaml:"quality_threshold,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopK             *int     `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	SeparateStems    bool     `json:"separate_stems,omitempty" yaml:"separate_stems,omitempty"`
}

// Resolve applies defaults to the draft and validates the outcome.
func (d Draft) Resolve(defaults Defaults) (Request, error) {
	req := Request{
		Prompt:           strings.TrimSpace(d.Prompt),
		Style:            strings.TrimSpace(d.Style),
		Duration:         defaults.Duration,
		QualityThreshold: defaults.QualityThreshold,
		SeparateStems:    d.SeparateStems,
	}
	if req.Style == "" {
		req.Style = defaults.Style
	}
	if d.Duration != nil {
		req.Duration = *d.Duration
	}
	if d.QualityThreshold != nil {
		req.QualityThreshold = *d.QualityThreshold
	}
	if d.Temperature != nil {
		v := *d.Temperature
		req.Temperature = &v
	} else {
		v := defaults.Temperature
		req.Temperature = &v
	}
	if d.TopK != nil {
		v := *d.TopK
		req.TopK = &v
	} else if defaults.TopK > 0 {
		v := defaults.TopK
		req.TopK = &v
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Validate rejects requests that no stage could serve.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return invalid("prompt is required")
	}
	if math.IsNaN(r.Duration) || r.Duration <= 0 {
		return invalid(fmt.Sprintf("duration must be positive, got %v", r.Duration))
	}
	if math.IsNaN(r.QualityThreshold) || r.QualityThreshold < 0 || r.QualityThreshold > 1 {
		return invalid(fmt.Sprintf("quality_threshold must be within [0, 1], got %v", r.QualityThreshold))
	}
	if r.Temperature != nil && (math.IsNaN(*r.Temperature) || *r.Temperature < 0) {
		return invalid(fmt.Sprintf("temperature must not be negative, got %v", *r.Temperature))
	}
	if r.TopK != nil && *r.TopK < 0 {
		return invalid(fmt.Sprintf("top_k must not be negative, got %d", *r.TopK))
	}
	return nil
}

// WithPrompt returns a copy of the request carrying a new prompt.
func (r Request) WithPrompt(prompt string) Request {
	next := r.clone()
	next.Prompt = prompt
	return next
}

// WithStyle returns a copy of the request carrying a new style. An empty
// style keeps the current one.
func (r Request) WithStyle(style string) Request {
	next := r.clone()
	if s := strings.TrimSpace(style); s != "" {
		next.Style = s
	}
	return next
}

func (r Request) clone() Request {
	next := r
	if r.Temperature != nil {
		v := *r.Temperature
		next.Temperature = &v
	}
	if r.TopK != nil {
		v := *r.TopK
		next.TopK = &v
	}
	return next
}

func invalid(message string) error {
	return services.Wrap(services.ErrInvalidRequest, "", "validate request", message, nil)
}
