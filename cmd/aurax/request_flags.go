package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"aurax/internal/api"
	"aurax/internal/config"
)

// requestFlags collects the generation request shared by generate and run.
type requestFlags struct {
	file          string
	style         string
	duration      float64
	threshold     float64
	temperature   float64
	topK          int
	maxAttempts   int
	separateStems bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.file, "file", "f", "", "YAML request file (flags override its fields)")
	flags.StringVarP(&f.style, "style", "s", "", "Musical style (defaults to pipeline.default_style)")
	flags.Float64VarP(&f.duration, "duration", "d", 0, "Target duration in seconds")
	flags.Float64Var(&f.threshold, "threshold", 0, "Quality threshold in [0, 1]")
	flags.Float64Var(&f.temperature, "temperature", 0, "Sampling temperature")
	flags.IntVar(&f.topK, "top-k", 0, "Top-k sampling cutoff")
	flags.IntVar(&f.maxAttempts, "max-attempts", 0, "Regeneration attempt ceiling (defaults to pipeline.max_attempts)")
	flags.BoolVar(&f.separateStems, "stems", false, "Separate the final master into stems")
}

// build merges the request file, positional prompt, and explicitly set flags.
// Unset values stay nil so the server applies its defaults.
func (f *requestFlags) build(cmd *cobra.Command, args []string) (api.SubmitRequest, error) {
	var req api.SubmitRequest
	if path := strings.TrimSpace(f.file); path != "" {
		loaded, err := loadRequestFile(path)
		if err != nil {
			return api.SubmitRequest{}, err
		}
		req = loaded
	}
	if len(args) > 0 {
		req.Prompt = strings.Join(args, " ")
	}

	flags := cmd.Flags()
	if flags.Changed("style") {
		req.Style = f.style
	}
	if flags.Changed("duration") {
		v := f.duration
		req.Duration = &v
	}
	if flags.Changed("threshold") {
		v := f.threshold
		req.QualityThreshold = &v
	}
	if flags.Changed("temperature") {
		v := f.temperature
		req.Temperature = &v
	}
	if flags.Changed("top-k") {
		v := f.topK
		req.TopK = &v
	}
	if flags.Changed("max-attempts") {
		req.MaxAttempts = f.maxAttempts
	}
	if flags.Changed("stems") {
		req.SeparateStems = f.separateStems
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return api.SubmitRequest{}, fmt.Errorf("a prompt is required (pass it as arguments or set prompt in --file)")
	}
	return req, nil
}

func loadRequestFile(path string) (api.SubmitRequest, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return api.SubmitRequest{}, fmt.Errorf("resolve request file: %w", err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return api.SubmitRequest{}, fmt.Errorf("read request file: %w", err)
	}
	var req api.SubmitRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return api.SubmitRequest{}, fmt.Errorf("parse request file %s: %w", expanded, err)
	}
	return req, nil
}
