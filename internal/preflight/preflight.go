package preflight

import (
	"context"

	"aurax/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	if cfg.Storage.Backend == config.StorageLocal {
		results = append(results, CheckDirectoryAccess("Payload directory", cfg.Storage.Dir))
	}

	results = append(results, CheckInference(ctx, cfg.Inference))

	if cfg.LLM.APIKey != "" {
		results = append(results, CheckLLM(ctx, "LLM", cfg.LLM))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
