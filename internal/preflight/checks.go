package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"aurax/internal/config"
	"aurax/internal/services/inference"
	"aurax/internal/services/llm"
)

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt.
func CheckLLM(ctx context.Context, name string, cfg config.LLM) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})
	if h := client.HealthCheck(checkCtx); !h.Ready {
		return Result{Name: name, Detail: summarizeError(checkCtx, h.Detail)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckInference verifies the GPU inference service answers its health
// endpoint.
func CheckInference(ctx context.Context, cfg config.Inference) Result {
	const name = "Inference service"

	if strings.TrimSpace(cfg.BaseURL) == "" {
		return Result{Name: name, Detail: "missing base_url"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := inference.NewClient(inference.Config{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, TimeoutSeconds: 5})
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if h := client.HealthCheck(checkCtx); !h.Ready {
		return Result{Name: name, Detail: summarizeError(checkCtx, h.Detail)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", client.BaseURL())}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// summarizeError produces a human-readable summary for health check failures.
func summarizeError(ctx context.Context, detail string) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "health check timed out (service unresponsive)"
	}
	if detail == "" {
		return "health check failed"
	}
	return detail
}

