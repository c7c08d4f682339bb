package testsupport

import (
	"context"
	"testing"

	"aurax/internal/config"
	"aurax/internal/generation"
	"aurax/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRun inserts a pending run for req.
func NewRun(t testing.TB, store *queue.Store, req generation.Request, maxAttempts int) *queue.Run {
	t.Helper()

	run, err := store.NewRun(context.Background(), req, maxAttempts)
	if err != nil {
		t.Fatalf("store.NewRun: %v", err)
	}
	return run
}

// Request returns a valid request with repository defaults.
func Request(prompt string) generation.Request {
	temperature := 0.8
	topK := 250
	return generation.Request{
		Prompt:           prompt,
		Style:            "electronic",
		Duration:         30,
		QualityThreshold: 0.7,
		Temperature:      &temperature,
		TopK:             &topK,
	}
}
