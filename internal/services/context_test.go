package services_test

import (
	"context"
	"testing"

	"aurax/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithStage(ctx, "generation")
	ctx = services.WithAttempt(ctx, 2)
	ctx = services.WithRequestID(ctx, "req-1")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("run id = %q (%v)", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "generation" {
		t.Fatalf("stage = %q (%v)", stage, ok)
	}
	if attempt, ok := services.AttemptFromContext(ctx); !ok || attempt != 2 {
		t.Fatalf("attempt = %d (%v)", attempt, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-1" {
		t.Fatalf("request id = %q (%v)", rid, ok)
	}
	if _, ok := services.LaneFromContext(ctx); ok {
		t.Fatal("lane should be absent")
	}
	if services.WithStage(ctx, "") != ctx {
		t.Fatal("empty stage should return original context")
	}
}
