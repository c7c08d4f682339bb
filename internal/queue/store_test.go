package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"aurax/internal/generation"
	"aurax/internal/queue"
	"aurax/internal/services"
	"aurax/internal/testsupport"
)

func TestNewRunAndGetByID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	req := testsupport.Request("warm lofi beat")
	req.SeparateStems = true
	run := testsupport.NewRun(t, store, req, 3)
	if run.ID == "" {
		t.Fatal("expected run id to be assigned")
	}
	if run.Status != generation.StatusPending || run.MaxAttempts != 3 || run.Threshold != 0.7 {
		t.Fatalf("unexpected new run %#v", run)
	}

	fetched, err := store.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Request.Prompt != "warm lofi beat" || !fetched.Request.SeparateStems {
		t.Fatalf("unexpected fetched run: %#v", fetched)
	}
	if fetched.Request.TopK == nil || *fetched.Request.TopK != 250 {
		t.Fatalf("request options not round-tripped: %#v", fetched.Request)
	}

	missing, err := store.GetByID(ctx, "does-not-exist")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing run, got %#v, %v", missing, err)
	}
	if _, err := store.Lookup(ctx, "does-not-exist"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewRunRejectsZeroAttempts(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := store.NewRun(context.Background(), testsupport.Request("x"), 0); err == nil {
		t.Fatal("expected error for zero max attempts")
	}
}

func TestNextPendingClaimsOldestFirst(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first := testsupport.NewRun(t, store, testsupport.Request("first"), 3)
	second := testsupport.NewRun(t, store, testsupport.Request("second"), 3)

	claimed, err := store.NextPending(ctx)
	if err != nil {
		t.Fatalf("NextPending failed: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected first run to be claimed, got %#v", claimed)
	}
	if claimed.Status != generation.StatusGenerating || claimed.StartedAt == nil || claimed.LastHeartbeat == nil {
		t.Fatalf("claimed run not marked in flight: %#v", claimed)
	}

	next, err := store.NextPending(ctx)
	if err != nil {
		t.Fatalf("NextPending failed: %v", err)
	}
	if next == nil || next.ID != second.ID {
		t.Fatalf("expected second run, got %#v", next)
	}

	none, err := store.NextPending(ctx)
	if err != nil {
		t.Fatalf("NextPending failed: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no pending run, got %#v", none)
	}
}

func TestProgressAttemptsAndFinish(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run := testsupport.NewRun(t, store, testsupport.Request("ambient drone"), 3)
	if _, err := store.NextPending(ctx); err != nil {
		t.Fatalf("NextPending failed: %v", err)
	}

	score := 0.55
	if err := store.UpdateProgress(ctx, run.ID, queue.Progress{Attempt: 2, Stage: "mixing", Threshold: 0.6, TotalCost: 0.4, QualityScore: &score}); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	got, _ := store.GetByID(ctx, run.ID)
	if got.Attempt != 2 || got.Stage != "mixing" || got.Threshold != 0.6 || got.QualityScore == nil || *got.QualityScore != 0.55 {
		t.Fatalf("progress not persisted: %#v", got)
	}

	records := []generation.AttemptRecord{
		{Attempt: 1, Prompt: "ambient drone", Threshold: 0.7, Outcome: generation.OutcomeRegenerate,
			Stages:     []generation.StageResult{{Stage: "generation", Status: generation.StageSucceeded, Cost: 0.2}},
			Assessment: &generation.QualityAssessment{Score: 0.55}},
		{Attempt: 2, Prompt: "ambient drone [enhanced]", Threshold: 0.6, Outcome: generation.OutcomeAccepted,
			Stages:     []generation.StageResult{{Stage: "generation", Status: generation.StageSucceeded, Cost: 0.2}},
			Assessment: &generation.QualityAssessment{Score: 0.65}},
	}
	for i := len(records) - 1; i >= 0; i-- {
		if err := store.AppendAttempt(ctx, run.ID, records[i]); err != nil {
			t.Fatalf("AppendAttempt failed: %v", err)
		}
	}
	stored, err := store.Attempts(ctx, run.ID)
	if err != nil {
		t.Fatalf("Attempts failed: %v", err)
	}
	if len(stored) != 2 || stored[0].Attempt != 1 || stored[1].Prompt != "ambient drone [enhanced]" {
		t.Fatalf("unexpected attempts: %#v", stored)
	}

	result := generation.Result{
		RunID:        run.ID,
		Status:       generation.StatusCompleted,
		Payload:      generation.Payload{Data: []byte("audio"), URL: "file:///tmp/a.wav"},
		PayloadRef:   "runs/" + run.ID + "/master.wav",
		QualityScore: 0.65,
		Threshold:    0.6,
		AttemptsUsed: 2,
		TotalCost:    0.4,
		Attempts:     stored,
	}
	if err := store.Finish(ctx, run.ID, result); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	done, _ := store.GetByID(ctx, run.ID)
	if done.Status != generation.StatusCompleted || done.FinishedAt == nil || done.LastHeartbeat != nil {
		t.Fatalf("run not finished: %#v", done)
	}
	if done.Result == nil || done.Result.AttemptsUsed != 2 || len(done.Result.Payload.Data) != 0 {
		t.Fatalf("stored result unexpected: %#v", done.Result)
	}
	if done.PayloadRef != result.PayloadRef {
		t.Fatalf("payload ref = %q", done.PayloadRef)
	}

	if err := store.Finish(ctx, run.ID, generation.Result{Status: generation.StatusGenerating}); err == nil {
		t.Fatal("expected error finishing with non-terminal status")
	}
}

func TestRequestCancel(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	running := testsupport.NewRun(t, store, testsupport.Request("running"), 3)
	pending := testsupport.NewRun(t, store, testsupport.Request("pending"), 3)
	claimed, err := store.NextPending(ctx)
	if err != nil || claimed == nil || claimed.ID != running.ID {
		t.Fatalf("unexpected claim %#v, %v", claimed, err)
	}

	got, err := store.RequestCancel(ctx, pending.ID)
	if err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}
	if got.Status != generation.StatusCancelled || got.ErrorMessage != queue.CancelReason {
		t.Fatalf("pending run not cancelled: %#v", got)
	}

	got, err = store.RequestCancel(ctx, running.ID)
	if err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}
	if got.Status != generation.StatusGenerating || !got.CancelRequested {
		t.Fatalf("in-flight run should be flagged only: %#v", got)
	}

	if _, err := store.RequestCancel(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestCancelFlagsRunClaimedElsewhere(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	worker := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i := range 20 {
		run := testsupport.NewRun(t, store, testsupport.Request(fmt.Sprintf("race %d", i)), 3)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := worker.Claim(ctx, run.ID); err != nil && !errors.Is(err, services.ErrNotFound) {
				t.Errorf("Claim: %v", err)
			}
		}()
		if _, err := store.RequestCancel(ctx, run.ID); err != nil {
			t.Fatalf("RequestCancel: %v", err)
		}
		wg.Wait()

		got, err := store.Lookup(ctx, run.ID)
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		switch got.Status {
		case generation.StatusCancelled:
		case generation.StatusGenerating:
			if !got.CancelRequested {
				t.Fatalf("run %s claimed by another worker lost its cancel request", run.ID)
			}
		default:
			t.Fatalf("unexpected status %s", got.Status)
		}
	}

	claimed := testsupport.NewRun(t, store, testsupport.Request("claimed"), 3)
	if _, err := worker.Claim(ctx, claimed.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	got, err := store.RequestCancel(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if got.Status != generation.StatusGenerating || !got.CancelRequested {
		t.Fatalf("run claimed by another handle should be flagged: %#v", got)
	}
}

func TestReclaimStale(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	stale := testsupport.NewRun(t, store, testsupport.Request("stale"), 3)
	if _, err := store.NextPending(ctx); err != nil {
		t.Fatalf("NextPending failed: %v", err)
	}
	if err := store.UpdateProgress(ctx, stale.ID, queue.Progress{Attempt: 2, Stage: "mastering", Threshold: 0.6, TotalCost: 0.3}); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if err := store.AppendAttempt(ctx, stale.ID, generation.AttemptRecord{Attempt: 1, Outcome: generation.OutcomeRegenerate}); err != nil {
		t.Fatalf("AppendAttempt failed: %v", err)
	}

	count, err := store.ReclaimStale(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("fresh heartbeat should not be reclaimed, got %d", count)
	}

	count, err = store.ReclaimStale(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reclaimed run, got %d", count)
	}
	got, _ := store.GetByID(ctx, stale.ID)
	if got.Status != generation.StatusPending || got.Attempt != 0 || got.Stage != "" || got.Threshold != 0.7 || got.TotalCost != 0 {
		t.Fatalf("reclaimed run not reset: %#v", got)
	}
	attempts, _ := store.Attempts(ctx, stale.ID)
	if len(attempts) != 0 {
		t.Fatalf("partial trail should be discarded, got %d", len(attempts))
	}
}

func TestResetInFlightHonoursCancelFlag(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	a := testsupport.NewRun(t, store, testsupport.Request("a"), 3)
	b := testsupport.NewRun(t, store, testsupport.Request("b"), 3)
	for range 2 {
		if _, err := store.NextPending(ctx); err != nil {
			t.Fatalf("NextPending failed: %v", err)
		}
	}
	if _, err := store.RequestCancel(ctx, b.ID); err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}

	count, err := store.ResetInFlight(ctx)
	if err != nil {
		t.Fatalf("ResetInFlight failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 in-flight runs handled, got %d", count)
	}
	gotA, _ := store.GetByID(ctx, a.ID)
	gotB, _ := store.GetByID(ctx, b.ID)
	if gotA.Status != generation.StatusPending {
		t.Fatalf("run a status = %s, want pending", gotA.Status)
	}
	if gotB.Status != generation.StatusCancelled {
		t.Fatalf("run b status = %s, want cancelled", gotB.Status)
	}
}

func TestStatsListAndClearFinished(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	done := testsupport.NewRun(t, store, testsupport.Request("done"), 1)
	testsupport.NewRun(t, store, testsupport.Request("waiting"), 1)
	if _, err := store.NextPending(ctx); err != nil {
		t.Fatalf("NextPending failed: %v", err)
	}
	if err := store.Finish(ctx, done.ID, generation.Result{Status: generation.StatusBestEffort, AttemptsUsed: 1, QualityScore: 0.4}); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[generation.StatusBestEffort] != 1 || stats[generation.StatusPending] != 1 || stats.Total() != 2 || stats.Active() != 1 {
		t.Fatalf("unexpected stats %#v", stats)
	}

	pending, err := store.List(ctx, generation.StatusPending)
	if err != nil || len(pending) != 1 || pending[0].Request.Prompt != "waiting" {
		t.Fatalf("unexpected pending list %#v, %v", pending, err)
	}
	all, err := store.List(ctx)
	if err != nil || len(all) != 2 || all[0].ID != done.ID {
		t.Fatalf("unexpected full list %#v, %v", all, err)
	}

	removed, err := store.ClearFinished(ctx)
	if err != nil {
		t.Fatalf("ClearFinished failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if got, _ := store.GetByID(ctx, done.ID); got != nil {
		t.Fatal("finished run should be deleted")
	}
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	run := testsupport.NewRun(t, store, testsupport.Request("kept"), 1)
	store.Close()

	reopened, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.GetByID(context.Background(), run.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID after reopen = %v, %v", got, err)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.ExecForTest(context.Background(), "PRAGMA user_version = 999"); err != nil {
		t.Fatalf("exec: %v", err)
	}
	store.Close()

	if _, err := queue.Open(cfg); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestClaimSpecificRun(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewRun(t, store, testsupport.Request("older"), 1)
	target := testsupport.NewRun(t, store, testsupport.Request("target"), 1)

	claimed, err := store.Claim(ctx, target.ID)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed == nil || claimed.ID != target.ID || claimed.Status != generation.StatusGenerating {
		t.Fatalf("unexpected claim %#v", claimed)
	}
	again, err := store.Claim(ctx, target.ID)
	if err != nil || again != nil {
		t.Fatalf("second claim should find nothing, got %#v, %v", again, err)
	}
}
