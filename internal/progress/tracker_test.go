package progress_test

import (
	"sync"
	"testing"

	"aurax/internal/generation"
	"aurax/internal/progress"
)

func TestTrackerLifecycle(t *testing.T) {
	tracker := progress.NewTracker("run-1", 3, 0.7)
	snap := tracker.Snapshot()
	if snap.Status != generation.StatusPending || snap.MaxAttempts != 3 || snap.StageCount != 6 {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}

	state := generation.NewAttemptState(3, 0.7)
	state.CurrentStage = "mixing"
	tracker.Observe(state)
	snap = tracker.Snapshot()
	if snap.Status != generation.StatusGenerating || snap.Stage != "mixing" || snap.StageIndex != 4 {
		t.Fatalf("unexpected generating snapshot %+v", snap)
	}
	if got := snap.Percent(); got <= 0 || got >= 100 {
		t.Fatalf("percent = %v", got)
	}

	score := 0.82
	tracker.Finish(generation.StatusCompleted, state, &score, "")
	snap = tracker.Snapshot()
	if snap.Status != generation.StatusCompleted || snap.QualityScore == nil || *snap.QualityScore != 0.82 {
		t.Fatalf("unexpected terminal snapshot %+v", snap)
	}
	if snap.Percent() != 100 {
		t.Fatalf("terminal percent = %v", snap.Percent())
	}

	state.CurrentStage = "generation"
	tracker.Observe(state)
	if after := tracker.Snapshot(); after.Status != generation.StatusCompleted {
		t.Fatalf("terminal snapshot was overwritten: %+v", after)
	}
}

func TestSnapshotIsIsolatedFromLaterUpdates(t *testing.T) {
	tracker := progress.NewTracker("run-2", 2, 0.5)
	score := 0.3
	tracker.Update(func(s *progress.Snapshot) { s.QualityScore = &score })
	first := tracker.Snapshot()
	tracker.Update(func(s *progress.Snapshot) { *s.QualityScore = 0.9 })
	if *first.QualityScore != 0.3 {
		t.Fatalf("earlier snapshot mutated: %v", *first.QualityScore)
	}
}

func TestConcurrentReadersNeverSeeTornAttempt(t *testing.T) {
	tracker := progress.NewTracker("run-3", 1000, 0.7)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := tracker.Snapshot()
				if snap.Attempt > snap.MaxAttempts {
					t.Errorf("attempt %d exceeds max %d", snap.Attempt, snap.MaxAttempts)
					return
				}
			}
		}()
	}
	state := generation.NewAttemptState(1000, 0.7)
	for state.Advance(0.0001) {
		tracker.Observe(state)
	}
	close(stop)
	wg.Wait()
}

func TestRegistry(t *testing.T) {
	reg := progress.NewRegistry()
	reg.Add("a", progress.NewTracker("a", 1, 0.5))
	reg.Add("b", progress.NewTracker("b", 1, 0.5))
	if _, ok := reg.Get("a"); !ok {
		t.Fatal("expected tracker a")
	}
	if len(reg.Snapshots()) != 2 {
		t.Fatal("expected two snapshots")
	}
	reg.Remove("a")
	if _, ok := reg.Get("a"); ok {
		t.Fatal("tracker a should be removed")
	}
}
