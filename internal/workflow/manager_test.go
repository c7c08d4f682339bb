package workflow_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"aurax/internal/config"
	"aurax/internal/filestore"
	"aurax/internal/generation"
	"aurax/internal/notifications"
	"aurax/internal/pipeline"
	"aurax/internal/queue"
	"aurax/internal/services"
	"aurax/internal/stage"
	"aurax/internal/testsupport"
	"aurax/internal/workflow"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   map[notifications.Event]notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if r.last == nil {
		r.last = make(map[notifications.Event]notifications.Payload)
	}
	r.last[event] = payload
	return nil
}

func (r *recordingNotifier) payload(event notifications.Event) (notifications.Payload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.last[event]
	return p, ok
}

type managerFixture struct {
	cfg      *config.Config
	store    *queue.Store
	manager  *workflow.Manager
	notifier *recordingNotifier
}

func newManager(t *testing.T, fake *testsupport.FakeStages, opts ...testsupport.ConfigOption) managerFixture {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithStorageBackend(config.StorageLocal)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)

	inv, err := stage.NewInvoker(fake.Set(), cfg.Pipeline.EnhancementSuffix)
	if err != nil {
		t.Fatalf("NewInvoker: %v", err)
	}
	orch := pipeline.New(inv, pipeline.SettingsFromConfig(cfg), pipeline.WithSleeper(noSleep))
	ctl := workflow.NewController(orch, workflow.ControllerConfigFrom(cfg), nil)

	files, err := filestore.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	notifier := &recordingNotifier{}
	mgr := workflow.NewManager(cfg, store, ctl, nil, workflow.WithFileStore(files), workflow.WithNotifier(notifier))
	return managerFixture{cfg: cfg, store: store, manager: mgr, notifier: notifier}
}

func waitForStatus(t *testing.T, store *queue.Store, id string, want ...generation.RunStatus) *queue.Run {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if run != nil {
			for _, status := range want {
				if run.Status == status {
					return run
				}
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach %v", id, want)
	return nil
}

func TestManagerRunPersistsResult(t *testing.T) {
	fake := &testsupport.FakeStages{Scores: []float64{0.9}}
	fx := newManager(t, fake)
	ctx := context.Background()

	run, result, err := fx.manager.Run(ctx, generation.Draft{Prompt: "upbeat synthwave"}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != generation.StatusCompleted {
		t.Fatalf("status = %s, want completed", result.Status)
	}
	if len(result.Payload.Data) == 0 {
		t.Fatal("expected payload bytes on the returned result")
	}

	stored, err := fx.store.Lookup(ctx, run.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if stored.Status != generation.StatusCompleted || stored.Attempt != 1 {
		t.Fatalf("stored status=%s attempt=%d", stored.Status, stored.Attempt)
	}
	if stored.QualityScore == nil || *stored.QualityScore != 0.9 {
		t.Fatalf("stored score = %v", stored.QualityScore)
	}
	if !strings.HasSuffix(stored.PayloadRef, "master.wav") {
		t.Fatalf("payload ref = %q", stored.PayloadRef)
	}
	data, err := os.ReadFile(stored.PayloadRef)
	if err != nil {
		t.Fatalf("read stored payload: %v", err)
	}
	if string(data) != "raw-1:upbeat synthwave|arranged|mixed|mastered" {
		t.Fatalf("stored payload = %q", data)
	}
	if stored.LogPath == "" {
		t.Fatal("expected run log path to be recorded")
	}
	if _, err := os.Stat(stored.LogPath); err != nil {
		t.Fatalf("run log missing: %v", err)
	}
	if stored.Result == nil || stored.Result.AttemptsUsed != 1 {
		t.Fatalf("stored result = %+v", stored.Result)
	}

	attempts, err := fx.manager.Attempts(ctx, run.ID)
	if err != nil {
		t.Fatalf("Attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].Outcome != generation.OutcomeAccepted {
		t.Fatalf("attempts = %+v", attempts)
	}

	payload, ok := fx.notifier.payload(notifications.EventRunCompleted)
	if !ok {
		t.Fatal("expected completion notification")
	}
	if payload["run_id"] != run.ID {
		t.Fatalf("notification run_id = %v", payload["run_id"])
	}
}

func TestManagerRunBestEffortNotifies(t *testing.T) {
	fake := &testsupport.FakeStages{Scores: []float64{0.4}}
	fx := newManager(t, fake)

	_, result, err := fx.manager.Run(context.Background(), generation.Draft{Prompt: "ambient drone"}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != generation.StatusBestEffort || result.AttemptsUsed != 3 {
		t.Fatalf("status=%s attempts=%d", result.Status, result.AttemptsUsed)
	}
	payload, ok := fx.notifier.payload(notifications.EventRunBestEffort)
	if !ok {
		t.Fatal("expected best effort notification")
	}
	if payload["attempts"] != 3 {
		t.Fatalf("notification attempts = %v", payload["attempts"])
	}
}

func TestManagerRunStoresStems(t *testing.T) {
	fake := &testsupport.FakeStages{Scores: []float64{0.9}}
	fx := newManager(t, fake)

	_, result, err := fx.manager.Run(context.Background(), generation.Draft{Prompt: "breakbeat", SeparateStems: true}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Stems) != 4 {
		t.Fatalf("stems = %d, want 4", len(result.Stems))
	}
	for _, stem := range result.Stems {
		if !strings.HasSuffix(stem.Payload.URL, stem.Name+".wav") {
			t.Fatalf("stem %s url = %q", stem.Name, stem.Payload.URL)
		}
		if _, err := os.Stat(stem.Payload.URL); err != nil {
			t.Fatalf("stem %s not stored: %v", stem.Name, err)
		}
	}
}

func TestManagerRunFailureIsRecorded(t *testing.T) {
	exhausted := services.Wrap(services.ErrResourceExhausted, "", "compose", "gpu out of memory", nil)
	fake := &testsupport.FakeStages{
		Scores:   []float64{0.9},
		Failures: map[stage.Name][]error{stage.Generation: {exhausted}},
	}
	fx := newManager(t, fake)

	run, result, err := fx.manager.Run(context.Background(), generation.Draft{Prompt: "x"}, 0)
	if !errors.Is(err, services.ErrNonRetryable) {
		t.Fatalf("err = %v, want non-retryable", err)
	}
	if result.Status != generation.StatusFailed {
		t.Fatalf("status = %s", result.Status)
	}
	stored, lookupErr := fx.store.Lookup(context.Background(), run.ID)
	if lookupErr != nil {
		t.Fatalf("Lookup: %v", lookupErr)
	}
	if stored.Status != generation.StatusFailed || stored.ErrorKind != services.KindNonRetryable {
		t.Fatalf("stored status=%s kind=%s", stored.Status, stored.ErrorKind)
	}
	if stored.QualityScore != nil {
		t.Fatalf("failed run should not carry a score, got %v", *stored.QualityScore)
	}
	if status := fx.manager.Status(context.Background()); status.LastError == "" || status.LastRunID != run.ID {
		t.Fatalf("status = %+v", status)
	}
	if _, ok := fx.notifier.payload(notifications.EventRunFailed); !ok {
		t.Fatal("expected failure notification")
	}
}

func TestManagerSubmitAppliesDefaults(t *testing.T) {
	fx := newManager(t, &testsupport.FakeStages{})
	ctx := context.Background()

	run, err := fx.manager.Submit(ctx, generation.Draft{Prompt: "  lofi beats  "}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if run.Status != generation.StatusPending {
		t.Fatalf("status = %s", run.Status)
	}
	req := run.Request
	if req.Prompt != "lofi beats" || req.Style != "electronic" || req.Duration != 60 || req.QualityThreshold != 0.7 {
		t.Fatalf("request = %+v", req)
	}
	if req.Temperature == nil || *req.Temperature != 0.8 || req.TopK == nil || *req.TopK != 250 {
		t.Fatalf("sampling defaults not applied: %+v", req)
	}
	if run.MaxAttempts != fx.cfg.Pipeline.MaxAttempts {
		t.Fatalf("max attempts = %d", run.MaxAttempts)
	}

	if _, err := fx.manager.Submit(ctx, generation.Draft{Prompt: "   "}, 0); !errors.Is(err, services.ErrInvalidRequest) {
		t.Fatalf("blank prompt err = %v, want invalid request", err)
	}
	bad := 1.5
	if _, err := fx.manager.Submit(ctx, generation.Draft{Prompt: "x", QualityThreshold: &bad}, 0); !errors.Is(err, services.ErrInvalidRequest) {
		t.Fatalf("threshold 1.5 err = %v, want invalid request", err)
	}
}

func TestManagerLanesProcessQueue(t *testing.T) {
	fake := &testsupport.FakeStages{Scores: []float64{0.9}}
	fx := newManager(t, fake)
	ctx := context.Background()

	first, err := fx.manager.Submit(ctx, generation.Draft{Prompt: "first"}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second, err := fx.manager.Submit(ctx, generation.Draft{Prompt: "second"}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := fx.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fx.manager.Stop()
	if err := fx.manager.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	waitForStatus(t, fx.store, first.ID, generation.StatusCompleted)
	waitForStatus(t, fx.store, second.ID, generation.StatusCompleted)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := fx.notifier.payload(notifications.EventQueueCompleted); ok {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if _, ok := fx.notifier.payload(notifications.EventQueueStarted); !ok {
		t.Fatal("expected queue started notification")
	}
	if _, ok := fx.notifier.payload(notifications.EventQueueCompleted); !ok {
		t.Fatal("expected queue completed notification")
	}

	snap, err := fx.manager.Progress(ctx, first.ID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if snap.Status != generation.StatusCompleted || snap.Percent() != 100 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestManagerCancelPendingRun(t *testing.T) {
	fx := newManager(t, &testsupport.FakeStages{})
	ctx := context.Background()

	run, err := fx.manager.Submit(ctx, generation.Draft{Prompt: "x"}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cancelled, err := fx.manager.Cancel(ctx, run.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != generation.StatusCancelled || cancelled.ErrorMessage != queue.CancelReason {
		t.Fatalf("cancelled run = %+v", cancelled)
	}

	if _, err := fx.manager.Cancel(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing run err = %v, want not found", err)
	}
}

func TestManagerCancelInFlightRun(t *testing.T) {
	fake := &testsupport.FakeStages{
		Scores: []float64{0.9},
		Delays: map[stage.Name]time.Duration{stage.Generation: 30 * time.Second},
	}
	fx := newManager(t, fake)
	ctx := context.Background()

	run, err := fx.manager.Submit(ctx, generation.Draft{Prompt: "slow"}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := fx.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fx.manager.Stop()

	waitForStatus(t, fx.store, run.ID, generation.StatusGenerating)
	deadline := time.Now().Add(5 * time.Second)
	for fake.Calls(stage.Generation) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := fx.manager.Cancel(ctx, run.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	final := waitForStatus(t, fx.store, run.ID, generation.StatusCancelled)
	if final.ErrorKind != services.KindCancelled || final.ErrorMessage != queue.CancelReason {
		t.Fatalf("cancelled run kind=%q message=%q", final.ErrorKind, final.ErrorMessage)
	}
	if _, ok := fx.notifier.payload(notifications.EventRunFailed); ok {
		t.Fatal("cancelled runs must not notify as failures")
	}
}

func TestManagerStopRequeuesInFlightRun(t *testing.T) {
	fake := &testsupport.FakeStages{
		Scores: []float64{0.9},
		Delays: map[stage.Name]time.Duration{stage.Generation: 30 * time.Second},
	}
	fx := newManager(t, fake)
	ctx := context.Background()

	run, err := fx.manager.Submit(ctx, generation.Draft{Prompt: "slow"}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := fx.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, fx.store, run.ID, generation.StatusGenerating)
	fx.manager.Stop()

	stored, err := fx.store.Lookup(ctx, run.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if stored.Status != generation.StatusPending || stored.Attempt != 0 {
		t.Fatalf("after stop status=%s attempt=%d, want pending/0", stored.Status, stored.Attempt)
	}
	attempts, err := fx.store.Attempts(ctx, run.ID)
	if err != nil {
		t.Fatalf("Attempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Fatalf("partial trail should be discarded, got %d", len(attempts))
	}
}

func TestManagerStatusReportsWorkersAndHealth(t *testing.T) {
	fx := newManager(t, &testsupport.FakeStages{})
	status := fx.manager.Status(context.Background())
	if status.Running {
		t.Fatal("manager should not report running before Start")
	}
	if status.Workers != fx.cfg.Pipeline.Workers {
		t.Fatalf("workers = %d, want %d", status.Workers, fx.cfg.Pipeline.Workers)
	}
	if h, ok := status.StageHealth[string(stage.Generation)]; !ok || !h.Ready {
		t.Fatalf("generation health = %+v", h)
	}
}
