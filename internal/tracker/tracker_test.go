package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carousel/internal/automation"
	"carousel/internal/bus"
	"carousel/internal/logging"
	"carousel/internal/pipeline"
	"carousel/internal/tracker"
)

type scriptedLister struct {
	mu        sync.Mutex
	snapshots [][]automation.Job
	errs      []error
	calls     int
}

func (l *scriptedLister) ListJobs(context.Context) ([]automation.Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.calls
	l.calls++
	if idx < len(l.errs) && l.errs[idx] != nil {
		return nil, l.errs[idx]
	}
	if idx >= len(l.snapshots) {
		if len(l.snapshots) == 0 {
			return nil, nil
		}
		return l.snapshots[len(l.snapshots)-1], nil
	}
	return l.snapshots[idx], nil
}

func newTestTracker(t *testing.T, lister tracker.JobLister, opts tracker.Options) (*tracker.Tracker, *pipeline.Machine, *bus.Hub) {
	t.Helper()
	hub := bus.NewHub(64)
	t.Cleanup(hub.Close)
	machine := pipeline.NewMachine(hub, nil, logging.NewNop())
	machine.Advance(pipeline.StageCapture, pipeline.StatusActive, "")
	return tracker.New(lister, machine, logging.NewNop(), opts), machine, hub
}

func countSteps(events []bus.Event, step bus.Step) int {
	n := 0
	for _, evt := range events {
		if evt.Step == step {
			n++
		}
	}
	return n
}

func TestLifecycleEmitsSingleProcessAndDownload(t *testing.T) {
	lister := &scriptedLister{snapshots: [][]automation.Job{
		{{Title: "T1", StatusText: "Queuing.."}},
		{{Title: "T1", StatusText: "Processing.."}},
		{{Title: "T1", StatusText: "Processing.."}},
		{{Title: "T1"}},
	}}
	tr, machine, hub := newTestTracker(t, lister, tracker.Options{Markers: testMarkers()})

	completed := 0
	tr.OnCompleted = func(context.Context) { completed++ }

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if done := tr.Poll(ctx); done {
			break
		}
	}

	if machine.TrackedJobTitle() != "T1" {
		t.Fatalf("expected tracked title T1, got %q", machine.TrackedJobTitle())
	}
	if machine.CurrentStage() != pipeline.StageDownload {
		t.Fatalf("expected download stage, got %v", machine.CurrentStage())
	}
	if completed != 1 {
		t.Fatalf("expected one completion handoff, got %d", completed)
	}

	events := hub.Tail(0)
	if n := countSteps(events, bus.StepProcessing); n != 1 {
		t.Fatalf("expected exactly one processing event, got %d", n)
	}
	if n := countSteps(events, bus.StepDownload); n != 1 {
		t.Fatalf("expected exactly one download event, got %d", n)
	}
	if machine.TriggerDownload() {
		t.Fatal("download guard should already be spent")
	}
}

func TestFailedJobStopsTrackingWithoutDownload(t *testing.T) {
	lister := &scriptedLister{snapshots: [][]automation.Job{
		{{Title: "T1", StatusText: "Queuing.."}},
		{{Title: "T1", StatusText: "Failed"}},
		{{Title: "T1"}},
	}}
	tr, machine, hub := newTestTracker(t, lister, tracker.Options{Markers: testMarkers()})

	var failReason string
	tr.OnFailed = func(reason string) { failReason = reason }
	downloads := 0
	tr.OnCompleted = func(context.Context) { downloads++ }

	ctx := context.Background()
	var done bool
	for i := 0; i < 3 && !done; i++ {
		done = tr.Poll(ctx)
	}

	if !done {
		t.Fatal("expected terminal outcome")
	}
	if machine.CurrentStage() != pipeline.StageFailed {
		t.Fatalf("expected failed stage, got %v", machine.CurrentStage())
	}
	if failReason == "" {
		t.Fatal("expected failure reason")
	}
	if downloads != 0 {
		t.Fatal("download must never fire after a failure")
	}
	if n := countSteps(hub.Tail(0), bus.StepDownload); n != 0 {
		t.Fatalf("expected no download events, got %d", n)
	}
}

func TestMissingTrackedJobIsTransient(t *testing.T) {
	lister := &scriptedLister{snapshots: [][]automation.Job{
		{{Title: "T1", StatusText: "Processing.."}},
		{}, // listing not refreshed yet
		{{Title: "T1", StatusText: "Processing.."}},
	}}
	tr, machine, _ := newTestTracker(t, lister, tracker.Options{Markers: testMarkers()})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if done := tr.Poll(ctx); done {
			t.Fatalf("poll %d should not be terminal", i)
		}
	}
	if machine.CurrentStage() != pipeline.StageProcess {
		t.Fatalf("expected process stage, got %v", machine.CurrentStage())
	}
}

func TestAttemptBudgetExhaustionFailsRun(t *testing.T) {
	lister := &scriptedLister{snapshots: [][]automation.Job{
		{{Title: "T1", StatusText: "Processing.."}},
	}}
	tr, machine, _ := newTestTracker(t, lister, tracker.Options{
		Markers:     testMarkers(),
		MaxAttempts: 3,
	})

	var failReason string
	tr.OnFailed = func(reason string) { failReason = reason }

	ctx := context.Background()
	var done bool
	for i := 0; i < 10 && !done; i++ {
		done = tr.Poll(ctx)
	}
	if !done {
		t.Fatal("expected budget exhaustion to terminate polling")
	}
	if machine.CurrentStage() != pipeline.StageFailed {
		t.Fatalf("expected failed stage, got %v", machine.CurrentStage())
	}
	if failReason == "" {
		t.Fatal("expected timeout reason")
	}
}

func TestListingErrorsAreSwallowed(t *testing.T) {
	boom := errors.New("page unavailable")
	lister := &scriptedLister{
		errs: []error{boom, boom, boom},
		snapshots: [][]automation.Job{
			nil, nil, nil,
			{{Title: "T1", StatusText: "Queuing.."}},
		},
	}
	tr, machine, _ := newTestTracker(t, lister, tracker.Options{Markers: testMarkers()})

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if done := tr.Poll(ctx); done {
			t.Fatalf("poll %d should not be terminal", i)
		}
	}
	if machine.TrackedJobTitle() != "T1" {
		t.Fatalf("expected recovery after errors, got title %q", machine.TrackedJobTitle())
	}
}

func TestStartStopLifecycle(t *testing.T) {
	lister := &scriptedLister{snapshots: [][]automation.Job{{}}}
	tr, _, _ := newTestTracker(t, lister, tracker.Options{Markers: testMarkers()})

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := tr.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	tr.Stop()
	if tr.Running() {
		t.Fatal("expected tracker stopped")
	}
	tr.Stop() // idempotent
}

type ctxCapturingLister struct {
	inner tracker.JobLister

	mu  sync.Mutex
	ctx context.Context
}

func (l *ctxCapturingLister) ListJobs(ctx context.Context) ([]automation.Job, error) {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()
	return l.inner.ListJobs(ctx)
}

func (l *ctxCapturingLister) captured() context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ctx
}

func TestTerminalPollReleasesLoopContext(t *testing.T) {
	lister := &ctxCapturingLister{inner: &scriptedLister{snapshots: [][]automation.Job{
		{{Title: "T1", StatusText: "Queuing.."}},
		{{Title: "T1"}},
	}}}
	tr, _, _ := newTestTracker(t, lister, tracker.Options{
		Markers:  testMarkers(),
		Interval: 5 * time.Millisecond,
	})

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && tr.Running() {
		time.Sleep(5 * time.Millisecond)
	}
	if tr.Running() {
		t.Fatal("tracker did not reach the terminal outcome")
	}

	loopCtx := lister.captured()
	if loopCtx == nil {
		t.Fatal("lister never saw a poll context")
	}
	select {
	case <-loopCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("loop context still live after terminal poll")
	}
}
