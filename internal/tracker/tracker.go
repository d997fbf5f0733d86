package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"carousel/internal/automation"
	"carousel/internal/logging"
	"carousel/internal/pipeline"
)

// JobLister is the slice of the automation driver the tracker needs.
type JobLister interface {
	ListJobs(ctx context.Context) ([]automation.Job, error)
}

// Options configures tracker timing and thresholds.
type Options struct {
	Interval        time.Duration
	MaxAttempts     int
	ErrorStreakWarn int
	Markers         Markers
}

// Tracker polls the external job listing and drives the stage machine for
// the current run. At most one job is tracked at a time; at most one poll is
// in flight at a time.
type Tracker struct {
	lister  JobLister
	machine *pipeline.Machine
	logger  *slog.Logger
	opts    Options

	// OnCompleted fires exactly once per run, after the tracked job is
	// classified completed and the stage machine has entered Download.
	OnCompleted func(ctx context.Context)
	// OnFailed fires when the run terminates from inside the poll loop,
	// after the stage machine has failed. reason distinguishes the job
	// reporting failure from the attempt budget running out.
	OnFailed func(reason string)

	polling atomic.Bool

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	attempts    int
	errorStreak int
	lastSnap    Snapshot
}

// New constructs a tracker. The stage machine carries the run state the
// tracker mutates (tracked title, download guard).
func New(lister JobLister, machine *pipeline.Machine, logger *slog.Logger, opts Options) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 150
	}
	if opts.ErrorStreakWarn <= 0 {
		opts.ErrorStreakWarn = 3
	}
	return &Tracker{
		lister:  lister,
		machine: machine,
		logger:  logging.NewComponentLogger(logger, "tracker"),
		opts:    opts,
	}
}

// Start launches the poll loop. It returns an error when already running.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("tracker already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.running = true
	t.attempts = 0
	t.errorStreak = 0

	t.wg.Add(1)
	go t.loop(runCtx)

	t.logger.Info("job monitoring started",
		logging.Duration("interval", t.opts.Interval),
		logging.Int("max_attempts", t.opts.MaxAttempts),
		logging.String(logging.FieldEventType, "monitoring_started"),
	)
	return nil
}

// Stop terminates the poll loop and waits for the in-flight poll to finish.
// Safe to call whether or not the tracker is running.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	cancel := t.cancel
	t.running = false
	t.cancel = nil
	t.mu.Unlock()

	cancel()
	t.wg.Wait()
	t.logger.Info("job monitoring stopped",
		logging.String(logging.FieldEventType, "monitoring_stopped"),
	)
}

// Running reports whether the poll loop is active.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// LastSnapshot returns the most recent job listing observation.
func (t *Tracker) LastSnapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.lastSnap
	snap.Jobs = append([]automation.Job(nil), t.lastSnap.Jobs...)
	return snap
}

func (t *Tracker) loop(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if done := t.Poll(ctx); done {
			t.mu.Lock()
			t.running = false
			if t.cancel != nil {
				t.cancel()
				t.cancel = nil
			}
			t.mu.Unlock()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.opts.Interval):
		}
	}
}

// Poll performs one observation of the job listing. It returns true when the
// run reached a terminal outcome and polling must stop. A Poll that fires
// while another is still in flight is skipped, not queued.
func (t *Tracker) Poll(ctx context.Context) bool {
	if !t.polling.CompareAndSwap(false, true) {
		t.logger.Debug("poll skipped: previous poll still in flight")
		return false
	}
	defer t.polling.Store(false)

	jobs, err := t.lister.ListJobs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		return t.handleListError(err)
	}

	snap := Snapshot{Jobs: jobs, At: time.Now().UTC()}
	t.mu.Lock()
	t.errorStreak = 0
	t.attempts++
	attempts := t.attempts
	t.lastSnap = snap
	t.mu.Unlock()

	if attempts > t.opts.MaxAttempts {
		reason := fmt.Sprintf("job did not complete within %d polls", t.opts.MaxAttempts)
		t.logger.Error("monitoring attempt budget exhausted",
			logging.Int("attempts", attempts),
			logging.String(logging.FieldEventType, "monitoring_timeout"),
			logging.String(logging.FieldErrorHint, "check the reconstruction service job queue"),
		)
		t.machine.Fail(reason)
		t.notifyFailed(reason)
		return true
	}

	title := t.machine.TrackedJobTitle()
	if title == "" {
		return t.adoptJob(snap)
	}
	return t.followJob(ctx, snap, title)
}

// adoptJob scans the snapshot for the first job that looks like ours: the
// run just submitted one, so the first queued or processing entry wins.
func (t *Tracker) adoptJob(snap Snapshot) bool {
	for _, job := range snap.Jobs {
		class := t.opts.Markers.Classify(job.StatusText)
		if class != ClassQueued && class != ClassProcessing {
			continue
		}
		if !t.machine.SetTrackedJobTitle(job.Title) {
			continue
		}
		t.logger.Info("adopted external job",
			logging.String(logging.FieldJobTitle, job.Title),
			logging.String("status", class.String()),
			logging.String(logging.FieldEventType, "job_adopted"),
		)
		t.machine.Advance(pipeline.StageProcess, pipeline.StatusActive, "reconstruction in progress")
		return false
	}
	t.logger.Debug("no adoptable job in listing", logging.Int("jobs", len(snap.Jobs)))
	return false
}

func (t *Tracker) followJob(ctx context.Context, snap Snapshot, title string) bool {
	job, found := snap.Find(title)
	if !found {
		// Listing refreshes lag job creation; missing is transient.
		t.logger.Debug("tracked job absent from listing",
			logging.String(logging.FieldJobTitle, title),
			logging.Int("jobs", len(snap.Jobs)),
		)
		return false
	}

	switch class := t.opts.Markers.Classify(job.StatusText); class {
	case ClassQueued, ClassProcessing:
		t.machine.Advance(pipeline.StageProcess, pipeline.StatusActive, "reconstruction in progress")
		return false
	case ClassFailed:
		reason := fmt.Sprintf("reconstruction job failed: %s", job.StatusText)
		t.logger.Error("tracked job reported failure",
			logging.String(logging.FieldJobTitle, title),
			logging.String("status_text", job.StatusText),
			logging.String(logging.FieldEventType, "job_failed"),
		)
		t.machine.Fail(reason)
		t.notifyFailed(reason)
		return true
	case ClassCompleted:
		if !t.machine.TriggerDownload() {
			// Another path already initiated the download.
			return true
		}
		t.logger.Info("tracked job completed",
			logging.String(logging.FieldJobTitle, title),
			logging.String(logging.FieldEventType, "job_completed"),
		)
		t.machine.Advance(pipeline.StageDownload, pipeline.StatusActive, "downloading artifact")
		if t.OnCompleted != nil {
			t.OnCompleted(ctx)
		}
		return true
	default:
		t.logger.Debug("tracked job status unrecognized",
			logging.String(logging.FieldJobTitle, title),
			logging.String("status_text", job.StatusText),
		)
		return false
	}
}

// handleListError absorbs transient listing failures; the service is assumed
// eventually consistent, so an error streak only ever escalates to a warning.
func (t *Tracker) handleListError(err error) bool {
	t.mu.Lock()
	t.errorStreak++
	streak := t.errorStreak
	t.mu.Unlock()

	if streak >= t.opts.ErrorStreakWarn && streak%t.opts.ErrorStreakWarn == 0 {
		t.logger.Warn("job listing unavailable",
			logging.Error(err),
			logging.Int("consecutive_errors", streak),
			logging.String(logging.FieldEventType, "listing_unavailable"),
			logging.String(logging.FieldImpact, "job status unknown until the listing recovers"),
		)
	} else {
		t.logger.Debug("job listing read failed", logging.Error(err))
	}
	return false
}

func (t *Tracker) notifyFailed(reason string) {
	if t.OnFailed != nil {
		t.OnFailed(reason)
	}
}
