package automation_test

import (
	"context"
	"errors"
	"testing"

	"carousel/internal/automation"
)

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	calls := 0
	err := automation.Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return automation.ErrElementNotFound
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryAbortsOnHardFailure(t *testing.T) {
	hard := errors.New("credentials rejected")
	calls := 0
	err := automation.Retry(context.Background(), func() error {
		calls++
		return hard
	})
	if !errors.Is(err, hard) {
		t.Fatalf("expected hard failure, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt for hard failure, got %d", calls)
	}
}

func TestRetryValueReturnsData(t *testing.T) {
	calls := 0
	jobs, err := automation.RetryValue(context.Background(), func() ([]automation.Job, error) {
		calls++
		if calls == 1 {
			return nil, automation.ErrPageUnreachable
		}
		return []automation.Job{{Title: "T1", StatusText: "Processing.."}}, nil
	})
	if err != nil {
		t.Fatalf("RetryValue returned error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Title != "T1" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func TestTransientClassification(t *testing.T) {
	if !automation.Transient(automation.ErrPageUnreachable) {
		t.Fatal("page unreachable should be transient")
	}
	if !automation.Transient(automation.ErrElementNotFound) {
		t.Fatal("element not found should be transient")
	}
	if automation.Transient(errors.New("boom")) {
		t.Fatal("arbitrary errors are not transient")
	}
}
