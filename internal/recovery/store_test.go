package recovery

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"carousel/internal/config"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InboundDir = filepath.Join(base, "inbound")
	cfg.Paths.OutboundDir = filepath.Join(base, "outbound")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	store, err := Open(&cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMonitoringRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rec, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if rec.MonitoringActive || rec.CompletionPhaseActive {
		t.Fatalf("expected empty record, got %+v", rec)
	}

	if err := store.SaveMonitoring(ctx); err != nil {
		t.Fatalf("SaveMonitoring failed: %v", err)
	}
	rec, err = store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if !rec.MonitoringActive {
		t.Fatal("expected monitoring active")
	}
	if time.Since(rec.MonitoringStartedAt) > time.Minute {
		t.Fatalf("unexpected monitoring start: %v", rec.MonitoringStartedAt)
	}

	if err := store.ClearMonitoring(ctx); err != nil {
		t.Fatalf("ClearMonitoring failed: %v", err)
	}
	rec, _ = store.Snapshot(ctx)
	if rec.MonitoringActive {
		t.Fatal("expected monitoring cleared")
	}
}

func TestCompletionPhaseRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.SaveCompletionPhase(ctx); err != nil {
		t.Fatalf("SaveCompletionPhase failed: %v", err)
	}
	rec, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if !rec.CompletionPhaseActive {
		t.Fatal("expected completion phase active")
	}
	if err := store.ClearCompletionPhase(ctx); err != nil {
		t.Fatalf("ClearCompletionPhase failed: %v", err)
	}
	rec, _ = store.Snapshot(ctx)
	if rec.CompletionPhaseActive {
		t.Fatal("expected completion phase cleared")
	}
}

func TestClearStaleMonitoring(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	staleAfter := 2 * time.Minute

	// Three minutes old: cleared without resuming.
	backdate(t, store, 3*time.Minute)
	cleared, err := store.ClearStaleMonitoring(ctx, staleAfter)
	if err != nil {
		t.Fatalf("ClearStaleMonitoring failed: %v", err)
	}
	if !cleared {
		t.Fatal("expected stale flag to be cleared")
	}
	rec, _ := store.Snapshot(ctx)
	if rec.MonitoringActive {
		t.Fatal("expected monitoring flag removed")
	}

	// Thirty seconds old: left untouched.
	backdate(t, store, 30*time.Second)
	cleared, err = store.ClearStaleMonitoring(ctx, staleAfter)
	if err != nil {
		t.Fatalf("ClearStaleMonitoring failed: %v", err)
	}
	if cleared {
		t.Fatal("fresh flag must not be cleared")
	}
	rec, _ = store.Snapshot(ctx)
	if !rec.MonitoringActive {
		t.Fatal("expected fresh monitoring flag preserved")
	}

	fresh, err := store.MonitoringFresh(ctx, staleAfter)
	if err != nil {
		t.Fatalf("MonitoringFresh failed: %v", err)
	}
	if !fresh {
		t.Fatal("expected fresh monitoring flag reported fresh")
	}
}

func TestMonitoringWithoutTimestampIsStale(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.setValue(ctx, keyMonitoringActive, "1"); err != nil {
		t.Fatalf("setValue failed: %v", err)
	}
	fresh, err := store.MonitoringFresh(ctx, 2*time.Minute)
	if err != nil {
		t.Fatalf("MonitoringFresh failed: %v", err)
	}
	if fresh {
		t.Fatal("flag without timestamp must be stale")
	}
	cleared, err := store.ClearStaleMonitoring(ctx, 2*time.Minute)
	if err != nil {
		t.Fatalf("ClearStaleMonitoring failed: %v", err)
	}
	if !cleared {
		t.Fatal("expected timestampless flag cleared")
	}
}

func backdate(t *testing.T, store *Store, age time.Duration) {
	t.Helper()
	ctx := context.Background()
	if err := store.setValue(ctx, keyMonitoringActive, "1"); err != nil {
		t.Fatalf("setValue failed: %v", err)
	}
	ts := time.Now().UTC().Add(-age).Format(time.RFC3339Nano)
	if err := store.setValue(ctx, keyMonitoringStartedAt, ts); err != nil {
		t.Fatalf("setValue failed: %v", err)
	}
}
