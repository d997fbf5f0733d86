package recovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"carousel/internal/config"
)

// Store manages recovery flags backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const (
	keyMonitoringActive      = "monitoring_active"
	keyMonitoringStartedAt   = "monitoring_started_at"
	keyCompletionPhaseActive = "completion_phase_active"
)

// Record is a point-in-time view of the persisted recovery flags.
type Record struct {
	MonitoringActive      bool
	MonitoringStartedAt   time.Time
	CompletionPhaseActive bool
}

// Open initializes or connects to the recovery database under the data dir.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "recovery.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS recovery_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`
	if err := s.execWithoutResultRetry(ctx, schema); err != nil {
		return fmt.Errorf("init recovery schema: %w", err)
	}
	return nil
}

// SaveMonitoring marks job monitoring active as of now.
func (s *Store) SaveMonitoring(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.setValue(ctx, keyMonitoringActive, "1"); err != nil {
		return err
	}
	return s.setValue(ctx, keyMonitoringStartedAt, now)
}

// ClearMonitoring removes the monitoring flags.
func (s *Store) ClearMonitoring(ctx context.Context) error {
	if err := s.deleteValue(ctx, keyMonitoringActive); err != nil {
		return err
	}
	return s.deleteValue(ctx, keyMonitoringStartedAt)
}

// SaveCompletionPhase marks the job-completion phase active.
func (s *Store) SaveCompletionPhase(ctx context.Context) error {
	return s.setValue(ctx, keyCompletionPhaseActive, "1")
}

// ClearCompletionPhase removes the completion-phase flag.
func (s *Store) ClearCompletionPhase(ctx context.Context) error {
	return s.deleteValue(ctx, keyCompletionPhaseActive)
}

// Snapshot reads all recovery flags in one pass.
func (s *Store) Snapshot(ctx context.Context) (Record, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM recovery_state`)
	if err != nil {
		return Record{}, fmt.Errorf("read recovery state: %w", err)
	}
	defer rows.Close()

	var rec Record
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Record{}, fmt.Errorf("scan recovery state: %w", err)
		}
		switch key {
		case keyMonitoringActive:
			rec.MonitoringActive = value == "1"
		case keyCompletionPhaseActive:
			rec.CompletionPhaseActive = value == "1"
		case keyMonitoringStartedAt:
			if ts, parseErr := time.Parse(time.RFC3339Nano, value); parseErr == nil {
				rec.MonitoringStartedAt = ts
			}
		}
	}
	if err := rows.Err(); err != nil {
		return Record{}, fmt.Errorf("iterate recovery state: %w", err)
	}
	return rec, nil
}

// MonitoringFresh reports whether a monitoring flag is set and younger than
// staleAfter. A set flag with an unparsable or missing timestamp is stale.
func (s *Store) MonitoringFresh(ctx context.Context, staleAfter time.Duration) (bool, error) {
	rec, err := s.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	if !rec.MonitoringActive {
		return false, nil
	}
	if rec.MonitoringStartedAt.IsZero() {
		return false, nil
	}
	return time.Since(rec.MonitoringStartedAt) <= staleAfter, nil
}

// ClearStaleMonitoring removes a monitoring flag that has outlived staleAfter.
// Returns true when a stale flag was cleared.
func (s *Store) ClearStaleMonitoring(ctx context.Context, staleAfter time.Duration) (bool, error) {
	rec, err := s.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	if !rec.MonitoringActive {
		return false, nil
	}
	fresh := !rec.MonitoringStartedAt.IsZero() && time.Since(rec.MonitoringStartedAt) <= staleAfter
	if fresh {
		return false, nil
	}
	if err := s.ClearMonitoring(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) setValue(ctx context.Context, key, value string) error {
	const query = `
INSERT INTO recovery_state (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(ctx, query, key, value, now); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

func (s *Store) deleteValue(ctx context.Context, key string) error {
	if err := s.execWithoutResultRetry(ctx, `DELETE FROM recovery_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
