package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"carousel/internal/automation"
	"carousel/internal/logging"
	"carousel/internal/pipeline"
)

// Selector sets for the reconstruction service front end. Each list is tried
// in order; the service's markup drifts between releases, so every lookup
// carries fallbacks.
var (
	usernameSelectors = []string{`input[name="username"]`, `input[type="email"]`, `#login-username`}
	passwordSelectors = []string{`input[name="password"]`, `input[type="password"]`}
	signInSelectors   = []string{`button[type="submit"]`, `#login-submit`, `button.sign-in`}
	newScanSelectors  = []string{`#start-reconstruction`, `button[data-action="reconstruct"]`, `a.new-scan`}
	confirmSelectors  = []string{`button.confirm`, `button[type="submit"]`}
)

// authenticate signs in to the reconstruction service. An absent login form
// after a successful page load means the session is still valid.
func (m *Manager) authenticate(ctx context.Context) error {
	m.machine.Advance(pipeline.StageAuthenticate, pipeline.StatusActive, "signing in")

	if err := automation.Retry(ctx, func() error {
		return m.driver.Navigate(ctx, m.cfg.Automation.BaseURL)
	}); err != nil {
		return fmt.Errorf("open service: %w", err)
	}

	userField, err := m.driver.FindFirst(ctx, usernameSelectors)
	if err != nil {
		if errors.Is(err, automation.ErrElementNotFound) {
			m.logger.Info("no login form; session already authenticated")
			m.machine.Advance(pipeline.StageAuthenticate, pipeline.StatusCompleted, "session reused")
			return nil
		}
		return fmt.Errorf("locate login form: %w", err)
	}

	passField, err := m.driver.FindFirst(ctx, passwordSelectors)
	if err != nil {
		return fmt.Errorf("locate password field: %w", err)
	}
	if err := m.driver.FillField(ctx, userField, m.cfg.Automation.Username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}
	if err := m.driver.FillField(ctx, passField, m.cfg.Automation.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}

	if err := automation.Retry(ctx, func() error {
		signIn, err := m.driver.FindFirst(ctx, signInSelectors)
		if err != nil {
			return err
		}
		return m.driver.Click(ctx, signIn)
	}); err != nil {
		return fmt.Errorf("submit sign-in: %w", err)
	}

	m.machine.Advance(pipeline.StageAuthenticate, pipeline.StatusCompleted, "signed in")
	return nil
}

// capture submits the reconstruction job and grabs a best-effort screenshot
// for later sidecar association.
func (m *Manager) capture(ctx context.Context) error {
	m.machine.Advance(pipeline.StageCapture, pipeline.StatusActive, "submitting reconstruction job")

	if err := automation.Retry(ctx, func() error {
		start, err := m.driver.FindFirst(ctx, newScanSelectors)
		if err != nil {
			return err
		}
		return m.driver.Click(ctx, start)
	}); err != nil {
		return fmt.Errorf("start reconstruction: %w", err)
	}

	// Some releases interpose a confirmation dialog; absence is fine.
	if confirm, err := m.driver.FindFirst(ctx, confirmSelectors); err == nil {
		if err := m.driver.Click(ctx, confirm); err != nil {
			m.logger.Debug("confirmation click failed", logging.Error(err))
		}
	}

	if shot, err := m.driver.TakeScreenshot(ctx); err != nil {
		m.logger.Debug("screenshot failed", logging.Error(err))
	} else if shot != "" {
		m.stagePreview(shot)
	}

	m.machine.Advance(pipeline.StageCapture, pipeline.StatusCompleted, "reconstruction job submitted")
	return nil
}

// stagePreview moves the capture screenshot into the inbound directory so the
// ingestion watcher can attach it to the finished artifact. Best-effort: the
// run proceeds without a preview.
func (m *Manager) stagePreview(shot string) {
	dst := filepath.Join(m.cfg.Paths.InboundDir, filepath.Base(shot))
	if err := moveFile(shot, dst); err != nil {
		m.logger.Warn("could not stage preview screenshot",
			logging.Error(err),
			logging.String("path", shot),
			logging.String(logging.FieldImpact, "artifact completes without a preview image"),
		)
		return
	}
	m.logger.Debug("staged preview screenshot", logging.String("path", dst))
}
