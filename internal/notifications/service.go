package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"carousel/internal/config"
)

const userAgent = "Carousel-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyCaptureStarted(ctx context.Context, runID string) error
	NotifyJobTracked(ctx context.Context, jobTitle string) error
	NotifyArtifactReady(ctx context.Context, folder string) error
	NotifyUploadFailed(ctx context.Context, folder string, err error) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		errors:     cfg.Notifications.Errors,
		completion: cfg.Notifications.Completion,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	errors     bool
	completion bool
}

func (n *ntfyService) NotifyCaptureStarted(ctx context.Context, runID string) error {
	data := payload{
		title:   "Carousel - Capture Started",
		message: fmt.Sprintf("Capture run started: %s", strings.TrimSpace(runID)),
		tags:    []string{"carousel", "capture", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobTracked(ctx context.Context, jobTitle string) error {
	data := payload{
		title:   "Carousel - Job Tracked",
		message: fmt.Sprintf("Following reconstruction job: %s", strings.TrimSpace(jobTitle)),
		tags:    []string{"carousel", "job", "tracked"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyArtifactReady(ctx context.Context, folder string) error {
	if !n.completion {
		return nil
	}
	data := payload{
		title:    "Carousel - Artifact Ready",
		message:  fmt.Sprintf("Scan artifact republished: %s", strings.TrimSpace(folder)),
		tags:     []string{"carousel", "artifact", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyUploadFailed(ctx context.Context, folder string, err error) error {
	if !n.errors {
		return nil
	}
	message := fmt.Sprintf("Upload failed for %s", strings.TrimSpace(folder))
	if err != nil {
		message = fmt.Sprintf("%s: %s", message, strings.TrimSpace(err.Error()))
	}
	data := payload{
		title:   "Carousel - Upload Failed",
		message: message,
		tags:    []string{"carousel", "upload", "warning"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Carousel - Error",
		message:  builder.String(),
		tags:     []string{"carousel", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Carousel - Test",
		message:  "Notification system test",
		tags:     []string{"carousel", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyCaptureStarted(context.Context, string) error       { return nil }
func (noopService) NotifyJobTracked(context.Context, string) error           { return nil }
func (noopService) NotifyArtifactReady(context.Context, string) error        { return nil }
func (noopService) NotifyUploadFailed(context.Context, string, error) error  { return nil }
func (noopService) NotifyError(context.Context, error, string) error         { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
