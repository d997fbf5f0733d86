package automation

import (
	"context"
	"errors"
)

// ErrPageUnreachable reports that the underlying page could not be loaded or
// has gone away. Callers treat it as transient.
var ErrPageUnreachable = errors.New("automation: page unreachable")

// ErrElementNotFound reports that no selector in a selector set matched.
// Usually transient: the page may not have finished rendering.
var ErrElementNotFound = errors.New("automation: element not found")

// Job is one row of the external system's job listing. StatusText is the raw
// status copy scraped from the row; an empty StatusText means the listing
// shows no status marker for the job.
type Job struct {
	Title      string `json:"title"`
	StatusText string `json:"status_text"`
}

// Element is an opaque handle to a located page element.
type Element interface {
	// Description identifies the element for logging.
	Description() string
}

// Driver abstracts the browser automation used to operate the reconstruction
// service. Implementations must treat every call as fallible and return
// ErrPageUnreachable or ErrElementNotFound for the transient cases.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	FindFirst(ctx context.Context, selectors []string) (Element, error)
	Click(ctx context.Context, el Element) error
	FillField(ctx context.Context, el Element, value string) error

	// ListJobs snapshots the job listing after refreshing it.
	ListJobs(ctx context.Context) ([]Job, error)

	// DownloadCurrentArtifact starts the artifact download for the job whose
	// detail view is open and returns the path the browser will write to.
	DownloadCurrentArtifact(ctx context.Context) (string, error)

	// TakeScreenshot captures the current view. Best-effort: an empty path
	// with a nil error means no screenshot was produced.
	TakeScreenshot(ctx context.Context) (string, error)
}

// Transient reports whether the error is one of the driver's retryable
// sentinel failures.
func Transient(err error) bool {
	return errors.Is(err, ErrPageUnreachable) || errors.Is(err, ErrElementNotFound)
}
