package tracker

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"carousel/internal/automation"
	"carousel/internal/config"
)

// Classification is the closed status enum derived from a job's scraped
// status text.
type Classification int

const (
	ClassUnknown Classification = iota
	ClassQueued
	ClassProcessing
	ClassCompleted
	ClassFailed
)

var classificationNames = map[Classification]string{
	ClassUnknown:    "unknown",
	ClassQueued:     "queued",
	ClassProcessing: "processing",
	ClassCompleted:  "completed",
	ClassFailed:     "failed",
}

func (c Classification) String() string {
	if name, ok := classificationNames[c]; ok {
		return name
	}
	return "unknown"
}

// Markers holds the substring literals matched against status text. They
// mirror UI copy, not a protocol, so they come from config.
type Markers struct {
	Queued     string
	Processing string
	Failed     string
}

// MarkersFromConfig builds Markers from the tracker config section.
func MarkersFromConfig(cfg config.Tracker) Markers {
	return Markers{
		Queued:     cfg.QueuedMarker,
		Processing: cfg.ProcessingMarker,
		Failed:     cfg.FailedMarker,
	}
}

// Classify maps status text onto the closed enum. Classification is total:
// an absent status marker means the listing no longer decorates the job,
// which is the service's only completion signal; text matching no marker at
// all is Unknown and treated as transient by the poll loop.
func (m Markers) Classify(statusText string) Classification {
	text := strings.TrimSpace(statusText)
	if text == "" {
		return ClassCompleted
	}
	switch {
	case strings.Contains(text, m.Failed):
		return ClassFailed
	case strings.Contains(text, m.Processing):
		return ClassProcessing
	case strings.Contains(text, m.Queued):
		return ClassQueued
	default:
		return ClassUnknown
	}
}

// Snapshot is one polling observation of the external job list.
type Snapshot struct {
	Jobs []automation.Job
	At   time.Time
}

// Find returns the job with the given title, preferring an exact match and
// falling back to a case-folded comparison for listings that re-render
// titles with different casing.
func (s Snapshot) Find(title string) (automation.Job, bool) {
	for _, job := range s.Jobs {
		if job.Title == title {
			return job, true
		}
	}
	folded := foldTitle(title)
	for _, job := range s.Jobs {
		if foldTitle(job.Title) == folded {
			return job, true
		}
	}
	return automation.Job{}, false
}

func foldTitle(title string) string {
	return cases.Fold().String(strings.TrimSpace(title))
}
