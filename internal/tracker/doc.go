// Package tracker follows the single external reconstruction job a pipeline
// run owns.
//
// The external service offers no status API, so the tracker repeatedly
// snapshots its job listing through the automation driver, classifies the
// scraped status text into a closed enum, and drives the stage machine:
// adopt the first queued or processing job, then watch that exact title until
// it completes, fails, or the attempt budget runs out. A job missing from one
// snapshot is treated as a stale listing, not a failure.
package tracker
