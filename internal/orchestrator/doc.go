// Package orchestrator coordinates one capture run end to end: it drives the
// automation driver through sign-in and job submission, arms the job tracker
// and the artifact ingestion watcher, hands a completed job off to the
// download flow, and tears everything down on failure or reset.
//
// The orchestrator also owns the startup recovery policy. A persisted
// completion phase resumes the download flow automatically; a fresh
// monitoring flag is reported but never auto-resumed, and a stale one is
// cleared.
package orchestrator
