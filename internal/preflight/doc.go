// Package preflight provides readiness checks for the directories and
// external services a pipeline run depends on.
//
// These checks run in two contexts:
//   - The orchestrator calls RunAll before starting a run. A failed check
//     halts the run before Authenticate, instead of failing mid-capture.
//   - The CLI "carousel status" command uses individual check functions
//     to display service health.
package preflight
