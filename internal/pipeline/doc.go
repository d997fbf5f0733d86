// Package pipeline owns the stage state machine for a capture run.
//
// A run moves through the ordered stages Authenticate, Capture, Process, and
// Download, finishing in Completed or Failed. The machine enforces that the
// stage index never regresses except through an explicit Reset, publishes
// progress events on stage entry, and delegates stage-entry side effects
// (turntable control) to a StageHooks collaborator so no device logic lives
// here.
package pipeline
