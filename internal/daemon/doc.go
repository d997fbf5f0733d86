// Package daemon coordinates the long-running Carousel process.
//
// It wires configuration, the recovery store, the pipeline orchestrator, and
// the turntable device monitor into a single lifecycle with flock-based
// locking to prevent multiple instances. Startup applies the recovery policy
// before any new run is accepted.
package daemon
