// Package config loads, normalizes, and validates Carousel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and exposes every knob the daemon and CLI
// need: watch directories, polling cadence, recovery staleness windows,
// automation credentials, and upload targets.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
