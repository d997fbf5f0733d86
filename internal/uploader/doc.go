// Package uploader ships finished artifacts to a remote store. Upload is a
// best-effort side channel: failures are logged and surfaced as warnings,
// never as pipeline errors. Without a configured endpoint the uploader is a
// noop.
package uploader
