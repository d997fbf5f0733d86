// Package ingest turns downloaded result archives into published artifact
// folders exactly once.
//
// A Watcher observes the inbound directory for archives and the outbound
// directory for finished folders. The two detection paths deliberately
// overlap: extraction reports the folder it just produced, and the outbound
// scan reports folders however they appeared. Both reconcile through one
// known-folders set under a single lock, so the completion callback fires
// once per folder no matter which path noticed it first. Archives are only
// touched once they stop growing, extraction is serialized per filename, and
// a one-shot rescan at startup catches anything that arrived while the
// process was down.
package ingest
