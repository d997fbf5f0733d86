// Package notifications delivers push notifications for pipeline milestones
// via ntfy. When no topic is configured every operation is a silent noop.
package notifications
