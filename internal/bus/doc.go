// Package bus fans pipeline progress events out to subscribers.
//
// The Hub keeps a bounded ring of recent events so late subscribers (status
// commands, UIs) can catch up, and delivers new events to every subscription
// channel best-effort: a slow subscriber loses its oldest undelivered events
// rather than blocking publishers.
package bus
