// Package recovery persists the small set of durable flags that let a
// restarted daemon pick up an interrupted run.
//
// The Store is a SQLite-backed key-value table recording whether job
// monitoring was active (and since when) and whether the run had reached the
// job-completion phase. The startup policy is deliberately asymmetric: a
// completion phase resumes automatically because finishing a confirmed
// download is low-risk, while a monitoring flag is only reported, never
// auto-resumed, and is cleared outright once it goes stale.
package recovery
