// Package automation defines the contract Carousel expects from the web
// automation driver that operates the reconstruction service's UI.
//
// The DOM discovery heuristics live behind the Driver interface; this package
// only fixes the shape of those interactions. Every call is fallible and
// returns a definite success or failure, never a partial result. Typed
// sentinel errors distinguish transient page problems (retried by callers
// through Retry) from hard failures.
package automation
