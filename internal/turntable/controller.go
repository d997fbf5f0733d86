package turntable

import (
	"log/slog"

	"carousel/internal/logging"
)

// Controller drives the turntable motor. Calls are fire-and-forget: they are
// issued on stage entry and exit, and implementations log their own failures
// rather than returning them into the pipeline.
type Controller interface {
	RotateForward()
	Stop()
	MotorOn()
	MotorOff()
}

// Noop satisfies Controller without hardware. Used when the turntable is
// disabled in config and in tests.
type Noop struct{}

func (Noop) RotateForward() {}
func (Noop) Stop()          {}
func (Noop) MotorOn()       {}
func (Noop) MotorOff()      {}

// Logged wraps a Controller and records every command. It is also usable on
// its own (with a nil inner controller) as a dry-run rig.
type Logged struct {
	inner  Controller
	logger *slog.Logger
}

// NewLogged decorates inner with command logging. inner may be nil.
func NewLogged(inner Controller, logger *slog.Logger) *Logged {
	return &Logged{inner: inner, logger: logging.NewComponentLogger(logger, "turntable")}
}

func (l *Logged) RotateForward() {
	l.logger.Debug("rotate forward", logging.String(logging.FieldEventType, "turntable_command"))
	if l.inner != nil {
		l.inner.RotateForward()
	}
}

func (l *Logged) Stop() {
	l.logger.Debug("stop rotation", logging.String(logging.FieldEventType, "turntable_command"))
	if l.inner != nil {
		l.inner.Stop()
	}
}

func (l *Logged) MotorOn() {
	l.logger.Debug("motor on", logging.String(logging.FieldEventType, "turntable_command"))
	if l.inner != nil {
		l.inner.MotorOn()
	}
}

func (l *Logged) MotorOff() {
	l.logger.Debug("motor off", logging.String(logging.FieldEventType, "turntable_command"))
	if l.inner != nil {
		l.inner.MotorOff()
	}
}
