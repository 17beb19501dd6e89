package logger

import corelogger "github.com/homegrid/homegrid/core/logger"

// Logger mirrors the core logging interface so callers under infra need a
// single import.
type Logger = corelogger.Logger

// NopLogger discards everything. Tests use it to silence components.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

// New returns a Logger tagged with the component name. Output format and
// level follow the APP_ENV environment variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}
