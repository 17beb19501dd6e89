package logger

// Logger is the leveled logging surface the control packages depend on.
// Implementations live under infra; core packages only format messages.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
