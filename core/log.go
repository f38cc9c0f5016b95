package core

// Level is the logging verbosity threshold.
type Level int8

const (
	Disabled   Level = -1
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
	NoLevel
)

// Logger is the logging seam used throughout the module. Concrete
// backends live under logger/; the rest of the code never imports one
// directly.
type Logger interface {
	WithField(key string, value any) Logger
	WithError(err error) Logger

	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Fatal(args ...any)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)

	SetLevel(level Level)
	GetLevel() Level
}
