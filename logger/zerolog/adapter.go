// Package zerolog adapts rs/zerolog to the core.Logger interface.
package zerolog

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/trailguard/trailguard/core"
)

type Adapter struct {
	*zerolog.Logger
}

// NewAdapter wraps an existing zerolog logger.
func NewAdapter(logger *zerolog.Logger) *Adapter {
	return &Adapter{logger}
}

// NewConsole builds a human-readable console logger, the default for the
// CLI. Structured JSON callers should construct their own zerolog.Logger
// and use NewAdapter.
func NewConsole(out io.Writer) *Adapter {
	if out == nil {
		out = os.Stderr
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	return &Adapter{&logger}
}

// WithField implements core.Logger.
func (a *Adapter) WithField(key string, value any) core.Logger {
	logger := a.With().Interface(key, value).Logger()
	return &Adapter{&logger}
}

// WithError implements core.Logger.
func (a *Adapter) WithError(err error) core.Logger {
	logger := a.With().Err(err).Logger()
	return &Adapter{&logger}
}

func (a *Adapter) Debug(args ...any) { a.Logger.Debug().Msg(fmt.Sprint(args...)) }
func (a *Adapter) Info(args ...any)  { a.Logger.Info().Msg(fmt.Sprint(args...)) }
func (a *Adapter) Warn(args ...any)  { a.Logger.Warn().Msg(fmt.Sprint(args...)) }
func (a *Adapter) Error(args ...any) { a.Logger.Error().Msg(fmt.Sprint(args...)) }
func (a *Adapter) Fatal(args ...any) { a.Logger.Fatal().Msg(fmt.Sprint(args...)) }

func (a *Adapter) Debugf(format string, args ...any) { a.Logger.Debug().Msgf(format, args...) }
func (a *Adapter) Infof(format string, args ...any)  { a.Logger.Info().Msgf(format, args...) }
func (a *Adapter) Warnf(format string, args ...any)  { a.Logger.Warn().Msgf(format, args...) }
func (a *Adapter) Errorf(format string, args ...any) { a.Logger.Error().Msgf(format, args...) }
func (a *Adapter) Fatalf(format string, args ...any) { a.Logger.Fatal().Msgf(format, args...) }

// SetLevel implements core.Logger.
func (a *Adapter) SetLevel(level core.Level) {
	zerolog.SetGlobalLevel(toZerologLevel(level))
}

// GetLevel implements core.Logger.
func (a *Adapter) GetLevel() core.Level {
	return toLevel(a.Logger.GetLevel())
}

func toLevel(level zerolog.Level) core.Level {
	switch level {
	case zerolog.Disabled:
		return core.Disabled
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return core.DebugLevel
	case zerolog.InfoLevel:
		return core.InfoLevel
	case zerolog.WarnLevel:
		return core.WarnLevel
	case zerolog.ErrorLevel:
		return core.ErrorLevel
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return core.FatalLevel
	default:
		return core.NoLevel
	}
}

func toZerologLevel(level core.Level) zerolog.Level {
	switch level {
	case core.Disabled:
		return zerolog.Disabled
	case core.DebugLevel:
		return zerolog.DebugLevel
	case core.InfoLevel:
		return zerolog.InfoLevel
	case core.WarnLevel:
		return zerolog.WarnLevel
	case core.ErrorLevel:
		return zerolog.ErrorLevel
	case core.FatalLevel:
		return zerolog.FatalLevel
	default:
		return zerolog.NoLevel
	}
}
