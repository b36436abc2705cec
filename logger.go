package oauth2filter

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/oauth2preauth/go-oauth2-filter/core"
)

// Logger is the logging interface of the filter. It is compatible with
// log/slog; the adapters below fit the common structured loggers to it.
type Logger = core.Logger

// NewLogrusLogger returns a Logger adapter for logrus.FieldLogger. Key/value
// arguments become fields.
func NewLogrusLogger(l logrus.FieldLogger) Logger {
	return &logrusLoggerAdapter{l}
}

type logrusLoggerAdapter struct{ l logrus.FieldLogger }

func (a *logrusLoggerAdapter) Debug(msg string, args ...any) { a.l.WithFields(fields(args)).Debug(msg) }
func (a *logrusLoggerAdapter) Info(msg string, args ...any)  { a.l.WithFields(fields(args)).Info(msg) }
func (a *logrusLoggerAdapter) Warn(msg string, args ...any)  { a.l.WithFields(fields(args)).Warn(msg) }
func (a *logrusLoggerAdapter) Error(msg string, args ...any) { a.l.WithFields(fields(args)).Error(msg) }

// fields pairs up slog-style key/value arguments. A dangling value is kept
// under "!BADKEY", as slog does.
func fields(args []any) logrus.Fields {
	f := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			f["!BADKEY"] = args[i]
			break
		}
		f[fmt.Sprint(args[i])] = args[i+1]
	}
	return f
}

// NewZapLogger returns a Logger adapter for zap.SugaredLogger.
func NewZapLogger(l *zap.SugaredLogger) Logger {
	return &zapLoggerAdapter{l}
}

type zapLoggerAdapter struct{ l *zap.SugaredLogger }

func (z *zapLoggerAdapter) Debug(msg string, args ...any) { z.l.Debugw(msg, args...) }
func (z *zapLoggerAdapter) Info(msg string, args ...any)  { z.l.Infow(msg, args...) }
func (z *zapLoggerAdapter) Warn(msg string, args ...any)  { z.l.Warnw(msg, args...) }
func (z *zapLoggerAdapter) Error(msg string, args ...any) { z.l.Errorw(msg, args...) }

// NewZerologLogger returns a Logger adapter for zerolog.Logger.
func NewZerologLogger(l zerolog.Logger) Logger {
	return &zerologLoggerAdapter{l}
}

type zerologLoggerAdapter struct{ l zerolog.Logger }

func (z *zerologLoggerAdapter) Debug(msg string, args ...any) { z.l.Debug().Fields(args).Msg(msg) }
func (z *zerologLoggerAdapter) Info(msg string, args ...any)  { z.l.Info().Fields(args).Msg(msg) }
func (z *zerologLoggerAdapter) Warn(msg string, args ...any)  { z.l.Warn().Fields(args).Msg(msg) }
func (z *zerologLoggerAdapter) Error(msg string, args ...any) { z.l.Error().Fields(args).Msg(msg) }
