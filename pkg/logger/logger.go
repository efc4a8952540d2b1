// Package logger is a context-carrying wrapper around zerolog. Fields added
// with the With* helpers ride on the context and appear on every entry
// written through it.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	// Level is parsed with ParseLevel, so an unset level is info.
	Level     string
	WarnStack bool
	// Format is FormatJSON or FormatConsole. Empty falls back to
	// LUZIMARKET_LOG_FORMAT, then json.
	Format string
	Output io.Writer
}

type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

type ctxKey struct{}

var setTimeFormat sync.Once

func New(opts Options) *Logger {
	setTimeFormat.Do(func() { zerolog.TimeFieldFormat = time.RFC3339Nano })

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = os.Getenv("LUZIMARKET_LOG_FORMAT")
	}
	if strings.EqualFold(format, FormatConsole) {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	return &Logger{
		base: zerolog.New(output).
			Level(ParseLevel(opts.Level)).
			With().
			Timestamp().
			Str("service", opts.ServiceName).
			Logger(),
		warnStack: opts.WarnStack,
	}
}

// ParseLevel maps config text to a level; blank or unknown input is info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) entry(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
			return entry
		}
	}
	return &l.base
}

func (l *Logger) with(ctx context.Context, build func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	child := build(l.entry(ctx).With()).Logger()
	return context.WithValue(ctx, ctxKey{}, &child)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) withID(ctx context.Context, key string, id uuid.UUID) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Str(key, id.String()) })
}

func (l *Logger) WithVendorID(ctx context.Context, id uuid.UUID) context.Context {
	return l.withID(ctx, "vendor_id", id)
}

func (l *Logger) WithOrderID(ctx context.Context, id uuid.UUID) context.Context {
	return l.withID(ctx, "order_id", id)
}

func (l *Logger) WithPayoutID(ctx context.Context, id uuid.UUID) context.Context {
	return l.withID(ctx, "payout_id", id)
}

func (l *Logger) WithBankAccountID(ctx context.Context, id uuid.UUID) context.Context {
	return l.withID(ctx, "bank_account_id", id)
}

// WithActor tags entries with the authenticated caller.
func (l *Logger) WithActor(ctx context.Context, actor, role string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str("actor", actor).Str("actor_role", role)
	})
}

func (l *Logger) WithJob(ctx context.Context, job string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str("job", job).Str("event", "cron.job")
	})
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.entry(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.entry(ctx).Info().Msg(msg)
}

// Infof is for one-off operator messages; prefer fields for anything queried.
func (l *Logger) Infof(ctx context.Context, format string, args ...any) {
	l.entry(ctx).Info().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.entry(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", stackTrace())
	}
	event.Msg(msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error) {
	l.entry(ctx).Error().Err(err).Str("stack", stackTrace()).Msg(msg)
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
