// Package sysutil holds process-level helpers for the entry point.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// levels maps the accepted LOG_LEVEL spellings onto zerolog levels.
var levels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
	"panic":   zerolog.PanicLevel,
}

// ParseLevel resolves a LOG_LEVEL value, case-insensitively. Unknown or
// blank values resolve to info.
func ParseLevel(s string) zerolog.Level {
	if lvl, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}

// SetLogLevel sets the global zerolog level from a LOG_LEVEL value.
func SetLogLevel(s string) { zerolog.SetGlobalLevel(ParseLevel(s)) }

// LogOptions describes the process logger.
type LogOptions struct {
	Level   string
	Pretty  bool
	Service string
	Env     string
	Version string
}

// ConfigureLogger installs the global logger on out (stderr when nil).
// Every line carries service, env and version. Pretty switches to the
// console writer, which honors NO_COLOR.
func ConfigureLogger(opts LogOptions, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    IsTruthy(os.Getenv("NO_COLOR")),
		}
	}
	SetLogLevel(opts.Level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	ctx := zerolog.New(out).With().Timestamp()
	for k, v := range map[string]string{"service": opts.Service, "env": opts.Env, "version": opts.Version} {
		ctx = ctx.Str(k, v)
	}
	log.Logger = ctx.Logger()
}

// IsTruthy accepts 1, true, yes, y and on, ignoring case and spaces.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// FirstNonEmpty returns the first non-blank value unchanged, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
