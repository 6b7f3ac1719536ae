package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures the process-wide logger.
type LogOptions struct {
	Level  slog.Level
	Format string // json, text or pretty
	// File, when set, tees logs into a size-rotated file alongside stdout.
	File string
}

// Instrument installs the default slog logger. Records carry trace
// correlation ids when a span is active on the context.
func Instrument(opts LogOptions) error {
	out := io.Writer(os.Stdout)
	if opts.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
		})
	}

	handler, err := newHandler(out, opts)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(newTraceContextHandler(handler)))
	return nil
}

func newHandler(out io.Writer, opts LogOptions) (slog.Handler, error) {
	ho := &slog.HandlerOptions{Level: opts.Level}

	switch strings.ToLower(opts.Format) {
	case "json":
		return slog.NewJSONHandler(out, ho), nil
	case "text":
		return slog.NewTextHandler(out, ho), nil
	case "pretty":
		return tint.NewHandler(out, &tint.Options{Level: opts.Level}), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text, pretty)", opts.Format)
	}
}
