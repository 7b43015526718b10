package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"rubberweigh/internal/config"
)

// New builds the process logger writing to w. Dev builds get tinted text,
// coloured only when w is a terminal; release builds get JSON. attrs are
// key/value pairs added to every record after the app identity.
func New(w io.Writer, cfg config.Base, version, appName string, attrs ...any) *slog.Logger {
	var h slog.Handler
	var base []any
	if version == "dev" {
		h = tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
			NoColor:    !isTerminal(w),
		})
		base = []any{"app", appName}
	} else {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel})
		base = []any{"app", appName, "version", version, "env", cfg.AppEnv}
	}
	return slog.New(h).With(append(base, attrs...)...)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
