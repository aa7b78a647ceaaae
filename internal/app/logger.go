package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger: JSON for aggregated deployments,
// text for local work. Every line carries the service attribute so the
// lines can be attributed in a shared stream.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "fraudlens"))
}
