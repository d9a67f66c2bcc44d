package app

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/mini-server/config"
)

// NewLogger returns a human-readable console logger in development and a
// JSON logger in production, at cfg's level
func NewLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	if !cfg.IsProduction() {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	return zerolog.New(w).
		Level(cfg.Level()).
		With().
		Timestamp().
		Str("service", "mini-server").
		Logger()
}
