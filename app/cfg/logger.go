package cfg

import (
	"io"
	"log/slog"
	"os"
)

// SetupLogger installs the process-wide slog handler.
func SetupLogger(debug bool) *slog.Logger {
	return setupLogger(os.Stderr, debug)
}

func setupLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
