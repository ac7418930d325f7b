package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// Init configures the default slog logger for the given service.
// Format comes from LOG_FORMAT: "text" for human-readable, "json"
// (default) for structured output. Level comes from LOG_LEVEL:
// "debug", "info" (default), "warn", "error".
func Init(service string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler).With(slog.String("service", service))
	slog.SetDefault(logger)

	// Redirect stdlib log so transitive log.Printf calls still come out
	// structured.
	log.SetFlags(0)
	log.SetOutput(&slogWriter{logger: logger})

	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type slogWriter struct {
	logger *slog.Logger
}

func (w *slogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	w.logger.Info(msg, slog.String("source", "stdlib"))
	return len(p), nil
}
