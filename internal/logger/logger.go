package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
)

// New creates a new slog.Logger instance that writes to os.Stdout.
// If debug is true, the log level is set to Debug. Otherwise, it's set to Info.
func New(debug bool) *slog.Logger {
	return NewWithWriter(os.Stdout, debug)
}

// NewWithWriter creates a new slog.Logger instance with a specific writer.
func NewWithWriter(w io.Writer, debug bool) *slog.Logger {
	var level slog.Level
	if debug {
		level = slog.LevelDebug
	} else {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Middleware logs one debug line per request with the status and latency.
// Tokens and secrets are never logged, only the path.
func Middleware(log *slog.Logger) gin.HandlerFunc {
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("Request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}
