package extensions

import (
	"context"
	"log/slog"
	"time"

	fluxus "github.com/shtse8/fluxus"
)

// LoggingExtension logs all scope operations with timing
type LoggingExtension struct {
	fluxus.BaseExtension
	logger *slog.Logger
}

// NewLoggingExtension creates a new logging extension.
// logHandler: slog.Handler for output (use NewSilentHandler for tests)
func NewLoggingExtension(logHandler slog.Handler) *LoggingExtension {
	return &LoggingExtension{
		BaseExtension: fluxus.NewBaseExtension("logging"),
		logger:        slog.New(logHandler),
	}
}

func (e *LoggingExtension) Wrap(ctx context.Context, next func() (any, error), op *fluxus.Operation) (any, error) {
	start := time.Now()
	result, err := next()
	duration := time.Since(start)

	if err != nil {
		e.logger.Error("operation failed",
			"operation", string(op.Kind),
			"provider", providerName(op.Provider),
			"duration", duration,
			"error", err.Error(),
		)
	} else {
		e.logger.Debug("operation completed",
			"operation", string(op.Kind),
			"provider", providerName(op.Provider),
			"duration", duration,
		)
	}
	return result, err
}

func (e *LoggingExtension) OnCleanupError(cleanupErr *fluxus.CleanupError) bool {
	e.logger.Warn("cleanup failed",
		"provider", providerName(cleanupErr.Provider),
		"context", cleanupErr.Context,
		"error", cleanupErr.Err.Error(),
	)
	return true
}
