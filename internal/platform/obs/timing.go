package obs

import (
	"context"
	"log/slog"
	"time"
)

type ctxKey string

// RequestIDKey carries the request id through operation contexts.
const RequestIDKey ctxKey = "req_id"

// Time logs an operation's duration on defer, including the error when the
// deferred pointer carries one:
//
//	defer obs.Time(ctx, logger, "generate_zones")(&err)
func Time(ctx context.Context, logger *slog.Logger, name string) func(errp *error) {
	start := time.Now()

	if logger == nil {
		logger = slog.Default()
	}
	reqID, _ := ctx.Value(RequestIDKey).(string)

	return func(errp *error) {
		args := []any{"op", name, "dur_ms", time.Since(start).Milliseconds()}
		if reqID != "" {
			args = append(args, "req_id", reqID)
		}

		if errp != nil && *errp != nil {
			args = append(args, "err", *errp)
			logger.Warn("op failed", args...)
			return
		}
		logger.Debug("op done", args...)
	}
}
