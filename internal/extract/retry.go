package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/marginalia/internal/model"
)

// retry calls fn until it succeeds, maxRetries retries are spent, or the
// error is not worth retrying. Only model.ErrExtractionUnavailable is
// retried, and never once ctx is done. The wait doubles after each attempt.
func retry(ctx context.Context, maxRetries int, backoff time.Duration, logger *slog.Logger, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !errors.Is(err, model.ErrExtractionUnavailable) {
			return lastErr
		}

		if attempt < maxRetries {
			wait := backoff * (1 << uint(attempt)) //nolint:gosec // attempt is small
			logger.WarnContext(ctx, "retrying extraction call",
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"backoff_ms", wait.Milliseconds(),
				"error", err)
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}
