package chain

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Retry/backoff parameters, carried over bit-exact from the Rust RPC
// client: a linear ramp from base delay to a hard cap, with log-level
// escalation once an operation has failed enough times in a row to
// stop being routine.
const (
	retryBaseDelay          = 250 * time.Millisecond
	retryMaxDelay           = 5000 * time.Millisecond
	retryErrorEscalationAt  = 5
)

// retryDelay mirrors rpc_retry_delay: attempt is 1-based; the delay
// ramps linearly in units of the base delay up to the cap.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	maxUnits := int(retryMaxDelay / retryBaseDelay)
	units := attempt
	if units > maxUnits {
		units = maxUnits
	}
	return time.Duration(units) * retryBaseDelay
}

// withRetry runs fn until it succeeds or ctx is done, applying the
// ramping backoff between attempts. Failures below the escalation
// threshold log at warn, at or above it log at error — the same
// severity staircase instrumented_client.rs uses so a flapping RPC
// endpoint escalates from routine to actionable once it's failed five
// times in a row.
func withRetry[T any](ctx context.Context, log zerolog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempt := 0
	for {
		attempt++
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		level := zerolog.WarnLevel
		if attempt >= retryErrorEscalationAt {
			level = zerolog.ErrorLevel
		}
		log.WithLevel(level).Err(err).Str("op", op).Int("attempt", attempt).Msg("rpc call failed, retrying")

		delay := retryDelay(attempt)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}
