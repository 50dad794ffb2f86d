package codegen

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/metalagman/anvil/internal/logging"
)

// Retrying retries transport failures of the wrapped client once.
type Retrying struct {
	next    Client
	tries   uint
	timeout time.Duration
}

// NewRetrying wraps next. A positive timeout bounds every attempt.
func NewRetrying(next Client, timeout time.Duration) *Retrying {
	return &Retrying{next: next, tries: 2, timeout: timeout}
}

// Generate calls the wrapped client, retrying once on a TransportError.
// Non-transport errors are returned without a retry.
func (r *Retrying) Generate(ctx context.Context, mode Mode, input string) (string, error) {
	attempt := 0
	op := func() (string, error) {
		attempt++
		callCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		text, err := r.next.Generate(callCtx, mode, input)
		if err == nil {
			return text, nil
		}
		var te *TransportError
		if !errors.As(err, &te) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	notify := func(err error, _ time.Duration) {
		logger := logging.Component("codegen")
		logger.Warn().Err(err).Str("mode", string(mode)).Int("attempt", attempt).Msg("oracle call failed, retrying")
	}

	text, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(r.tries),
		backoff.WithNotify(notify),
	)
	// Retry stops on MaxTries before unwrapping a permanent error of the last attempt.
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return text, err
}
