package scheduling

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
)

// RetryPolicy bounds how often an operation that lost a storage race is
// run again.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

// backoff is base*2^attempt with full jitter over the upper half.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseBackoff << attempt
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + rand.N(half+1)
}

// run calls fn until it returns something other than StorageConflict or
// the retries are spent. fn must re-read whatever it depends on.
func (p RetryPolicy) run(ctx context.Context, logger zerolog.Logger, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, apperr.ErrStorageConflict) || attempt >= p.MaxRetries {
			return err
		}
		wait := p.backoff(attempt)
		logger.Debug().Str("op", op).Int("attempt", attempt+1).Dur("backoff", wait).Err(err).Msg("retrying after storage conflict")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
