package db

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/config"
)

// jitterPercent spreads concurrent writers retrying the same vendor row.
const jitterPercent = 20

// RetryPolicy bounds how often a unit of work is re-run after a transient conflict.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy is used when a caller leaves the policy zero-valued.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseBackoff: 20 * time.Millisecond,
	MaxBackoff:  500 * time.Millisecond,
}

// RetryPolicyFromConfig reads the ledger retry settings.
func RetryPolicyFromConfig(cfg config.LedgerConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseBackoff: cfg.RetryBaseBackoff,
		MaxBackoff:  cfg.RetryMaxBackoff,
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultRetryPolicy.BaseBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultRetryPolicy.MaxBackoff
	}
	b := retry.NewExponential(p.BaseBackoff)
	b = retry.WithJitterPercent(jitterPercent, b)
	b = retry.WithCappedDuration(p.MaxBackoff, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// WithRetryingTx runs fn in its own transaction, re-running the whole unit with
// jittered exponential backoff while retryable reports true for the returned error.
// When attempts run out, the last error is returned unchanged.
func (c *Client) WithRetryingTx(ctx context.Context, policy RetryPolicy, retryable func(error) bool, fn func(tx *gorm.DB) error) error {
	return retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		err := c.WithTx(ctx, fn)
		if err != nil && retryable != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
