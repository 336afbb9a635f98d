package transport

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// reconnectPolicy computes the attempt-delay sequence spec §4.E/§5
// describe: min(maxDelayMs, initialDelayMs * multiplier^n) with jitter,
// stopping after maxAttempts (0 disables reconnection entirely).
type reconnectPolicy struct {
	cfg ReconnectConfig
	bo  *backoff.ExponentialBackOff
}

func newReconnectPolicy(cfg ReconnectConfig) *reconnectPolicy {
	initial := time.Duration(cfg.InitialDelayMs) * time.Millisecond
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	maxDelay := time.Duration(cfg.MaxDelayMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	multiplier := cfg.BackoffMultiplier
	if multiplier <= 1 {
		multiplier = 2
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxInterval = maxDelay
	bo.Multiplier = multiplier
	bo.RandomizationFactor = 0.2 // spec §5: jitter within ±20%

	return &reconnectPolicy{cfg: cfg, bo: bo}
}

// disabled reports whether reconnection is turned off entirely.
func (p *reconnectPolicy) disabled() bool {
	return p.cfg.MaxAttempts == 0
}

// exhausted reports whether attempt (1-indexed) exceeds maxAttempts.
func (p *reconnectPolicy) exhausted(attempt int) bool {
	return p.cfg.MaxAttempts > 0 && attempt > p.cfg.MaxAttempts
}

// reset restarts the backoff sequence from attempt 1, used after a
// transport reaches StateConnected again.
func (p *reconnectPolicy) reset() {
	p.bo.Reset()
}

// next returns the delay before the next reconnect attempt.
func (p *reconnectPolicy) next() time.Duration {
	return p.bo.NextBackOff()
}

// wait blocks for the policy's next delay or until ctx is canceled,
// whichever comes first.
func (p *reconnectPolicy) wait(ctx context.Context) error {
	timer := time.NewTimer(p.next())
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
