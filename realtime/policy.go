package realtime

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ReconnectPolicy yields the delay before the next reconnect attempt.
type ReconnectPolicy interface {
	Next() time.Duration
	// Reset is called once a connection opens.
	Reset()
}

type backoffPolicy struct {
	b        backoff.BackOff
	fallback time.Duration
}

func (p *backoffPolicy) Next() time.Duration {
	d := p.b.NextBackOff()
	if d == backoff.Stop || d < 0 {
		return p.fallback
	}
	return d
}

func (p *backoffPolicy) Reset() {
	p.b.Reset()
}

// FixedDelay retries after the same delay every time.
func FixedDelay(d time.Duration) ReconnectPolicy {
	return &backoffPolicy{b: backoff.NewConstantBackOff(d), fallback: d}
}

// JitteredBackoff doubles the delay per attempt up to max, randomized by ±50%
// so clients dropped by the same outage do not reconnect in lockstep.
func JitteredBackoff(initial, max time.Duration) ReconnectPolicy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.Reset()
	return &backoffPolicy{b: b, fallback: max}
}
