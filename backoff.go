package lookoutstream

import (
	"math/rand"
	"time"
)

const defaultJitterFraction = 0.25

// backoffPolicy computes reconnect delays: exponential growth from base,
// clamped at max, with additive jitter. A server-advised retry hint acts
// as a floor on the result.
type backoffPolicy struct {
	base   time.Duration
	max    time.Duration
	jitter float64
	rng    *rand.Rand
}

func newBackoffPolicy(base, max time.Duration) backoffPolicy {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return backoffPolicy{
		base:   base,
		max:    max,
		jitter: defaultJitterFraction,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// delay returns the wait before the attempt following the given number of
// consecutive failures. failures=0 yields roughly base, then doubles.
func (b backoffPolicy) delay(failures int, floor time.Duration) time.Duration {
	d := b.base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= b.max || d <= 0 {
			d = b.max
			break
		}
	}
	if d > b.max {
		d = b.max
	}
	if b.jitter > 0 && b.rng != nil {
		d += time.Duration(b.rng.Float64() * b.jitter * float64(d))
		if d > b.max {
			d = b.max
		}
	}
	if floor > d {
		d = floor
	}
	return d
}
