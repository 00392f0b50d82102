package locator

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// jitterBackOff waits a uniformly random duration in [min, max] between attempts.
type jitterBackOff struct {
	min time.Duration
	max time.Duration
}

func (b *jitterBackOff) NextBackOff() time.Duration {
	if b.max <= b.min {
		return b.min
	}
	return b.min + time.Duration(rand.Int64N(int64(b.max-b.min)+1))
}

func (b *jitterBackOff) Reset() {}

var _ backoff.BackOff = (*jitterBackOff)(nil)
