package network

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newBackoff returns an exponential policy that never gives up.
func newBackoff(initial, max time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxInterval = max
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}
