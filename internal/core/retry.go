package core

import (
	"time"
)

// RetryPolicy computes the backoff delay between attempts of a failing task:
// base^tries capped at Max. The first attempt never waits, so Delay is only
// evaluated for tries >= 1.
type RetryPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultRetryPolicy matches the reference configuration: 2s base, 600s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base: 2 * time.Second,
		Max:  600 * time.Second,
	}
}

// Delay returns the wait before attempt tries+1 may run.
func (p RetryPolicy) Delay(tries int) time.Duration {
	if tries < 1 {
		return 0
	}
	base := p.Base.Seconds()
	delay := base
	for i := 1; i < tries; i++ {
		delay *= base
		if delay >= p.Max.Seconds() {
			return p.Max
		}
	}
	return time.Duration(delay * float64(time.Second))
}
