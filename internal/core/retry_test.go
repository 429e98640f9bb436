package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyDelay(t *testing.T) {
	policy := DefaultRetryPolicy()

	cases := []struct {
		tries int
		want  time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{9, 512 * time.Second},
		{10, 600 * time.Second},
		{20, 600 * time.Second},
		{100, 600 * time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, policy.Delay(tc.tries), "delay(%d)", tc.tries)
	}
}

func TestRetryPolicyDelayNonDecreasingAndBounded(t *testing.T) {
	policy := DefaultRetryPolicy()

	prev := time.Duration(0)
	for tries := 1; tries <= 50; tries++ {
		d := policy.Delay(tries)
		assert.GreaterOrEqual(t, d, prev, "delay(%d) must not decrease", tries)
		assert.LessOrEqual(t, d, policy.Max, "delay(%d) must stay within the cap", tries)
		prev = d
	}
}

func TestRetryPolicyDelayBeforeFirstAttempt(t *testing.T) {
	policy := DefaultRetryPolicy()
	assert.Equal(t, time.Duration(0), policy.Delay(0))
}
