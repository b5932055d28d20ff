package stream

import (
	"math/rand"
	"time"
)

const (
	baseDelay    = time.Second
	maxDelay     = 60 * time.Second
	maxExponent  = 6
	jitterWindow = 500 * time.Millisecond
)

// RetryState tracks the endpoint rotation cursor and the reconnect attempt
// count. AttemptCount increments once per full wrap of the endpoint list and
// is reset to zero on every successful transition to streaming; the index
// only ever advances, never resets implicitly.
type RetryState struct {
	EndpointIndex int
	AttemptCount  int
}

// Rotate advances the endpoint cursor after a transport or protocol failure,
// wrapping modulo the list length and counting a full wrap as one attempt.
func (r *RetryState) Rotate(numEndpoints int) {
	r.EndpointIndex++
	if r.EndpointIndex >= numEndpoints {
		r.EndpointIndex = 0
		r.AttemptCount++
	}
}

// ResetAttempts clears the attempt count once a subscription is acknowledged.
func (r *RetryState) ResetAttempts() {
	r.AttemptCount = 0
}

// Delay computes the reconnect delay for the given attempt count:
// min(60s, 1s*2^min(attempt,6)) plus a uniform jitter in [0, 500ms).
func Delay(attempt int) time.Duration {
	exp := attempt
	if exp > maxExponent {
		exp = maxExponent
	}
	d := baseDelay << uint(exp)
	if d > maxDelay {
		d = maxDelay
	}
	return d + time.Duration(rand.Int63n(int64(jitterWindow)))
}
