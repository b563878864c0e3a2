package rtsp

import (
	"time"

	"golang.org/x/time/rate"
)

// maxBackoff and backoffStep implement §4.2's UDP retry pacing:
// min(500ms, 50ms*fail_streak).
const (
	maxBackoff  = 500 * time.Millisecond
	backoffStep = 50 * time.Millisecond
)

// Backoff throttles one session's one track's UDP sends after write
// failures. It wraps x/time/rate.Limiter rather than using it as a
// steady-rate limiter: the limit is re-armed on every failure to the
// spec's fail_streak-scaled interval and relaxed back to unlimited on the
// next success, giving a per-session, failure-driven backoff instead of a
// fixed token-bucket rate. Grounded on the teacher's rate-limited send
// paths, generalized from a constant rate to this spec's escalating one.
type Backoff struct {
	limiter    *rate.Limiter
	failStreak int
}

// NewBackoff starts unthrottled: the first send attempt always proceeds.
func NewBackoff() *Backoff {
	return &Backoff{limiter: rate.NewLimiter(rate.Inf, 1)}
}

// Allow reports whether a send attempt may proceed right now. A false
// result means the caller should skip this tick's send for the track
// rather than retry the same frame.
func (b *Backoff) Allow() bool {
	return b.limiter.Allow()
}

// OnFailure lengthens the streak and re-arms the limiter at the spec's
// min(500, 50*fail_streak) ms interval.
func (b *Backoff) OnFailure() {
	b.failStreak++
	d := time.Duration(b.failStreak) * backoffStep
	if d > maxBackoff {
		d = maxBackoff
	}
	b.limiter.SetLimit(rate.Every(d))
}

// OnSuccess resets the streak and lifts the limiter back to unlimited.
func (b *Backoff) OnSuccess() {
	b.failStreak = 0
	b.limiter.SetLimit(rate.Inf)
}
