package throttle

import (
	"context"
	"time"
)

// Throttle computes and applies the escalating delay that slows down
// repeated invalid login attempts within one session.
//
// The delay grows by one step per recorded failure and is clamped at a
// ceiling so it can never exceed a server-imposed execution limit. The
// wait is a genuine suspension point tied to the request's context, not
// a thread-blocking sleep: cancelling the request releases the caller
// immediately without affecting other in-flight requests.
type Throttle struct {
	step    time.Duration
	ceiling time.Duration
}

// New creates a Throttle. step is the per-failure increment (typically
// one second), ceiling the maximum delay; non-positive values disable
// the respective dimension.
func New(step, ceiling time.Duration) *Throttle {
	if step < 0 {
		step = 0
	}
	if ceiling < 0 {
		ceiling = 0
	}
	return &Throttle{step: step, ceiling: ceiling}
}

// Delay returns the blocking delay for the given consecutive-failure
// count: clamp(failures * step, 0, ceiling). Non-decreasing in
// failures.
func (t *Throttle) Delay(failures int) time.Duration {
	if t == nil || failures <= 0 || t.step == 0 {
		return 0
	}

	d := time.Duration(failures) * t.step
	if t.ceiling > 0 && d > t.ceiling {
		d = t.ceiling
	}
	return d
}

// Wait suspends the calling request for d or until ctx is done,
// whichever comes first. Returns ctx.Err() when cancelled early.
func (t *Throttle) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
