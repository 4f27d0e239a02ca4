package throttle

import (
	"fmt"
	"time"
)

// SubmitResult holds the result of a submission.
//
// Admitted is the number of samples, out of Requested, that fit in the
// window. The rejected ones are not queued: drop them or submit them again.
//
// When some samples were rejected and the request can fit at all,
// RetryInAvailable is true and RetryIn is the time to wait before
// Requested samples would be available.
type SubmitResult struct {
	Requested        uint64
	Admitted         uint64
	Available        uint64
	RetryInAvailable bool
	RetryIn          time.Duration
}

// SubmitUntilResult holds the result of a submission
// automatically handled and optionally retried via SubmitUntil.
//
// the Error field will be nil if the request was admitted.
//
// The AttemptsNumber and WaitedFor will provide information about
// the delay and attempts made by the SubmitUntil handler.
type SubmitUntilResult struct {
	AttemptsNumber uint64
	WaitedFor      time.Duration
	Error          error
}

// Accepted is true when every requested sample was admitted.
func (s SubmitResult) Accepted() bool {
	return s.Admitted == s.Requested
}

func (s SubmitResult) String() string {
	if s.Accepted() {
		return fmt.Sprintf("SubmitResult[Admitted %d]", s.Admitted)
	} else if s.RetryInAvailable {
		return fmt.Sprintf("SubmitResult[Admitted %d of %d, RetryIn: %v ms]", s.Admitted, s.Requested, s.RetryIn.Milliseconds())
	} else {
		return fmt.Sprintf("SubmitResult[Admitted %d of %d]", s.Admitted, s.Requested)
	}
}

// Submit asks for samples to be admitted for the key and returns how many
// of them fit, together with RetryIn information when some were rejected.
func (g *Group) Submit(key string, samples uint64) (SubmitResult, error) {
	t := g.currentTime()

	g.lock.Lock()
	defer g.lock.Unlock()

	out := SubmitResult{Requested: samples}

	e, err := g.entry(key, t)
	if err != nil {
		return out, err
	}
	now := g.touch(e, t)

	admitted, err := e.admit(g.config.Rate, samples, now)
	if err != nil {
		return out, fmt.Errorf("error submitting %d samples for key %q: %w", samples, key, err)
	}
	g.metrics.observeSubmit(admitted, samples-admitted)

	out.Admitted = admitted
	out.Available = e.available(g.config.Rate, now)
	if admitted < samples {
		out.RetryIn, out.RetryInAvailable = e.retryIn(g.config.Rate, samples, now)
	}
	return out, nil
}

// tryAcquire admits all the samples or none of them.
// When none are admitted it returns the time to wait, if any.
func (g *Group) tryAcquire(key string, samples uint64) (bool, time.Duration, bool, error) {
	t := g.currentTime()

	g.lock.Lock()
	defer g.lock.Unlock()

	e, err := g.entry(key, t)
	if err != nil {
		return false, 0, false, err
	}
	now := g.touch(e, t)

	if e.available(g.config.Rate, now) < samples {
		retryIn, retryable := e.retryIn(g.config.Rate, samples, now)
		return false, retryIn, retryable, nil
	}

	admitted, err := e.admit(g.config.Rate, samples, now)
	if err != nil {
		return false, 0, false, err
	}
	g.metrics.observeSubmit(admitted, samples-admitted)
	if admitted < samples {
		// should never happen as the capacity was checked under the same lock
		return false, 0, false, fmt.Errorf("admitted %d samples of %d after availability check", admitted, samples)
	}
	return true, 0, true, nil
}

// SubmitUntil asks for all the samples to be admitted and,
// in case of rejection, automatically waits and retries.
// In case of admission a nil value is returned.
// In case of timeout or other errors a non-nil error is returned.
//
// You can check the returned error with errors.Is against
// the sentinels ErrRequestTimeout or ErrRequestRejected.
func (g *Group) SubmitUntil(key string, samples uint64, timeout time.Duration) error {
	res := submitUntil(g, key, samples, timeout)
	return res.Error
}

// SubmitUntilWithDetails works like SubmitUntil but also returns
// the amount of time waited and the number of attempts.
func (g *Group) SubmitUntilWithDetails(key string, samples uint64, timeout time.Duration) SubmitUntilResult {
	return submitUntil(g, key, samples, timeout)
}

// acquirer is what the SubmitUntil retry loop needs from a limiter.
type acquirer interface {
	tryAcquire(key string, samples uint64) (bool, time.Duration, bool, error)
	currentTime() Timestamp
	sleep(d time.Duration)
	log() Logger
}

func submitUntil(a acquirer, key string, samples uint64, timeout time.Duration) SubmitUntilResult {
	t := a.currentTime()
	l := a.log()

	out := SubmitUntilResult{}

	if timeout < 0 {
		l.Warning("submit failed because of invalid timeout")
		out.Error = &RequestRejected{
			Reason: "invalid timeout",
		}
		return out
	}

	timeoutAt := t.Add(timeout)

	for {
		out.AttemptsNumber++
		admitted, retryIn, retryable, err := a.tryAcquire(key, samples)
		if err != nil {
			l.Warning(fmt.Sprintf("submit failed: %s", err.Error()))
			out.Error = fmt.Errorf("error submitting samples: %w", err)
			break
		}

		if admitted {
			break
		}

		if !retryable {
			l.Warning("submit failed and can't be retried")
			out.Error = &RequestRejected{
				Reason: fmt.Sprintf("%d samples exceed the configured rate", samples),
			}
			break
		}

		if retryIn <= 0 {
			retryIn = time.Millisecond
		}

		if a.currentTime().Add(retryIn).After(timeoutAt) {
			l.Warning("submit failed and retrying timed out")
			out.Error = &RequestTimeout{
				WaitedFor:      out.WaitedFor,
				AttemptsNumber: out.AttemptsNumber,
			}
			break
		}

		l.Debug(fmt.Sprintf("submit was rejected, waiting %v and retrying", retryIn))
		a.sleep(retryIn)
		out.WaitedFor += retryIn
	}

	return out
}
