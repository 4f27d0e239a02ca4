package throttle

import (
	"fmt"
	"math"
	"time"
)

// TimeSpacingThrottle throttles a rate over a time window using
// time spacing reservation: every admitted sample reserves window/rate
// of the window on a moving marker, and the reservation frees up as time
// goes by. No more than Rate() samples fit in the Window().
//
// It never ticks: the cost of Add and Available is O(1) whatever the idle
// time, at the price of tracking reserved capacity instead of an exact
// count of the samples in the window.
//
// TimeSpacingThrottle is not safe for concurrent use.
type TimeSpacingThrottle struct {
	rate     uint64
	windowUs int64
	stepUs   int64

	// nextUs is the reservation marker, it never moves backwards.
	nextUs int64
	// lastUs is the timestamp of the previous call.
	lastUs int64
}

// NewTimeSpacingThrottle builds a throttle admitting at most rate samples
// per window. now is the baseline of the reservation marker.
//
// A *ConfigurationError is returned when rate is zero, the window is shorter
// than a microsecond, or the window is too short to give every sample at
// least a microsecond.
func NewTimeSpacingThrottle(rate uint64, window time.Duration, now Timestamp) (*TimeSpacingThrottle, error) {
	if rate == 0 {
		return nil, &ConfigurationError{Parameter: "rate", Reason: "should be greater than 0"}
	}
	windowUs := window.Microseconds()
	if windowUs <= 0 {
		return nil, &ConfigurationError{
			Parameter: "window",
			Reason:    fmt.Sprintf("should be at least 1us (given: %v)", window),
		}
	}
	if rate > uint64(windowUs) {
		return nil, &ConfigurationError{
			Parameter: "rate",
			Reason:    fmt.Sprintf("%d samples per %v leaves less than 1us per sample", rate, window),
		}
	}

	return &TimeSpacingThrottle{
		rate:     rate,
		windowUs: windowUs,
		stepUs:   windowUs / int64(rate),
		nextUs:   now.Microseconds(),
		lastUs:   now.Microseconds(),
	}, nil
}

// Add reserves room for samples at time now.
//
// It returns how many of the samples fit in the window, 0 meaning that the
// throttle is fully congested and more time needs to elapse.
// The reservation is consumed for the rejected samples too: callers must
// drop or retry them on their own.
//
// Reservations start from the marker, or from now when the marker is
// already behind it: after an idle period the marker restarts from now
// and no credit beyond Rate() builds up.
//
// now must not be earlier than the timestamp given to the previous call,
// otherwise a *CallerContractViolation is returned and nothing is reserved.
func (s *TimeSpacingThrottle) Add(samples uint64, now Timestamp) (uint64, error) {
	nowUs := now.Microseconds()
	if nowUs < s.lastUs {
		return 0, &CallerContractViolation{
			Reason: fmt.Sprintf("timestamp %v is earlier than the previous call at %v", now, TimestampFromMicros(s.lastUs)),
		}
	}

	// an idle throttle reserves from now, not from a stale marker
	base := s.nextUs
	if base < nowUs {
		base = nowUs
	}
	if samples > uint64((math.MaxInt64-base)/s.stepUs) {
		return 0, &CallerContractViolation{
			Reason: fmt.Sprintf("reserving %d samples overflows the reservation marker", samples),
		}
	}

	next := base + int64(samples)*s.stepUs
	admitted := samples
	if overshoot := next - (nowUs + s.windowUs); overshoot > 0 {
		rejected := uint64(overshoot / s.stepUs)
		if rejected >= samples {
			admitted = 0
		} else {
			admitted = samples - rejected
		}
	}

	s.nextUs = next
	s.lastUs = nowUs
	return admitted, nil
}

// Available returns the number of samples that would fit at time now.
// It does not modify the throttle.
func (s *TimeSpacingThrottle) Available(now Timestamp) uint64 {
	diff := s.nextUs - now.Microseconds()
	if diff <= 0 {
		return s.rate
	}
	free := s.windowUs - diff
	if free <= 0 {
		return 0
	}
	n := uint64(free / s.stepUs)
	if n > s.rate {
		n = s.rate
	}
	return n
}

// RetryIn returns how long to wait after now before Available reaches samples.
// The boolean is false when samples exceeds the rate and will never fit.
func (s *TimeSpacingThrottle) RetryIn(samples uint64, now Timestamp) (time.Duration, bool) {
	if samples > s.rate {
		return 0, false
	}
	if s.Available(now) >= samples {
		return 0, true
	}
	wait := s.nextUs - s.windowUs + int64(samples)*s.stepUs - now.Microseconds()
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait) * time.Microsecond, true
}

func (s *TimeSpacingThrottle) Rate() uint64 {
	return s.rate
}

// Step is the share of the window reserved by a single sample.
func (s *TimeSpacingThrottle) Step() time.Duration {
	return time.Duration(s.stepUs) * time.Microsecond
}

func (s *TimeSpacingThrottle) Window() time.Duration {
	return time.Duration(s.windowUs) * time.Microsecond
}

// NextTime returns the reservation marker.
func (s *TimeSpacingThrottle) NextTime() Timestamp {
	return TimestampFromMicros(s.nextUs)
}
