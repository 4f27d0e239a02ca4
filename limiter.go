package throttle

import "time"

// Limiter is the common interface of Group and Composite.
//
// You are encouraged to use this type when storing references
// to your limiters in order to allow for easier implementations switch.
type Limiter interface {
	// Submit asks for samples to be admitted for the key.
	// Admission may be partial: the result tells how many samples fit,
	// together with RetryIn information when available.
	Submit(key string, samples uint64) (SubmitResult, error)

	// SubmitUntil asks for all the samples to be admitted and,
	// in case of rejection, automatically handles retries and delays.
	// In case of admission a nil value is returned.
	// In case of timeout or other errors a non-nil error is returned.
	//
	// You can check the returned error with errors.Is against
	// the sentinels ErrRequestTimeout or ErrRequestRejected,
	// or you can cast them to the *RequestTimeout / *RequestRejected
	// types if you need additional info.
	SubmitUntil(key string, samples uint64, timeout time.Duration) error

	// SubmitUntilWithDetails works like SubmitUntil, and also returns
	// the amount of time waited and the number of attempts.
	SubmitUntilWithDetails(key string, samples uint64, timeout time.Duration) SubmitUntilResult

	// Available returns how many samples the key could submit right now.
	Available(key string) (uint64, error)

	// Sweep evicts the idle keys and returns how many were evicted.
	Sweep() int

	// ForKey returns a proxy bound to a single key.
	ForKey(key string) *SingleKeyThrottle

	// IsComposite returns true if the limiter is a Composite.
	IsComposite() bool
}

var (
	_ Limiter = (*Group)(nil)
	_ Limiter = (*Composite)(nil)
)
