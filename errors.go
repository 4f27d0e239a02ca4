package throttle

import (
	"fmt"
	"time"
)

var (
	// ErrInvalidConfiguration is a sentinel for the error that
	// occurs when a throttle is built or re-initialized with
	// parameters out of their valid range.
	ErrInvalidConfiguration = &ConfigurationError{}

	// ErrCallerContractViolation is a sentinel for the error that
	// occurs when a call breaks the calling discipline of a throttle,
	// for instance a timestamp earlier than the previous call.
	ErrCallerContractViolation = &CallerContractViolation{}

	// ErrRequestTimeout is a sentinel for the error that
	// occurs when waiting for capacity (ex. with SubmitUntil)
	// would exceed the given timeout.
	ErrRequestTimeout = &RequestTimeout{}

	// ErrRequestRejected is a sentinel for the error that
	// occurs when a request can never be admitted,
	// usually because it asks for more samples than the configured rate.
	ErrRequestRejected = &RequestRejected{}
)

// ConfigurationError is returned by constructors and Init
// when a parameter is out of range. It is never retried internally.
type ConfigurationError struct {
	Parameter string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("ConfigurationError: invalid %s (%s)", e.Parameter, e.Reason)
}

func (e *ConfigurationError) Is(tgt error) bool {
	_, ok := tgt.(*ConfigurationError)
	return ok
}

// CallerContractViolation is returned when the caller breaks a precondition,
// the throttle state is left untouched.
type CallerContractViolation struct {
	Reason string
}

func (e *CallerContractViolation) Error() string {
	return fmt.Sprintf("CallerContractViolation: %s", e.Reason)
}

func (e *CallerContractViolation) Is(tgt error) bool {
	_, ok := tgt.(*CallerContractViolation)
	return ok
}

// RequestTimeout is returned when waiting for capacity
// (ex. with SubmitUntil) would take longer than the allowed timeout.
type RequestTimeout struct {
	AttemptsNumber uint64
	WaitedFor      time.Duration
}

func (e *RequestTimeout) Error() string {
	return fmt.Sprintf(
		"RequestTimeout: request could not be admitted after %v attempts in %v ms",
		e.AttemptsNumber,
		e.WaitedFor.Milliseconds(),
	)
}

func (e *RequestTimeout) Is(tgt error) bool {
	_, ok := tgt.(*RequestTimeout)
	return ok
}

// RequestRejected is returned when a request can't ever be admitted.
type RequestRejected struct {
	Reason string
}

func (e *RequestRejected) Error() string {
	return fmt.Sprintf("RequestRejected: the requested samples can't be admitted (%v)", e.Reason)
}

func (e *RequestRejected) Is(tgt error) bool {
	_, ok := tgt.(*RequestRejected)
	return ok
}
