// Admission control primitives that decide how many timestamped events
// may be admitted without exceeding a rate over a sliding time window.
//
// Primitives:
//
// - TimeSpacingThrottle: every admitted unit reserves a slice of the window on a
// moving time marker. O(1) per call regardless of idle time, approximate.
//
// - RateThrottler: exact running sum over a power-of-two circular buffer of
// time slots, maintained incrementally as time advances.
//
// Both take the current Timestamp from the caller on every call, perform no I/O
// and are not safe for concurrent use.
//
// Group wraps either primitive into a thread-safe, keyed limiter (one throttle
// per connection, per log sink, per tenant) reading the clock on its own,
// with optional waiting, idle-key eviction and Prometheus metrics.
// Composite admits samples only as far as all of its Groups do.
package throttle
