package throttle

import (
	"fmt"
)

// maxSlotCount bounds the memory a single RateThrottler may allocate.
const maxSlotCount = 1 << 24

// RateThrottler keeps the running sum of the items added over the last
// Interval() seconds.
//
// It is a variation of the token bucket that needs no timer to refill:
// items are counted in a circular buffer of slots with a resolution of
// 1/BucketsPerSecond() seconds, and the slots falling out of the window are
// expired by the successive calls to Add and Refresh.
//
// The buffer holds MaxSeconds() seconds of slots. Both dimensions are rounded
// up to a power of two so that wrapping around uses a mask.
//
// RateThrottler is not safe for concurrent use.
type RateThrottler struct {
	maxSeconds       int64
	bucketsPerSecond int64
	mask             int64
	slots            []uint64

	// interval is expressed in slots
	interval int64
	last     int64
	sum      int64
	primed   bool

	lastRoll   RollKind
	underflows uint64

	policy UnderflowPolicy
	logger Logger

	// forcedRoll pins the partial roll strategy, tests only.
	forcedRoll RollKind
}

// NewRateThrottler builds a throttler holding maxSeconds seconds of data
// with bucketsPerSecond slots per second. The throttler starts with an
// interval of 1 second, use Init to change it.
func NewRateThrottler(maxSeconds, bucketsPerSecond int) (*RateThrottler, error) {
	if maxSeconds < 1 {
		return nil, &ConfigurationError{
			Parameter: "max_seconds",
			Reason:    fmt.Sprintf("should be at least 1 (given: %d)", maxSeconds),
		}
	}
	if bucketsPerSecond < 1 {
		return nil, &ConfigurationError{
			Parameter: "buckets_per_second",
			Reason:    fmt.Sprintf("should be at least 1 (given: %d)", bucketsPerSecond),
		}
	}

	secs := upperPowerOfTwo(int64(maxSeconds))
	bps := upperPowerOfTwo(int64(bucketsPerSecond))
	if secs > maxSlotCount || bps > maxSlotCount || secs*bps > maxSlotCount {
		return nil, &ConfigurationError{
			Parameter: "max_seconds",
			Reason:    fmt.Sprintf("%d seconds of %d buckets exceed %d slots", secs, bps, maxSlotCount),
		}
	}

	r := &RateThrottler{
		maxSeconds:       secs,
		bucketsPerSecond: bps,
		mask:             secs*bps - 1,
		slots:            make([]uint64, secs*bps),
		interval:         -1,
		logger:           &defaultLogger{},
	}
	if err := r.Init(1); err != nil {
		return nil, err
	}
	return r, nil
}

// Init sets the throttling interval in seconds and resets the buffer.
// Nothing happens if the interval is unchanged.
func (r *RateThrottler) Init(interval int) error {
	if r.interval >= 0 && int64(interval)*r.bucketsPerSecond == r.interval {
		return nil
	}
	if interval < 0 || int64(interval) > r.maxSeconds {
		return &ConfigurationError{
			Parameter: "interval",
			Reason:    fmt.Sprintf("%d is outside of [0, %d] seconds", interval, r.maxSeconds),
		}
	}
	r.interval = int64(interval) * r.bucketsPerSecond
	r.Reset()
	return nil
}

// Reset clears the circular buffer.
func (r *RateThrottler) Reset() {
	for i := range r.slots {
		r.slots[i] = 0
	}
	r.last = 0
	r.sum = 0
	r.primed = false
	r.lastRoll = RollNone
}

// Refresh moves the window to t without adding items,
// expiring what fell out of it.
func (r *RateThrottler) Refresh(t Timestamp) uint64 {
	return r.Add(t, 0)
}

// Interval returns the throttling interval in seconds.
func (r *RateThrottler) Interval() int {
	return int(r.interval / r.bucketsPerSecond)
}

// RunningSum returns the number of items added over the interval.
func (r *RateThrottler) RunningSum() uint64 {
	return uint64(r.sum)
}

// RunningAvg returns the running sum per second.
func (r *RateThrottler) RunningAvg() float64 {
	secs := r.Interval()
	if secs == 0 {
		return 0
	}
	return float64(r.sum) / float64(secs)
}

func (r *RateThrottler) MaxSeconds() int {
	return int(r.maxSeconds)
}

func (r *RateThrottler) BucketsPerSecond() int {
	return int(r.bucketsPerSecond)
}

func (r *RateThrottler) SlotCount() int {
	return len(r.slots)
}

// LastRoll reports the transition applied by the last Add or Refresh.
func (r *RateThrottler) LastRoll() RollKind {
	return r.lastRoll
}

func (r *RateThrottler) SetLogger(l Logger) {
	r.logger = loggerOrDefault(l)
}

func (r *RateThrottler) SetUnderflowPolicy(p UnderflowPolicy) {
	r.policy = p
}

func upperPowerOfTwo(n int64) int64 {
	p := int64(1)
	for p < n {
		p <<= 1
	}
	return p
}
