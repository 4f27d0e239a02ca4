package throttle

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Add adds count items to the slot of time t and returns the running sum.
//
// Counts above math.MaxInt64 are capped, and slots and running sum saturate
// at math.MaxInt64 instead of wrapping around. A saturated running sum is
// recounted from the slots when the window moves.
//
// t is expected to move forward. Going back to an earlier slot is taken as a
// clock adjustment: the whole history is discarded.
func (r *RateThrottler) Add(t Timestamp, count uint64) uint64 {
	now := t.slotTime(r.bucketsPerSecond)
	c := int64(math.MaxInt64)
	if count < math.MaxInt64 {
		c = int64(count)
	}

	switch {
	case !r.primed:
		r.primed = true
		r.last = now
		r.accumulate(now, c)
		r.lastRoll = RollFirstUse
	case now < r.last:
		r.discard(now, c)
	case now == r.last:
		r.accumulate(now, c)
		r.lastRoll = RollSameSlot
	case now-r.last >= r.interval:
		r.rollFullWindow(now, c)
	default:
		r.rollPartial(now, c)
	}

	r.last = now
	return uint64(r.sum)
}

func (r *RateThrottler) slot(slotTime int64) int64 {
	return slotTime & r.mask
}

func (r *RateThrottler) accumulate(now int64, c int64) {
	i := r.slot(now)
	r.slots[i] = uint64(satAdd(int64(r.slots[i]), c))
	r.sum = satAdd(r.sum, c)
}

// satAdd adds b >= 0 to a, saturating at math.MaxInt64.
func satAdd(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// discard drops the whole buffer after the clock went backwards.
func (r *RateThrottler) discard(now int64, c int64) {
	for i := range r.slots {
		r.slots[i] = 0
	}
	r.slots[r.slot(now)] = uint64(c)
	r.sum = c
	r.lastRoll = RollRegression
}

// rollFullWindow handles a jump of at least one interval:
// nothing in the buffer is still valid.
func (r *RateThrottler) rollFullWindow(now int64, c int64) {
	r.zeroSpan(now-r.interval+1, now-1)
	r.slots[r.slot(now)] = uint64(c)
	r.sum = c
	r.lastRoll = RollFullWindow
}

// rollPartial moves the window by less than an interval.
//
// When few old slots are still valid their sum is recomputed, otherwise the
// slots leaving the window are subtracted. Both give the same running sum.
func (r *RateThrottler) rollPartial(now int64, c int64) {
	elapsed := now - r.last
	validOld := r.interval - elapsed

	kind := RollPartialSubtract
	if validOld <= r.interval>>1 {
		kind = RollPartialSum
	}
	if r.forcedRoll == RollPartialSum || r.forcedRoll == RollPartialSubtract {
		kind = r.forcedRoll
	}
	if r.sum == math.MaxInt64 {
		// saturated, only a recount is exact
		kind = RollPartialSum
	}

	if kind == RollPartialSum {
		r.sum = satAdd(c, r.sumSpan(now-r.interval+1, r.last))
	} else {
		r.expire(r.last-r.interval+1, now-r.interval, now)
		r.sum = satAdd(r.sum, c)
	}

	// no activity in between
	r.zeroSpan(r.last+1, now-1)
	r.slots[r.slot(now)] = uint64(c)
	r.lastRoll = kind
}

// expire subtracts and clears the slots in [from, to], all of which are
// leaving the window.
func (r *RateThrottler) expire(from, to int64, now int64) {
	underflow := false
	for s := from; s <= to; s++ {
		i := r.slot(s)
		r.sum -= int64(r.slots[i])
		r.slots[i] = 0
		if r.sum < 0 {
			underflow = true
			if r.policy == UnderflowClamp {
				r.sum = 0
			}
		}
	}
	if !underflow {
		return
	}

	r.underflows++
	if r.policy == UnderflowRederive {
		r.sum = r.sumSpan(to+1, r.last)
	}

	var b strings.Builder
	_ = r.dump(&b, now)
	r.logger.Error(fmt.Sprintf(
		"running sum went negative expiring slots %d through %d, applied %v policy (sum=%d)\n%s",
		from, to, r.policy, r.sum, b.String(),
	))
}

// zeroSpan clears the slots of slot times [from, to].
func (r *RateThrottler) zeroSpan(from, to int64) {
	for s := from; s <= to; s++ {
		r.slots[r.slot(s)] = 0
	}
}

// sumSpan adds up the slots of slot times [from, to].
func (r *RateThrottler) sumSpan(from, to int64) int64 {
	var sum int64
	for s := from; s <= to; s++ {
		sum = satAdd(sum, int64(r.slots[r.slot(s)]))
	}
	return sum
}

// retryIn computes how long after t the running sum leaves room for samples
// under limit, by walking the oldest slots of the window until enough of
// them expired. The throttler must have been refreshed at t.
func (r *RateThrottler) retryIn(limit, samples uint64, t Timestamp) (time.Duration, bool) {
	if samples > limit {
		return 0, false
	}
	toFree := r.sum - int64(limit-samples)
	if toFree <= 0 {
		return 0, true
	}

	for s := r.last - r.interval + 1; s <= r.last; s++ {
		toFree -= int64(r.slots[r.slot(s)])
		if toFree > 0 {
			continue
		}
		// the slot leaves the window once the slot time reaches s + interval
		freeAt := s + r.interval
		freeAtUs := (freeAt*microsPerSecond + r.bucketsPerSecond - 1) / r.bucketsPerSecond
		wait := freeAtUs - t.Microseconds()
		if wait < 0 {
			wait = 0
		}
		return time.Duration(wait) * time.Microsecond, true
	}

	// should never happen with a consistent buffer
	return 0, false
}
