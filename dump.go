package throttle

import (
	"fmt"
	"io"
	"strings"
)

// RuntimeStatistics holds a snapshot of the state of a throttle,
// useful to evaluate system status and to debug the window.
type RuntimeStatistics struct {
	Kind ThrottleKind

	// Available is the number of samples that would be admitted right now.
	// It is only filled in by Group.Stats.
	Available uint64

	// NextReservation is the reservation marker of a spacing throttle.
	NextReservation Timestamp

	// RunningSum, Interval (seconds), LastSlotTime and Slots describe a
	// bucketed throttle. Slots is a copy of the whole circular buffer.
	RunningSum   uint64
	Interval     int
	LastSlotTime int64
	Slots        []uint64

	// LastRoll is the transition applied by the last update.
	LastRoll RollKind

	// Underflows counts how many times the running sum went negative
	// and had to be recovered.
	Underflows uint64
}

// Stats returns a snapshot of the throttler.
func (r *RateThrottler) Stats() RuntimeStatistics {
	slots := make([]uint64, len(r.slots))
	copy(slots, r.slots)

	return RuntimeStatistics{
		Kind:         KindBucketed,
		RunningSum:   uint64(r.sum),
		Interval:     r.Interval(),
		LastSlotTime: r.last,
		Slots:        slots,
		LastRoll:     r.lastRoll,
		Underflows:   r.underflows,
	}
}

// Stats returns a snapshot of the throttle.
func (s *TimeSpacingThrottle) Stats() RuntimeStatistics {
	return RuntimeStatistics{
		Kind:            KindSpacing,
		NextReservation: s.NextTime(),
	}
}

// Dump writes the internal state to w: a header line, then a row of slot
// indexes and a row of slot counts. The slot of t and the slot one interval
// behind it are marked with '|'.
func (r *RateThrottler) Dump(w io.Writer, t Timestamp) error {
	return r.dump(w, t.slotTime(r.bucketsPerSecond))
}

func (r *RateThrottler) dump(w io.Writer, now int64) error {
	bucket := r.slot(now)
	behind := r.slot(bucket - r.interval)
	n := int64(len(r.slots))

	var b strings.Builder
	fmt.Fprintf(&b, "last_time=%d, last_bucket=%3d, sum=%d (interval=%d)\n",
		r.last, bucket, r.sum, r.interval)

	marker := func(j int64) byte {
		if j == bucket || j == behind {
			return '|'
		}
		return ' '
	}
	for j := int64(0); j < n; j++ {
		fmt.Fprintf(&b, "%3d%c", j, marker(j))
	}
	b.WriteByte('\n')
	for j := int64(0); j < n; j++ {
		fmt.Fprintf(&b, "%3d%c", r.slots[j], marker(j))
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}
