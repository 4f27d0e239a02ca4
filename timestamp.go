package throttle

import (
	"fmt"
	"time"
)

const microsPerSecond = int64(1000000)

// Timestamp is an absolute time expressed as whole seconds plus microseconds.
//
// Usec is always kept in the range [0, 1e6) by the constructors;
// a negative instant has a negative Sec and a positive Usec.
type Timestamp struct {
	Sec  int64
	Usec int64
}

// NewTimestamp builds a normalized Timestamp.
// Microseconds overflowing a second are carried into Sec.
func NewTimestamp(sec, usec int64) Timestamp {
	sec += usec / microsPerSecond
	usec %= microsPerSecond
	if usec < 0 {
		usec += microsPerSecond
		sec--
	}
	return Timestamp{Sec: sec, Usec: usec}
}

// TimestampFromMicros converts an absolute number of microseconds.
func TimestampFromMicros(us int64) Timestamp {
	return NewTimestamp(0, us)
}

// FromTime truncates t to microsecond resolution.
func FromTime(t time.Time) Timestamp {
	return NewTimestamp(t.Unix(), int64(t.Nanosecond())/1000)
}

// Now reads the wall clock.
// The throttles never call it themselves.
func Now() Timestamp {
	return FromTime(time.Now())
}

func (t Timestamp) Microseconds() int64 {
	return t.Sec*microsPerSecond + t.Usec
}

func (t Timestamp) AddMicros(us int64) Timestamp {
	return NewTimestamp(t.Sec, t.Usec+us)
}

func (t Timestamp) Add(d time.Duration) Timestamp {
	return t.AddMicros(d.Microseconds())
}

// Sub returns t - other in microseconds.
func (t Timestamp) Sub(other Timestamp) int64 {
	return t.Microseconds() - other.Microseconds()
}

func (t Timestamp) Before(other Timestamp) bool {
	return t.Sub(other) < 0
}

func (t Timestamp) After(other Timestamp) bool {
	return t.Sub(other) > 0
}

func (t Timestamp) Equal(other Timestamp) bool {
	return t.Sub(other) == 0
}

func (t Timestamp) Time() time.Time {
	return time.Unix(t.Sec, t.Usec*1000)
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%06d", t.Sec, t.Usec)
}

// slotTime maps the timestamp onto a slot index of 1/bucketsPerSecond seconds.
func (t Timestamp) slotTime(bucketsPerSecond int64) int64 {
	return t.Sec*bucketsPerSecond + (t.Usec*bucketsPerSecond)/microsPerSecond
}
