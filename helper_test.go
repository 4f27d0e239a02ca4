package throttle

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultTestRate   = 10
	defaultTestWindow = time.Second
	defaultTestKey    = "test"
)

type testLogger struct {
	mu       sync.Mutex
	Messages []string
}

func (l *testLogger) add(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, text)
}

func (l *testLogger) Debug(text string) {
	l.add(fmt.Sprintf("[d] %v", text))
}
func (l *testLogger) Info(text string) {
	l.add(fmt.Sprintf("[i] %v", text))
}
func (l *testLogger) Warning(text string) {
	l.add(fmt.Sprintf("[w] %v", text))
}
func (l *testLogger) Error(text string) {
	l.add(fmt.Sprintf("[e] %v", text))
}

// Contains reports whether a message with the given level tag
// ("d", "i", "w", "e") contains text.
func (l *testLogger) Contains(level string, text string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.Messages {
		if strings.HasPrefix(m, "["+level+"] ") && strings.Contains(m, text) {
			return true
		}
	}
	return false
}

// at builds a Timestamp from milliseconds.
func at(ms int64) Timestamp {
	return TimestampFromMicros(ms * 1000)
}

// fakeClock is a millisecond clock moved by hand, and by SleepFunc.
type fakeClock struct {
	mu          sync.Mutex
	CurrentTime int64
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.CurrentTime/1000, (c.CurrentTime%1000)*int64(time.Millisecond))
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.TimeTravel(d.Milliseconds())
}

func (c *fakeClock) TimeTravel(diff int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentTime += diff
}

func (c *fakeClock) AssertCurrentTime(t *testing.T, expected int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, expected, c.CurrentTime, "the current time is expected to be %v and is instead %v", expected, c.CurrentTime)
}

type testableGroup struct {
	Instance *Group
	Clock    *fakeClock
	Logger   *testLogger
}

func buildGroup(t *testing.T, configurer func(config *GroupConfig)) *testableGroup {
	ti := testableGroup{
		Clock:  &fakeClock{CurrentTime: 1000000},
		Logger: &testLogger{},
	}

	config := GroupConfig{
		Kind:      KindSpacing,
		Rate:      defaultTestRate,
		Window:    defaultTestWindow,
		TimeFunc:  ti.Clock.Now,
		SleepFunc: ti.Clock.Sleep,
		Logger:    ti.Logger,
	}

	if configurer != nil {
		configurer(&config)
	}

	instance, err := NewGroup(&config)
	require.NoError(t, err)
	require.NotNil(t, instance)

	ti.Instance = instance
	return &ti
}

func buildDefaultGroup(t *testing.T) *testableGroup {
	return buildGroup(t, nil)
}

func buildBucketedGroup(t *testing.T, rate uint64, interval int) *testableGroup {
	return buildGroup(t, func(config *GroupConfig) {
		config.Kind = KindBucketed
		config.Rate = rate
		config.MaxSeconds = 16
		config.BucketsPerSecond = 2
		config.Interval = interval
	})
}

func buildRateThrottler(t *testing.T, maxSeconds, bucketsPerSecond, interval int) (*RateThrottler, *testLogger) {
	r, err := NewRateThrottler(maxSeconds, bucketsPerSecond)
	require.NoError(t, err)
	require.NoError(t, r.Init(interval))

	logger := &testLogger{}
	r.SetLogger(logger)
	return r, logger
}

// windowSum adds up the slots whose slot time is inside the current window.
func windowSum(r *RateThrottler) uint64 {
	return uint64(r.sumSpan(r.last-r.interval+1, r.last))
}

func submitNoError(t *testing.T) func(SubmitResult, error) SubmitResult {
	return func(res SubmitResult, err error) SubmitResult {
		require.NoError(t, err)
		return res
	}
}
