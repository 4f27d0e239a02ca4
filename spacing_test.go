package throttle

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSpacing(t *testing.T, rate uint64, window time.Duration, now Timestamp) *TimeSpacingThrottle {
	s, err := NewTimeSpacingThrottle(rate, window, now)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func TestNewTimeSpacingThrottle(t *testing.T) {
	s := buildSpacing(t, 10, time.Second, at(5000))

	assert.Equal(t, uint64(10), s.Rate())
	assert.Equal(t, time.Second, s.Window())
	assert.Equal(t, 100*time.Millisecond, s.Step())
	assert.Equal(t, at(5000), s.NextTime())
	assert.Equal(t, uint64(10), s.Available(at(5000)))
}

func TestNewTimeSpacingThrottleValidation(t *testing.T) {
	tests := []struct {
		name      string
		rate      uint64
		window    time.Duration
		parameter string
	}{
		{"zero rate", 0, time.Second, "rate"},
		{"zero window", 10, 0, "window"},
		{"negative window", 10, -time.Second, "window"},
		{"sub-microsecond window", 1, 500 * time.Nanosecond, "window"},
		{"step below a microsecond", 1001, time.Millisecond, "rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewTimeSpacingThrottle(tt.rate, tt.window, at(0))
			assert.Nil(t, s)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfiguration))

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.parameter, cfgErr.Parameter)
		})
	}

	// exactly one microsecond per sample is fine
	s := buildSpacing(t, 1000, time.Millisecond, at(0))
	assert.Equal(t, time.Microsecond, s.Step())
}

func TestStepIsTruncated(t *testing.T) {
	s := buildSpacing(t, 3, time.Second, at(0))
	assert.Equal(t, 333333*time.Microsecond, s.Step())

	admitted, err := s.Add(3, at(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), admitted)
}

func TestScenarioReservation(t *testing.T) {
	s := buildSpacing(t, 10, time.Second, at(0))
	assert.Equal(t, 100*time.Millisecond, s.Step())

	admitted, err := s.Add(10, at(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), admitted)
	assert.Equal(t, uint64(0), s.Available(at(0)))

	admitted, err = s.Add(1, at(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), admitted)

	// the rejected sample consumed a reservation too
	assert.Equal(t, at(1100), s.NextTime())
	assert.Equal(t, uint64(9), s.Available(at(1000)))
	assert.Equal(t, uint64(10), s.Available(at(1100)))
}

func TestScenarioReservationWithoutRejection(t *testing.T) {
	s := buildSpacing(t, 10, time.Second, at(0))

	admitted, err := s.Add(10, at(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), admitted)
	assert.Equal(t, uint64(10), s.Available(at(1000)))
}

func TestAvailableIsPure(t *testing.T) {
	s := buildSpacing(t, 10, time.Second, at(0))
	_, err := s.Add(4, at(0))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Equal(t, uint64(6), s.Available(at(0)))
	}
	assert.Equal(t, uint64(7), s.Available(at(100)))
	assert.Equal(t, uint64(6), s.Available(at(99)))
	assert.Equal(t, at(400), s.NextTime())
}

func TestPartialAdmission(t *testing.T) {
	s := buildSpacing(t, 10, time.Second, at(0))

	admitted, err := s.Add(4, at(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), admitted)

	admitted, err = s.Add(10, at(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), admitted)
	assert.Equal(t, at(1400), s.NextTime())
}

func TestIdleThrottleReservesFromNow(t *testing.T) {
	s := buildSpacing(t, 10, time.Second, at(0))

	admitted, err := s.Add(10, at(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), admitted)

	// a long idle period does not build up credit beyond the rate
	admitted, err = s.Add(15, at(5000))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), admitted)
	assert.Equal(t, at(6500), s.NextTime())
}

func TestMarkerRestartsFromNowAfterIdle(t *testing.T) {
	s := buildSpacing(t, 10, time.Second, at(0))

	admitted, err := s.Add(10, at(500))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), admitted)
	assert.Equal(t, at(1500), s.NextTime())

	// the half second spent idle before the first call is not credited
	admitted, err = s.Add(5, at(600))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), admitted)
	assert.Equal(t, at(2000), s.NextTime())
}

func TestSamplesFreeUpOverTime(t *testing.T) {
	s := buildSpacing(t, 10, time.Second, at(0))
	_, err := s.Add(10, at(0))
	require.NoError(t, err)

	for ms := int64(0); ms <= 1000; ms += 100 {
		assert.Equal(t, uint64(ms/100), s.Available(at(ms)), "at %dms", ms)
	}

	admitted, err := s.Add(3, at(300))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), admitted)
	assert.Equal(t, uint64(0), s.Available(at(300)))
}

func TestEarlierTimestampIsAContractViolation(t *testing.T) {
	s := buildSpacing(t, 10, time.Second, at(0))
	_, err := s.Add(2, at(500))
	require.NoError(t, err)

	admitted, err := s.Add(1, at(499))
	assert.Equal(t, uint64(0), admitted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCallerContractViolation))
	assert.False(t, errors.Is(err, ErrInvalidConfiguration))

	// untouched
	assert.Equal(t, at(700), s.NextTime())

	// the same timestamp is fine
	admitted, err = s.Add(1, at(500))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), admitted)
}

func TestReservationOverflow(t *testing.T) {
	s := buildSpacing(t, 10, time.Second, at(0))

	admitted, err := s.Add(math.MaxUint64, at(0))
	assert.Equal(t, uint64(0), admitted)
	assert.True(t, errors.Is(err, ErrCallerContractViolation))
	assert.Equal(t, at(0), s.NextTime())
}

func TestRetryIn(t *testing.T) {
	s := buildSpacing(t, 10, time.Second, at(0))

	wait, ok := s.RetryIn(10, at(0))
	assert.True(t, ok)
	assert.Zero(t, wait)

	_, err := s.Add(10, at(0))
	require.NoError(t, err)

	wait, ok = s.RetryIn(3, at(0))
	assert.True(t, ok)
	assert.Equal(t, 300*time.Millisecond, wait)
	assert.Equal(t, uint64(3), s.Available(at(0).Add(wait)))

	wait, ok = s.RetryIn(3, at(250))
	assert.True(t, ok)
	assert.Equal(t, 50*time.Millisecond, wait)

	_, ok = s.RetryIn(11, at(0))
	assert.False(t, ok)
}

func TestAvailableStaysWithinRate(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))

	for _, rate := range []uint64{1, 3, 10, 97} {
		s := buildSpacing(t, rate, time.Second, at(0))
		ms := int64(0)

		for i := 0; i < 3000; i++ {
			ms += rnd.Int63n(150)
			samples := uint64(rnd.Int63n(int64(rate) * 2))

			admitted, err := s.Add(samples, at(ms))
			require.NoError(t, err)
			require.LessOrEqual(t, admitted, samples)

			available := s.Available(at(ms))
			require.LessOrEqual(t, available, rate, "rate %d at %dms", rate, ms)

			// what Available promised is admitted right away
			probe := buildSpacing(t, rate, time.Second, at(0))
			*probe = *s
			got, err := probe.Add(available, at(ms))
			require.NoError(t, err)
			require.Equal(t, available, got)
		}
	}
}
