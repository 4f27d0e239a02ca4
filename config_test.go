package throttle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGroupConfig(t *testing.T) {
	config, err := LoadGroupConfig([]byte(`
kind: bucketed
rate: 100
max_seconds: 16
buckets_per_second: 4
interval: 10
underflow_policy: clamp
idle_timeout: 10m
metrics_namespace: sinks
`))
	require.NoError(t, err)

	assert.Equal(t, KindBucketed, config.Kind)
	assert.Equal(t, uint64(100), config.Rate)
	assert.Equal(t, 16, config.MaxSeconds)
	assert.Equal(t, 4, config.BucketsPerSecond)
	assert.Equal(t, 10, config.Interval)
	assert.Equal(t, UnderflowClamp, config.UnderflowPolicy)
	assert.Equal(t, 10*time.Minute, config.IdleTimeout)
	assert.Equal(t, "sinks", config.MetricsNamespace)
	assert.Nil(t, config.TimeFunc)
	assert.Nil(t, config.Logger)

	// the hooks can be filled in before building the group
	clock := &fakeClock{CurrentTime: 1000000}
	config.TimeFunc = clock.Now
	config.Logger = NewNoOpLogger()
	g, err := NewGroup(config)
	require.NoError(t, err)
	assert.True(t, submitNoError(t)(g.Submit(defaultTestKey, 100)).Accepted())
	assert.False(t, submitNoError(t)(g.Submit(defaultTestKey, 1)).Accepted())
}

func TestLoadGroupConfigSpacing(t *testing.T) {
	config, err := LoadGroupConfig([]byte("rate: 50\nwindow: 1500ms\n"))
	require.NoError(t, err)

	assert.Equal(t, KindSpacing, config.Kind)
	assert.Equal(t, 1500*time.Millisecond, config.Window)
}

func TestLoadGroupConfigErrors(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		parameter string
	}{
		{"malformed", "rate: [1, 2", "yaml"},
		{"wrong type", "rate: lots\n", "yaml"},
		{"unknown policy", "kind: bucketed\nrate: 1\nunderflow_policy: ignore\n", "underflow_policy"},
		{"unknown kind", "kind: leaky\nrate: 1\n", "kind"},
		{"missing rate", "kind: spacing\n", "rate"},
		{"interval too long", "kind: bucketed\nrate: 1\nmax_seconds: 4\ninterval: 8\n", "interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadGroupConfig([]byte(tt.yaml))
			assert.Nil(t, config)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfiguration))

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.parameter, cfgErr.Parameter)
		})
	}
}

func TestLoadGroupConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "throttle.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: bucketed\nrate: 20\ninterval: 4\n"), 0o600))

	config, err := LoadGroupConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, KindBucketed, config.Kind)
	assert.Equal(t, 4, config.Interval)

	_, err = LoadGroupConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Contains(t, err.Error(), "error reading throttle configuration")
}
