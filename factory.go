package throttle

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	defaultWindow           = time.Second
	defaultMaxSeconds       = 16
	defaultBucketsPerSecond = 2
	defaultInterval         = 1
	defaultMetricsNamespace = "throttle"
)

// GroupConfig holds the configuration of a Group.
//
// It can be filled in by hand or loaded from YAML with LoadGroupConfig.
type GroupConfig struct {

	// Kind selects the throttle kept for each key.
	Kind ThrottleKind `yaml:"kind"`

	// Rate is the maximum number of samples admitted per key
	// over the window (spacing) or over the interval (bucketed).
	Rate uint64 `yaml:"rate"`

	// Window is the sliding window of a spacing throttle.
	// When not specified, it defaults to one second.
	Window time.Duration `yaml:"window"`

	// MaxSeconds and BucketsPerSecond size the circular buffer of a
	// bucketed throttle. Both are rounded up to a power of two.
	// When not specified they default to 16 seconds and 2 buckets per second.
	MaxSeconds       int `yaml:"max_seconds"`
	BucketsPerSecond int `yaml:"buckets_per_second"`

	// Interval is the throttling interval in seconds of a bucketed throttle.
	// It should not exceed MaxSeconds. When not specified it defaults to 1.
	Interval int `yaml:"interval"`

	// UnderflowPolicy picks the recovery applied by bucketed throttles
	// when their running sum would go negative.
	UnderflowPolicy UnderflowPolicy `yaml:"underflow_policy"`

	// IdleTimeout is how long a key may stay unused before Sweep evicts it.
	// Zero disables eviction.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// MetricsNamespace prefixes the Prometheus metrics, "throttle" by default.
	MetricsNamespace string `yaml:"metrics_namespace"`

	// Registerer receives the Group metrics when not nil.
	Registerer prometheus.Registerer `yaml:"-"`

	// Time-related functions can be overriden to allow for easier testing
	// you should usually not override these.
	TimeFunc  func() time.Time      `yaml:"-"`
	SleepFunc func(d time.Duration) `yaml:"-"`

	// you can pass your custom logger if you'd like to
	// but it's not required
	Logger Logger `yaml:"-"`
}

// groupEffectiveConfig holds the validated configuration
// with every default applied.
type groupEffectiveConfig struct {
	Kind ThrottleKind
	Rate uint64

	Window time.Duration

	MaxSeconds       int
	BucketsPerSecond int
	Interval         int
	UnderflowPolicy  UnderflowPolicy

	IdleTimeout      time.Duration
	MetricsNamespace string
}

// NewGroup returns a Group built with the specified configuration.
//
// A non-nil error is returned in case of invalid configuration.
func NewGroup(config *GroupConfig) (*Group, error) {
	effectiveLogger := config.Logger
	if effectiveLogger == nil {
		effectiveLogger = &defaultLogger{}
	} else {
		effectiveLogger.Info("binding provided logger to throttle Group")
	}

	parsedConfig, err := validateGroupConfiguration(config, effectiveLogger)
	if err != nil {
		return nil, err
	}

	metrics, err := newGroupMetrics(parsedConfig.MetricsNamespace, config.Registerer)
	if err != nil {
		return nil, err
	}

	out := Group{
		config:    parsedConfig,
		logger:    effectiveLogger,
		timeFunc:  config.TimeFunc,
		sleepFunc: config.SleepFunc,
		entries:   make(map[string]*groupEntry),
		order:     newEntryQueue(),
		metrics:   metrics,
	}

	if out.timeFunc == nil {
		out.timeFunc = time.Now
	}
	if out.sleepFunc == nil {
		out.sleepFunc = time.Sleep
	}

	return &out, nil
}

// validateGroupConfiguration will parse the user-provided configuration
// to the required format for runtime while also validating it.
func validateGroupConfiguration(config *GroupConfig, logger Logger) (*groupEffectiveConfig, error) {
	logger = loggerOrDefault(logger)

	out := groupEffectiveConfig{
		Kind:             config.Kind,
		Rate:             config.Rate,
		UnderflowPolicy:  config.UnderflowPolicy,
		MetricsNamespace: config.MetricsNamespace,
	}

	if out.Rate == 0 {
		return nil, &ConfigurationError{Parameter: "rate", Reason: "should be greater than 0"}
	}
	if config.IdleTimeout < 0 {
		return nil, &ConfigurationError{
			Parameter: "idle_timeout",
			Reason:    fmt.Sprintf("should be zero or positive (given: %v)", config.IdleTimeout),
		}
	}
	out.IdleTimeout = config.IdleTimeout
	if out.MetricsNamespace == "" {
		out.MetricsNamespace = defaultMetricsNamespace
	}

	switch config.Kind {
	case KindSpacing:
		out.Window = config.Window
		if out.Window == 0 {
			out.Window = defaultWindow
		}
		// let the throttle itself validate the rate over the window
		if _, err := NewTimeSpacingThrottle(out.Rate, out.Window, Timestamp{}); err != nil {
			return nil, err
		}

	case KindBucketed:
		out.MaxSeconds = pickDefault(config.MaxSeconds, defaultMaxSeconds)
		out.BucketsPerSecond = pickDefault(config.BucketsPerSecond, defaultBucketsPerSecond)
		out.Interval = pickDefault(config.Interval, defaultInterval)

		probe, err := NewRateThrottler(out.MaxSeconds, out.BucketsPerSecond)
		if err != nil {
			return nil, err
		}
		if probe.MaxSeconds() != out.MaxSeconds {
			logger.Warning(fmt.Sprintf("max_seconds of %d is not a power of two, rounding up to %d", out.MaxSeconds, probe.MaxSeconds()))
			out.MaxSeconds = probe.MaxSeconds()
		}
		if probe.BucketsPerSecond() != out.BucketsPerSecond {
			logger.Warning(fmt.Sprintf("buckets_per_second of %d is not a power of two, rounding up to %d", out.BucketsPerSecond, probe.BucketsPerSecond()))
			out.BucketsPerSecond = probe.BucketsPerSecond()
		}
		if err := probe.Init(out.Interval); err != nil {
			return nil, err
		}
		if !config.UnderflowPolicy.valid() {
			return nil, &ConfigurationError{
				Parameter: "underflow_policy",
				Reason:    fmt.Sprintf("unknown policy %v", config.UnderflowPolicy),
			}
		}

	default:
		return nil, &ConfigurationError{
			Parameter: "kind",
			Reason:    fmt.Sprintf("unknown throttle kind %v", config.Kind),
		}
	}

	return &out, nil
}

func pickDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
