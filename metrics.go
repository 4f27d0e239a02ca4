package throttle

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// groupMetrics contains the Prometheus collectors of a Group.
// They are always built, and registered only when a Registerer is given.
type groupMetrics struct {
	samples *prometheus.CounterVec
	keys    prometheus.Gauge
	evicted prometheus.Counter
}

func newGroupMetrics(namespace string, reg prometheus.Registerer) (*groupMetrics, error) {
	m := &groupMetrics{
		samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submitted_samples_total",
				Help:      "Total number of samples submitted, by admission result",
			},
			[]string{"result"},
		),
		keys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tracked_keys",
				Help:      "Number of keys currently holding a throttle",
			},
		),
		evicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evicted_keys_total",
				Help:      "Total number of idle keys evicted",
			},
		),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.samples, m.keys, m.evicted} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("error registering throttle metrics: %w", err)
		}
	}
	return m, nil
}

func (m *groupMetrics) observeSubmit(admitted, rejected uint64) {
	if admitted > 0 {
		m.samples.WithLabelValues("admitted").Add(float64(admitted))
	}
	if rejected > 0 {
		m.samples.WithLabelValues("rejected").Add(float64(rejected))
	}
}
