package throttle

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/deque"
)

// Group keeps one throttle per key (a connection, a log sink, a tenant)
// and serializes the access to them. Unlike the primitives it reads the
// current time on its own, through the configured TimeFunc.
//
// Group is safe for concurrent use.
type Group struct {
	config *groupEffectiveConfig
	logger Logger

	// Time functions can be overridden for testing.
	timeFunc  func() time.Time
	sleepFunc func(d time.Duration)

	// a lock provides thread safety.
	lock sync.Mutex

	// we keep all the throttles in a map indexed by key,
	// and in creation order for idle sweeping.
	entries map[string]*groupEntry
	order   *deque.Deque

	metrics *groupMetrics
}

// groupEntry holds the throttle of a single key.
// Exactly one of spacing and bucketed is set, depending on the Group kind.
type groupEntry struct {
	key      string
	spacing  *TimeSpacingThrottle
	bucketed *RateThrottler
	lastSeen Timestamp
}

func (g *Group) entry(key string, now Timestamp) (*groupEntry, error) {
	existing, exists := g.entries[key]
	if exists {
		return existing, nil
	}

	e := &groupEntry{key: key, lastSeen: now}
	switch g.config.Kind {
	case KindSpacing:
		s, err := NewTimeSpacingThrottle(g.config.Rate, g.config.Window, now)
		if err != nil {
			return nil, err
		}
		e.spacing = s
	default:
		r, err := NewRateThrottler(g.config.MaxSeconds, g.config.BucketsPerSecond)
		if err != nil {
			return nil, err
		}
		if err := r.Init(g.config.Interval); err != nil {
			return nil, err
		}
		r.SetLogger(g.logger)
		r.SetUnderflowPolicy(g.config.UnderflowPolicy)
		e.bucketed = r
	}

	g.entries[key] = e
	g.order.PushBack(e)
	g.metrics.keys.Set(float64(len(g.entries)))
	return e, nil
}

// touch records the activity on the entry and returns the time the entry
// throttle should see. Spacing throttles require non-decreasing timestamps,
// so a wall clock stepping back is held at the last seen time.
func (g *Group) touch(e *groupEntry, now Timestamp) Timestamp {
	if now.Before(e.lastSeen) {
		if e.spacing != nil {
			g.logger.Warning(fmt.Sprintf(
				"clock went back from %v to %v for key %q, holding the last seen time",
				e.lastSeen, now, e.key,
			))
			return e.lastSeen
		}
	}
	e.lastSeen = now
	return now
}

// admit asks the entry throttle for samples and returns how many fit.
func (e *groupEntry) admit(limit uint64, samples uint64, now Timestamp) (uint64, error) {
	if e.spacing != nil {
		return e.spacing.Add(samples, now)
	}

	sum := e.bucketed.Refresh(now)
	admitted := samples
	if sum >= limit {
		admitted = 0
	} else if free := limit - sum; free < admitted {
		admitted = free
	}
	e.bucketed.Add(now, admitted)
	return admitted, nil
}

func (e *groupEntry) available(limit uint64, now Timestamp) uint64 {
	if e.spacing != nil {
		return e.spacing.Available(now)
	}
	sum := e.bucketed.Refresh(now)
	if sum >= limit {
		return 0
	}
	return limit - sum
}

// retryIn must be called right after available or admit at the same time.
func (e *groupEntry) retryIn(limit uint64, samples uint64, now Timestamp) (time.Duration, bool) {
	if e.spacing != nil {
		return e.spacing.RetryIn(samples, now)
	}
	return e.bucketed.retryIn(limit, samples, now)
}

func (e *groupEntry) stats() RuntimeStatistics {
	if e.spacing != nil {
		return e.spacing.Stats()
	}
	return e.bucketed.Stats()
}

func (g *Group) currentTime() Timestamp {
	// hook time provider here to allow easier testing
	return FromTime(g.timeFunc())
}

func (g *Group) sleep(d time.Duration) {
	// hook time provider here to allow easier testing
	g.sleepFunc(d)
}

func (g *Group) log() Logger {
	return g.logger
}

// IsComposite always returns false for a Group.
func (g *Group) IsComposite() bool {
	return false
}

// Available returns how many samples the key could submit right now.
func (g *Group) Available(key string) (uint64, error) {
	t := g.currentTime()

	g.lock.Lock()
	defer g.lock.Unlock()

	e, err := g.entry(key, t)
	if err != nil {
		return 0, err
	}
	return e.available(g.config.Rate, g.touch(e, t)), nil
}

// Stats returns runtime statistics about the throttle of the key.
func (g *Group) Stats(key string) (RuntimeStatistics, error) {
	t := g.currentTime()

	g.lock.Lock()
	defer g.lock.Unlock()

	e, err := g.entry(key, t)
	if err != nil {
		return RuntimeStatistics{}, err
	}
	now := g.touch(e, t)
	available := e.available(g.config.Rate, now)

	out := e.stats()
	out.Available = available
	return out, nil
}

// Len returns the number of keys currently holding a throttle.
func (g *Group) Len() int {
	g.lock.Lock()
	defer g.lock.Unlock()

	return len(g.entries)
}

// Keys returns the keys currently holding a throttle, sorted.
func (g *Group) Keys() []string {
	g.lock.Lock()
	defer g.lock.Unlock()

	out := make([]string, 0, len(g.entries))
	for k := range g.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Remove drops the throttle of the key, returning false if there was none.
func (g *Group) Remove(key string) bool {
	g.lock.Lock()
	defer g.lock.Unlock()

	if _, ok := g.entries[key]; !ok {
		return false
	}
	delete(g.entries, key)
	g.metrics.keys.Set(float64(len(g.entries)))
	g.compactOrder()
	return true
}
