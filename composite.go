package throttle

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CompositeConfig combines several group configurations into a single
// limiter, for instance 10 samples per second and 300 per minute.
type CompositeConfig struct {

	// Groups is a required parameter holding the configurations
	// of the single groups you want to compose together.
	Groups []GroupConfig

	// Time-related functions can be overriden to allow for easier testing
	// you should usually not override these.
	TimeFunc  func() time.Time
	SleepFunc func(d time.Duration)

	// you can pass your custom logger if you'd like to
	// but it's not required
	Logger Logger
}

// Composite admits samples only as far as every composed Group does.
//
// Unlike Group.Submit, a Composite never reserves capacity for the samples
// it rejects: the admitted count is the smallest availability among the
// composed groups, and only that count is submitted to each of them.
//
// Composite is safe for concurrent use.
type Composite struct {
	logger Logger
	groups []*Group

	lock sync.Mutex

	timeFunc  func() time.Time
	sleepFunc func(d time.Duration)
}

// CompositeRuntimeStatistics holds the statistics of each composed group.
type CompositeRuntimeStatistics struct {
	GroupsStats []RuntimeStatistics
}

// NewComposite returns a Composite built with the specified configuration.
//
// A non-nil error is returned in case of invalid configuration.
func NewComposite(config *CompositeConfig) (*Composite, error) {
	effectiveLogger := config.Logger
	if effectiveLogger == nil {
		effectiveLogger = &defaultLogger{}
	} else {
		effectiveLogger.Info("binding provided logger to throttle Composite")
	}

	if len(config.Groups) < 1 {
		return nil, &ConfigurationError{Parameter: "groups", Reason: "composite requires at least one group configuration"}
	}

	out := &Composite{
		logger:    effectiveLogger,
		timeFunc:  config.TimeFunc,
		sleepFunc: config.SleepFunc,
	}
	if out.timeFunc == nil {
		out.timeFunc = time.Now
	}
	if out.sleepFunc == nil {
		out.sleepFunc = time.Sleep
	}

	subTimeFunc := func() time.Time {
		return out.timeFunc()
	}
	subSleepFunc := func(d time.Duration) {
		out.sleepFunc(d)
	}

	groups := make([]*Group, len(config.Groups))
	for i, groupConfig := range config.Groups {
		if groupConfig.TimeFunc != nil {
			return nil, errors.New("cannot specify TimeFunc on a composed group. Please specify it on the composite instead")
		}
		groupConfig.TimeFunc = subTimeFunc

		if groupConfig.SleepFunc != nil {
			return nil, errors.New("cannot specify SleepFunc on a composed group. Please specify it on the composite instead")
		}
		groupConfig.SleepFunc = subSleepFunc

		if groupConfig.Logger == nil {
			groupConfig.Logger = effectiveLogger
		}

		group, err := NewGroup(&groupConfig)
		if err != nil {
			return nil, fmt.Errorf("error building group at index %d: %w", i, err)
		}
		groups[i] = group
	}
	out.groups = groups

	return out, nil
}

func (c *Composite) currentTime() Timestamp {
	// hook time provider here to allow easier testing
	return FromTime(c.timeFunc())
}

func (c *Composite) sleep(d time.Duration) {
	// hook time provider here to allow easier testing
	c.sleepFunc(d)
}

func (c *Composite) log() Logger {
	return c.logger
}

// IsComposite always returns true for a Composite.
func (c *Composite) IsComposite() bool {
	return true
}

// lockGroups must be called with the composite lock held,
// groups are always locked in the same order.
func (c *Composite) lockGroups() {
	for _, g := range c.groups {
		g.lock.Lock()
	}
}

func (c *Composite) unlockGroups() {
	for i := len(c.groups) - 1; i >= 0; i-- {
		c.groups[i].lock.Unlock()
	}
}

// compositeView is the state of a key across the composed groups at one time.
type compositeView struct {
	entries []*groupEntry
	nows    []Timestamp
}

func (c *Composite) view(key string, t Timestamp) (*compositeView, error) {
	v := &compositeView{
		entries: make([]*groupEntry, len(c.groups)),
		nows:    make([]Timestamp, len(c.groups)),
	}
	for i, g := range c.groups {
		e, err := g.entry(key, t)
		if err != nil {
			return nil, err
		}
		v.entries[i] = e
		v.nows[i] = g.touch(e, t)
	}
	return v, nil
}

func (c *Composite) available(v *compositeView) uint64 {
	var out uint64
	for i, g := range c.groups {
		a := v.entries[i].available(g.config.Rate, v.nows[i])
		if i == 0 || a < out {
			out = a
		}
	}
	return out
}

// retryIn returns the highest wait among the composed groups,
// and false if any of them can never fit the samples.
func (c *Composite) retryIn(v *compositeView, samples uint64) (time.Duration, bool) {
	var highest time.Duration
	for i, g := range c.groups {
		wait, ok := v.entries[i].retryIn(g.config.Rate, samples, v.nows[i])
		if !ok {
			return 0, false
		}
		if wait > highest {
			highest = wait
		}
	}
	return highest, true
}

func (c *Composite) admit(v *compositeView, samples uint64) error {
	for i, g := range c.groups {
		admitted, err := v.entries[i].admit(g.config.Rate, samples, v.nows[i])
		if err != nil {
			return fmt.Errorf("error admitting on group at index %d: %w", i, err)
		}
		if admitted != samples {
			// should never happen as the capacity was checked under the same locks
			return fmt.Errorf("group at index %d admitted %d samples of %d after availability check", i, admitted, samples)
		}
	}
	return nil
}

// Submit asks for samples to be admitted for the key by every composed
// group, and admits as many as all of them can take.
func (c *Composite) Submit(key string, samples uint64) (SubmitResult, error) {
	t := c.currentTime()

	c.lock.Lock()
	defer c.lock.Unlock()
	c.lockGroups()
	defer c.unlockGroups()

	out := SubmitResult{Requested: samples}

	v, err := c.view(key, t)
	if err != nil {
		return out, err
	}

	admitted := c.available(v)
	if admitted > samples {
		admitted = samples
	}
	if err := c.admit(v, admitted); err != nil {
		return out, err
	}
	for _, g := range c.groups {
		g.metrics.observeSubmit(admitted, samples-admitted)
	}

	out.Admitted = admitted
	out.Available = c.available(v)
	if admitted < samples {
		out.RetryIn, out.RetryInAvailable = c.retryIn(v, samples)
	}
	return out, nil
}

func (c *Composite) tryAcquire(key string, samples uint64) (bool, time.Duration, bool, error) {
	t := c.currentTime()

	c.lock.Lock()
	defer c.lock.Unlock()
	c.lockGroups()
	defer c.unlockGroups()

	v, err := c.view(key, t)
	if err != nil {
		return false, 0, false, err
	}

	if c.available(v) < samples {
		retryIn, retryable := c.retryIn(v, samples)
		return false, retryIn, retryable, nil
	}
	if err := c.admit(v, samples); err != nil {
		return false, 0, false, err
	}
	for _, g := range c.groups {
		g.metrics.observeSubmit(samples, 0)
	}
	return true, 0, true, nil
}

// SubmitUntil asks for all the samples to be admitted by every composed
// group and, in case of rejection, automatically waits and retries.
func (c *Composite) SubmitUntil(key string, samples uint64, timeout time.Duration) error {
	res := submitUntil(c, key, samples, timeout)
	return res.Error
}

// SubmitUntilWithDetails works like SubmitUntil but also returns
// the amount of time waited and the number of attempts.
func (c *Composite) SubmitUntilWithDetails(key string, samples uint64, timeout time.Duration) SubmitUntilResult {
	return submitUntil(c, key, samples, timeout)
}

// Available returns the smallest availability among the composed groups.
func (c *Composite) Available(key string) (uint64, error) {
	t := c.currentTime()

	c.lock.Lock()
	defer c.lock.Unlock()
	c.lockGroups()
	defer c.unlockGroups()

	v, err := c.view(key, t)
	if err != nil {
		return 0, err
	}
	return c.available(v), nil
}

// Stats returns runtime statistics for the key in each composed group.
func (c *Composite) Stats(key string) (CompositeRuntimeStatistics, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	out := CompositeRuntimeStatistics{
		GroupsStats: make([]RuntimeStatistics, len(c.groups)),
	}
	for i, g := range c.groups {
		s, err := g.Stats(key)
		if err != nil {
			return out, err
		}
		out.GroupsStats[i] = s
	}
	return out, nil
}

// Sweep evicts the idle keys from every composed group.
func (c *Composite) Sweep() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	evicted := 0
	for _, g := range c.groups {
		evicted += g.Sweep()
	}
	return evicted
}
