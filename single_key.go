package throttle

import (
	"strings"
	"time"
)

// SingleKeyThrottle is a proxy applying a Limiter to a fixed key,
// dropping the key parameter. It does not hold a throttle of its own.
type SingleKeyThrottle struct {
	proxied Limiter
	key     string
}

func newSingleKeyThrottle(proxied Limiter, key string) *SingleKeyThrottle {
	if strings.TrimSpace(key) == "" {
		panic("throttle key must not be blank")
	}
	return &SingleKeyThrottle{
		proxied: proxied,
		key:     key,
	}
}

// ForKey returns a proxy submitting to the Group on behalf of key.
// It panics on a blank key.
func (g *Group) ForKey(key string) *SingleKeyThrottle {
	return newSingleKeyThrottle(g, key)
}

// ForKey returns a proxy submitting to the Composite on behalf of key.
// It panics on a blank key.
func (c *Composite) ForKey(key string) *SingleKeyThrottle {
	return newSingleKeyThrottle(c, key)
}

func (p *SingleKeyThrottle) Key() string {
	return p.key
}

func (p *SingleKeyThrottle) Submit(samples uint64) (SubmitResult, error) {
	return p.proxied.Submit(p.key, samples)
}

func (p *SingleKeyThrottle) SubmitUntil(samples uint64, timeout time.Duration) error {
	return p.proxied.SubmitUntil(p.key, samples, timeout)
}

func (p *SingleKeyThrottle) SubmitUntilWithDetails(samples uint64, timeout time.Duration) SubmitUntilResult {
	return p.proxied.SubmitUntilWithDetails(p.key, samples, timeout)
}

func (p *SingleKeyThrottle) Available() (uint64, error) {
	return p.proxied.Available(p.key)
}

func (p *SingleKeyThrottle) IsComposite() bool {
	return p.proxied.IsComposite()
}
