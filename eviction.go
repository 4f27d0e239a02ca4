package throttle

import (
	"fmt"

	"github.com/gammazero/deque"
)

const minQueueCapacity = 16

func newEntryQueue() *deque.Deque {
	return deque.New(minQueueCapacity, minQueueCapacity)
}

// Sweep evicts the keys that have been idle for at least the configured
// IdleTimeout and returns how many were evicted.
//
// Entries are visited in creation order: idle ones are dropped, active ones
// rotate to the back of the queue. Nothing is evicted when IdleTimeout is zero,
// but entries removed with Remove are still purged from the queue.
func (g *Group) Sweep() int {
	now := g.currentTime()

	g.lock.Lock()
	defer g.lock.Unlock()

	idleUs := g.config.IdleTimeout.Microseconds()
	evicted := 0

	for n := g.order.Len(); n > 0; n-- {
		e := g.order.PopFront().(*groupEntry)
		if g.entries[e.key] != e {
			// removed, or replaced by a newer entry for the same key
			continue
		}
		if idleUs > 0 && now.Sub(e.lastSeen) >= idleUs {
			delete(g.entries, e.key)
			evicted++
			continue
		}
		g.order.PushBack(e)
	}

	if evicted > 0 {
		g.metrics.evicted.Add(float64(evicted))
		g.metrics.keys.Set(float64(len(g.entries)))
		g.logger.Debug(fmt.Sprintf("evicted %d idle keys, %d left", evicted, len(g.entries)))
	}
	return evicted
}

// compactOrder drops the stale entries from the queue once they outnumber
// the live ones. Must be called with the lock held.
func (g *Group) compactOrder() {
	if g.order.Len() <= 2*len(g.entries)+16 {
		return
	}
	for n := g.order.Len(); n > 0; n-- {
		e := g.order.PopFront().(*groupEntry)
		if g.entries[e.key] == e {
			g.order.PushBack(e)
		}
	}
}
