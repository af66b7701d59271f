// Package timeline owns the replay's single current-time value.
package timeline

import (
	"fmt"
	"math"
	"sync"
)

// Tick is one accepted time change. Seq grows by one on every accepted
// SetTime call, so a larger Seq always means a newer request.
type Tick struct {
	Seq  uint64  `json:"seq"`
	Time float64 `json:"time"`
}

// Controller holds the current time, bounded to [min, max].
type Controller struct {
	min, max float64

	mu      sync.Mutex
	current Tick
	subs    map[*Subscription]struct{}
}

// New returns a controller positioned at initial (clamped).
func New(min, max, initial float64) (*Controller, error) {
	if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
		return nil, fmt.Errorf("timeline bounds must be finite, got [%v, %v]", min, max)
	}
	if min > max {
		return nil, fmt.Errorf("timeline min %v exceeds max %v", min, max)
	}
	c := &Controller{min: min, max: max, subs: make(map[*Subscription]struct{})}
	c.current = Tick{Time: c.clamp(initial)}
	return c, nil
}

func (c *Controller) clamp(t float64) float64 { return Clamp(t, c.min, c.max) }

// Clamp limits t to [min, max]. NaN maps to min.
func Clamp(t, min, max float64) float64 {
	switch {
	case math.IsNaN(t):
		return min
	case t < min:
		return min
	case t > max:
		return max
	}
	return t
}

// SetTime clamps t into the bounds, makes it current and notifies
// subscribers. It is the only way time changes.
func (c *Controller) SetTime(t float64) Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = Tick{Seq: c.current.Seq + 1, Time: c.clamp(t)}
	for s := range c.subs {
		s.offer(c.current)
	}
	return c.current
}

// CurrentTime returns the current time.
func (c *Controller) CurrentTime() float64 { return c.Current().Time }

// Current returns the current tick.
func (c *Controller) Current() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Bounds returns the fixed simulation window.
func (c *Controller) Bounds() (min, max float64) { return c.min, c.max }

// Subscribe registers a listener for time changes. The subscription
// starts primed with the current tick.
func (c *Controller) Subscribe() *Subscription {
	s := &Subscription{c: c, ch: make(chan Tick, 1)}
	c.mu.Lock()
	c.subs[s] = struct{}{}
	s.offer(c.current)
	c.mu.Unlock()
	return s
}

// Subscription is a latest-value mailbox: when the consumer falls behind,
// the pending tick is replaced by the newer one instead of queuing.
type Subscription struct {
	c    *Controller
	ch   chan Tick
	once sync.Once
}

// C delivers ticks. It is closed by Close.
func (s *Subscription) C() <-chan Tick { return s.ch }

// offer is called with c.mu held, so offers never race each other.
func (s *Subscription) offer(t Tick) {
	select {
	case s.ch <- t:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- t
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.c.mu.Lock()
		delete(s.c.subs, s)
		close(s.ch)
		s.c.mu.Unlock()
	})
}
