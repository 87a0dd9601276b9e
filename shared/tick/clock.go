// Package tick converts wall-clock time into discrete, gapless simulation ticks.
package tick

import (
	"fmt"
	"sync"
	"time"
)

// Tick is one fixed-duration simulation step.
type Tick uint32

// Source supplies wall-clock time to a Clock.
type Source interface {
	Now() time.Time
}

// SourceFunc adapts a function into a Source.
type SourceFunc func() time.Time

func (f SourceFunc) Now() time.Time { return f() }

// SystemSource reads the monotonic system clock.
var SystemSource Source = SourceFunc(time.Now)

// ClockConfig tunes a Clock.
type ClockConfig struct {
	Interval   time.Duration // duration of one tick
	MaxCatchUp int           // most ticks a single Due call may hand out
	Start      Tick          // first tick the clock will issue
}

// Due is the contiguous range of ticks [First, First+Count) that must be
// simulated, in order, before the clock catches up with wall time.
type Due struct {
	First   Tick
	Count   int
	Overrun int // pending ticks discarded because debt exceeded MaxCatchUp
}

// Last returns the final tick of the range. Only valid when Count > 0.
func (d Due) Last() Tick {
	return d.First + Tick(d.Count-1)
}

// Ticks expands the range.
func (d Due) Ticks() []Tick {
	out := make([]Tick, d.Count)
	for i := range out {
		out[i] = d.First + Tick(i)
	}
	return out
}

// Clock issues ticks against a fixed origin. Each tick is handed out exactly
// once and in order; when the caller falls too far behind, the origin is
// rebased forward so numbering stays gapless.
type Clock struct {
	mu         sync.Mutex
	source     Source
	interval   time.Duration
	maxCatchUp int
	origin     time.Time
	base       Tick // tick number at origin
	next       Tick // next tick to hand out
}

// NewClock creates a clock whose first tick is due immediately.
func NewClock(cfg ClockConfig, source Source) *Clock {
	if source == nil {
		source = SystemSource
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second / 60
	}
	if cfg.MaxCatchUp < 1 {
		cfg.MaxCatchUp = 1
	}
	return &Clock{
		source:     source,
		interval:   cfg.Interval,
		maxCatchUp: cfg.MaxCatchUp,
		origin:     source.Now(),
		base:       cfg.Start,
		next:       cfg.Start,
	}
}

// Interval returns the duration of one tick.
func (c *Clock) Interval() time.Duration {
	return c.interval
}

// Current returns the tick implied by wall time.
func (c *Clock) Current() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked(c.source.Now())
}

// Next returns the next tick Due will hand out.
func (c *Clock) Next() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Due reports the ticks that have become due since the last call.
func (c *Clock) Due() Due {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.source.Now()
	current := c.currentLocked(now)
	if current < c.next {
		return Due{First: c.next}
	}

	pending := int(current-c.next) + 1
	due := Due{First: c.next, Count: pending}
	if pending > c.maxCatchUp {
		// Discard the oldest pending ticks by moving the origin forward; the
		// remaining window keeps its place right after the last issued tick.
		due.Overrun = pending - c.maxCatchUp
		due.Count = c.maxCatchUp
		c.origin = c.origin.Add(time.Duration(due.Overrun) * c.interval)
	}
	c.next = due.First + Tick(due.Count)
	return due
}

// Sync re-anchors the clock so that Current equals remote+lead now. Ticks that
// were already issued are never reissued.
func (c *Clock) Sync(remote Tick, lead int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := int64(remote) + int64(lead)
	if target < 0 {
		target = 0
	}
	c.origin = c.source.Now()
	c.base = Tick(target)
	if c.next < c.base {
		c.next = c.base
	}
}

// TicksIn converts a duration into a fractional tick count.
func (c *Clock) TicksIn(d time.Duration) float64 {
	return float64(d) / float64(c.interval)
}

// Fraction returns the current tick with its sub-tick progress, for render
// time lookups.
func (c *Clock) Fraction() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := c.source.Now().Sub(c.origin)
	if elapsed < 0 {
		elapsed = 0
	}
	return float64(c.base) + float64(elapsed)/float64(c.interval)
}

func (c *Clock) currentLocked(now time.Time) Tick {
	elapsed := now.Sub(c.origin)
	if elapsed < 0 {
		return c.base
	}
	return c.base + Tick(elapsed/c.interval)
}

// MustFollow panics unless next directly follows prev. Simulation loops use it
// to guard against tick regression, which can only come from a logic bug.
func MustFollow(prev, next Tick) {
	if next != prev+1 {
		panic(fmt.Sprintf("tick: regression or gap, %d followed by %d", prev, next))
	}
}
