// Package netsim reproduces bad network conditions: latency, jitter, loss,
// duplication and out-of-order delivery. Links are seeded so tests replay the
// same weather every run.
package netsim

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Conditions describes one direction of a link.
type Conditions struct {
	Latency   time.Duration // base one-way delay
	Jitter    time.Duration // uniform +/- added to Latency
	Loss      float64       // drop probability, 0..1
	Duplicate float64       // probability a delivered datagram arrives twice
	Shuffle   bool          // deliver each due batch in random order
}

// Perfect reports whether the conditions leave traffic untouched.
func (c Conditions) Perfect() bool {
	return c.Latency == 0 && c.Jitter == 0 && c.Loss == 0 && c.Duplicate == 0 && !c.Shuffle
}

// Stats counts what a link did to its traffic.
type Stats struct {
	Sent       uint64
	Dropped    uint64
	Duplicated uint64
	Delivered  uint64
}

type inflight[T any] struct {
	due time.Time
	seq uint64
	msg T
}

// Link is one direction of a simulated connection. It is safe for
// concurrent use.
type Link[T any] struct {
	mu    sync.Mutex
	cond  Conditions
	rng   *rand.Rand
	queue []inflight[T]
	seq   uint64
	stats Stats
}

// NewLink creates a link with a deterministic random source.
func NewLink[T any](cond Conditions, seed int64) *Link[T] {
	if cond.Loss < 0 {
		cond.Loss = 0
	}
	if cond.Duplicate < 0 {
		cond.Duplicate = 0
	}
	return &Link[T]{cond: cond, rng: rand.New(rand.NewSource(seed))}
}

// Send puts msg on the wire at now. It may be dropped, delayed or doubled.
func (l *Link[T]) Send(now time.Time, msg T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stats.Sent++
	if l.cond.Loss > 0 && l.rng.Float64() < l.cond.Loss {
		l.stats.Dropped++
		return
	}
	l.enqueue(now, msg)
	if l.cond.Duplicate > 0 && l.rng.Float64() < l.cond.Duplicate {
		l.stats.Duplicated++
		l.enqueue(now, msg)
	}
}

func (l *Link[T]) enqueue(now time.Time, msg T) {
	delay := l.cond.Latency
	if l.cond.Jitter > 0 {
		delay += time.Duration(l.rng.Int63n(int64(2*l.cond.Jitter)+1)) - l.cond.Jitter
	}
	if delay < 0 {
		delay = 0
	}
	l.seq++
	item := inflight[T]{due: now.Add(delay), seq: l.seq, msg: msg}
	i := sort.Search(len(l.queue), func(i int) bool {
		q := l.queue[i]
		return q.due.After(item.due) || (q.due.Equal(item.due) && q.seq > item.seq)
	})
	l.queue = append(l.queue, inflight[T]{})
	copy(l.queue[i+1:], l.queue[i:])
	l.queue[i] = item
}

// Poll returns every datagram whose delivery time has passed.
func (l *Link[T]) Poll(now time.Time) []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for n < len(l.queue) && !l.queue[n].due.After(now) {
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = l.queue[i].msg
	}
	l.queue = append(l.queue[:0], l.queue[n:]...)
	if l.cond.Shuffle {
		l.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	l.stats.Delivered += uint64(n)
	return out
}

// Flush delivers everything still in flight regardless of due time.
func (l *Link[T]) Flush() []T {
	l.mu.Lock()
	last := time.Time{}
	if len(l.queue) > 0 {
		last = l.queue[len(l.queue)-1].due
	}
	l.mu.Unlock()
	return l.Poll(last)
}

// Len reports how many datagrams are in flight.
func (l *Link[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Stats returns a copy of the link counters.
func (l *Link[T]) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
