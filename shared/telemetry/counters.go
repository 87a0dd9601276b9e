package telemetry

import "sync/atomic"

// Counters tracks degradations that are handled locally but worth reporting.
// All fields are safe for concurrent use.
type Counters struct {
	malformedMessages atomic.Uint64
	staleInputs       atomic.Uint64
	clockOverruns     atomic.Uint64
	inboxDropped      atomic.Uint64
	outboxDropped     atomic.Uint64
	archiveDropped    atomic.Uint64
	rateLimited       atomic.Uint64
	timeouts          atomic.Uint64
	snapshotsSent     atomic.Uint64
	bytesSent         atomic.Uint64
	lastTick          atomic.Uint32
}

// CountersSnapshot is a point-in-time copy of Counters.
type CountersSnapshot struct {
	MalformedMessages uint64 `json:"malformedMessages"`
	StaleInputs       uint64 `json:"staleInputs"`
	ClockOverruns     uint64 `json:"clockOverruns"`
	InboxDropped      uint64 `json:"inboxDropped"`
	OutboxDropped     uint64 `json:"outboxDropped"`
	ArchiveDropped    uint64 `json:"archiveDropped"`
	RateLimited       uint64 `json:"rateLimited"`
	Timeouts          uint64 `json:"timeouts"`
	SnapshotsSent     uint64 `json:"snapshotsSent"`
	BytesSent         uint64 `json:"bytesSent"`
	LastTick          uint32 `json:"lastTick"`
}

// Each Add method returns the updated total so callers can throttle logs.

func (c *Counters) AddMalformed() uint64 { return c.malformedMessages.Add(1) }

func (c *Counters) AddStaleInput() uint64 { return c.staleInputs.Add(1) }

func (c *Counters) AddClockOverrun(ticks int) uint64 {
	if ticks < 0 {
		ticks = 0
	}
	return c.clockOverruns.Add(uint64(ticks))
}

func (c *Counters) AddInboxDropped() uint64 { return c.inboxDropped.Add(1) }

func (c *Counters) AddOutboxDropped() uint64 { return c.outboxDropped.Add(1) }

func (c *Counters) AddArchiveDropped() uint64 { return c.archiveDropped.Add(1) }

func (c *Counters) AddRateLimited() uint64 { return c.rateLimited.Add(1) }

func (c *Counters) AddTimeout() uint64 { return c.timeouts.Add(1) }

// RecordBroadcast counts one snapshot sent to one connection.
func (c *Counters) RecordBroadcast(bytes int) {
	if bytes < 0 {
		bytes = 0
	}
	c.snapshotsSent.Add(1)
	c.bytesSent.Add(uint64(bytes))
}

// RecordTick stores the most recently simulated tick.
func (c *Counters) RecordTick(t uint32) { c.lastTick.Store(t) }

// Snapshot copies the current counter values.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		MalformedMessages: c.malformedMessages.Load(),
		StaleInputs:       c.staleInputs.Load(),
		ClockOverruns:     c.clockOverruns.Load(),
		InboxDropped:      c.inboxDropped.Load(),
		OutboxDropped:     c.outboxDropped.Load(),
		ArchiveDropped:    c.archiveDropped.Load(),
		RateLimited:       c.rateLimited.Load(),
		Timeouts:          c.timeouts.Load(),
		SnapshotsSent:     c.snapshotsSent.Load(),
		BytesSent:         c.bytesSent.Load(),
		LastTick:          c.lastTick.Load(),
	}
}
