package core

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"

	"github.com/automoto/netcode/shared/inputbuffer"
	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/netcomponents"
	"github.com/automoto/netcode/shared/sim"
	"github.com/automoto/netcode/shared/telemetry"
	"github.com/automoto/netcode/shared/tick"
)

var (
	ErrServerFull    = errors.New("server full")
	ErrUnknownClient = errors.New("unknown client")
	ErrUnknownToken  = errors.New("unknown or expired reconnect token")
)

// DisconnectReason says why an entity left the simulation.
type DisconnectReason uint8

const (
	ReasonLeft DisconnectReason = iota + 1
	TimeoutDisconnect
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonLeft:
		return "left"
	case TimeoutDisconnect:
		return "timeout"
	}
	return "unknown"
}

// DisconnectEvent reports an entity removed from the simulation.
type DisconnectEvent struct {
	Client netcomponents.ClientID
	Entity netcomponents.EntityID
	Tick   uint32
	Reason DisconnectReason
}

// Spawner picks the starting payload for the n-th joining entity.
type Spawner func(n int) netcomponents.Body

// AuthorityConfig tunes an Authority.
type AuthorityConfig struct {
	InputTimeoutTicks int
	InputCapacity     int
	HistoryTicks      int
	MaxPlayers        int
	Start             tick.Tick // first tick Step will be called with
}

// Authority owns the canonical simulation. It is driven by a single loop and
// is not safe for concurrent use.
type Authority struct {
	world  donburi.World
	pilots *donburi.Query
	step   sim.Step
	spawn  Spawner
	cfg    AuthorityConfig

	byClient map[netcomponents.ClientID]donburi.Entity
	byToken  map[string]netcomponents.ClientID

	nextClient netcomponents.ClientID
	nextEntity netcomponents.EntityID
	joined     int

	tick    uint32 // last simulated tick
	started bool

	history  *History
	events   []DisconnectEvent
	counters *telemetry.Counters
	logger   telemetry.Logger
}

// NewAuthority builds an empty simulation whose first Step must be start.
func NewAuthority(step sim.Step, spawn Spawner, cfg AuthorityConfig, counters *telemetry.Counters, logger telemetry.Logger) *Authority {
	if cfg.InputTimeoutTicks < 1 {
		cfg.InputTimeoutTicks = 1
	}
	if cfg.InputCapacity < 1 {
		cfg.InputCapacity = inputbuffer.DefaultCapacity
	}
	if cfg.HistoryTicks < 1 {
		cfg.HistoryTicks = 1
	}
	if spawn == nil {
		spawn = func(int) netcomponents.Body { return netcomponents.Body{} }
	}
	if counters == nil {
		counters = &telemetry.Counters{}
	}
	a := &Authority{
		world:      donburi.NewWorld(),
		pilots:     donburi.NewQuery(filter.Contains(Pilot, netcomponents.Identity, netcomponents.BodyComponent)),
		step:       step,
		spawn:      spawn,
		cfg:        cfg,
		byClient:   make(map[netcomponents.ClientID]donburi.Entity),
		byToken:    make(map[string]netcomponents.ClientID),
		nextClient: 1,
		nextEntity: 1,
		history:    NewHistory(cfg.HistoryTicks),
		counters:   counters,
		logger:     telemetry.OrDiscard(logger),
	}
	if cfg.Start > 0 {
		a.tick = uint32(cfg.Start) - 1
	}
	return a
}

// Joined describes a freshly created or resumed entity.
type Joined struct {
	Client       netcomponents.ClientID
	Entity       netcomponents.EntityID
	Token        string
	Tick         uint32
	LastSequence uint32 // newest buffered input
	Acked        uint32 // newest simulated input
	Spawn        netcomponents.Body
	Resumed      bool
}

// Join creates an entity for a new client.
func (a *Authority) Join(name string) (Joined, error) {
	if a.cfg.MaxPlayers > 0 && len(a.byClient) >= a.cfg.MaxPlayers {
		return Joined{}, ErrServerFull
	}

	client := a.nextClient
	a.nextClient++
	id := a.nextEntity
	a.nextEntity++

	body := a.spawn(a.joined)
	a.joined++
	token := uuid.NewString()

	entity := a.world.Create(netcomponents.Identity, netcomponents.BodyComponent, Pilot)
	entry := a.world.Entry(entity)
	netcomponents.Identity.Set(entry, &netcomponents.IdentityData{Entity: id, Client: client})
	netcomponents.BodyComponent.Set(entry, &body)
	Pilot.Set(entry, &PilotData{
		Client:    client,
		Name:      name,
		Token:     token,
		Buffer:    inputbuffer.New(id, a.cfg.InputCapacity),
		LastHeard: a.tick,
		Status:    StatusConnected,
	})

	a.byClient[client] = entity
	a.byToken[token] = client
	a.logger.Printf("client %d (%q) joined as entity %d at tick %d", client, name, id, a.tick)

	return Joined{Client: client, Entity: id, Token: token, Tick: a.tick, Spawn: body}, nil
}

// Rejoin resumes the entity behind a reconnect token, as long as it has not
// timed out or left.
func (a *Authority) Rejoin(token string) (Joined, error) {
	client, ok := a.byToken[token]
	if !ok {
		return Joined{}, ErrUnknownToken
	}
	entry := a.world.Entry(a.byClient[client])
	p := Pilot.Get(entry)
	ident := netcomponents.Identity.Get(entry)
	p.LastHeard = a.tick

	a.logger.Printf("client %d resumed entity %d at tick %d", client, ident.Entity, a.tick)
	return Joined{
		Client:       client,
		Entity:       ident.Entity,
		Token:        token,
		Tick:         a.tick,
		LastSequence: p.Buffer.Last(),
		Acked:        p.LastProcessed,
		Spawn:        *netcomponents.BodyComponent.Get(entry),
		Resumed:      true,
	}, nil
}

// Leave removes a client that quit on purpose.
func (a *Authority) Leave(client netcomponents.ClientID) error {
	entity, ok := a.byClient[client]
	if !ok {
		return ErrUnknownClient
	}
	a.disconnect(a.world.Entry(entity), ReasonLeft)
	return nil
}

// Submit pushes one input into the owning entity's buffer. Duplicates,
// gaps and out-of-order commands are rejected with inputbuffer.ErrStaleInput
// and counted.
func (a *Authority) Submit(client netcomponents.ClientID, cmd messages.InputCommand) error {
	entity, ok := a.byClient[client]
	if !ok {
		return ErrUnknownClient
	}
	p := Pilot.Get(a.world.Entry(entity))
	if err := p.Buffer.Push(cmd); err != nil {
		if errors.Is(err, inputbuffer.ErrStaleInput) {
			a.counters.AddStaleInput()
		}
		return fmt.Errorf("client %d: %w", client, err)
	}
	p.LastHeard = a.tick
	if p.Status == StatusConnected {
		p.Status = StatusSimulating
	}
	return nil
}

// SubmitBatch pushes a redundant batch. Commands the buffer already holds
// are skipped quietly; the number of newly accepted commands is returned.
func (a *Authority) SubmitBatch(client netcomponents.ClientID, batch messages.InputBatch) (int, error) {
	entity, ok := a.byClient[client]
	if !ok {
		return 0, ErrUnknownClient
	}
	p := Pilot.Get(a.world.Entry(entity))

	accepted := 0
	var firstErr error
	for _, cmd := range batch.Commands {
		if cmd.Sequence <= p.Buffer.Last() {
			continue
		}
		if err := a.Submit(client, cmd); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		accepted++
	}
	return accepted, firstErr
}

// Step simulates one tick. t must directly follow the previous tick.
func (a *Authority) Step(t tick.Tick) messages.Snapshot {
	if a.started {
		tick.MustFollow(tick.Tick(a.tick), t)
	}
	prev := a.tick
	a.started = true
	a.tick = uint32(t)

	type live struct {
		entity donburi.Entity
		id     netcomponents.EntityID
	}
	var order []live
	a.pilots.Each(a.world, func(entry *donburi.Entry) {
		order = append(order, live{entity: entry.Entity(), id: netcomponents.Identity.Get(entry).Entity})
	})
	sort.Slice(order, func(i, j int) bool { return order[i].id < order[j].id })

	snap := messages.Snapshot{Tick: a.tick}
	for _, l := range order {
		// re-resolve every time, removals reshuffle component storage
		entry := a.world.Entry(l.entity)
		p := Pilot.Get(entry)
		if a.tick-p.LastHeard > uint32(a.cfg.InputTimeoutTicks) {
			a.counters.AddTimeout()
			a.disconnect(entry, TimeoutDisconnect)
			continue
		}

		controls := p.LastInput
		if cmd, ok := p.Buffer.Next(p.LastProcessed); ok {
			controls = cmd.Payload
			p.LastProcessed = cmd.Sequence
			p.LastInput = controls
			p.Buffer.Acknowledge(cmd.Sequence)
		}

		body := netcomponents.BodyComponent.Get(entry)
		state := sim.ApplyAt(a.step, messages.EntityState{EntityID: l.id, Tick: prev, Payload: *body}, controls, a.tick)
		*body = state.Payload

		snap.Entities = append(snap.Entities, state)
		snap.Acks = append(snap.Acks, messages.Ack{ClientID: p.Client, LastSequence: p.LastProcessed})
	}

	a.history.Push(snap)
	return snap
}

func (a *Authority) disconnect(entry *donburi.Entry, reason DisconnectReason) {
	p := Pilot.Get(entry)
	ident := netcomponents.Identity.Get(entry)
	p.Status = StatusDisconnected

	ev := DisconnectEvent{Client: p.Client, Entity: ident.Entity, Tick: a.tick, Reason: reason}
	a.events = append(a.events, ev)

	delete(a.byClient, p.Client)
	delete(a.byToken, p.Token)
	p.Buffer.Reset()
	a.world.Remove(entry.Entity())

	a.logger.Printf("client %d entity %d disconnected at tick %d (%s)", ev.Client, ev.Entity, ev.Tick, reason)
}

// Events drains the disconnect events raised since the last call.
func (a *Authority) Events() []DisconnectEvent {
	out := a.events
	a.events = nil
	return out
}

// Tick returns the last simulated tick.
func (a *Authority) Tick() uint32 {
	return a.tick
}

// PlayerCount returns the number of live entities.
func (a *Authority) PlayerCount() int {
	return len(a.byClient)
}

// History exposes the bounded snapshot history.
func (a *Authority) History() *History {
	return a.history
}

// PilotInfo is a read-only view used by diagnostics and tests.
type PilotInfo struct {
	Client        netcomponents.ClientID
	Entity        netcomponents.EntityID
	Name          string
	Status        PilotStatus
	Buffered      int
	LastProcessed uint32
	Body          netcomponents.Body
}

// Inspect returns the current view of a client's entity.
func (a *Authority) Inspect(client netcomponents.ClientID) (PilotInfo, bool) {
	entity, ok := a.byClient[client]
	if !ok {
		return PilotInfo{}, false
	}
	entry := a.world.Entry(entity)
	p := Pilot.Get(entry)
	return PilotInfo{
		Client:        p.Client,
		Entity:        netcomponents.Identity.Get(entry).Entity,
		Name:          p.Name,
		Status:        p.Status,
		Buffered:      p.Buffer.Len(),
		LastProcessed: p.LastProcessed,
		Body:          *netcomponents.BodyComponent.Get(entry),
	}, true
}
