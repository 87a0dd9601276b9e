package network

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/netcomponents"
	"github.com/automoto/netcode/shared/netconfig"
	"github.com/automoto/netcode/shared/netsim"
	"github.com/automoto/netcode/shared/protocol"
	"github.com/automoto/netcode/shared/sim"
	"github.com/automoto/netcode/shared/telemetry"
	"github.com/automoto/netcode/shared/tick"
)

// ErrConnectionLost is returned by Session.Run when the transport fails.
var ErrConnectionLost = errors.New("network: connection lost")

// resyncThreshold is how far, in ticks, the local clock may fall behind the
// estimated server tick before it is moved forward.
const resyncThreshold = 2

// InputSource produces the local player's controls for a tick.
type InputSource interface {
	Sample(t tick.Tick) netcomponents.Controls
}

// InputFunc adapts a function into an InputSource.
type InputFunc func(t tick.Tick) netcomponents.Controls

func (f InputFunc) Sample(t tick.Tick) netcomponents.Controls { return f(t) }

// SessionOptions are the collaborators a Session is built from.
type SessionOptions struct {
	Step     sim.Step
	Input    InputSource // nil sends idle controls
	Source   tick.Source // nil uses the system clock
	Counters *telemetry.Counters
	Stats    *PredictionStats
	Logger   telemetry.Logger
}

// View is what a renderer needs from one frame of the session.
type View struct {
	Tick         tick.Tick
	Local        messages.EntityState
	Remotes      []messages.EntityState
	Pending      int
	LastSnapshot uint32
	RTT          time.Duration
}

// Session is one joined connection. A single loop goroutine owns the
// predictor, reconciler and interpolator; the transport is read and written
// by their own goroutines and talks to the loop through bounded channels.
type Session struct {
	cfg      netconfig.Client
	conn     netsim.Conn
	welcome  messages.JoinAccepted
	input    InputSource
	source   tick.Source
	counters *telemetry.Counters
	stats    *PredictionStats
	logger   telemetry.Logger

	inbox  chan []byte
	outbox chan []byte

	// owned by the loop
	clock      *tick.Clock
	predictor  *Predictor
	reconciler *Reconciler
	interp     *Interpolator
	lastTick   tick.Tick
	lastPing   time.Time
	rtt        time.Duration
	skipped    uint64

	view atomic.Pointer[View]
}

// NewSession builds the client loop for a connection whose join handshake has
// already completed.
func NewSession(conn netsim.Conn, cfg netconfig.Client, welcome messages.JoinAccepted, opts SessionOptions) (*Session, error) {
	if opts.Step == nil {
		return nil, errors.New("network: session needs a simulation step")
	}
	easing, err := Easing(cfg.Easing)
	if err != nil {
		return nil, err
	}
	if opts.Input == nil {
		opts.Input = InputFunc(func(tick.Tick) netcomponents.Controls { return netcomponents.Controls{} })
	}
	if opts.Source == nil {
		opts.Source = tick.SystemSource
	}
	if opts.Counters == nil {
		opts.Counters = &telemetry.Counters{}
	}
	if opts.Stats == nil {
		opts.Stats = &PredictionStats{}
	}
	if welcome.TickRate > 0 {
		cfg.TickRate = welcome.TickRate
	}

	start := tick.Tick(welcome.ServerTick) + tick.Tick(cfg.InputLeadTicks) + 1
	s := &Session{
		cfg:      cfg,
		conn:     conn,
		welcome:  welcome,
		input:    opts.Input,
		source:   opts.Source,
		counters: opts.Counters,
		stats:    opts.Stats,
		logger:   telemetry.OrDiscard(opts.Logger),
		inbox:    make(chan []byte, cfg.InboxSize),
		outbox:   make(chan []byte, 16),
		clock: tick.NewClock(tick.ClockConfig{
			Interval:   cfg.TickInterval(),
			MaxCatchUp: netconfig.DefaultMaxCatchUp,
			Start:      start,
		}, opts.Source),
		predictor: NewPredictor(opts.Step, welcome.EntityID, cfg.InputCapacity, welcome.LastSequence, welcome.Acked),
		interp: NewInterpolator(InterpolatorConfig{
			Delay:            float64(cfg.InterpDelayTicks),
			Capacity:         cfg.InterpCapacity,
			MaxExtrapolation: float64(cfg.MaxExtrapolation),
			Ease:             easing,
		}),
		lastTick: start - 1,
	}
	s.reconciler = NewReconciler(s.predictor, welcome.ClientID)
	s.predictor.Seed(messages.EntityState{
		EntityID: welcome.EntityID,
		Tick:     welcome.ServerTick,
		Payload:  welcome.Spawn,
	})
	s.publish()
	return s, nil
}

// Welcome returns the server's join acceptance.
func (s *Session) Welcome() messages.JoinAccepted {
	return s.welcome
}

// Stats returns the prediction error totals.
func (s *Session) Stats() *PredictionStats {
	return s.stats
}

// View returns the latest frame. Safe from any goroutine.
func (s *Session) View() View {
	return *s.view.Load()
}

// Run drives the session until ctx is cancelled or the connection fails.
// A cancelled ctx sends Leave before returning.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.writeLoop(gctx) })
	g.Go(func() error { return s.loop(gctx) })

	err := g.Wait()
	if ctx.Err() != nil {
		s.leave()
		s.conn.Close()
		return nil
	}
	s.conn.Close()
	return err
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		data, err := s.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		select {
		case s.inbox <- data:
		default:
			if n := s.counters.AddInboxDropped(); telemetry.PowerOfTwo(n) {
				s.logger.Printf("inbox full, dropped datagram (%d drops so far)", n)
			}
		}
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-s.outbox:
			if err := s.conn.Send(ctx, data); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: %v", ErrConnectionLost, err)
			}
		}
	}
}

func (s *Session) loop(ctx context.Context) error {
	ticker := time.NewTicker(s.clock.Interval() / 2)
	defer ticker.Stop()

	s.logger.Printf("session started as entity %d at tick %d", s.welcome.EntityID, s.clock.Next())
	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("session stopped at tick %d", s.lastTick)
			return nil
		case data := <-s.inbox:
			s.receive(data)
		case <-ticker.C:
			s.tick()
		}
	}
}

// leave tells the server this is a deliberate exit. It writes to the
// connection directly since the writer has stopped.
func (s *Session) leave() {
	data, err := protocol.Encode(messages.Leave{ClientID: s.welcome.ClientID})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	s.conn.Send(ctx, data)
}

func (s *Session) tick() {
	due := s.clock.Due()
	if due.Overrun > 0 {
		n := s.counters.AddClockOverrun(due.Overrun)
		s.logger.Printf("clock overrun: discarded %d ticks before %d (%d total)", due.Overrun, due.First, n)
	}
	for i := 0; i < due.Count; i++ {
		s.advance(due.First + tick.Tick(i))
	}
	if due.Count > 0 {
		s.sendInputs()
	}
	if now := s.source.Now(); now.Sub(s.lastPing) >= s.cfg.PingInterval {
		s.lastPing = now
		s.enqueue(messages.Ping{ClientTime: now.UnixNano()})
	}
	s.publish()
}

// advance samples and predicts local tick t.
func (s *Session) advance(t tick.Tick) {
	if t <= s.lastTick {
		panic(fmt.Sprintf("network: tick regression, %d after %d", t, s.lastTick))
	}
	s.lastTick = t

	controls := s.input.Sample(t)
	if _, _, err := s.predictor.Predict(t, controls); err != nil {
		s.skipped++
		if telemetry.PowerOfTwo(s.skipped) {
			s.logger.Printf("prediction skipped at tick %d: %v (%d so far)", t, err, s.skipped)
		}
	}
}

// sendInputs resends every unacknowledged input so a lost datagram is
// covered by the next one.
func (s *Session) sendInputs() {
	cmds := s.predictor.Unacked(s.cfg.MaxBatchedInputs)
	if len(cmds) == 0 {
		return
	}
	s.enqueue(messages.InputBatch{Commands: cmds})
}

func (s *Session) enqueue(msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Printf("encode %T: %v", msg, err)
		return
	}
	select {
	case s.outbox <- data:
	default:
		if n := s.counters.AddOutboxDropped(); telemetry.PowerOfTwo(n) {
			s.logger.Printf("outbox full, dropped %T (%d drops so far)", msg, n)
		}
	}
}

func (s *Session) receive(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		if n := s.counters.AddMalformed(); telemetry.PowerOfTwo(n) {
			s.logger.Printf("dropping malformed datagram: %v (%d so far)", err, n)
		}
		return
	}
	switch m := msg.(type) {
	case messages.Snapshot:
		s.applySnapshot(m)
	case messages.Pong:
		s.applyPong(m)
	case messages.JoinAccepted, messages.JoinRejected:
		// duplicate handshake replies after the session started
	default:
		s.logger.Printf("unexpected %T from server", msg)
	}
}

func (s *Session) applySnapshot(snap messages.Snapshot) {
	if c, ok := s.reconciler.Apply(snap); ok {
		s.stats.Record(c)
	}
	s.interp.Observe(snap, s.predictor.Entity())
	s.counters.RecordTick(s.reconciler.LastTick())
}

func (s *Session) applyPong(p messages.Pong) {
	rtt := s.source.Now().Sub(time.Unix(0, p.ClientTime))
	if rtt < 0 {
		return
	}
	s.rtt = rtt

	// the server is half a round trip further along than the pong says
	remote := float64(p.ServerTick) + s.clock.TicksIn(rtt/2)
	target := tick.Tick(remote) + tick.Tick(s.cfg.InputLeadTicks)
	if current := s.clock.Current(); target > current+resyncThreshold {
		s.logger.Printf("local clock behind server, moving from tick %d to %d", current, target)
		s.clock.Sync(tick.Tick(remote), s.cfg.InputLeadTicks)
	}
}

// renderTick is the server tick of the newest snapshot that can have
// arrived by now: the estimated server tick less the one way trip. The
// interpolator delay is measured back from there.
func (s *Session) renderTick() float64 {
	return s.clock.Fraction() - float64(s.cfg.InputLeadTicks) - s.clock.TicksIn(s.rtt/2)
}

func (s *Session) publish() {
	v := &View{
		Tick:         s.lastTick,
		Local:        s.predictor.Predicted(),
		Pending:      s.predictor.Pending(),
		LastSnapshot: s.reconciler.LastTick(),
		RTT:          s.rtt,
	}
	at := s.renderTick()
	for _, id := range s.interp.Entities() {
		if st, ok := s.interp.State(id, at); ok {
			v.Remotes = append(v.Remotes, st)
		}
	}
	s.view.Store(v)
}
