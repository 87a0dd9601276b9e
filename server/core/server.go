package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/automoto/netcode/shared/inputbuffer"
	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/netcomponents"
	"github.com/automoto/netcode/shared/netconfig"
	"github.com/automoto/netcode/shared/protocol"
	"github.com/automoto/netcode/shared/sim"
	"github.com/automoto/netcode/shared/telemetry"
	"github.com/automoto/netcode/shared/tick"
)

// Inbox commands. I/O goroutines build them, only the loop consumes them.
type (
	joinCmd struct {
		peer  Peer
		req   messages.JoinRequest
		reply chan joinResult
	}
	joinResult struct {
		client netcomponents.ClientID
		err    error
	}
	inputCmd struct {
		client netcomponents.ClientID
		batch  messages.InputBatch
	}
	leaveCmd struct {
		client netcomponents.ClientID
	}
	peerGoneCmd struct {
		client netcomponents.ClientID
		peer   Peer
	}
	pingCmd struct {
		peer Peer
		ping messages.Ping
	}
	historyQuery struct {
		tick  uint32
		reply chan historyAnswer
	}
	historyAnswer struct {
		snap messages.Snapshot
		ok   bool
	}
)

// Options are the collaborators a Server is built from.
type Options struct {
	Step     sim.Step
	Spawn    Spawner
	Source   tick.Source // nil uses the system clock
	Archive  *Archive    // nil disables archiving
	Counters *telemetry.Counters
	Logger   telemetry.Logger
}

// Server manages the authoritative simulation and client connections.
type Server struct {
	cfg       netconfig.Server
	authority *Authority
	loop      *GameLoop
	inbox     chan any
	archive   *Archive
	counters  *telemetry.Counters
	logger    telemetry.Logger

	// owned by the loop
	peers map[netcomponents.ClientID]Peer

	players atomic.Int32
}

// NewServer creates a new game server.
func NewServer(cfg netconfig.Server, opts Options) *Server {
	if opts.Counters == nil {
		opts.Counters = &telemetry.Counters{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewLogger("server")
	}

	s := &Server{
		cfg:      cfg,
		inbox:    make(chan any, cfg.InboxSize),
		archive:  opts.Archive,
		counters: opts.Counters,
		logger:   logger,
		peers:    make(map[netcomponents.ClientID]Peer),
	}
	s.authority = NewAuthority(opts.Step, opts.Spawn, AuthorityConfig{
		InputTimeoutTicks: cfg.InputTimeoutTicks,
		InputCapacity:     cfg.InputCapacity,
		HistoryTicks:      cfg.HistoryTicks,
		MaxPlayers:        cfg.MaxPlayers,
		Start:             1,
	}, opts.Counters, logger)

	clock := tick.NewClock(tick.ClockConfig{
		Interval:   cfg.TickInterval(),
		MaxCatchUp: cfg.MaxCatchUp,
		Start:      1,
	}, opts.Source)
	s.loop = NewGameLoop(s, clock)
	return s
}

// Authority exposes the simulation for diagnostics and tests. It must only be
// touched from the loop goroutine while Run is active.
func (s *Server) Authority() *Authority {
	return s.authority
}

// Counters returns the server's degradation counters.
func (s *Server) Counters() *telemetry.Counters {
	return s.counters
}

// PlayerCount returns the number of live entities. Safe from any goroutine.
func (s *Server) PlayerCount() int {
	return int(s.players.Load())
}

// Run drives the loop until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer s.closePeers()
	return s.loop.Run(ctx)
}

// ListenAndServe runs the loop and the HTTP endpoint together.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = net.JoinHostPort("", strconv.Itoa(s.cfg.Port))
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Run(ctx)
	})
	g.Go(func() error {
		s.logger.Printf("listening on %s (tick rate %d/s, snapshot every %d ticks)", addr, s.cfg.TickRate, s.cfg.SnapshotEvery)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// enqueue hands a command to the loop without blocking. A full inbox drops
// the command.
func (s *Server) enqueue(cmd any) bool {
	select {
	case s.inbox <- cmd:
		return true
	default:
		if n := s.counters.AddInboxDropped(); telemetry.PowerOfTwo(n) {
			s.logger.Printf("inbox full, dropped %T (%d drops so far)", cmd, n)
		}
		return false
	}
}

func (s *Server) handle(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		s.handleJoin(c)
	case inputCmd:
		s.handleInput(c)
	case leaveCmd:
		if err := s.authority.Leave(c.client); err != nil {
			s.logger.Printf("leave from client %d: %v", c.client, err)
		}
		s.flushEvents()
	case peerGoneCmd:
		// the entity lives on until it times out so the client can rejoin
		if cur, ok := s.peers[c.client]; ok && cur == c.peer {
			delete(s.peers, c.client)
			s.logger.Printf("client %d connection lost", c.client)
		}
	case pingCmd:
		s.send(c.peer, messages.Pong{ClientTime: c.ping.ClientTime, ServerTick: s.authority.Tick()})
	case historyQuery:
		snap, ok := s.authority.History().At(c.tick)
		c.reply <- historyAnswer{snap: snap, ok: ok}
	default:
		s.logger.Printf("unknown inbox command %T", cmd)
	}
}

func (s *Server) handleJoin(c joinCmd) {
	reject := func(reason string) {
		s.send(c.peer, messages.JoinRejected{Reason: reason})
		c.reply <- joinResult{err: errors.New(reason)}
	}

	if s.cfg.Version != "" && c.req.Version != s.cfg.Version {
		reject(fmt.Sprintf("version mismatch: server requires %q", s.cfg.Version))
		return
	}

	var (
		joined Joined
		err    error
	)
	if c.req.ReconnectToken != "" {
		joined, err = s.authority.Rejoin(c.req.ReconnectToken)
		if errors.Is(err, ErrUnknownToken) {
			s.logger.Printf("reconnect token expired, joining %q as a new player", c.req.PlayerName)
			joined, err = s.authority.Join(c.req.PlayerName)
		}
	} else {
		joined, err = s.authority.Join(c.req.PlayerName)
	}
	if err != nil {
		reject(err.Error())
		return
	}

	if old, ok := s.peers[joined.Client]; ok && old != c.peer {
		old.Close()
	}
	s.peers[joined.Client] = c.peer
	s.players.Store(int32(s.authority.PlayerCount()))

	s.send(c.peer, messages.JoinAccepted{
		ClientID:       joined.Client,
		EntityID:       joined.Entity,
		ReconnectToken: joined.Token,
		ServerName:     s.cfg.Name,
		TickRate:       s.cfg.TickRate,
		ServerTick:     joined.Tick,
		LastSequence:   joined.LastSequence,
		Acked:          joined.Acked,
		Spawn:          joined.Spawn,
	})
	c.reply <- joinResult{client: joined.Client}
}

func (s *Server) handleInput(c inputCmd) {
	_, err := s.authority.SubmitBatch(c.client, c.batch)
	switch {
	case err == nil:
	case errors.Is(err, inputbuffer.ErrStaleInput):
		if n := s.counters.Snapshot().StaleInputs; telemetry.PowerOfTwo(n) {
			s.logger.Printf("stale input: %v (%d so far)", err, n)
		}
	case errors.Is(err, ErrUnknownClient):
		// late datagram from a client that already left
	default:
		s.logger.Printf("input rejected: %v", err)
	}
}

// advance simulates tick t and ships the result.
func (s *Server) advance(t tick.Tick) {
	snap := s.authority.Step(t)
	s.counters.RecordTick(snap.Tick)
	s.flushEvents()

	if s.archive != nil {
		s.archive.Store(snap)
	}
	if int(snap.Tick)%s.cfg.SnapshotEvery == 0 {
		s.broadcast(snap)
	}
}

func (s *Server) flushEvents() {
	for _, ev := range s.authority.Events() {
		if peer, ok := s.peers[ev.Client]; ok {
			peer.Close()
			delete(s.peers, ev.Client)
		}
		if ev.Reason == TimeoutDisconnect {
			s.logger.Printf("client %d timed out at tick %d", ev.Client, ev.Tick)
		}
	}
	s.players.Store(int32(s.authority.PlayerCount()))
}

func (s *Server) broadcast(snap messages.Snapshot) {
	data, err := protocol.Encode(snap)
	if err != nil {
		s.logger.Printf("encode snapshot %d: %v", snap.Tick, err)
		return
	}
	for _, peer := range s.peers {
		if peer.Send(data) {
			s.counters.RecordBroadcast(len(data))
		}
	}
}

func (s *Server) send(peer Peer, msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Printf("encode %T: %v", msg, err)
		return
	}
	peer.Send(data)
}

func (s *Server) closePeers() {
	for id, peer := range s.peers {
		peer.Close()
		delete(s.peers, id)
	}
}

// serveWS upgrades a request and reads datagrams until the connection drops.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Printf("websocket accept: %v", err)
		return
	}

	ctx := r.Context()
	limiter := rate.NewLimiter(rate.Limit(s.cfg.InputsPerSecond), s.cfg.InputBurst)
	peer := newWSPeer(conn, s.cfg.OutboxSize, limiter, s.counters)
	go peer.writePump(context.WithoutCancel(ctx))
	defer peer.Close()

	var (
		client netcomponents.ClientID
		joined bool
	)
	defer func() {
		if joined {
			s.enqueue(peerGoneCmd{client: client, peer: peer})
		}
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if !peer.allow() {
			continue
		}
		if typ != websocket.MessageBinary {
			s.malformed(client, fmt.Errorf("%w: text frame", protocol.ErrMalformedMessage))
			continue
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			s.malformed(client, err)
			continue
		}

		switch m := msg.(type) {
		case messages.JoinRequest:
			if joined {
				continue
			}
			reply := make(chan joinResult, 1)
			if !s.enqueue(joinCmd{peer: peer, req: m, reply: reply}) {
				return
			}
			select {
			case res := <-reply:
				if res.err != nil {
					return
				}
				client, joined = res.client, true
			case <-ctx.Done():
				return
			}
		case messages.InputBatch:
			if joined {
				s.enqueue(inputCmd{client: client, batch: m})
			}
		case messages.Ping:
			s.enqueue(pingCmd{peer: peer, ping: m})
		case messages.Leave:
			if joined {
				s.enqueue(leaveCmd{client: client})
				joined = false
			}
			return
		default:
			s.malformed(client, fmt.Errorf("%w: unexpected %T from client", protocol.ErrMalformedMessage, msg))
		}
	}
}

func (s *Server) malformed(client netcomponents.ClientID, err error) {
	if n := s.counters.AddMalformed(); telemetry.PowerOfTwo(n) {
		s.logger.Printf("dropping malformed datagram from client %d: %v (%d so far)", client, err, n)
	}
}
