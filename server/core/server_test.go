package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/netcomponents"
	"github.com/automoto/netcode/shared/netconfig"
	"github.com/automoto/netcode/shared/protocol"
	"github.com/automoto/netcode/shared/telemetry"
	"github.com/automoto/netcode/shared/tick"
)

type fakePeer struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (f *fakePeer) Send(b []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	f.sent = append(f.sent, cp)
	return true
}

func (f *fakePeer) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// messages decodes everything sent so far and clears the buffer.
func (f *fakePeer) messages(t *testing.T) []any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, b := range f.sent {
		msg, err := protocol.Decode(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, msg)
	}
	f.sent = nil
	return out
}

func newTestServer(t *testing.T, mutate func(*netconfig.Server)) *Server {
	t.Helper()
	cfg := netconfig.DefaultServer()
	cfg.SnapshotEvery = 1
	cfg.InputTimeoutTicks = 5
	if mutate != nil {
		mutate(&cfg)
	}
	return NewServer(cfg, Options{
		Step:   slide,
		Logger: telemetry.Discard,
	})
}

func join(t *testing.T, s *Server, peer Peer, req messages.JoinRequest) joinResult {
	t.Helper()
	reply := make(chan joinResult, 1)
	s.handle(joinCmd{peer: peer, req: req, reply: reply})
	return <-reply
}

// serveInbox answers inbox commands the way the loop would, without ticking.
func serveInbox(t *testing.T, s *Server) {
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case cmd := <-s.inbox:
				s.handle(cmd)
			case <-done:
				return
			}
		}
	}()
}

func TestServerJoinSendsAcceptance(t *testing.T) {
	s := newTestServer(t, nil)
	peer := &fakePeer{}

	res := join(t, s, peer, messages.JoinRequest{PlayerName: "ann"})
	if res.err != nil {
		t.Fatalf("join: %v", res.err)
	}
	msgs := peer.messages(t)
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(msgs))
	}
	acc, ok := msgs[0].(messages.JoinAccepted)
	if !ok {
		t.Fatalf("got %T, want JoinAccepted", msgs[0])
	}
	if acc.ClientID != res.client || acc.ReconnectToken == "" || acc.TickRate != netconfig.DefaultTickRate {
		t.Fatalf("accepted = %+v", acc)
	}
	if s.PlayerCount() != 1 {
		t.Fatalf("player count = %d", s.PlayerCount())
	}
}

func TestServerRejectsVersionMismatch(t *testing.T) {
	s := newTestServer(t, func(c *netconfig.Server) { c.Version = "2" })
	peer := &fakePeer{}

	res := join(t, s, peer, messages.JoinRequest{Version: "1"})
	if res.err == nil {
		t.Fatalf("expected rejection")
	}
	msgs := peer.messages(t)
	if _, ok := msgs[0].(messages.JoinRejected); !ok || len(msgs) != 1 {
		t.Fatalf("messages = %#v", msgs)
	}
}

func TestServerBroadcastCarriesAcks(t *testing.T) {
	s := newTestServer(t, nil)
	peer := &fakePeer{}
	res := join(t, s, peer, messages.JoinRequest{PlayerName: "ann"})
	acc := peer.messages(t)[0].(messages.JoinAccepted)

	s.handle(inputCmd{client: res.client, batch: messages.InputBatch{Commands: []messages.InputCommand{
		{EntityID: acc.EntityID, Sequence: 1, Payload: netcomponents.Controls{MoveX: 1}},
		{EntityID: acc.EntityID, Sequence: 2, Payload: netcomponents.Controls{MoveX: 1}},
	}}})
	s.advance(1)
	s.advance(2)

	msgs := peer.messages(t)
	if len(msgs) != 2 {
		t.Fatalf("broadcasts = %d, want 2", len(msgs))
	}
	snap := msgs[1].(messages.Snapshot)
	if snap.Tick != 2 {
		t.Fatalf("snapshot tick = %d", snap.Tick)
	}
	if ack, ok := snap.AckFor(res.client); !ok || ack != 2 {
		t.Fatalf("ack = %d,%v want 2", ack, ok)
	}
	if e, _ := snap.Entity(acc.EntityID); e.Payload.X != 2 || e.Tick != 2 {
		t.Fatalf("entity = %+v", e)
	}
}

func TestServerSnapshotDivisor(t *testing.T) {
	s := newTestServer(t, func(c *netconfig.Server) { c.SnapshotEvery = 3 })
	peer := &fakePeer{}
	join(t, s, peer, messages.JoinRequest{})
	peer.messages(t)

	for tk := tick.Tick(1); tk <= 6; tk++ {
		s.advance(tk)
	}
	msgs := peer.messages(t)
	if len(msgs) != 2 || msgs[0].(messages.Snapshot).Tick != 3 || msgs[1].(messages.Snapshot).Tick != 6 {
		t.Fatalf("broadcast ticks = %#v", msgs)
	}
}

func TestServerPingAndTimeoutClosesPeer(t *testing.T) {
	s := newTestServer(t, nil)
	peer := &fakePeer{}
	join(t, s, peer, messages.JoinRequest{})
	peer.messages(t)

	s.advance(1)
	s.handle(pingCmd{peer: peer, ping: messages.Ping{ClientTime: 42}})
	msgs := peer.messages(t)
	pong, ok := msgs[len(msgs)-1].(messages.Pong)
	if !ok || pong.ClientTime != 42 || pong.ServerTick != 1 {
		t.Fatalf("pong = %#v", msgs[len(msgs)-1])
	}

	for tk := tick.Tick(2); tk <= 7; tk++ {
		s.advance(tk)
	}
	peer.mu.Lock()
	closed := peer.closed
	peer.mu.Unlock()
	if !closed {
		t.Fatalf("timed out peer was not closed")
	}
	if s.PlayerCount() != 0 {
		t.Fatalf("player count = %d after timeout", s.PlayerCount())
	}
}

func TestServerRejoinFromNewConnection(t *testing.T) {
	s := newTestServer(t, nil)
	first := &fakePeer{}
	res := join(t, s, first, messages.JoinRequest{})
	acc := first.messages(t)[0].(messages.JoinAccepted)

	s.handle(peerGoneCmd{client: res.client, peer: first})
	s.advance(1)

	second := &fakePeer{}
	again := join(t, s, second, messages.JoinRequest{ReconnectToken: acc.ReconnectToken})
	if again.err != nil || again.client != res.client {
		t.Fatalf("rejoin = %+v", again)
	}
	resumed := second.messages(t)[0].(messages.JoinAccepted)
	if resumed.EntityID != acc.EntityID {
		t.Fatalf("rejoined as entity %d, want %d", resumed.EntityID, acc.EntityID)
	}
}

func TestServerRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	join(t, s, &fakePeer{}, messages.JoinRequest{})
	s.advance(1)

	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	resp.Body.Close()
	if stats.Players != 1 || stats.LastTick != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestServerSnapshotRouteUsesLoopHistory(t *testing.T) {
	s := newTestServer(t, nil)
	join(t, s, &fakePeer{}, messages.JoinRequest{})
	s.advance(1)

	serveInbox(t, s)

	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/snapshots/1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var snap messages.Snapshot
	json.NewDecoder(resp.Body).Decode(&snap)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || snap.Tick != 1 || len(snap.Entities) != 1 {
		t.Fatalf("status %d snapshot %+v", resp.StatusCode, snap)
	}

	resp, err = http.Get(srv.URL + "/snapshots/999")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing snapshot status = %d", resp.StatusCode)
	}
}

func TestServerSnapshotRouteFallsBackToArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	arch, err := OpenArchive(path, 256, nil, telemetry.Discard)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}

	cfg := netconfig.DefaultServer()
	s := NewServer(cfg, Options{Step: slide, Archive: arch, Logger: telemetry.Discard})
	join(t, s, &fakePeer{}, messages.JoinRequest{})
	for tk := tick.Tick(1); tk <= tick.Tick(cfg.HistoryTicks)+10; tk++ {
		s.advance(tk)
	}
	// Close drains the writer so tick 1 is durable.
	arch.Close()
	arch, err = OpenArchive(path, 8, nil, telemetry.Discard)
	if err != nil {
		t.Fatalf("reopen archive: %v", err)
	}
	defer arch.Close()
	s.archive = arch
	serveInbox(t, s)

	snap, ok, err := s.lookupSnapshot(context.Background(), 1)
	if err != nil || !ok {
		t.Fatalf("lookup = %v,%v", ok, err)
	}
	if snap.Tick != 1 || len(snap.Entities) != 1 {
		t.Fatalf("archived snapshot = %+v", snap)
	}
}

func TestServerLogsResponseEncodeFailure(t *testing.T) {
	var logged []string
	s := NewServer(netconfig.DefaultServer(), Options{
		Step: slide,
		Logger: telemetry.LoggerFunc(func(format string, args ...any) {
			logged = append(logged, fmt.Sprintf(format, args...))
		}),
	})

	logged = nil
	s.writeJSON(httptest.NewRecorder(), http.StatusOK, math.Inf(1))
	if len(logged) != 1 {
		t.Fatalf("logged %q, want one encode failure", logged)
	}

	logged = nil
	s.writeJSON(httptest.NewRecorder(), http.StatusOK, map[string]int{"players": 1})
	if len(logged) != 0 {
		t.Fatalf("logged %q for a valid response", logged)
	}
}
