package core

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/automoto/netcode/shared/telemetry"
)

const (
	writeTimeout = 5 * time.Second
	readLimit    = 64 << 10
)

// Peer is the loop's handle on one client connection. Send must never block:
// a full outbox drops the datagram.
type Peer interface {
	Send(data []byte) bool
	Close() error
}

// wsPeer owns a websocket and the goroutine that writes to it.
type wsPeer struct {
	conn     *websocket.Conn
	outbox   chan []byte
	limiter  *rate.Limiter
	counters *telemetry.Counters

	done      chan struct{}
	closeOnce sync.Once
}

func newWSPeer(conn *websocket.Conn, outbox int, limiter *rate.Limiter, counters *telemetry.Counters) *wsPeer {
	conn.SetReadLimit(readLimit)
	return &wsPeer{
		conn:     conn,
		outbox:   make(chan []byte, outbox),
		limiter:  limiter,
		counters: counters,
		done:     make(chan struct{}),
	}
}

// Send queues data for the writer goroutine.
func (p *wsPeer) Send(data []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.outbox <- data:
		return true
	default:
		p.counters.AddOutboxDropped()
		return false
	}
}

// Close asks the writer to flush what is queued and close the socket.
func (p *wsPeer) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

// allow applies the per-connection datagram rate limit.
func (p *wsPeer) allow() bool {
	if p.limiter == nil || p.limiter.Allow() {
		return true
	}
	p.counters.AddRateLimited()
	return false
}

// writePump drains the outbox until the peer is closed or a write fails.
func (p *wsPeer) writePump(ctx context.Context) {
	defer p.conn.CloseNow()

	write := func(data []byte) bool {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return p.conn.Write(wctx, websocket.MessageBinary, data) == nil
	}

	for {
		select {
		case data := <-p.outbox:
			if !write(data) {
				p.Close()
				return
			}
		case <-p.done:
			for {
				select {
				case data := <-p.outbox:
					if !write(data) {
						return
					}
				default:
					p.conn.Close(websocket.StatusNormalClosure, "")
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
