package core

import (
	"context"
	"time"

	"github.com/automoto/netcode/shared/tick"
)

// GameLoop is the single goroutine that owns the simulation. It interleaves
// inbox commands with clock ticks and never blocks on I/O.
type GameLoop struct {
	server *Server
	clock  *tick.Clock
}

func NewGameLoop(server *Server, clock *tick.Clock) *GameLoop {
	return &GameLoop{server: server, clock: clock}
}

// Run processes commands and ticks until ctx is done.
func (g *GameLoop) Run(ctx context.Context) error {
	// poll at half the tick interval so due ticks are picked up promptly
	ticker := time.NewTicker(g.clock.Interval() / 2)
	defer ticker.Stop()

	g.server.logger.Printf("game loop started at %d ticks/second", g.server.cfg.TickRate)

	for {
		select {
		case <-ctx.Done():
			g.server.logger.Printf("game loop stopped at tick %d", g.server.authority.Tick())
			return ctx.Err()
		case cmd := <-g.server.inbox:
			g.server.handle(cmd)
		case <-ticker.C:
			g.tick()
		}
	}
}

func (g *GameLoop) tick() {
	due := g.clock.Due()
	if due.Overrun > 0 {
		n := g.server.counters.AddClockOverrun(due.Overrun)
		g.server.logger.Printf("clock overrun: discarded %d ticks before %d (%d total)", due.Overrun, due.First, n)
	}
	for i := 0; i < due.Count; i++ {
		g.server.advance(due.First + tick.Tick(i))
	}
}
