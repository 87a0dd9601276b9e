package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/netcode/assets"
	"github.com/automoto/netcode/network"
	"github.com/automoto/netcode/shared/netcomponents"
	"github.com/automoto/netcode/shared/netconfig"
	"github.com/automoto/netcode/shared/netsim"
	"github.com/automoto/netcode/shared/rules"
	"github.com/automoto/netcode/shared/sim"
	"github.com/automoto/netcode/shared/telemetry"
	"github.com/automoto/netcode/shared/tick"
)

// directions the bot cycles through, one leg at a time
var directions = [...]netcomponents.Controls{
	{MoveX: 1}, {MoveX: 1, MoveY: 1}, {MoveY: 1}, {MoveX: -1, MoveY: 1},
	{MoveX: -1}, {MoveX: -1, MoveY: -1}, {MoveY: -1}, {MoveX: 1, MoveY: -1},
}

// wander walks the bot around in legs of legTicks, boosting every other leg.
func wander(legTicks int) network.InputSource {
	return network.InputFunc(func(t tick.Tick) netcomponents.Controls {
		leg := int(t) / legTicks
		c := directions[leg%len(directions)]
		c.Boost = leg%2 == 1
		return c
	})
}

func main() {
	if err := netconfig.LoadEnvFiles(); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg := netconfig.DefaultClient()
	if err := netconfig.ApplyClientEnv(&cfg, nil); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	flag.StringVar(&cfg.ServerAddr, "server", cfg.ServerAddr, "Server websocket URL")
	flag.StringVar(&cfg.PlayerName, "name", cfg.PlayerName, "Player name")
	flag.StringVar(&cfg.Easing, "easing", cfg.Easing, "Remote interpolation curve")
	flag.IntVar(&cfg.InterpDelayTicks, "interp-delay", cfg.InterpDelayTicks, "Remote interpolation delay in ticks")
	flag.IntVar(&cfg.MaxExtrapolation, "extrapolate", cfg.MaxExtrapolation, "Max ticks to extrapolate remotes (0 = off)")
	flag.Float64Var(&cfg.PlayerSpeed, "movespeed", cfg.PlayerSpeed, "Player movement speed, must match the server")
	arenaRef := flag.String("arena", "", "Arena name or .tmx path, must match the server")
	profile := flag.String("profile", "ideal", "Simulated network profile")
	sweep := flag.Bool("sweep", false, "Run every network profile in turn and print a report")
	duration := flag.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	legTicks := flag.Int("leg", 45, "Ticks the bot walks in one direction")
	persist := flag.Bool("persist", true, "Remember the reconnect token between runs")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	arena, err := assets.LoadArena(*arenaRef, netconfig.DefaultArenaWidth, netconfig.DefaultArenaHeight)
	if err != nil {
		log.Fatalf("Failed to load arena: %v", err)
	}
	ruleCfg := rules.DefaultConfig()
	ruleCfg.Speed = cfg.PlayerSpeed
	step := rules.New(arena, ruleCfg).StepFunc()

	var store *network.SessionStore
	if *persist {
		store, err = network.OpenSessionStore(cfg.AppName)
		if err != nil {
			log.Printf("Warning: Could not initialize persistence: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *sweep {
		if *duration <= 0 {
			*duration = 10 * time.Second
		}
		rows := make([]network.ReportRow, 0, len(netsim.Profiles()))
		for _, p := range netsim.Profiles() {
			log.Printf("Running profile %q for %s", p.Name, *duration)
			sum, err := play(ctx, cfg, step, wander(*legTicks), nil, p, *duration)
			if err != nil {
				log.Fatalf("Profile %q: %v", p.Name, err)
			}
			rows = append(rows, network.ReportRow{Name: p.Name, Latency: int(p.Conditions.Latency / time.Millisecond), Summary: sum})
			if ctx.Err() != nil {
				break
			}
		}
		if err := network.WriteReport(os.Stdout, rows); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
		return
	}

	p, err := netsim.LookupProfile(*profile)
	if err != nil {
		log.Fatalf("%v", err)
	}
	sum, err := play(ctx, cfg, step, wander(*legTicks), store, p, *duration)
	if err != nil {
		log.Fatalf("Client error: %v", err)
	}
	network.WriteReport(os.Stdout, []network.ReportRow{{Name: p.Name, Latency: int(p.Conditions.Latency / time.Millisecond), Summary: sum}})
}

// play runs one client until ctx ends or limit elapses, logging its view
// every couple of seconds.
func play(ctx context.Context, cfg netconfig.Client, step sim.Step, input network.InputSource,
	store *network.SessionStore, p netsim.Profile, limit time.Duration) (network.PredictionSummary, error) {
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	opts := network.ClientOptions{
		Step:   step,
		Input:  input,
		Store:  store,
		Logger: telemetry.NewLogger("client"),
	}
	if !p.Conditions.Perfect() {
		opts.Wrap = func(c netsim.Conn) netsim.Conn {
			return netsim.Wrap(ctx, c, p.Conditions, p.Conditions, time.Now().UnixNano())
		}
	}
	client := network.NewClient(cfg, opts)

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sess := client.Session()
				if sess == nil {
					continue
				}
				v := sess.View()
				log.Printf("[bot] tick=%d pos=(%.1f, %.1f) pending=%d remotes=%d rtt=%s snapshot=%d",
					v.Tick, v.Local.Payload.X, v.Local.Payload.Y, v.Pending, len(v.Remotes), v.RTT, v.LastSnapshot)
			}
		}
	}()

	err := client.Run(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return client.Stats().Summary(), err
	}
	return client.Stats().Summary(), nil
}
