package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/automoto/netcode/assets"
	"github.com/automoto/netcode/server/core"
	"github.com/automoto/netcode/shared/netconfig"
	"github.com/automoto/netcode/shared/rules"
	"github.com/automoto/netcode/shared/telemetry"
)

func main() {
	if err := netconfig.LoadEnvFiles(); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg := netconfig.DefaultServer()
	if err := netconfig.ApplyServerEnv(&cfg, nil); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	flag.IntVar(&cfg.Port, "port", cfg.Port, "Server port")
	flag.IntVar(&cfg.TickRate, "tickrate", cfg.TickRate, "Simulation ticks per second")
	flag.IntVar(&cfg.SnapshotEvery, "snapshot-every", cfg.SnapshotEvery, "Broadcast a snapshot every N ticks")
	flag.StringVar(&cfg.Name, "name", cfg.Name, "Server display name")
	flag.StringVar(&cfg.Version, "version", cfg.Version, "Required client version (empty = accept any)")
	flag.Float64Var(&cfg.PlayerSpeed, "movespeed", cfg.PlayerSpeed, "Player movement speed")
	flag.StringVar(&cfg.ArenaPath, "arena", cfg.ArenaPath, "Arena name or .tmx path (empty = open arena)")
	flag.StringVar(&cfg.ArchivePath, "archive", cfg.ArchivePath, "Snapshot archive file (empty = disabled)")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	arena, err := assets.LoadArena(cfg.ArenaPath, netconfig.DefaultArenaWidth, netconfig.DefaultArenaHeight)
	if err != nil {
		log.Fatalf("Failed to load arena: %v", err)
	}
	ruleCfg := rules.DefaultConfig()
	ruleCfg.Speed = cfg.PlayerSpeed
	world := rules.New(arena, ruleCfg)

	counters := &telemetry.Counters{}
	var archive *core.Archive
	if cfg.ArchivePath != "" {
		archive, err = core.OpenArchive(cfg.ArchivePath, cfg.HistoryTicks, counters, telemetry.NewLogger("archive"))
		if err != nil {
			log.Fatalf("Failed to open archive: %v", err)
		}
		defer archive.Close()
	}

	server := core.NewServer(cfg, core.Options{
		Step:     world.StepFunc(),
		Spawn:    world.Spawn,
		Archive:  archive,
		Counters: counters,
		Logger:   telemetry.NewLogger("server"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Starting %q on port %d (arena %q, tick rate %d/s, version %q)",
		cfg.Name, cfg.Port, arena.Name, cfg.TickRate, cfg.Version)
	if err := server.ListenAndServe(ctx, ""); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}
