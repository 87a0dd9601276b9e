package netconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are skipped; variables already set in the environment win.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("netconfig: load %s: %w", f, err)
		}
	}
	return nil
}

// Lookup reads environment variables. os.LookupEnv satisfies it.
type Lookup func(key string) (string, bool)

// ApplyServerEnv overrides fields from NETCODE_* variables.
func ApplyServerEnv(c *Server, lookup Lookup) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	e := envReader{lookup: lookup}
	e.int("NETCODE_PORT", &c.Port)
	e.str("NETCODE_SERVER_NAME", &c.Name)
	e.str("NETCODE_VERSION", &c.Version)
	e.int("NETCODE_TICK_RATE", &c.TickRate)
	e.int("NETCODE_SNAPSHOT_EVERY", &c.SnapshotEvery)
	e.int("NETCODE_INPUT_TIMEOUT_TICKS", &c.InputTimeoutTicks)
	e.int("NETCODE_HISTORY_TICKS", &c.HistoryTicks)
	e.int("NETCODE_MAX_PLAYERS", &c.MaxPlayers)
	e.float("NETCODE_INPUTS_PER_SECOND", &c.InputsPerSecond)
	e.float("NETCODE_PLAYER_SPEED", &c.PlayerSpeed)
	e.str("NETCODE_ARENA", &c.ArenaPath)
	e.str("NETCODE_ARCHIVE", &c.ArchivePath)
	return e.err
}

// ApplyClientEnv overrides fields from NETCODE_* variables.
func ApplyClientEnv(c *Client, lookup Lookup) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	e := envReader{lookup: lookup}
	e.str("NETCODE_SERVER_ADDR", &c.ServerAddr)
	e.str("NETCODE_PLAYER_NAME", &c.PlayerName)
	e.int("NETCODE_TICK_RATE", &c.TickRate)
	e.int("NETCODE_INTERP_DELAY_TICKS", &c.InterpDelayTicks)
	e.int("NETCODE_MAX_EXTRAPOLATION", &c.MaxExtrapolation)
	e.str("NETCODE_EASING", &c.Easing)
	e.duration("NETCODE_PING_INTERVAL", &c.PingInterval)
	e.float("NETCODE_PLAYER_SPEED", &c.PlayerSpeed)
	return e.err
}

// envReader keeps the first parse error and skips the rest.
type envReader struct {
	lookup Lookup
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(key)
	return v, ok && v != ""
}

func (e *envReader) fail(key, v string, err error) {
	e.err = fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, v, err)
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}
