// Package netconfig defines the tunables shared between client and server.
// It must have zero dependencies on the simulation packages so both binaries
// can load configuration before anything else starts.
package netconfig

import (
	"errors"
	"fmt"
	"time"
)

// Defaults used by both binaries.
const (
	DefaultPort              = 7373
	DefaultTickRate          = 60
	DefaultSnapshotEvery     = 2   // broadcast every other tick
	DefaultInputTimeoutTicks = 180 // 3s at 60 Hz
	DefaultHistoryTicks      = 120
	DefaultMaxCatchUp        = 8
	DefaultInboxSize         = 1024
	DefaultOutboxSize        = 64
	DefaultInputCapacity     = 128
	DefaultInputsPerSecond   = 240
	DefaultInputBurst        = 64
	DefaultMaxPlayers        = 16

	DefaultInterpDelayTicks  = 6
	DefaultInterpCapacity    = 30
	DefaultMaxExtrapolation  = 0
	DefaultInputLeadTicks    = 2
	DefaultDialRetries       = 5
	DefaultPingInterval      = time.Second
	DefaultMaxBatchedInputs  = 64
	DefaultClientAppName     = "netcode-bot"
	DefaultServerName        = "netcode server"
	DefaultArenaWidth        = 1024
	DefaultArenaHeight       = 768
	DefaultPlayerSpeed       = 5.0
	DefaultServerAddr        = "ws://127.0.0.1:7373/ws"
	ProtocolVersion          = "1"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("netconfig: invalid config")

// Server holds everything the authoritative server needs.
type Server struct {
	Port              int
	Name              string
	Version           string // required client version, empty accepts any
	TickRate          int
	SnapshotEvery     int // broadcast divisor
	InputTimeoutTicks int
	HistoryTicks      int
	MaxCatchUp        int
	InboxSize         int
	OutboxSize        int
	InputCapacity     int
	InputsPerSecond   float64 // per-connection datagram rate
	InputBurst        int
	MaxPlayers        int
	ArenaPath         string // TMX arena, empty uses the open default arena
	ArchivePath       string // bbolt snapshot archive, empty disables it
	PlayerSpeed       float64
}

// Client holds the tunables of a client session.
type Client struct {
	ServerAddr       string
	PlayerName       string
	Version          string
	TickRate         int
	InterpDelayTicks int
	InterpCapacity   int
	MaxExtrapolation int // ticks, 0 disables extrapolation
	Easing           string
	InputLeadTicks   int
	InputCapacity    int
	MaxBatchedInputs int
	DialRetries      uint64
	PingInterval     time.Duration
	InboxSize        int
	AppName          string // gdata namespace for the persisted session
	PlayerSpeed      float64
}

// DefaultServer returns the stock server configuration.
func DefaultServer() Server {
	return Server{
		Port:              DefaultPort,
		Name:              DefaultServerName,
		TickRate:          DefaultTickRate,
		SnapshotEvery:     DefaultSnapshotEvery,
		InputTimeoutTicks: DefaultInputTimeoutTicks,
		HistoryTicks:      DefaultHistoryTicks,
		MaxCatchUp:        DefaultMaxCatchUp,
		InboxSize:         DefaultInboxSize,
		OutboxSize:        DefaultOutboxSize,
		InputCapacity:     DefaultInputCapacity,
		InputsPerSecond:   DefaultInputsPerSecond,
		InputBurst:        DefaultInputBurst,
		MaxPlayers:        DefaultMaxPlayers,
		PlayerSpeed:       DefaultPlayerSpeed,
	}
}

// DefaultClient returns the stock client configuration.
func DefaultClient() Client {
	return Client{
		ServerAddr:       DefaultServerAddr,
		PlayerName:       "bot",
		Version:          ProtocolVersion,
		TickRate:         DefaultTickRate,
		InterpDelayTicks: DefaultInterpDelayTicks,
		InterpCapacity:   DefaultInterpCapacity,
		MaxExtrapolation: DefaultMaxExtrapolation,
		Easing:           "linear",
		InputLeadTicks:   DefaultInputLeadTicks,
		InputCapacity:    DefaultInputCapacity,
		MaxBatchedInputs: DefaultMaxBatchedInputs,
		DialRetries:      DefaultDialRetries,
		PingInterval:     DefaultPingInterval,
		InboxSize:        DefaultInboxSize,
		AppName:          DefaultClientAppName,
		PlayerSpeed:      DefaultPlayerSpeed,
	}
}

// TickInterval converts the tick rate into a duration.
func (c Server) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// TickInterval converts the tick rate into a duration.
func (c Client) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// Validate reports the first unusable field.
func (c Server) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Port)
	case c.TickRate <= 0 || c.TickRate > 1000:
		return fmt.Errorf("%w: tick rate %d", ErrInvalidConfig, c.TickRate)
	case c.SnapshotEvery < 1:
		return fmt.Errorf("%w: snapshot divisor %d", ErrInvalidConfig, c.SnapshotEvery)
	case c.InputTimeoutTicks < 1:
		return fmt.Errorf("%w: input timeout %d ticks", ErrInvalidConfig, c.InputTimeoutTicks)
	case c.HistoryTicks < 1:
		return fmt.Errorf("%w: history %d ticks", ErrInvalidConfig, c.HistoryTicks)
	case c.MaxCatchUp < 1:
		return fmt.Errorf("%w: max catch-up %d", ErrInvalidConfig, c.MaxCatchUp)
	case c.InboxSize < 1 || c.OutboxSize < 1:
		return fmt.Errorf("%w: inbox %d outbox %d", ErrInvalidConfig, c.InboxSize, c.OutboxSize)
	case c.InputCapacity < 1:
		return fmt.Errorf("%w: input capacity %d", ErrInvalidConfig, c.InputCapacity)
	case c.InputsPerSecond <= 0 || c.InputBurst < 1:
		return fmt.Errorf("%w: rate %.1f/s burst %d", ErrInvalidConfig, c.InputsPerSecond, c.InputBurst)
	case c.MaxPlayers < 1:
		return fmt.Errorf("%w: max players %d", ErrInvalidConfig, c.MaxPlayers)
	case c.PlayerSpeed <= 0:
		return fmt.Errorf("%w: player speed %.2f", ErrInvalidConfig, c.PlayerSpeed)
	}
	return nil
}

// Validate reports the first unusable field.
func (c Client) Validate() error {
	switch {
	case c.ServerAddr == "":
		return fmt.Errorf("%w: empty server address", ErrInvalidConfig)
	case c.TickRate <= 0 || c.TickRate > 1000:
		return fmt.Errorf("%w: tick rate %d", ErrInvalidConfig, c.TickRate)
	case c.InterpDelayTicks < 0:
		return fmt.Errorf("%w: interpolation delay %d", ErrInvalidConfig, c.InterpDelayTicks)
	case c.InterpCapacity < 2:
		return fmt.Errorf("%w: interpolation capacity %d", ErrInvalidConfig, c.InterpCapacity)
	case c.MaxExtrapolation < 0:
		return fmt.Errorf("%w: extrapolation %d", ErrInvalidConfig, c.MaxExtrapolation)
	case c.InputCapacity < 1 || c.MaxBatchedInputs < 1:
		return fmt.Errorf("%w: input capacity %d batch %d", ErrInvalidConfig, c.InputCapacity, c.MaxBatchedInputs)
	case c.PingInterval <= 0:
		return fmt.Errorf("%w: ping interval %s", ErrInvalidConfig, c.PingInterval)
	case c.InboxSize < 1:
		return fmt.Errorf("%w: inbox %d", ErrInvalidConfig, c.InboxSize)
	case c.PlayerSpeed <= 0:
		return fmt.Errorf("%w: player speed %.2f", ErrInvalidConfig, c.PlayerSpeed)
	}
	return nil
}
