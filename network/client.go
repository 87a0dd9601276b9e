package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/coder/websocket"

	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/netconfig"
	"github.com/automoto/netcode/shared/netsim"
	"github.com/automoto/netcode/shared/protocol"
	"github.com/automoto/netcode/shared/sim"
	"github.com/automoto/netcode/shared/telemetry"
)

// ErrJoinRejected wraps the reason the server gave for refusing a join.
var ErrJoinRejected = errors.New("network: join rejected")

const (
	joinTimeout  = 5 * time.Second
	maxReadBytes = 1 << 20
)

type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateJoinedGame
	StateError
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateJoinedGame:
		return "joined"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("ClientState(%d)", int(s))
	}
}

// DialFunc opens a datagram connection to addr.
type DialFunc func(ctx context.Context, addr string) (netsim.Conn, error)

// ClientOptions are the collaborators a Client is built from.
type ClientOptions struct {
	Step          sim.Step
	Input         InputSource
	Dial          DialFunc                      // nil dials a websocket
	Wrap          func(netsim.Conn) netsim.Conn // optional, e.g. simulated network conditions
	Store         *SessionStore                 // nil disables token persistence
	RetryInterval time.Duration                 // first dial retry delay, 0 uses the backoff default
	Counters      *telemetry.Counters
	Stats         *PredictionStats
	Logger        telemetry.Logger
}

// Client dials the server, performs the join handshake and runs sessions,
// resuming with the reconnect token when the connection drops.
// State and LastError are safe from any goroutine.
type Client struct {
	cfg    netconfig.Client
	opts   ClientOptions
	logger telemetry.Logger

	mu        sync.RWMutex
	state     ClientState
	lastError error
	session   *Session
	token     string // newest reconnect token handed out by the server
}

func NewClient(cfg netconfig.Client, opts ClientOptions) *Client {
	if opts.Dial == nil {
		opts.Dial = DialWebsocket
	}
	if opts.Counters == nil {
		opts.Counters = &telemetry.Counters{}
	}
	if opts.Stats == nil {
		opts.Stats = &PredictionStats{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewLogger("client")
	}
	return &Client{cfg: cfg, opts: opts, logger: logger}
}

func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// Session returns the running session, or nil.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Stats returns the prediction totals shared by every session of this client.
func (c *Client) Stats() *PredictionStats {
	return c.opts.Stats
}

// Connect dials with exponential backoff and joins the game.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	c.setState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setError(err)
		return nil, err
	}
	if c.opts.Wrap != nil {
		conn = c.opts.Wrap(conn)
	}
	c.setState(StateConnected)

	welcome, err := c.join(ctx, conn)
	if err != nil {
		conn.Close()
		c.setError(err)
		return nil, err
	}
	c.logger.Printf("join accepted: client=%d entity=%d server=%q tickRate=%d",
		welcome.ClientID, welcome.EntityID, welcome.ServerName, welcome.TickRate)

	if err := c.opts.Store.Save(SavedSession{
		Server:         c.cfg.ServerAddr,
		ReconnectToken: welcome.ReconnectToken,
		PlayerName:     c.cfg.PlayerName,
	}); err != nil {
		c.logger.Printf("Warning: could not save session: %v", err)
	}

	sess, err := NewSession(conn, c.cfg, welcome, SessionOptions{
		Step:     c.opts.Step,
		Input:    c.opts.Input,
		Counters: c.opts.Counters,
		Stats:    c.opts.Stats,
		Logger:   c.logger,
	})
	if err != nil {
		conn.Close()
		c.setError(err)
		return nil, err
	}

	c.mu.Lock()
	c.state = StateJoinedGame
	c.lastError = nil
	c.session = sess
	c.token = welcome.ReconnectToken
	c.mu.Unlock()
	return sess, nil
}

// Run connects and keeps the session alive until ctx is cancelled. A lost
// connection is redialed and the entity resumed with the reconnect token.
func (c *Client) Run(ctx context.Context) error {
	for {
		sess, err := c.Connect(ctx)
		if err != nil {
			return err
		}
		err = sess.Run(ctx)
		c.mu.Lock()
		c.session = nil
		c.mu.Unlock()

		switch {
		case err == nil:
			// deliberate leave, the token is spent
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
			if err := c.opts.Store.Clear(); err != nil {
				c.logger.Printf("Warning: could not clear session: %v", err)
			}
			c.setState(StateDisconnected)
			return nil
		case errors.Is(err, ErrConnectionLost):
			c.logger.Printf("%v, reconnecting", err)
			continue
		default:
			c.setError(err)
			return err
		}
	}
}

func (c *Client) dial(ctx context.Context) (netsim.Conn, error) {
	eb := backoff.NewExponentialBackOff()
	if c.opts.RetryInterval > 0 {
		eb.InitialInterval = c.opts.RetryInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, c.cfg.DialRetries), ctx)

	var conn netsim.Conn
	err := backoff.RetryNotify(func() error {
		var err error
		conn, err = c.opts.Dial(ctx, c.cfg.ServerAddr)
		return err
	}, policy, func(err error, wait time.Duration) {
		c.logger.Printf("dial %s failed: %v, retrying in %s", c.cfg.ServerAddr, err, wait)
	})
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return conn, nil
}

// join sends the join request and waits for the server's verdict. Anything
// else that arrives first is discarded.
func (c *Client) join(ctx context.Context, conn netsim.Conn) (messages.JoinAccepted, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		saved, err := c.opts.Store.Token(c.cfg.ServerAddr)
		if err != nil {
			c.logger.Printf("Warning: could not load session: %v", err)
		}
		token = saved
	}

	payload, err := protocol.Encode(messages.JoinRequest{
		Version:        c.cfg.Version,
		PlayerName:     c.cfg.PlayerName,
		ReconnectToken: token,
	})
	if err != nil {
		return messages.JoinAccepted{}, fmt.Errorf("failed to serialize join request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()
	if err := conn.Send(ctx, payload); err != nil {
		return messages.JoinAccepted{}, fmt.Errorf("failed to send join request: %w", err)
	}

	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			return messages.JoinAccepted{}, fmt.Errorf("waiting for join reply: %w", err)
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.opts.Counters.AddMalformed()
			continue
		}
		switch m := msg.(type) {
		case messages.JoinAccepted:
			return m, nil
		case messages.JoinRejected:
			return messages.JoinAccepted{}, fmt.Errorf("%w: %s", ErrJoinRejected, m.Reason)
		}
	}
}

func (c *Client) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastError = err
	c.mu.Unlock()
}

// DialWebsocket connects to a websocket endpoint and adapts it to a datagram
// connection, one binary message per datagram.
func DialWebsocket(ctx context.Context, addr string) (netsim.Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxReadBytes)
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) Send(ctx context.Context, data []byte) error {
	return w.conn.Write(ctx, websocket.MessageBinary, data)
}

func (w *wsConn) Receive(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := w.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageBinary {
			return data, nil
		}
	}
}

func (w *wsConn) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "")
}
