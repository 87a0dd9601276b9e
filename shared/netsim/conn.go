package netsim

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Conn is a datagram connection. Transports in this module satisfy it.
type Conn interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

const (
	// pollEvery is how often in-flight datagrams are checked for delivery.
	pollEvery = time.Millisecond
	// flushTimeout bounds the uplink drain on Close.
	flushTimeout = time.Second
)

// LossyConn wraps a Conn and routes traffic in both directions through Links.
type LossyConn struct {
	inner Conn
	up    *Link[[]byte]
	down  *Link[[]byte]
	recv  chan []byte

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error
}

// Wrap starts the delivery goroutines. up shapes outgoing traffic, down
// shapes incoming traffic.
func Wrap(ctx context.Context, inner Conn, up, down Conditions, seed int64) *LossyConn {
	ctx, cancel := context.WithCancel(ctx)
	c := &LossyConn{
		inner:  inner,
		up:     NewLink[[]byte](up, seed),
		down:   NewLink[[]byte](down, seed+1),
		recv:   make(chan []byte, 256),
		cancel: cancel,
	}
	c.wg.Add(2)
	go c.readLoop(ctx)
	go c.deliverLoop(ctx)
	return c
}

// Send queues data on the uplink. It never blocks on the network.
func (c *LossyConn) Send(ctx context.Context, data []byte) error {
	if err := c.failure(); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.up.Send(time.Now(), buf)
	return nil
}

// Receive returns the next datagram that survived the downlink.
func (c *LossyConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.recv:
		if !ok {
			if err := c.failure(); err != nil {
				return nil, err
			}
			return nil, errors.New("netsim: connection closed")
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close delivers whatever is still in flight on the uplink, as a real
// network would, then stops the goroutines and closes the wrapped connection.
func (c *LossyConn) Close() error {
	if c.failure() == nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		for _, data := range c.up.Flush() {
			if err := c.inner.Send(ctx, data); err != nil {
				break
			}
		}
		cancel()
	}
	c.cancel()
	err := c.inner.Close()
	c.wg.Wait()
	return err
}

// Stats reports uplink and downlink counters.
func (c *LossyConn) Stats() (up, down Stats) {
	return c.up.Stats(), c.down.Stats()
}

func (c *LossyConn) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *LossyConn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

func (c *LossyConn) readLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		data, err := c.inner.Receive(ctx)
		if err != nil {
			c.fail(err)
			c.cancel()
			return
		}
		c.down.Send(time.Now(), data)
	}
}

func (c *LossyConn) deliverLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.recv)

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, data := range c.up.Poll(now) {
				if err := c.inner.Send(ctx, data); err != nil {
					c.fail(err)
					c.cancel()
					return
				}
			}
			for _, data := range c.down.Poll(now) {
				select {
				case c.recv <- data:
				default:
					// receiver is not keeping up, same as a full socket buffer
				}
			}
		}
	}
}
