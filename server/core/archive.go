package core

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pierrec/lz4/v4"
	bolt "go.etcd.io/bbolt"

	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/protocol"
	"github.com/automoto/netcode/shared/telemetry"
)

var snapshotBucket = []byte("snapshots")

// ErrNotArchived is returned for ticks the archive never stored.
var ErrNotArchived = errors.New("snapshot not archived")

// Archive is an append-only, on-disk record of snapshots keyed by tick.
// Store never blocks the simulation loop: records are queued and written in
// batches by a background goroutine.
type Archive struct {
	db       *bolt.DB
	queue    chan messages.Snapshot
	counters *telemetry.Counters
	logger   telemetry.Logger

	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
}

// OpenArchive opens or creates the bbolt file at path.
func OpenArchive(path string, queue int, counters *telemetry.Counters, logger telemetry.Logger) (*Archive, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	if queue < 1 {
		queue = 256
	}
	if counters == nil {
		counters = &telemetry.Counters{}
	}
	a := &Archive{
		db:       db,
		queue:    make(chan messages.Snapshot, queue),
		counters: counters,
		logger:   telemetry.OrDiscard(logger),
		done:     make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writeLoop()
	return a, nil
}

// Store queues snap for writing. A full queue drops the snapshot.
func (a *Archive) Store(snap messages.Snapshot) bool {
	select {
	case a.queue <- snap:
		return true
	default:
		if n := a.counters.AddArchiveDropped(); telemetry.PowerOfTwo(n) {
			a.logger.Printf("archive queue full, dropped snapshot %d (%d drops so far)", snap.Tick, n)
		}
		return false
	}
}

func (a *Archive) writeLoop() {
	defer a.wg.Done()
	for {
		select {
		case snap := <-a.queue:
			batch := []messages.Snapshot{snap}
		drain:
			for len(batch) < cap(a.queue) {
				select {
				case s := <-a.queue:
					batch = append(batch, s)
				default:
					break drain
				}
			}
			if err := a.write(batch); err != nil {
				a.logger.Printf("archive write failed for %d snapshots: %v", len(batch), err)
			}
		case <-a.done:
			a.flush()
			return
		}
	}
}

// flush writes whatever is still queued.
func (a *Archive) flush() {
	var rest []messages.Snapshot
	for {
		select {
		case s := <-a.queue:
			rest = append(rest, s)
		default:
			if len(rest) == 0 {
				return
			}
			if err := a.write(rest); err != nil {
				a.logger.Printf("archive flush failed: %v", err)
			}
			return
		}
	}
}

func (a *Archive) write(batch []messages.Snapshot) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(snapshotBucket)
		for _, snap := range batch {
			value, err := compress(snap)
			if err != nil {
				return fmt.Errorf("tick %d: %w", snap.Tick, err)
			}
			if err := b.Put(tickKey(snap.Tick), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads one snapshot back.
func (a *Archive) Load(tick uint32) (messages.Snapshot, error) {
	var raw []byte
	err := a.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(snapshotBucket).Get(tickKey(tick))
		if v == nil {
			return ErrNotArchived
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return messages.Snapshot{}, err
	}
	return decompress(raw)
}

// Range calls fn for every archived snapshot with from <= tick <= to, in
// tick order. Returning false stops the walk.
func (a *Archive) Range(ctx context.Context, from, to uint32, fn func(messages.Snapshot) bool) error {
	return a.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(snapshotBucket).Cursor()
		for k, v := c.Seek(tickKey(from)); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if binary.BigEndian.Uint32(k) > to {
				return nil
			}
			snap, err := decompress(v)
			if err != nil {
				return err
			}
			if !fn(snap) {
				return nil
			}
		}
		return nil
	})
}

// Close flushes queued snapshots and closes the file.
func (a *Archive) Close() error {
	var err error
	a.closed.Do(func() {
		close(a.done)
		a.wg.Wait()
		err = a.db.Close()
	})
	return err
}

func tickKey(t uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, t)
	return k
}

func compress(snap messages.Snapshot) ([]byte, error) {
	raw, err := protocol.Marshal(snap)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(value []byte) (messages.Snapshot, error) {
	raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(value)))
	if err != nil {
		return messages.Snapshot{}, fmt.Errorf("lz4: %w", err)
	}
	var snap messages.Snapshot
	if err := protocol.Unmarshal(raw, &snap); err != nil {
		return messages.Snapshot{}, err
	}
	snap.Stamp()
	return snap, nil
}
