// Package inputbuffer keeps the ordered log of one entity's input commands
// until they are acknowledged.
package inputbuffer

import (
	"errors"
	"fmt"

	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/netcomponents"
)

// DefaultCapacity bounds a buffer at roughly two seconds of 60 Hz input.
const DefaultCapacity = 128

var (
	// ErrStaleInput rejects a command whose sequence is not exactly last+1.
	ErrStaleInput = errors.New("inputbuffer: stale input")
	// ErrWrongEntity rejects a command addressed to another entity.
	ErrWrongEntity = errors.New("inputbuffer: command for another entity")
	// ErrBufferFull rejects a command when every slot holds an unacknowledged input.
	ErrBufferFull = errors.New("inputbuffer: buffer full")
)

// Buffer is a ring of commands ordered by sequence number. It is owned by a
// single simulation loop and is not safe for concurrent use.
type Buffer struct {
	entity netcomponents.EntityID
	data   []messages.InputCommand
	head   int
	count  int
	last   uint32 // sequence of the most recently pushed command
}

// New creates an empty buffer whose first accepted command has sequence 1.
func New(entity netcomponents.EntityID, capacity int) *Buffer {
	return NewAt(entity, capacity, 0)
}

// NewAt creates an empty buffer whose first accepted command has sequence last+1.
func NewAt(entity netcomponents.EntityID, capacity int, last uint32) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entity: entity,
		data:   make([]messages.InputCommand, capacity),
		last:   last,
	}
}

// Entity returns the entity the buffer belongs to.
func (b *Buffer) Entity() netcomponents.EntityID {
	return b.entity
}

// Push appends cmd. Anything other than the next sequence is rejected with
// ErrStaleInput and leaves the buffer unchanged.
func (b *Buffer) Push(cmd messages.InputCommand) error {
	if cmd.EntityID != b.entity {
		return fmt.Errorf("%w: got %d, want %d", ErrWrongEntity, cmd.EntityID, b.entity)
	}
	if cmd.Sequence != b.last+1 {
		return fmt.Errorf("%w: sequence %d after %d", ErrStaleInput, cmd.Sequence, b.last)
	}
	if b.count == len(b.data) {
		return ErrBufferFull
	}
	b.data[(b.head+b.count)%len(b.data)] = cmd
	b.count++
	b.last = cmd.Sequence
	return nil
}

// DrainUnacked returns a copy of every buffered command with sequence greater
// than after, in ascending order. The buffer is not modified.
func (b *Buffer) DrainUnacked(after uint32) []messages.InputCommand {
	var out []messages.InputCommand
	for i := 0; i < b.count; i++ {
		cmd := b.data[(b.head+i)%len(b.data)]
		if cmd.Sequence > after {
			out = append(out, cmd)
		}
	}
	return out
}

// Next returns the oldest command with sequence greater than after.
func (b *Buffer) Next(after uint32) (messages.InputCommand, bool) {
	for i := 0; i < b.count; i++ {
		cmd := b.data[(b.head+i)%len(b.data)]
		if cmd.Sequence > after {
			return cmd, true
		}
	}
	return messages.InputCommand{}, false
}

// Acknowledge evicts every command with sequence <= seq.
func (b *Buffer) Acknowledge(seq uint32) {
	for b.count > 0 && b.data[b.head].Sequence <= seq {
		b.data[b.head] = messages.InputCommand{}
		b.head = (b.head + 1) % len(b.data)
		b.count--
	}
	if b.count == 0 {
		b.head = 0
	}
}

// Oldest returns the earliest buffered command.
func (b *Buffer) Oldest() (messages.InputCommand, bool) {
	if b.count == 0 {
		return messages.InputCommand{}, false
	}
	return b.data[b.head], true
}

// Last returns the sequence of the most recently pushed command.
func (b *Buffer) Last() uint32 {
	return b.last
}

// Len reports the number of buffered commands.
func (b *Buffer) Len() int {
	return b.count
}

// Capacity reports the maximum number of buffered commands.
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// Reset drops every buffered command but keeps the sequence cursor, so
// numbering continues where it left off.
func (b *Buffer) Reset() {
	for i := range b.data {
		b.data[i] = messages.InputCommand{}
	}
	b.head = 0
	b.count = 0
}
