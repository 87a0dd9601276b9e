// Package protocol frames netcode messages for the wire.
package protocol

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/automoto/netcode/shared/messages"
)

// ErrMalformedMessage is returned for any datagram that cannot be decoded
// into a registered message. Callers drop the datagram and count it.
var ErrMalformedMessage = errors.New("protocol: malformed message")

// Envelope is the outer frame of every datagram.
type Envelope struct {
	Kind Kind   `codec:"k"`
	Body []byte `codec:"b"`
}

var handle = newHandle()

func newHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	return h
}

// Marshal encodes any value with the wire handle. The archive uses it for
// records that never travel in an Envelope.
func Marshal(v any) ([]byte, error) {
	return marshal(v)
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(data []byte, v any) error {
	return unmarshal(data, v)
}

func marshal(v any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, handle).Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

func unmarshal(data []byte, v any) error {
	return codec.NewDecoderBytes(data, handle).Decode(v)
}

// Encode frames msg in an Envelope tagged with its registered kind.
func Encode(msg any) ([]byte, error) {
	kind, err := KindOf(msg)
	if err != nil {
		return nil, err
	}
	body, err := marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", kind, err)
	}
	return marshal(Envelope{Kind: kind, Body: body})
}

// DecodeEnvelope unwraps the outer frame without touching the body.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if len(data) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty datagram", ErrMalformedMessage)
	}
	var env Envelope
	if err := unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if !env.Kind.Valid() {
		return Envelope{}, fmt.Errorf("%w: unknown %s", ErrMalformedMessage, env.Kind)
	}
	if len(env.Body) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty %s body", ErrMalformedMessage, env.Kind)
	}
	return env, nil
}

// DecodeBody decodes the envelope body into T.
func DecodeBody[T any](env Envelope) (T, error) {
	var out T
	if err := unmarshal(env.Body, &out); err != nil {
		return out, fmt.Errorf("%w: %s body: %v", ErrMalformedMessage, env.Kind, err)
	}
	return out, nil
}

// Decode unwraps a datagram into its concrete message value. Snapshots come
// back with every entity stamped with the snapshot tick.
func Decode(data []byte) (any, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	switch env.Kind {
	case KindInputBatch:
		return DecodeBody[messages.InputBatch](env)
	case KindSnapshot:
		snap, err := DecodeBody[messages.Snapshot](env)
		if err != nil {
			return nil, err
		}
		snap.Stamp()
		return snap, nil
	case KindJoinRequest:
		return DecodeBody[messages.JoinRequest](env)
	case KindJoinAccepted:
		return DecodeBody[messages.JoinAccepted](env)
	case KindJoinRejected:
		return DecodeBody[messages.JoinRejected](env)
	case KindLeave:
		return DecodeBody[messages.Leave](env)
	case KindPing:
		return DecodeBody[messages.Ping](env)
	case KindPong:
		return DecodeBody[messages.Pong](env)
	}
	return nil, fmt.Errorf("%w: unhandled %s", ErrMalformedMessage, env.Kind)
}
