// Package wire implements the plugin-channel wire codec and framing (C1):
// the JSON envelope exchanged between the bridge and a plugin, and the
// version handshake that must complete before any other frame is accepted.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/roadrunner-server/errors"
)

// Kind distinguishes the three envelope shapes the plugin channel carries.
type Kind byte

const (
	// KindRequest is a unary request that expects a Response frame with a
	// matching ID. Either side may originate one.
	KindRequest Kind = iota + 1
	// KindResponse answers a KindRequest or KindServerRequest by ID.
	KindResponse
	// KindServerRequest is a bridge-originated call the plugin must answer
	// (RunCallTool, RunListTool, ...). Framed identically to KindRequest,
	// tagged separately so a receiver can route it to its inbound-call
	// dispatcher instead of its pending-request table.
	KindServerRequest
	// KindNotification is fire-and-forget; it carries no reply and is never
	// tracked against a pending request.
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindServerRequest:
		return "server_request"
	case KindNotification:
		return "notification"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Frame is one JSON envelope on the plugin channel. It is deliberately
// flat (no nested discriminated union) so it round-trips through
// encoding/json without custom marshalers.
type Frame struct {
	Kind    Kind            `json:"kind"`
	ID      string          `json:"id"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Defaults for the plugin channel.
const (
	DefaultMaxFrameBytes        = 256 << 20 // 256 MiB receive window
	DefaultCallTimeoutSec       = 300       // 5 min call timeout
	DefaultKeepAliveSec         = 30        // keep-alive ping interval
	DefaultHandshakeDeadlineSec = 120       // 2 min handshake deadline
)

// APIVersion is the wire-protocol version this bridge speaks. A plugin
// reporting a different value fails the handshake.
const APIVersion = "2.0.0"

// VersionHandshake is exchanged once, as the first frame in each direction,
// immediately after the plugin channel connects.
type VersionHandshake struct {
	APIVersion    string `json:"apiVersion"`
	PluginVersion string `json:"pluginVersion"`
	Environment   string `json:"environment"`
}

// Encode marshals a payload value into a Frame's Payload field.
func Encode(kind Kind, id, method string, v any) (*Frame, error) {
	const op = errors.Op("wire_encode")
	var raw json.RawMessage
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.E(op, err)
		}
		raw = b
	}
	return &Frame{Kind: kind, ID: id, Method: method, Payload: raw}, nil
}

// Decode unmarshals a Frame's Payload into v.
func (f *Frame) Decode(v any) error {
	const op = errors.Op("wire_decode")
	if len(f.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// ErrorFrame builds a KindResponse frame carrying a failure message.
func ErrorFrame(id, message string) *Frame {
	return &Frame{Kind: KindResponse, ID: id, Error: message}
}
