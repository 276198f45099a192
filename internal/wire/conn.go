package wire

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roadrunner-server/errors"
)

// Conn is a framed, bidirectional plugin channel over a websocket
// connection. One text message carries exactly one Frame. Sends are
// serialized through a mutex because gorilla/websocket connections permit
// only one concurrent writer.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	maxFrameBytes int64
	callTimeout   time.Duration
}

// Option configures a Conn.
type Option func(*Conn)

// WithMaxFrameBytes overrides DefaultMaxFrameBytes.
func WithMaxFrameBytes(n int64) Option {
	return func(c *Conn) { c.maxFrameBytes = n }
}

// WithCallTimeout overrides DefaultCallTimeoutSec.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Conn) { c.callTimeout = d }
}

// NewConn wraps an established websocket connection as a plugin channel.
// The handshake (Handshake) must be performed before any other frame is
// sent or accepted.
func NewConn(ws *websocket.Conn, opts ...Option) *Conn {
	c := &Conn{
		ws:            ws,
		maxFrameBytes: DefaultMaxFrameBytes,
		callTimeout:   DefaultCallTimeoutSec * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ws.SetReadLimit(c.maxFrameBytes)
	return c
}

// Send writes one Frame to the channel. Safe for concurrent use.
func (c *Conn) Send(frame *Frame) error {
	const op = errors.Op("wire_conn_send")
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(frame); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Receive blocks for the next Frame, or returns an error when the
// underlying connection closes or ctx is done.
func (c *Conn) Receive(ctx context.Context) (*Frame, error) {
	const op = errors.Op("wire_conn_receive")

	type result struct {
		frame *Frame
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		var f Frame
		err := c.ws.ReadJSON(&f)
		if err != nil {
			ch <- result{nil, err}
			return
		}
		ch <- result{&f, nil}
	}()

	select {
	case <-ctx.Done():
		return nil, errors.E(op, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, errors.E(op, r.err)
		}
		return r.frame, nil
	}
}

// StartKeepAlive sends a websocket ping every DefaultKeepAliveSec until
// ctx ends or a ping fails. The peer's websocket stack answers pongs on
// its own, which keeps intermediaries from idling the connection out.
// WriteControl is safe to call concurrently with Send.
func (c *Conn) StartKeepAlive(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(DefaultKeepAliveSec * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deadline := time.Now().Add(10 * time.Second)
				if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			}
		}
	}()
}

// Close tears down the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// Handshake performs the version handshake in either direction. initiator
// sends first (the side that opened the channel); the other side responds.
// The channel is "open" only once both sides have exchanged a handshake
// frame and validated APIVersion equality.
func Handshake(ctx context.Context, c *Conn, local VersionHandshake, initiator bool) (*VersionHandshake, error) {
	const op = errors.Op("wire_handshake")

	hctx, cancel := context.WithTimeout(ctx, DefaultHandshakeDeadlineSec*time.Second)
	defer cancel()

	send := func() error {
		f, err := Encode(KindRequest, "handshake", "PerformVersionHandshake", local)
		if err != nil {
			return err
		}
		return c.Send(f)
	}
	recv := func() (*VersionHandshake, error) {
		f, err := c.Receive(hctx)
		if err != nil {
			return nil, err
		}
		var remote VersionHandshake
		if err := f.Decode(&remote); err != nil {
			return nil, err
		}
		return &remote, nil
	}

	var remote *VersionHandshake
	var err error
	if initiator {
		if err = send(); err != nil {
			return nil, errors.E(op, err)
		}
		remote, err = recv()
	} else {
		remote, err = recv()
		if err == nil {
			err = send()
		}
	}
	if err != nil {
		return nil, errors.E(op, err)
	}

	if remote.APIVersion != APIVersion {
		return nil, errors.E(op, errors.Str("apiVersion mismatch: bridge="+APIVersion+" plugin="+remote.APIVersion))
	}
	return remote, nil
}
