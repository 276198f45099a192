// Package hub implements the bridge side of the plugin channel: it accepts
// the websocket connection a plugin opens to /hub/mcp-server, performs the
// version handshake (C1), admits the connection through the configured
// strategy (C4), and answers the router's Dispatch calls (C5) by writing a
// framed request and waiting for the matching framed response. It also
// decodes inbound notifications (capability changes, out-of-band tool
// completion) and routes them to the change bus (C6) and the request
// tracker (C3).
package hub

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"

	"github.com/roadrunner-plugins/mcp-bridge/internal/changebus"
	"github.com/roadrunner-plugins/mcp-bridge/internal/registry"
	"github.com/roadrunner-plugins/mcp-bridge/internal/strategy"
	"github.com/roadrunner-plugins/mcp-bridge/internal/tracking"
	"github.com/roadrunner-plugins/mcp-bridge/internal/wire"
	"github.com/roadrunner-plugins/mcp-bridge/protocol"
)

// BridgeVersion is reported to plugins during the handshake.
const BridgeVersion = "1.0.0"

// Hub owns every live plugin channel connection and implements
// router.Dispatcher against them.
type Hub struct {
	reg     *registry.Registry
	strat   strategy.Strategy
	bus     *changebus.Bus
	tracker *tracking.Tracker
	log     *zap.Logger

	mu      sync.Mutex
	conns   map[string]*wire.Conn
	pending map[string]chan *wire.Frame
}

// New constructs a Hub.
func New(reg *registry.Registry, strat strategy.Strategy, bus *changebus.Bus, tracker *tracking.Tracker, log *zap.Logger) *Hub {
	return &Hub{
		reg:     reg,
		strat:   strat,
		bus:     bus,
		tracker: tracker,
		log:     log,
		conns:   make(map[string]*wire.Conn),
		pending: make(map[string]chan *wire.Frame),
	}
}

// Accept takes ownership of an established websocket connection, performs
// the handshake, admits it through the strategy, and blocks running its
// read loop until the connection closes or ctx is cancelled. The caller
// (the HTTP handler for /hub/mcp-server) is expected to call Accept in the
// goroutine that owns the upgraded connection.
func (h *Hub) Accept(ctx context.Context, ws *websocket.Conn, token string) error {
	const op = errors.Op("hub_accept")

	conn := wire.NewConn(ws)
	local := wire.VersionHandshake{APIVersion: wire.APIVersion, PluginVersion: BridgeVersion, Environment: "bridge"}
	if _, err := wire.Handshake(ctx, conn, local, false); err != nil {
		conn.Close()
		return errors.E(op, err)
	}

	connID := uuid.NewString()
	h.mu.Lock()
	h.conns[connID] = conn
	h.mu.Unlock()

	conn.StartKeepAlive(ctx)
	h.strat.Admit(registry.McpServerHub, connID, token, h.disconnect)
	if h.log != nil {
		h.log.Info("plugin connected", zap.String("connection_id", connID), zap.Bool("has_token", token != ""))
	}

	defer func() {
		h.mu.Lock()
		delete(h.conns, connID)
		h.mu.Unlock()
		h.reg.Remove(registry.McpServerHub, connID)
		conn.Close()
		if h.log != nil {
			h.log.Info("plugin disconnected", zap.String("connection_id", connID))
		}
	}()

	h.readLoop(ctx, connID, conn)
	return nil
}

// disconnect is handed to the strategy as the eviction callback: it
// forcibly closes the connection, which unblocks its readLoop and runs
// the Accept defer.
func (h *Hub) disconnect(connID string) {
	h.mu.Lock()
	conn := h.conns[connID]
	h.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (h *Hub) readLoop(ctx context.Context, connID string, conn *wire.Conn) {
	for {
		frame, err := conn.Receive(ctx)
		if err != nil {
			return
		}
		switch frame.Kind {
		case wire.KindResponse:
			h.resolve(frame)
		case wire.KindNotification:
			h.handleNotification(connID, frame)
		case wire.KindRequest, wire.KindServerRequest:
			// After the handshake, a plugin sends only responses and
			// notifications; log and ignore rather than fail the whole
			// connection over a stray frame.
			if h.log != nil {
				h.log.Warn("unexpected request frame from plugin", zap.String("connection_id", connID), zap.String("method", frame.Method))
			}
		default:
			if h.log != nil {
				h.log.Warn("unrecognized frame kind", zap.String("connection_id", connID))
			}
		}
	}
}

func (h *Hub) resolve(frame *wire.Frame) {
	h.mu.Lock()
	ch, ok := h.pending[frame.ID]
	if ok {
		delete(h.pending, frame.ID)
	}
	h.mu.Unlock()
	if ok {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (h *Hub) handleNotification(connID string, frame *wire.Frame) {
	switch frame.Method {
	case protocol.MethodNotifyAboutUpdatedTools:
		h.bus.Publish(changebus.Event{Kind: changebus.KindTools, SourceConnectionID: connID})
	case protocol.MethodNotifyAboutUpdatedPrompts:
		h.bus.Publish(changebus.Event{Kind: changebus.KindPrompts, SourceConnectionID: connID})
	case protocol.MethodNotifyAboutUpdatedResources:
		h.bus.Publish(changebus.Event{Kind: changebus.KindResources, SourceConnectionID: connID})
	case protocol.MethodNotifyToolRequestCompleted:
		var payload protocol.NotifyToolRequestCompletedPayload
		if err := frame.Decode(&payload); err != nil {
			if h.log != nil {
				h.log.Warn("malformed tool-request-completed notification", zap.String("connection_id", connID), zap.Error(err))
			}
			return
		}
		_ = h.tracker.CompleteExternally(payload.RequestID, tracking.Response{
			Status:  tracking.Status(payload.Response.Status),
			Message: payload.Response.Message,
			Value:   payload.Response,
		})
	default:
		if h.log != nil {
			h.log.Debug("unhandled notification method", zap.String("connection_id", connID), zap.String("method", frame.Method))
		}
	}
}

// Dispatch implements router.Dispatcher: it frames request as a
// KindServerRequest envelope (a bridge-originated call the plugin must
// answer), sends it on connID's channel, and blocks for the matching
// KindResponse frame or ctx cancellation.
func (h *Hub) Dispatch(ctx context.Context, connID, method string, payload any) (*wire.Frame, error) {
	const op = errors.Op("hub_dispatch")

	h.mu.Lock()
	conn := h.conns[connID]
	h.mu.Unlock()
	if conn == nil {
		return nil, errors.E(op, errors.Str("connection not found: "+connID))
	}

	id := uuid.NewString()
	frame, err := wire.Encode(wire.KindServerRequest, id, method, payload)
	if err != nil {
		return nil, errors.E(op, err)
	}

	ch := make(chan *wire.Frame, 1)
	h.mu.Lock()
	h.pending[id] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	}()

	if err := conn.Send(frame); err != nil {
		return nil, errors.E(op, err)
	}

	select {
	case f := <-ch:
		if f.Error != "" {
			return nil, errors.E(op, errors.Str(f.Error))
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ConnectionCount reports the number of live plugin connections, for
// metrics and the diagnostic RPC surface.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// PendingCallCount reports the number of outbound calls awaiting a
// response, distinct from tracking.Tracker's tool-call tracking window.
func (h *Hub) PendingCallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}
