package pluginsdk

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"

	"github.com/roadrunner-plugins/mcp-bridge/internal/wire"
	"github.com/roadrunner-plugins/mcp-bridge/protocol"
)

// State is the plugin channel's connection state machine.
type State string

const (
	StateDisconnected State = "Disconnected"
	StateConnecting   State = "Connecting"
	StateHandshaking  State = "Handshaking"
	StateConnected    State = "Connected"
	StateReconnecting State = "Reconnecting"
)

// ReconnectDelay is the fixed backoff the plugin client waits between
// reconnect attempts.
const ReconnectDelay = 10 * time.Second

// PluginVersion is reported to the bridge during the handshake.
const PluginVersion = "1.0.0"

// Client is the host-side plugin channel: it dials the bridge's
// /hub/mcp-server endpoint, performs the handshake, answers
// bridge-initiated calls against a Registry, and reconnects with a fixed
// backoff on any transport fault while KeepConnected is true.
type Client struct {
	mu    sync.RWMutex
	state State

	url           string
	token         string
	keepConnected bool

	registry *Registry
	log      *zap.Logger

	conn   *wire.Conn
	cancel context.CancelFunc

	completions chan completion
}

type completion struct {
	requestID string
	response  protocol.Response
}

// currentPlugin is the process-wide accessor: the first successful build
// wins, and a replacement disposes the prior instance.
var (
	currentPluginMu sync.Mutex
	currentPlugin   *Client
)

// CurrentPlugin returns the process-wide plugin instance, or nil if none
// has been built yet.
func CurrentPlugin() *Client {
	currentPluginMu.Lock()
	defer currentPluginMu.Unlock()
	return currentPlugin
}

// NewClient constructs a plugin channel client bound to url (the bridge's
// ws(s)://.../hub/mcp-server endpoint) and registry. Building a second
// client disposes the first.
func NewClient(url, token string, registry *Registry, log *zap.Logger) *Client {
	c := &Client{
		url:           url,
		token:         token,
		registry:      registry,
		log:           log,
		state:         StateDisconnected,
		keepConnected: true,
		completions:   make(chan completion, 16),
	}

	registry.seal()

	currentPluginMu.Lock()
	prior := currentPlugin
	currentPlugin = c
	currentPluginMu.Unlock()

	if prior != nil {
		prior.Close()
	}
	return c
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run connects, serves inbound calls, and reconnects on fault until ctx is
// cancelled or Close is called.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	go c.drainCompletions(ctx)

	first := true
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !first {
			c.setState(StateReconnecting)
			timer := time.NewTimer(ReconnectDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		first = false

		if err := c.connectAndServe(ctx); err != nil {
			if c.log != nil {
				c.log.Warn("plugin channel disconnected", zap.Error(err))
			}
			c.mu.Lock()
			keep := c.keepConnected
			c.mu.Unlock()
			if !keep {
				return err
			}
			continue
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	c.setState(StateConnecting)
	c.setState(StateHandshaking)

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	conn.StartKeepAlive(ctx)
	c.setState(StateConnected)
	if c.log != nil {
		c.log.Info("plugin channel connected")
	}

	c.announceCatalog()

	return c.readLoop(ctx, conn)
}

func (c *Client) readLoop(ctx context.Context, conn *wire.Conn) error {
	for {
		frame, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		switch frame.Kind {
		case wire.KindServerRequest:
			go c.handleServerRequest(ctx, conn, frame)
		case wire.KindRequest:
			go c.handleServerRequest(ctx, conn, frame)
		default:
			if c.log != nil {
				c.log.Debug("unexpected frame on plugin channel", zap.String("kind", frame.Kind.String()))
			}
		}
	}
}

// handleServerRequest answers one bridge-initiated call
// (RunCallTool/RunListTool/...) and writes the matching KindResponse
// frame.
func (c *Client) handleServerRequest(ctx context.Context, conn *wire.Conn, frame *wire.Frame) {
	var payload json.RawMessage
	var err error

	switch frame.Method {
	case protocol.MethodRunListTool:
		payload, err = json.Marshal(protocol.RunListToolResult{Tools: c.registry.ListTools()})
	case protocol.MethodRunCallTool:
		var req protocol.RunCallToolRequest
		if decErr := frame.Decode(&req); decErr != nil {
			err = decErr
			break
		}
		resp := c.registry.CallTool(ctx, req.RequestID, req.Name, req.Arguments)
		payload, err = json.Marshal(resp)
	case protocol.MethodRunListPrompts:
		payload, err = json.Marshal(protocol.RunListPromptsResult{Prompts: c.registry.ListPrompts()})
	case protocol.MethodRunGetPrompt:
		var req protocol.RunGetPromptRequest
		if decErr := frame.Decode(&req); decErr != nil {
			err = decErr
			break
		}
		var result protocol.RunGetPromptResult
		result, err = c.registry.GetPrompt(ctx, req.RequestID, req.Name, req.Arguments)
		if err == nil {
			payload, err = json.Marshal(result)
		}
	case protocol.MethodRunListResources:
		payload, err = json.Marshal(protocol.RunListResourcesResult{Resources: c.registry.ListResources()})
	case protocol.MethodRunResourceContent:
		var req protocol.RunResourceContentRequest
		if decErr := frame.Decode(&req); decErr != nil {
			err = decErr
			break
		}
		var contents []protocol.ResourceContents
		contents, err = c.registry.ReadResource(ctx, req.RequestID, req.URI)
		if err == nil {
			payload, err = json.Marshal(protocol.RunResourceContentResult{Contents: contents})
		}
	case protocol.MethodRunResourceTemplates:
		payload, err = json.Marshal(protocol.RunListResourceTemplatesResult{Templates: c.registry.ListResourceTemplates()})
	default:
		err = errors.Str("unknown method: " + frame.Method)
	}

	var reply *wire.Frame
	if err != nil {
		reply = wire.ErrorFrame(frame.ID, err.Error())
	} else {
		reply = &wire.Frame{Kind: wire.KindResponse, ID: frame.ID, Payload: payload}
	}

	if sendErr := conn.Send(reply); sendErr != nil && c.log != nil {
		c.log.Warn("failed to answer bridge request", zap.String("method", frame.Method), zap.Error(sendErr))
	}
}

// NotifyToolsChanged emits NotifyAboutUpdatedTools.
func (c *Client) NotifyToolsChanged() { c.notify(protocol.MethodNotifyAboutUpdatedTools) }

// NotifyPromptsChanged emits NotifyAboutUpdatedPrompts.
func (c *Client) NotifyPromptsChanged() { c.notify(protocol.MethodNotifyAboutUpdatedPrompts) }

// NotifyResourcesChanged emits NotifyAboutUpdatedResources.
func (c *Client) NotifyResourcesChanged() { c.notify(protocol.MethodNotifyAboutUpdatedResources) }

func (c *Client) notify(method string) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}
	frame, err := wire.Encode(wire.KindNotification, "", method, nil)
	if err != nil {
		return
	}
	if err := conn.Send(frame); err != nil && c.log != nil {
		c.log.Warn("failed to deliver capability-change notification", zap.String("method", method), zap.Error(err))
	}
}

// CompleteToolRequest queues NotifyToolRequestCompleted(requestId,
// response) for delivery. Safe to call from any goroutine, including from inside a
// tool dispatch that decided to answer asynchronously.
func (c *Client) CompleteToolRequest(requestID string, response protocol.Response) {
	select {
	case c.completions <- completion{requestID: requestID, response: response}:
	default:
		if c.log != nil {
			c.log.Warn("completion queue full, dropping notification", zap.String("request_id", requestID))
		}
	}
}

func (c *Client) drainCompletions(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case comp := <-c.completions:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()
			if conn == nil {
				continue
			}
			payload := protocol.NotifyToolRequestCompletedPayload{RequestID: comp.requestID, Response: comp.response}
			frame, err := wire.Encode(wire.KindNotification, "", protocol.MethodNotifyToolRequestCompleted, payload)
			if err != nil {
				continue
			}
			if err := conn.Send(frame); err != nil && c.log != nil {
				c.log.Warn("failed to deliver tool-request-completed notification", zap.Error(err))
			}
		}
	}
}

func (c *Client) announceCatalog() {
	c.NotifyToolsChanged()
	c.NotifyPromptsChanged()
	c.NotifyResourcesChanged()
}

// Close disables reconnection and tears down the live connection, if any.
func (c *Client) Close() {
	c.mu.Lock()
	c.keepConnected = false
	conn := c.conn
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	c.setState(StateDisconnected)
}

// MaxDialAttempts bounds Probe's initial-connect retries.
const MaxDialAttempts = 3

// Probe performs up to MaxDialAttempts connect-and-handshake attempts with
// the same fixed delay Run uses for steady-state reconnects, then closes
// the probe connection. Hosts that want to fail fast on a bad URL or
// unreachable bridge before handing off to Run (typically started as a
// background goroutine) should call Probe first.
func (c *Client) Probe(ctx context.Context) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		conn, dialErr := c.dial(ctx)
		if dialErr != nil {
			return struct{}{}, dialErr
		}
		conn.Close()
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewConstantBackOff(ReconnectDelay)), backoff.WithMaxTries(MaxDialAttempts))
	return err
}

func (c *Client) dial(ctx context.Context) (*wire.Conn, error) {
	const op = errors.Op("pluginsdk_dial")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(map[string][]string)
	if c.token != "" {
		header["Authorization"] = []string{"Bearer " + c.token}
	}
	ws, _, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, errors.E(op, err)
	}

	conn := wire.NewConn(ws)
	local := wire.VersionHandshake{APIVersion: wire.APIVersion, PluginVersion: PluginVersion, Environment: "plugin"}
	if _, err := wire.Handshake(ctx, conn, local, true); err != nil {
		conn.Close()
		return nil, errors.E(op, err)
	}
	return conn, nil
}
