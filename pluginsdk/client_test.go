package pluginsdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roadrunner-plugins/mcp-bridge/internal/wire"
	"github.com/roadrunner-plugins/mcp-bridge/protocol"
)

// fakeBridge accepts one plugin-channel connection and performs the
// responder side of the handshake, handing the resulting *wire.Conn back
// over a channel for the test to drive.
type fakeBridge struct {
	ts    *httptest.Server
	conns chan *wire.Conn
}

func newFakeBridge(t *testing.T) *fakeBridge {
	t.Helper()
	fb := &fakeBridge{conns: make(chan *wire.Conn, 4)}
	upgrader := websocket.Upgrader{}

	fb.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn := wire.NewConn(ws)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err = wire.Handshake(ctx, conn, wire.VersionHandshake{APIVersion: wire.APIVersion, PluginVersion: "bridge-1.0.0"}, false)
		require.NoError(t, err)
		fb.conns <- conn
	}))
	return fb
}

func (fb *fakeBridge) url() string {
	return "ws" + strings.TrimPrefix(fb.ts.URL, "http") + "/hub/mcp-server"
}

func (fb *fakeBridge) nextConn(t *testing.T) *wire.Conn {
	t.Helper()
	select {
	case c := <-fb.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("expected the plugin to connect")
		return nil
	}
}

func (fb *fakeBridge) close() { fb.ts.Close() }

func TestNewClientReplacesPriorSingleton(t *testing.T) {
	first := NewClient("ws://unused/first", "", NewRegistry(), zap.NewNop())
	assert.Same(t, first, CurrentPlugin())

	second := NewClient("ws://unused/second", "", NewRegistry(), zap.NewNop())
	assert.Same(t, second, CurrentPlugin())

	require.Eventually(t, func() bool { return first.State() == StateDisconnected }, time.Second, 5*time.Millisecond,
		"constructing a new Client must dispose the prior singleton")

	second.Close()
}

func TestClientConnectsAndAnnouncesCatalog(t *testing.T) {
	t.Parallel()
	fb := newFakeBridge(t)
	defer fb.close()

	reg := NewRegistry()
	c := NewClient(fb.url(), "", reg, zap.NewNop())
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	bridgeConn := fb.nextConn(t)
	defer bridgeConn.Close()

	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
		frame, err := bridgeConn.Receive(rctx)
		rcancel()
		require.NoError(t, err)
		assert.Equal(t, wire.KindNotification, frame.Kind)
		seen[frame.Method] = true
	}
	assert.True(t, seen[protocol.MethodNotifyAboutUpdatedTools])
	assert.True(t, seen[protocol.MethodNotifyAboutUpdatedPrompts])
	assert.True(t, seen[protocol.MethodNotifyAboutUpdatedResources])
}

func TestClientAnswersListToolsServerRequest(t *testing.T) {
	t.Parallel()
	fb := newFakeBridge(t)
	defer fb.close()

	reg := NewRegistry()
	require.NoError(t, reg.RegisterTool("ping", "Ping", "", func() string { return "pong" }))

	c := NewClient(fb.url(), "", reg, zap.NewNop())
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	bridgeConn := fb.nextConn(t)
	defer bridgeConn.Close()

	// Drain the three catalog-announcement notifications sent on connect.
	for i := 0; i < 3; i++ {
		rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
		_, err := bridgeConn.Receive(rctx)
		rcancel()
		require.NoError(t, err)
	}

	req, err := wire.Encode(wire.KindServerRequest, "list-1", protocol.MethodRunListTool, nil)
	require.NoError(t, err)
	require.NoError(t, bridgeConn.Send(req))

	rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
	defer rcancel()
	resp, err := bridgeConn.Receive(rctx)
	require.NoError(t, err)
	assert.Equal(t, "list-1", resp.ID)

	var result protocol.RunListToolResult
	require.NoError(t, resp.Decode(&result))
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "ping", result.Tools[0].Name)
}

func TestProbeSucceedsAgainstLiveBridge(t *testing.T) {
	t.Parallel()
	fb := newFakeBridge(t)
	defer fb.close()

	c := NewClient(fb.url(), "", NewRegistry(), zap.NewNop())
	defer c.Close()

	done := make(chan error, 1)
	go func() { done <- c.Probe(context.Background()) }()

	fb.nextConn(t)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected Probe to return")
	}
}

func TestProbeFailsFastOnExpiredContext(t *testing.T) {
	t.Parallel()
	c := NewClient("ws://127.0.0.1:0/unreachable", "", NewRegistry(), zap.NewNop())
	defer c.Close()

	// A short deadline bounds the retry loop: the first dial fails almost
	// immediately, and the context expires before the 10s reconnect delay
	// between attempts elapses, so Probe returns quickly instead of
	// burning the full MaxDialAttempts budget.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := c.Probe(ctx)
	assert.Error(t, err)
}
