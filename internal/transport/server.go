// Package transport (continued): the streamable-HTTP front-end. It
// exposes the two MCP session endpoints ("/" and "/mcp"), the
// plugin-channel endpoint ("/hub/mcp-server"), and a "/healthz" liveness
// endpoint. Each bearer token gets its own *mcp.Server (a "binding",
// session.go).
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"

	"github.com/roadrunner-plugins/mcp-bridge/internal/changebus"
	"github.com/roadrunner-plugins/mcp-bridge/internal/handlers"
	"github.com/roadrunner-plugins/mcp-bridge/internal/hub"
	"github.com/roadrunner-plugins/mcp-bridge/internal/mcpsession"
	"github.com/roadrunner-plugins/mcp-bridge/internal/strategy"
)

// hubUpgrader upgrades /hub/mcp-server requests to a websocket. The plugin
// channel is a trusted backend-to-backend link authenticated by bearer
// token rather than browser same-origin policy, so CheckOrigin accepts any
// origin.
var hubUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Server is the streamable-HTTP transport: one *http.Server fronting the
// MCP endpoints, the plugin-channel endpoint, and health.
type Server struct {
	port  int
	token string

	deps  *handlers.Deps
	bus   *changebus.Bus
	strat strategy.Strategy
	hub   *hub.Hub
	log   *zap.Logger

	mu       sync.Mutex
	bindings map[string]*binding // token -> binding

	httpServer *http.Server
}

// NewServer constructs the streamable-HTTP transport.
func NewServer(port int, token string, deps *handlers.Deps, bus *changebus.Bus, strat strategy.Strategy, h *hub.Hub, log *zap.Logger) *Server {
	return &Server{
		port:     port,
		token:    token,
		deps:     deps,
		bus:      bus,
		strat:    strat,
		hub:      h,
		log:      log,
		bindings: make(map[string]*binding),
	}
}

// ListenAndServe starts the HTTP listener and blocks until ctx is
// cancelled, then gracefully shuts down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	const op = errors.Op("transport_listen_and_serve")

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleMCP)
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/hub/mcp-server", s.handleHub)
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:    portAddr(s.port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("streamable-HTTP transport listening", zap.Int("port", s.port))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- errors.E(op, err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func portAddr(port int) string {
	return ":" + strconv.Itoa(port)
}

// handleMCP serves one MCP client stream per request. Each accepted
// stream spawns an independent session runtime bound to the
// *mcp.Server scoped to the caller's bearer token.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := extractBearerToken(r)
	if !s.strat.Authenticate(s.token, token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	b := s.bindingFor(token)

	sessCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := mcpsession.New(sessCtx, uuid.NewString(), token, "", s.bus, s.strat, b, s.log)
	defer sess.Stop()

	go watchSession(sess.Context(), r.Context(), sess.Cancel)

	b.bootstrap(sess.Context())

	s.log.Info("MCP session connected", zap.String("session_id", sess.State().SessionID))
	defer s.log.Info("MCP session disconnected", zap.String("session_id", sess.State().SessionID))

	transport := mcp.NewSSETransport(r.URL.Path, w, r)
	ss, err := b.server.Connect(sess.Context(), transport, nil)
	if err != nil {
		s.log.Warn("failed to connect MCP session transport", zap.Error(err))
		return
	}
	// Hold the HTTP handler open for the stream's lifetime; the watchdog
	// cancels the session if the peer aborts before the SDK notices.
	if err := ss.Wait(); err != nil && sess.Context().Err() == nil {
		s.log.Debug("MCP session ended with error", zap.Error(err))
	}
}

// handleHub upgrades one plugin-channel connection and blocks running its
// read loop for the connection's lifetime.
func (s *Server) handleHub(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r)
	if !s.strat.Authenticate(s.token, token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := hubUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("hub websocket upgrade failed", zap.Error(err))
		return
	}

	if err := s.hub.Accept(r.Context(), ws, token); err != nil {
		s.log.Warn("plugin channel closed", zap.Error(err))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":           "ok",
		"connectedPlugins": s.hub.ConnectionCount(),
	})
}

// bindingFor returns (creating if necessary) the *mcp.Server scoped to
// token, the bearer token the caller presented. Sessions presenting the
// same token (or none, which is the "" key) share a single catalog;
// distinct tokens get distinct catalogs. The caller bootstraps the binding outside s.mu: the
// initial catalog sync can spend the router's full retry budget waiting
// for a plugin, and must not serialize other sessions behind it.
func (s *Server) bindingFor(token string) *binding {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.bindings[token]; ok {
		return b
	}
	b := newBinding(s.deps, token, s.log)
	s.bindings[token] = b
	return b
}
