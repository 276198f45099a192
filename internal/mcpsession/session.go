// Package mcpsession implements the MCP session runtime (C7): per-session
// lifecycle wiring: bearer-token extraction, capability-bus subscription,
// notification forwarding, and cancellation.
package mcpsession

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roadrunner-plugins/mcp-bridge/internal/changebus"
	"github.com/roadrunner-plugins/mcp-bridge/internal/registry"
	"github.com/roadrunner-plugins/mcp-bridge/internal/strategy"
)

// Notifier sends the three MCP list_changed notifications to the session's
// underlying MCP client. Implemented by the transport layer (C8) over the
// concrete MCP SDK session type, kept as a narrow interface here so the
// session runtime doesn't need to depend on SDK internals.
type Notifier interface {
	NotifyToolListChanged(ctx context.Context) error
	NotifyPromptListChanged(ctx context.Context) error
	NotifyResourceListChanged(ctx context.Context) error
}

// State is one MCP session's identity.
type State struct {
	SessionID    string
	Token        string
	ConnectionID string // bound plugin connection id; "" means "any" (local mode)
}

// Session owns the lifecycle of one MCP session runtime: it subscribes to
// the capability bus on start, forwards events the strategy approves, and
// tears down cleanly on stop even if its own cancellation already fired.
type Session struct {
	state State

	bus      *changebus.Bus
	strategy strategy.Strategy
	notifier Notifier
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	subs    []*changebus.Subscription
}

// New creates a Session bound to parent (typically the transport's stream
// context) and starts forwarding capability events immediately.
func New(parent context.Context, sessionID, token, connectionID string, bus *changebus.Bus, strat strategy.Strategy, notifier Notifier, log *zap.Logger) *Session {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		state:    State{SessionID: sessionID, Token: token, ConnectionID: connectionID},
		bus:      bus,
		strategy: strat,
		notifier: notifier,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.start()
	return s
}

// Context returns the session's cancellation-linked context; router calls
// made on behalf of this session should derive from it.
func (s *Session) Context() context.Context { return s.ctx }

// State returns a copy of the session's immutable identity fields.
func (s *Session) State() State { return s.state }

// Cancel trips the session's cancellation handle, aborting any in-flight
// router calls and retry loops made on its behalf.
func (s *Session) Cancel() { s.cancel() }

func (s *Session) start() {
	topics := []changebus.Kind{changebus.KindTools, changebus.KindPrompts, changebus.KindResources}
	for _, kind := range topics {
		sub := s.bus.Subscribe()
		s.mu.Lock()
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
		go s.forward(kind, sub)
	}
}

func (s *Session) forward(expect changebus.Kind, sub *changebus.Subscription) {
	for event := range sub.C() {
		if event.Kind != expect {
			continue
		}
		if !s.strategy.ShouldNotifySession(registry.McpServerHub, event.SourceConnectionID, s.state.Token) {
			continue
		}
		s.deliver(event.Kind)
	}
}

func (s *Session) deliver(kind changebus.Kind) {
	// Teardown writes use a background context: cleanup (and any
	// best-effort notification in flight) must proceed even once the
	// session's own cancellation already fired.
	ctx := context.Background()
	var err error
	switch kind {
	case changebus.KindTools:
		err = s.notifier.NotifyToolListChanged(ctx)
	case changebus.KindPrompts:
		err = s.notifier.NotifyPromptListChanged(ctx)
	case changebus.KindResources:
		err = s.notifier.NotifyResourceListChanged(ctx)
	}
	if err != nil && s.log != nil {
		// Notifications are best-effort; failure to deliver is logged but
		// never affects a pending request.
		s.log.Warn("failed to deliver capability-change notification",
			zap.String("session_id", s.state.SessionID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

// Stop unsubscribes from the bus and cancels the session. Safe to call
// more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	s.cancel()
}
