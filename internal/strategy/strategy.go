// Package strategy implements the connection strategy (C4): the policy
// object that selects single-tenant ("local") vs multi-tenant ("remote")
// behavior for admission, routing, and notification scoping.
package strategy

import (
	"github.com/roadrunner-server/errors"

	"github.com/roadrunner-plugins/mcp-bridge/internal/registry"
)

// Strategy is the policy surface the router (C5), the transport (C8), and
// the session runtime (C7) consult. Both variants authenticate by the same
// scheme: if a token is configured, require exact equality;
// otherwise accept unauthenticated callers.
type Strategy interface {
	// Name identifies the strategy for logging ("local" or "remote").
	Name() string

	// AllowMultipleConnections reports whether more than one plugin
	// connection per hub type may be live simultaneously.
	AllowMultipleConnections() bool

	// Admit is called once a plugin's handshake completes. It adds the
	// connection to the registry and, for the local strategy, evicts every
	// other live connection of the same hub type via disconnect.
	Admit(hubType registry.HubType, connID, token string, disconnect func(evictedID string))

	// ResolveConnectionID picks a target connection for an outbound call.
	// token is the caller's bearer token (may be empty); retryIndex
	// increases monotonically across a single router Invoke call's retry
	// loop so repeated calls rotate through candidates.
	ResolveConnectionID(hubType registry.HubType, token string, retryIndex int) (string, bool)

	// ShouldNotifySession decides whether a capability-change event
	// originating from sourceConnID should be forwarded to a session
	// authenticated with sessionToken.
	ShouldNotifySession(hubType registry.HubType, sourceConnID, sessionToken string) bool

	// Authenticate validates a caller-supplied bearer token against the
	// configured shared secret (empty configuredToken means "no auth").
	Authenticate(configuredToken, presentedToken string) bool
}

// New builds the Strategy for mode ("local" or "remote"). remote requires a
// non-empty token.
func New(mode string, reg *registry.Registry, token string) (Strategy, error) {
	const op = errors.Op("strategy_new")

	switch mode {
	case "local", "":
		return &Local{reg: reg}, nil
	case "remote":
		if token == "" {
			return nil, errors.E(op, errors.Str("remote deployment mode requires a non-empty token"))
		}
		return &Remote{reg: reg}, nil
	default:
		return nil, errors.E(op, errors.Str("unknown deployment mode: "+mode))
	}
}

// authenticate is shared by both variants: exact-equality bearer check,
// or pass-through when no token is configured.
func authenticate(configuredToken, presentedToken string) bool {
	if configuredToken == "" {
		return true
	}
	return configuredToken == presentedToken
}
