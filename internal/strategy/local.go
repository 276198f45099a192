package strategy

import "github.com/roadrunner-plugins/mcp-bridge/internal/registry"

// Local implements the single-tenant deployment mode
// (AllowMultipleConnections == false). Admission evicts every other live
// peer of the same hub type; notifications broadcast to every session.
type Local struct {
	reg *registry.Registry
}

func (l *Local) Name() string { return "local" }

func (l *Local) AllowMultipleConnections() bool { return false }

func (l *Local) Admit(hubType registry.HubType, connID, token string, disconnect func(string)) {
	l.reg.Add(hubType, connID, token)
	l.reg.EvictOthers(hubType, connID, disconnect)
}

func (l *Local) ResolveConnectionID(hubType registry.HubType, token string, retryIndex int) (string, bool) {
	if token != "" {
		if id, ok := l.reg.GetByToken(token); ok {
			return id, true
		}
	}
	return l.reg.GetBest(hubType, retryIndex)
}

func (l *Local) ShouldNotifySession(registry.HubType, string, string) bool {
	return true // broadcast to every session
}

func (l *Local) Authenticate(configuredToken, presentedToken string) bool {
	return authenticate(configuredToken, presentedToken)
}
