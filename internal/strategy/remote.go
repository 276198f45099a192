package strategy

import "github.com/roadrunner-plugins/mcp-bridge/internal/registry"

// Remote implements the multi-tenant deployment mode
// (AllowMultipleConnections == true). Routing strictly prefers the
// connection paired with the caller's bearer token; notifications are
// scoped to sessions whose bearer token matches the originating plugin's
// token.
type Remote struct {
	reg *registry.Registry
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) AllowMultipleConnections() bool { return true }

func (r *Remote) Admit(hubType registry.HubType, connID, token string, _ func(string)) {
	r.reg.Add(hubType, connID, token)
}

func (r *Remote) ResolveConnectionID(hubType registry.HubType, token string, retryIndex int) (string, bool) {
	if id, ok := r.reg.GetByToken(token); ok {
		return id, true
	}
	return r.reg.GetBest(hubType, retryIndex)
}

func (r *Remote) ShouldNotifySession(hubType registry.HubType, sourceConnID, sessionToken string) bool {
	srcToken, ok := r.reg.TokenOf(sourceConnID)
	if !ok {
		return false
	}
	return srcToken == sessionToken
}

func (r *Remote) Authenticate(configuredToken, presentedToken string) bool {
	return authenticate(configuredToken, presentedToken)
}
