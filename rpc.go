package mcp

import (
	"github.com/roadrunner-server/errors"
)

// rpcService exposes a diagnostic RPC surface to other RoadRunner plugins.
type rpcService struct {
	plugin *Plugin
}

// Stats returns a snapshot of connection, tracking, and subscriber counts.
func (s *rpcService) Stats(_ struct{}, resp *ConnectionStats) error {
	*resp = s.plugin.Stats()
	return nil
}

// ListConnections returns the IDs of currently connected plugin channels.
func (s *rpcService) ListConnections(_ struct{}, resp *[]string) error {
	const op = errors.Op("mcp_rpc_list_connections")

	s.plugin.mu.RLock()
	reg := s.plugin.reg
	s.plugin.mu.RUnlock()

	if reg == nil {
		return errors.E(op, errors.Str("plugin not initialized"))
	}

	*resp = connectionIDs(reg)
	return nil
}

// ListPendingRequests returns the request IDs currently tracked awaiting a
// plugin response.
func (s *rpcService) ListPendingRequests(_ struct{}, resp *[]string) error {
	const op = errors.Op("mcp_rpc_list_pending_requests")

	s.plugin.mu.RLock()
	tracker := s.plugin.tracker
	s.plugin.mu.RUnlock()

	if tracker == nil {
		return errors.E(op, errors.Str("plugin not initialized"))
	}

	*resp = tracker.PendingIDs()
	return nil
}
