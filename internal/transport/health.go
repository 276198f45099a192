package transport

import (
	"context"
	"time"
)

// WatchdogInterval is the 5s poll interval for the connection-health
// monitor: streamable-HTTP sessions are polled for a
// peer-aborted request the MCP SDK hasn't yet surfaced as a closed
// session.
const WatchdogInterval = 5 * time.Second

// watchSession polls reqCtx every WatchdogInterval and calls cancel once
// reqCtx is done, resolving the partial-disconnect race where the peer
// aborts the HTTP request but the transport has not yet noticed. It
// returns when either context ends.
func watchSession(sessionCtx, reqCtx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sessionCtx.Done():
			return
		case <-reqCtx.Done():
			cancel()
			return
		case <-ticker.C:
			if reqCtx.Err() != nil {
				cancel()
				return
			}
		}
	}
}
