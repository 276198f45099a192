package transport

import (
	"context"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"

	"github.com/roadrunner-plugins/mcp-bridge/internal/changebus"
	"github.com/roadrunner-plugins/mcp-bridge/internal/handlers"
	"github.com/roadrunner-plugins/mcp-bridge/internal/mcpsession"
	"github.com/roadrunner-plugins/mcp-bridge/internal/strategy"
)

// ServeStdio runs a single, long-lived MCP session over the process's
// standard streams. It blocks until the stream ends or ctx is cancelled.
// The session is bound to an empty (unauthenticated) token: stdio has no
// Authorization header to read a bearer token from.
func ServeStdio(ctx context.Context, deps *handlers.Deps, bus *changebus.Bus, strat strategy.Strategy, log *zap.Logger) error {
	const op = errors.Op("transport_serve_stdio")

	b := newBinding(deps, "", log)
	b.bootstrap(ctx)

	sess := mcpsession.New(ctx, uuid.NewString(), "", "", bus, strat, b, log)
	defer sess.Stop()

	log.Info("stdio transport connected", zap.String("session_id", sess.State().SessionID))
	defer log.Info("stdio transport disconnected", zap.String("session_id", sess.State().SessionID))

	transport := &mcp.StdioTransport{}
	ss, err := b.server.Connect(sess.Context(), transport, nil)
	if err != nil {
		return errors.E(op, err)
	}
	if err := ss.Wait(); err != nil && sess.Context().Err() == nil {
		return errors.E(op, err)
	}
	return nil
}
