package mcp

import (
	"context"

	"go.uber.org/zap"
)

// Run builds and serves the bridge outside of RoadRunner's endure
// container, for the standalone cmd/mcp-bridge binary. It blocks until ctx is
// cancelled or the transport reports a fatal error.
func Run(ctx context.Context, cfg *Config, log *zap.Logger) error {
	p := &Plugin{}
	if err := p.build(cfg, log); err != nil {
		return err
	}

	errCh := p.Serve()
	select {
	case <-ctx.Done():
		return p.Stop(context.Background())
	case err := <-errCh:
		_ = p.Stop(context.Background())
		return err
	}
}
