// Package mcp implements the bridge gateway as a RoadRunner endure plugin
// (and, via cmd/mcp-bridge, as a standalone binary): it wires the wire
// codec (internal/wire), connection registry (internal/registry), request
// tracker (internal/tracking), connection strategy (internal/strategy),
// plugin router (internal/router), capability change bus
// (internal/changebus), plugin-channel hub (internal/hub), MCP verb
// handlers (internal/handlers), and transport layer (internal/transport)
// into the endure Init/Serve/Stop/Name/Weight/RPC/MetricsCollector
// contract.
package mcp

import (
	"context"
	"sync"

	"github.com/roadrunner-server/endure/v2/dep"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"

	"github.com/roadrunner-plugins/mcp-bridge/internal/changebus"
	"github.com/roadrunner-plugins/mcp-bridge/internal/handlers"
	"github.com/roadrunner-plugins/mcp-bridge/internal/hub"
	"github.com/roadrunner-plugins/mcp-bridge/internal/registry"
	"github.com/roadrunner-plugins/mcp-bridge/internal/router"
	"github.com/roadrunner-plugins/mcp-bridge/internal/strategy"
	"github.com/roadrunner-plugins/mcp-bridge/internal/tracking"
	"github.com/roadrunner-plugins/mcp-bridge/internal/transport"
)

// Configurer is the configuration-access contract the plugin needs from
// RoadRunner's container.
type Configurer interface {
	UnmarshalKey(name string, out any) error
	Has(name string) bool
}

// Logger is the named-logger contract the plugin needs from RoadRunner's
// container.
type Logger interface {
	NamedLogger(name string) *zap.Logger
}

// Plugin implements the bridge gateway for RoadRunner's endure DI
// container.
type Plugin struct {
	mu sync.RWMutex

	cfg *Config
	log *zap.Logger

	reg      *registry.Registry
	strategy strategy.Strategy
	bus      *changebus.Bus
	tracker  *tracking.Tracker
	hub      *hub.Hub
	router   *router.Router
	deps     *handlers.Deps

	httpServer *transport.Server

	ctx    context.Context
	cancel context.CancelFunc

	statsExporter *StatsExporter
}

// Init wires every component: registry, tracker, strategy, hub
// (implements router.Dispatcher), router, handlers, transport, in that
// dependency order.
func (p *Plugin) Init(cfg Configurer, log Logger) error {
	const op = errors.Op("mcp_bridge_init")

	if !cfg.Has(PluginName) {
		return errors.E(op, errors.Disabled)
	}

	c := &Config{}
	if err := cfg.UnmarshalKey(PluginName, c); err != nil {
		return errors.E(op, err)
	}
	if err := c.InitDefaults(); err != nil {
		return errors.E(op, err)
	}

	return p.build(c, log.NamedLogger(PluginName))
}

// build wires every component from an already-validated Config. Shared by
// Init (endure) and Run (standalone cmd/mcp-bridge), which construct the
// Config differently but assemble the bridge identically.
func (p *Plugin) build(cfg *Config, log *zap.Logger) error {
	const op = errors.Op("mcp_bridge_build")

	p.cfg = cfg
	p.log = log
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.reg = registry.New(p.log)
	p.tracker = tracking.New()
	p.bus = changebus.New()

	strat, err := strategy.New(p.cfg.Mode, p.reg, p.cfg.Token)
	if err != nil {
		return errors.E(op, err)
	}
	p.strategy = strat

	p.hub = hub.New(p.reg, p.strategy, p.bus, p.tracker, p.log)
	p.router = router.New(p.strategy, p.reg, p.hub, p.cfg.PluginTimeout(), p.log)
	p.deps = &handlers.Deps{
		Router:         p.router,
		Tracker:        p.tracker,
		Log:            p.log,
		TrackingWindow: p.cfg.TrackingWindow(),
	}

	if p.cfg.ClientTransport == TransportStreamableHTTP {
		p.httpServer = transport.NewServer(p.cfg.Port, p.cfg.Token, p.deps, p.bus, p.strategy, p.hub, p.log)
	}

	p.statsExporter = newStatsExporter(p)

	p.log.Info("mcp bridge initialized",
		zap.String("mode", p.cfg.Mode),
		zap.String("client_transport", p.cfg.ClientTransport),
		zap.Int("port", p.cfg.Port),
	)

	return nil
}

// Serve starts the configured client transport.
func (p *Plugin) Serve() chan error {
	errCh := make(chan error, 1)

	p.mu.RLock()
	httpServer := p.httpServer
	deps := p.deps
	bus := p.bus
	strat := p.strategy
	log := p.log
	ctx := p.ctx
	transportKind := p.cfg.ClientTransport
	p.mu.RUnlock()

	go func() {
		var err error
		switch transportKind {
		case TransportStdio:
			err = transport.ServeStdio(ctx, deps, bus, strat, log)
		case TransportStreamableHTTP:
			err = httpServer.ListenAndServe(ctx)
		default:
			err = errors.E(errors.Op("mcp_bridge_serve"), errors.Str("unsupported client transport: "+transportKind))
		}
		if err != nil && ctx.Err() == nil {
			log.Error("transport error", zap.Error(err))
			errCh <- err
		}
	}()

	p.log.Info("mcp bridge serving", zap.String("client_transport", transportKind))
	return errCh
}

// Stop cancels every in-flight operation. For streamableHttp, Serve's
// goroutine observes ctx cancellation and shuts the HTTP listener down
// gracefully on its own; Stop only needs to signal it.
func (p *Plugin) Stop(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.Info("stopping mcp bridge")
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// Name returns the plugin name.
func (p *Plugin) Name() string { return PluginName }

// Weight returns plugin weight for endure's dependency resolution.
func (p *Plugin) Weight() uint { return 10 }

// RPC returns the diagnostic RPC surface.
func (p *Plugin) RPC() interface{} {
	return &rpcService{plugin: p}
}

// Collects declares no hard dependencies on other plugins: the bridge is
// self-contained once configured. Host applications dial in as plugin
// connections; they are never endure-managed dependencies of the bridge.
func (p *Plugin) Collects() []*dep.In {
	return nil
}

// MetricsCollector returns the Prometheus collectors this plugin exposes.
func (p *Plugin) MetricsCollector() []interface{} {
	return []interface{}{p.statsExporter}
}

// Stats returns a snapshot of bridge-wide state for the RPC diagnostic
// surface.
func (p *Plugin) Stats() ConnectionStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ConnectionStats{
		Mode:              p.cfg.Mode,
		ConnectedPlugins:  p.hub.ConnectionCount(),
		ConnectionIDs:     connectionIDs(p.reg),
		PendingToolCalls:  p.tracker.Pending(),
		PendingDispatches: p.hub.PendingCallCount(),
		CapabilitySubs:    p.bus.SubscriberCount(),
	}
}

func connectionIDs(reg *registry.Registry) []string {
	conns := reg.AllConnections()
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID)
	}
	return ids
}
