package mcp

import (
	"time"

	"github.com/roadrunner-server/errors"
)

// PluginName is the plugin's name as registered with the RoadRunner
// dependency graph (endure) and as the Configurer section key.
const PluginName = "mcp_bridge"

// Transport variants.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamableHttp"
)

// Deployment modes. The source's second AuthOption enum
// (none/required/unknown) is collapsed into this single concept per
// DESIGN.md's Open Question resolution.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Config is the bridge's immutable-after-startup configuration. It is
// populated either by RoadRunner's Configurer (embedded use) or by
// cobra/viper flag binding (cmd/mcp-bridge).
type Config struct {
	// Port is the HTTP listen port used by the streamableHttp transport.
	Port int `mapstructure:"port"`

	// PluginTimeoutMs is the per-call deadline the router enforces against
	// a plugin connection. Zero means unbounded; InitDefaults treats zero as
	// unset and replaces it with 10 000.
	PluginTimeoutMs int `mapstructure:"plugin_timeout"`

	// ClientTransport selects how MCP clients reach the bridge: "stdio" or
	// "streamableHttp".
	ClientTransport string `mapstructure:"client_transport"`

	// Token is the shared secret both MCP sessions and plugin connections
	// must present as a bearer token, when non-empty.
	Token string `mapstructure:"token"`

	// Mode selects single-tenant ("local") or multi-tenant ("remote")
	// deployment. Auto-derived to "local" when empty.
	Mode string `mapstructure:"mode"`
}

// InitDefaults sets default values for configuration.
func (c *Config) InitDefaults() error {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.PluginTimeoutMs == 0 {
		c.PluginTimeoutMs = 10_000
	}
	if c.ClientTransport == "" {
		c.ClientTransport = TransportStreamableHTTP
	}
	if c.Mode == "" {
		c.Mode = ModeLocal
	}

	return c.Validate()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	const op = errors.Op("mcp_bridge_config_validate")

	if c.Port < 1 || c.Port > 65535 {
		return errors.E(op, errors.Str("port must be in [1, 65535]"))
	}

	if c.ClientTransport != TransportStdio && c.ClientTransport != TransportStreamableHTTP {
		return errors.E(op, errors.Str("client_transport must be 'stdio' or 'streamableHttp'"))
	}

	switch c.Mode {
	case ModeLocal:
	case ModeRemote:
		if c.Token == "" {
			return errors.E(op, errors.Str("remote deployment mode requires a non-empty token"))
		}
	default:
		return errors.E(op, errors.Str("mode must be 'local' or 'remote'"))
	}

	if c.PluginTimeoutMs < 0 {
		return errors.E(op, errors.Str("plugin_timeout must not be negative"))
	}

	return nil
}

// PluginTimeout returns PluginTimeoutMs as a time.Duration; zero means
// unbounded.
func (c *Config) PluginTimeout() time.Duration {
	return time.Duration(c.PluginTimeoutMs) * time.Millisecond
}

// TrackingWindow is the window tools/call keeps a request open for
// out-of-band completion: max(PluginTimeout, 5min) when PluginTimeoutMs >
// 0, else a flat 5min.
func (c *Config) TrackingWindow() time.Duration {
	const floor = 5 * time.Minute
	if c.PluginTimeoutMs <= 0 {
		return floor
	}
	if d := c.PluginTimeout(); d > floor {
		return d
	}
	return floor
}
