package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	mcp "github.com/roadrunner-plugins/mcp-bridge"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP bridge gateway",
		RunE:  runServe,
	}

	flags := cmd.Flags()
	flags.Int("port", 8080, "HTTP listen port (streamableHttp transport)")
	flags.Int("plugin-timeout", 10_000, "Per-call deadline against the plugin, in milliseconds (0 = unbounded)")
	flags.String("client-transport", mcp.TransportStreamableHTTP, "MCP client transport: stdio or streamableHttp")
	flags.String("token", "", "Shared bearer-token secret")
	flags.String("authorization", "", "none or required; required switches local mode to remote (which needs --token)")
	flags.String("mode", mcp.ModeLocal, "Deployment mode: local or remote")

	_ = viper.BindPFlag("mode", flags.Lookup("mode"))
	bindFlagEnv(flags, "port", "MCP_PLUGIN_PORT")
	bindFlagEnv(flags, "plugin-timeout", "MCP_PLUGIN_CLIENT_TIMEOUT")
	bindFlagEnv(flags, "client-transport", "MCP_PLUGIN_CLIENT_TRANSPORT")
	bindFlagEnv(flags, "token", "MCP_PLUGIN_TOKEN")
	bindFlagEnv(flags, "authorization", "MCP_PLUGIN_AUTH")

	return cmd
}

func bindFlagEnv(flags *pflag.FlagSet, name, env string) {
	_ = viper.BindPFlag(name, flags.Lookup(name))
	_ = viper.BindEnv(name, env)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := &mcp.Config{
		Port:            viper.GetInt("port"),
		PluginTimeoutMs: viper.GetInt("plugin-timeout"),
		ClientTransport: viper.GetString("client-transport"),
		Token:           viper.GetString("token"),
		Mode:            viper.GetString("mode"),
	}

	if auth := viper.GetString("authorization"); auth == "required" && cfg.Mode == mcp.ModeLocal {
		cfg.Mode = mcp.ModeRemote
	}

	// InitDefaults treats a zero timeout as unset; here the flag already
	// carries the default, so an explicit 0 keeps its unbounded meaning.
	unbounded := cfg.PluginTimeoutMs == 0
	if err := cfg.InitDefaults(); err != nil {
		return err
	}
	if unbounded {
		cfg.PluginTimeoutMs = 0
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return mcp.Run(ctx, cfg, log)
}
