// Command mcp-bridge runs the MCP bridge gateway as a standalone binary,
// outside of any RoadRunner container.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mcp-bridge",
		Short:         "MCP bridge gateway: connects AI agent MCP clients to a long-lived host plugin",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())
	return root
}
