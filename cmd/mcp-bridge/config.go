package main

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "MCP client configuration helpers",
	}
	cmd.AddCommand(newConfigPrintCmd())
	return cmd
}

func newConfigPrintCmd() *cobra.Command {
	var (
		bodyPath        string
		serverName      string
		port            int
		pluginTimeout   int
		clientTransport string
	)

	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print an MCP client config snippet that launches this binary over stdio",
		RunE: func(_ *cobra.Command, _ []string) error {
			exe, err := os.Executable()
			if err != nil {
				exe = "mcp-bridge"
			}

			entry := map[string]any{
				"type":    "stdio",
				"command": exe,
				"args": []string{
					"--port=" + strconv.Itoa(port),
					"--plugin-timeout=" + strconv.Itoa(pluginTimeout),
					"--client-transport=" + clientTransport,
				},
			}

			tree := map[string]any{serverName: entry}
			for _, segment := range reverseSegments(bodyPath) {
				tree = map[string]any{segment: tree}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(tree)
		},
	}

	cmd.Flags().StringVar(&bodyPath, "body-path", "mcpServers", `config tree path, segments separated by "->"`)
	cmd.Flags().StringVar(&serverName, "server-name", "McpPlugin", "server name key under body-path")
	cmd.Flags().IntVar(&port, "port", 8080, "--port value to embed in the generated command")
	cmd.Flags().IntVar(&pluginTimeout, "plugin-timeout", 10_000, "--plugin-timeout value to embed")
	cmd.Flags().StringVar(&clientTransport, "client-transport", "stdio", "--client-transport value to embed")

	return cmd
}

func reverseSegments(path string) []string {
	segments := strings.Split(path, "->")
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return segments
}
