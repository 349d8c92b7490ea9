package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mj1618/web-bridge/internal/model"
	"github.com/mj1618/web-bridge/internal/platform"
	"github.com/mj1618/web-bridge/internal/server"
	"github.com/mj1618/web-bridge/internal/version"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing the page and tab commands",
	Long: `Start a Model Context Protocol (MCP) server that exposes every page and tab
command as a tool, plus "do" for running several steps in one call.

Supported transports:
  stdio             Standard I/O (default, for local MCP clients)
  streamable-http   Streamable HTTP transport (for remote agents)

Examples:
  web-bridge mcp
  web-bridge mcp --open https://example.com
  web-bridge mcp --transport streamable-http --port 8080
  web-bridge mcp --cache-ttl 500`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	addHostFlags(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport: stdio, streamable-http")
	mcpCmd.Flags().Int("port", 8080, "HTTP port for streamable-http transport")
	mcpCmd.Flags().Int("cache-ttl", 0, "Cache TTL for read-only results in milliseconds (0 to disable)")
	mcpCmd.Flags().StringArray("open", nil, "Open a tab for this URL on start (repeatable)")
}

func runMCP(cmd *cobra.Command, args []string) error {
	transport, _ := cmd.Flags().GetString("transport")
	port, _ := cmd.Flags().GetInt("port")
	cacheTTLMs, _ := cmd.Flags().GetInt("cache-ttl")
	opens, _ := cmd.Flags().GetStringArray("open")

	h, err := openHost(cmd)
	if err != nil {
		return err
	}
	defer h.Close()

	targets := make([]platform.CreateOptions, 0, len(opens))
	for _, u := range opens {
		targets = append(targets, platform.CreateOptions{URL: u})
	}
	if err := h.open(cmd.Context(), targets); err != nil {
		return err
	}

	scfg := server.Config{
		Name:      "web-bridge",
		Version:   version.Version,
		Transport: transport,
		Addr:      fmt.Sprintf(":%d", port),
		CacheTTL:  time.Duration(cacheTTLMs) * time.Millisecond,
		Logger:    logger,
	}
	srv := server.New(h.dispatch, scfg)
	if h.provider.Mutations != nil {
		h.provider.Mutations.OnMutation(func(model.MutationReport) { srv.Invalidate() })
	}
	return srv.Serve(scfg)
}
