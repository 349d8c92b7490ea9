// Package server exposes the command vocabulary as MCP tools.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/logging"
	"github.com/mj1618/web-bridge/internal/output"
)

// Commander runs one command. *dispatch.Dispatcher implements it.
type Commander interface {
	HandleCommand(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error)
}

// Config holds MCP server configuration.
type Config struct {
	Name      string
	Version   string
	Transport string
	Addr      string
	CacheTTL  time.Duration
	Logger    *slog.Logger
}

// Server wraps the MCP server around a command target.
type Server struct {
	cmds  Commander
	cache *ResultCache
	log   *slog.Logger
	mcp   *mcpserver.MCPServer
}

// New creates an MCP server with one tool per command plus "do" for
// batches.
func New(cmds Commander, cfg Config) *Server {
	if cfg.Name == "" {
		cfg.Name = "web-bridge"
	}
	s := &Server{
		cmds:  cmds,
		cache: NewResultCache(cfg.CacheTTL),
		log:   logging.For(cfg.Logger, "mcp"),
		mcp:   mcpserver.NewMCPServer(cfg.Name, cfg.Version),
	}
	for _, t := range tools {
		s.mcp.AddTool(t.mcpTool(), s.handler(t))
	}
	s.mcp.AddTool(doTool(), s.handleDo)
	return s
}

// Invalidate drops cached query results. Wire it to mutation reports.
func (s *Server) Invalidate() { s.cache.InvalidateAll() }

// Serve starts the MCP server with the configured transport.
func (s *Server) Serve(cfg Config) error {
	switch cfg.Transport {
	case "", "stdio":
		return mcpserver.ServeStdio(s.mcp)
	case "streamable-http":
		return mcpserver.NewStreamableHTTPServer(s.mcp).Start(cfg.Addr)
	default:
		return fmt.Errorf("unsupported transport: %s (use stdio or streamable-http)", cfg.Transport)
	}
}

func lookup(name string) (tool, bool) {
	for _, t := range tools {
		if t.name == name {
			return t, true
		}
	}
	return tool{}, false
}

func (s *Server) handler(t tool) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload, err := json.Marshal(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode arguments: %v", err)), nil
		}
		res, err := s.run(ctx, t, payload)
		if err != nil {
			return mcp.NewToolResultError(errorText(err)), nil
		}
		if t.name == "screenshot" {
			return imageResult(res)
		}
		return textResult(res)
	}
}

// run executes one command, going through the cache for read-only ones.
func (s *Server) run(ctx context.Context, t tool, payload json.RawMessage) (json.RawMessage, error) {
	call := func() (json.RawMessage, error) {
		return s.cmds.HandleCommand(ctx, t.name, payload)
	}
	if t.readOnly {
		return s.cache.Get(t.name, payload, call)
	}
	res, err := call()
	s.cache.InvalidateAll()
	if err != nil {
		s.log.Debug("tool failed", "tool", t.name, "error", err)
	}
	return res, err
}

func textResult(res json.RawMessage) (*mcp.CallToolResult, error) {
	b, err := output.Marshal(output.FormatYAML, res, false)
	if err != nil {
		return mcp.NewToolResultText(string(res)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func imageResult(res json.RawMessage) (*mcp.CallToolResult, error) {
	var shot struct {
		Format string `json:"format"`
		Data   string `json:"data"`
	}
	if err := json.Unmarshal(res, &shot); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("decode screenshot: %v", err)), nil
	}
	mimeType := "image/png"
	if shot.Format == "jpg" {
		mimeType = "image/jpeg"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.ImageContent{
				Type:     "image",
				Data:     shot.Data,
				MIMEType: mimeType,
			},
		},
	}, nil
}

// errorText renders err with its code and details so an agent can act on
// it.
func errorText(err error) string {
	w := bridgeerr.ToWire(err)
	b, mErr := output.Marshal(output.FormatYAML, w, false)
	if mErr != nil {
		return w.Code + ": " + w.Message
	}
	return strings.TrimRight(string(b), "\n")
}
