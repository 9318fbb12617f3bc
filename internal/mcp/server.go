package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/switchboard/internal/mcp/handlers"
)

// Deps holds shared dependencies injected into MCP handlers.
type Deps struct {
	Connections handlers.ConnectionLister
	Router      handlers.EventRouter
	Routes      handlers.RouteLister
	Version     string
}

// NewServer creates and configures the MCP server with all tools registered.
func NewServer(deps *Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"Switchboard",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	registerTools(s, deps)

	return s
}
