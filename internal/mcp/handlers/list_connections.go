package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/switchboard/internal/hub"
)

// ConnectionLister exposes the live connections.
type ConnectionLister interface {
	Snapshot() []hub.Info
}

// ListConnections returns a handler that lists live connections, optionally
// narrowed to one unit or role.
func ListConnections(reg ConnectionLister) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		unit, _ := args["unitId"].(string)
		role, _ := args["role"].(string)

		var infos []hub.Info
		for _, info := range reg.Snapshot() {
			if unit != "" && info.Unit != unit {
				continue
			}
			if role != "" && info.Role != role {
				continue
			}
			infos = append(infos, info)
		}

		if len(infos) == 0 {
			return mcp.NewToolResultText("No live connections."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Connections (%d)\n\n", len(infos))
		for _, info := range infos {
			fmt.Fprintf(&sb, "- **%s** (%s) %s\n", info.PrincipalID, info.Role, info.State)
			if info.Unit != "" || info.Organization != "" {
				fmt.Fprintf(&sb, "  Unit: %s | Organization: %s\n", orDash(info.Unit), orDash(info.Organization))
			}
			fmt.Fprintf(&sb, "  Connected: %s\n", info.ConnectedAt.Format("2006-01-02 15:04:05"))
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
