package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/switchboard/internal/notify"
	"github.com/btouchard/switchboard/internal/store"
)

// RouteLister reads the route audit log.
type RouteLister interface {
	ListRoutes(filter store.RouteFilter) ([]store.RouteRecord, error)
}

// RecentRoutes returns a handler that lists recorded routing outcomes.
func RecentRoutes(rl RouteLister) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		filter := store.RouteFilter{Limit: 20}
		if typ, ok := args["type"].(string); ok {
			filter.EventType = typ
		}
		if outcome, ok := args["outcome"].(string); ok {
			filter.Outcome = outcome
		}
		if limit, ok := args["limit"].(float64); ok && limit > 0 {
			filter.Limit = int(limit)
		}
		if since, ok := args["since"].(string); ok && since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid since %q: expected RFC 3339", since)), nil
			}
			filter.Since = t
		}

		routes, err := rl.ListRoutes(filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("listing routes: %s", err)), nil
		}
		if len(routes) == 0 {
			return mcp.NewToolResultText("No routes recorded matching the given filters."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Routes (%d found)\n\n", len(routes))
		for _, r := range routes {
			fmt.Fprintf(&sb, "%s **%s** %s → %s\n", outcomeIcon(r.Outcome), r.EventType, r.EventID, r.Target)
			fmt.Fprintf(&sb, "  %s | Action: %s | Recipients: %d\n", r.CreatedAt.Format("2006-01-02 15:04:05"), r.Action, r.Recipients)
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func outcomeIcon(outcome string) string {
	switch outcome {
	case notify.TypeDelivered:
		return "✅"
	case notify.TypeUndelivered:
		return "⚠️"
	case notify.TypeUntargeted:
		return "❌"
	default:
		return "❓"
	}
}
