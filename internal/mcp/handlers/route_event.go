package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/switchboard/internal/event"
	"github.com/btouchard/switchboard/internal/router"
	"github.com/btouchard/switchboard/internal/wire"
)

// EventRouter routes a domain event on behalf of an MCP session.
type EventRouter interface {
	RouteFrom(session string, ev event.DomainEvent) router.Report
}

// RouteEvent returns a handler that routes an operator-authored event.
func RouteEvent(rt EventRouter) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		typ, _ := args["type"].(string)
		if typ == "" {
			return mcp.NewToolResultError("type is required"), nil
		}
		if !wire.Type(typ).IsDomain() {
			return mcp.NewToolResultError(fmt.Sprintf("unknown event type %q", typ)), nil
		}

		var data map[string]any
		if raw, ok := args["data"]; ok && raw != nil {
			m, ok := raw.(map[string]any)
			if !ok {
				return mcp.NewToolResultError("data must be an object"), nil
			}
			data = m
		}

		target := event.TargetFromWire(&wire.Target{
			UserID:         stringArg(args, "userId"),
			Role:           stringArg(args, "role"),
			UnitID:         stringArg(args, "unitId"),
			OrganizationID: stringArg(args, "organizationId"),
		})

		var session string
		if sess := server.ClientSessionFromContext(ctx); sess != nil {
			session = sess.SessionID()
		}

		rep := rt.RouteFrom(session, event.New(wire.Type(typ), data, target))

		var sb strings.Builder
		fmt.Fprintf(&sb, "Event routed\n\n")
		fmt.Fprintf(&sb, "- **Event ID:** %s\n", rep.EventID)
		fmt.Fprintf(&sb, "- **Target:** %s\n", rep.Target)
		fmt.Fprintf(&sb, "- **Action:** %s (%s)\n", rep.Action, rep.Class)
		if rep.Transition != "" {
			fmt.Fprintf(&sb, "- **Transition:** %s\n", rep.Transition)
		}
		if rep.DirectAttempted {
			fmt.Fprintf(&sb, "- **Direct:** %t\n", rep.Direct)
		}
		fmt.Fprintf(&sb, "- **Unit:** %d | **Organization:** %d | **Role:** %d\n", rep.Unit, rep.Organization, rep.Role)
		if rep.DerivedOrganization != "" {
			fmt.Fprintf(&sb, "- **Derived organization:** %s\n", rep.DerivedOrganization)
		}
		fmt.Fprintf(&sb, "- **Recipients:** %d\n", rep.Recipients())
		if rep.Target.IsNone() {
			sb.WriteString("\nNo target was given; the event was not delivered.\n")
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}
