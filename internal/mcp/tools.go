package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/switchboard/internal/mcp/handlers"
)

func registerTools(s *server.MCPServer, deps *Deps) {
	// list_connections: who is connected right now
	s.AddTool(
		mcp.NewTool("list_connections",
			mcp.WithDescription("List live client connections with their role, unit, organization and heartbeat state."),
			mcp.WithString("unitId",
				mcp.Description("Only connections belonging to this unit"),
			),
			mcp.WithString("role",
				mcp.Description("Only connections with this role"),
			),
		),
		handlers.ListConnections(deps.Connections),
	)

	// route_event: publish an event as an operator
	s.AddTool(
		mcp.NewTool("route_event",
			mcp.WithDescription("Route a domain event to connected clients. At least one target field is needed for delivery; the routing outcome is also pushed to this session as a log notification."),
			mcp.WithString("type",
				mcp.Required(),
				mcp.Description("Domain event type"),
				mcp.Enum("trip_update", "new_trip", "trip_tagged", "driver_update", "client_update", "system_update"),
			),
			mcp.WithObject("data",
				mcp.Description("Event payload, e.g. {\"id\": \"t1\", \"status\": \"completed\"}"),
			),
			mcp.WithString("userId",
				mcp.Description("Deliver directly to this principal"),
			),
			mcp.WithString("role",
				mcp.Description("Broadcast to this role when no unit or organization is given"),
			),
			mcp.WithString("unitId",
				mcp.Description("Broadcast to this unit"),
			),
			mcp.WithString("organizationId",
				mcp.Description("Broadcast to this organization"),
			),
		),
		handlers.RouteEvent(deps.Router),
	)

	// recent_routes: read the audit log
	s.AddTool(
		mcp.NewTool("recent_routes",
			mcp.WithDescription("List recently routed events with their outcome and recipient count."),
			mcp.WithString("type",
				mcp.Description("Filter by event type"),
			),
			mcp.WithString("outcome",
				mcp.Description("Filter by outcome"),
				mcp.Enum("route.delivered", "route.undelivered", "route.untargeted"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of routes to return (default: 20)"),
			),
			mcp.WithString("since",
				mcp.Description("RFC 3339 datetime, only routes recorded after this time"),
			),
		),
		handlers.RecentRoutes(deps.Routes),
	)
}
