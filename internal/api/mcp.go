package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pedrovictor26/ofix-assistant/internal/session"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Router   Router
	Sessions *session.Store
}

// NewMCPServer creates an MCP server exposing the assistant as tools, so
// desktop agents can drive the same engine the REST API uses.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"ofix-assistant",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("ofix-assistant — assistente virtual de oficina: agendamento de serviços, status de ordens e dúvidas automotivas."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a chat message to the workshop assistant and get its response."),
			mcp.WithString("message", mcp.Description("The user's message"), mcp.Required()),
			mcp.WithString("user_id", mcp.Description("Conversation subject id"), mcp.Required()),
		),
		mcpSendMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("conversation_status",
			mcp.WithDescription("Inspect the scheduling data collected so far for a subject."),
			mcp.WithString("user_id", mcp.Description("Conversation subject id"), mcp.Required()),
		),
		mcpConversationStatus(deps),
	)

	return s
}

func mcpSendMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		result := deps.Router.RouteMessage(ctx, message, userID)

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpConversationStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		sess := deps.Sessions.Get(userID)
		if sess == nil {
			return mcpText(`{"active":false}`), nil
		}

		status := map[string]any{
			"active":       true,
			"customerName": sess.Entities.CustomerName,
			"vehicleModel": sess.Entities.VehicleModel,
			"plate":        sess.Entities.Plate,
			"weekday":      sess.Entities.Weekday,
			"hour":         sess.Entities.Hour,
			"serviceType":  sess.Entities.ServiceType,
			"urgent":       sess.Entities.Urgent,
			"lastUpdated":  sess.LastUpdated,
		}
		if !sess.Entities.ExplicitDate.IsZero() {
			status["explicitDate"] = sess.Entities.ExplicitDate.Format("02/01/2006")
		}

		b, err := json.Marshal(status)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
