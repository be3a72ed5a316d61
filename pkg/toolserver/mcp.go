package toolserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/harun/abilityd/internal/tracing"
	"github.com/harun/abilityd/pkg/ability"
	"github.com/harun/abilityd/pkg/schema"
)

// newMCPServer builds an MCP server with one tool per bound ability
func (s *Server) newMCPServer() *server.MCPServer {
	mcpServer := server.NewMCPServer(
		s.cfg.Name,
		s.cfg.Version,
		server.WithToolCapabilities(false),
		server.WithInstructions(s.cfg.Description),
	)

	for _, tool := range s.Tools() {
		mcpServer.AddTool(mcp.Tool{
			Name:         tool.Name,
			Description:  tool.Description,
			InputSchema:  inputSchema(tool.InputSchema),
			OutputSchema: outputSchema(tool.OutputSchema),
		}, s.mcpToolHandler(tool.Name))
	}

	return mcpServer
}

func (s *Server) mountMCP(r chi.Router) {
	streamable := server.NewStreamableHTTPServer(
		s.newMCPServer(),
		server.WithStateLess(true),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			reqCtx, ictx := s.requestContext(r.WithContext(ctx), TransportMCP)
			return withInvocationContext(reqCtx, ictx)
		}),
	)

	r.Handle("/", streamable)
}

func (s *Server) mcpToolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ictx, ok := invocationContextFrom(ctx)
		if !ok {
			ictx = ability.Context{
				RequestID: tracing.NewRequestID(),
				Transport: string(TransportMCP),
			}
		}

		var input interface{}
		if args := request.GetArguments(); args != nil {
			input = args
		}

		resp := s.Call(ctx, name, input, ictx)

		text, err := json.Marshal(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result := mcp.NewToolResultStructured(resp.Body, string(text))
		result.IsError = resp.Status != http.StatusOK
		return result, nil
	}
}

func inputSchema(doc map[string]interface{}) mcp.ToolInputSchema {
	props, required := schemaFields(doc)
	return mcp.ToolInputSchema{
		Type:       string(schema.TypeObject),
		Properties: props,
		Required:   required,
	}
}

func outputSchema(doc map[string]interface{}) mcp.ToolOutputSchema {
	props, required := schemaFields(doc)
	return mcp.ToolOutputSchema{
		Type:       string(schema.TypeObject),
		Properties: props,
		Required:   required,
	}
}

func schemaFields(doc map[string]interface{}) (map[string]interface{}, []string) {
	props, _ := doc["properties"].(map[string]interface{})
	required, _ := doc["required"].([]string)
	return props, required
}
