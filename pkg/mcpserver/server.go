// Package mcpserver exposes mission submission and lookups as MCP tools
// so onboarding can be driven from an MCP-capable client over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"onramp/pkg/core"
)

// MissionService is the coordinator surface the tools call.
type MissionService interface {
	Submit(ctx context.Context, employeeID, projectID string) (core.Mission, error)
	Status(ctx context.Context, missionID string) (core.Mission, error)
}

// ProtocolReader exposes protocol lookups.
type ProtocolReader interface {
	Get(ctx context.Context, projectID string) (core.Protocol, error)
}

// Server wraps the mcp-go server with onramp tools.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server exposing the onboarding toolset.
func NewServer(name, version string, service MissionService, protocols ProtocolReader) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version),
	}
	s.registerTools(service, protocols)
	return s
}

func (s *Server) registerTools(service MissionService, protocols ProtocolReader) {
	s.RegisterTool("submit_mission",
		"Submit an onboarding mission for an employee and project; runs it to completion and returns the final mission record",
		func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
			employeeID, _ := args["employee_id"].(string)
			projectID, _ := args["project_id"].(string)
			m, err := service.Submit(ctx, employeeID, projectID)
			if err != nil {
				return errorResult(err), nil
			}
			return jsonResult(m)
		})

	s.RegisterTool("mission_status",
		"Return the current record for a mission id",
		func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
			missionID, _ := args["mission_id"].(string)
			m, err := service.Status(ctx, missionID)
			if err != nil {
				return errorResult(err), nil
			}
			return jsonResult(m)
		})

	s.RegisterTool("get_protocol",
		"Return the onboarding protocol for a project id",
		func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
			projectID, _ := args["project_id"].(string)
			p, err := protocols.Get(ctx, projectID)
			if err != nil {
				return errorResult(err), nil
			}
			return jsonResult(p)
		})
}

// RegisterTool registers an additional tool with the server.
func (s *Server) RegisterTool(name, description string, handler func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error)) {
	tool := mcp.NewTool(name, mcp.WithDescription(description))

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		return handler(ctx, args)
	})
}

// ServeStdio starts the server on Stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(data)}},
	}, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: err.Error()}},
	}
}
