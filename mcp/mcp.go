// Package mcp exposes the bridge to MCP clients over stdio.
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
)

type MCPServer struct {
	Server *server.MCPServer
}

func NewMCPServer(version string) *MCPServer {
	return &MCPServer{Server: server.NewMCPServer("QNOB Bridge", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)}
}

// Run serves on stdin/stdout until the client closes the stream.
func (s *MCPServer) Run() error {
	slog.Info("Started stdio MCP server")
	defer func() {
		slog.Info("Shut down stdio MCP server")
	}()
	return server.ServeStdio(s.Server)
}
