package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbocsi/qnob/services"
)

// MCPClient translates MCP tool calls into service calls.
type MCPClient struct {
	mcpServer *MCPServer
	services  *services.ServiceContainer
}

func NewMCPClient(serviceContainer *services.ServiceContainer, mcpServer *MCPServer) *MCPClient {
	client := &MCPClient{
		services:  serviceContainer,
		mcpServer: mcpServer,
	}
	client.registerStateTools()
	client.registerDeviceTools()
	return client
}

// Start blocks serving tool calls.
func (m *MCPClient) Start() error {
	return m.mcpServer.Run()
}

func (m *MCPClient) registerStateTools() {
	getStateTool := mcp.NewTool("get_state",
		mcp.WithDescription("Read the synchronized volume, playback state and channel status"),
	)
	m.mcpServer.Server.AddTool(getStateTool, m.handleGetState)

	setVolumeTool := mcp.NewTool("set_volume",
		mcp.WithDescription("Set the PC master volume. Peers learn the new value on the next poll"),
		mcp.WithNumber("volume",
			mcp.Required(),
			mcp.Description("Volume percent, 0 to 100"),
			mcp.Min(0),
			mcp.Max(100),
		),
	)
	m.mcpServer.Server.AddTool(setVolumeTool, m.handleSetVolume)

	mediaTool := mcp.NewTool("media_control",
		mcp.WithDescription("Drive the active media player and announce the action to peers"),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Media action"),
			mcp.Enum("play", "pause", "forward", "rewind"),
		),
	)
	m.mcpServer.Server.AddTool(mediaTool, m.handleMedia)

	listTransportsTool := mcp.NewTool("list_transports",
		mcp.WithDescription("List the serial, TCP and MQTT channels with their connection state"),
	)
	m.mcpServer.Server.AddTool(listTransportsTool, m.handleListTransports)

	logTool := mcp.NewTool("get_message_log",
		mcp.WithDescription("Read the message log of one transport"),
		mcp.WithString("transport",
			mcp.Required(),
			mcp.Enum("serial", "tcp", "mqtt"),
		),
		mcp.WithBoolean("include_self",
			mcp.Description("Include messages this bridge published and saw echoed back"),
		),
	)
	m.mcpServer.Server.AddTool(logTool, m.handleMessageLog)
}

func (m *MCPClient) registerDeviceTools() {
	sendTool := mcp.NewTool("send_device_command",
		mcp.WithDescription("Send one raw command line to the connected knob"),
		mcp.WithString("line",
			mcp.Required(),
			mcp.Description("Command without the trailing newline, e.g. getDeviceName"),
		),
	)
	m.mcpServer.Server.AddTool(sendTool, m.handleSendDeviceCommand)

	configTool := mcp.NewTool("load_device_config",
		mcp.WithDescription("Dump the knob's stored configuration values"),
	)
	m.mcpServer.Server.AddTool(configTool, m.handleLoadDeviceConfig)
}

func (m *MCPClient) handleGetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := m.services.State.GetState(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error reading state: %v", err)), nil
	}
	return jsonResult(state)
}

func (m *MCPClient) handleSetVolume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	volume, err := request.RequireFloat("volume")
	if err != nil {
		return mcp.NewToolResultError("volume is required and must be a number"), nil
	}
	if volume != float64(int(volume)) {
		return mcp.NewToolResultError("volume must be a whole number"), nil
	}
	if err := m.services.State.SetVolume(ctx, int(volume)); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to set volume: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Volume set to %d", int(volume))), nil
}

func (m *MCPClient) handleMedia(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required and must be a string"), nil
	}
	if err := m.services.State.Media(ctx, action); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Media %s failed: %v", action, err)), nil
	}
	return mcp.NewToolResultText("Media " + action + " done"), nil
}

func (m *MCPClient) handleListTransports(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	transports, err := m.services.Transport.ListTransports(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error listing transports: %v", err)), nil
	}
	return jsonResult(transports)
}

func (m *MCPClient) handleMessageLog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := request.RequireString("transport")
	if err != nil {
		return mcp.NewToolResultError("transport is required and must be a string"), nil
	}
	entries, err := m.services.State.MessageLog(kind, request.GetBool("include_self", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error reading log: %v", err)), nil
	}
	return jsonResult(entries)
}

func (m *MCPClient) handleSendDeviceCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	line, err := request.RequireString("line")
	if err != nil {
		return mcp.NewToolResultError("line is required and must be a string"), nil
	}
	if err := m.services.Device.SendCommand(ctx, line); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send command: %v", err)), nil
	}
	slog.Debug("MCP sent device command", "line", line)
	return mcp.NewToolResultText("Sent " + line), nil
}

func (m *MCPClient) handleLoadDeviceConfig(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	values, err := m.services.Device.LoadConfig(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load device config: %v", err)), nil
	}
	return jsonResult(values)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), err
	}
	return mcp.NewToolResultText(string(b)), nil
}
