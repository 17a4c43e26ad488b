// Package tools gives the pipeline a function-calling surface.
//
// The [Broker] contract abstracts over where tools live; [MCPBroker] is the
// shipped implementation, connecting to external MCP servers via stdio or
// streamable-HTTP transports using the official MCP Go SDK and also hosting
// in-process Go functions registered with [MCPBroker.RegisterBuiltin].
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/auricle-ai/auricle/pkg/types"
)

// defaultCallTimeout bounds a single tool execution.
const defaultCallTimeout = 30 * time.Second

// Transport selects how an MCP server is reached.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a known transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes one external MCP server.
type ServerConfig struct {
	// Name uniquely identifies the server within the broker.
	Name string

	// Transport selects stdio or streamable-http.
	Transport Transport

	// Command is the full command line for stdio servers, split on spaces.
	Command string

	// Env holds additional environment variables for stdio servers.
	Env map[string]string

	// URL is the endpoint address for streamable-http servers.
	URL string
}

// Broker exposes callable tools to the pipeline.
type Broker interface {
	// ListTools returns the definitions of all registered tools, sorted by
	// name for deterministic prompt construction.
	ListTools(ctx context.Context) []types.ToolDefinition

	// CallTool executes the named tool. Application-level tool failures are
	// returned as errors so that callers can relay them to the model.
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)

	// Close shuts down all server connections.
	Close() error
}

// BuiltinTool is an in-process tool backed by a Go function.
type BuiltinTool struct {
	Definition types.ToolDefinition
	Handler    func(ctx context.Context, args map[string]any) (string, error)
}

// toolEntry holds the registry record for one tool.
type toolEntry struct {
	def        types.ToolDefinition
	serverName string

	// builtinFn is non-nil for in-process tools.
	builtinFn func(ctx context.Context, args map[string]any) (string, error)
}

// serverConn is a live connection to an external MCP server.
type serverConn struct {
	session *mcpsdk.ClientSession
}

// Compile-time check: MCPBroker must implement Broker.
var _ Broker = (*MCPBroker)(nil)

// Option configures an MCPBroker.
type Option func(*MCPBroker)

// WithCallTimeout bounds each tool execution. Defaults to 30 s.
func WithCallTimeout(d time.Duration) Option {
	return func(b *MCPBroker) {
		b.callTimeout = d
	}
}

// MCPBroker implements [Broker] over MCP servers and built-in functions.
// The zero value is not usable; create instances with [New].
type MCPBroker struct {
	mu      sync.RWMutex
	tools   map[string]toolEntry  // key: tool name
	servers map[string]serverConn // key: server name

	// client is reused across all server connections. The official SDK allows
	// a single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client

	callTimeout time.Duration
}

// New creates a ready-to-use MCPBroker.
func New(opts ...Option) *MCPBroker {
	b := &MCPBroker{
		tools:   make(map[string]toolEntry),
		servers: make(map[string]serverConn),
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "auricle-tools", Version: "1.0.0"},
			nil,
		),
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tool catalogue. Registering a server under an existing name closes the old
// connection and replaces its tools.
func (b *MCPBroker) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("tools: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("tools: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport

	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("tools: stdio server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("tools: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := b.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("tools: failed to connect to server %q: %w", cfg.Name, err)
	}

	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("tools: failed to list tools for server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *tool)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.servers[cfg.Name]; ok {
		_ = old.session.Close()
		for name, t := range b.tools {
			if t.serverName == cfg.Name {
				delete(b.tools, name)
			}
		}
	}
	b.servers[cfg.Name] = serverConn{session: session}

	for _, mcpTool := range discovered {
		b.tools[mcpTool.Name] = toolEntry{
			def: types.ToolDefinition{
				Name:        mcpTool.Name,
				Description: mcpTool.Description,
				Parameters:  schemaToMap(mcpTool.InputSchema),
			},
			serverName: cfg.Name,
		}
	}
	slog.Info("tools: registered MCP server", "server", cfg.Name, "tools", len(discovered))
	return nil
}

// RegisterBuiltin adds an in-process tool. Re-registering a name replaces the
// previous entry.
func (b *MCPBroker) RegisterBuiltin(tool BuiltinTool) error {
	if tool.Definition.Name == "" {
		return fmt.Errorf("tools: builtin tool must have a non-empty name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tools: builtin tool %q must have a handler", tool.Definition.Name)
	}
	if tool.Definition.Parameters == nil {
		tool.Definition.Parameters = map[string]any{"type": "object"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.tools[tool.Definition.Name] = toolEntry{
		def:       tool.Definition,
		builtinFn: tool.Handler,
	}
	return nil
}

// ListTools implements Broker.
func (b *MCPBroker) ListTools(_ context.Context) []types.ToolDefinition {
	b.mu.RLock()
	defer b.mu.RUnlock()

	defs := make([]types.ToolDefinition, 0, len(b.tools))
	for _, e := range b.tools {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// CallTool implements Broker. Each call is bounded by the configured timeout.
func (b *MCPBroker) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	b.mu.RLock()
	entry, ok := b.tools[name]
	b.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("tools: tool %q not found", name)
	}

	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	if entry.builtinFn != nil {
		return entry.builtinFn(ctx, args)
	}
	return b.callMCPTool(ctx, entry, args)
}

func (b *MCPBroker) callMCPTool(ctx context.Context, entry toolEntry, args map[string]any) (string, error) {
	b.mu.RLock()
	conn, ok := b.servers[entry.serverName]
	b.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("tools: server %q not found for tool %q", entry.serverName, entry.def.Name)
	}

	result, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      entry.def.Name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("tools: call to tool %q failed: %w", entry.def.Name, err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("tools: tool %q reported an error: %s", entry.def.Name, sb.String())
	}
	return sb.String(), nil
}

// Close implements Broker. All server connections are shut down; the first
// close error is returned.
func (b *MCPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for name, conn := range b.servers {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("tools: error closing server %q: %w", name, err)
		}
		delete(b.servers, name)
	}
	b.tools = make(map[string]toolEntry)
	return firstErr
}

// schemaToMap converts any schema value to a map[string]any via a JSON
// round-trip, falling back to a bare object schema.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
