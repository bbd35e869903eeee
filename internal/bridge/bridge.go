// Package bridge connects the agent to its tool server over MCP.
//
// The tool server runs as a subprocess speaking MCP on stdio. The bridge
// owns the session: it discovers the server's tools once at connect time,
// validates invocation arguments locally, and translates tool-reported
// failures into "Error: ..." result text so the model can read and react
// to them. Only bridge-level failures (process, transport, discovery)
// surface as Go errors.
package bridge

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nviv/nviv/internal/log"
)

const defaultConnectTimeout = 30 * time.Second

// Config holds the tool server launch parameters.
type Config struct {
	// Command is the tool server executable; Args are passed verbatim.
	Command string
	Args    []string

	// ConnectTimeout bounds the handshake plus tool discovery.
	ConnectTimeout time.Duration

	Logger log.Logger
}

// Bridge is an MCP client bound to a single tool server. Safe for
// concurrent use once connected.
type Bridge struct {
	cfg    Config
	logger log.Logger

	mu      sync.Mutex
	session *mcp.ClientSession
	specs   map[string]ToolSpec
	order   []ToolSpec
	closed  bool
}

// New creates an unconnected bridge.
func New(cfg Config) *Bridge {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Bridge{cfg: cfg, logger: logger}
}

// Connect launches the tool server subprocess, performs the session
// handshake, and discovers the server's tools.
func (b *Bridge) Connect(ctx context.Context) error {
	if b.cfg.Command == "" {
		return fmt.Errorf("%w: no tool server command configured", ErrConnection)
	}

	cmd := exec.Command(b.cfg.Command, b.cfg.Args...)
	return b.connect(ctx, &mcp.CommandTransport{Command: cmd})
}

// connect binds the bridge to a transport. Split from Connect so tests can
// supply an in-memory transport instead of a subprocess.
func (b *Bridge) connect(ctx context.Context, transport mcp.Transport) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "nviv", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	listed, err := session.ListTools(ctx, nil)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("%w: listing tools: %v", ErrDiscovery, err)
	}

	specs := make(map[string]ToolSpec, len(listed.Tools))
	order := make([]ToolSpec, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		spec, err := specFromTool(t)
		if err != nil {
			_ = session.Close()
			return err
		}
		specs[spec.Name] = spec
		order = append(order, spec)
	}

	b.mu.Lock()
	b.session = session
	b.specs = specs
	b.order = order
	b.closed = false
	b.mu.Unlock()

	b.logger.Info("tool bridge connected", "tools", len(order))
	return nil
}

// Tools returns the discovered tool specs in server order.
func (b *Bridge) Tools() []ToolSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ToolSpec, len(b.order))
	copy(out, b.order)
	return out
}

// Invoke calls a tool and returns its text result. A tool that reports its
// own failure yields "Error: <detail>" as the result with a nil error; the
// returned error is non-nil only for bridge-level failures.
func (b *Bridge) Invoke(ctx context.Context, name string, args map[string]string) (string, error) {
	b.mu.Lock()
	session := b.session
	spec, known := b.specs[name]
	b.mu.Unlock()

	if session == nil {
		return "", fmt.Errorf("%w: bridge not connected", ErrConnection)
	}
	if !known {
		return "", fmt.Errorf("%w: unknown tool %q", ErrArgument, name)
	}
	if err := spec.ValidateArguments(args); err != nil {
		return "", err
	}

	b.logger.Debug("invoking tool", "tool", name)

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("%w: calling tool %q: %v", ErrIO, name, err)
	}

	text := contentText(result.Content)
	if result.IsError {
		b.logger.Warn("tool reported failure", "tool", name, "detail", text)
		if text == "" {
			text = "tool execution failed"
		}
		return "Error: " + text, nil
	}
	return text, nil
}

// Close shuts the session down. Idempotent; close failures are logged, not
// returned, since there is nothing useful a caller can do with them during
// teardown.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.session == nil {
		return nil
	}
	b.closed = true

	if err := b.session.Close(); err != nil {
		b.logger.Warn("closing tool bridge session", "error", err)
	}
	b.session = nil
	return nil
}

// contentText flattens a tool result's content blocks into one string.
// Non-text blocks are skipped.
func contentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
