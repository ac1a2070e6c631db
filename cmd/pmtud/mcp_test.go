package main

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/hervehildenbrand/pmtud/internal/pmtud"
	"github.com/hervehildenbrand/pmtud/internal/simnet"
	"github.com/mark3labs/mcp-go/mcp"
)

func simulatedOpener(pathMTU int) transportOpener {
	factory := simnet.New(pathMTU).Factory()
	return func(net.IP) pmtud.TransportFactory { return factory }
}

func callDiscover(t *testing.T, open transportOpener, args map[string]any) *mcp.CallToolResult {
	t.Helper()

	req := mcp.CallToolRequest{}
	req.Params.Name = discoverToolName
	req.Params.Arguments = args

	res, err := discoverHandler(open, nil)(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res == nil {
		t.Fatal("handler returned nil result")
	}
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", res.Content[0])
	}
	return text.Text
}

func TestDiscoverHandler(t *testing.T) {
	res := callDiscover(t, simulatedOpener(1400), map[string]any{
		"target": "192.0.2.10",
	})

	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	text := resultText(t, res)
	for _, want := range []string{`"target":"192.0.2.10"`, `"mtu":1400`, `"authoritative":true`, `"reporter":"192.0.2.1"`} {
		if !strings.Contains(text, want) {
			t.Errorf("result missing %q:\n%s", want, text)
		}
	}
}

func TestDiscoverHandler_Arguments(t *testing.T) {
	// JSON numbers arrive as float64
	res := callDiscover(t, simulatedOpener(1500), map[string]any{
		"target":     "192.0.2.10",
		"size":       float64(1000),
		"step":       float64(4),
		"timeout_ms": float64(100),
		"search":     "binary",
	})

	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	text := resultText(t, res)
	if !strings.Contains(text, `"mtu":1028`) {
		t.Errorf("expected MTU of the first probe, got:\n%s", text)
	}
}

func TestDiscoverHandler_Errors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing target", map[string]any{}},
		{"ipv6 target", map[string]any{"target": "2001:db8::1"}},
		{"size below minimum", map[string]any{"target": "192.0.2.10", "size": float64(10)}},
		{"bad search", map[string]any{"target": "192.0.2.10", "search": "random"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callDiscover(t, simulatedOpener(1500), tt.args)

			if !res.IsError {
				t.Errorf("expected tool error, got %s", resultText(t, res))
			}
		})
	}
}

func TestNewMCPServer(t *testing.T) {
	s := newMCPServer("1.2.3", simulatedOpener(1500), nil)

	if s == nil {
		t.Fatal("newMCPServer() returned nil")
	}
}
