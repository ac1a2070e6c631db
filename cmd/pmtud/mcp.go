package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hervehildenbrand/pmtud/internal/enrich"
	"github.com/hervehildenbrand/pmtud/internal/export"
	"github.com/hervehildenbrand/pmtud/internal/pmtud"
	"github.com/hervehildenbrand/pmtud/internal/rawsock"
	"github.com/hervehildenbrand/pmtud/internal/simnet"
	"github.com/hervehildenbrand/pmtud/pkg/pathmtu"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

const discoverToolName = "discover_pmtu"

// NewMCPCmd creates the mcp subcommand, which serves discovery as an MCP tool
// over stdio.
func NewMCPCmd(version string) *cobra.Command {
	var simulateMTU int
	var noDNS bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve path MTU discovery as an MCP tool over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			var open transportOpener = rawsock.Factory
			if simulateMTU > 0 {
				sim := simnet.New(simulateMTU).Factory()
				open = func(net.IP) pmtud.TransportFactory { return sim }
			} else if err := rawsock.CheckPrivileges(); err != nil {
				return err
			}

			var enricher *enrich.Enricher
			if !noDNS {
				enricher = enrich.NewEnricher()
			}

			return server.ServeStdio(newMCPServer(version, open, enricher))
		},
	}

	cmd.Flags().BoolVar(&noDNS, "no-dns", false, "Skip reverse DNS of the reporting host")
	cmd.Flags().IntVar(&simulateMTU, "simulate-mtu", 0, "Probe a simulated path with this MTU")
	_ = cmd.Flags().MarkHidden("simulate-mtu")

	return cmd
}

// transportOpener returns the transport factory for a source address.
type transportOpener func(source net.IP) pmtud.TransportFactory

func newMCPServer(version string, open transportOpener, enricher *enrich.Enricher) *server.MCPServer {
	s := server.NewMCPServer("pmtud", version, server.WithToolCapabilities(false))

	tool := mcp.NewTool(discoverToolName,
		mcp.WithDescription("Discover the IPv4 path MTU to a host with Don't-Fragment ICMP probes. Returns the result as JSON."),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Hostname or IPv4 address to probe"),
		),
		mcp.WithNumber("size",
			mcp.Description("ICMP payload size of the first probe (default 1472)"),
		),
		mcp.WithNumber("step",
			mcp.Description("Bytes to shrink after a failed probe (default 8)"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Per-probe timeout in milliseconds (default 2000)"),
		),
		mcp.WithString("search",
			mcp.Description("Search strategy: linear or binary (default linear)"),
		),
	)

	s.AddTool(tool, discoverHandler(open, enricher))
	return s
}

func discoverHandler(open transportOpener, enricher *enrich.Enricher) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, err := req.RequireString("target")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		defaults := pmtud.DefaultConfig()
		cfg := pmtud.DefaultConfig()
		cfg.InitialProbeSize = req.GetInt("size", defaults.InitialProbeSize)
		cfg.DecrementStep = req.GetInt("step", defaults.DecrementStep)
		cfg.Timeout = time.Duration(req.GetInt("timeout_ms", int(defaults.Timeout/time.Millisecond))) * time.Millisecond
		cfg.Strategy = pmtud.Strategy(req.GetString("search", string(defaults.Strategy)))
		if err := cfg.Validate(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ip, err := pmtud.ResolveTarget(target)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to resolve target %s: %v", target, err)), nil
		}

		transport, err := open(cfg.Source)()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		defer transport.Close()

		result, err := pmtud.NewEngine(cfg, transport).Discover(ctx, ip, nil)
		if result == nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result.Target = target

		if enricher != nil {
			enricher.EnrichResult(ctx, result)
		}

		var buf bytes.Buffer
		if err := export.NewJSONExporter().Export(&buf, []*pathmtu.Result{result}); err != nil {
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}
		return mcp.NewToolResultText(buf.String()), nil
	}
}
