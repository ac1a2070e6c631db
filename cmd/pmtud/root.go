package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hervehildenbrand/pmtud/internal/display"
	"github.com/hervehildenbrand/pmtud/internal/enrich"
	"github.com/hervehildenbrand/pmtud/internal/export"
	"github.com/hervehildenbrand/pmtud/internal/monitor"
	"github.com/hervehildenbrand/pmtud/internal/packet"
	"github.com/hervehildenbrand/pmtud/internal/pmtud"
	"github.com/hervehildenbrand/pmtud/internal/rawsock"
	"github.com/hervehildenbrand/pmtud/internal/simnet"
	"github.com/hervehildenbrand/pmtud/pkg/pathmtu"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Config holds the parsed CLI configuration.
type Config struct {
	Targets     []string
	Size        int
	Step        int
	Timeout     string
	Source      string
	TTL         int
	Search      string
	Parallel    int
	Watch       bool
	Interval    string
	Cycles      int
	Simple      bool
	Output      string
	Format      string
	NoDNS       bool
	Verbose     bool
	DryRun      bool
	SimulateMTU int
}

var validSearches = map[string]bool{
	"linear": true,
	"binary": true,
}

// NewRootCmd creates and returns the root cobra command.
func NewRootCmd() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "pmtud <target>...",
		Short: "IPv4 Path MTU discovery tool",
		Long: `pmtud finds the largest IPv4 datagram that reaches a host without
fragmentation, using Don't-Fragment ICMP echo probes of decreasing size
and the next-hop MTU reported by routers (RFC 1191).`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !validSearches[cfg.Search] {
				return fmt.Errorf("invalid search %q: must be linear or binary", cfg.Search)
			}

			if cfg.TTL < 1 || cfg.TTL > 255 {
				return fmt.Errorf("invalid ttl %d: must be between 1 and 255", cfg.TTL)
			}

			if _, err := buildEngineConfig(&cfg); err != nil {
				return err
			}

			if cfg.Watch && cfg.Cycles < 0 {
				return fmt.Errorf("invalid cycles %d: must not be negative", cfg.Cycles)
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Targets = args

			if cfg.DryRun {
				// Just validate args and return
				return nil
			}

			cmd.SilenceUsage = true
			return runDiscovery(cmd, &cfg)
		},
	}

	// Probe flags
	cmd.Flags().IntVar(&cfg.Size, "size", packet.DefaultPayloadSize, "ICMP payload size of the first probe")
	cmd.Flags().IntVar(&cfg.Step, "step", 8, "Bytes to shrink after a failed probe (binary search resolution)")
	cmd.Flags().StringVar(&cfg.Timeout, "timeout", "2s", "Per-probe timeout")
	cmd.Flags().StringVar(&cfg.Source, "source", "", "Source IPv4 address")
	cmd.Flags().IntVar(&cfg.TTL, "ttl", 64, "TTL of probe datagrams")
	cmd.Flags().StringVar(&cfg.Search, "search", "linear", "Search strategy: linear|binary")
	cmd.Flags().IntVar(&cfg.Parallel, "parallel", 8, "Targets probed concurrently")

	// Watch flags
	cmd.Flags().BoolVar(&cfg.Watch, "watch", false, "Re-run discovery periodically and alert on changes")
	cmd.Flags().StringVar(&cfg.Interval, "interval", "10s", "Interval between discovery cycles (watch mode)")
	cmd.Flags().IntVar(&cfg.Cycles, "cycles", 0, "Number of cycles (0 = infinite, watch mode)")

	// Display flags
	cmd.Flags().BoolVar(&cfg.Simple, "simple", false, "Simple output (no TUI)")

	// Export flags
	cmd.Flags().StringVarP(&cfg.Output, "output", "o", "", "Export to file (json/csv/txt)")
	cmd.Flags().StringVar(&cfg.Format, "format", "", "Explicit export format")

	// Other flags
	cmd.Flags().BoolVar(&cfg.NoDNS, "no-dns", false, "Skip reverse DNS of the reporting host")
	cmd.Flags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Verbose output")
	cmd.Flags().BoolVar(&cfg.DryRun, "dry-run", false, "Validate args without probing")

	// Simulated path for demos and tests, no privileges needed
	cmd.Flags().IntVar(&cfg.SimulateMTU, "simulate-mtu", 0, "Probe a simulated path with this MTU")
	_ = cmd.Flags().MarkHidden("simulate-mtu")

	return cmd
}

// buildEngineConfig converts CLI flags into a validated engine configuration.
func buildEngineConfig(cfg *Config) (*pmtud.Config, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout: %w", err)
	}

	source, err := pmtud.ParseSource(cfg.Source)
	if err != nil {
		return nil, err
	}

	engineCfg := pmtud.DefaultConfig()
	engineCfg.InitialProbeSize = cfg.Size
	engineCfg.DecrementStep = cfg.Step
	engineCfg.Timeout = timeout
	engineCfg.Source = source
	engineCfg.TTL = uint8(cfg.TTL)
	engineCfg.Strategy = pmtud.Strategy(cfg.Search)
	engineCfg.MaxParallel = cfg.Parallel

	if err := engineCfg.Validate(); err != nil {
		return nil, err
	}
	return engineCfg, nil
}

// newLogger creates the CLI logger. Probe-level detail is logged at debug.
func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// session bundles what a discovery run needs besides its targets.
type session struct {
	cfg      *Config
	engine   *pmtud.Config
	open     pmtud.TransportFactory
	enricher *enrich.Enricher
	logger   *logrus.Logger
	out      io.Writer
}

// runDiscovery executes discovery based on configuration.
func runDiscovery(cmd *cobra.Command, cfg *Config) error {
	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s, err := newSession(cmd, cfg)
	if err != nil {
		return err
	}

	targets, names, err := resolveTargets(cfg.Targets)
	if err != nil {
		return err
	}

	if cfg.Watch {
		err := runWatch(ctx, s, targets, names)
		if err != nil && ctx.Err() != nil {
			fmt.Fprintln(s.out, "\nMonitoring stopped")
			return nil
		}
		return err
	}

	var results []*pathmtu.Result
	if len(targets) == 1 && !cfg.Simple && cfg.Output == "" && isTerminal(s.out) {
		results, err = runTUI(ctx, s, targets[0], names[0])
	} else {
		results, err = runSimple(ctx, s, targets, names)
	}

	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(s.out, "\nDiscovery interrupted")
			return nil
		}
		return err
	}

	// Export if output file specified
	if cfg.Output != "" {
		format := export.Format(cfg.Format)
		if err := export.ExportToFile(cfg.Output, format, results); err != nil {
			return fmt.Errorf("failed to export: %w", err)
		}
		fmt.Fprintf(s.out, "Results exported to %s\n", cfg.Output)
	}

	return failureSummary(results)
}

func newSession(cmd *cobra.Command, cfg *Config) (*session, error) {
	engineCfg, err := buildEngineConfig(cfg)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)

	var open pmtud.TransportFactory
	if cfg.SimulateMTU > 0 {
		logger.WithField("mtu", cfg.SimulateMTU).Debug("using simulated network")
		open = simnet.New(cfg.SimulateMTU).Factory()
	} else {
		if err := rawsock.CheckPrivileges(); err != nil {
			return nil, err
		}
		open = rawsock.Factory(engineCfg.Source)
	}

	var enricher *enrich.Enricher
	if !cfg.NoDNS && cfg.SimulateMTU == 0 {
		enricher = enrich.NewEnricher()
	}

	return &session{
		cfg:      cfg,
		engine:   engineCfg,
		open:     open,
		enricher: enricher,
		logger:   logger,
		out:      cmd.OutOrStdout(),
	}, nil
}

// resolveTargets resolves every argument to an IPv4 address.
func resolveTargets(args []string) ([]net.IP, []string, error) {
	targets := make([]net.IP, 0, len(args))
	for _, arg := range args {
		ip, err := pmtud.ResolveTarget(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve target %s: %w", arg, err)
		}
		targets = append(targets, ip)
	}
	return targets, args, nil
}

// discover runs one discovery pass over all targets and restores the
// user-facing target names on the results.
func (s *session) discover(ctx context.Context, targets []net.IP, names []string, callback pmtud.ProbeCallback) ([]*pathmtu.Result, error) {
	logged := func(ev pmtud.ProbeEvent) {
		s.logProbe(ev)
		if callback != nil {
			callback(ev)
		}
	}

	results, err := pmtud.DiscoverAll(ctx, targets, s.engine, s.open, logged)
	for i, r := range results {
		if r != nil {
			r.Target = names[i]
			r.Source = s.engine.Source
		}
	}
	if err != nil {
		return results, err
	}

	s.enrich(ctx, results)

	for _, r := range results {
		if r.Discovered {
			s.logger.WithFields(logrus.Fields{
				"run":           r.ID,
				"target":        r.Target,
				"mtu":           r.MTU,
				"authoritative": r.Authoritative,
				"probes":        r.TotalProbes(),
			}).Debug("path MTU discovered")
		} else {
			s.logger.WithFields(logrus.Fields{
				"run":    r.ID,
				"target": r.Target,
			}).Warn(r.Failure)
		}
	}
	return results, ctx.Err()
}

// enrich adds reporter hostnames and ASes to results.
func (s *session) enrich(ctx context.Context, results []*pathmtu.Result) {
	if s.enricher == nil {
		return
	}
	s.enricher.EnrichResults(ctx, results)

	stats := s.enricher.Stats()
	s.logger.WithFields(logrus.Fields{
		"hits":   stats.Hits,
		"misses": stats.Misses,
		"size":   stats.Size,
	}).Debug("hostname cache")
}

func (s *session) logProbe(ev pmtud.ProbeEvent) {
	fields := logrus.Fields{
		"target":  ev.Probe.Destination.String(),
		"attempt": ev.Attempt,
		"seq":     ev.Probe.Seq,
		"size":    ev.Size,
		"outcome": ev.Outcome.Kind.String(),
	}
	if ev.From != nil {
		fields["from"] = ev.From.String()
		fields["rtt"] = ev.RTT
	}
	if ev.Outcome.NextHopMTU > 0 {
		fields["next_hop_mtu"] = ev.Outcome.NextHopMTU
	}
	entry := s.logger.WithFields(fields)
	if ev.Err != nil {
		entry = entry.WithError(ev.Err)
	}
	entry.Debug("probe")
}

// runSimple runs discovery with line-per-probe text output.
func runSimple(ctx context.Context, s *session, targets []net.IP, names []string) ([]*pathmtu.Result, error) {
	renderer := display.NewSimpleRenderer()
	multi := len(targets) > 1

	for i, ip := range targets {
		fmt.Fprintln(s.out, renderer.RenderHeader(names[i], ip.String(),
			s.engine.InitialProbeSize+packet.HeaderOverhead, s.engine.DecrementStep))
	}

	var mu sync.Mutex
	callback := func(ev pmtud.ProbeEvent) {
		line := renderer.RenderProbe(ev.Attempt, ev.Record())
		if multi {
			line = fmt.Sprintf("%-15s %s", ev.Probe.Destination, line)
		}
		mu.Lock()
		fmt.Fprintln(s.out, line)
		mu.Unlock()
	}

	results, err := s.discover(ctx, targets, names, callback)
	if err != nil {
		return results, err
	}

	fmt.Fprintln(s.out)
	for _, r := range results {
		fmt.Fprintln(s.out, renderer.RenderSummary(r))
	}
	return results, nil
}

// runTUI runs discovery to a single target with the interactive display.
// Quitting the display early stops discovery.
func runTUI(ctx context.Context, s *session, target net.IP, name string) ([]*pathmtu.Result, error) {
	tuiCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	probeChan := make(chan pathmtu.Probe, 100)
	doneChan := make(chan *pathmtu.Result, 1)
	finished := make(chan struct{})

	var results []*pathmtu.Result
	var discoverErr error

	go func() {
		defer close(finished)
		defer close(doneChan)

		callback := func(ev pmtud.ProbeEvent) {
			select {
			case probeChan <- ev.Record():
			case <-tuiCtx.Done():
			}
		}

		results, discoverErr = s.discover(tuiCtx, []net.IP{target}, []string{name}, callback)
		close(probeChan)
		if len(results) > 0 {
			doneChan <- results[0]
		}
	}()

	// Run TUI (blocks until user quits)
	tuiErr := display.RunTUI(name, target.String(), probeChan, doneChan)
	cancel()
	<-finished

	if tuiErr != nil {
		return nil, fmt.Errorf("TUI error: %w", tuiErr)
	}
	if discoverErr != nil && ctx.Err() == nil && errors.Is(discoverErr, context.Canceled) {
		// User quit before discovery finished
		return nil, nil
	}
	return results, discoverErr
}

// runWatch re-runs discovery every interval and reports changes.
func runWatch(ctx context.Context, s *session, targets []net.IP, names []string) error {
	interval, err := time.ParseDuration(s.cfg.Interval)
	if err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}

	monCfg := monitor.DefaultConfig()
	monCfg.Interval = interval
	monCfg.Cycles = s.cfg.Cycles

	mon := monitor.NewMonitor(monCfg)
	mon.SetCallback(func(changes []monitor.Change) {
		for _, c := range changes {
			fmt.Fprintf(s.out, "ALERT: %s\n", c.String())
			s.logger.WithField("type", string(c.Type)).Info(c.Message)
		}
	})

	fmt.Fprintf(s.out, "Watching %d target(s), interval %v\n", len(targets), monCfg.Interval)
	fmt.Fprintln(s.out, "Press Ctrl+C to stop")
	fmt.Fprintln(s.out)

	var last []*pathmtu.Result
	discoverFn := func(ctx context.Context) ([]*pathmtu.Result, error) {
		results, err := s.discover(ctx, targets, names, nil)
		if err != nil && (ctx.Err() != nil || pmtud.IsFatal(err)) {
			return nil, err
		}
		return results, nil
	}

	err = mon.Run(ctx, discoverFn, func(cycle int, results []*pathmtu.Result) {
		now := time.Now().Format("15:04:05")
		for _, r := range results {
			if r.Discovered {
				fmt.Fprintf(s.out, "[%s] #%d %s: MTU %d\n", now, cycle, r.Target, r.MTU)
			} else {
				fmt.Fprintf(s.out, "[%s] #%d %s: %s\n", now, cycle, r.Target, r.Failure)
			}
		}
		last = results
	})

	if s.cfg.Output != "" && len(last) > 0 {
		if exportErr := export.ExportToFile(s.cfg.Output, export.Format(s.cfg.Format), last); exportErr != nil {
			return fmt.Errorf("failed to export: %w", exportErr)
		}
		fmt.Fprintf(s.out, "Results exported to %s\n", s.cfg.Output)
	}

	return err
}

// failureSummary returns an error when any target has no path MTU.
func failureSummary(results []*pathmtu.Result) error {
	failed := 0
	for _, r := range results {
		if r == nil || !r.Discovered {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("no path MTU found for %d of %d target(s)", failed, len(results))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
