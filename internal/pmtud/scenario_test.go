package pmtud_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hervehildenbrand/pmtud/internal/packet"
	"github.com/hervehildenbrand/pmtud/internal/pmtud"
	"github.com/hervehildenbrand/pmtud/internal/simnet"
	"go.uber.org/atomic"
)

var target = net.ParseIP("203.0.113.7")

func fastConfig() *pmtud.Config {
	cfg := pmtud.DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond
	return cfg
}

func TestDiscover_StandardPath(t *testing.T) {
	network := simnet.New(1500)

	result, err := pmtud.Discover(context.Background(), target, fastConfig(), network)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MTU != 1500 {
		t.Errorf("MTU = %d, want 1500", result.MTU)
	}
	if sent := network.Sent(); len(sent) != 1 || sent[0] != 1500 {
		t.Errorf("sent = %v, want [1500]", sent)
	}
}

func TestDiscover_LocalRejectionThenRouterReport(t *testing.T) {
	network := simnet.New(1400)
	network.LinkMTU = 1499

	result, err := pmtud.Discover(context.Background(), target, fastConfig(), network)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MTU != 1400 || !result.Authoritative {
		t.Errorf("MTU = %d authoritative=%v, want 1400 true", result.MTU, result.Authoritative)
	}
	if !result.Reporter.Equal(simnet.DefaultRouter) {
		t.Errorf("Reporter = %v, want %v", result.Reporter, simnet.DefaultRouter)
	}
	if len(result.Probes) != 2 || result.Probes[1].PayloadSize != 1464 {
		t.Errorf("probes = %+v, want a second probe of 1464", result.Probes)
	}
}

func TestDiscover_HiddenMTUFallsBackToSearch(t *testing.T) {
	tests := []struct {
		name     string
		strategy pmtud.Strategy
		step     int
	}{
		{"linear", pmtud.StrategyLinear, 8},
		{"binary", pmtud.StrategyBinary, 8},
		{"binary exact", pmtud.StrategyBinary, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network := simnet.New(1400)
			network.HideMTU = true

			cfg := fastConfig()
			cfg.Strategy = tt.strategy
			cfg.DecrementStep = tt.step

			result, err := pmtud.Discover(context.Background(), target, cfg, network)

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Authoritative {
				t.Error("search result should not be authoritative")
			}
			if result.MTU > 1400 || 1400-result.MTU >= tt.step {
				t.Errorf("MTU = %d, want within %d below 1400", result.MTU, tt.step)
			}
		})
	}
}

func TestDiscover_SilentPath(t *testing.T) {
	network := simnet.New(1500)
	network.Silent = true

	cfg := fastConfig()
	cfg.Timeout = 30 * time.Millisecond

	result, err := pmtud.Discover(context.Background(), target, cfg, network)

	if !errors.Is(err, pmtud.ErrNoResponse) {
		t.Fatalf("err = %v, want ErrNoResponse", err)
	}
	if result.Discovered {
		t.Error("silent path should not produce an MTU")
	}
}

func TestDiscover_IgnoresInjectedNoise(t *testing.T) {
	network := simnet.New(1500)
	stray, err := packet.EncodeEchoReply(56, 0xbeef, 1)
	if err != nil {
		t.Fatalf("EncodeEchoReply() error: %v", err)
	}
	network.Inject(net.ParseIP("198.51.100.9"), stray)

	result, err := pmtud.Discover(context.Background(), target, fastConfig(), network)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MTU != 1500 {
		t.Errorf("MTU = %d, want 1500", result.MTU)
	}
}

func TestDiscover_IgnoresRedirectForOtherHost(t *testing.T) {
	network := simnet.New(1500)

	echo, err := packet.EncodeEchoRequest(56, 0x9999, 1)
	if err != nil {
		t.Fatalf("EncodeEchoRequest() error: %v", err)
	}
	quoted, err := packet.EncodeIPv4(echo, net.ParseIP("192.0.2.10"), net.ParseIP("198.51.100.77"), 64, 7)
	if err != nil {
		t.Fatalf("EncodeIPv4() error: %v", err)
	}
	redirect := packet.EncodeFragmentationNeeded(0, quoted)
	redirect[0], redirect[1] = 5, 1
	copy(redirect[4:8], simnet.DefaultRouter)
	redirect[2], redirect[3] = 0, 0
	sum := packet.Checksum(redirect)
	redirect[2], redirect[3] = byte(sum>>8), byte(sum)
	network.Inject(simnet.DefaultRouter, redirect)

	result, err := pmtud.Discover(context.Background(), target, fastConfig(), network)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MTU != 1500 {
		t.Errorf("MTU = %d, want 1500", result.MTU)
	}
	if sent := network.Sent(); len(sent) != 1 || sent[0] != 1500 {
		t.Errorf("sent = %v, want [1500]", sent)
	}
}

func TestDiscover_BinarySearchHonoursRouterReport(t *testing.T) {
	network := simnet.New(1400)

	cfg := fastConfig()
	cfg.Strategy = pmtud.StrategyBinary

	result, err := pmtud.Discover(context.Background(), target, cfg, network)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MTU != 1400 || !result.Authoritative {
		t.Errorf("MTU = %d authoritative=%v, want 1400 true", result.MTU, result.Authoritative)
	}
	if len(result.Probes) != 1 {
		t.Errorf("sent %d probes, want 1", len(result.Probes))
	}
}

func TestDiscoverAll(t *testing.T) {
	targets := []net.IP{
		net.ParseIP("203.0.113.7"),
		net.ParseIP("203.0.113.8"),
		net.ParseIP("203.0.113.9"),
	}
	network := simnet.New(1400)

	events := atomic.NewInt64(0)
	results, err := pmtud.DiscoverAll(context.Background(), targets, fastConfig(), network.Factory(), func(ev pmtud.ProbeEvent) {
		events.Inc()
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(targets) {
		t.Fatalf("got %d results, want %d", len(results), len(targets))
	}
	for i, r := range results {
		if !r.TargetIP.Equal(targets[i]) {
			t.Errorf("results[%d] target = %v, want %v", i, r.TargetIP, targets[i])
		}
		if r.MTU != 1400 {
			t.Errorf("results[%d] MTU = %d, want 1400", i, r.MTU)
		}
	}
	if got := events.Load(); got != int64(len(targets)) {
		t.Errorf("callback ran %d times, want %d", got, len(targets))
	}
}

func TestDiscoverAll_TransportInitFailure(t *testing.T) {
	open := func() (pmtud.Transport, error) {
		return nil, &pmtud.TransportInitError{Err: errors.New("operation not permitted")}
	}

	results, err := pmtud.DiscoverAll(context.Background(), []net.IP{target}, fastConfig(), open, nil)

	var initErr *pmtud.TransportInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("err = %v, want TransportInitError", err)
	}
	if results[0] == nil || results[0].Failure == "" {
		t.Error("expected the failure to be recorded on the result")
	}
}

func TestDiscoverAll_InvalidConfig(t *testing.T) {
	cfg := fastConfig()
	cfg.DecrementStep = 0

	_, err := pmtud.DiscoverAll(context.Background(), []net.IP{target}, cfg, simnet.New(1500).Factory(), nil)

	if !errors.Is(err, pmtud.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}
