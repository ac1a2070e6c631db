// Package pmtud discovers the Path MTU to an IPv4 host with Don't-Fragment
// ICMP echo probes.
package pmtud

import (
	"fmt"
	"net"
	"time"

	"github.com/hervehildenbrand/pmtud/internal/packet"
)

// Strategy selects how the probe size shrinks after a failed probe.
type Strategy string

const (
	StrategyLinear Strategy = "linear"
	StrategyBinary Strategy = "binary"
)

// MinProbeSize is the smallest echo payload the engine will send.
const MinProbeSize = packet.MinMTU

// Config holds discovery configuration.
type Config struct {
	InitialProbeSize int           // ICMP payload of the first probe
	DecrementStep    int           // Linear shrink step, binary search resolution
	Timeout          time.Duration // Per-probe wait for a response
	Source           net.IP        // Source address override, nil lets the kernel choose
	TTL              uint8
	Strategy         Strategy
	MaxParallel      int // Concurrent targets in DiscoverAll
}

// DefaultConfig returns the default discovery configuration.
// The first probe fills a standard 1500 byte Ethernet MTU.
func DefaultConfig() *Config {
	return &Config{
		InitialProbeSize: packet.DefaultPayloadSize,
		DecrementStep:    8,
		Timeout:          2 * time.Second,
		TTL:              64,
		Strategy:         StrategyLinear,
		MaxParallel:      8,
	}
}

// Validate checks if the configuration is valid. It never performs I/O.
func (c *Config) Validate() error {
	if c.InitialProbeSize < MinProbeSize {
		return fmt.Errorf("%w: initial probe size %d is below the minimum of %d", ErrInvalidConfig, c.InitialProbeSize, MinProbeSize)
	}

	if c.InitialProbeSize > packet.MaxPayloadSize {
		return fmt.Errorf("%w: initial probe size %d exceeds %d", ErrInvalidConfig, c.InitialProbeSize, packet.MaxPayloadSize)
	}

	if c.DecrementStep <= 0 {
		return fmt.Errorf("%w: decrement step must be positive", ErrInvalidConfig)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}

	if c.TTL == 0 {
		return fmt.Errorf("%w: ttl must be positive", ErrInvalidConfig)
	}

	if c.Source != nil && c.Source.To4() == nil {
		return fmt.Errorf("%w: source %v is not an IPv4 address", ErrInvalidConfig, c.Source)
	}

	switch c.Strategy {
	case StrategyLinear, StrategyBinary:
		// Valid
	default:
		return fmt.Errorf("%w: invalid strategy %q: must be linear or binary", ErrInvalidConfig, c.Strategy)
	}

	if c.MaxParallel < 0 {
		return fmt.Errorf("%w: max parallel must not be negative", ErrInvalidConfig)
	}

	return nil
}
