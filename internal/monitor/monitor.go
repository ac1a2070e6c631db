// Package monitor provides periodic path MTU re-discovery with change detection.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hervehildenbrand/pmtud/pkg/pathmtu"
)

// ChangeType represents the type of change detected.
type ChangeType string

const (
	ChangeTypeMTU      ChangeType = "mtu"
	ChangeTypeFailure  ChangeType = "failure"
	ChangeTypeRecovery ChangeType = "recovery"
	ChangeTypeReporter ChangeType = "reporter"
)

// Change represents a detected change between two runs to the same target.
type Change struct {
	Type      ChangeType
	Target    string
	Message   string
	Timestamp time.Time
	OldValue  interface{}
	NewValue  interface{}
}

// String formats the change for display.
func (c Change) String() string {
	return fmt.Sprintf("[%s] %s: %s", c.Type, c.Target, c.Message)
}

// Config holds monitoring configuration.
type Config struct {
	Interval        time.Duration // Time between discovery cycles
	Cycles          int           // Number of cycles, 0 runs until cancelled
	AlertOnReporter bool          // Alert when a different router reports the MTU
}

// DefaultConfig returns the default monitoring configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:        10 * time.Second,
		AlertOnReporter: true,
	}
}

// ChangeCallback is called when changes are detected.
type ChangeCallback func([]Change)

// CycleCallback is called after every discovery cycle.
type CycleCallback func(cycle int, results []*pathmtu.Result)

// DiscoverFunc runs one discovery cycle over every watched target.
type DiscoverFunc func(context.Context) ([]*pathmtu.Result, error)

// Monitor performs periodic path MTU discovery.
type Monitor struct {
	config   *Config
	callback ChangeCallback

	mu       sync.Mutex
	previous map[int]*pathmtu.Result // by position in the cycle's results
}

// NewMonitor creates a new monitor with the given configuration.
func NewMonitor(cfg *Config) *Monitor {
	return &Monitor{
		config:   cfg,
		previous: make(map[int]*pathmtu.Result),
	}
}

// SetCallback sets the callback for change notifications.
func (m *Monitor) SetCallback(cb ChangeCallback) {
	m.callback = cb
}

// DetectChanges compares two runs to the same target and returns detected changes.
func (m *Monitor) DetectChanges(prev, curr *pathmtu.Result) []Change {
	if prev == nil || curr == nil {
		return nil
	}

	var changes []Change
	now := time.Now()

	switch {
	case prev.Discovered && !curr.Discovered:
		changes = append(changes, Change{
			Type:      ChangeTypeFailure,
			Target:    curr.Target,
			Message:   fmt.Sprintf("Discovery failed (was %d bytes): %s", prev.MTU, curr.Failure),
			Timestamp: now,
			OldValue:  prev.MTU,
			NewValue:  curr.Failure,
		})

	case !prev.Discovered && curr.Discovered:
		changes = append(changes, Change{
			Type:      ChangeTypeRecovery,
			Target:    curr.Target,
			Message:   fmt.Sprintf("Discovery recovered: %d bytes", curr.MTU),
			Timestamp: now,
			OldValue:  prev.Failure,
			NewValue:  curr.MTU,
		})

	case prev.Discovered && curr.Discovered:
		if prev.MTU != curr.MTU {
			changes = append(changes, Change{
				Type:      ChangeTypeMTU,
				Target:    curr.Target,
				Message:   fmt.Sprintf("MTU changed from %d to %d", prev.MTU, curr.MTU),
				Timestamp: now,
				OldValue:  prev.MTU,
				NewValue:  curr.MTU,
			})
		}

		if m.config.AlertOnReporter && prev.Authoritative && curr.Authoritative &&
			prev.Reporter != nil && curr.Reporter != nil && !prev.Reporter.Equal(curr.Reporter) {
			changes = append(changes, Change{
				Type:      ChangeTypeReporter,
				Target:    curr.Target,
				Message:   fmt.Sprintf("Bottleneck moved from %s to %s", prev.Reporter, curr.Reporter),
				Timestamp: now,
				OldValue:  prev.Reporter.String(),
				NewValue:  curr.Reporter.String(),
			})
		}
	}

	return changes
}

// Observe records a cycle's results and returns the changes against the
// previous cycle. Results are matched by position, since every cycle probes
// the same target list and a target may be listed twice. The change
// callback is invoked when anything changed.
func (m *Monitor) Observe(results []*pathmtu.Result) []Change {
	m.mu.Lock()
	var changes []Change
	for i, r := range results {
		if r == nil {
			continue
		}
		changes = append(changes, m.DetectChanges(m.previous[i], r)...)
		m.previous[i] = r
	}
	m.mu.Unlock()

	if len(changes) > 0 && m.callback != nil {
		m.callback(changes)
	}
	return changes
}

// Run starts the monitoring loop. It returns nil once the configured number
// of cycles has run, or the context error when cancelled.
func (m *Monitor) Run(ctx context.Context, discoverFn DiscoverFunc, cycleFn CycleCallback) error {
	for cycle := 1; ; cycle++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		cycleStart := time.Now()

		results, err := discoverFn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if cycle == 1 {
				return fmt.Errorf("initial discovery failed: %w", err)
			}
		}

		m.Observe(results)
		if cycleFn != nil {
			cycleFn(cycle, results)
		}

		if m.config.Cycles > 0 && cycle >= m.config.Cycles {
			return nil
		}

		// Wait for next cycle interval
		elapsed := time.Since(cycleStart)
		if elapsed < m.config.Interval {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.config.Interval - elapsed):
			}
		}
	}
}
