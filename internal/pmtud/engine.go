package pmtud

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hervehildenbrand/pmtud/internal/packet"
	"github.com/hervehildenbrand/pmtud/pkg/pathmtu"
)

// ProbeEvent describes one completed probe. Engines emit it through a
// ProbeCallback instead of logging.
type ProbeEvent struct {
	Attempt int // 1-based probe count within the run
	Probe   packet.Probe
	Size    int // Full IPv4 datagram size
	Outcome packet.Outcome
	From    net.IP
	RTT     time.Duration
	Err     error // Send rejection or decode failure that made the probe inconclusive
}

// ProbeCallback is called after every probe. DiscoverAll invokes it from
// several goroutines.
type ProbeCallback func(ProbeEvent)

// Engine drives the adaptive probe loop for one destination at a time.
type Engine struct {
	config    *Config
	transport Transport
	id        uint16
}

// NewEngine creates an engine that owns transport for the duration of its runs.
func NewEngine(cfg *Config, transport Transport) *Engine {
	return &Engine{
		config:    cfg,
		transport: transport,
		id:        nextIdentifier(),
	}
}

// Discover runs discovery to target with the given transport.
func Discover(ctx context.Context, target net.IP, cfg *Config, transport Transport) (*pathmtu.Result, error) {
	return NewEngine(cfg, transport).Discover(ctx, target, nil)
}

// Discover probes target until a probe passes, a router reports the next-hop
// MTU, or the run fails. The returned result is non-nil whenever probing
// started, including on failure and cancellation.
func (e *Engine) Discover(ctx context.Context, target net.IP, callback ProbeCallback) (*pathmtu.Result, error) {
	if err := e.config.Validate(); err != nil {
		return nil, err
	}

	target4 := target.To4()
	if target4 == nil {
		return nil, fmt.Errorf("%w: target %v is not an IPv4 address", ErrInvalidConfig, target)
	}

	result := pathmtu.NewResult(target.String(), target4)
	result.Source = e.config.Source
	result.StartTime = time.Now()

	err := e.run(ctx, target4, result, callback)
	result.EndTime = time.Now()
	if err != nil {
		result.SetFailure(err)
		return result, err
	}
	return result, nil
}

func (e *Engine) run(ctx context.Context, target net.IP, result *pathmtu.Result, callback ProbeCallback) error {
	search := newSearcher(e.config)
	var seq uint16

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		seq++
		p := packet.Probe{
			ID:          e.id,
			Seq:         seq,
			PayloadSize: search.next(),
			Destination: target,
		}

		ev, err := e.probe(ctx, p)
		ev.Attempt = attempt
		result.AddProbe(ev.Record())
		if callback != nil {
			callback(ev)
		}
		if err != nil {
			return err
		}

		// A router's next-hop MTU is authoritative and ends the search.
		// Hints below the IPv4 minimum are treated as absent.
		if ev.Outcome.Kind == packet.OutcomeFragmentationNeeded && ev.Outcome.NextHopMTU >= packet.MinMTU {
			result.SetMTU(ev.Outcome.NextHopMTU, ev.From, true)
			return nil
		}

		passed := ev.Outcome.Kind == packet.OutcomeEchoReply
		best, done, err := search.record(p.PayloadSize, passed)
		if err != nil {
			return err
		}
		if done {
			result.SetMTU(best+packet.HeaderOverhead, target, false)
			return nil
		}
	}
}

// probe sends one probe and waits for the response that belongs to it.
func (e *Engine) probe(ctx context.Context, p packet.Probe) (ProbeEvent, error) {
	ev := ProbeEvent{
		Probe:   p,
		Size:    p.PayloadSize + packet.HeaderOverhead,
		Outcome: packet.Outcome{Kind: packet.OutcomeNoResponse},
	}

	icmpFrame, err := packet.EncodeEchoRequest(p.PayloadSize, p.ID, p.Seq)
	if err != nil {
		return ev, err
	}
	frame, err := packet.EncodeIPv4(icmpFrame, e.config.Source, p.Destination, e.config.TTL, nextIPID())
	if err != nil {
		return ev, err
	}

	start := time.Now()

	if _, err := e.transport.Send(ctx, frame, p.Destination); err != nil {
		if errors.Is(err, ErrSendRejected) {
			ev.Outcome = packet.Outcome{Kind: packet.OutcomeSendRejected}
			ev.Err = err
			return ev, nil
		}
		return ev, fmt.Errorf("failed to send probe: %w", err)
	}

	deadline := start.Add(e.config.Timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ev, ErrNoResponse
		}

		dg, err := e.transport.Receive(ctx, remaining)
		if err != nil {
			if ctx.Err() != nil {
				return ev, ctx.Err()
			}
			return ev, fmt.Errorf("failed to receive: %w", err)
		}
		if dg == nil {
			return ev, ErrNoResponse
		}

		out, err := packet.DecodeResponse(dg.Payload, p)
		if err != nil {
			// Inconclusive: shrink and retry rather than abort the run
			ev.Outcome = packet.Outcome{Kind: packet.OutcomeOtherICMP}
			ev.Err = err
			ev.From = dg.Source
			ev.RTT = time.Since(start)
			return ev, nil
		}

		if out.Kind == packet.OutcomeUnrelated {
			continue
		}
		if out.Kind == packet.OutcomeEchoReply && !dg.Source.Equal(p.Destination) {
			continue
		}

		ev.Outcome = out
		ev.From = dg.Source
		ev.RTT = time.Since(start)
		return ev, nil
	}
}

// Record converts the event into the probe log entry kept in results.
func (ev ProbeEvent) Record() pathmtu.Probe {
	rec := pathmtu.Probe{
		Seq:         ev.Probe.Seq,
		PayloadSize: ev.Probe.PayloadSize,
		Size:        ev.Size,
		Outcome:     ev.Outcome.Kind.String(),
		From:        ev.From,
		NextHopMTU:  ev.Outcome.NextHopMTU,
		RTT:         ev.RTT,
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	return rec
}
