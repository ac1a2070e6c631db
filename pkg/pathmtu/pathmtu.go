// Package pathmtu defines the result model of a Path MTU discovery run.
package pathmtu

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

const (
	// StandardMTU is the typical Ethernet MTU
	StandardMTU = 1500

	// JumboMTU threshold - MTUs above this are considered jumbo frames
	JumboMTU = 1500
)

// Probe records one probe sent during discovery.
type Probe struct {
	Seq         uint16
	PayloadSize int           // ICMP echo payload bytes
	Size        int           // Full IPv4 datagram size
	Outcome     string        // echo-reply, frag-needed, other-icmp, send-rejected, no-response
	From        net.IP        // Responder, nil when nothing answered
	NextHopMTU  int           // RFC 1191 hint carried by frag-needed, 0 if absent
	RTT         time.Duration // Zero when nothing answered
	Error       string        // Send or decode error detail
}

// Result contains the complete result of a discovery run.
type Result struct {
	ID       string // Unique run ID
	Target   string // Target as given by the user
	TargetIP net.IP // Resolved IPv4 address
	Source   net.IP // Source address override, nil for kernel choice

	// Discovered indicates whether a path MTU was found
	Discovered bool

	// MTU is the discovered path MTU in bytes (IPv4 datagram size)
	MTU int

	// Authoritative is set when the MTU came from a router's next-hop MTU hint
	Authoritative bool

	// Reporter is the host that confirmed the MTU (router or target)
	Reporter         net.IP
	ReporterHostname string
	ReporterASN      uint32 // Origin AS of the reporter, 0 when unknown
	ReporterASName   string

	// Failure describes why discovery stopped without a result
	Failure string

	Probes    []Probe
	StartTime time.Time
	EndTime   time.Time
}

// NewResult creates a new Result for the given target.
func NewResult(target string, targetIP net.IP) *Result {
	return &Result{
		ID:       uuid.NewString(),
		Target:   target,
		TargetIP: targetIP,
		Probes:   make([]Probe, 0),
	}
}

// AddProbe appends a probe record.
func (r *Result) AddProbe(p Probe) {
	r.Probes = append(r.Probes, p)
}

// SetMTU records a discovered path MTU.
func (r *Result) SetMTU(mtu int, reporter net.IP, authoritative bool) {
	r.Discovered = true
	r.MTU = mtu
	r.Reporter = reporter
	r.Authoritative = authoritative
	r.Failure = ""
}

// SetFailure records why the run stopped without a result.
func (r *Result) SetFailure(err error) {
	if err == nil {
		return
	}
	r.Discovered = false
	r.MTU = 0
	r.Failure = err.Error()
}

// String returns a formatted string for MTU display.
func (r *Result) String() string {
	if !r.Discovered || r.MTU == 0 {
		return ""
	}
	return fmt.Sprintf("MTU:%d", r.MTU)
}

// IsReduced returns true if the MTU is below the standard 1500 bytes.
func (r *Result) IsReduced() bool {
	return r.Discovered && r.MTU > 0 && r.MTU < StandardMTU
}

// IsJumbo returns true if the MTU is above the standard 1500 bytes (jumbo frames).
func (r *Result) IsJumbo() bool {
	return r.Discovered && r.MTU > JumboMTU
}

// MaxPayload returns the largest ICMP echo payload that fits the path.
func (r *Result) MaxPayload() int {
	if !r.Discovered || r.MTU < 28 {
		return 0
	}
	return r.MTU - 28
}

// TotalProbes returns the number of probes sent.
func (r *Result) TotalProbes() int {
	return len(r.Probes)
}

// Duration returns how long the run took.
func (r *Result) Duration() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
