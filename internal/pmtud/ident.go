package pmtud

import (
	"os"

	"go.uber.org/atomic"
)

// Counters shared by every engine in the process so concurrent runs never
// reuse an ICMP identifier or IPv4 identification value.
var (
	engineCounter = atomic.NewUint32(0)
	ipIDCounter   = atomic.NewUint32(uint32(os.Getpid()))
)

// nextIdentifier returns the ICMP echo identifier for a new engine.
func nextIdentifier() uint16 {
	return uint16(os.Getpid()&0xffff) + uint16(engineCounter.Inc())
}

// nextIPID returns the IPv4 identification for the next probe.
func nextIPID() uint16 {
	return uint16(ipIDCounter.Inc())
}
