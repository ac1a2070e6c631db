package pmtud

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// Datagram is an inbound IPv4 datagram split into header and payload.
type Datagram struct {
	Header  *ipv4.Header
	Payload []byte
	Source  net.IP
}

// Transport sends encoded IPv4 datagrams and receives inbound ones.
// A transport is owned by one engine run at a time.
type Transport interface {
	// Send transmits a complete IPv4 datagram. Errors wrapping
	// ErrSendRejected mean the local stack refused its size.
	Send(ctx context.Context, frame []byte, dst net.IP) (int, error)

	// Receive waits up to timeout for the next datagram. It returns
	// (nil, nil) when the timeout elapses.
	Receive(ctx context.Context, timeout time.Duration) (*Datagram, error)

	Close() error
}

// TransportFactory opens a fresh transport.
type TransportFactory func() (Transport, error)
