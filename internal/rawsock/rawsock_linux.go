//go:build linux

package rawsock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hervehildenbrand/pmtud/internal/pmtud"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// Conn is a raw ICMP socket with IP_HDRINCL. It implements pmtud.Transport.
type Conn struct {
	raw *ipv4.RawConn
	buf []byte
}

// Open opens the raw socket, bound to source when it is set.
func Open(source net.IP) (*Conn, error) {
	addr := "0.0.0.0"
	if source != nil {
		addr = source.String()
	}

	pc, err := net.ListenPacket("ip4:icmp", addr)
	if err != nil {
		return nil, &pmtud.TransportInitError{Err: err}
	}

	// Keep the DF bit from our header and ignore the cached path MTU, so
	// the kernel only refuses datagrams larger than the interface MTU.
	if err := setPMTUProbe(pc.(*net.IPConn)); err != nil {
		pc.Close()
		return nil, &pmtud.TransportInitError{Err: err}
	}

	raw, err := ipv4.NewRawConn(pc)
	if err != nil {
		pc.Close()
		return nil, &pmtud.TransportInitError{Err: err}
	}

	return &Conn{raw: raw, buf: make([]byte, readBufferSize)}, nil
}

// Factory returns a pmtud.TransportFactory opening sockets bound to source.
func Factory(source net.IP) pmtud.TransportFactory {
	return func() (pmtud.Transport, error) {
		return Open(source)
	}
}

func setPMTUProbe(c *net.IPConn) error {
	sc, err := c.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	err = sc.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_PROBE)
	})
	if err != nil {
		return err
	}
	return serr
}

// Send transmits a complete IPv4 datagram.
func (c *Conn) Send(ctx context.Context, frame []byte, dst net.IP) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	h, err := ipv4.ParseHeader(frame)
	if err != nil {
		return 0, fmt.Errorf("invalid datagram: %w", err)
	}
	h.Dst = dst

	if err := c.raw.WriteTo(h, frame[h.Len:], nil); err != nil {
		if errors.Is(err, unix.EMSGSIZE) {
			return 0, fmt.Errorf("%w: %v", pmtud.ErrSendRejected, err)
		}
		return 0, err
	}
	return len(frame), nil
}

// Receive waits up to timeout for the next ICMP datagram. It returns
// nil, nil when the timeout elapses.
func (c *Conn) Receive(ctx context.Context, timeout time.Duration) (*pmtud.Datagram, error) {
	deadline := time.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if remaining > pollInterval {
			remaining = pollInterval
		}
		if err := c.raw.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return nil, err
		}

		h, p, _, err := c.raw.ReadFrom(c.buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return nil, err
		}

		payload := make([]byte, len(p))
		copy(payload, p)
		return &pmtud.Datagram{Header: h, Payload: payload, Source: h.Src}, nil
	}
}

// Close releases the socket.
func (c *Conn) Close() error {
	return c.raw.Close()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
