// Package simnet simulates the network path behind a raw ICMP transport so
// discovery can run without privileges.
package simnet

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/hervehildenbrand/pmtud/internal/packet"
	"github.com/hervehildenbrand/pmtud/internal/pmtud"
	"golang.org/x/net/ipv4"
)

// DefaultRouter is the address of the simulated bottleneck router.
var DefaultRouter = net.IPv4(192, 0, 2, 1).To4()

// Network is a simulated path. It implements pmtud.Transport.
type Network struct {
	// LinkMTU is the local interface MTU; larger datagrams are rejected on send
	LinkMTU int

	// PathMTU is the smallest MTU along the path; 0 means unlimited
	PathMTU int

	// Router reports Fragmentation Needed for datagrams above PathMTU
	Router net.IP

	// HideMTU makes the router send a zero next-hop MTU (pre RFC 1191)
	HideMTU bool

	// Silent drops everything, as a firewalled path would
	Silent bool

	mu     sync.Mutex
	queue  []*pmtud.Datagram
	sent   []int
	notify chan struct{}
}

// New creates a simulated path with the given bottleneck MTU.
func New(pathMTU int) *Network {
	return &Network{
		PathMTU: pathMTU,
		Router:  DefaultRouter,
		notify:  make(chan struct{}, 1),
	}
}

// Factory returns a transport factory handing out independent copies of n,
// one per discovery run.
func (n *Network) Factory() pmtud.TransportFactory {
	return func() (pmtud.Transport, error) {
		c := New(n.PathMTU)
		c.LinkMTU = n.LinkMTU
		c.Router = n.Router
		c.HideMTU = n.HideMTU
		c.Silent = n.Silent
		return c, nil
	}
}

// Send accepts an encoded IPv4 datagram and queues the response the path
// would produce.
func (n *Network) Send(ctx context.Context, frame []byte, dst net.IP) (int, error) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeIPv4, gopacket.Default)
	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return 0, fmt.Errorf("not an IPv4 datagram")
	}
	echo, ok := pkt.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
	if !ok {
		return 0, fmt.Errorf("not an ICMP datagram")
	}

	if n.LinkMTU > 0 && len(frame) > n.LinkMTU {
		return 0, fmt.Errorf("%w: message too long (%d > %d)", pmtud.ErrSendRejected, len(frame), n.LinkMTU)
	}

	n.mu.Lock()
	n.sent = append(n.sent, len(frame))
	n.mu.Unlock()

	if n.Silent {
		return len(frame), nil
	}

	dontFragment := ip.Flags&layers.IPv4DontFragment != 0
	if n.PathMTU > 0 && len(frame) > n.PathMTU && dontFragment {
		hint := uint16(n.PathMTU)
		if n.HideMTU {
			hint = 0
		}
		n.deliver(n.Router, ip.SrcIP, packet.EncodeFragmentationNeeded(hint, frame))
		return len(frame), nil
	}

	reply, err := packet.EncodeEchoReply(len(echo.Payload), echo.Id, echo.Seq)
	if err != nil {
		return 0, err
	}
	n.deliver(dst, ip.SrcIP, reply)
	return len(frame), nil
}

// Inject queues an arbitrary ICMP message as if it arrived from src.
func (n *Network) Inject(src net.IP, icmpPayload []byte) {
	n.deliver(src, net.IPv4zero, icmpPayload)
}

func (n *Network) deliver(src, dst net.IP, payload []byte) {
	dg := &pmtud.Datagram{
		Header: &ipv4.Header{
			Version:  ipv4.Version,
			Len:      ipv4.HeaderLen,
			TotalLen: ipv4.HeaderLen + len(payload),
			TTL:      64,
			Protocol: 1,
			Src:      src,
			Dst:      dst,
		},
		Payload: payload,
		Source:  src,
	}

	n.mu.Lock()
	n.queue = append(n.queue, dg)
	n.mu.Unlock()

	select {
	case n.notify <- struct{}{}:
	default:
	}
}

// Receive returns the next queued datagram, waiting up to timeout.
func (n *Network) Receive(ctx context.Context, timeout time.Duration) (*pmtud.Datagram, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		n.mu.Lock()
		if len(n.queue) > 0 {
			dg := n.queue[0]
			n.queue = n.queue[1:]
			n.mu.Unlock()
			return dg, nil
		}
		n.mu.Unlock()

		select {
		case <-n.notify:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Sent returns the sizes of the datagrams accepted so far.
func (n *Network) Sent() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.sent...)
}

// Close implements pmtud.Transport.
func (n *Network) Close() error {
	return nil
}
