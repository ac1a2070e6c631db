package packet

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ErrFrameTooLarge is returned when a probe would not fit in one IPv4 datagram.
var ErrFrameTooLarge = errors.New("frame exceeds maximum IPv4 datagram size")

// fillPattern is repeated through every echo payload so probes are reproducible.
var fillPattern = []byte("abcdefghijklmnopqrstuvwabcdefghi")

// Filler returns n deterministic payload bytes.
func Filler(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fillPattern[i%len(fillPattern)]
	}
	return b
}

// EncodeEchoRequest builds an ICMP Echo Request of exactly 8+payloadSize bytes
// with its checksum computed over the whole frame.
func EncodeEchoRequest(payloadSize int, id, seq uint16) ([]byte, error) {
	return encodeEcho(ipv4.ICMPTypeEcho, payloadSize, id, seq)
}

// EncodeEchoReply builds the Echo Reply a target answers a probe with.
func EncodeEchoReply(payloadSize int, id, seq uint16) ([]byte, error) {
	return encodeEcho(ipv4.ICMPTypeEchoReply, payloadSize, id, seq)
}

func encodeEcho(typ ipv4.ICMPType, payloadSize int, id, seq uint16) ([]byte, error) {
	if payloadSize < 0 {
		return nil, fmt.Errorf("invalid payload size %d", payloadSize)
	}
	if payloadSize > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload %d bytes, max %d", ErrFrameTooLarge, payloadSize, MaxPayloadSize)
	}

	msg := &icmp.Message{
		Type: typ,
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(id),
			Seq:  int(seq),
			Data: Filler(payloadSize),
		},
	}

	// Marshal zeroes the checksum field, sums the frame and stores the result
	b, err := msg.Marshal(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ICMP message: %w", err)
	}
	return b, nil
}

// EncodeFragmentationNeeded builds an ICMP Destination Unreachable /
// Fragmentation Needed message quoting the start of original, as a router
// on the path would. A zero nextHopMTU mimics a pre-RFC 1191 router.
func EncodeFragmentationNeeded(nextHopMTU uint16, original []byte) []byte {
	quoted := original
	if limit := quoteLen(original); len(quoted) > limit {
		quoted = quoted[:limit]
	}

	b := make([]byte, ICMPHeaderLen+len(quoted))
	b[0] = typeDestinationUnreachable
	b[1] = codeFragmentationNeeded
	b[6] = byte(nextHopMTU >> 8)
	b[7] = byte(nextHopMTU)
	copy(b[ICMPHeaderLen:], quoted)

	sum := Checksum(b)
	b[2] = byte(sum >> 8)
	b[3] = byte(sum)
	return b
}

// quoteLen is the original IP header plus the first 8 bytes of its payload.
func quoteLen(original []byte) int {
	if len(original) == 0 {
		return 0
	}
	return int(original[0]&0x0f)*4 + 8
}

// EncodeIPv4 wraps icmpFrame in a 20-byte IPv4 header with Don't-Fragment set,
// More-Fragments clear, protocol ICMP and a computed header checksum.
// A nil or unspecified source is encoded as 0.0.0.0; raw sockets on Linux
// fill in the outgoing interface address.
func EncodeIPv4(icmpFrame []byte, src, dst net.IP, ttl uint8, ident uint16) ([]byte, error) {
	if IPv4HeaderLen+len(icmpFrame) > MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, IPv4HeaderLen+len(icmpFrame))
	}

	dst4 := dst.To4()
	if dst4 == nil {
		return nil, fmt.Errorf("destination %v is not an IPv4 address", dst)
	}

	src4 := net.IPv4zero.To4()
	if src != nil {
		if src4 = src.To4(); src4 == nil {
			return nil, fmt.Errorf("source %v is not an IPv4 address", src)
		}
	}

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      ttl,
		Id:       ident,
		Flags:    layers.IPv4DontFragment,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    src4,
		DstIP:    dst4,
	}

	buf := gopacket.NewSerializeBufferExpectedSize(IPv4HeaderLen, len(icmpFrame))
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, gopacket.Payload(icmpFrame)); err != nil {
		return nil, fmt.Errorf("failed to serialize IPv4 header: %w", err)
	}

	return buf.Bytes(), nil
}
