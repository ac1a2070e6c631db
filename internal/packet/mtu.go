// Package packet encodes Don't-Fragment ICMP echo probes and classifies the
// ICMP responses they provoke.
package packet

// MTU and framing constants
const (
	// StandardMTU is the typical Ethernet MTU
	StandardMTU = 1500

	// MinMTU is the minimum datagram size every IPv4 host must accept
	// without fragmentation (RFC 791)
	MinMTU = 68

	// MaxDatagramSize is the largest value of the IPv4 total length field
	MaxDatagramSize = 65535

	// IPv4HeaderLen is the length of an IPv4 header without options
	IPv4HeaderLen = 20

	// ICMPHeaderLen is the length of the ICMP header (type, code, checksum, rest)
	ICMPHeaderLen = 8

	// HeaderOverhead is the IPv4 + ICMP header cost added to every probe payload
	HeaderOverhead = IPv4HeaderLen + ICMPHeaderLen

	// MaxPayloadSize is the largest echo payload that still fits in one datagram
	MaxPayloadSize = MaxDatagramSize - HeaderOverhead

	// DefaultPayloadSize fills a standard Ethernet MTU
	DefaultPayloadSize = StandardMTU - HeaderOverhead
)

// ParseNextHopMTU extracts the MTU value from an ICMP Destination Unreachable
// (Fragmentation Needed) message.
//
// ICMP message structure for Type 3, Code 4 (RFC 1191):
// - Type (1 byte): 3 (Destination Unreachable)
// - Code (1 byte): 4 (Fragmentation Needed and DF set)
// - Checksum (2 bytes)
// - unused (2 bytes)
// - Next-Hop MTU (2 bytes) - big-endian
// - Original IP header + first 8 bytes of original datagram
//
// Returns the MTU and true for a nonzero hint. A router that predates
// RFC 1191 leaves the field zero; that yields 0 and false so the caller
// falls back to searching instead of trusting it.
func ParseNextHopMTU(data []byte) (int, bool) {
	if len(data) < ICMPHeaderLen {
		return 0, false
	}

	if data[0] != typeDestinationUnreachable || data[1] != codeFragmentationNeeded {
		return 0, false
	}

	mtu := int(data[6])<<8 | int(data[7])
	if mtu == 0 {
		return 0, false
	}

	return mtu, true
}
