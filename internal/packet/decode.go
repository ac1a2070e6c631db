package packet

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ErrMalformedPayload is returned for datagrams that are not a well-formed
// ICMP message.
var ErrMalformedPayload = errors.New("malformed ICMP payload")

// protocolICMP is the IANA protocol number for ICMP over IPv4.
const protocolICMP = 1

const (
	typeEchoReply              = 0
	typeDestinationUnreachable = 3
	typeEchoRequest            = 8
	codeFragmentationNeeded    = 4
)

// icmpTypeSourceQuench is deprecated (RFC 6633) and has no x/net constant,
// but old routers still send it.
const icmpTypeSourceQuench = ipv4.ICMPType(4)

// OutcomeKind classifies what a probe provoked.
type OutcomeKind int

const (
	// OutcomeEchoReply means the probe reached the target unfragmented.
	OutcomeEchoReply OutcomeKind = iota
	// OutcomeFragmentationNeeded means a router refused to forward the probe.
	OutcomeFragmentationNeeded
	// OutcomeOtherICMP is any other ICMP message about the probe.
	OutcomeOtherICMP
	// OutcomeSendRejected means the local stack refused the datagram.
	OutcomeSendRejected
	// OutcomeNoResponse means nothing arrived before the timeout.
	OutcomeNoResponse
	// OutcomeUnrelated is traffic that does not answer the current probe.
	OutcomeUnrelated
)

var outcomeNames = map[OutcomeKind]string{
	OutcomeEchoReply:           "echo-reply",
	OutcomeFragmentationNeeded: "frag-needed",
	OutcomeOtherICMP:           "other-icmp",
	OutcomeSendRejected:        "send-rejected",
	OutcomeNoResponse:          "no-response",
	OutcomeUnrelated:           "unrelated",
}

// String returns the short name used in logs and exports.
func (k OutcomeKind) String() string {
	if s, ok := outcomeNames[k]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome is the classified result of one probe.
type Outcome struct {
	Kind OutcomeKind

	// ProbedSize is the echo payload size confirmed by an echo reply
	ProbedSize int

	// NextHopMTU is the RFC 1191 hint; 0 when the router did not report one
	NextHopMTU int

	// Type and Code of the ICMP message, for diagnostics
	Type int
	Code int
}

// Probe identifies the probe currently awaiting an answer.
type Probe struct {
	ID          uint16
	Seq         uint16
	PayloadSize int
	Destination net.IP
}

// DecodeResponse classifies the ICMP payload of a received IPv4 datagram
// (IP header already stripped) against the outstanding probe.
func DecodeResponse(payload []byte, probe Probe) (Outcome, error) {
	if len(payload) < ICMPHeaderLen {
		return Outcome{}, fmt.Errorf("%w: %d bytes, need %d", ErrMalformedPayload, len(payload), ICMPHeaderLen)
	}
	if !VerifyChecksum(payload) {
		return Outcome{}, fmt.Errorf("%w: bad checksum", ErrMalformedPayload)
	}

	msg, err := icmp.ParseMessage(protocolICMP, payload)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	out := Outcome{Type: int(payload[0]), Code: int(payload[1])}

	switch msg.Type {
	case ipv4.ICMPTypeEchoReply:
		echo, ok := msg.Body.(*icmp.Echo)
		if !ok {
			return Outcome{}, fmt.Errorf("%w: echo reply without echo body", ErrMalformedPayload)
		}
		if echo.ID != int(probe.ID) || echo.Seq != int(probe.Seq) {
			out.Kind = OutcomeUnrelated
			return out, nil
		}
		out.Kind = OutcomeEchoReply
		out.ProbedSize = probe.PayloadSize
		return out, nil

	case ipv4.ICMPTypeEcho:
		// Our own request looped back, or someone pinging us
		out.Kind = OutcomeUnrelated
		return out, nil

	case ipv4.ICMPTypeDestinationUnreachable, icmpTypeSourceQuench, ipv4.ICMPTypeRedirect,
		ipv4.ICMPTypeTimeExceeded, ipv4.ICMPTypeParameterProblem:
		mine, err := quotesProbe(quotedData(msg), probe)
		if err != nil {
			return Outcome{}, err
		}
		if !mine {
			out.Kind = OutcomeUnrelated
			return out, nil
		}
		if msg.Type == ipv4.ICMPTypeDestinationUnreachable && msg.Code == codeFragmentationNeeded {
			out.Kind = OutcomeFragmentationNeeded
			out.NextHopMTU, _ = ParseNextHopMTU(payload)
			return out, nil
		}
		out.Kind = OutcomeOtherICMP
		return out, nil
	}

	out.Kind = OutcomeOtherICMP
	return out, nil
}

// quotedData returns the original datagram an ICMP error message carries.
func quotedData(msg *icmp.Message) []byte {
	switch body := msg.Body.(type) {
	case *icmp.DstUnreach:
		return body.Data
	case *icmp.TimeExceeded:
		return body.Data
	case *icmp.ParamProb:
		return body.Data
	case *icmp.RawBody:
		// Redirect and source quench: gateway or unused word, then the quote
		if len(body.Data) < 4 {
			return nil
		}
		return body.Data[4:]
	}
	return nil
}

// quotesProbe reports whether the quoted datagram is the given probe.
// The quote must hold the original IP header plus the first 8 bytes of the
// echo request, otherwise the message cannot be attributed and is malformed.
func quotesProbe(data []byte, probe Probe) (bool, error) {
	h, err := ipv4.ParseHeader(data)
	if err != nil {
		return false, fmt.Errorf("%w: quoted header: %v", ErrMalformedPayload, err)
	}
	if len(data) < h.Len+ICMPHeaderLen {
		return false, fmt.Errorf("%w: quoted datagram truncated to %d bytes", ErrMalformedPayload, len(data))
	}

	if h.Protocol != protocolICMP {
		return false, nil
	}
	if probe.Destination != nil && !h.Dst.Equal(probe.Destination) {
		return false, nil
	}

	echo := data[h.Len:]
	if echo[0] != typeEchoRequest {
		return false, nil
	}
	id := uint16(echo[4])<<8 | uint16(echo[5])
	seq := uint16(echo[6])<<8 | uint16(echo[7])

	return id == probe.ID && seq == probe.Seq, nil
}
