package packet

import (
	"errors"
	"net"
	"testing"
)

var testTarget = net.ParseIP("203.0.113.7")

func testProbe() Probe {
	return Probe{ID: 0x1234, Seq: 5, PayloadSize: 1472, Destination: testTarget}
}

// sentProbe encodes the datagram a router would quote back for p.
func sentProbe(t *testing.T, p Probe) []byte {
	t.Helper()
	icmpFrame, err := EncodeEchoRequest(p.PayloadSize, p.ID, p.Seq)
	if err != nil {
		t.Fatalf("EncodeEchoRequest() error: %v", err)
	}
	frame, err := EncodeIPv4(icmpFrame, net.ParseIP("192.0.2.10"), p.Destination, 64, 1)
	if err != nil {
		t.Fatalf("EncodeIPv4() error: %v", err)
	}
	return frame
}

func TestDecodeResponse_EchoReply(t *testing.T) {
	p := testProbe()
	reply, err := EncodeEchoReply(p.PayloadSize, p.ID, p.Seq)
	if err != nil {
		t.Fatalf("EncodeEchoReply() error: %v", err)
	}

	out, err := DecodeResponse(reply, p)
	if err != nil {
		t.Fatalf("DecodeResponse() error: %v", err)
	}
	if out.Kind != OutcomeEchoReply {
		t.Errorf("Kind = %v, want %v", out.Kind, OutcomeEchoReply)
	}
	if out.ProbedSize != 1472 {
		t.Errorf("ProbedSize = %d, want 1472", out.ProbedSize)
	}
}

func TestDecodeResponse_EchoReplyMismatch(t *testing.T) {
	p := testProbe()

	tests := []struct {
		name string
		id   uint16
		seq  uint16
	}{
		{name: "other identifier", id: 0x9999, seq: p.Seq},
		{name: "late sequence", id: p.ID, seq: p.Seq - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, _ := EncodeEchoReply(32, tt.id, tt.seq)
			out, err := DecodeResponse(reply, p)
			if err != nil {
				t.Fatalf("DecodeResponse() error: %v", err)
			}
			if out.Kind != OutcomeUnrelated {
				t.Errorf("Kind = %v, want %v", out.Kind, OutcomeUnrelated)
			}
		})
	}
}

func TestDecodeResponse_FragmentationNeeded(t *testing.T) {
	p := testProbe()

	for _, mtu := range []uint16{68, 576, 1400, 1492, 9000} {
		msg := EncodeFragmentationNeeded(mtu, sentProbe(t, p))

		out, err := DecodeResponse(msg, p)
		if err != nil {
			t.Fatalf("DecodeResponse() error: %v", err)
		}
		if out.Kind != OutcomeFragmentationNeeded {
			t.Errorf("mtu %d: Kind = %v, want %v", mtu, out.Kind, OutcomeFragmentationNeeded)
		}
		if out.NextHopMTU != int(mtu) {
			t.Errorf("NextHopMTU = %d, want %d", out.NextHopMTU, mtu)
		}
	}
}

func TestDecodeResponse_FragmentationNeededZeroHint(t *testing.T) {
	p := testProbe()
	msg := EncodeFragmentationNeeded(0, sentProbe(t, p))

	out, err := DecodeResponse(msg, p)
	if err != nil {
		t.Fatalf("DecodeResponse() error: %v", err)
	}
	if out.Kind != OutcomeFragmentationNeeded {
		t.Errorf("Kind = %v, want %v", out.Kind, OutcomeFragmentationNeeded)
	}
	if out.NextHopMTU != 0 {
		t.Errorf("NextHopMTU = %d, want 0", out.NextHopMTU)
	}
}

func TestDecodeResponse_FragmentationNeededForOtherProbe(t *testing.T) {
	p := testProbe()

	other := p
	other.Seq++
	otherDst := p
	otherDst.Destination = net.ParseIP("198.51.100.9")

	for _, quoted := range []Probe{other, otherDst} {
		msg := EncodeFragmentationNeeded(1400, sentProbe(t, quoted))
		out, err := DecodeResponse(msg, p)
		if err != nil {
			t.Fatalf("DecodeResponse() error: %v", err)
		}
		if out.Kind != OutcomeUnrelated {
			t.Errorf("Kind = %v, want %v", out.Kind, OutcomeUnrelated)
		}
	}
}

// quotingError rewrites a frag-needed message into another ICMP error that
// quotes the same datagram after a 4-byte word.
func quotingError(t *testing.T, typ, code byte, quoted Probe) []byte {
	t.Helper()
	msg := EncodeFragmentationNeeded(0, sentProbe(t, quoted))
	msg[0], msg[1] = typ, code
	if typ == 5 {
		copy(msg[4:8], net.ParseIP("192.0.2.1").To4())
	}
	resum(msg)
	return msg
}

func TestDecodeResponse_QuotedErrors(t *testing.T) {
	p := testProbe()

	otherSeq := p
	otherSeq.Seq++
	otherID := p
	otherID.ID = 0x9999
	otherDst := p
	otherDst.Destination = net.ParseIP("198.51.100.77")

	tests := []struct {
		name   string
		typ    byte
		code   byte
		quoted Probe
		want   OutcomeKind
	}{
		{"source quench for probe", 4, 0, p, OutcomeOtherICMP},
		{"source quench for other host", 4, 0, otherDst, OutcomeUnrelated},
		{"redirect for probe", 5, 1, p, OutcomeOtherICMP},
		{"redirect for other host", 5, 1, otherDst, OutcomeUnrelated},
		{"redirect for other id", 5, 1, otherID, OutcomeUnrelated},
		{"time exceeded for probe", 11, 0, p, OutcomeOtherICMP},
		{"time exceeded for other seq", 11, 0, otherSeq, OutcomeUnrelated},
		{"time exceeded for other host", 11, 0, otherDst, OutcomeUnrelated},
		{"parameter problem for probe", 12, 0, p, OutcomeOtherICMP},
		{"parameter problem for other seq", 12, 0, otherSeq, OutcomeUnrelated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := DecodeResponse(quotingError(t, tt.typ, tt.code, tt.quoted), p)
			if err != nil {
				t.Fatalf("DecodeResponse() error: %v", err)
			}
			if out.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", out.Kind, tt.want)
			}
			if out.Type != int(tt.typ) || out.Code != int(tt.code) {
				t.Errorf("Type/Code = %d/%d, want %d/%d", out.Type, out.Code, tt.typ, tt.code)
			}
		})
	}
}

func TestDecodeResponse_RedirectWithoutQuote(t *testing.T) {
	msg := []byte{5, 1, 0, 0, 192, 0, 2, 1}
	resum(msg)

	_, err := DecodeResponse(msg, testProbe())

	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("DecodeResponse() err = %v, want ErrMalformedPayload", err)
	}
}

func TestDecodeResponse_OtherICMP(t *testing.T) {
	p := testProbe()

	// Host unreachable (3/1) quoting our probe
	msg := EncodeFragmentationNeeded(0, sentProbe(t, p))
	msg[1] = 1
	resum(msg)

	out, err := DecodeResponse(msg, p)
	if err != nil {
		t.Fatalf("DecodeResponse() error: %v", err)
	}
	if out.Kind != OutcomeOtherICMP {
		t.Errorf("Kind = %v, want %v", out.Kind, OutcomeOtherICMP)
	}
	if out.Type != 3 || out.Code != 1 {
		t.Errorf("Type/Code = %d/%d, want 3/1", out.Type, out.Code)
	}

	// Timestamp reply carries no quote
	ts := make([]byte, 20)
	ts[0] = 14
	resum(ts)
	out, err = DecodeResponse(ts, p)
	if err != nil {
		t.Fatalf("DecodeResponse() error: %v", err)
	}
	if out.Kind != OutcomeOtherICMP {
		t.Errorf("Kind = %v, want %v", out.Kind, OutcomeOtherICMP)
	}
}

func TestDecodeResponse_OwnEchoRequestIsUnrelated(t *testing.T) {
	p := testProbe()
	req, _ := EncodeEchoRequest(p.PayloadSize, p.ID, p.Seq)

	out, err := DecodeResponse(req, p)
	if err != nil {
		t.Fatalf("DecodeResponse() error: %v", err)
	}
	if out.Kind != OutcomeUnrelated {
		t.Errorf("Kind = %v, want %v", out.Kind, OutcomeUnrelated)
	}
}

func TestDecodeResponse_Malformed(t *testing.T) {
	p := testProbe()
	good := EncodeFragmentationNeeded(1400, sentProbe(t, p))

	badSum := append([]byte(nil), good...)
	badSum[2] ^= 0xff

	truncated := EncodeFragmentationNeeded(1400, sentProbe(t, p)[:24])

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "short header", data: []byte{0, 0, 0xff, 0xff}},
		{name: "bad checksum", data: badSum},
		{name: "truncated quote", data: truncated},
		{name: "no quote", data: EncodeFragmentationNeeded(1400, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResponse(tt.data, p)
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("DecodeResponse() err = %v, want ErrMalformedPayload", err)
			}
		})
	}
}

func TestParseNextHopMTU(t *testing.T) {
	// Type (1) | Code (1) | Checksum (2) | unused (2) | Next-Hop MTU (2) | Original IP header + 8 bytes
	tests := []struct {
		name     string
		data     []byte
		expected int
		ok       bool
	}{
		{
			name:     "valid MTU 1400",
			data:     []byte{3, 4, 0, 0, 0, 0, 0x05, 0x78},
			expected: 1400,
			ok:       true,
		},
		{
			name:     "valid MTU 1500",
			data:     []byte{3, 4, 0, 0, 0, 0, 0x05, 0xDC},
			expected: 1500,
			ok:       true,
		},
		{
			name:     "zero MTU from old router",
			data:     []byte{3, 4, 0, 0, 0, 0, 0, 0},
			expected: 0,
			ok:       false,
		},
		{
			name:     "too short",
			data:     []byte{3, 4, 0, 0},
			expected: 0,
			ok:       false,
		},
		{
			name:     "wrong type",
			data:     []byte{11, 0, 0, 0, 0, 0, 0x05, 0x78},
			expected: 0,
			ok:       false,
		},
		{
			name:     "wrong code",
			data:     []byte{3, 0, 0, 0, 0, 0, 0x05, 0x78},
			expected: 0,
			ok:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mtu, ok := ParseNextHopMTU(tt.data)
			if ok != tt.ok {
				t.Errorf("ParseNextHopMTU() ok = %v, want %v", ok, tt.ok)
			}
			if mtu != tt.expected {
				t.Errorf("ParseNextHopMTU() mtu = %d, want %d", mtu, tt.expected)
			}
		})
	}
}

func TestOutcomeKind_String(t *testing.T) {
	if got := OutcomeFragmentationNeeded.String(); got != "frag-needed" {
		t.Errorf("String() = %q, want %q", got, "frag-needed")
	}
	if got := OutcomeKind(99).String(); got != "outcome(99)" {
		t.Errorf("String() = %q, want %q", got, "outcome(99)")
	}
}

// resum recomputes the ICMP checksum after a test mutates a message.
func resum(b []byte) {
	b[2], b[3] = 0, 0
	sum := Checksum(b)
	b[2] = byte(sum >> 8)
	b[3] = byte(sum)
}
