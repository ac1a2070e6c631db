package packet

// Checksum computes the Internet checksum (RFC 1071) over b.
// The result is ready to be stored big-endian in a header whose checksum
// field was zero while summing.
func Checksum(b []byte) uint16 {
	return ^uint16(foldSum(b))
}

// VerifyChecksum reports whether b, with its checksum field in place,
// sums to zero in one's-complement arithmetic.
func VerifyChecksum(b []byte) bool {
	return Checksum(b) == 0
}

func foldSum(b []byte) uint32 {
	var sum uint32

	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}

	// Odd trailing byte is padded with zero
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}

	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return sum
}
