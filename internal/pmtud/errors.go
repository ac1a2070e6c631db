package pmtud

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is a usage error detected before any probe is sent.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrSendRejected is wrapped by transports when the local stack refuses a
	// datagram, typically because it exceeds the outgoing interface MTU.
	ErrSendRejected = errors.New("send rejected by local stack")

	// ErrNoResponse means nothing answered a probe before the timeout.
	ErrNoResponse = errors.New("no response before timeout")

	// ErrSizeExhausted means the probe size fell below the IPv4 minimum
	// without a successful probe.
	ErrSizeExhausted = errors.New("no usable path MTU found")
)

// TransportInitError is returned when the raw socket cannot be opened.
type TransportInitError struct {
	Err error
}

func (e *TransportInitError) Error() string {
	return fmt.Sprintf("failed to open raw socket: %v (try running with sudo)", e.Err)
}

func (e *TransportInitError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort discovery rather than be recorded
// as a per-target failure.
func IsFatal(err error) bool {
	var initErr *TransportInitError
	return errors.As(err, &initErr) || errors.Is(err, ErrInvalidConfig)
}
