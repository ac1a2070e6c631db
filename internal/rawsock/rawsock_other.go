//go:build !linux

package rawsock

import (
	"errors"
	"net"

	"github.com/hervehildenbrand/pmtud/internal/pmtud"
)

var errUnsupported = errors.New("raw IPv4 sockets with header inclusion are only supported on Linux")

// Open always fails outside Linux.
func Open(source net.IP) (pmtud.Transport, error) {
	return nil, &pmtud.TransportInitError{Err: errUnsupported}
}

// Factory returns a pmtud.TransportFactory that always fails outside Linux.
func Factory(source net.IP) pmtud.TransportFactory {
	return func() (pmtud.Transport, error) {
		return Open(source)
	}
}
