// Package rawsock is the privileged network transport for path MTU discovery.
// It sends caller-built IPv4 datagrams verbatim and returns every ICMP
// datagram that arrives.
package rawsock

import "time"

// pollInterval bounds each blocking read so cancellation is noticed promptly.
const pollInterval = 100 * time.Millisecond

// readBufferSize fits any IPv4 datagram.
const readBufferSize = 65535
