package pmtud

import (
	"errors"
	"fmt"
	"net"
)

// ResolveTarget resolves a hostname or IP string to an IPv4 address.
// Path MTU discovery here is IPv4 only, so IPv6-only names are rejected.
func ResolveTarget(target string) (net.IP, error) {
	// First, try to parse as an IP address
	if ip := net.ParseIP(target); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
		return nil, fmt.Errorf("%s is not an IPv4 address", target)
	}

	// Otherwise, resolve as hostname
	ips, err := net.LookupIP(target)
	if err != nil {
		return nil, err
	}

	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}

	return nil, errors.New("no IPv4 addresses found for hostname")
}

// ParseSource parses an optional source address override.
func ParseSource(s string) (net.IP, error) {
	if s == "" {
		return nil, nil
	}
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("invalid IPv4 source address %q", s)
	}
	return ip.To4(), nil
}
