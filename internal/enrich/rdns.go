package enrich

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// addrResolver is the subset of *net.Resolver used for PTR lookups.
type addrResolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// RDNSLookup performs reverse DNS lookups.
type RDNSLookup struct {
	resolver addrResolver
}

// NewRDNSLookup creates a new reverse DNS lookup instance.
func NewRDNSLookup() *RDNSLookup {
	return &RDNSLookup{
		resolver: net.DefaultResolver,
	}
}

// Lookup performs a reverse DNS lookup for the given IP.
func (l *RDNSLookup) Lookup(ctx context.Context, ip net.IP) (string, error) {
	if ip == nil {
		return "", errors.New("nil IP address")
	}

	names, err := l.resolver.LookupAddr(ctx, ip.String())
	if err != nil {
		return "", fmt.Errorf("reverse DNS lookup failed: %w", err)
	}

	if len(names) == 0 {
		return "", nil
	}

	return l.cleanHostname(names[0]), nil
}

// cleanHostname removes the trailing dot from DNS names.
func (l *RDNSLookup) cleanHostname(hostname string) string {
	return strings.TrimSuffix(hostname, ".")
}
