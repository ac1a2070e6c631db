package enrich

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ASNResult contains the result of an ASN lookup.
type ASNResult struct {
	ASN      uint32 // AS number
	Prefix   string // IP prefix (CIDR)
	Country  string // Country code
	Registry string // RIR (arin, ripe, apnic, etc.)
	Name     string // AS organization name
}

// txtResolver is the subset of *net.Resolver used for Team Cymru lookups.
type txtResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// ASNLookup finds the origin AS of an address via Team Cymru DNS.
type ASNLookup struct {
	resolver txtResolver
}

// NewASNLookup creates a new ASN lookup instance.
func NewASNLookup() *ASNLookup {
	return &ASNLookup{
		resolver: net.DefaultResolver,
	}
}

// Lookup returns the origin AS of ip. Private and loopback addresses are
// never announced, so they fail without a query.
func (l *ASNLookup) Lookup(ctx context.Context, ip net.IP) (*ASNResult, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, errors.New("not an IPv4 address")
	}
	if ip4.IsPrivate() || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
		return nil, fmt.Errorf("%s is not globally routed", ip4)
	}

	records, err := l.resolver.LookupTXT(ctx, l.formatQuery(ip4))
	if err != nil {
		return nil, fmt.Errorf("DNS lookup failed: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("no TXT records found")
	}

	result, err := l.parseResponse(records[0])
	if err != nil {
		return nil, err
	}

	// The name is optional
	if name, err := l.lookupASNName(ctx, result.ASN); err == nil {
		result.Name = name
	}

	return result, nil
}

// formatQuery creates the origin query: reversed octets + ".origin.asn.cymru.com"
func (l *ASNLookup) formatQuery(ip4 net.IP) string {
	return fmt.Sprintf("%d.%d.%d.%d.origin.asn.cymru.com",
		ip4[3], ip4[2], ip4[1], ip4[0])
}

// parseResponse parses "AS_NUMBER | IP_PREFIX | COUNTRY | RIR | DATE".
// Multi-origin prefixes list several AS numbers; the first one wins.
func (l *ASNLookup) parseResponse(response string) (*ASNResult, error) {
	parts := strings.Split(strings.TrimSpace(response), "|")
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid response format: %q", response)
	}

	asnParts := strings.Fields(parts[0])
	if len(asnParts) == 0 {
		return nil, errors.New("no ASN in response")
	}

	asn, err := strconv.ParseUint(asnParts[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid ASN: %w", err)
	}
	if asn == 0 {
		return nil, errors.New("no ASN in response")
	}

	result := &ASNResult{
		ASN:     uint32(asn),
		Prefix:  strings.TrimSpace(parts[1]),
		Country: strings.TrimSpace(parts[2]),
	}
	if len(parts) > 3 {
		result.Registry = strings.TrimSpace(parts[3])
	}

	return result, nil
}

func (l *ASNLookup) lookupASNName(ctx context.Context, asn uint32) (string, error) {
	records, err := l.resolver.LookupTXT(ctx, fmt.Sprintf("AS%d.asn.cymru.com", asn))
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", errors.New("no TXT records")
	}
	return l.parseASNName(records[0])
}

// parseASNName parses "AS_NUMBER | COUNTRY | RIR | DATE | ORG_NAME".
func (l *ASNLookup) parseASNName(response string) (string, error) {
	parts := strings.Split(strings.TrimSpace(response), "|")
	if len(parts) < 5 {
		return "", fmt.Errorf("invalid response format: %q", response)
	}
	return strings.TrimSpace(parts[4]), nil
}
