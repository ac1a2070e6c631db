// Package enrich resolves hostnames and origin ASes for the hosts that
// confirm a path MTU.
package enrich

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/hervehildenbrand/pmtud/pkg/pathmtu"
)

// lookupTimeout bounds a single DNS lookup.
const lookupTimeout = 2 * time.Second

// Enricher adds reverse DNS names and origin ASes to discovery results.
type Enricher struct {
	rdns  *RDNSLookup
	asn   *ASNLookup
	cache *Cache

	mu       sync.Mutex
	asnCache map[string]*ASNResult // nil entries record definitive failures
}

// NewEnricher creates a new enricher with default settings.
func NewEnricher() *Enricher {
	return &Enricher{
		rdns:     NewRDNSLookup(),
		asn:      NewASNLookup(),
		cache:    NewCache(10000),
		asnCache: make(map[string]*ASNResult),
	}
}

// Hostname returns the cached or freshly resolved name of ip, or "" when it
// has none.
func (e *Enricher) Hostname(ctx context.Context, ip net.IP) string {
	if ip == nil {
		return ""
	}

	key := ip.String()
	if name, ok := e.cache.Get(key); ok {
		return name
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	name, err := e.rdns.Lookup(ctx, ip)
	if err != nil {
		if transient(ctx, err) {
			return ""
		}
		name = ""
	}
	e.cache.Set(key, name)
	return name
}

// ASN returns the origin AS of ip, or nil when it cannot be determined.
func (e *Enricher) ASN(ctx context.Context, ip net.IP) *ASNResult {
	if ip == nil || e.asn == nil {
		return nil
	}

	key := ip.String()
	e.mu.Lock()
	res, ok := e.asnCache[key]
	e.mu.Unlock()
	if ok {
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	res, err := e.asn.Lookup(ctx, ip)
	if err != nil {
		if transient(ctx, err) {
			return nil
		}
		res = nil
	}

	e.mu.Lock()
	e.asnCache[key] = res
	e.mu.Unlock()
	return res
}

// transient reports whether a failed lookup is worth retrying later.
// Timeouts and cancellations are not cached.
func transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// EnrichResult fills in the reporter hostname and AS of a result.
func (e *Enricher) EnrichResult(ctx context.Context, r *pathmtu.Result) {
	if r == nil || !r.Discovered || r.Reporter == nil {
		return
	}
	r.ReporterHostname = e.Hostname(ctx, r.Reporter)
	if as := e.ASN(ctx, r.Reporter); as != nil {
		r.ReporterASN = as.ASN
		r.ReporterASName = as.Name
	}
}

// EnrichResults enriches every result.
func (e *Enricher) EnrichResults(ctx context.Context, results []*pathmtu.Result) {
	for _, r := range results {
		e.EnrichResult(ctx, r)
	}
}

// Stats returns the hostname cache statistics.
func (e *Enricher) Stats() CacheStats {
	return e.cache.Stats()
}
