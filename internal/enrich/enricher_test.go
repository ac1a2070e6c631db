package enrich

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/hervehildenbrand/pmtud/pkg/pathmtu"
)

func newTestEnricher(r *fakeResolver) *Enricher {
	return &Enricher{
		rdns:     &RDNSLookup{resolver: r},
		asn:      &ASNLookup{resolver: r},
		cache:    NewCache(100),
		asnCache: make(map[string]*ASNResult),
	}
}

func TestEnricher_EnrichResult_SetsReporterHostname(t *testing.T) {
	r := &fakeResolver{names: map[string][]string{"192.0.2.1": {"edge1.example.net."}}}
	e := newTestEnricher(r)

	res := pathmtu.NewResult("example.net", net.ParseIP("203.0.113.7"))
	res.SetMTU(1400, net.ParseIP("192.0.2.1"), true)

	e.EnrichResult(context.Background(), res)

	if res.ReporterHostname != "edge1.example.net" {
		t.Errorf("ReporterHostname = %q, want edge1.example.net", res.ReporterHostname)
	}
}

func TestEnricher_EnrichResult_SkipsFailures(t *testing.T) {
	r := &fakeResolver{}
	e := newTestEnricher(r)

	res := pathmtu.NewResult("example.net", net.ParseIP("203.0.113.7"))
	res.SetFailure(errors.New("no response before timeout"))

	e.EnrichResult(context.Background(), res)

	if r.calls != 0 {
		t.Errorf("resolver called %d times for a failed run, want 0", r.calls)
	}
}

func TestEnricher_Hostname_UsesCache(t *testing.T) {
	r := &fakeResolver{names: map[string][]string{"192.0.2.1": {"edge1.example.net."}}}
	e := newTestEnricher(r)
	ip := net.ParseIP("192.0.2.1")

	e.Hostname(context.Background(), ip)
	e.Hostname(context.Background(), ip)

	if r.calls != 1 {
		t.Errorf("resolver called %d times, want 1", r.calls)
	}
	if hits := e.Stats().Hits; hits != 1 {
		t.Errorf("cache hits = %d, want 1", hits)
	}
}

func TestEnricher_Hostname_CachesFailures(t *testing.T) {
	r := &fakeResolver{err: errors.New("no such host")}
	e := newTestEnricher(r)
	ip := net.ParseIP("192.0.2.9")

	if name := e.Hostname(context.Background(), ip); name != "" {
		t.Errorf("Hostname() = %q, want empty", name)
	}
	e.Hostname(context.Background(), ip)

	if r.calls != 1 {
		t.Errorf("resolver called %d times, want 1", r.calls)
	}
}

func TestEnricher_EnrichResults(t *testing.T) {
	r := &fakeResolver{names: map[string][]string{
		"192.0.2.1":   {"edge1.example.net."},
		"203.0.113.8": {"host8.example.net."},
	}}
	e := newTestEnricher(r)

	a := pathmtu.NewResult("a", net.ParseIP("203.0.113.7"))
	a.SetMTU(1400, net.ParseIP("192.0.2.1"), true)
	b := pathmtu.NewResult("b", net.ParseIP("203.0.113.8"))
	b.SetMTU(1500, net.ParseIP("203.0.113.8"), false)

	e.EnrichResults(context.Background(), []*pathmtu.Result{a, b, nil})

	if a.ReporterHostname != "edge1.example.net" || b.ReporterHostname != "host8.example.net" {
		t.Errorf("hostnames = %q, %q", a.ReporterHostname, b.ReporterHostname)
	}
}

func TestEnricher_EnrichResult_SetsReporterASN(t *testing.T) {
	r := &fakeResolver{txt: map[string][]string{
		"1.113.0.203.origin.asn.cymru.com": {"64500 | 203.0.113.0/24 | NL | ripencc | 2010-01-01"},
		"AS64500.asn.cymru.com":            {"64500 | NL | ripencc | 2010-01-01 | EXAMPLE-NET Example Networks, NL"},
	}}
	e := newTestEnricher(r)

	res := pathmtu.NewResult("example.net", net.ParseIP("198.51.100.7"))
	res.SetMTU(1400, net.ParseIP("203.0.113.1"), true)

	e.EnrichResult(context.Background(), res)

	if res.ReporterASN != 64500 {
		t.Errorf("ReporterASN = %d, want 64500", res.ReporterASN)
	}
	if res.ReporterASName != "EXAMPLE-NET Example Networks, NL" {
		t.Errorf("ReporterASName = %q", res.ReporterASName)
	}
}

func TestEnricher_ASN_CachesFailures(t *testing.T) {
	r := &fakeResolver{err: errors.New("no such host")}
	e := newTestEnricher(r)
	ip := net.ParseIP("203.0.113.1")

	if as := e.ASN(context.Background(), ip); as != nil {
		t.Errorf("ASN() = %+v, want nil", as)
	}
	e.ASN(context.Background(), ip)

	if r.txtCalls != 1 {
		t.Errorf("TXT lookups = %d, want 1", r.txtCalls)
	}
}

func TestEnricher_DoesNotCacheTimeouts(t *testing.T) {
	r := &fakeResolver{err: &net.DNSError{Err: "i/o timeout", Name: "203.0.113.1", IsTimeout: true}}
	e := newTestEnricher(r)
	ip := net.ParseIP("203.0.113.1")

	e.ASN(context.Background(), ip)
	e.ASN(context.Background(), ip)
	e.Hostname(context.Background(), ip)
	e.Hostname(context.Background(), ip)

	if r.txtCalls != 2 {
		t.Errorf("TXT lookups = %d, want 2", r.txtCalls)
	}
	if r.calls != 2 {
		t.Errorf("PTR lookups = %d, want 2", r.calls)
	}

	// Recovers once the resolver answers again
	r.err = nil
	r.txt = map[string][]string{
		"1.113.0.203.origin.asn.cymru.com": {"64500 | 203.0.113.0/24 | NL | ripencc | 2010-01-01"},
	}
	if as := e.ASN(context.Background(), ip); as == nil || as.ASN != 64500 {
		t.Errorf("ASN() = %+v, want AS64500", as)
	}
}

func TestEnricher_DoesNotCacheCancelledLookups(t *testing.T) {
	r := &fakeResolver{err: context.Canceled}
	e := newTestEnricher(r)
	ip := net.ParseIP("203.0.113.1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.ASN(ctx, ip)
	e.ASN(context.Background(), ip)

	if r.txtCalls != 2 {
		t.Errorf("TXT lookups = %d, want 2", r.txtCalls)
	}
}
