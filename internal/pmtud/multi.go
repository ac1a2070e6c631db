package pmtud

import (
	"context"
	"net"

	"github.com/hervehildenbrand/pmtud/pkg/pathmtu"
	"golang.org/x/sync/errgroup"
)

// DiscoverAll runs discovery to every target concurrently. Each target gets
// its own engine and its own transport from open, so raw sockets are never
// shared between runs. Per-target failures are recorded in the results;
// only fatal errors (transport init, invalid config) are returned, and they
// cancel the remaining runs.
func DiscoverAll(ctx context.Context, targets []net.IP, cfg *Config, open TransportFactory, callback ProbeCallback) ([]*pathmtu.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	results := make([]*pathmtu.Result, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MaxParallel > 0 {
		g.SetLimit(cfg.MaxParallel)
	}

	for i, target := range targets {
		g.Go(func() error {
			transport, err := open()
			if err != nil {
				results[i] = pathmtu.NewResult(target.String(), target)
				results[i].SetFailure(err)
				return err
			}
			defer transport.Close()

			result, err := NewEngine(cfg, transport).Discover(gctx, target, callback)
			if result == nil {
				result = pathmtu.NewResult(target.String(), target)
				result.SetFailure(err)
			}
			results[i] = result

			if err != nil && IsFatal(err) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}
