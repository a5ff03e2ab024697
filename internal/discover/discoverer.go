// Package discover implements the Discoverer: it owns the configured
// source set, polls them on an interval, hashes each source's state to
// elide no-op injections, and writes changed state into the knowledge
// base.
package discover

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/bcsaller/disco/internal/kb"
	"github.com/bcsaller/disco/internal/source"
)

// Discoverer owns the configured Source set. Sources are processed in
// registration order every tick, and the same Discoverer instance is
// not meant to be reused across Watch calls.
type Discoverer struct {
	sources        []source.Source
	interval       time.Duration
	squashInterval int // ticks between KB squashes; 0 disables
	log            hclog.Logger

	hashes map[string]string
}

// New builds a Discoverer over sources, polling at interval and
// optionally squashing the KB's layer stack every squashInterval ticks
// (0 disables squashing, leaving layer growth unbounded).
func New(sources []source.Source, interval time.Duration, squashInterval int, log hclog.Logger) *Discoverer {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Discoverer{
		sources:        sources,
		interval:       interval,
		squashInterval: squashInterval,
		log:            log.Named("discover"),
		hashes:         map[string]string{},
	}
}

// Watch runs the discovery loop until ctx is cancelled: for each source
// in registration order, connect, read state, and inject it into kb if
// its hash changed since the last tick. Sources are not disconnected on
// ordinary loop exit -- call Shutdown for that, which keeps watching
// and shutting down as two distinct operations.
func (d *Discoverer) Watch(ctx context.Context, base *kb.KB) {
	tick := 0
	for {
		d.populate(ctx, base)
		tick++
		if d.squashInterval > 0 && tick%d.squashInterval == 0 {
			base.Squash()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.interval):
		}
	}
}

func (d *Discoverer) populate(ctx context.Context, base *kb.KB) {
	for _, s := range d.sources {
		if err := s.Connect(ctx); err != nil {
			d.log.Warn("source connect failed", "source", s.Name(), "error", err)
			continue
		}
		state := s.State(ctx)
		cur := stableHash(state)
		if d.hashes[s.Name()] == cur {
			continue
		}
		d.log.Debug("learned new state", "source", s.Name(), "keys", keys(state))
		base.Inject(state)
		d.hashes[s.Name()] = cur
	}
}

// Shutdown disconnects every source. It does not stop an in-flight
// Watch loop; cancel the context passed to Watch for that.
func (d *Discoverer) Shutdown(ctx context.Context) {
	for _, s := range d.sources {
		if err := s.Disconnect(ctx); err != nil {
			d.log.Warn("source disconnect failed", "source", s.Name(), "error", err)
		}
	}
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
