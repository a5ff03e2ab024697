// Package supervisor ties the Discoverer and Reactive Engine together:
// it builds both from a merged configuration, runs them to completion,
// and reports whether the container is ready for process hand-off.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/bcsaller/disco/internal/config"
	"github.com/bcsaller/disco/internal/discover"
	"github.com/bcsaller/disco/internal/engine"
	"github.com/bcsaller/disco/internal/kb"
	"github.com/bcsaller/disco/internal/source"
)

// Supervisor owns one run of the engine + discoverer pair.
type Supervisor struct {
	log    hclog.Logger
	cfg    config.Engine
	eng    *engine.Engine
	disc   *discover.Discoverer
	health *healthServer
}

// Build constructs a Supervisor from the merged raw configuration:
// the engine (with its KB), every configured Source, and the
// Discoverer that drives them.
func Build(raw config.Raw, log hclog.Logger) (*Supervisor, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}

	econf, err := raw.DecodeEngine()
	if err != nil {
		return nil, err
	}

	base := kb.New(log)
	eng := engine.New(engine.Config{
		Path:             econf.SearchPath(),
		Interval:         econf.IntervalDuration(),
		FailLimit:        econf.FailLimit,
		HandlerTimeout:   econf.HandlerTimeoutDuration(),
		OnTick:           func() { ticksTotal.Inc() },
		OnHandlerFailure: func() { handlerFailuresTotal.Inc() },
	}, base, log)

	if err := eng.FindSchemas(); err != nil {
		return nil, fmt.Errorf("supervisor: loading schemas: %w", err)
	}
	if err := eng.FindRules(); err != nil {
		return nil, fmt.Errorf("supervisor: loading rules: %w", err)
	}

	var sources []source.Source
	for kind, sc := range raw.SourceConfigs() {
		s, err := source.New(kind, source.Config(sc.ToStringMap()), log)
		if err != nil {
			return nil, fmt.Errorf("supervisor: configuring source %q: %w", kind, err)
		}
		sources = append(sources, s)
	}

	disc := discover.New(sources, econf.IntervalDuration(), econf.SquashInterval, log)

	var health *healthServer
	if econf.HealthAddr != "" {
		health = newHealthServer(econf.HealthAddr, log)
	}

	return &Supervisor{log: log, cfg: econf, eng: eng, disc: disc, health: health}, nil
}

// Run starts the Discoverer and the Engine concurrently, waits for the
// Engine to reach a terminal state, then cancels the Discoverer and
// reports the Engine's final completion status.
func (s *Supervisor) Run(ctx context.Context) bool {
	if s.health != nil {
		s.health.start()
		defer s.health.stop(context.Background())
	}

	discCtx, cancelDisc := context.WithCancel(ctx)
	defer cancelDisc()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.disc.Watch(discCtx, s.eng.KB())
	}()

	complete := s.eng.Run(ctx)
	if s.health != nil {
		s.health.setReady(complete)
	}

	cancelDisc()
	s.disc.Shutdown(context.Background())
	wg.Wait()

	return complete
}
