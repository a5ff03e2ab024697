// Package engine implements the reactive engine: it loads rules and
// schemas from a search path, evaluates every rule on each tick,
// executes matched handlers, and terminates once every rule is
// complete.
package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/bcsaller/disco/internal/kb"
	"github.com/bcsaller/disco/internal/rule"
)

// Config is the subset of the supervisor's merged configuration the
// engine reads.
type Config struct {
	// Path is the ordered list of directories searched for *.rules and
	// *.schema files (disco.path, colon-separated in the raw config).
	Path []string
	// Interval is the pause between ticks once a pass leaves rules
	// pending (disco.interval, default 1s).
	Interval time.Duration
	// FailLimit is the per-rule failure count at which a handler is
	// considered to be failing repeatedly (disco.fail_limit, default 5).
	FailLimit int
	// HandlerTimeout bounds a single handler invocation (default 60s).
	HandlerTimeout time.Duration
	// OnTick, if set, is called once per RunOnce pass, letting the
	// caller track evaluation passes (e.g. as a metrics counter).
	OnTick func()
	// OnHandlerFailure, if set, is forwarded to every rule execution as
	// its OnFailure hook.
	OnHandlerFailure func()
}

// Engine is the reactive engine. It owns the
// KB and the Rule list exclusively; a Discoverer is only ever handed a
// reference to the same KB for writes.
type Engine struct {
	cfg   Config
	kb    *kb.KB
	rules []*rule.Rule
	log   hclog.Logger
}

// New constructs an Engine over an Engine-owned KB.
func New(cfg Config, base *kb.KB, log hclog.Logger) *Engine {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.FailLimit <= 0 {
		cfg.FailLimit = 5
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 60 * time.Second
	}
	return &Engine{cfg: cfg, kb: base, log: log.Named("engine")}
}

// KB returns the engine's knowledge base, so a Discoverer can be wired
// to write into the same instance.
func (e *Engine) KB() *kb.KB { return e.kb }

// FindRules recursively enumerates *.rules files under every search
// path, in path order, and adds every rule they declare to the engine
// in file-then-declaration order.
func (e *Engine) FindRules() error {
	var errs error
	for _, dir := range e.cfg.Path {
		files, err := globRglob(dir, "*.rules")
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		for _, fn := range files {
			data, err := os.ReadFile(fn)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("engine: read %s: %w", fn, err))
				continue
			}
			rules, err := parseRuleFile(data)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("engine: %s: %w", fn, err))
				continue
			}
			e.rules = append(e.rules, rules...)
		}
	}
	return errs
}

// FindSchemas recursively enumerates *.schema files under every search
// path, in path order, and loads each into the KB.
func (e *Engine) FindSchemas() error {
	var errs error
	for _, dir := range e.cfg.Path {
		files, err := globRglob(dir, "*.schema")
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		for _, fn := range files {
			f, err := os.Open(fn)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("engine: open %s: %w", fn, err))
				continue
			}
			err = e.kb.LoadSchema(f)
			f.Close()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("engine: %s: %w", fn, err))
			}
		}
	}
	return errs
}

// globRglob recursively finds files under root matching pattern,
// in filepath.WalkDir order (entries of each directory in lexical
// order, a subdirectory's contents visited where its name sorts).
func globRglob(root, pattern string) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// RunOnce evaluates every incomplete rule once, in declaration order,
// and executes those that match. It returns whether the whole rule set
// is now complete, and a *rule.RepeatedlyFailingError if a handler
// crossed its failure limit.
func (e *Engine) RunOnce(ctx context.Context) (bool, error) {
	if e.cfg.OnTick != nil {
		e.cfg.OnTick()
	}
	complete := true
	for _, r := range e.rules {
		if r.Complete() {
			continue
		}
		if !r.Match(e.kb) {
			e.log.Debug("rule pending", "rule", r.String())
			complete = false
			continue
		}
		e.log.Info("executing rule", "rule", r.String())
		ok, err := r.Execute(ctx, e.kb, rule.ExecOpts{
			Path:      e.pathEnv(),
			FailLimit: e.cfg.FailLimit,
			Timeout:   e.cfg.HandlerTimeout,
			Logger:    e.log,
			OnFailure: e.cfg.OnHandlerFailure,
		})
		if err != nil {
			return false, err
		}
		if !ok {
			complete = false
		}
	}
	return complete, nil
}

func (e *Engine) pathEnv() string {
	return strings.Join(e.cfg.Path, string(os.PathListSeparator))
}

// Run ticks RunOnce until the rule set completes, a fatal handler
// failure is raised, or ctx is cancelled. It returns the final
// completion status.
func (e *Engine) Run(ctx context.Context) bool {
	for {
		complete, err := e.RunOnce(ctx)
		if err != nil {
			e.log.Error("handler failing repeatedly, shutting down", "error", err)
			return false
		}
		if complete {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(e.cfg.Interval):
		}
	}
}
