// Package rule implements the declarative dependency + handler rules
// the reactive engine matches and executes.
package rule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/bcsaller/disco/internal/kb"
)

// Op combines a list of booleans per the rule's matching policy: All
// requires every element true, Any requires at least one.
type Op func([]bool) bool

// All is satisfied when every element is true (including the empty list).
func All(bs []bool) bool {
	for _, b := range bs {
		if !b {
			return false
		}
	}
	return true
}

// Any is satisfied when at least one element is true.
func Any(bs []bool) bool {
	for _, b := range bs {
		if b {
			return true
		}
	}
	return false
}

// Rule is a declarative dependency/handler tuple: {deps, op, cmd, once,
// complete, fail count}.
type Rule struct {
	Deps   []string
	Op     Op
	OpName string // "all" or "any", kept alongside Op for logging/%s
	Cmd    string
	Once   bool

	complete bool
	failCt   int
}

// New builds a Rule. once sets Once; rules parsed from rule files are
// always built with once=true.
func New(deps []string, op Op, opName, cmd string, once bool) *Rule {
	return &Rule{Deps: deps, Op: op, OpName: opName, Cmd: cmd, Once: once}
}

func (r *Rule) String() string {
	return fmt.Sprintf("%s(%s) -> %s", r.OpName, strings.Join(r.Deps, " "), r.Cmd)
}

// Complete reports whether the rule has executed to success at least
// once with Once set; once true, it is sticky.
func (r *Rule) Complete() bool { return r.complete && r.Once }

// FailCount exposes the failure counter, which only ever climbs: a
// successful execution does not reset it.
func (r *Rule) FailCount() int { return r.failCt }

// Match reports whether every (or any, per Op) dep exists in kb and
// validates against the schema named by its first dotted segment.
// Absent deps are never considered valid.
func (r *Rule) Match(base *kb.KB) bool {
	exists := make([]bool, len(r.Deps))
	for i, d := range r.Deps {
		exists[i] = base.Get(d, kb.Missing) != kb.Missing
	}
	if !r.Op(exists) {
		return false
	}

	valid := make([]bool, len(r.Deps))
	for i, d := range r.Deps {
		valid[i] = base.IsValid(kb.Interface(d), d)
	}
	return r.Op(valid)
}

// ExecOpts configures a single Execute call.
type ExecOpts struct {
	// Path is the restricted PATH handlers are spawned with.
	Path string
	// FailLimit is the number of accumulated failures at which Execute
	// returns a *RepeatedlyFailingError. Zero disables the limit.
	FailLimit int
	// Timeout bounds the handler's wall-clock execution; zero disables
	// the timeout.
	Timeout time.Duration
	// Logger receives subprocess stdout/stderr at debug level.
	Logger hclog.Logger
	// OnFailure, if set, is called once per failed handler invocation,
	// letting the caller track failures (e.g. as a metrics counter)
	// without this package depending on a metrics library.
	OnFailure func()
}

// RepeatedlyFailingError is the fatal condition raised once a rule's
// failure count reaches its configured limit.
type RepeatedlyFailingError struct {
	Rule *Rule
}

func (e *RepeatedlyFailingError) Error() string {
	return fmt.Sprintf("handler %q failing repeatedly with valid data", e.Rule.Cmd)
}

// Execute builds the merged JSON payload for every dep that validated
// (later deps shadow earlier ones on a top-level-key collision,
// ChainMap-style) and runs the handler with that payload on stdin. It
// returns whether this attempt succeeded, and a *RepeatedlyFailingError
// once FailLimit is crossed.
func (r *Rule) Execute(ctx context.Context, base *kb.KB, opts ExecOpts) (bool, error) {
	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}

	payload := map[string]interface{}{}
	for _, d := range r.Deps {
		iface := kb.Interface(d)
		if !base.IsValid(iface, d) {
			continue
		}
		if v, ok := base.Get(iface, kb.Missing).(map[string]interface{}); ok {
			for k, val := range v {
				payload[k] = val
			}
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("rule: encode payload: %w", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	success := r.runHandler(runCtx, data, opts.Path, log)
	r.complete = success
	if !success {
		r.failCt++
		if opts.OnFailure != nil {
			opts.OnFailure()
		}
	}

	if opts.FailLimit > 0 && r.failCt >= opts.FailLimit {
		return r.complete, &RepeatedlyFailingError{Rule: r}
	}
	return r.complete, nil
}

func (r *Rule) runHandler(ctx context.Context, stdin []byte, path string, log hclog.Logger) bool {
	cmd := exec.CommandContext(ctx, r.Cmd)
	if path != "" {
		cmd.Env = []string{"PATH=" + path}
	}
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stdout.Len() > 0 {
		log.Debug("handler stdout", "cmd", r.Cmd, "output", stdout.String())
	}
	if stderr.Len() > 0 {
		log.Debug("handler stderr", "cmd", r.Cmd, "output", stderr.String())
	}
	if err != nil {
		log.Debug("handler exec failed", "cmd", r.Cmd, "error", err)
		return false
	}
	return true
}
