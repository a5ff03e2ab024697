// Package source implements disco's pluggable discovery-source family:
// a common connect/state/disconnect contract with FlatFile, Consul,
// Etcd and Beacon (a Consul alias) concrete variants.
package source

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// Source is the contract every discovery endpoint implements. All four
// operations may block on I/O; the Discoverer calls them from a single
// goroutine, and the concrete sources guard their own state with a
// mutex.
type Source interface {
	// Name identifies the source for change-detection bookkeeping; it
	// defaults to the source kind (e.g. "consul") when not configured.
	Name() string
	// Connect establishes (or re-establishes) the underlying client or
	// file handle. Implementations should make repeat calls cheap.
	Connect(ctx context.Context) error
	// State returns the source's current view of the world. Transport
	// failures are contained here: State returns an empty mapping and
	// never an error that would tear down the discovery loop.
	State(ctx context.Context) map[string]interface{}
	// Disconnect releases any connection held by Connect.
	Disconnect(ctx context.Context) error
}

// Config is the configuration mapping for a single source, as decoded
// from the `flat`/`consul`/`etcd`/`beacon` keys of disco's merged
// configuration.
type Config map[string]interface{}

func (c Config) string(key, def string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func (c Config) Name(kind string) string {
	return c.string("name", kind)
}

// New constructs the concrete Source variant for kind ("flat", "consul",
// "etcd", "beacon"). An unknown kind is a
// ConfigError, fatal at construction time.
func New(kind string, cfg Config, log hclog.Logger) (Source, error) {
	switch kind {
	case "flat":
		return newFlatFile(cfg, log), nil
	case "consul":
		return newConsul(cfg, "consul", log)
	case "beacon":
		if _, ok := cfg["name"]; !ok {
			cfg = cloneWithName(cfg, "beacon")
		}
		return newConsul(cfg, "beacon", log)
	case "etcd":
		return newEtcd(cfg, log)
	default:
		return nil, &ConfigError{fmt.Sprintf("unknown disco source %q", kind)}
	}
}

func cloneWithName(cfg Config, name string) Config {
	out := make(Config, len(cfg)+1)
	for k, v := range cfg {
		out[k] = v
	}
	out["name"] = name
	return out
}

// ConfigError reports a fatal, startup-time misconfiguration: an
// unknown source kind. It is never returned once the engine is running.
type ConfigError struct{ msg string }

func (e *ConfigError) Error() string { return e.msg }
