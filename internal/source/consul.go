package source

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	discover "github.com/hashicorp/go-discover"
	"github.com/hashicorp/go-hclog"

	capi "github.com/hashicorp/consul/api"
)

// connectRetries bounds how many times Connect retries building a
// client before giving up for this tick; a give-up is not fatal, it
// just leaves the source without a client, so State returns an empty
// mapping instead of propagating the failure, and the next tick's
// Connect tries again.
const connectRetries = 3

// Consul discovers facts from a Consul agent's KV store. Beacon is the
// same implementation registered under the conventional name "beacon".
type Consul struct {
	name   string
	prefix string
	log    hclog.Logger

	apiConfig *capi.Config
	discover  string // optional go-discover auto-join string for host

	mu     sync.Mutex
	client *capi.Client
}

func newConsul(cfg Config, kind string, log hclog.Logger) (*Consul, error) {
	apiConfig := capi.DefaultConfig()
	host := cfg.string("host", "")
	if isAutoJoinString(host) {
		// resolved lazily in Connect, since it requires network I/O.
	} else if host != "" {
		apiConfig.Address = host
	}
	if tok := cfg.string("token", ""); tok != "" {
		apiConfig.Token = tok
	}
	if dc := cfg.string("datacenter", ""); dc != "" {
		apiConfig.Datacenter = dc
	}

	c := &Consul{
		name:      cfg.Name(kind),
		prefix:    cfg.string("prefix", ""),
		log:       log.Named("source." + kind),
		apiConfig: apiConfig,
	}
	if isAutoJoinString(host) {
		c.discover = host
	}
	return c, nil
}

// isAutoJoinString reports whether host looks like a go-discover
// cloud auto-join configuration string (e.g. "provider=aws ...")
// rather than a literal address.
func isAutoJoinString(host string) bool {
	return strings.HasPrefix(host, "provider=")
}

func (c *Consul) Name() string { return c.name }

func (c *Consul) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}

	cfg := *c.apiConfig
	if c.discover != "" {
		addrs, err := resolveAutoJoin(c.discover, c.log)
		if err != nil {
			c.log.Warn("consul auto-join resolution failed", "error", err)
			return nil
		}
		if len(addrs) > 0 {
			cfg.Address = addrs[0]
		}
	}

	var client *capi.Client
	err := backoff.Retry(func() error {
		var err error
		client, err = newConsulClient(&cfg, 5*time.Second)
		return err
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), connectRetries))
	if err != nil {
		c.log.Warn("consul connect failed", "error", err)
		return nil
	}
	c.client = client
	return nil
}

func resolveAutoJoin(cfgStr string, log hclog.Logger) ([]string, error) {
	d, err := discover.New(discover.WithUserAgent("disco"))
	if err != nil {
		return nil, err
	}
	return d.Addrs(cfgStr, log.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}))
}

func (c *Consul) State(ctx context.Context) map[string]interface{} {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	state := map[string]interface{}{}
	if client == nil {
		return state
	}

	pairs, _, err := client.KV().List(c.prefix, nil)
	if err != nil {
		c.log.Warn("consul kv list failed", "error", err)
		return state
	}
	for _, pair := range pairs {
		setNested(state, pair.Key, string(pair.Value))
	}
	return state
}

// setNested splits key on "/" and builds the nested mapping disco's
// sources all use to represent hierarchical KV data.
func setNested(state map[string]interface{}, key string, value interface{}) {
	key = strings.Trim(key, "/")
	if key == "" {
		return
	}
	parts := strings.Split(key, "/")
	m := state
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

func (c *Consul) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.client = nil
	c.mu.Unlock()
	return nil
}
