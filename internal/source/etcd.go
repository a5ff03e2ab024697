package source

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// defaultEtcdPort matches the original source's convention; modern etcd
// deployments normally use 2379, but disco's config default follows
// disco's config default follows the legacy convention of port 4001.
const defaultEtcdPort = 4001

// Etcd discovers facts from a recursive read under a configured prefix
// in an etcd cluster, reconstructing the same slash-nested mapping
// shape as the Consul/Beacon sources.
type Etcd struct {
	name     string
	prefix   string
	endpoint string
	log      hclog.Logger

	mu     sync.Mutex
	client *clientv3.Client
}

func newEtcd(cfg Config, log hclog.Logger) (*Etcd, error) {
	host := cfg.string("host", "127.0.0.1")
	port := defaultEtcdPort
	if p, ok := cfg["port"]; ok {
		switch v := p.(type) {
		case int:
			port = v
		case float64:
			port = int(v)
		case string:
			fmt.Sscanf(v, "%d", &port)
		}
	}
	return &Etcd{
		name:     cfg.Name("etcd"),
		prefix:   cfg.string("prefix", ""),
		endpoint: fmt.Sprintf("%s:%d", host, port),
		log:      log.Named("source.etcd"),
	}, nil
}

func (e *Etcd) Name() string { return e.name }

func (e *Etcd) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return nil
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{e.endpoint},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		e.log.Warn("etcd connect failed", "error", err)
		return nil
	}
	e.client = client
	return nil
}

func (e *Etcd) State(ctx context.Context) map[string]interface{} {
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()

	state := map[string]interface{}{}
	if client == nil {
		return state
	}

	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := client.Get(readCtx, e.prefix, clientv3.WithPrefix())
	if err != nil {
		e.log.Warn("etcd read failed", "error", err)
		return state
	}
	for _, kv := range resp.Kvs {
		key := strings.TrimPrefix(string(kv.Key), e.prefix)
		setNested(state, key, string(kv.Value))
	}
	return state
}

func (e *Etcd) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
