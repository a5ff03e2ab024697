package source

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/radovskyb/watcher"
	"gopkg.in/yaml.v3"
)

// FlatFile reads a single YAML document from a configured file and
// memoizes it. Connect parses the file; State returns the memo. A
// poll-based watch refreshes the memo as soon as the file changes
// rather than waiting out a full discovery interval, but State's
// contract (return the last-read document) is unchanged by its
// presence.
type FlatFile struct {
	name string
	file string
	log  hclog.Logger

	mu      sync.Mutex
	state   map[string]interface{}
	watcher *watcher.Watcher
}

func newFlatFile(cfg Config, log hclog.Logger) *FlatFile {
	return &FlatFile{
		name: cfg.Name("flat"),
		file: cfg.string("file", ""),
		log:  log.Named("source.flat"),
	}
}

func (f *FlatFile) Name() string { return f.name }

func (f *FlatFile) Connect(ctx context.Context) error {
	if err := f.reload(); err != nil {
		f.log.Warn("flat file read failed", "file", f.file, "error", err)
	}
	if f.watcher == nil {
		w := watcher.New()
		w.FilterOps(watcher.Write, watcher.Create)
		if err := w.Add(f.file); err == nil {
			f.watcher = w
			go f.watch()
			go func() {
				if err := w.Start(time.Second); err != nil {
					f.log.Warn("flat file watcher stopped", "file", f.file, "error", err)
				}
			}()
		}
	}
	return nil
}

func (f *FlatFile) watch() {
	for {
		select {
		case _, ok := <-f.watcher.Event:
			if !ok {
				return
			}
			if err := f.reload(); err != nil {
				f.log.Warn("flat file reload failed", "file", f.file, "error", err)
			}
		case err, ok := <-f.watcher.Error:
			if !ok {
				return
			}
			f.log.Warn("flat file watch error", "file", f.file, "error", err)
		case <-f.watcher.Closed:
			return
		}
	}
}

func (f *FlatFile) reload() error {
	data, err := os.ReadFile(f.file)
	if err != nil {
		return err
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	f.mu.Lock()
	f.state = doc
	f.mu.Unlock()
	return nil
}

func (f *FlatFile) State(ctx context.Context) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == nil {
		return map[string]interface{}{}
	}
	return f.state
}

func (f *FlatFile) Disconnect(ctx context.Context) error {
	if f.watcher != nil {
		f.watcher.Close()
		f.watcher = nil
	}
	return nil
}
