// Package config implements disco's three-tier configuration: built-in
// defaults, overridden by a YAML file, overridden by the DISCO_CFG
// environment string.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Raw is the nested dotted-path configuration map every layer (file,
// env) is parsed into before being merged and decoded.
type Raw map[string]interface{}

// Defaults returns the built-in configuration: disco.path defaults to
// the current working directory.
func Defaults() Raw {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return Raw{"disco": map[string]interface{}{"path": wd}}
}

// LoadFile parses a YAML configuration file. A missing file is not an
// error -- it simply contributes nothing, since the config file is
// optional.
func LoadFile(path string) (Raw, error) {
	if path == "" {
		return Raw{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Raw{}, nil
		}
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return parseYAML(f)
}

func parseYAML(r io.Reader) (Raw, error) {
	var doc Raw
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return Raw{}, nil
		}
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if doc == nil {
		doc = Raw{}
	}
	return doc, nil
}

// ParseEnv parses the DISCO_CFG environment string: "|"-separated
// tokens of the form "a.b.c=value" or bare "a.b.c" (boolean true),
// each key split on "." into a nested mapping.
func ParseEnv(envStr string) Raw {
	out := Raw{}
	for _, token := range strings.Split(envStr, "|") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		var key string
		var val interface{} = true
		if idx := strings.Index(token, "="); idx >= 0 {
			key = token[:idx]
			val = token[idx+1:]
		} else {
			key = token
		}
		setDotted(out, key, val)
	}
	return out
}

func setDotted(m Raw, key string, val interface{}) {
	parts := strings.Split(key, ".")
	cur := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(Raw)
		if !ok {
			if existing, ok := cur[p].(map[string]interface{}); ok {
				next = Raw(existing)
			} else {
				next = Raw{}
			}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = val
}

// Merge deep-merges override onto base, override winning on leaf
// collisions, nested maps merging recursively.
func Merge(base, override Raw) Raw {
	out := make(Raw, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if bm, ok := asRaw(out[k]); ok {
			if om, ok := asRaw(v); ok {
				out[k] = Merge(bm, om)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func asRaw(v interface{}) (Raw, bool) {
	switch m := v.(type) {
	case Raw:
		return m, true
	case map[string]interface{}:
		return Raw(m), true
	default:
		return nil, false
	}
}

// Get performs a dotted-path lookup into a Raw map.
func (r Raw) Get(path string, def interface{}) interface{} {
	cur := interface{}(r)
	for _, p := range strings.Split(path, ".") {
		m, ok := asRaw(cur)
		if !ok {
			return def
		}
		v, ok := m[p]
		if !ok {
			return def
		}
		cur = v
	}
	return cur
}

// Section returns the sub-map at path as a Raw map, or nil if absent.
func (r Raw) Section(path string) Raw {
	v := r.Get(path, nil)
	if v == nil {
		return nil
	}
	m, _ := asRaw(v)
	return m
}

// Engine is the decoded disco.* section of the configuration.
type Engine struct {
	Path           string  `mapstructure:"path"`
	Interval       float64 `mapstructure:"interval"`
	FailLimit      int     `mapstructure:"fail_limit"`
	HandlerTimeout float64 `mapstructure:"handler_timeout"`
	SquashInterval int     `mapstructure:"squash_interval"`
	HealthAddr     string  `mapstructure:"health_addr"`
}

// DecodeEngine decodes the disco.* section into typed defaults:
// interval=1s, fail_limit=5, handler_timeout=60s.
func (r Raw) DecodeEngine() (Engine, error) {
	e := Engine{Interval: 1.0, FailLimit: 5, HandlerTimeout: 60}
	section := r.Section("disco")
	if section == nil {
		return e, nil
	}
	// WeaklyTypedInput is required because DISCO_CFG env overrides
	// (ParseEnv) always produce string values, even for numeric fields
	// like interval/fail_limit/handler_timeout.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &e,
	})
	if err != nil {
		return e, fmt.Errorf("config: build decoder: %w", err)
	}
	if err := decoder.Decode(map[string]interface{}(section)); err != nil {
		return e, fmt.Errorf("config: decode disco section: %w", err)
	}
	return e, nil
}

// SearchPath splits the colon-separated disco.path string into its
// directories, defaulting to the current working directory.
func (e Engine) SearchPath() []string {
	if e.Path == "" {
		return []string{"."}
	}
	return strings.Split(e.Path, ":")
}

// IntervalDuration converts the float-seconds Interval into a
// time.Duration.
func (e Engine) IntervalDuration() time.Duration {
	return time.Duration(e.Interval * float64(time.Second))
}

// HandlerTimeoutDuration converts HandlerTimeout similarly.
func (e Engine) HandlerTimeoutDuration() time.Duration {
	return time.Duration(e.HandlerTimeout * float64(time.Second))
}

// SourceConfigs returns every top-level section besides "disco" as a
// kind -> raw config mapping, exactly the set the Discoverer
// instantiates sources from.
func (r Raw) SourceConfigs() map[string]Raw {
	out := map[string]Raw{}
	for k, v := range r {
		if k == "disco" {
			continue
		}
		if m, ok := asRaw(v); ok {
			out[k] = m
		}
	}
	return out
}

// ToStringMap is a convenience for handing a Raw section to code that
// wants a plain map[string]interface{} (e.g. source.Config).
func (r Raw) ToStringMap() map[string]interface{} {
	return map[string]interface{}(r)
}
