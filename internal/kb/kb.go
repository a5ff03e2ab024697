package kb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// sentinel is the concrete type behind Missing; comparing by identity
// (not by value) is what lets Missing stand in for "no value here" even
// though Value is an empty interface that could otherwise hold nil.
type sentinel struct{}

// Missing is the marker Rule.Match passes as Get's default so it can
// tell "path resolved to nil" apart from "path does not exist".
var Missing Value = &sentinel{}

// KB is an ordered stack of mappings, newest layer on top. Layers are
// never mutated after being pushed; Inject appends a new layer and
// Update replaces the top layer with a deep-merged copy of itself.
type KB struct {
	mu     sync.RWMutex
	layers []map[string]Value
	log    hclog.Logger
}

// New returns an empty knowledge base. log may be nil, in which case
// validation failures are discarded rather than logged.
func New(log hclog.Logger) *KB {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &KB{log: log}
}

// Inject pushes data as a new top layer. data must decode to a mapping;
// non-mapping data is wrapped under no key (discarded) since the KB
// only stores mappings.
func (k *KB) Inject(data Value) *KB {
	m, ok := asMap(normalize(data))
	if !ok {
		m = map[string]Value{}
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.layers = append(k.layers, m)
	return k
}

// Update replaces the top layer with a deep-merged copy of the existing
// top layer and data (data wins on key collisions). If the KB has no
// layers yet, this behaves like Inject.
func (k *KB) Update(data Value) *KB {
	m, ok := asMap(normalize(data))
	if !ok {
		m = map[string]Value{}
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.layers) == 0 {
		k.layers = append(k.layers, m)
		return k
	}
	top := k.layers[len(k.layers)-1]
	k.layers[len(k.layers)-1] = deepMerge(top, m)
	return k
}

// deepMerge returns a new map containing base overlaid with patch;
// nested maps are merged recursively, other values from patch win.
func deepMerge(base, patch map[string]Value) map[string]Value {
	out := make(map[string]Value, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for _, k := range sortedKeys(patch) {
		pv := patch[k]
		if bm, ok := out[k].(map[string]Value); ok {
			if pm, ok := pv.(map[string]Value); ok {
				out[k] = deepMerge(bm, pm)
				continue
			}
		}
		out[k] = pv
	}
	return out
}

// Compose materializes the full visible mapping across every layer,
// older layers first, so that a sibling key untouched by a newer layer
// remains visible and a leaf present in more than one layer is shadowed
// by the newest.
func (k *KB) Compose() map[string]Value {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := map[string]Value{}
	for _, layer := range k.layers {
		out = deepMerge(out, layer)
	}
	return out
}

// getOK walks the layers from newest to oldest, returning the value at
// path from the first layer able to resolve every segment.
func (k *KB) getOK(path string) (Value, bool) {
	parts := splitPath(path)
	k.mu.RLock()
	defer k.mu.RUnlock()
	for i := len(k.layers) - 1; i >= 0; i-- {
		if v, ok := resolve(k.layers[i], parts); ok {
			return v, true
		}
	}
	return nil, false
}

func resolve(layer map[string]Value, parts []string) (Value, bool) {
	var cur Value = layer
	for _, p := range parts {
		m, ok := cur.(map[string]Value)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Get returns the value at path, or def if any segment is missing.
func (k *KB) Get(path string, def Value) Value {
	if v, ok := k.getOK(path); ok {
		return v
	}
	return def
}

// Load parses filelike as YAML and injects it as a new layer. If to is
// non-empty, the parsed document is wrapped so its contents appear
// under that dotted path before injection (e.g. to="schemas.mysql").
func (k *KB) Load(filelike io.Reader, to string) error {
	var data Value
	dec := yaml.NewDecoder(filelike)
	if err := dec.Decode(&data); err != nil {
		return fmt.Errorf("kb: parse yaml: %w", err)
	}
	k.Inject(wrap(normalize(data), to))
	return nil
}

// LoadSchema parses filelike as a JSON-Schema document (YAML or JSON;
// both decode through the YAML parser) and stores it at
// schemas.<name>, where name is the document's required top-level
// "name" field.
func (k *KB) LoadSchema(filelike io.Reader) error {
	var data Value
	dec := yaml.NewDecoder(filelike)
	if err := dec.Decode(&data); err != nil {
		return fmt.Errorf("kb: parse schema: %w", err)
	}
	data = normalize(data)
	m, ok := asMap(data)
	if !ok {
		return fmt.Errorf("kb: schema document is not a mapping")
	}
	name, ok := m["name"].(string)
	if !ok || name == "" {
		return fmt.Errorf("kb: schema document missing required \"name\" field")
	}
	k.Inject(wrap(data, "schemas."+name))
	return nil
}

// Validate resolves schemas.<schemaName> and validates either the
// whole composed mapping (path == "") or the subtree at path against
// it. It returns ErrMissing if the path or the schema cannot be
// resolved, and a *SchemaInvalidError on a validation failure.
func (k *KB) Validate(schemaName, path string) error {
	schema, ok := k.getOK("schemas." + schemaName)
	if !ok {
		return ErrMissing
	}
	var obj Value
	if path == "" {
		obj = Value(k.Compose())
	} else {
		v, ok := k.getOK(path)
		if !ok {
			return ErrMissing
		}
		obj = v
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("kb: encode schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaName, bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("kb: add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(schemaName)
	if err != nil {
		return fmt.Errorf("kb: compile schema %s: %w", schemaName, err)
	}

	objJSON, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("kb: encode document: %w", err)
	}
	var generic Value
	if err := json.Unmarshal(objJSON, &generic); err != nil {
		return fmt.Errorf("kb: decode document: %w", err)
	}

	if err := compiled.Validate(generic); err != nil {
		return &SchemaInvalidError{Schema: schemaName, err: err}
	}
	return nil
}

// IsValid is the boolean form of Validate. Violations are logged at
// info level (the error's Error() string only -- never the document
// body, since discovered data routinely carries credentials).
func (k *KB) IsValid(schemaName, path string) bool {
	err := k.Validate(schemaName, path)
	if err == nil {
		return true
	}
	if err != ErrMissing {
		k.log.Info("schema validation failed", "schema", schemaName, "path", path, "error", err)
	}
	return false
}

// Depth reports the number of layers currently stacked, e.g. for tests
// that check layer growth and squashing.
func (k *KB) Depth() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.layers)
}

// Squash folds every layer into a single one, preserving the composed
// view exactly (deep-merge is associative/order-preserving here) while
// bounding future lookup cost. Used by the discoverer's optional
// periodic squash.
func (k *KB) Squash() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.layers) <= 1 {
		return
	}
	merged := map[string]Value{}
	for _, layer := range k.layers {
		merged = deepMerge(merged, layer)
	}
	k.layers = []map[string]Value{merged}
}
