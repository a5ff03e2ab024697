// Package kb implements the layered, schema-validated knowledge base
// that the discoverer writes into and the reactive engine reads from.
package kb

import "sort"

// Value is a JSON-compatible value: nil, bool, int, float64, string,
// []Value, or map[string]Value. Sources, rule files and schema files
// all produce data shaped this way after YAML/JSON decoding.
type Value = interface{}

// asMap returns v as a map[string]interface{}, decoding the two shapes
// a YAML parse can hand back (map[string]interface{} and, for nested
// documents, map[interface{}]interface{}).
func asMap(v Value) (map[string]Value, bool) {
	switch m := v.(type) {
	case map[string]Value:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]Value, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = normalize(val)
		}
		return out, true
	default:
		return nil, false
	}
}

// normalize recursively rewrites map[interface{}]interface{} (as produced
// by gopkg.in/yaml.v3 for nested documents in some configurations) into
// map[string]interface{} so the rest of the package can assume one shape.
func normalize(v Value) Value {
	if m, ok := v.(map[interface{}]interface{}); ok {
		out := make(map[string]Value, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = normalize(val)
			}
		}
		return out
	}
	if m, ok := v.(map[string]Value); ok {
		out := make(map[string]Value, len(m))
		for k, val := range m {
			out[k] = normalize(val)
		}
		return out
	}
	if s, ok := v.([]Value); ok {
		out := make([]Value, len(s))
		for i, val := range s {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}

// sortedKeys returns a map's keys in sorted order, for deterministic
// iteration (layer squashing, canonical hashing).
func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// wrap builds the nested single-key mapping that `to` describes, e.g.
// wrap({"a": 1}, "mysql.config") yields {"mysql": {"config": {"a": 1}}}.
func wrap(data Value, to string) Value {
	if to == "" {
		return data
	}
	parts := splitPath(to)
	for i := len(parts) - 1; i >= 0; i-- {
		data = map[string]Value{parts[i]: data}
	}
	return data
}
