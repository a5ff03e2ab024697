package discover

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// stableHash computes a change-detection digest for a source's state
// that is stable across runs for equal values: canonicalize mappings
// by sorted keys, recursively hash sequences in order, and hash
// scalars by value.
func stableHash(v interface{}) string {
	h := sha256.New()
	writeCanonical(h, v)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func writeCanonical(w interface{ Write([]byte) (int, error) }, v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		w.Write([]byte{'{'})
		for _, k := range keys {
			w.Write([]byte(k))
			w.Write([]byte{':'})
			writeCanonical(w, val[k])
			w.Write([]byte{';'})
		}
		w.Write([]byte{'}'})
	case []interface{}:
		w.Write([]byte{'['})
		for _, item := range val {
			writeCanonical(w, item)
			w.Write([]byte{';'})
		}
		w.Write([]byte{']'})
	default:
		b, err := json.Marshal(val)
		if err != nil {
			b = []byte(fmt.Sprintf("%v", val))
		}
		w.Write(b)
	}
}
