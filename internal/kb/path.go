package kb

import "strings"

// splitPath splits a dotted path ("a.b.c") into its segments. An empty
// path yields no segments.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Interface returns the first dotted segment of a path, the convention
// used throughout disco to look up the schema expected to validate it.
func Interface(path string) string {
	parts := splitPath(path)
	if len(parts) == 0 {
		return path
	}
	return parts[0]
}
