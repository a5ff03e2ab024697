package kb

import "errors"

// ErrMissing is returned by Validate when the path or the schema it
// names cannot be resolved in the knowledge base.
var ErrMissing = errors.New("kb: missing path or schema")

// SchemaInvalidError wraps a jsonschema validation failure. The message
// is safe to log: the document body itself is never embedded in it,
// since discovered data routinely carries credentials.
type SchemaInvalidError struct {
	Schema string
	err    error
}

func (e *SchemaInvalidError) Error() string {
	return "kb: " + e.Schema + " failed validation: " + e.err.Error()
}

func (e *SchemaInvalidError) Unwrap() error { return e.err }
