package record

import "fmt"

// DuplicateFieldError reports a single-valued attribute that occurred more
// than once in a document.
type DuplicateFieldError struct {
	Key string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("duplicated key: %s", e.Key)
}

// SchemaError reports a record that is not a usable inetnum/inet6num object.
type SchemaError struct {
	Key    string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid record: %s: %s", e.Key, e.Reason)
}
