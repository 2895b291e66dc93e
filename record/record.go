// Package record turns the flat attribute lists returned by the RIPE full-text
// search into structured inetnum/inet6num records.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

const (
	ObjectTypeKey = "object-type"
	PrimaryKeyKey = "primary-key"
	LookupKeyKey  = "lookup-key"
	NetNameKey    = "netname"
	CountryKey    = "country"

	InetnumType  = "inetnum"
	Inet6numType = "inet6num"
)

// Attributes allowed to occur more than once per object.
// whois -t inetnum lists them as "multiple".
var multiValuedFields = map[string]struct{}{
	"descr":       {},
	"country":     {},
	"language":    {},
	"admin-c":     {},
	"tech-c":      {},
	"remarks":     {},
	"notify":      {},
	"mnt-by":      {},
	"mnt-lower":   {},
	"mnt-domains": {},
	"mnt-routes":  {},
	"mnt-irt":     {},
}

// IsMultiValued reports whether name may repeat within one record.
func IsMultiValued(name string) bool {
	_, ok := multiValuedFields[name]
	return ok
}

// MultiValuedFields returns the sorted names of the multi-valued attributes.
func MultiValuedFields() []string {
	names := make([]string, 0, len(multiValuedFields))
	for name := range multiValuedFields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Attribute is one name/value pair of a raw search document.
type Attribute struct {
	Name  string
	Value string
}

type value struct {
	single string
	multi  []string
}

// Record is a normalized search document. Single-valued attributes hold one
// string, multi-valued attributes hold their values in encounter order.
// A Record is never modified after Normalize returns it.
type Record struct {
	keys   []string
	values map[string]value
}

// Normalize builds a Record from raw attributes. A second occurrence of a
// single-valued attribute is reported as a *DuplicateFieldError.
func Normalize(attrs []Attribute) (*Record, error) {
	r := &Record{values: make(map[string]value, len(attrs))}

	for _, attr := range attrs {
		v, seen := r.values[attr.Name]
		if IsMultiValued(attr.Name) {
			v.multi = append(v.multi, attr.Value)
		} else if seen {
			return nil, &DuplicateFieldError{Key: attr.Name}
		} else {
			v.single = attr.Value
		}
		if !seen {
			r.keys = append(r.keys, attr.Name)
		}
		r.values[attr.Name] = v
	}

	return r, nil
}

// Len returns the number of distinct attribute names.
func (r *Record) Len() int {
	return len(r.keys)
}

// Keys returns the attribute names in the order they were first seen.
func (r *Record) Keys() []string {
	return slices.Clone(r.keys)
}

// Has reports whether the attribute is present.
func (r *Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Get returns the value of a single-valued attribute. It returns false for
// missing and for multi-valued attributes.
func (r *Record) Get(key string) (string, bool) {
	if IsMultiValued(key) {
		return "", false
	}
	v, ok := r.values[key]
	return v.single, ok
}

// List returns all values of key. Single-valued attributes yield a one
// element slice.
func (r *Record) List(key string) []string {
	v, ok := r.values[key]
	if !ok {
		return nil
	}
	if IsMultiValued(key) {
		return slices.Clone(v.multi)
	}
	return []string{v.single}
}

func (r *Record) ObjectType() string {
	s, _ := r.Get(ObjectTypeKey)
	return s
}

func (r *Record) PrimaryKey() string {
	s, _ := r.Get(PrimaryKeyKey)
	return s
}

// LookupKey is the address range of the object, e.g. "192.0.2.0 - 192.0.2.255".
func (r *Record) LookupKey() string {
	s, _ := r.Get(LookupKeyKey)
	return s
}

func (r *Record) NetName() string {
	s, _ := r.Get(NetNameKey)
	return s
}

func (r *Record) Countries() []string {
	return r.List(CountryKey)
}

// Validate checks that the record is an inetnum or inet6num object with an
// address range.
func (r *Record) Validate() error {
	switch t := r.ObjectType(); t {
	case InetnumType, Inet6numType:
	case "":
		return &SchemaError{Key: ObjectTypeKey, Reason: "missing"}
	default:
		return &SchemaError{Key: ObjectTypeKey, Reason: fmt.Sprintf("unexpected object type %q", t)}
	}
	if !r.Has(LookupKeyKey) {
		return &SchemaError{Key: LookupKeyKey, Reason: "missing"}
	}
	return nil
}

// MarshalJSON encodes the record as an object keeping attribute order.
// Multi-valued attributes are always arrays.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')

		var v any = r.values[key].single
		if IsMultiValued(key) {
			v = r.values[key].multi
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
