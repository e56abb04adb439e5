package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"sort"

	"github.com/siherrmann/docpipe/helper"
)

// FactBundle maps fact keys (e.g. "total_cost", "ioc_date") to extracted
// values. Values are scalars (float64, string), lists of records
// ([]interface{} of map[string]interface{}) or free text, matching what
// encoding/json produces. A bundle is built up once during extraction and
// treated as immutable afterwards.
type FactBundle map[string]interface{}

// Value implements the driver.Valuer interface for database storage
func (f FactBundle) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// Scan implements the sql.Scanner interface for database retrieval
func (f *FactBundle) Scan(value interface{}) error {
	if value == nil {
		*f = FactBundle{}
		return nil
	}

	if s, ok := value.(FactBundle); ok {
		*f = s
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}

	return json.Unmarshal(b, f)
}

// Keys returns the fact keys of the bundle in sorted order.
func (f FactBundle) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the bundle. Callers that hand a bundle to
// another component clone it first so the original stays immutable.
func (f FactBundle) Clone() FactBundle {
	if f == nil {
		return nil
	}
	clone := make(FactBundle, len(f))
	for k, v := range f {
		clone[k] = v
	}
	return clone
}

// Number returns the fact value for key as a float64 if it is numeric.
func (f FactBundle) Number(key string) (float64, bool) {
	v, ok := f[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// String returns the fact value for key as a string if it is one.
func (f FactBundle) String(key string) (string, bool) {
	v, ok := f[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
