// Package columns extracts and caches the `db` tag layout of entity structs.
// Results use it to cast rows into structs and models use it to turn entities
// into column/value maps.
//
// Tag format: `db:"name[,option...]"`. Supported options:
//
//	pk         primary key column
//	omitempty  left out of insert/update values when the field holds its zero value
//	readonly   never written by insert/update
//
// `db:"-"` and untagged fields are ignored. Anonymous embedded structs are flattened.
package columns

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Column describes one tagged struct field.
type Column struct {
	// FieldName is the Go field name (e.g., "UserID")
	FieldName string
	// Name is the database column from the tag (e.g., "user_id")
	Name string
	// Index is the field path for reflect.Value.FieldByIndex
	Index []int
	// Type is the field type
	Type reflect.Type

	PrimaryKey bool
	OmitEmpty  bool
	ReadOnly   bool
}

// Metadata is the cached column layout of one struct type.
type Metadata struct {
	TypeName string
	Type     reflect.Type
	Columns  []Column

	byField  map[string]*Column
	byColumn map[string]*Column
	pk       *Column
}

// Field returns the column mapped to a Go field name.
func (m *Metadata) Field(fieldName string) (*Column, bool) {
	c, ok := m.byField[fieldName]
	return c, ok
}

// Column returns the field mapped to a column name. Lookup is case-insensitive
// because several backends fold unquoted identifiers.
func (m *Metadata) Column(name string) (*Column, bool) {
	c, ok := m.byColumn[strings.ToLower(name)]
	return c, ok
}

// PrimaryKey returns the `pk` column, or nil.
func (m *Metadata) PrimaryKey() *Column { return m.pk }

// Names returns every column name in declaration order.
func (m *Metadata) Names() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// Values returns the writable column values of entity, keyed by column name.
// The primary key is included only when includePK is set and it is non-zero.
func (m *Metadata) Values(entity any, includePK bool) (map[string]any, error) {
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("columns: nil %s", m.TypeName)
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Type() != m.Type {
		return nil, fmt.Errorf("columns: expected %s, got %T", m.TypeName, entity)
	}

	values := make(map[string]any, len(m.Columns))
	for i := range m.Columns {
		c := &m.Columns[i]
		if c.ReadOnly {
			continue
		}
		fv := rv.FieldByIndex(c.Index)
		if c.PrimaryKey && (!includePK || fv.IsZero()) {
			continue
		}
		if c.OmitEmpty && fv.IsZero() {
			continue
		}
		values[c.Name] = fv.Interface()
	}
	return values, nil
}

// SortedKeys returns the keys of values in ascending order.
func SortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
