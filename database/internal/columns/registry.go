package columns

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Registry caches Metadata per struct type. Types are parsed on first use.
type Registry struct {
	cache sync.Map // map[reflect.Type]*Metadata
}

var globalRegistry = &Registry{}

// Lookup returns the metadata of the struct type behind v, which may be a
// struct, a pointer to one, or a reflect.Type.
func Lookup(v any) (*Metadata, error) {
	return globalRegistry.Get(v)
}

// Get resolves v to a struct type and returns its cached metadata.
func (r *Registry) Get(v any) (*Metadata, error) {
	t, ok := v.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(v)
	}
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("columns: expected a struct, got %v", t)
	}

	if cached, ok := r.cache.Load(t); ok {
		return cached.(*Metadata), nil
	}

	metadata, err := parseStruct(t)
	if err != nil {
		return nil, err
	}
	actual, _ := r.cache.LoadOrStore(t, metadata)
	return actual.(*Metadata), nil
}

// Clear drops every cached entry.
func (r *Registry) Clear() {
	r.cache.Range(func(k, _ any) bool {
		r.cache.Delete(k)
		return true
	})
}

func parseStruct(t reflect.Type) (*Metadata, error) {
	m := &Metadata{
		TypeName: t.Name(),
		Type:     t,
		byField:  map[string]*Column{},
		byColumn: map[string]*Column{},
	}
	if err := collect(m, t, nil); err != nil {
		return nil, err
	}
	if len(m.Columns) == 0 {
		return nil, fmt.Errorf("columns: no fields with `db` tags found in struct %s", t.Name())
	}

	for i := range m.Columns {
		c := &m.Columns[i]
		if _, dup := m.byColumn[strings.ToLower(c.Name)]; dup {
			return nil, fmt.Errorf("columns: duplicate column %q in struct %s", c.Name, t.Name())
		}
		m.byField[c.FieldName] = c
		m.byColumn[strings.ToLower(c.Name)] = c
		if c.PrimaryKey {
			if m.pk != nil {
				return nil, fmt.Errorf("columns: struct %s declares more than one pk column", t.Name())
			}
			m.pk = c
		}
	}
	return m, nil
}

func collect(m *Metadata, t reflect.Type, parent []int) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int{}, parent...), i)
		tag, hasTag := field.Tag.Lookup("db")

		if field.Anonymous && !hasTag {
			ft := field.Type
			if ft.Kind() == reflect.Struct {
				if err := collect(m, ft, index); err != nil {
					return err
				}
			}
			continue
		}
		if !field.IsExported() || tag == "" || tag == "-" {
			continue
		}

		name, opts, _ := strings.Cut(tag, ",")
		if err := validateDBTag(name, t.Name(), field.Name); err != nil {
			return err
		}

		col := Column{FieldName: field.Name, Name: name, Index: index, Type: field.Type}
		for _, opt := range strings.Split(opts, ",") {
			switch strings.TrimSpace(opt) {
			case "":
			case "pk":
				col.PrimaryKey = true
			case "omitempty":
				col.OmitEmpty = true
			case "readonly":
				col.ReadOnly = true
			default:
				return fmt.Errorf("columns: unknown db tag option %q on %s.%s", opt, t.Name(), field.Name)
			}
		}
		m.Columns = append(m.Columns, col)
	}
	return nil
}

// validateDBTag rejects tags that are not plain identifiers.
func validateDBTag(tag, structName, fieldName string) error {
	for _, d := range []string{";", "--", "/*", "*/", " "} {
		if strings.Contains(tag, d) {
			return fmt.Errorf("columns: invalid db tag %q in field %s.%s: contains %q", tag, structName, fieldName, d)
		}
	}
	if strings.ContainsAny(tag, "\"'`") {
		return fmt.Errorf("columns: invalid db tag %q in field %s.%s: contains quotes (quoting is applied by the dialect)", tag, structName, fieldName)
	}
	return nil
}
