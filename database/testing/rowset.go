package testing

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/gaborage/go-bricks-dbcore/database/internal/columns"
)

// RowSet is the canned result StubDriver returns for a matching query.
//
//	rows := NewRowSet("id", "name").
//	    AddRow(1, "Alice").
//	    AddRow(2, "Bob")
//	drv.ExpectQuery("SELECT").WillReturnRows(rows)
type RowSet struct {
	columns []string
	rows    [][]any
}

// NewRowSet returns an empty RowSet whose cursor reports cols.
func NewRowSet(cols ...string) *RowSet {
	return &RowSet{columns: cols}
}

// AddRow appends one row. It panics when the value count differs from the
// column count, which is always a bug in the test itself.
func (rs *RowSet) AddRow(values ...any) *RowSet {
	if len(values) != len(rs.columns) {
		panic(fmt.Sprintf("rowset: %d values for %d columns %v", len(values), len(rs.columns), rs.columns))
	}
	rs.rows = append(rs.rows, values)
	return rs
}

// AddRows appends n rows produced by gen(0) .. gen(n-1).
func (rs *RowSet) AddRows(n int, gen func(i int) []any) *RowSet {
	for i := range n {
		rs.AddRow(gen(i)...)
	}
	return rs
}

// AddRowsFromStructs appends one row per entity, reading the RowSet columns
// from the entities' `db` tags.
func (rs *RowSet) AddRowsFromStructs(entities ...any) *RowSet {
	for _, e := range entities {
		rs.AddRow(extractStructValues(e, rs.columns)...)
	}
	return rs
}

func (rs *RowSet) RowCount() int { return len(rs.rows) }

func (rs *RowSet) Columns() []string { return append([]string(nil), rs.columns...) }

// cursor returns a fresh types.Rows over a copy of the rows.
func (rs *RowSet) cursor() *stubRows {
	copyRows := make([][]any, len(rs.rows))
	for i, row := range rs.rows {
		copyRows[i] = append([]any(nil), row...)
	}
	return &stubRows{columns: append([]string{}, rs.columns...), rows: copyRows, idx: -1}
}

// stubRows is an in-memory types.Rows. Scan accepts *any destinations and
// pointers to the exact normalized value type.
type stubRows struct {
	columns []string
	rows    [][]any
	idx     int
	closed  bool
	err     error
}

func (r *stubRows) Columns() ([]string, error) {
	if r.closed {
		return nil, errors.New("rows are closed")
	}
	return append([]string{}, r.columns...), nil
}

func (r *stubRows) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	r.idx++
	return r.idx < len(r.rows)
}

func (r *stubRows) Scan(dest ...any) error {
	if r.closed || r.idx < 0 || r.idx >= len(r.rows) {
		return errors.New("scan called without a current row")
	}
	row := r.rows[r.idx]
	if len(dest) != len(row) {
		return fmt.Errorf("expected %d destination arguments in Scan, not %d", len(row), len(dest))
	}
	for i, raw := range row {
		val, err := normalizeDriverValue(raw)
		if err != nil {
			return fmt.Errorf("column %d (%s): %w", i, r.columns[i], err)
		}
		if p, ok := dest[i].(*any); ok {
			*p = val
			continue
		}
		dv := reflect.ValueOf(dest[i])
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("destination %d is not a pointer", i)
		}
		if val == nil {
			dv.Elem().Set(reflect.Zero(dv.Elem().Type()))
			continue
		}
		sv := reflect.ValueOf(val)
		if !sv.Type().AssignableTo(dv.Elem().Type()) {
			return fmt.Errorf("cannot scan %T into %s", val, dv.Elem().Type())
		}
		dv.Elem().Set(sv)
	}
	return nil
}

func (r *stubRows) Err() error { return r.err }

func (r *stubRows) Close() error {
	r.closed = true
	return nil
}

// normalizeDriverValue maps a canned value onto the types a database/sql
// driver would hand out: int64, float64, bool, string, []byte, time.Time or nil.
func normalizeDriverValue(v any) (driver.Value, error) {
	switch val := v.(type) {
	case nil, int64, float64, bool, string, time.Time:
		return val, nil
	case []byte:
		return append([]byte(nil), val...), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("%T value %d overflows int64", v, u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return normalizeDriverValue(rv.Elem().Interface())
	}

	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return nil, fmt.Errorf("unsupported RowSet value type %T", v)
}

// extractStructValues returns the `db` tagged values of a struct in column order.
func extractStructValues(structPtr any, cols []string) []any {
	meta, err := columns.Lookup(structPtr)
	if err != nil {
		panic(fmt.Sprintf("extractStructValues: %v", err))
	}
	v := reflect.ValueOf(structPtr)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}

	values := make([]any, len(cols))
	for i, name := range cols {
		col, ok := meta.Column(name)
		if !ok {
			panic(fmt.Sprintf("extractStructValues: column %q not found in struct %T (check db tags)", name, structPtr))
		}
		values[i] = v.FieldByIndex(col.Index).Interface()
	}
	return values
}
