package database

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/gaborage/go-bricks-dbcore/database/internal/columns"
	"github.com/gaborage/go-bricks-dbcore/database/types"
)

// Result is the outcome of one dispatch.
//
// Read results wrap the driver cursor. Buffered accessors copy rows into a
// cache as they read them, so once the cursor is exhausted every row can still
// be revisited. UnbufferedRow streams without caching. Write results carry
// the affected row count and the generated id instead of rows.
type Result struct {
	mu sync.Mutex

	query *Query

	rows      types.Rows
	columns   []string
	cache     [][]any
	exhausted bool
	current   int
	err       error

	write        bool
	rowsAffected int64
	insertID     int64
}

func newReadResult(q *Query, rows types.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	return &Result{query: q, rows: rows, columns: cols, current: -1}, nil
}

func newWriteResult(q *Query, rowsAffected, insertID int64) *Result {
	return &Result{query: q, write: true, rowsAffected: rowsAffected, insertID: insertID, exhausted: true, current: -1}
}

// newPretendResult is returned while the connection pretends; it only carries the query.
func newPretendResult(q *Query) *Result {
	return &Result{query: q, exhausted: true, current: -1}
}

// Query returns the statement that produced the result.
func (r *Result) Query() *Query { return r.query }

// IsWrite reports whether the result came from a write statement.
func (r *Result) IsWrite() bool { return r.write }

// RowsAffected returns the rows changed by a write statement.
func (r *Result) RowsAffected() int64 { return r.rowsAffected }

// LastInsertID returns the id generated by an insert, or 0.
func (r *Result) LastInsertID() int64 { return r.insertID }

// Columns returns the column names of a read result.
func (r *Result) Columns() []string { return r.columns }

// FieldCount returns the number of columns.
func (r *Result) FieldCount() int { return len(r.columns) }

// fetch reads the next cursor row. It returns nil at the end of the cursor.
func (r *Result) fetch() ([]any, error) {
	if r.exhausted || r.rows == nil {
		return nil, r.err
	}
	if !r.rows.Next() {
		r.exhausted = true
		r.err = r.rows.Err()
		if cerr := r.rows.Close(); cerr != nil && r.err == nil {
			r.err = cerr
		}
		return nil, r.err
	}

	values := make([]any, len(r.columns))
	ptrs := make([]any, len(r.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = err
		r.exhausted = true
		_ = r.rows.Close()
		return nil, err
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	return values, nil
}

// bufferTo fills the cache until it holds n+1 rows or the cursor ends.
func (r *Result) bufferTo(n int) error {
	for len(r.cache) <= n && !r.exhausted {
		row, err := r.fetch()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		r.cache = append(r.cache, row)
	}
	return nil
}

func (r *Result) bufferAll() error {
	for !r.exhausted {
		row, err := r.fetch()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		r.cache = append(r.cache, row)
	}
	return r.err
}

// detach drains the cursor into the cache and closes it so the link is free
// for the next statement.
func (r *Result) detach() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bufferAll()
}

func (r *Result) asMap(row []any) map[string]any {
	if row == nil {
		return nil
	}
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		m[c] = row[i]
	}
	return m
}

// ResultArray returns every row as a column keyed map.
func (r *Result) ResultArray() ([]map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.bufferAll(); err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(r.cache))
	for i, row := range r.cache {
		out[i] = r.asMap(row)
	}
	return out, nil
}

// ResultRows returns every row as positional values in column order.
func (r *Result) ResultRows() ([][]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.bufferAll(); err != nil {
		return nil, err
	}
	out := make([][]any, len(r.cache))
	for i, row := range r.cache {
		out[i] = append([]any(nil), row...)
	}
	return out, nil
}

// NumRows returns the number of rows. It buffers the whole cursor.
func (r *Result) NumRows() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.bufferAll(); err != nil {
		return 0, err
	}
	return len(r.cache), nil
}

func (r *Result) rowAt(n int) ([]any, error) {
	if n < 0 {
		return nil, nil
	}
	if err := r.bufferTo(n); err != nil {
		return nil, err
	}
	if n >= len(r.cache) {
		return nil, nil
	}
	r.current = n
	return r.cache[n], nil
}

// Row returns row n as a map, or nil when there is no such row. It moves the
// navigation cursor used by NextRow and PreviousRow.
func (r *Result) Row(n int) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, err := r.rowAt(n)
	return r.asMap(row), err
}

// RowArray returns row n as positional values, or nil.
func (r *Result) RowArray(n int) ([]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, err := r.rowAt(n)
	if row == nil {
		return nil, err
	}
	return append([]any(nil), row...), err
}

// FirstRow returns the first row, or nil.
func (r *Result) FirstRow() (map[string]any, error) {
	return r.Row(0)
}

// LastRow returns the last row, or nil. It buffers the whole cursor.
func (r *Result) LastRow() (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.bufferAll(); err != nil {
		return nil, err
	}
	row, err := r.rowAt(len(r.cache) - 1)
	return r.asMap(row), err
}

// NextRow advances the navigation cursor and returns that row, or nil past the end.
func (r *Result) NextRow() (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, err := r.rowAt(r.current + 1)
	return r.asMap(row), err
}

// PreviousRow moves the navigation cursor back and returns that row, or nil
// before the first row.
func (r *Result) PreviousRow() (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, err := r.rowAt(r.current - 1)
	return r.asMap(row), err
}

// UnbufferedRow streams the next cursor row without caching it. Once the
// cursor has been drained it continues from the navigation cursor instead.
func (r *Result) UnbufferedRow() (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.exhausted {
		row, err := r.fetch()
		return r.asMap(row), err
	}
	row, err := r.rowAt(r.current + 1)
	return r.asMap(row), err
}

// ScanAll copies every row into dest, a pointer to a slice of `db` tagged
// structs or struct pointers.
func (r *Result) ScanAll(dest any) error {
	slice := reflect.ValueOf(dest)
	if slice.Kind() != reflect.Pointer || slice.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("scan: expected pointer to slice, got %T", dest)
	}
	slice = slice.Elem()
	elemType := slice.Type().Elem()
	isPtr := elemType.Kind() == reflect.Pointer
	structType := elemType
	if isPtr {
		structType = elemType.Elem()
	}
	meta, err := columns.Lookup(structType)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.bufferAll(); err != nil {
		return err
	}

	out := reflect.MakeSlice(slice.Type(), 0, len(r.cache))
	for _, row := range r.cache {
		item := reflect.New(structType)
		if err := r.assignRow(meta, row, item.Elem()); err != nil {
			return err
		}
		if isPtr {
			out = reflect.Append(out, item)
		} else {
			out = reflect.Append(out, item.Elem())
		}
	}
	slice.Set(out)
	return nil
}

// ScanRow copies row n into dest, a pointer to a `db` tagged struct. It
// returns sql.ErrNoRows when the row does not exist.
func (r *Result) ScanRow(n int, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("scan: expected pointer to struct, got %T", dest)
	}
	meta, err := columns.Lookup(dest)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	row, err := r.rowAt(n)
	if err != nil {
		return err
	}
	if row == nil {
		return sql.ErrNoRows
	}
	return r.assignRow(meta, row, rv.Elem())
}

// ResultAs returns every row of r cast into T.
func ResultAs[T any](r *Result) ([]T, error) {
	var out []T
	if err := r.ScanAll(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Result) assignRow(meta *columns.Metadata, row []any, target reflect.Value) error {
	for i, name := range r.columns {
		col, ok := meta.Column(name)
		if !ok {
			continue
		}
		if err := assignValue(target.FieldByIndex(col.Index), row[i]); err != nil {
			return fmt.Errorf("scan column %q into %s.%s: %w", name, meta.TypeName, col.FieldName, err)
		}
	}
	return nil
}

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// assignValue stores a driver value into a struct field, converting between
// the common driver representations.
func assignValue(field reflect.Value, v any) error {
	if field.CanAddr() && field.Addr().Type().Implements(scannerType) {
		return field.Addr().Interface().(sql.Scanner).Scan(v)
	}
	if v == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if field.Kind() == reflect.Pointer {
		elem := reflect.New(field.Type().Elem())
		if err := assignValue(elem.Elem(), v); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	src := reflect.ValueOf(v)
	if src.Type().AssignableTo(field.Type()) {
		field.Set(src)
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(fmt.Sprint(v))
		return nil
	case reflect.Bool:
		switch b := v.(type) {
		case int64:
			field.SetBool(b != 0)
			return nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return err
			}
			field.SetBool(parsed)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if s, ok := v.(string); ok {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(n)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if s, ok := v.(string); ok {
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return err
			}
			field.SetUint(n)
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if s, ok := v.(string); ok {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			field.SetFloat(f)
			return nil
		}
	case reflect.Struct:
		if field.Type() == timeType {
			if s, ok := v.(string); ok {
				for _, layout := range timeLayouts {
					if ts, err := time.Parse(layout, s); err == nil {
						field.Set(reflect.ValueOf(ts))
						return nil
					}
				}
				return fmt.Errorf("cannot parse %q as time", s)
			}
		}
	}

	if src.Type().ConvertibleTo(field.Type()) && isNumeric(src.Kind()) == isNumeric(field.Kind()) {
		field.Set(src.Convert(field.Type()))
		return nil
	}
	return errors.New("unsupported conversion from " + src.Type().String() + " to " + field.Type().String())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Free closes the cursor. Cached rows stay readable.
func (r *Result) Free() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exhausted || r.rows == nil {
		return nil
	}
	r.exhausted = true
	return r.rows.Close()
}

// open reports whether the cursor still holds the link.
func (r *Result) open() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.exhausted && r.rows != nil
}
