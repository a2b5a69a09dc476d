// Package model maps `db` tagged structs onto single tables and applies the
// soft-delete contract of the database package to every read and delete.
package model

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-openapi/inflect"

	"github.com/gaborage/go-bricks-dbcore/database"
	"github.com/gaborage/go-bricks-dbcore/database/internal/columns"
	"github.com/gaborage/go-bricks-dbcore/database/types"
)

// DefaultDeletedField is the soft-delete column used by WithSoftDeletes("").
const DefaultDeletedField = "deleted_at"

var (
	// ErrNotFound is returned by Find and First when no row matches.
	ErrNotFound = errors.New("record not found")
	// ErrNoPrimaryKey is returned by operations addressing rows by id when the
	// model has no primary key.
	ErrNoPrimaryKey = errors.New("model does not specify a primary key")
	// ErrUnsafeDelete is returned when Delete has neither ids nor conditions.
	ErrUnsafeDelete = errors.New("deletes are not allowed unless they contain a where clause")
	// ErrNoData is returned by Insert and Update when the entity has no writable values.
	ErrNoData = errors.New("there is no data to write")
	// ErrSingleColumn is returned by FindColumn for anything but one column name.
	ErrSingleColumn = errors.New("only a single column name is allowed")
)

// comparison operators accepted as the second word of a Where column.
var operators = map[string]bool{"=": true, "!=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true}

type condition struct {
	column string
	op     string
	value  any
}

// Model reads and writes rows of one table as values of T.
//
// Where returns a narrowed copy; the copies share the soft-delete scope, so
// WithDeleted and OnlyDeleted affect the next read of any of them.
type Model[T any] struct {
	conn    *database.Connection
	meta    *columns.Metadata
	table   string
	pk      string
	deleted string
	scope   *database.SoftDeleteScope
	now     func() time.Time
	conds   []condition
}

// Option configures a Model.
type Option func(*options)

type options struct {
	table   string
	pk      string
	deleted string
	soft    bool
	now     func() time.Time
}

// WithTable overrides the inferred table name.
func WithTable(name string) Option {
	return func(o *options) { o.table = name }
}

// WithPrimaryKey overrides the primary key taken from the `pk` tag option.
func WithPrimaryKey(column string) Option {
	return func(o *options) { o.pk = column }
}

// WithSoftDeletes enables soft deletes on field, DefaultDeletedField when empty.
func WithSoftDeletes(field string) Option {
	return func(o *options) {
		if field == "" {
			field = DefaultDeletedField
		}
		o.soft = true
		o.deleted = field
	}
}

// WithClock replaces the time source used for deletion timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New returns a model of T on conn. The table defaults to the pluralized
// snake case of T's name and the primary key to the column tagged `pk`.
func New[T any](conn *database.Connection, opts ...Option) (*Model[T], error) {
	var zero T
	meta, err := columns.Lookup(reflect.TypeOf(zero))
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.table == "" {
		o.table = TableName(meta.TypeName)
	}
	if o.pk == "" {
		if pk := meta.PrimaryKey(); pk != nil {
			o.pk = pk.Name
		}
	}

	m := &Model[T]{
		conn:  conn,
		meta:  meta,
		table: o.table,
		pk:    o.pk,
		now:   o.now,
	}
	if o.soft {
		m.deleted = o.deleted
		m.scope = database.NewSoftDeleteScope(o.deleted)
	}
	return m, nil
}

// TableName converts a Go type name into a table name: BlogPost -> blog_posts.
func TableName(typeName string) string {
	return inflect.Pluralize(inflect.Underscore(typeName))
}

// Table returns the unprefixed table name.
func (m *Model[T]) Table() string { return m.table }

// PrimaryKey returns the primary key column, or "".
func (m *Model[T]) PrimaryKey() string { return m.pk }

// DeletedField returns the soft-delete column, or "" when soft deletes are off.
func (m *Model[T]) DeletedField() string { return m.deleted }

// Where returns a copy of m narrowed by column = value. The column may carry
// a comparison operator as a second word, as in "id >". Slices match with IN
// and nil matches with IS NULL.
func (m *Model[T]) Where(column string, value any) *Model[T] {
	c := condition{column: strings.TrimSpace(column), op: "=", value: value}
	if fields := strings.Fields(c.column); len(fields) == 2 && operators[fields[1]] {
		c.column, c.op = fields[0], fields[1]
	}

	cp := *m
	cp.conds = append(append([]condition(nil), m.conds...), c)
	return &cp
}

// WithDeleted includes soft-deleted rows in the next read.
func (m *Model[T]) WithDeleted() *Model[T] {
	if m.scope != nil {
		m.scope.WithDeleted()
	}
	return m
}

// OnlyDeleted restricts the next read to soft-deleted rows.
func (m *Model[T]) OnlyDeleted() *Model[T] {
	if m.scope != nil {
		m.scope.OnlyDeleted()
	}
	return m
}

// builder starts a statement on the table with the model's conditions.
func (m *Model[T]) builder() *database.Builder {
	b := m.conn.Table(m.table)
	for _, c := range m.conds {
		if c.op == "=" {
			b.WhereEq(c.column, c.value)
			continue
		}
		b.Where(b.Column(c.column)+" "+c.op+" ?", c.value)
	}
	return b
}

// reader is builder plus the soft-delete hook.
func (m *Model[T]) reader() *database.Builder {
	b := m.builder()
	if m.scope != nil {
		b.Use(m.scope.Hook())
	}
	return b
}

// resetScope consumes a pending scope change for reads that never compile.
func (m *Model[T]) resetScope() {
	if m.scope != nil {
		m.scope.Reset()
	}
}

func (m *Model[T]) requirePK() error {
	if m.pk == "" {
		return fmt.Errorf("%w: %s", ErrNoPrimaryKey, m.meta.TypeName)
	}
	return nil
}

func (m *Model[T]) fetch(ctx context.Context, b *database.Builder) ([]T, error) {
	res, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := res.ScanAll(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Find returns the row with primary key id.
func (m *Model[T]) Find(ctx context.Context, id any) (*T, error) {
	if err := m.requirePK(); err != nil {
		return nil, err
	}
	rows, err := m.fetch(ctx, m.reader().WhereEq(m.pk, id).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// FindAll returns the matching rows. A zero limit returns every row.
func (m *Model[T]) FindAll(ctx context.Context, limit, offset uint64) ([]T, error) {
	b := m.reader().Limit(limit).Offset(offset)
	if m.pk != "" && (limit > 0 || offset > 0) {
		b.OrderBy(m.pk)
	}
	return m.fetch(ctx, b)
}

// FindMany returns the rows whose primary key is one of ids. An empty ids
// returns no rows without a round trip.
func (m *Model[T]) FindMany(ctx context.Context, ids []any) ([]T, error) {
	if err := m.requirePK(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		m.resetScope()
		return nil, nil
	}
	return m.fetch(ctx, m.reader().WhereIn(m.pk, ids))
}

// FindColumn returns the values of a single column across the matching rows.
func (m *Model[T]) FindColumn(ctx context.Context, column string) ([]any, error) {
	column = strings.TrimSpace(column)
	if column == "" || strings.ContainsAny(column, ", ") {
		m.resetScope()
		return nil, fmt.Errorf("%w: %q", ErrSingleColumn, column)
	}
	res, err := m.reader().Select(column).Get(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := res.ResultRows()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = row[0]
	}
	return out, nil
}

// First returns the first matching row ordered by primary key.
func (m *Model[T]) First(ctx context.Context) (*T, error) {
	b := m.reader().Limit(1)
	if m.pk != "" {
		b.OrderBy(m.pk)
	}
	rows, err := m.fetch(ctx, b)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// CountAllResults counts the matching rows.
func (m *Model[T]) CountAllResults(ctx context.Context) (int64, error) {
	return m.reader().CountAllResults(ctx)
}

// Insert writes entity and returns its primary key. A zero primary key is
// left to the database: PostgreSQL reads it back with RETURNING, the other
// vendors through the connection's insert id. A supplied key is returned as
// is, or as 0 when it is not an integer.
func (m *Model[T]) Insert(ctx context.Context, entity *T) (int64, error) {
	values, err := m.meta.Values(entity, true)
	if err != nil {
		return 0, err
	}
	if v, ok := values[m.deleted]; ok && isNil(v) {
		delete(values, m.deleted)
	}
	if len(values) == 0 {
		return 0, ErrNoData
	}

	if key, ok := values[m.pk]; ok && m.pk != "" {
		if _, err := m.conn.Table(m.table).Insert(ctx, values); err != nil {
			return 0, err
		}
		return keyInt64(key), nil
	}

	if m.conn.Vendor() == types.PostgreSQL {
		if m.pk == "" {
			_, err := m.conn.Table(m.table).Insert(ctx, values)
			return 0, err
		}
		res, err := m.conn.Table(m.table).InsertReturning(ctx, values, m.pk)
		if err != nil {
			return 0, err
		}
		row, err := res.FirstRow()
		if err != nil {
			return 0, err
		}
		return keyInt64(row[m.pk]), nil
	}

	if _, err := m.conn.Table(m.table).Insert(ctx, values); err != nil {
		return 0, err
	}
	return m.conn.InsertID(ctx)
}

// Update writes the values of entity to the row with primary key id and
// returns the number of rows changed. The soft-delete field is never written;
// use Delete and Restore.
func (m *Model[T]) Update(ctx context.Context, id any, entity *T) (int64, error) {
	if err := m.requirePK(); err != nil {
		return 0, err
	}
	values, err := m.meta.Values(entity, false)
	if err != nil {
		return 0, err
	}
	delete(values, m.pk)
	delete(values, m.deleted)
	if len(values) == 0 {
		return 0, ErrNoData
	}
	res, err := m.builder().WhereEq(m.pk, id).Update(ctx, values)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// Delete removes the rows with the given ids, or the rows matching the
// model's conditions when ids is nil. ids may be a single value or a slice.
//
// With soft deletes on and purge false, rows are stamped with the current
// time instead; rows already deleted keep their original stamp.
func (m *Model[T]) Delete(ctx context.Context, ids any, purge bool) (int64, error) {
	b := m.builder()
	if ids != nil {
		if err := m.requirePK(); err != nil {
			return 0, err
		}
		b.WhereIn(m.pk, ids)
	} else if len(m.conds) == 0 {
		return 0, ErrUnsafeDelete
	}

	var (
		res *database.Result
		err error
	)
	if m.deleted != "" && !purge {
		res, err = b.WhereNull(m.deleted).Update(ctx, map[string]any{m.deleted: m.now().UTC()})
	} else {
		res, err = b.Delete(ctx)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// PurgeDeleted permanently removes every soft-deleted row. It does nothing
// when soft deletes are off.
func (m *Model[T]) PurgeDeleted(ctx context.Context) (int64, error) {
	if m.deleted == "" {
		return 0, nil
	}
	res, err := m.conn.Table(m.table).WhereNotNull(m.deleted).Delete(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// Restore clears the deletion stamp of the rows with the given ids.
func (m *Model[T]) Restore(ctx context.Context, ids any) (int64, error) {
	if m.deleted == "" {
		return 0, nil
	}
	if err := m.requirePK(); err != nil {
		return 0, err
	}
	res, err := m.builder().
		WhereIn(m.pk, ids).
		WhereNotNull(m.deleted).
		Update(ctx, map[string]any{m.deleted: nil})
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// keyInt64 converts an integer key to int64; other kinds yield 0.
func keyInt64(v any) int64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	}
	return 0
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
