package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/gaborage/go-bricks-dbcore/database/internal/columns"
	"github.com/gaborage/go-bricks-dbcore/database/types"
)

// ErrUnsafeDelete is returned when a delete would run without conditions.
var ErrUnsafeDelete = errors.New("delete without conditions is not allowed")

// SelectHook rewrites a select immediately before it is compiled. Hooks see
// the builder so they can quote identifiers for its table.
type SelectHook func(b *Builder, sel squirrel.SelectBuilder) squirrel.SelectBuilder

// statements always use ? markers; the dialect rewrites them at dispatch.
var statements = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

// Builder composes single-table statements for a Connection.
//
// It wraps squirrel with the connection's table prefix and identifier
// quoting. Condition methods mutate the builder and return it for chaining.
type Builder struct {
	conn    *Connection
	table   string
	columns []string
	wheres  []squirrel.Sqlizer
	orderBy []string
	limit   uint64
	offset  uint64
	hooks   []SelectHook
}

func newBuilder(c *Connection, table string) *Builder {
	return &Builder{conn: c, table: table}
}

// TableName returns the prefixed, quoted table name.
func (b *Builder) TableName() string {
	return b.conn.ProtectIdentifiers(b.table, true, true)
}

// Column quotes a column name. Qualified names get the table prefix.
func (b *Builder) Column(name string) string {
	return b.conn.ProtectIdentifiers(name, false, true)
}

// QualifiedColumn quotes name qualified by the builder's table.
func (b *Builder) QualifiedColumn(name string) string {
	return b.conn.ProtectIdentifiers(b.table+"."+name, false, true)
}

// Select sets the selected columns. The default is *.
func (b *Builder) Select(cols ...string) *Builder {
	b.columns = append(b.columns, cols...)
	return b
}

// Where adds a raw condition. pred may be a SQL fragment with ? markers or
// any squirrel.Sqlizer.
func (b *Builder) Where(pred any, args ...any) *Builder {
	switch p := pred.(type) {
	case squirrel.Sqlizer:
		b.wheres = append(b.wheres, p)
	case string:
		b.wheres = append(b.wheres, squirrel.Expr(p, args...))
	case map[string]any:
		eq := squirrel.Eq{}
		for k, v := range p {
			eq[b.Column(k)] = v
		}
		b.wheres = append(b.wheres, eq)
	}
	return b
}

// WhereEq adds column = value. A slice value becomes IN and nil becomes IS NULL.
func (b *Builder) WhereEq(column string, value any) *Builder {
	b.wheres = append(b.wheres, squirrel.Eq{b.Column(column): value})
	return b
}

// WhereIn adds column IN (values).
func (b *Builder) WhereIn(column string, values any) *Builder {
	b.wheres = append(b.wheres, squirrel.Eq{b.Column(column): values})
	return b
}

// WhereNull adds column IS NULL.
func (b *Builder) WhereNull(column string) *Builder {
	b.wheres = append(b.wheres, squirrel.Eq{b.Column(column): nil})
	return b
}

// WhereNotNull adds column IS NOT NULL.
func (b *Builder) WhereNotNull(column string) *Builder {
	b.wheres = append(b.wheres, squirrel.NotEq{b.Column(column): nil})
	return b
}

// OrderBy adds ordering terms such as "name" or "id DESC".
func (b *Builder) OrderBy(terms ...string) *Builder {
	for _, t := range terms {
		b.orderBy = append(b.orderBy, b.orderTerm(t))
	}
	return b
}

func (b *Builder) orderTerm(term string) string {
	fields := strings.Fields(term)
	if len(fields) == 2 {
		dir := strings.ToUpper(fields[1])
		if dir == "ASC" || dir == "DESC" {
			return b.Column(fields[0]) + " " + dir
		}
	}
	return b.Column(term)
}

// Limit caps the number of rows returned.
func (b *Builder) Limit(n uint64) *Builder {
	b.limit = n
	return b
}

// Offset skips rows.
func (b *Builder) Offset(n uint64) *Builder {
	b.offset = n
	return b
}

// Use registers hooks applied to every select compiled by the builder.
func (b *Builder) Use(hooks ...SelectHook) *Builder {
	b.hooks = append(b.hooks, hooks...)
	return b
}

func (b *Builder) baseSelect(cols ...string) squirrel.SelectBuilder {
	sel := statements.Select(cols...).From(b.TableName())
	for _, w := range b.wheres {
		sel = sel.Where(w)
	}
	for _, h := range b.hooks {
		sel = h(b, sel)
	}
	return sel
}

// SelectQuery compiles the select.
func (b *Builder) SelectQuery() (*Query, error) {
	cols := []string{"*"}
	if len(b.columns) > 0 {
		cols = make([]string, len(b.columns))
		for i, c := range b.columns {
			cols[i] = b.Column(c)
		}
	}

	sel := b.baseSelect(cols...)
	orderBy := b.orderBy
	if len(orderBy) == 0 && b.conn.Vendor() == types.SQLServer && (b.limit > 0 || b.offset > 0) {
		orderBy = []string{"(SELECT NULL)"}
	}
	if len(orderBy) > 0 {
		sel = sel.OrderBy(orderBy...)
	}
	sel = b.paginate(sel)
	return b.toQuery(sel)
}

func (b *Builder) paginate(sel squirrel.SelectBuilder) squirrel.SelectBuilder {
	switch b.conn.Vendor() {
	case types.Oracle, types.SQLServer:
		if clause := paginationClause(b.limit, b.offset, b.conn.Vendor() == types.SQLServer); clause != "" {
			sel = sel.Suffix(clause)
		}
	default:
		if b.limit > 0 {
			sel = sel.Limit(b.limit)
		}
		if b.offset > 0 {
			sel = sel.Offset(b.offset)
		}
	}
	return sel
}

// paginationClause builds an OFFSET ... ROWS FETCH NEXT ... ROWS ONLY suffix.
// SQL Server requires the OFFSET part whenever FETCH is present.
func paginationClause(limit, offset uint64, offsetRequired bool) string {
	if limit == 0 && offset == 0 {
		return ""
	}
	parts := make([]string, 0, 2)
	if offset > 0 || offsetRequired {
		parts = append(parts, fmt.Sprintf("OFFSET %d ROWS", offset))
	}
	if limit > 0 {
		parts = append(parts, fmt.Sprintf("FETCH NEXT %d ROWS ONLY", limit))
	}
	return strings.Join(parts, " ")
}

// CountQuery compiles a count over the conditions, ignoring ordering and paging.
func (b *Builder) CountQuery() (*Query, error) {
	return b.toQuery(b.baseSelect("COUNT(*) AS " + b.conn.EscapeIdentifier("numrows")))
}

// InsertQuery compiles an insert of values. Keys are emitted in sorted order.
func (b *Builder) InsertQuery(values map[string]any) (*Query, error) {
	return b.insertQuery(values, nil)
}

func (b *Builder) insertQuery(values map[string]any, returning []string) (*Query, error) {
	if len(values) == 0 {
		return nil, errors.New("insert requires at least one value")
	}
	keys := columns.SortedKeys(values)
	cols := make([]string, len(keys))
	vals := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = b.Column(k)
		vals[i] = values[k]
	}
	ins := statements.Insert(b.TableName()).Columns(cols...).Values(vals...)
	if len(returning) > 0 {
		quoted := make([]string, len(returning))
		for i, r := range returning {
			quoted[i] = b.Column(r)
		}
		ins = ins.Suffix("RETURNING " + strings.Join(quoted, ", "))
	}
	return b.toQuery(ins)
}

// UpdateQuery compiles an update setting values on the rows matching the conditions.
func (b *Builder) UpdateQuery(values map[string]any) (*Query, error) {
	if len(values) == 0 {
		return nil, errors.New("update requires at least one value")
	}
	upd := statements.Update(b.TableName())
	for _, k := range columns.SortedKeys(values) {
		upd = upd.Set(b.Column(k), values[k])
	}
	for _, w := range b.wheres {
		upd = upd.Where(w)
	}
	return b.toQuery(upd)
}

// DeleteQuery compiles a delete of the rows matching the conditions.
func (b *Builder) DeleteQuery() (*Query, error) {
	if len(b.wheres) == 0 {
		return nil, ErrUnsafeDelete
	}
	del := statements.Delete(b.TableName())
	for _, w := range b.wheres {
		del = del.Where(w)
	}
	return b.toQuery(del)
}

func (b *Builder) toQuery(s squirrel.Sqlizer) (*Query, error) {
	sql, args, err := s.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s query: %w", b.table, err)
	}
	return b.conn.NewQuery().SetQuery(sql, args, true)
}

// Get runs the select.
func (b *Builder) Get(ctx context.Context) (*Result, error) {
	q, err := b.SelectQuery()
	if err != nil {
		return nil, err
	}
	return b.conn.Run(ctx, q)
}

// Insert runs an insert of values.
func (b *Builder) Insert(ctx context.Context, values map[string]any) (*Result, error) {
	q, err := b.InsertQuery(values)
	if err != nil {
		return nil, err
	}
	return b.conn.Run(ctx, q)
}

// InsertReturning runs an insert of values and reads cols of the new row back
// through a RETURNING clause (PostgreSQL, SQLite 3.35+).
func (b *Builder) InsertReturning(ctx context.Context, values map[string]any, cols ...string) (*Result, error) {
	if len(cols) == 0 {
		return nil, errors.New("insert returning requires at least one column")
	}
	q, err := b.insertQuery(values, cols)
	if err != nil {
		return nil, err
	}
	return b.conn.Run(ctx, q.SetReturnsRows(true))
}

// Update runs an update of the matching rows.
func (b *Builder) Update(ctx context.Context, values map[string]any) (*Result, error) {
	q, err := b.UpdateQuery(values)
	if err != nil {
		return nil, err
	}
	return b.conn.Run(ctx, q)
}

// Delete runs a delete of the matching rows.
func (b *Builder) Delete(ctx context.Context) (*Result, error) {
	q, err := b.DeleteQuery()
	if err != nil {
		return nil, err
	}
	return b.conn.Run(ctx, q)
}

// CountAllResults counts the matching rows.
func (b *Builder) CountAllResults(ctx context.Context) (int64, error) {
	q, err := b.CountQuery()
	if err != nil {
		return 0, err
	}
	res, err := b.conn.Run(ctx, q)
	if err != nil {
		return 0, err
	}
	row, err := res.RowArray(0)
	if err != nil {
		return 0, err
	}
	if len(row) == 0 {
		return 0, nil
	}
	return toInt64(row[0])
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	default:
		return strconv.ParseInt(fmt.Sprint(v), 10, 64)
	}
}
