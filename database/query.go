package database

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gaborage/go-bricks-dbcore/database/dialect"
)

// Query is one SQL statement with its binds, timing and error state.
//
// The finalized SQL is compiled once on first use. After SetDuration the
// statement is frozen: SetQuery, SwapPrefix and SetDuration fail with
// ErrQueryFinalized. Error state may still be recorded.
type Query struct {
	dialect *dialect.Dialect

	original string
	sql      string
	binds    []any
	escape   bool
	swapped  bool
	returns  bool

	compiled   bool
	finalSQL   string
	args       []any
	compileErr error

	start    time.Time
	end      time.Time
	finished bool

	errCode    int
	errMessage string
}

// NewQuery creates an empty query for d. A nil dialect means MySQL.
func NewQuery(d *dialect.Dialect) *Query {
	if d == nil {
		d = dialect.MySQL()
	}
	return &Query{dialect: d, escape: true}
}

// SetQuery sets the SQL template and its binds.
//
// binds may be nil, a []any, a single scalar or a map[string]any. Map binds
// fill :name: markers, which are rewritten to positional ? markers here;
// markers without a map entry are left untouched. With escape false the binds
// are spliced into the SQL text verbatim instead of being sent as arguments.
func (q *Query) SetQuery(sql string, binds any, escape bool) (*Query, error) {
	if q.finished {
		return q, ErrQueryFinalized
	}

	q.original = sql
	q.sql = sql
	q.escape = escape
	q.binds = nil

	switch b := binds.(type) {
	case nil:
	case []any:
		q.binds = append([]any(nil), b...)
	case map[string]any:
		q.sql = q.dialect.ReplaceNamed(sql, func(name string) (string, bool) {
			v, ok := b[name]
			if !ok {
				return "", false
			}
			q.binds = append(q.binds, v)
			return "?", true
		})
	default:
		q.binds = []any{b}
	}

	q.resetCompiled()
	return q, nil
}

// SwapPrefix rewrites identifiers starting with swap to start with orig.
func (q *Query) SwapPrefix(orig, swap string) (*Query, error) {
	if q.finished {
		return q, ErrQueryFinalized
	}
	if swap == "" || orig == swap {
		return q, nil
	}
	pattern := regexp.MustCompile(`(\W)` + regexp.QuoteMeta(swap) + `(\S)`)
	q.sql = pattern.ReplaceAllString(q.sql, "${1}"+strings.ReplaceAll(orig, "$", "$$")+"${2}")
	q.swapped = true
	q.resetCompiled()
	return q, nil
}

// clone returns an unfinalized copy carrying the same statement and binds.
// Error state and timing are not copied.
func (q *Query) clone() *Query {
	return &Query{
		dialect:  q.dialect,
		original: q.original,
		sql:      q.sql,
		binds:    append([]any(nil), q.binds...),
		escape:   q.escape,
		swapped:  q.swapped,
		returns:  q.returns,
	}
}

// withBinds returns an unfinalized copy of q sending binds as driver arguments.
func (q *Query) withBinds(binds []any) *Query {
	c := q.clone()
	c.binds = append([]any(nil), binds...)
	c.escape = true
	return c
}

func (q *Query) resetCompiled() {
	q.compiled = false
	q.finalSQL = ""
	q.args = nil
	q.compileErr = nil
}

func (q *Query) compile() error {
	if q.compiled {
		return q.compileErr
	}
	q.compiled = true
	if !q.escape {
		q.finalSQL, q.compileErr = q.dialect.ReplacePlaceholders(q.dialect.CompileBinds(q.sql, q.binds, false))
		return q.compileErr
	}
	q.finalSQL, q.compileErr = q.dialect.ReplacePlaceholders(q.sql)
	q.args = append([]any(nil), q.binds...)
	return q.compileErr
}

// SQL returns the template as passed to SetQuery.
func (q *Query) SQL() string { return q.original }

// Binds returns the positional binds.
func (q *Query) Binds() []any { return q.binds }

// Escaped reports whether binds are sent as driver arguments.
func (q *Query) Escaped() bool { return q.escape }

// FinalSQL returns the statement sent to the driver, with the dialect's
// placeholder markers and the prefix swap applied.
func (q *Query) FinalSQL() string {
	if err := q.compile(); err != nil {
		return q.sql
	}
	return q.finalSQL
}

// Args returns the driver arguments for FinalSQL. It is empty when binds
// were spliced into the text.
func (q *Query) Args() []any {
	if err := q.compile(); err != nil {
		return nil
	}
	return q.args
}

// DebugSQL returns the statement with binds compiled in as literals.
func (q *Query) DebugSQL() string {
	return q.dialect.CompileBinds(q.sql, q.binds, q.escape)
}

func (q *Query) String() string { return q.DebugSQL() }

// SetDuration records the dispatch window and freezes the query. A zero end
// means now.
func (q *Query) SetDuration(start, end time.Time) error {
	if q.finished {
		return ErrQueryFinalized
	}
	if end.IsZero() {
		end = time.Now()
	}
	_ = q.compile()
	q.start = start
	q.end = end
	q.finished = true
	return nil
}

// Finalized reports whether SetDuration has been called.
func (q *Query) Finalized() bool { return q.finished }

// StartTime returns the dispatch start.
func (q *Query) StartTime() time.Time { return q.start }

// Duration returns the dispatch time, or zero before SetDuration.
func (q *Query) Duration() time.Duration {
	if !q.finished {
		return 0
	}
	return q.end.Sub(q.start)
}

// SetError records the driver error for this dispatch.
func (q *Query) SetError(code int, msg string) *Query {
	q.errCode = code
	q.errMessage = msg
	return q
}

// HasError reports whether SetError recorded a failure.
func (q *Query) HasError() bool { return q.errCode != 0 || q.errMessage != "" }

func (q *Query) ErrorCode() int { return q.errCode }

func (q *Query) ErrorMessage() string { return q.errMessage }

// IsWriteType reports whether the statement modifies data or schema without
// producing rows.
func (q *Query) IsWriteType() bool {
	return !q.returns && dialect.IsWriteType(q.sql)
}

// SetReturnsRows marks a write that yields rows, such as INSERT ... RETURNING,
// so it is dispatched as a read.
func (q *Query) SetReturnsRows(on bool) *Query {
	q.returns = on
	return q
}

// PlaceholderCount returns the number of bind markers in the template.
func (q *Query) PlaceholderCount() int {
	return q.dialect.CountPlaceholders(q.sql)
}

// Validate checks that the template is not blank and that the bind count
// matches the markers when binds are sent as arguments.
func (q *Query) Validate() error {
	if strings.TrimSpace(q.sql) == "" {
		return ErrEmptyQuery
	}
	if n := q.PlaceholderCount(); len(q.binds) > 0 && n != len(q.binds) {
		return fmt.Errorf("query has %d placeholders but %d binds", n, len(q.binds))
	}
	return nil
}
