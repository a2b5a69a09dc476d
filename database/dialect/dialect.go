// Package dialect describes the per-backend SQL variations the connection core
// depends on: placeholder syntax, identifier quoting, literal escaping and the
// handful of backend-specific statements used for introspection.
//
// A Dialect is plain configuration. Connections copy it at construction and
// never mutate it afterwards, so all methods are safe for concurrent use.
package dialect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/squirrel"
)

// Style names a placeholder syntax.
type Style string

const (
	// StyleQuestion uses positional ? markers (MySQL, SQLite).
	StyleQuestion Style = "question"
	// StyleDollar uses numbered $1, $2 markers (PostgreSQL).
	StyleDollar Style = "dollar"
	// StyleColon uses numbered :1, :2 markers (Oracle).
	StyleColon Style = "colon"
	// StyleAtP uses numbered @p1, @p2 markers (SQL Server).
	StyleAtP Style = "atp"
)

const defaultLikeEscapeChar = "!"

// writeTypePattern matches statements that modify data or schema.
var writeTypePattern = regexp.MustCompile(`(?is)^\s*"?(SET|INSERT|UPDATE|DELETE|REPLACE|CREATE|DROP|TRUNCATE|LOAD|COPY|ALTER|RENAME|GRANT|REVOKE|LOCK|UNLOCK|REINDEX|MERGE)\s`)

// aliasPattern splits "expr AS alias" case-insensitively.
var aliasPattern = regexp.MustCompile(`(?i)^(.+?)\s+AS\s+(.+)$`)

// namedMarkerPattern matches :name: bind markers.
var namedMarkerPattern = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*):`)

// Dialect holds the SQL syntax variations of one backend.
type Dialect struct {
	// Name is a human readable backend name used in logs.
	Name string
	// Style is the placeholder syntax the driver expects.
	Style Style
	// OpenQuote and CloseQuote surround protected identifiers.
	OpenQuote  string
	CloseQuote string
	// LikeEscapeChar escapes % and _ inside LIKE patterns.
	LikeEscapeChar string
	// BackslashEscapes reports whether the backend treats \ as an escape inside literals.
	BackslashEscapes bool
	// TrueLiteral and FalseLiteral render booleans in compiled SQL.
	TrueLiteral  string
	FalseLiteral string
	// VersionSQL returns the server version as a single row, single column.
	VersionSQL string
}

// MySQL returns the MySQL/MariaDB dialect.
func MySQL() *Dialect {
	return &Dialect{
		Name:             "MySQL",
		Style:            StyleQuestion,
		OpenQuote:        "`",
		CloseQuote:       "`",
		LikeEscapeChar:   defaultLikeEscapeChar,
		BackslashEscapes: true,
		TrueLiteral:      "1",
		FalseLiteral:     "0",
		VersionSQL:       "SELECT VERSION()",
	}
}

// Postgres returns the PostgreSQL dialect.
func Postgres() *Dialect {
	return &Dialect{
		Name:           "PostgreSQL",
		Style:          StyleDollar,
		OpenQuote:      `"`,
		CloseQuote:     `"`,
		LikeEscapeChar: defaultLikeEscapeChar,
		TrueLiteral:    "TRUE",
		FalseLiteral:   "FALSE",
		VersionSQL:     "SHOW server_version",
	}
}

// Oracle returns the Oracle dialect.
func Oracle() *Dialect {
	return &Dialect{
		Name:           "Oracle",
		Style:          StyleColon,
		OpenQuote:      `"`,
		CloseQuote:     `"`,
		LikeEscapeChar: defaultLikeEscapeChar,
		TrueLiteral:    "1",
		FalseLiteral:   "0",
		VersionSQL:     "SELECT version FROM product_component_version WHERE ROWNUM = 1",
	}
}

// SQLite returns the SQLite dialect.
func SQLite() *Dialect {
	return &Dialect{
		Name:           "SQLite",
		Style:          StyleQuestion,
		OpenQuote:      "`",
		CloseQuote:     "`",
		LikeEscapeChar: defaultLikeEscapeChar,
		TrueLiteral:    "1",
		FalseLiteral:   "0",
		VersionSQL:     "SELECT sqlite_version()",
	}
}

// SQLServer returns the Microsoft SQL Server dialect.
func SQLServer() *Dialect {
	return &Dialect{
		Name:           "SQLServer",
		Style:          StyleAtP,
		OpenQuote:      `"`,
		CloseQuote:     `"`,
		LikeEscapeChar: defaultLikeEscapeChar,
		TrueLiteral:    "1",
		FalseLiteral:   "0",
		VersionSQL:     "SELECT @@VERSION",
	}
}

// ParseStyle converts a configuration value into a Style.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case StyleQuestion:
		return StyleQuestion, nil
	case StyleDollar:
		return StyleDollar, nil
	case StyleColon:
		return StyleColon, nil
	case StyleAtP:
		return StyleAtP, nil
	default:
		return "", fmt.Errorf("unknown placeholder style %q (supported: question, dollar, colon, atp)", s)
	}
}

// Format returns the squirrel placeholder format for the style.
func (s Style) Format() squirrel.PlaceholderFormat {
	switch s {
	case StyleDollar:
		return squirrel.Dollar
	case StyleColon:
		return squirrel.Colon
	case StyleAtP:
		return squirrel.AtP
	default:
		return squirrel.Question
	}
}

// Clone returns a copy that can be customized without touching the receiver.
func (d *Dialect) Clone() *Dialect {
	c := *d
	return &c
}

// WithStyle returns a copy using the given placeholder style.
func (d *Dialect) WithStyle(s Style) *Dialect {
	c := d.Clone()
	c.Style = s
	return c
}

// WithQuotes returns a copy using the given identifier quote characters.
// An empty closeQuote reuses openQuote.
func (d *Dialect) WithQuotes(openQuote, closeQuote string) *Dialect {
	if closeQuote == "" {
		closeQuote = openQuote
	}
	c := d.Clone()
	c.OpenQuote = openQuote
	c.CloseQuote = closeQuote
	return c
}

// IsWriteType reports whether sql modifies data or schema, judged by its leading keyword.
func IsWriteType(sql string) bool {
	return writeTypePattern.MatchString(sql)
}

// ReplacePlaceholders rewrites positional ? markers into the dialect's style.
// Question marks inside quoted literals or quoted identifiers are preserved
// and an unquoted ?? becomes a literal ? in every style.
func (d *Dialect) ReplacePlaceholders(sql string) (string, error) {
	if d.Style == StyleQuestion || d.Style == "" {
		return d.collapseEscapedMarks(sql), nil
	}

	// squirrel treats ?? as a literal ?, so quoted question marks are doubled first.
	var b strings.Builder
	b.Grow(len(sql) + 8)
	d.scan(sql, func(r rune, quoted bool) {
		if r == '?' && quoted {
			b.WriteString("??")
			return
		}
		b.WriteRune(r)
	})

	return d.Style.Format().ReplacePlaceholders(b.String())
}

// collapseEscapedMarks rewrites each unquoted ?? to ?.
func (d *Dialect) collapseEscapedMarks(sql string) string {
	if !strings.Contains(sql, "??") {
		return sql
	}
	var b strings.Builder
	b.Grow(len(sql))
	pending := false
	d.scan(sql, func(r rune, quoted bool) {
		if r == '?' && !quoted {
			if pending {
				pending = false
				return
			}
			pending = true
			b.WriteRune(r)
			return
		}
		pending = false
		b.WriteRune(r)
	})
	return b.String()
}

// ReplaceNamed rewrites each :name: marker outside quoted text with the
// result of replace. Markers for which replace reports false are kept.
func (d *Dialect) ReplaceNamed(sql string, replace func(name string) (string, bool)) string {
	if !strings.Contains(sql, ":") {
		return sql
	}

	var (
		out     strings.Builder
		segment strings.Builder
		inQuote bool
	)
	flush := func() {
		if inQuote {
			out.WriteString(segment.String())
		} else {
			out.WriteString(namedMarkerPattern.ReplaceAllStringFunc(segment.String(), func(m string) string {
				if r, ok := replace(m[1 : len(m)-1]); ok {
					return r
				}
				return m
			}))
		}
		segment.Reset()
	}

	out.Grow(len(sql))
	d.scan(sql, func(r rune, quoted bool) {
		if quoted != inQuote {
			flush()
			inQuote = quoted
		}
		segment.WriteRune(r)
	})
	flush()
	return out.String()
}

// CountPlaceholders returns the number of ? bind markers outside quoted text.
func (d *Dialect) CountPlaceholders(sql string) int {
	count := 0
	var prev rune
	d.scan(sql, func(r rune, quoted bool) {
		if quoted {
			prev = 0
			return
		}
		if r == '?' {
			if prev == '?' {
				// ?? is an escaped literal question mark
				count--
				prev = 0
				return
			}
			count++
		}
		prev = r
	})
	return count
}

// CompileBinds replaces each ? marker outside quoted text with the next bind.
// Binds are rendered with Literal when escape is set and verbatim otherwise.
// A doubled ?? becomes a literal ?. Markers beyond len(binds) are kept.
func (d *Dialect) CompileBinds(sql string, binds []any, escape bool) string {
	if len(binds) == 0 {
		return sql
	}

	type cell struct {
		r      rune
		quoted bool
	}
	cells := make([]cell, 0, len(sql))
	d.scan(sql, func(r rune, quoted bool) {
		cells = append(cells, cell{r, quoted})
	})

	var b strings.Builder
	b.Grow(len(sql) + 16*len(binds))
	next := 0
	for i := 0; i < len(cells); i++ {
		c := cells[i]
		if c.r != '?' || c.quoted {
			b.WriteRune(c.r)
			continue
		}
		if i+1 < len(cells) && cells[i+1].r == '?' && !cells[i+1].quoted {
			b.WriteRune('?')
			i++
			continue
		}
		if next >= len(binds) {
			b.WriteRune('?')
			continue
		}
		if escape || binds[next] == nil {
			b.WriteString(d.Literal(binds[next]))
		} else {
			b.WriteString(fmt.Sprint(binds[next]))
		}
		next++
	}
	return b.String()
}

// scan walks sql rune by rune, reporting whether each rune sits inside a
// quoted literal or a quoted identifier.
func (d *Dialect) scan(sql string, visit func(r rune, quoted bool)) {
	var quote rune
	escaped := false

	for _, r := range sql {
		if quote == 0 {
			switch {
			case r == '\'' || r == '"' || r == '`':
				quote = r
				visit(r, true)
			case d.OpenQuote == "[" && r == '[':
				quote = ']'
				visit(r, true)
			default:
				visit(r, false)
			}
			continue
		}

		visit(r, true)

		if escaped {
			escaped = false
			continue
		}
		if r == '\\' && quote == '\'' && d.BackslashEscapes {
			escaped = true
			continue
		}
		if r == quote {
			// Doubled quotes re-open immediately; treating them as close+open is equivalent.
			quote = 0
		}
	}
}
