package dialect

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const timeLiteralLayout = "2006-01-02 15:04:05"

// EscapeIdentifier quotes a single identifier segment. The wildcard and
// already-quoted segments are returned untouched.
func (d *Dialect) EscapeIdentifier(item string) string {
	item = strings.TrimSpace(item)
	if item == "" || item == "*" || d.OpenQuote == "" {
		return item
	}
	if strings.HasPrefix(item, d.OpenQuote) && strings.HasSuffix(item, d.CloseQuote) && len(item) > 1 {
		return item
	}
	inner := strings.ReplaceAll(item, d.CloseQuote, d.CloseQuote+d.CloseQuote)
	return d.OpenQuote + inner + d.CloseQuote
}

// EscapeIdentifiers quotes every dot separated segment of item.
func (d *Dialect) EscapeIdentifiers(item string) string {
	parts := strings.Split(item, ".")
	for i, p := range parts {
		parts[i] = d.EscapeIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// ProtectIdentifiers prefixes the table segment of item and quotes it.
//
// Accepted shapes are "col", "table.col", "db.table.col", optionally followed
// by an alias ("x AS y" or "x y"). Function calls and literals are returned as
// is. prefixSingle treats a bare name as a table name and prefixes it too.
func (d *Dialect) ProtectIdentifiers(item, prefix string, prefixSingle, protect bool) string {
	item = strings.TrimSpace(item)
	if item == "" || strings.ContainsAny(item, "('") {
		return item
	}

	alias := ""
	if m := aliasPattern.FindStringSubmatch(item); m != nil {
		item, alias = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	} else if i := strings.LastIndex(item, " "); i > 0 {
		item, alias = strings.TrimSpace(item[:i]), strings.TrimSpace(item[i+1:])
	}

	parts := strings.Split(item, ".")
	tableIdx := -1
	switch len(parts) {
	case 1:
		if prefixSingle {
			tableIdx = 0
		}
	case 2:
		tableIdx = 0
	default:
		tableIdx = len(parts) - 2
	}

	if prefix != "" && tableIdx >= 0 {
		unquoted := d.unquote(parts[tableIdx])
		if !strings.HasPrefix(unquoted, prefix) && unquoted != "*" {
			parts[tableIdx] = prefix + unquoted
		}
	}

	if protect {
		for i, p := range parts {
			parts[i] = d.EscapeIdentifier(p)
		}
	}
	out := strings.Join(parts, ".")

	if alias != "" {
		if protect {
			alias = d.EscapeIdentifier(alias)
		}
		out += " " + alias
	}
	return out
}

func (d *Dialect) unquote(s string) string {
	if d.OpenQuote == "" {
		return s
	}
	s = strings.TrimPrefix(s, d.OpenQuote)
	return strings.TrimSuffix(s, d.CloseQuote)
}

// EscapeString escapes s for inclusion inside a single quoted literal.
func (d *Dialect) EscapeString(s string) string {
	if d.BackslashEscapes {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return strings.ReplaceAll(s, "'", "''")
}

// EscapeLikeString escapes s for a LIKE pattern using LikeEscapeChar.
// Callers append LikeEscapeClause to the predicate.
func (d *Dialect) EscapeLikeString(s string) string {
	s = d.EscapeString(s)
	esc := d.LikeEscapeChar
	if esc == "" {
		return s
	}
	s = strings.ReplaceAll(s, esc, esc+esc)
	s = strings.ReplaceAll(s, "%", esc+"%")
	return strings.ReplaceAll(s, "_", esc+"_")
}

// LikeEscapeClause returns the ESCAPE suffix matching EscapeLikeString.
func (d *Dialect) LikeEscapeClause() string {
	if d.LikeEscapeChar == "" {
		return ""
	}
	return fmt.Sprintf(" ESCAPE '%s'", d.LikeEscapeChar)
}

// Literal renders v as a SQL literal suitable for compiled, non-bound SQL.
func (d *Dialect) Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + d.EscapeString(val) + "'"
	case []byte:
		if isPrintable(val) {
			return "'" + d.EscapeString(string(val)) + "'"
		}
		return "X'" + hex.EncodeToString(val) + "'"
	case bool:
		if val {
			return d.TrueLiteral
		}
		return d.FalseLiteral
	case int:
		return strconv.Itoa(val)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return "'" + val.Format(timeLiteralLayout) + "'"
	case *time.Time:
		if val == nil {
			return "NULL"
		}
		return "'" + val.Format(timeLiteralLayout) + "'"
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return "NULL"
		}
		return d.Literal(inner)
	case fmt.Stringer:
		return "'" + d.EscapeString(val.String()) + "'"
	default:
		return "'" + d.EscapeString(fmt.Sprint(val)) + "'"
	}
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' {
			return false
		}
	}
	return true
}
