package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-bricks-dbcore/logger"
)

const (
	// Default operation type for unidentified queries
	defaultOperation = "query"

	// PreparePrefix marks a prepare call in the query passed to TrackDBOperation.
	PreparePrefix = "PREPARE: "

	// Transaction markers passed as the query of transaction boundaries.
	OpBegin    = "BEGIN"
	OpCommit   = "COMMIT"
	OpRollback = "ROLLBACK"

	dbTracerName      = "go-bricks-dbcore/database"
	maxDBQueryAttrLen = 2000
)

// TrackDBOperation records a completed database operation.
//
// It is a no-op if tc or its Logger is nil. The duration feeds the request
// counters in ctx, a client span and the call metrics. The log line carries
// the query clamped to the configured length and, when enabled, sanitized
// parameters. Errors log at error level (sql.ErrNoRows at debug), slow
// operations at warn, everything else at debug.
//
// rowsAffected is the row count of write operations; pass 0 for reads.
func TrackDBOperation(ctx context.Context, tc *Context, query string, args []any, start time.Time, rowsAffected int64, err error) {
	if tc == nil || tc.Logger == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	elapsed := time.Since(start)

	logger.IncrementDBCounter(ctx)
	logger.AddDBElapsed(ctx, elapsed)

	createDBSpan(ctx, tc, query, start, rowsAffected, err)
	recordDBMetrics(ctx, tc, query, elapsed, rowsAffected, err)

	fields := map[string]any{
		"vendor":      tc.Vendor,
		"duration_ms": elapsed.Milliseconds(),
		"duration_ns": elapsed.Nanoseconds(),
		"query":       TruncateString(query, tc.Settings.MaxQueryLength()),
	}
	if tc.ConnectionID != "" {
		fields["connection_id"] = tc.ConnectionID
	}
	if rowsAffected > 0 {
		fields["rows_affected"] = rowsAffected
	}
	if tc.Settings.LogQueryParameters() && len(args) > 0 {
		fields["args"] = SanitizeArgs(args, tc.Settings.MaxQueryLength())
	}

	logEvent := tc.Logger.WithContext(ctx).WithFields(fields)

	switch {
	case err != nil && errors.Is(err, sql.ErrNoRows):
		logEvent.Debug().Msg("Database operation returned no rows")
	case err != nil:
		logEvent.Error().Err(err).Msg("Database operation error")
	case tc.Settings.SlowQueryEnabled() && elapsed > tc.Settings.SlowQueryThreshold():
		logEvent.Warn().Msgf("Slow database operation detected (%s)", elapsed)
	default:
		logEvent.Debug().Msg("Database operation executed")
	}
}

// TruncateString truncates value to at most maxLen runes, ending in "..."
// when there is room for it. maxLen <= 0 disables truncation.
func TruncateString(value string, maxLen int) string {
	if maxLen <= 0 {
		return value
	}
	r := []rune(value)
	if len(r) <= maxLen {
		return value
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// SanitizeArgs returns a copy of args suitable for logging. Strings and
// formatted values are truncated to maxLen; byte slices become "<bytes len=N>".
func SanitizeArgs(args []any, maxLen int) []any {
	if len(args) == 0 {
		return nil
	}
	sanitized := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case string:
			sanitized[i] = TruncateString(v, maxLen)
		case []byte:
			sanitized[i] = fmt.Sprintf("<bytes len=%d>", len(v))
		case nil:
			sanitized[i] = nil
		default:
			sanitized[i] = TruncateString(fmt.Sprintf("%v", v), maxLen)
		}
	}
	return sanitized
}

// createDBSpan emits a client span covering start..now.
func createDBSpan(ctx context.Context, tc *Context, query string, start time.Time, rowsAffected int64, err error) {
	tracer := otel.Tracer(dbTracerName)

	operation := extractDBOperation(query)
	_, span := tracer.Start(ctx, "db."+operation,
		trace.WithTimestamp(start),
		trace.WithSpanKind(trace.SpanKindClient),
	)

	attrs := []attribute.KeyValue{
		attribute.String("db.system", normalizeDBVendor(tc.Vendor)),
		semconv.DBQueryText(TruncateString(strings.TrimPrefix(query, PreparePrefix), maxDBQueryAttrLen)),
	}
	if operation != defaultOperation {
		attrs = append(attrs, semconv.DBOperationName(operation))
	}
	if rowsAffected > 0 {
		attrs = append(attrs, attribute.Int64("db.rows_affected", rowsAffected))
	}
	span.SetAttributes(attrs...)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}

// extractDBOperation returns the lowercase operation name of query.
func extractDBOperation(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return defaultOperation
	}

	switch {
	case strings.HasPrefix(query, strings.TrimSpace(PreparePrefix)):
		return "prepare"
	case query == OpBegin:
		return "begin"
	case query == OpCommit:
		return "commit"
	case query == OpRollback:
		return "rollback"
	}

	parts := strings.Fields(query)
	operation := strings.ToLower(strings.TrimLeft(parts[0], `"(`))
	switch operation {
	case "select", "insert", "update", "delete", "replace", "merge",
		"create", "drop", "alter", "truncate", "set", "show", "with":
		return operation
	default:
		return defaultOperation
	}
}

// normalizeDBVendor maps vendor ids to OTel db.system values.
func normalizeDBVendor(vendor string) string {
	switch v := strings.ToLower(vendor); v {
	case "postgres", "postgresql", "pgx":
		return "postgresql"
	case "sqlsrv", "mssql", "sqlserver":
		return "mssql"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "mysql", "mariadb":
		return "mysql"
	default:
		return v
	}
}
