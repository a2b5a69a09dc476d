package tracking

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/gaborage/go-bricks-dbcore/config"
	"github.com/gaborage/go-bricks-dbcore/logger"
)

const testQuerySelect = "SELECT id, name FROM users WHERE id = ?"

func newBufferContext(t *testing.T, cfg *config.DatabaseConfig) (*Context, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	return &Context{
		Logger:       logger.NewWithWriter(buf, "debug", false, nil),
		Vendor:       config.MySQL,
		ConnectionID: "conn-1",
		Settings:     NewSettings(cfg),
	}, buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	entry := map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func setupTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(original)
	})
	return exporter
}

func spanAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTrackDBOperationNilContextIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		TrackDBOperation(context.Background(), nil, testQuerySelect, nil, time.Now(), 0, nil)
		TrackDBOperation(context.Background(), &Context{}, testQuerySelect, nil, time.Now(), 0, nil)
	})
}

func TestTrackDBOperationLogsDebug(t *testing.T) {
	tc, buf := newBufferContext(t, nil)

	TrackDBOperation(context.Background(), tc, testQuerySelect, []any{1}, time.Now(), 0, nil)

	entry := lastEntry(t, buf)
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "Database operation executed", entry["message"])
	assert.Equal(t, "mysql", entry["vendor"])
	assert.Equal(t, "conn-1", entry["connection_id"])
	assert.Equal(t, testQuerySelect, entry["query"])
	assert.Contains(t, entry, "duration_ms")
	assert.Contains(t, entry, "duration_ns")
	assert.NotContains(t, entry, "args")
}

func TestTrackDBOperationLogsParametersWhenEnabled(t *testing.T) {
	cfg := &config.DatabaseConfig{}
	cfg.Query.Log.Parameters = true
	cfg.Query.Log.MaxLength = 8
	tc, buf := newBufferContext(t, cfg)

	TrackDBOperation(context.Background(), tc, "UPDATE t SET a = ?", []any{"a very long value", []byte{1, 2}}, time.Now(), 3, nil)

	entry := lastEntry(t, buf)
	assert.Equal(t, []any{"a ver...", "<bytes len=2>"}, entry["args"])
	assert.Equal(t, "UPDAT...", entry["query"])
	assert.EqualValues(t, 3, entry["rows_affected"])
}

func TestTrackDBOperationErrorLevels(t *testing.T) {
	tc, buf := newBufferContext(t, nil)

	TrackDBOperation(context.Background(), tc, testQuerySelect, nil, time.Now(), 0, errors.New("table missing"))
	entry := lastEntry(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "table missing", entry["error"])

	TrackDBOperation(context.Background(), tc, testQuerySelect, nil, time.Now(), 0, sql.ErrNoRows)
	entry = lastEntry(t, buf)
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "Database operation returned no rows", entry["message"])
}

func TestTrackDBOperationSlowQuery(t *testing.T) {
	cfg := &config.DatabaseConfig{}
	cfg.Query.Slow.Threshold = time.Millisecond
	tc, buf := newBufferContext(t, cfg)

	TrackDBOperation(context.Background(), tc, testQuerySelect, nil, time.Now().Add(-50*time.Millisecond), 0, nil)

	entry := lastEntry(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Contains(t, entry["message"], "Slow database operation detected")
}

func TestTrackDBOperationSlowQueryDisabled(t *testing.T) {
	cfg := &config.DatabaseConfig{}
	tc, buf := newBufferContext(t, cfg)
	require.False(t, tc.Settings.SlowQueryEnabled())

	TrackDBOperation(context.Background(), tc, testQuerySelect, nil, time.Now().Add(-time.Second), 0, nil)

	assert.Equal(t, "debug", lastEntry(t, buf)["level"])
}

func TestTrackDBOperationUpdatesRequestCounters(t *testing.T) {
	tc, _ := newBufferContext(t, nil)
	ctx := logger.WithDBCounter(context.Background())

	TrackDBOperation(ctx, tc, testQuerySelect, nil, time.Now().Add(-5*time.Millisecond), 0, nil)
	TrackDBOperation(ctx, tc, testQuerySelect, nil, time.Now(), 0, nil)

	assert.Equal(t, int64(2), logger.GetDBCounter(ctx))
	assert.GreaterOrEqual(t, logger.GetDBElapsed(ctx), 5*time.Millisecond)
}

func TestTrackDBOperationCreatesSpan(t *testing.T) {
	exporter := setupTracer(t)
	tc, _ := newBufferContext(t, nil)
	tc.Vendor = config.SQLServer

	TrackDBOperation(context.Background(), tc, "INSERT INTO users (name) VALUES (?)", nil, time.Now(), 1, nil)
	TrackDBOperation(context.Background(), tc, OpCommit, nil, time.Now(), 0, errors.New("deadlock"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	insert := spans[0]
	assert.Equal(t, "db.insert", insert.Name)
	system, ok := spanAttr(insert.Attributes, "db.system")
	require.True(t, ok)
	assert.Equal(t, "mssql", system.AsString())
	rows, ok := spanAttr(insert.Attributes, "db.rows_affected")
	require.True(t, ok)
	assert.Equal(t, int64(1), rows.AsInt64())

	commit := spans[1]
	assert.Equal(t, "db.commit", commit.Name)
	assert.Equal(t, codes.Error, commit.Status.Code)
	assert.Equal(t, "deadlock", commit.Status.Description)
}

func TestTrackDBOperationPrepareSpanStripsPrefix(t *testing.T) {
	exporter := setupTracer(t)
	tc, _ := newBufferContext(t, nil)

	TrackDBOperation(context.Background(), tc, PreparePrefix+testQuerySelect, nil, time.Now(), 0, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.prepare", spans[0].Name)
	text, ok := spanAttr(spans[0].Attributes, "db.query.text")
	require.True(t, ok)
	assert.Equal(t, testQuerySelect, text.AsString())
}

func TestExtractDBOperation(t *testing.T) {
	tests := []struct {
		query    string
		expected string
	}{
		{"", "query"},
		{"  select 1", "select"},
		{"INSERT INTO t VALUES (1)", "insert"},
		{"REPLACE INTO t VALUES (1)", "replace"},
		{"update t set a = 1", "update"},
		{"DELETE FROM t", "delete"},
		{"MERGE INTO t USING s ON (1=1)", "merge"},
		{"WITH x AS (SELECT 1) SELECT * FROM x", "with"},
		{"(SELECT 1) UNION (SELECT 2)", "select"},
		{"BEGIN", "begin"},
		{"COMMIT", "commit"},
		{"ROLLBACK", "rollback"},
		{"PREPARE: SELECT 1", "prepare"},
		{"EXPLAIN SELECT 1", "query"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractDBOperation(tt.query))
		})
	}
}

func TestNormalizeDBVendor(t *testing.T) {
	assert.Equal(t, "postgresql", normalizeDBVendor("postgresql"))
	assert.Equal(t, "postgresql", normalizeDBVendor("pgx"))
	assert.Equal(t, "mssql", normalizeDBVendor("sqlsrv"))
	assert.Equal(t, "sqlite", normalizeDBVendor("SQLite3"))
	assert.Equal(t, "mysql", normalizeDBVendor("mysql"))
	assert.Equal(t, "oracle", normalizeDBVendor("oracle"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 0))
	assert.Equal(t, "abc", TruncateString("abc", 3))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
	assert.Equal(t, "a...", TruncateString("abcdef", 4))
	assert.Equal(t, "héllo", TruncateString("héllo", 5))
}

func TestSanitizeArgs(t *testing.T) {
	assert.Nil(t, SanitizeArgs(nil, 10))
	got := SanitizeArgs([]any{nil, 42, "short", []byte("xyz")}, 10)
	assert.Equal(t, []any{nil, "42", "short", "<bytes len=3>"}, got)
}

func TestNewSettings(t *testing.T) {
	s := NewSettings(nil)
	assert.Equal(t, DefaultSlowQueryThreshold, s.SlowQueryThreshold())
	assert.True(t, s.SlowQueryEnabled())
	assert.Equal(t, DefaultMaxQueryLength, s.MaxQueryLength())
	assert.False(t, s.LogQueryParameters())

	cfg := &config.DatabaseConfig{}
	cfg.Query.Slow.Enabled = true
	cfg.Query.Slow.Threshold = time.Second
	cfg.Query.Log.MaxLength = 50
	cfg.Query.Log.Parameters = true
	s = NewSettings(cfg)
	assert.Equal(t, time.Second, s.SlowQueryThreshold())
	assert.True(t, s.SlowQueryEnabled())
	assert.Equal(t, 50, s.MaxQueryLength())
	assert.True(t, s.LogQueryParameters())
}
