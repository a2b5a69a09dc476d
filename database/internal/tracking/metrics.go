package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	dbMeterName = "go-bricks-dbcore/database"

	metricDBCalls      = "db.client.calls"
	metricDBDuration   = "db.client.operation.duration"
	metricRowsAffected = "db.rows.affected"

	metricPoolInUse = "db.client.connection.in_use"
	metricPoolIdle  = "db.client.connection.idle"
	metricPoolMax   = "db.client.connection.max"

	attrDBSystem    = "db.system"
	attrDBOperation = "db.operation.name"
	attrDBTable     = "db.sql.table"
	attrConnection  = "db.client.connection.id"

	unknownTable = "unknown"
)

var (
	dbMeter     metric.Meter
	meterOnce   sync.Once
	meterInitMu sync.Mutex

	dbCallsCounter        metric.Int64Counter
	dbDurationHistogram   metric.Float64Histogram
	dbRowsAffectedCounter metric.Int64Counter
)

// logMetricError reports instrument failures on stderr. Metrics never fail an operation.
func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize metric %s: %v\n", metricName, err)
	}
}

func initDBMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if dbMeter != nil {
		return
	}
	dbMeter = otel.Meter(dbMeterName)

	var err error
	dbCallsCounter, err = dbMeter.Int64Counter(
		metricDBCalls,
		metric.WithDescription("Total number of database client calls"),
	)
	logMetricError(metricDBCalls, err)

	dbDurationHistogram, err = dbMeter.Float64Histogram(
		metricDBDuration,
		metric.WithDescription("Duration of database operations in milliseconds"),
		metric.WithUnit("ms"),
	)
	logMetricError(metricDBDuration, err)

	dbRowsAffectedCounter, err = dbMeter.Int64Counter(
		metricRowsAffected,
		metric.WithDescription("Number of rows affected by database operations"),
	)
	logMetricError(metricRowsAffected, err)
}

func getDBMeter() metric.Meter {
	meterOnce.Do(initDBMeter)
	return dbMeter
}

// recordDBMetrics records the call counter, the duration histogram and, for
// successful writes, the rows affected counter. sql.ErrNoRows is not an error.
func recordDBMetrics(ctx context.Context, tc *Context, query string, duration time.Duration, rowsAffected int64, err error) {
	if getDBMeter() == nil {
		return
	}

	isError := err != nil && !errors.Is(err, sql.ErrNoRows)
	common := []attribute.KeyValue{
		attribute.String(attrDBSystem, normalizeDBVendor(tc.Vendor)),
		attribute.String(attrDBOperation, extractDBOperation(query)),
		attribute.String(attrDBTable, extractTableName(query)),
	}

	if dbCallsCounter != nil {
		attrs := make([]attribute.KeyValue, 0, len(common)+1)
		attrs = append(attrs, common...)
		attrs = append(attrs, attribute.Bool("error", isError))
		dbCallsCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if dbDurationHistogram != nil {
		dbDurationHistogram.Record(ctx, float64(duration.Nanoseconds())/1e6, metric.WithAttributes(common...))
	}
	if dbRowsAffectedCounter != nil && rowsAffected > 0 && !isError {
		dbRowsAffectedCounter.Add(ctx, rowsAffected, metric.WithAttributes(common...))
	}
}

// Table name patterns accept an optional schema qualifier and any of the
// supported identifier quotes.
var (
	selectTableRegex = regexp.MustCompile("(?i)FROM\\s+(?:[`\"\\[]?\\w+[`\"\\]]?\\.)?[`\"\\[]?(\\w+)[`\"\\]]?")
	insertTableRegex = regexp.MustCompile("(?i)(?:INSERT|REPLACE)\\s+INTO\\s+(?:[`\"\\[]?\\w+[`\"\\]]?\\.)?[`\"\\[]?(\\w+)[`\"\\]]?")
	updateTableRegex = regexp.MustCompile("(?i)UPDATE\\s+(?:[`\"\\[]?\\w+[`\"\\]]?\\.)?[`\"\\[]?(\\w+)[`\"\\]]?")
	deleteTableRegex = regexp.MustCompile("(?i)DELETE\\s+FROM\\s+(?:[`\"\\[]?\\w+[`\"\\]]?\\.)?[`\"\\[]?(\\w+)[`\"\\]]?")
)

// extractTableName returns the lowercase primary table of a DML query, or
// "unknown". Joins report the first table.
func extractTableName(query string) string {
	query = strings.TrimSpace(strings.TrimPrefix(query, PreparePrefix))
	if query == "" {
		return unknownTable
	}

	var pattern *regexp.Regexp
	switch extractDBOperation(query) {
	case "select":
		pattern = selectTableRegex
	case "insert", "replace":
		pattern = insertTableRegex
	case "update":
		pattern = updateTableRegex
	case "delete":
		pattern = deleteTableRegex
	default:
		return unknownTable
	}

	if m := pattern.FindStringSubmatch(query); len(m) > 1 {
		return strings.ToLower(m[1])
	}
	return unknownTable
}

// RegisterPoolMetrics publishes the pool statistics of one connection as
// observable gauges. The returned function unregisters them.
func RegisterPoolMetrics(stats func() sql.DBStats, vendor, connectionID string) func() {
	noop := func() {}
	meter := getDBMeter()
	if meter == nil || stats == nil {
		return noop
	}

	inUse, err := meter.Int64ObservableGauge(metricPoolInUse, metric.WithDescription("Connections currently in use"))
	logMetricError(metricPoolInUse, err)
	idle, err := meter.Int64ObservableGauge(metricPoolIdle, metric.WithDescription("Idle connections in the pool"))
	logMetricError(metricPoolIdle, err)
	maxOpen, err := meter.Int64ObservableGauge(metricPoolMax, metric.WithDescription("Maximum open connections configured"))
	logMetricError(metricPoolMax, err)
	if inUse == nil || idle == nil || maxOpen == nil {
		return noop
	}

	attrs := metric.WithAttributes(
		attribute.String(attrDBSystem, normalizeDBVendor(vendor)),
		attribute.String(attrConnection, connectionID),
	)
	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(inUse, int64(s.InUse), attrs)
		o.ObserveInt64(idle, int64(s.Idle), attrs)
		o.ObserveInt64(maxOpen, int64(s.MaxOpenConnections), attrs)
		return nil
	}, inUse, idle, maxOpen)
	if err != nil {
		logMetricError("pool_metrics_callback", err)
		return noop
	}

	return func() {
		if err := reg.Unregister(); err != nil {
			logMetricError("pool_metrics_unregister", err)
		}
	}
}
