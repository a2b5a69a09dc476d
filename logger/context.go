package logger

import (
	"context"
	"sync/atomic"
	"time"
)

type dbStatsKey struct{}

// dbStats accumulates database activity for one request or job.
type dbStats struct {
	operations atomic.Int64
	elapsed    atomic.Int64
}

// WithDBCounter returns a context that accumulates the number and total
// duration of database dispatches made with it.
func WithDBCounter(ctx context.Context) context.Context {
	return context.WithValue(ctx, dbStatsKey{}, &dbStats{})
}

func statsFrom(ctx context.Context) *dbStats {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(dbStatsKey{}).(*dbStats)
	return s
}

// IncrementDBCounter counts one database operation. No-op without WithDBCounter.
func IncrementDBCounter(ctx context.Context) {
	if s := statsFrom(ctx); s != nil {
		s.operations.Add(1)
	}
}

// GetDBCounter returns the number of database operations recorded in ctx.
func GetDBCounter(ctx context.Context) int64 {
	if s := statsFrom(ctx); s != nil {
		return s.operations.Load()
	}
	return 0
}

// AddDBElapsed adds d to the database time recorded in ctx.
func AddDBElapsed(ctx context.Context, d time.Duration) {
	if s := statsFrom(ctx); s != nil {
		s.elapsed.Add(int64(d))
	}
}

// GetDBElapsed returns the total database time recorded in ctx.
func GetDBElapsed(ctx context.Context) time.Duration {
	if s := statsFrom(ctx); s != nil {
		return time.Duration(s.elapsed.Load())
	}
	return 0
}
