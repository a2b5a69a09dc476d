package database

import "sync"

// QueryLog keeps the most recent queries of one or more connections in a
// bounded ring. Attach it with Connection.AddQueryListener(log.Record).
type QueryLog struct {
	mu    sync.Mutex
	items []*Query
	next  int
	full  bool
}

// NewQueryLog returns a log holding up to capacity queries. A capacity below
// one is treated as one.
func NewQueryLog(capacity int) *QueryLog {
	if capacity < 1 {
		capacity = 1
	}
	return &QueryLog{items: make([]*Query, capacity)}
}

// Record appends q, evicting the oldest entry when the log is full.
func (l *QueryLog) Record(q *Query) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[l.next] = q
	l.next = (l.next + 1) % len(l.items)
	if l.next == 0 {
		l.full = true
	}
}

// Queries returns the recorded queries, oldest first.
func (l *QueryLog) Queries() []*Query {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.full {
		return append([]*Query(nil), l.items[:l.next]...)
	}
	out := make([]*Query, 0, len(l.items))
	out = append(out, l.items[l.next:]...)
	return append(out, l.items[:l.next]...)
}

// Len returns the number of recorded queries.
func (l *QueryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.items)
	}
	return l.next
}

// Reset drops every recorded query.
func (l *QueryLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.items)
	l.next = 0
	l.full = false
}
