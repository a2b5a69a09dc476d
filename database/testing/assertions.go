package testing

import (
	"fmt"
	"strings"
	"testing"
)

// AssertQueryExecuted asserts that a query matching the SQL pattern was dispatched.
// Uses partial matching by default (can be changed with drv.StrictSQLMatching()).
//
// Example:
//
//	drv := NewStubDriver(types.PostgreSQL)
//	// ... execute test code ...
//	AssertQueryExecuted(t, drv, "SELECT * FROM users")
func AssertQueryExecuted(t *testing.T, drv *StubDriver, sqlPattern string) {
	t.Helper()
	log := drv.QueryLog()
	for _, call := range log {
		if drv.matchSQL(sqlPattern, call.SQL) {
			return
		}
	}
	t.Errorf("expected query not executed: %q\nActual queries:\n%s", sqlPattern, formatLog(queryEntries(log)))
}

// AssertQueryCount asserts that exactly n queries matching the SQL pattern were dispatched.
func AssertQueryCount(t *testing.T, drv *StubDriver, sqlPattern string, n int) {
	t.Helper()
	log := drv.QueryLog()
	count := 0
	for _, call := range log {
		if drv.matchSQL(sqlPattern, call.SQL) {
			count++
		}
	}
	if count != n {
		t.Errorf("expected %d queries matching %q, got %d\nActual queries:\n%s",
			n, sqlPattern, count, formatLog(queryEntries(log)))
	}
}

// AssertExecExecuted asserts that an exec matching the SQL pattern was dispatched.
func AssertExecExecuted(t *testing.T, drv *StubDriver, sqlPattern string) {
	t.Helper()
	log := drv.ExecLog()
	for _, call := range log {
		if drv.matchSQL(sqlPattern, call.SQL) {
			return
		}
	}
	t.Errorf("expected exec not executed: %q\nActual execs:\n%s", sqlPattern, formatLog(execEntries(log)))
}

// AssertExecNotExecuted asserts that no exec matching the SQL pattern was dispatched.
func AssertExecNotExecuted(t *testing.T, drv *StubDriver, sqlPattern string) {
	t.Helper()
	for _, call := range drv.ExecLog() {
		if drv.matchSQL(sqlPattern, call.SQL) {
			t.Errorf("unexpected exec executed: %q\nExec SQL: %s", sqlPattern, call.SQL)
			return
		}
	}
}

// AssertExecCount asserts that exactly n execs matching the SQL pattern were dispatched.
//
// Example:
//
//	// ... run a prepared INSERT twice ...
//	AssertExecCount(t, drv, "INSERT INTO users", 2)
func AssertExecCount(t *testing.T, drv *StubDriver, sqlPattern string, n int) {
	t.Helper()
	log := drv.ExecLog()
	count := 0
	for _, call := range log {
		if drv.matchSQL(sqlPattern, call.SQL) {
			count++
		}
	}
	if count != n {
		t.Errorf("expected %d execs matching %q, got %d\nActual execs:\n%s",
			n, sqlPattern, count, formatLog(execEntries(log)))
	}
}

// AssertCommitted asserts exactly one physical commit and no rollback.
func AssertCommitted(t *testing.T, drv *StubDriver) {
	t.Helper()
	c := drv.Counters()
	if c.Commit != 1 || c.Rollback != 0 {
		t.Errorf("expected one commit and no rollback, got %d commits and %d rollbacks", c.Commit, c.Rollback)
	}
}

// AssertRolledBack asserts exactly one physical rollback and no commit.
func AssertRolledBack(t *testing.T, drv *StubDriver) {
	t.Helper()
	c := drv.Counters()
	if c.Rollback != 1 || c.Commit != 0 {
		t.Errorf("expected one rollback and no commit, got %d rollbacks and %d commits", c.Rollback, c.Commit)
	}
}

// AssertNoTransaction asserts that no physical transaction was started.
func AssertNoTransaction(t *testing.T, drv *StubDriver) {
	t.Helper()
	if c := drv.Counters(); c.Begin != 0 {
		t.Errorf("expected no transaction, got %d begins", c.Begin)
	}
}

type logEntry struct {
	sql      string
	args     []any
	prepared bool
}

func queryEntries(log []QueryCall) []logEntry {
	out := make([]logEntry, len(log))
	for i, c := range log {
		out[i] = logEntry{c.SQL, c.Args, c.Prepared}
	}
	return out
}

func execEntries(log []ExecCall) []logEntry {
	out := make([]logEntry, len(log))
	for i, c := range log {
		out[i] = logEntry{c.SQL, c.Args, c.Prepared}
	}
	return out
}

// formatLog formats a call log for error messages.
func formatLog(log []logEntry) string {
	if len(log) == 0 {
		return "  (none)"
	}

	var sb strings.Builder
	for i, call := range log {
		marker := ""
		if call.prepared {
			marker = " [prepared]"
		}
		sb.WriteString(fmt.Sprintf("  %d. %s%s\n", i+1, call.sql, marker))
		if len(call.args) > 0 {
			sb.WriteString(fmt.Sprintf("     Args: %v\n", call.args))
		}
	}
	return sb.String()
}
