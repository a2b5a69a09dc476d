package database

import (
	"context"
	"errors"
)

// TxPrimitives issue the physical BEGIN, COMMIT and ROLLBACK.
type TxPrimitives interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionTracker counts nested transaction levels and remembers failure.
//
// Nesting is simulated: only the outermost Start/Complete pair reaches the
// server, inner levels only move the depth counter. A failed statement at any
// level makes the outermost Complete roll back.
//
// In strict mode (the default) the failed flag outlives the rollback, so later
// transaction groups report failure until ResetStatus or the next outermost
// Start. Otherwise the rollback clears it.
//
// The tracker is not safe for concurrent use; Connection serializes access.
type TransactionTracker struct {
	tx TxPrimitives

	depth    int
	failed   bool
	testMode bool
	strict   bool
	enabled  bool
}

// NewTransactionTracker returns an enabled tracker driving tx.
func NewTransactionTracker(tx TxPrimitives, strict bool) *TransactionTracker {
	return &TransactionTracker{tx: tx, strict: strict, enabled: true}
}

// Start opens a transaction level. At depth 0 it clears the failed flag and
// issues the physical begin; testMode makes the outermost Complete roll back.
// It returns false without error when transactions are disabled.
func (t *TransactionTracker) Start(ctx context.Context, testMode bool) (bool, error) {
	if !t.enabled {
		return false, nil
	}
	if t.depth > 0 {
		t.depth++
		return true, nil
	}

	t.failed = false
	if err := t.tx.Begin(ctx); err != nil {
		return false, err
	}
	t.testMode = testMode
	t.depth = 1
	return true, nil
}

// Begin is the manual variant of Start.
func (t *TransactionTracker) Begin(ctx context.Context, testMode bool) (bool, error) {
	return t.Start(ctx, testMode)
}

// Complete closes a transaction level.
//
// At depth 1 it commits unless the transaction failed or runs in test mode,
// in which case it rolls back, and reports whether the commit path was taken.
// Deeper levels only decrement and report Status. At depth 0 it is a no-op
// returning Status.
func (t *TransactionTracker) Complete(ctx context.Context) (bool, error) {
	if !t.enabled {
		return false, nil
	}
	switch {
	case t.depth == 0:
		return t.Status(), nil
	case t.depth > 1:
		t.depth--
		return !t.failed, nil
	}

	if t.failed || t.testMode {
		_, err := t.Rollback(ctx)
		return false, err
	}

	ok, err := t.Commit(ctx)
	if err != nil {
		t.failed = true
	}
	return ok, err
}

// Commit closes one level, physically committing at depth 1. It reports
// false when no transaction is open.
func (t *TransactionTracker) Commit(ctx context.Context) (bool, error) {
	if !t.enabled || t.depth == 0 {
		return false, nil
	}
	if t.depth > 1 {
		t.depth--
		return true, nil
	}

	t.depth = 0
	t.testMode = false
	if err := t.tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Rollback closes one level, physically rolling back at depth 1.
func (t *TransactionTracker) Rollback(ctx context.Context) (bool, error) {
	if !t.enabled || t.depth == 0 {
		return false, nil
	}
	if t.depth > 1 {
		t.depth--
		return true, nil
	}

	t.depth = 0
	t.testMode = false
	err := t.tx.Rollback(ctx)
	if !t.strict {
		t.failed = false
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RollbackAll marks the transaction failed and completes every open level,
// which ends in exactly one physical rollback.
func (t *TransactionTracker) RollbackAll(ctx context.Context) error {
	if t.depth == 0 {
		return nil
	}
	t.failed = true
	var errs []error
	for t.depth > 0 {
		before := t.depth
		if _, err := t.Complete(ctx); err != nil {
			errs = append(errs, err)
		}
		if t.depth == before {
			break
		}
	}
	return errors.Join(errs...)
}

// abandon drops every open level without touching the server. It is used when
// the link carrying the transaction goes away, which rolls the work back, so
// an open transaction is marked failed.
func (t *TransactionTracker) abandon() {
	if t.depth > 0 {
		t.failed = true
	}
	t.depth = 0
	t.testMode = false
}

// Status reports false once a statement inside the transaction failed.
func (t *TransactionTracker) Status() bool { return !t.failed }

// MarkFailed flags the transaction as failed.
func (t *TransactionTracker) MarkFailed() { t.failed = true }

// ResetStatus clears the failed flag without touching the server.
func (t *TransactionTracker) ResetStatus() { t.failed = false }

// Depth returns the number of open levels.
func (t *TransactionTracker) Depth() int { return t.depth }

// SetStrict switches strict mode.
func (t *TransactionTracker) SetStrict(strict bool) { t.strict = strict }

// SetEnabled turns transaction handling on or off. While off every
// operation is a no-op reporting false.
func (t *TransactionTracker) SetEnabled(enabled bool) { t.enabled = enabled }

// Enabled reports whether transaction handling is on.
func (t *TransactionTracker) Enabled() bool { return t.enabled }
