package database

import (
	"sync"

	"github.com/Masterminds/squirrel"
)

type softDeleteMode int

const (
	hideDeleted softDeleteMode = iota
	includeDeleted
	onlyDeleted
)

// SoftDeleteScope hides rows whose Field is set from selects.
//
// WithDeleted and OnlyDeleted change the filter for exactly the next select
// the hook compiles; afterwards deleted rows are hidden again. The zero
// value with Field set is ready to use.
type SoftDeleteScope struct {
	Field string

	mu   sync.Mutex
	mode softDeleteMode
}

// NewSoftDeleteScope returns a scope filtering on field.
func NewSoftDeleteScope(field string) *SoftDeleteScope {
	return &SoftDeleteScope{Field: field}
}

// WithDeleted includes deleted rows in the next select.
func (s *SoftDeleteScope) WithDeleted() *SoftDeleteScope {
	s.set(includeDeleted)
	return s
}

// OnlyDeleted restricts the next select to deleted rows.
func (s *SoftDeleteScope) OnlyDeleted() *SoftDeleteScope {
	s.set(onlyDeleted)
	return s
}

// Reset drops a pending WithDeleted or OnlyDeleted.
func (s *SoftDeleteScope) Reset() { s.set(hideDeleted) }

func (s *SoftDeleteScope) set(m softDeleteMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// take returns the pending mode and resets it.
func (s *SoftDeleteScope) take() softDeleteMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.mode
	s.mode = hideDeleted
	return m
}

// Hook returns the select hook applying the scope. The field is qualified
// with the builder's table.
func (s *SoftDeleteScope) Hook() SelectHook {
	return func(b *Builder, sel squirrel.SelectBuilder) squirrel.SelectBuilder {
		col := b.QualifiedColumn(s.Field)
		switch s.take() {
		case includeDeleted:
			return sel
		case onlyDeleted:
			return sel.Where(squirrel.NotEq{col: nil})
		default:
			return sel.Where(squirrel.Eq{col: nil})
		}
	}
}
