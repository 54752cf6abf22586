// Package memory keeps exported statements in process, for tests and for
// running without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	ports "loanledger/internal/sheets"
	"loanledger/internal/statement"
)

type Store struct {
	mu     sync.Mutex
	sheets map[string][][]any
	order  []string
}

var _ ports.StatementWriter = (*Store)(nil)

func New() *Store {
	return &Store{sheets: make(map[string][][]any)}
}

// WriteStatement stores the statement rows and returns a synthetic reference.
func (s *Store) WriteStatement(_ context.Context, st *statement.Statement) (string, error) {
	if st == nil {
		return "", fmt.Errorf("write statement: nil statement")
	}
	name := ports.SheetName(st)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sheets[name]; !ok {
		s.order = append(s.order, name)
	}
	s.sheets[name] = ports.Values(st)
	return "mem:" + name, nil
}

// Sheet returns a copy of the rows written to name.
func (s *Store) Sheet(name string) ([][]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.sheets[name]
	if !ok {
		return nil, false
	}
	return append([][]any(nil), rows...), true
}

// Names lists the sheets in the order they were first written.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}
