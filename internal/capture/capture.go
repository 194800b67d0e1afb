// Package capture stores invocations read back from a finished build's
// capture log, keyed by the recording process.
package capture

import (
	"sort"
	"sync"

	"buildlogger/internal/logreader"
	"buildlogger/internal/record"
)

// Store manages captured invocations per process.
// It provides command-query separation for access and is safe for
// concurrent use.
type Store struct {
	mu          sync.RWMutex
	invocations map[int][]*record.Invocation // PID -> invocations, in log order
	issues      []string                     // read/decode issues for the whole log
	total       int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		invocations: make(map[int][]*record.Invocation),
	}
}

// FromResult loads a decoded capture log into a new store.
func FromResult(result *logreader.Result) *Store {
	s := NewStore()
	for _, inv := range result.Invocations {
		s.Add(inv)
	}
	s.AddIssues(result.Issues)
	return s
}

// Add appends an invocation under its recording PID (command).
func (s *Store) Add(inv *record.Invocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invocations[inv.Pid] = append(s.invocations[inv.Pid], inv)
	s.total++
}

// Get retrieves the invocations recorded by a PID (query).
// Returns nil if the PID recorded nothing.
func (s *Store) Get(pid int) []*record.Invocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invocations[pid]
}

// Pids returns every recording PID in ascending order (query).
func (s *Store) Pids() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pids := make([]int, 0, len(s.invocations))
	for pid := range s.invocations {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}

// All returns every invocation ordered by PID, then log order (query).
func (s *Store) All() []*record.Invocation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pids := make([]int, 0, len(s.invocations))
	for pid := range s.invocations {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	all := make([]*record.Invocation, 0, s.total)
	for _, pid := range pids {
		all = append(all, s.invocations[pid]...)
	}
	return all
}

// Len returns the number of stored invocations (query).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// AddIssues records capture log issues (command).
func (s *Store) AddIssues(issues []string) {
	if len(issues) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = append(s.issues, issues...)
}

// Issues returns recorded capture log issues (query).
func (s *Store) Issues() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.issues
}
