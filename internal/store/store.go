package store

import (
	"sync"
	"time"

	"github.com/jimmy443dd/S-675-Scrapper/internal/model"
)

// StatusReader is the read side handed to the HTTP layer.
type StatusReader interface {
	Snapshot() model.ScanStatus
}

// Store holds the status of the current (or last) scan run. Only the scan
// controller writes to it.
type Store struct {
	mu     sync.RWMutex
	status model.ScanStatus
}

var now = time.Now

func New() *Store {
	return &Store{}
}

// Snapshot returns a deep copy; callers may modify it without touching the
// stored record.
func (s *Store) Snapshot() model.ScanStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.status
	snap.Results = s.status.Results.Clone()
	if s.status.LastError != nil {
		e := *s.status.LastError
		snap.LastError = &e
	}
	if s.status.StartedAt != nil {
		t := *s.status.StartedAt
		snap.StartedAt = &t
	}
	if s.status.FinishedAt != nil {
		t := *s.status.FinishedAt
		snap.FinishedAt = &t
	}
	return snap
}

// TryBegin marks a scan as running unless one already is. The check and the
// flag update happen under one lock. Results from an earlier run stay in place.
func (s *Store) TryBegin(scanID, domain string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.IsRunning {
		return false
	}

	started := now()
	s.status.IsRunning = true
	s.status.Progress = 0
	s.status.ScanID = scanID
	s.status.Domain = domain
	s.status.StartedAt = &started
	s.status.FinishedAt = nil
	s.status.LastError = nil
	return true
}

func (s *Store) SetTask(task string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.CurrentTask = task
}

// Complete stores the result of a successful run. The result must not be
// modified by the caller afterwards.
func (s *Store) Complete(result *model.ScanResult, task string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Results = result
	s.status.Progress = 100
	s.status.CurrentTask = task
}

// Fail records a failed run. Progress and the previous results are kept.
func (s *Store) Fail(scanErr *model.ScanError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.CurrentTask = "Error: " + scanErr.Message
	s.status.LastError = scanErr
}

// Release clears the running flag so the next scan can be accepted.
func (s *Store) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := now()
	s.status.IsRunning = false
	s.status.FinishedAt = &finished
}
