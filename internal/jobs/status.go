package jobs

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrJobNotFound is returned for unknown or expired job ids.
var ErrJobNotFound = errors.New("job not found")

// State of a job as seen by pollers.
type State string

const (
	StatePending  State = "PENDING"
	StateProgress State = "PROGRESS"
	StateSuccess  State = "SUCCESS"
	StateFailure  State = "FAILURE"
)

// Terminal reports whether the job has finished.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Meta describes progress through the job's phases.
type Meta struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Status  string `json:"status"`
}

// Status is the pollable job document.
type Status struct {
	JobID     string         `json:"job_id"`
	Kind      Kind           `json:"kind"`
	OrgID     string         `json:"org_id,omitempty"`
	State     State          `json:"status"`
	Meta      Meta           `json:"meta"`
	Result    map[string]any `json:"result,omitempty"`
	Error     map[string]any `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PendingStatus is written when a job is accepted.
func PendingStatus(j *Job) *Status {
	return &Status{
		JobID:     j.ID.String(),
		Kind:      j.Kind,
		OrgID:     j.OrgID,
		State:     StatePending,
		Meta:      Meta{Current: 0, Total: PhaseCount, Status: "queued"},
		UpdatedAt: time.Now().UTC(),
	}
}

// PhaseCount is the number of phases a job reports: lookup, provider call, persist.
const PhaseCount = 3

// StatusStore keeps job status documents for pollers.
type StatusStore interface {
	Put(ctx context.Context, s *Status) error
	Get(ctx context.Context, jobID string) (*Status, error)
}

// MemoryStatusStore keeps statuses in process memory.
type MemoryStatusStore struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{statuses: make(map[string]Status)}
}

func (m *MemoryStatusStore) Put(_ context.Context, s *Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[s.JobID] = *s
	return nil
}

func (m *MemoryStatusStore) Get(_ context.Context, jobID string) (*Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &s, nil
}
