package job

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantlab/backgrid/internal/core"
)

// Status represents job status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Job represents an async backtest job.
type Job struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Status    Status      `json:"status"`
	Result    any         `json:"result,omitempty"`
	Error     *core.Error `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Store manages async jobs in memory with FIFO eviction.
type Store struct {
	jobs    map[string]*Job
	order   []string // insertion order for eviction
	maxSize int
	ttl     time.Duration
	mu      sync.RWMutex
}

// NewStore creates a new job store.
func NewStore(maxSize int, ttl time.Duration) *Store {
	return &Store{
		jobs:    make(map[string]*Job),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Create creates a new pending job and returns it.
func (s *Store) Create(jobType string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Evict oldest if at capacity
	if len(s.jobs) >= s.maxSize && len(s.order) > 0 {
		oldest := s.order[0]
		delete(s.jobs, oldest)
		s.order = s.order[1:]
	}

	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)

	return job
}

// Get retrieves a job by ID.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	if s.ttl > 0 && time.Since(job.UpdatedAt) > s.ttl {
		return nil, core.ErrJobNotFound
	}

	// Return copy to prevent race conditions
	jobCopy := *job
	return &jobCopy, nil
}

// Update modifies a job using an update function.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return core.ErrJobNotFound
	}

	fn(job)
	job.UpdatedAt = time.Now()
	return nil
}

// Active returns the number of jobs currently pending or running.
func (s *Store) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, job := range s.jobs {
		if job.Status == StatusPending || job.Status == StatusRunning {
			n++
		}
	}
	return n
}
