// Package jobs tracks background generation work as cancellable, pollable
// units. State lives in memory only; a process restart forgets all jobs.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dreamwright/internal/domain"
	"dreamwright/internal/infra"
)

// WorkFunc is the unit of work a job tracks. It must honor ctx cancellation
// at its suspension points; the returned value becomes the job result.
type WorkFunc func(ctx context.Context) (any, error)

// Handle lets a caller await a started job's background unit.
type Handle struct {
	done chan struct{}
}

// Wait blocks until the background unit has returned.
func (h *Handle) Wait() { <-h.done }

// Manager owns every job record. Background units hold only the job id and
// report back through the manager, so all state mutation happens under one
// lock and pollers always observe consistent records.
type Manager struct {
	logger infra.Logger

	mu      sync.Mutex
	jobs    map[string]*domain.Job
	cancels map[string]context.CancelFunc
}

// NewManager constructs an empty Manager.
func NewManager(logger infra.Logger) *Manager {
	return &Manager{
		logger:  logger,
		jobs:    make(map[string]*domain.Job),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create registers a new pending job and returns a snapshot of it. No work
// is started.
func (m *Manager) Create(kind domain.JobKind, metadata map[string]any) domain.Job {
	job := &domain.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return snapshot(job)
}

// Start launches the work in the background and moves the job to running.
// Panics and errors inside the work are captured into the job record and
// never propagated to pollers.
func (m *Manager) Start(id string, work WorkFunc) (*Handle, error) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		cancel()
		return nil, &domain.NotFoundError{Resource: "Job", ID: id}
	}
	if job.Status != domain.JobStatusPending {
		m.mu.Unlock()
		cancel()
		return nil, &domain.ValidationError{Message: fmt.Sprintf("job %s is %s, not pending", id, job.Status)}
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusRunning
	job.StartedAt = &now
	m.cancels[id] = cancel
	m.mu.Unlock()

	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				m.finish(id, nil, fmt.Errorf("panic: %v", r))
			}
		}()
		result, err := work(ctx)
		m.finish(id, result, err)
	}()
	return h, nil
}

// finish records the outcome of a background unit. A job that already reached
// a terminal status (cancellation won the race) is left untouched.
func (m *Manager) finish(id string, result any, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.Status.Terminal() {
		return
	}

	now := time.Now().UTC()
	job.CompletedAt = &now
	if err != nil {
		job.Status = domain.JobStatusFailed
		job.Error = err.Error()
		m.logger.Error().Err(err).Str("job_id", id).Str("kind", string(job.Kind)).Msg("job failed")
	} else {
		job.Status = domain.JobStatusCompleted
		job.Result = result
	}
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
}

// Get returns a snapshot of a job. It never blocks on running work.
func (m *Manager) Get(id string) (domain.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return snapshot(job), true
}

// Filter narrows List results.
type Filter struct {
	Status domain.JobStatus
	Kind   domain.JobKind
	Limit  int
	Offset int
}

// List returns job snapshots sorted by creation time descending, plus the
// total count after filtering.
func (m *Manager) List(f Filter) ([]domain.Job, int) {
	m.mu.Lock()
	all := make([]domain.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		if f.Kind != "" && job.Kind != f.Kind {
			continue
		}
		all = append(all, snapshot(job))
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	if f.Offset >= total {
		return []domain.Job{}, total
	}
	all = all[f.Offset:]
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total
}

// Cancel requests cooperative cancellation of a pending or running job and
// marks it cancelled immediately: cancellation is a request, not a
// confirmation that in-flight work stopped. Returns false for unknown or
// already-terminal jobs.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.Status.Terminal() {
		return false
	}

	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}

	now := time.Now().UTC()
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.Status = domain.JobStatusCancelled
	job.Error = "cancelled"
	job.CompletedAt = &now
	return true
}

// SetProgress updates a job's progress counters.
func (m *Manager) SetProgress(id string, progress, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		job.Progress = progress
		job.Total = total
	}
}

// Cleanup removes terminal jobs whose completion is older than maxAge and
// returns how many were removed. Pending and running jobs are never removed.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, job := range m.jobs {
		if !job.Status.Terminal() {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			delete(m.cancels, id)
			removed++
		}
	}
	return removed
}

// snapshot copies a job record so pollers never share memory with the
// manager's mutable state.
func snapshot(job *domain.Job) domain.Job {
	out := *job
	if job.Metadata != nil {
		out.Metadata = make(map[string]any, len(job.Metadata))
		for k, v := range job.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
