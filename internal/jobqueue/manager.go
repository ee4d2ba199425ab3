package jobqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/log"
	"github.com/ragaeeb/beltane-pipeline/internal/metrics"
)

const (
	retentionTTL = 6 * time.Hour
	retentionCap = 2000
)

// Runner executes one job's input to completion and reports the video
// id it produced. Implementations wrap the pipeline engine.
type Runner func(ctx context.Context, job Job) (videoID string, err error)

// Manager owns the bounded in-memory job map, FIFO queue, and a
// running counter bounded by concurrency.
type Manager struct {
	mu          sync.Mutex
	jobs        map[string]*Job
	queue       []string
	running     int
	concurrency int
	run         Runner
	ctx         context.Context
}

// New creates a Manager bounded to concurrency concurrent workers.
// ctx governs the lifetime of every job the manager starts.
func New(ctx context.Context, concurrency int, run Runner) *Manager {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Manager{
		jobs:        make(map[string]*Job),
		concurrency: concurrency,
		run:         run,
		ctx:         ctx,
	}
}

// CreateJob validates input, enqueues a new job, and starts the pump.
func (m *Manager) CreateJob(kind, input string, force bool, overrides Overrides) (*Job, error) {
	if input == "" {
		return nil, apperr.New(apperr.BadInput, "job input must not be empty")
	}

	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Input:     input,
		Force:     force,
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
		Overrides: overrides,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.queue = append(m.queue, job.ID)
	m.mu.Unlock()

	metrics.SetActiveJobs(m.CountActiveJobs())
	m.pump()
	return job, nil
}

// GetJob returns the job with id, or NotFound.
func (m *Manager) GetJob(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, apperr.New(apperr.NotFound, "job not found")
	}
	return *job, nil
}

// ListJobs returns up to limit jobs, newest first by createdAt.
func (m *Manager) ListJobs(limit int) []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()

	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FindActiveJobByInput linear-scans for a queued or running job with a
// matching input.
func (m *Manager) FindActiveJobByInput(input string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Input == input && j.Status.Active() {
			return *j, true
		}
	}
	return Job{}, false
}

// CountActiveJobs returns the number of queued or running jobs.
func (m *Manager) CountActiveJobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		if j.Status.Active() {
			n++
		}
	}
	return n
}

// pump drains the queue while running < concurrency, spawning one
// goroutine per claimed job.
func (m *Manager) pump() {
	m.mu.Lock()
	for m.running < m.concurrency && len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]
		job, ok := m.jobs[id]
		if !ok {
			continue
		}
		m.running++
		go m.execute(job)
	}
	m.mu.Unlock()
}

func (m *Manager) execute(job *Job) {
	logger := log.WithComponent("jobqueue")

	m.mu.Lock()
	job.Status = StatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	m.mu.Unlock()

	videoID, err := m.run(m.ctx, *job)

	finished := time.Now().UTC()
	m.mu.Lock()
	job.FinishedAt = &finished
	job.VideoID = videoID
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		logger.Error().Str(log.FieldJobID, job.ID).Err(err).Msg("job failed")
	} else {
		job.Status = StatusSucceeded
		logger.Info().Str(log.FieldJobID, job.ID).Msg("job succeeded")
	}
	terminalStatus := job.Status
	m.running--
	m.pruneLocked()
	m.mu.Unlock()

	metrics.RecordJobOutcome(string(terminalStatus))
	metrics.SetActiveJobs(m.CountActiveJobs())
	m.pump()
}

// pruneLocked drops terminal jobs older than retentionTTL, then trims
// the terminal set down to retentionCap by oldest-first. Callers must
// hold m.mu.
func (m *Manager) pruneLocked() {
	cutoff := time.Now().UTC().Add(-retentionTTL)
	var terminal []*Job

	for id, j := range m.jobs {
		if !j.Status.Terminal() {
			continue
		}
		if finishedOrNow(j).Before(cutoff) {
			delete(m.jobs, id)
			continue
		}
		terminal = append(terminal, j)
	}

	if len(terminal) <= retentionCap {
		return
	}
	sort.Slice(terminal, func(i, k int) bool {
		return finishedOrNow(terminal[i]).Before(finishedOrNow(terminal[k]))
	})
	for _, j := range terminal[:len(terminal)-retentionCap] {
		delete(m.jobs, j.ID)
	}
}

// finishedOrNow treats a terminal job whose FinishedAt is still unset
// (possible mid-write) as finished "now", deferring its pruning to a
// later pass.
func finishedOrNow(j *Job) time.Time {
	if j.FinishedAt != nil {
		return *j.FinishedAt
	}
	return time.Now().UTC()
}
