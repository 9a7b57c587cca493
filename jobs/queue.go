package jobs

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/promptctl/promptctl/errors"
)

const (
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
)

// Config controls queue sizing and worker behavior
type Config struct {
	Workers      int           `json:"workers"`       // Number of concurrent workers
	MaxHistory   int           `json:"max_history"`   // Terminal jobs retained before eviction
	PollInterval time.Duration `json:"poll_interval"` // How often idle workers check for jobs
	StopTimeout  time.Duration `json:"stop_timeout"`  // Bound on waiting for workers at shutdown
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Workers:      2,
		MaxHistory:   100,
		PollInterval: 250 * time.Millisecond,
		StopTimeout:  5 * time.Second,
	}
}

// Queue is a thread-safe job queue: a handler registry, a FIFO of pending
// job IDs, a status table, and a fixed pool of workers (see pool.go).
//
// One coarse lock guards the status table and the pending FIFO. The
// Pending to Running transition is the exclusion point: a worker re-checks
// the status under the lock before claiming, so a job cancelled between
// enqueue and dequeue is never executed.
type Queue struct {
	cfg      Config
	registry *HandlerRegistry

	mu          sync.RWMutex
	table       map[string]*Job
	pending     []string
	subscribers []chan Job
	nextSeq     uint64

	pool *pool
}

// NewQueue creates a job queue. Handlers must be registered before
// submitting jobs of their type; workers start on Start().
func NewQueue(cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultConfig().StopTimeout
	}

	q := &Queue{
		cfg:      cfg,
		registry: NewHandlerRegistry(),
		table:    make(map[string]*Job),
	}
	q.pool = newPool(q, cfg)
	return q
}

// RegisterHandler associates a job type with its handler.
// Last registration wins for a given type.
func (q *Queue) RegisterHandler(handler Handler) {
	q.registry.Register(handler)
}

// Registry exposes the handler registry for bulk registration.
func (q *Queue) Registry() *HandlerRegistry {
	return q.registry
}

// Submit creates a Pending job for the given type and enqueues it.
// Returns the new job ID immediately; it never blocks on execution.
// Fails with ErrUnknownJobType when no handler is registered for the type.
func (q *Queue) Submit(jobType string, params json.RawMessage) (string, error) {
	return q.SubmitWithID(newJobID(), jobType, params)
}

// SubmitWithID is Submit with a caller-chosen job ID.
func (q *Queue) SubmitWithID(id string, jobType string, params json.RawMessage) (string, error) {
	if id == "" {
		return "", errors.Wrap(errors.ErrInvalidRequest, "job id cannot be empty")
	}
	if !q.registry.Has(jobType) {
		return "", errors.Wrapf(errors.ErrUnknownJobType, "job type %q", jobType)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.table[id]; exists {
		return "", errors.Wrapf(errors.ErrInvalidRequest, "job id %q already exists", id)
	}

	q.nextSeq++
	job := &Job{
		ID:        id,
		Type:      jobType,
		Params:    params,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		seq:       q.nextSeq,
	}
	q.table[id] = job
	q.pending = append(q.pending, id)

	q.notifySubscribers(job.snapshot())
	return id, nil
}

// Cancel cancels a Pending job. It returns true only when the job was
// still Pending at call time; Running and terminal jobs are left alone.
// There is no preemption of in-flight handlers.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.table[id]
	if !ok || job.Status != StatusPending {
		return false
	}

	job.cancel()
	q.removePendingLocked(id)
	q.evictLocked()
	q.notifySubscribers(job.snapshot())
	return true
}

// GetStatus returns a snapshot of the job, or ErrNotFound.
func (q *Queue) GetStatus(id string) (Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, ok := q.table[id]
	if !ok {
		return Job{}, errors.NewNotFoundError("job %s not found", id)
	}
	return job.snapshot(), nil
}

// GetAllJobs returns up to limit job snapshots, newest first by creation.
// A limit <= 0 returns all jobs.
func (q *Queue) GetAllJobs(limit int) []Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Job, 0, len(q.table))
	for _, job := range q.table {
		out = append(out, job.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].seq > out[j].seq
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Counts returns the number of pending and running jobs.
func (q *Queue) Counts() (pending int, running int) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, job := range q.table {
		switch job.Status {
		case StatusPending:
			pending++
		case StatusRunning:
			running++
		}
	}
	return pending, running
}

// Subscribe returns a channel that receives job snapshots on every state
// change. The caller is responsible for calling Unsubscribe when done.
// The channel is buffered; updates are dropped rather than blocking a
// slow subscriber.
func (q *Queue) Subscribe() chan Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan Job, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the queue.
// The channel is NOT closed by this method, which avoids double-close
// panics; callers close it themselves if needed.
func (q *Queue) Unsubscribe(ch chan Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// Start launches the worker pool. Idempotent; calling Start while
// already running is a no-op.
func (q *Queue) Start() {
	q.pool.start()
}

// Stop signals all workers to exit and waits for them with a bounded
// timeout. Submit still accepts jobs after Stop; they stay Pending until
// Start is called again. A stopped queue never loses submitted jobs.
func (q *Queue) Stop() {
	q.pool.stop()
}

// claimNext pops the next runnable job, transitions it to Running and
// returns a snapshot plus its handler. Returns ok=false when no pending
// job is available. IDs whose job was cancelled or evicted between
// enqueue and dequeue are skipped.
func (q *Queue) claimNext() (Job, Handler, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]

		job, ok := q.table[id]
		if !ok || job.Status != StatusPending {
			continue
		}

		handler := q.registry.Get(job.Type)
		if handler == nil {
			// Handler replaced or removed after submit; fail rather than stall
			job.fail(errors.Wrapf(errors.ErrUnknownJobType, "job type %q", job.Type))
			q.evictLocked()
			q.notifySubscribers(job.snapshot())
			continue
		}

		job.start()
		q.notifySubscribers(job.snapshot())
		return job.snapshot(), handler, true
	}
	return Job{}, nil, false
}

// finish records a handler's outcome for a claimed job.
func (q *Queue) finish(id string, result json.RawMessage, execErr error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.table[id]
	if !ok {
		return
	}

	if execErr != nil {
		job.fail(execErr)
	} else {
		job.complete(result)
	}
	q.evictLocked()
	q.notifySubscribers(job.snapshot())
}

// reportProgress applies a handler's progress update under the table lock.
// Values are clamped to [0,100]; updates for missing or terminal jobs are
// dropped silently.
func (q *Queue) reportProgress(id string, progress float64, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.table[id]
	if !ok || job.Status.IsTerminal() {
		return
	}

	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}
	job.Progress = progress
	job.Message = message
	q.notifySubscribers(job.snapshot())
}

// reporter binds a job ID to the queue's progress sink.
type reporter struct {
	q  *Queue
	id string
}

func (r reporter) Report(progress float64, message string) {
	r.q.reportProgress(r.id, progress, message)
}

// removePendingLocked drops an ID from the pending FIFO.
// REQUIRES: q.mu held.
func (q *Queue) removePendingLocked(id string) {
	for i, pid := range q.pending {
		if pid == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// evictLocked enforces the bounded history: while terminal jobs exceed
// MaxHistory, the oldest by completion time are removed. Pending and
// Running jobs are never evicted.
// REQUIRES: q.mu held.
func (q *Queue) evictLocked() {
	if q.cfg.MaxHistory <= 0 {
		return
	}

	terminal := make([]*Job, 0)
	for _, job := range q.table {
		if job.Status.IsTerminal() {
			terminal = append(terminal, job)
		}
	}
	if len(terminal) <= q.cfg.MaxHistory {
		return
	}

	sort.Slice(terminal, func(i, j int) bool {
		a, b := terminal[i].CompletedAt, terminal[j].CompletedAt
		switch {
		case a == nil:
			return true
		case b == nil:
			return false
		case a.Equal(*b):
			return terminal[i].seq < terminal[j].seq
		default:
			return a.Before(*b)
		}
	})

	for _, job := range terminal[:len(terminal)-q.cfg.MaxHistory] {
		delete(q.table, job.ID)
	}
}

// notifySubscribers sends a job snapshot to all subscribers.
// REQUIRES: q.mu held (Lock or RLock).
// Uses non-blocking sends so a slow subscriber cannot stall the queue.
func (q *Queue) notifySubscribers(job Job) {
	for _, ch := range q.subscribers {
		select {
		case ch <- job:
		default:
			// Channel full, drop the update
		}
	}
}
