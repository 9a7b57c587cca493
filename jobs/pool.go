package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/promptctl/promptctl/logger"
)

// pool runs the queue's fixed set of worker loops.
//
// Each worker polls on a short ticker so shutdown is observed promptly.
// Stop cancels the worker context and waits up to StopTimeout for the
// loops to exit; a worker stuck in a handler is abandoned rather than
// blocking shutdown forever. Start after Stop recreates the context.
type pool struct {
	queue        *Queue
	workers      int
	pollInterval time.Duration
	stopTimeout  time.Duration

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newPool(q *Queue, cfg Config) *pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &pool{
		queue:        q,
		workers:      cfg.Workers,
		pollInterval: cfg.PollInterval,
		stopTimeout:  cfg.StopTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (p *pool) start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	// Recreate the context if a previous Stop cancelled it. This must
	// happen before spawning workers to avoid races.
	select {
	case <-p.ctx.Done():
		p.ctx, p.cancel = context.WithCancel(context.Background())
	default:
	}

	p.running = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infow("Job workers started", "workers", p.workers)
}

func (p *pool) stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Infow("Job workers stopped")
	case <-time.After(p.stopTimeout):
		logger.Warnw("Timeout waiting for job workers to stop",
			"timeout", p.stopTimeout)
	}
}

// worker polls for claimable jobs until the pool context is cancelled.
func (p *pool) worker(id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.drain(id)
		}
	}
}

// drain processes claimable jobs back to back until the queue is empty
// or the pool is stopping, so a burst of submissions is not throttled to
// one job per poll tick.
func (p *pool) drain(workerID int) {
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		job, handler, ok := p.queue.claimNext()
		if !ok {
			return
		}
		p.execute(workerID, job, handler)
	}
}

// execute runs one claimed job. Handler panics are captured as job
// failures; a panicking handler never crashes a worker.
func (p *pool) execute(workerID int, job Job, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("Job handler panicked",
				"worker_id", workerID,
				"job_id", job.ID,
				"job_type", job.Type,
				"panic", r)
			p.queue.finish(job.ID, nil, fmt.Errorf("handler panic: %v", r))
		}
	}()

	logger.Debugw("Worker executing job",
		"worker_id", workerID,
		"job_id", job.ID,
		"job_type", job.Type)

	result, err := handler.Execute(p.ctx, job.Params, reporter{q: p.queue, id: job.ID})
	if err != nil {
		logger.Warnw("Job failed",
			"worker_id", workerID,
			"job_id", job.ID,
			"job_type", job.Type,
			"error", err)
	}
	p.queue.finish(job.ID, result, err)
}
