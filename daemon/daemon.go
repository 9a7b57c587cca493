// Package daemon implements the auto-commit loop: poll the repository
// for dirty state, resolve merge conflicts under a configured policy,
// and commit with a generated or fixed message.
package daemon

import (
	"context"
	"time"

	"github.com/promptctl/promptctl/errors"
	"github.com/promptctl/promptctl/jobs"
	"github.com/promptctl/promptctl/logger"
)

// DefaultShutdownTimeout bounds how long shutdown waits for owned
// subsystems before abandoning them.
const DefaultShutdownTimeout = 5 * time.Second

// Config holds the daemon's runtime settings.
// Immutable after construction; changing values requires a restart.
type Config struct {
	WatchInterval    time.Duration // Time between dirty checks
	ConflictStrategy string        // ours | theirs | manual | timestamp
	ShutdownTimeout  time.Duration // Bound on subsystem shutdown
}

// Listener is an optional request surface whose lifecycle the daemon
// owns. *server.Server satisfies it.
type Listener interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// Daemon runs the auto-commit loop and owns the job queue's lifecycle,
// plus an optional embedded request listener.
type Daemon struct {
	cfg      Config
	repo     Repository
	resolver *Resolver
	messages MessageGenerator
	queue    *jobs.Queue
	listener Listener
}

// Option configures optional daemon collaborators.
type Option func(*Daemon)

// WithMessageGenerator installs a commit message generator. Without
// one, commits use the fixed fallback message.
func WithMessageGenerator(g MessageGenerator) Option {
	return func(d *Daemon) { d.messages = g }
}

// WithListener hands the daemon a request surface to start and stop
// alongside the queue.
func WithListener(l Listener) Option {
	return func(d *Daemon) { d.listener = l }
}

// New creates a daemon. The queue may be nil when the daemon runs
// without background job processing.
func New(cfg Config, repo Repository, audit *AuditLog, queue *jobs.Queue, opts ...Option) *Daemon {
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	d := &Daemon{
		cfg:      cfg,
		repo:     repo,
		resolver: NewResolver(repo, cfg.ConflictStrategy, audit),
		messages: StaticGenerator{},
		queue:    queue,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run starts owned subsystems and loops until ctx is cancelled. A bad
// iteration is logged and the loop continues; only startup errors are
// returned. On exit, subsystems stop in reverse order of startup.
func (d *Daemon) Run(ctx context.Context) error {
	if d.queue != nil {
		d.queue.Start()
	}
	if d.listener != nil {
		if err := d.listener.Start(); err != nil {
			if d.queue != nil {
				d.queue.Stop()
			}
			return errors.Wrap(err, "failed to start request listener")
		}
	}

	logger.Infow("Daemon started",
		"watch_interval", d.cfg.WatchInterval,
		"conflict_strategy", d.cfg.ConflictStrategy)

	ticker := time.NewTicker(d.cfg.WatchInterval)
	defer ticker.Stop()

	for {
		if err := d.CheckAndCommit(ctx); err != nil {
			logger.Errorw("Error in daemon iteration", "error", err)
		}

		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case <-ticker.C:
		}
	}
}

// CheckAndCommit performs one iteration: dirty check, conflict
// resolution, commit. A clean tree costs a single status query.
func (d *Daemon) CheckAndCommit(ctx context.Context) error {
	dirty, err := d.repo.HasChanges()
	if err != nil {
		return errors.Wrap(err, "failed to check for changes")
	}
	if !dirty {
		logger.Debugw("No changes detected")
		return nil
	}

	conflicts, err := d.repo.GetMergeConflicts()
	if err != nil {
		return errors.Wrap(err, "failed to enumerate conflicts")
	}
	if len(conflicts) > 0 {
		logger.Warnw("Merge conflicts detected", "paths", conflicts)
		d.resolver.Resolve(ctx, conflicts)
	}

	changed, err := d.repo.GetChangedFiles()
	if err != nil {
		return errors.Wrap(err, "failed to list changed files")
	}

	fallback := FallbackMessage(time.Now())
	message := d.messages.GenerateCommitMessage(ctx, changed, fallback)

	sha, err := d.repo.Commit(message)
	if errors.Is(err, errors.ErrNothingToCommit) {
		// Another actor committed between the dirty check and here
		logger.Debugw("Nothing to commit")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "commit failed")
	}

	logger.Infow("Committed changes", "commit", sha[:8], "files", len(changed))
	return nil
}

// shutdown stops owned subsystems in reverse startup order, each with
// a bounded timeout. A subsystem that does not stop in time is
// abandoned.
func (d *Daemon) shutdown() {
	logger.Infow("Daemon stopping")

	if d.listener != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
		if err := d.listener.Shutdown(ctx); err != nil {
			logger.Warnw("Request listener shutdown failed", "error", err)
		}
		cancel()
	}
	if d.queue != nil {
		d.queue.Stop()
	}
}
