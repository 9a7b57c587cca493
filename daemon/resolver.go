package daemon

import (
	"context"
	"time"

	"github.com/promptctl/promptctl/config"
	"github.com/promptctl/promptctl/errors"
	"github.com/promptctl/promptctl/logger"
)

// Repository is the slice of the VCS surface the daemon consumes.
// *vcs.Repository satisfies it; tests substitute fakes.
type Repository interface {
	HasChanges() (bool, error)
	GetChangedFiles() ([]string, error)
	GetMergeConflicts() ([]string, error)
	Commit(message string) (string, error)
	ResolveConflictOurs(path string) error
	ResolveConflictTheirs(path string) error
	GetFileMtime(path string) (time.Time, error)
	GetLastCommitTime(path string) (time.Time, error)
}

// DefaultManualPollInterval is how often the manual strategy re-checks
// the conflict list while waiting for the user.
const DefaultManualPollInterval = 10 * time.Second

// Resolver applies one conflict resolution strategy to conflicted paths.
//
// Resolution is strictly sequential: conflicts touch shared repository
// state, and under the manual strategy the first unresolved path blocks
// the rest of the batch until the user clears it out-of-band.
type Resolver struct {
	repo       Repository
	strategy   string
	audit      *AuditLog
	manualPoll time.Duration
}

// NewResolver creates a resolver for the given strategy
// (ours, theirs, manual or timestamp).
func NewResolver(repo Repository, strategy string, audit *AuditLog) *Resolver {
	return &Resolver{
		repo:       repo,
		strategy:   strategy,
		audit:      audit,
		manualPoll: DefaultManualPollInterval,
	}
}

// Resolve applies the configured strategy to each path in order.
// A failure on one path is logged and the next path is attempted; the
// path stays conflicted for the next daemon iteration.
func (r *Resolver) Resolve(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	logger.Infow("Resolving conflicts",
		"count", len(paths),
		"strategy", r.strategy)

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		if err := r.resolveOne(ctx, path); err != nil {
			logger.Errorw("Failed to resolve conflict",
				"path", path,
				"strategy", r.strategy,
				"error", err)
			continue
		}
		if err := r.audit.Record(r.strategy, path); err != nil {
			logger.Warnw("Failed to record conflict resolution", "path", path, "error", err)
		}
	}
}

func (r *Resolver) resolveOne(ctx context.Context, path string) error {
	switch r.strategy {
	case config.StrategyOurs:
		logger.Infow("Keeping local version", "path", path)
		return r.repo.ResolveConflictOurs(path)
	case config.StrategyTheirs:
		logger.Infow("Keeping incoming version", "path", path)
		return r.repo.ResolveConflictTheirs(path)
	case config.StrategyManual:
		return r.resolveManual(ctx, path)
	case config.StrategyTimestamp:
		return r.resolveTimestamp(path)
	default:
		return errors.Newf("unknown conflict strategy %q", r.strategy)
	}
}

// resolveManual takes no corrective action: it polls the conflict list
// until the path no longer appears, signifying the user resolved it.
func (r *Resolver) resolveManual(ctx context.Context, path string) error {
	logger.Warnw("Manual intervention required",
		"path", path,
		"hint", "resolve the conflict and run: git add "+path)

	for {
		conflicts, err := r.repo.GetMergeConflicts()
		if err != nil {
			return errors.Wrap(err, "failed to poll conflict list")
		}
		if !contains(conflicts, path) {
			logger.Infow("Conflict resolved manually", "path", path)
			return nil
		}

		logger.Infow("Waiting for manual conflict resolution", "path", path)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.manualPoll):
		}
	}
}

// resolveTimestamp keeps whichever side is newer, comparing the local
// file's mtime against the last commit touching the path. The local
// side wins whenever either timestamp cannot be determined. This is a
// heuristic, not a semantic merge; wall clocks and checkout-altered
// mtimes can mislead it.
func (r *Resolver) resolveTimestamp(path string) error {
	localMtime, err := r.repo.GetFileMtime(path)
	if err != nil {
		logger.Warnw("Cannot determine local mtime, keeping local version",
			"path", path, "error", err)
		return r.repo.ResolveConflictOurs(path)
	}

	commitTime, err := r.repo.GetLastCommitTime(path)
	if err != nil {
		logger.Warnw("Cannot determine last commit time, keeping local version",
			"path", path, "error", err)
		return r.repo.ResolveConflictOurs(path)
	}

	if localMtime.After(commitTime) {
		logger.Infow("Local version is newer", "path", path)
		return r.repo.ResolveConflictOurs(path)
	}
	logger.Infow("Committed version is newer", "path", path)
	return r.repo.ResolveConflictTheirs(path)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
