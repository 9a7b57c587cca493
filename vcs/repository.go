// Package vcs wraps go-git with the repository operations the daemon and
// pipeline need: dirty checks, commits, conflict enumeration and
// resolution, and file timestamps.
package vcs

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/promptctl/promptctl/errors"
	"github.com/promptctl/promptctl/logger"
)

// Default commit identity when the repository has no configured user.
const (
	defaultAuthorName  = "promptctl"
	defaultAuthorEmail = "promptctl@localhost"
)

// Repository is a handle on one local git repository.
// All paths passed to its methods are relative to the repository root.
type Repository struct {
	path string
	repo *git.Repository
}

// IsInitialized reports whether path contains a git repository.
func IsInitialized(path string) bool {
	_, err := git.PlainOpen(path)
	return err == nil
}

// Open opens an existing repository at path.
func Open(path string) (*Repository, error) {
	repo, err := git.PlainOpen(path)
	if err == git.ErrRepositoryNotExists {
		return nil, errors.Wrapf(errors.ErrNotInitialized, "no repository at %s", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open repository at %s", path)
	}
	return &Repository{path: path, repo: repo}, nil
}

// Init creates a repository at path, creating the directory if needed.
// Opening an already-initialized path is not an error.
func Init(path string) (*Repository, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create repository directory %s", path)
	}

	repo, err := git.PlainInit(path, false)
	if err == git.ErrRepositoryAlreadyExists {
		return Open(path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to initialize repository at %s", path)
	}

	logger.Infow("Initialized repository", "path", path)
	return &Repository{path: path, repo: repo}, nil
}

// Path returns the repository root.
func (r *Repository) Path() string {
	return r.path
}

// HasChanges reports whether the working tree is dirty, counting modified
// and untracked files alike. This is the daemon's cheap no-op check.
func (r *Repository) HasChanges() (bool, error) {
	status, err := r.status()
	if err != nil {
		return false, err
	}
	return !status.IsClean(), nil
}

// GetChangedFiles returns the paths of all modified, added, deleted and
// untracked files, sorted for stable output.
func (r *Repository) GetChangedFiles() ([]string, error) {
	status, err := r.status()
	if err != nil {
		return nil, err
	}

	var files []string
	for path, fs := range status {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// Status returns the working tree status keyed by path.
func (r *Repository) Status() (git.Status, error) {
	return r.status()
}

// Commit stages everything and commits with the given message.
// Returns ErrNothingToCommit when the tree is clean, which callers in
// the daemon loop treat as a benign race.
func (r *Repository) Commit(message string) (string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", errors.Wrap(err, "failed to get worktree")
	}

	status, err := wt.Status()
	if err != nil {
		return "", errors.Wrap(err, "failed to get worktree status")
	}
	if status.IsClean() {
		return "", errors.ErrNothingToCommit
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", errors.Wrap(err, "failed to stage changes")
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: r.signature(),
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to commit")
	}

	logger.Debugw("Committed changes", "commit", hash.String()[:7], "message", message)
	return hash.String(), nil
}

// GetFileMtime returns the working-tree modification time of path.
// Returns ErrNotFound when the file does not exist.
func (r *Repository) GetFileMtime(path string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(r.path, path))
	if os.IsNotExist(err) {
		return time.Time{}, errors.NewNotFoundError("file %s not in working tree", path)
	}
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "failed to stat %s", path)
	}
	return info.ModTime(), nil
}

// GetLastCommitTime returns the committer timestamp of the most recent
// commit touching path. Returns ErrNotFound when no commit touches it.
func (r *Repository) GetLastCommitTime(path string) (time.Time, error) {
	iter, err := r.repo.Log(&git.LogOptions{
		FileName: &path,
		Order:    git.LogOrderCommitterTime,
	})
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "failed to read log for %s", path)
	}
	defer iter.Close()

	commit, err := iter.Next()
	if err != nil {
		return time.Time{}, errors.NewNotFoundError("no commit touches %s", path)
	}
	return commit.Committer.When, nil
}

// Log returns up to limit recent commits, newest first.
func (r *Repository) Log(limit int) ([]*object.Commit, error) {
	iter, err := r.repo.Log(&git.LogOptions{Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, errors.Wrap(err, "failed to read log")
	}
	defer iter.Close()

	var commits []*object.Commit
	for limit <= 0 || len(commits) < limit {
		commit, err := iter.Next()
		if err != nil {
			break
		}
		commits = append(commits, commit)
	}
	return commits, nil
}

// Push pushes the current branch to origin. Already-up-to-date is not
// an error.
func (r *Repository) Push() error {
	err := r.repo.Push(&git.PushOptions{})
	if err == git.NoErrAlreadyUpToDate {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to push")
	}
	return nil
}

// Pull fast-forwards the current branch from origin. Already-up-to-date
// is not an error.
func (r *Repository) Pull() error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "failed to get worktree")
	}

	err = wt.Pull(&git.PullOptions{})
	if err == git.NoErrAlreadyUpToDate {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to pull")
	}
	return nil
}

func (r *Repository) status() (git.Status, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get worktree")
	}
	status, err := wt.Status()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get worktree status")
	}
	return status, nil
}

// signature builds the commit identity from repository config, falling
// back to a fixed daemon identity when none is set.
func (r *Repository) signature() *object.Signature {
	name, email := defaultAuthorName, defaultAuthorEmail
	if cfg, err := r.repo.ConfigScoped(config.GlobalScope); err == nil {
		if cfg.User.Name != "" {
			name = cfg.User.Name
		}
		if cfg.User.Email != "" {
			email = cfg.User.Email
		}
	}
	return &object.Signature{
		Name:  name,
		Email: email,
		When:  time.Now(),
	}
}
