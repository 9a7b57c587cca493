package vcs

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5/plumbing/format/index"

	"github.com/promptctl/promptctl/errors"
	"github.com/promptctl/promptctl/logger"
)

// Index stage numbers for unmerged entries, per the git index format:
// stage 0 is fully merged, 1 is the common ancestor, 2 is the local
// side and 3 is the incoming side.
const (
	stageMerged   index.Stage = 0
	stageAncestor index.Stage = 1
	stageOurs     index.Stage = 2
	stageTheirs   index.Stage = 3
)

// GetMergeConflicts returns the paths currently in a conflicted
// (unmerged) state, sorted for stable output. Conflicts are read from
// the index: any path with entries above stage 0 is unmerged.
func (r *Repository) GetMergeConflicts() ([]string, error) {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read index")
	}

	seen := make(map[string]bool)
	var paths []string
	for _, entry := range idx.Entries {
		if entry.Stage != stageMerged && !seen[entry.Name] {
			seen[entry.Name] = true
			paths = append(paths, entry.Name)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// ResolveConflictOurs resolves a conflicted path by keeping the local
// side: the stage-2 blob is materialized into the working tree and the
// index entry collapsed to a merged one.
func (r *Repository) ResolveConflictOurs(path string) error {
	return r.resolveConflict(path, stageOurs)
}

// ResolveConflictTheirs resolves a conflicted path by keeping the
// incoming side (the stage-3 blob).
func (r *Repository) ResolveConflictTheirs(path string) error {
	return r.resolveConflict(path, stageTheirs)
}

func (r *Repository) resolveConflict(path string, stage index.Stage) error {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return errors.Wrap(err, "failed to read index")
	}

	var chosen *index.Entry
	for _, entry := range idx.Entries {
		if entry.Name == path && entry.Stage == stage {
			chosen = entry
			break
		}
	}
	if chosen == nil {
		return errors.Newf("no stage %d entry for conflicted path %s", stage, path)
	}

	// Materialize the chosen blob into the working tree
	blob, err := r.repo.BlobObject(chosen.Hash)
	if err != nil {
		return errors.Wrapf(err, "failed to read blob for %s", path)
	}
	reader, err := blob.Reader()
	if err != nil {
		return errors.Wrapf(err, "failed to open blob for %s", path)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return errors.Wrapf(err, "failed to read blob for %s", path)
	}
	target := filepath.Join(r.path, path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write resolved file %s", path)
	}

	// Collapse the unmerged stages into a single merged entry
	kept := idx.Entries[:0]
	for _, entry := range idx.Entries {
		if entry.Name != path {
			kept = append(kept, entry)
		}
	}
	merged := *chosen
	merged.Stage = stageMerged
	idx.Entries = append(kept, &merged)

	if err := r.repo.Storer.SetIndex(idx); err != nil {
		return errors.Wrap(err, "failed to write index")
	}

	logger.Debugw("Resolved conflict", "path", path, "stage", int(stage))
	return nil
}
