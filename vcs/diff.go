package vcs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"
	gitdiff "github.com/go-git/go-git/v5/utils/diff"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/promptctl/promptctl/errors"
)

// Diff returns a line-oriented diff of path between HEAD and the working
// tree. Missing sides are treated as empty, so new and deleted files
// diff cleanly.
func (r *Repository) Diff(path string) (string, error) {
	committed, err := r.headContent(path)
	if err != nil {
		return "", err
	}

	var current string
	data, err := os.ReadFile(filepath.Join(r.path, path))
	if err == nil {
		current = string(data)
	} else if !os.IsNotExist(err) {
		return "", errors.Wrapf(err, "failed to read %s", path)
	}

	return renderDiff(gitdiff.Do(committed, current)), nil
}

// headContent returns the committed content of path at HEAD, or empty
// when HEAD or the file does not exist yet.
func (r *Repository) headContent(path string) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", nil // no commits yet
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve HEAD commit")
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve HEAD tree")
	}
	file, err := tree.File(path)
	if err == object.ErrFileNotFound {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s at HEAD", path)
	}
	content, err := file.Contents()
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s at HEAD", path)
	}
	return content, nil
}

// renderDiff formats line diffs with the usual -/+ prefixes.
func renderDiff(diffs []diffmatchpatch.Diff) string {
	var b strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}

		text := strings.TrimSuffix(d.Text, "\n")
		for _, line := range strings.Split(text, "\n") {
			b.WriteString(prefix)
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
