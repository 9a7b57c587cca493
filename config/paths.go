package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading ~ to the user's home directory. Paths
// without a ~ prefix are returned unchanged.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// RepoPath returns the configured repository path with ~ expanded.
func (c *Config) RepoPath() string {
	return ExpandHome(c.Repo.Path)
}
