package store

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/promptctl/promptctl/errors"
)

// BatchCounterName is the save counter file at the repository root.
const BatchCounterName = ".batch_counter"

// BatchCounter tracks saves since the last commit so high-frequency
// saves can share one commit. The count lives in a file inside the
// repository, surviving process restarts.
type BatchCounter struct {
	path      string
	batchSize int
	mu        sync.Mutex
}

// NewBatchCounter creates a counter that triggers every batchSize saves.
// A batchSize of 1 commits on every save.
func NewBatchCounter(repoPath string, batchSize int) *BatchCounter {
	if batchSize < 1 {
		batchSize = 1
	}
	return &BatchCounter{
		path:      filepath.Join(repoPath, BatchCounterName),
		batchSize: batchSize,
	}
}

// ShouldCommit records one save and reports whether the batch threshold
// has been reached.
func (b *BatchCounter) ShouldCommit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := b.read() + 1
	if err := b.write(count); err != nil {
		return false, err
	}
	return count >= b.batchSize, nil
}

// Reset zeroes the counter, typically right after a commit.
func (b *BatchCounter) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(0)
}

// Pending returns the number of saves since the last commit.
func (b *BatchCounter) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read()
}

// read returns the stored count; unreadable or corrupt files read as 0.
func (b *BatchCounter) read() int {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return 0
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return count
}

func (b *BatchCounter) write(count int) error {
	if err := os.WriteFile(b.path, []byte(strconv.Itoa(count)), 0o644); err != nil {
		return errors.Wrap(err, "failed to write batch counter")
	}
	return nil
}
