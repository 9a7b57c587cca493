package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/promptctl/promptctl/errors"
)

// AuditLogName is the append-only conflict resolution log kept at the
// repository root. It is the sole record for debugging incorrect
// auto-resolutions and is never rewritten.
const AuditLogName = ".conflict_log.txt"

// AuditLog appends conflict resolution records as
// "timestamp | strategy | path" lines.
type AuditLog struct {
	path string
	mu   sync.Mutex
}

// NewAuditLog creates an audit log stored in repoPath.
func NewAuditLog(repoPath string) *AuditLog {
	return &AuditLog{path: filepath.Join(repoPath, AuditLogName)}
}

// Record appends one resolution line.
func (a *AuditLog) Record(strategy, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "failed to open conflict log")
	}
	defer f.Close()

	line := fmt.Sprintf("%s | %s | %s\n", time.Now().Format(time.RFC3339), strategy, path)
	if _, err := f.WriteString(line); err != nil {
		return errors.Wrap(err, "failed to append to conflict log")
	}
	return nil
}

// Entries returns all recorded lines, oldest first. A missing log file
// reads as empty.
func (a *AuditLog) Entries() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := os.ReadFile(a.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read conflict log")
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}
