package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeExternalPrompt writes content and sidecar directly, bypassing the
// store, the way a manual edit or a git checkout lands on disk.
func writeExternalPrompt(t *testing.T, s *Store, id string, tags []string) {
	t.Helper()

	meta := Metadata{ID: id, CreatedAt: time.Now(), Tags: tags}
	data, err := json.Marshal(meta)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(s.PromptsPath(), id+".txt"), []byte("external content\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.PromptsPath(), id+".meta.json"), data, 0o644))
}

func TestWatcherRebuildsOnExternalChange(t *testing.T) {
	s, dir := newStore(t)
	tags := NewTagIndex(dir, s)

	w, err := NewWatcher(s, tags)
	require.NoError(t, err)
	w.debouncePeriod = 20 * time.Millisecond
	w.Start()
	defer w.Stop()

	writeExternalPrompt(t, s, "ext", []string{"external"})

	// The rebuild persists the index file, so poll that rather than the
	// in-memory map the rebuild goroutine owns.
	indexPath := filepath.Join(dir, TagIndexName)
	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(indexPath)
		if err != nil {
			return false
		}
		var index map[string][]string
		if json.Unmarshal(data, &index) != nil {
			return false
		}
		return contains(index["external"], "ext")
	}, 3*time.Second, 25*time.Millisecond, "external write triggers an index rebuild")
}

func TestWatcherOwnWriteFlagIsOneShot(t *testing.T) {
	s, dir := newStore(t)
	w, err := NewWatcher(s, NewTagIndex(dir, s))
	require.NoError(t, err)
	defer w.Stop()

	assert.False(t, w.checkOwnWrite())

	w.MarkOwnWrite()
	assert.True(t, w.checkOwnWrite())
	assert.False(t, w.checkOwnWrite(), "flag resets after one check")
}

func TestIsPromptFile(t *testing.T) {
	assert.True(t, isPromptFile("prompts/greeting.txt"))
	assert.True(t, isPromptFile("prompts/greeting.meta.json"))
	assert.False(t, isPromptFile("prompts/.tags_index.json"))
	assert.False(t, isPromptFile("prompts/notes.md"))
}
