package store

import (
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/promptctl/promptctl/errors"
	"github.com/promptctl/promptctl/logger"
)

// Watcher watches the prompts directory and rebuilds the tag index when
// prompt files change out-of-band (manual edits, git operations).
// Rapid bursts of events are debounced into a single rebuild.
type Watcher struct {
	tags    *TagIndex
	watcher *fsnotify.Watcher

	mu             sync.Mutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration

	isOwnWrite      bool // Flag to prevent rebuild loops on our own saves
	isOwnWriteMutex sync.Mutex
}

// NewWatcher creates a watcher over the store's prompts directory.
func NewWatcher(store *Store, tags *TagIndex) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := fsw.Add(store.PromptsPath()); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "failed to watch prompts directory %s", store.PromptsPath())
	}

	return &Watcher{
		tags:           tags,
		watcher:        fsw,
		debouncePeriod: 500 * time.Millisecond,
	}, nil
}

// MarkOwnWrite marks the next event burst as coming from us, so a save
// through the store does not trigger a rebuild.
func (w *Watcher) MarkOwnWrite() {
	w.isOwnWriteMutex.Lock()
	defer w.isOwnWriteMutex.Unlock()
	w.isOwnWrite = true
}

func (w *Watcher) checkOwnWrite() bool {
	w.isOwnWriteMutex.Lock()
	defer w.isOwnWriteMutex.Unlock()

	if w.isOwnWrite {
		w.isOwnWrite = false
		return true
	}
	return false
}

// Start begins watching in the background.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !isPromptFile(event.Name) {
				continue
			}
			if w.checkOwnWrite() {
				logger.Debugw("Prompt watcher ignoring own write", "file", event.Name)
				continue
			}

			logger.Debugw("Prompt watcher detected change",
				"file", event.Name,
				"op", event.Op.String())
			w.scheduleRebuild()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("Prompt watcher error", "error", err)
		}
	}
}

// scheduleRebuild debounces rapid changes into one index rebuild.
func (w *Watcher) scheduleRebuild() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, func() {
		if err := w.tags.Rebuild(); err != nil {
			logger.Errorw("Tag index rebuild failed", "error", err)
			return
		}
		logger.Infow("Tag index rebuilt after external change")
	})
}

// isPromptFile filters events to prompt content and metadata files.
func isPromptFile(path string) bool {
	return strings.HasSuffix(path, ".txt") || strings.HasSuffix(path, ".meta.json")
}
