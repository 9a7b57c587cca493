// Package store is the file-based prompt content store: one text file
// plus one metadata sidecar per prompt, all living inside the
// version-controlled repository so every artifact stays mergeable text.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promptctl/promptctl/errors"
)

// PromptsDir is the subdirectory holding prompt files.
const PromptsDir = "prompts"

// Prompt is one stored prompt with its sidecar metadata.
type Prompt struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags"`
	Metadata Metadata `json:"metadata"`
}

// Metadata is the sidecar .meta.json payload. Extra keys callers store
// survive round trips through Extra.
type Metadata struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Tags      []string          `json:"tags"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Summary is the listing view of a prompt, without content.
type Summary struct {
	ID   string   `json:"id"`
	Tags []string `json:"tags"`
}

// Store manages prompts under <repo>/prompts.
type Store struct {
	repoPath   string
	promptsDir string
}

// New creates a store rooted at repoPath, creating the prompts
// directory if needed.
func New(repoPath string) (*Store, error) {
	promptsDir := filepath.Join(repoPath, PromptsDir)
	if err := os.MkdirAll(promptsDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create prompts directory %s", promptsDir)
	}
	return &Store{repoPath: repoPath, promptsDir: promptsDir}, nil
}

// PromptsPath returns the prompts directory.
func (s *Store) PromptsPath() string {
	return s.promptsDir
}

// Save stores content under name (or a generated UUID when name is
// empty) and writes the metadata sidecar. Returns the prompt ID.
func (s *Store) Save(content, name string, tags []string, extra map[string]string) (string, error) {
	id := name
	if id == "" {
		id = uuid.NewString()
	}
	if strings.ContainsAny(id, "/\\") {
		return "", errors.NewInvalidRequestError("prompt id %q must not contain path separators", id)
	}

	if err := os.WriteFile(s.contentPath(id), []byte(content), 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write prompt %s", id)
	}

	meta := Metadata{
		ID:        id,
		CreatedAt: time.Now(),
		Tags:      normalizeTags(tags),
		Extra:     extra,
	}
	if err := s.writeMetadata(id, meta); err != nil {
		return "", err
	}
	return id, nil
}

// Get retrieves a prompt by ID. A missing metadata sidecar is tolerated;
// a missing content file is ErrNotFound.
func (s *Store) Get(id string) (*Prompt, error) {
	content, err := os.ReadFile(s.contentPath(id))
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("prompt %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read prompt %s", id)
	}

	meta, _ := s.readMetadata(id)
	return &Prompt{
		ID:       id,
		Content:  string(content),
		Tags:     meta.Tags,
		Metadata: meta,
	}, nil
}

// List returns summaries for all prompts, sorted by ID.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.promptsDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read prompts directory")
	}

	var summaries []Summary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".txt") {
			continue
		}
		id := strings.TrimSuffix(name, ".txt")
		meta, _ := s.readMetadata(id)
		summaries = append(summaries, Summary{ID: id, Tags: meta.Tags})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

// Delete removes a prompt and its metadata sidecar.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.contentPath(id)); os.IsNotExist(err) {
		return errors.NewNotFoundError("prompt %s not found", id)
	} else if err != nil {
		return errors.Wrapf(err, "failed to delete prompt %s", id)
	}
	// Sidecar may legitimately be absent
	_ = os.Remove(s.metaPath(id))
	return nil
}

// Exists reports whether a prompt's content file is present.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.contentPath(id))
	return err == nil
}

func (s *Store) contentPath(id string) string {
	return filepath.Join(s.promptsDir, id+".txt")
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.promptsDir, id+".meta.json")
}

func (s *Store) readMetadata(id string) (Metadata, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		return Metadata{ID: id}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		// Corrupt sidecars read as empty rather than failing the prompt
		return Metadata{ID: id}, err
	}
	return meta, nil
}

func (s *Store) writeMetadata(id string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to marshal metadata for %s", id)
	}
	if err := os.WriteFile(s.metaPath(id), data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write metadata for %s", id)
	}
	return nil
}

// normalizeTags lowercases and trims tags, dropping empties and
// duplicates, and returns them sorted.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
