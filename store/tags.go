package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/promptctl/promptctl/errors"
)

// TagIndexName is the tag index file kept at the repository root. It is
// plain JSON inside the git tree, so conflicts on it merge as text.
const TagIndexName = ".tags_index.json"

// TagIndex maintains a tag -> prompt IDs mapping alongside the per-prompt
// metadata sidecars. The sidecars are the source of truth; the index is a
// rebuildable acceleration structure.
type TagIndex struct {
	store *Store
	path  string
	index map[string][]string
}

// NewTagIndex loads (or initializes) the tag index for a store.
// A corrupt index file is replaced by an empty index; call Rebuild to
// repopulate it from the sidecars.
func NewTagIndex(repoPath string, store *Store) *TagIndex {
	ti := &TagIndex{
		store: store,
		path:  filepath.Join(repoPath, TagIndexName),
		index: make(map[string][]string),
	}
	if data, err := os.ReadFile(ti.path); err == nil {
		var loaded map[string][]string
		if json.Unmarshal(data, &loaded) == nil {
			ti.index = loaded
		}
	}
	return ti
}

// AddTags tags a prompt, updating both the metadata sidecar and the
// index. Fails with ErrNotFound for unknown prompts.
func (ti *TagIndex) AddTags(promptID string, tags []string) error {
	if !ti.store.Exists(promptID) {
		return errors.NewNotFoundError("prompt %s not found", promptID)
	}

	normalized := normalizeTags(tags)

	meta, _ := ti.store.readMetadata(promptID)
	meta.ID = promptID
	meta.Tags = mergeTags(meta.Tags, normalized)
	if err := ti.store.writeMetadata(promptID, meta); err != nil {
		return err
	}

	for _, tag := range normalized {
		if !contains(ti.index[tag], promptID) {
			ti.index[tag] = append(ti.index[tag], promptID)
		}
	}
	return ti.save()
}

// RemoveTags untags a prompt, dropping emptied tags from the index.
func (ti *TagIndex) RemoveTags(promptID string, tags []string) error {
	if !ti.store.Exists(promptID) {
		return errors.NewNotFoundError("prompt %s not found", promptID)
	}

	normalized := normalizeTags(tags)

	meta, _ := ti.store.readMetadata(promptID)
	meta.ID = promptID
	meta.Tags = subtractTags(meta.Tags, normalized)
	if err := ti.store.writeMetadata(promptID, meta); err != nil {
		return err
	}

	for _, tag := range normalized {
		ti.index[tag] = remove(ti.index[tag], promptID)
		if len(ti.index[tag]) == 0 {
			delete(ti.index, tag)
		}
	}
	return ti.save()
}

// Tags returns the tags of one prompt, from its sidecar.
func (ti *TagIndex) Tags(promptID string) []string {
	meta, _ := ti.store.readMetadata(promptID)
	return meta.Tags
}

// AllTags returns every tag with its prompt count, computed from the
// sidecars rather than the index so stale index entries never inflate
// counts.
func (ti *TagIndex) AllTags() (map[string]int, error) {
	summaries, err := ti.store.List()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, s := range summaries {
		for _, tag := range s.Tags {
			counts[tag]++
		}
	}
	return counts, nil
}

// FilterByTags returns prompt IDs matching the tags: all of them when
// matchAll is set, any of them otherwise.
func (ti *TagIndex) FilterByTags(tags []string, matchAll bool) ([]string, error) {
	normalized := normalizeTags(tags)
	if len(normalized) == 0 {
		return nil, nil
	}

	summaries, err := ti.store.List()
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, s := range summaries {
		have := make(map[string]bool, len(s.Tags))
		for _, tag := range s.Tags {
			have[tag] = true
		}

		matched := 0
		for _, tag := range normalized {
			if have[tag] {
				matched++
			}
		}
		if (matchAll && matched == len(normalized)) || (!matchAll && matched > 0) {
			ids = append(ids, s.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Rebuild regenerates the index from every metadata sidecar. Used to
// recover from corruption or out-of-band edits.
func (ti *TagIndex) Rebuild() error {
	summaries, err := ti.store.List()
	if err != nil {
		return err
	}

	index := make(map[string][]string)
	for _, s := range summaries {
		for _, tag := range s.Tags {
			if !contains(index[tag], s.ID) {
				index[tag] = append(index[tag], s.ID)
			}
		}
	}
	ti.index = index
	return ti.save()
}

func (ti *TagIndex) save() error {
	data, err := json.MarshalIndent(ti.index, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal tag index")
	}
	if err := os.WriteFile(ti.path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write tag index")
	}
	return nil
}

func mergeTags(existing, added []string) []string {
	return normalizeTags(append(append([]string(nil), existing...), added...))
}

func subtractTags(existing, removed []string) []string {
	drop := make(map[string]bool, len(removed))
	for _, tag := range removed {
		drop[tag] = true
	}
	var out []string
	for _, tag := range existing {
		if !drop[tag] {
			out = append(out, tag)
		}
	}
	return normalizeTags(out)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, item := range list {
		if item != s {
			out = append(out, item)
		}
	}
	return out
}
