// Package resume persists per-(partition, record type) indexing progress
// so an interrupted run can continue from the exact byte it left off, or
// degrade gracefully to skipping by row count when that isn't possible.
package resume

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vectorpart/internal/csvsource"
)

// SourceSignature identifies a source file's on-disk state at the moment
// progress was last persisted, used to detect "nothing changed, skip
// entirely" at record-type start.
type SourceSignature struct {
	Mtime float64 `json:"mtime"`
	Size  int64   `json:"size"`
}

// StatSignature computes the current SourceSignature for path.
func StatSignature(path string) (*SourceSignature, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("resume: stat %q: %w", path, err)
	}
	return &SourceSignature{Mtime: float64(info.ModTime().UnixNano()) / 1e9, Size: info.Size()}, nil
}

// Equal reports whether two signatures refer to the same unmodified file.
func (s *SourceSignature) Equal(other *SourceSignature) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Mtime == other.Mtime && s.Size == other.Size
}

// State is one record type's persisted cursor within a collection.
type State struct {
	Started          bool             `json:"started"`
	Complete         bool             `json:"complete"`
	IndexedAt        string           `json:"indexed_at,omitempty"`
	DocumentsIndexed int              `json:"documents_indexed,omitempty"`
	CollectionCount  int              `json:"collection_count,omitempty"`
	SourceSignature  *SourceSignature `json:"source_signature,omitempty"`
	FileIndex        int              `json:"file_index,omitempty"`
	FileOffset       *int64           `json:"file_offset,omitempty"`
	RowIndex         int              `json:"row_index"`
	Fieldnames       []string         `json:"fieldnames,omitempty"`
}

// Document is the full contents of one <partition_name>_resume_state.json
// file: one State per record type.
type Document map[string]State

// Load reads the resume-state document at path, or returns an empty
// Document if it does not exist yet.
func Load(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resume: read %q: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("resume: decode %q: %w", path, err)
	}
	return doc, nil
}

// Save writes doc to path atomically.
func Save(path string, doc Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("resume: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("resume: create directory for %q: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("resume: write %q: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// FileName derives the resume-state filename for a partition/collection.
func FileName(collectionName string) string {
	return collectionName + "_resume_state.json"
}

// Open resolves how to resume reading paths for a record type given its
// persisted state: offset mode (seek directly to the stored byte offset,
// reusing the stored fieldnames as header) if a file offset was recorded
// and the seek succeeds, else count mode (read from the start and skip
// rows up to the stored count) as a graceful fallback. usedOffsetMode
// reports which path was taken; a caller that gets usedOffsetMode=false
// after state.FileOffset was non-nil should log a seek-failure warning and
// treat state as cleared going forward.
func Open(paths []string, opts csvsource.Options, state State) (reader *csvsource.Reader, usedOffsetMode bool, err error) {
	if state.Started && !state.Complete && state.FileOffset != nil && len(state.Fieldnames) > 0 {
		offsetOpts := opts
		offsetOpts.Fieldnames = state.Fieldnames
		r, openErr := csvsource.NewReaderAtOffset(paths, offsetOpts, state.FileIndex, *state.FileOffset, state.RowIndex)
		if openErr == nil {
			return r, true, nil
		}
	}

	r, err := csvsource.NewReader(paths, opts)
	if err != nil {
		return nil, false, err
	}
	if state.Started && !state.Complete {
		skip := state.RowIndex
		if skip == 0 {
			skip = state.DocumentsIndexed
		}
		for i := 0; i < skip; i++ {
			if _, err := r.Next(); err != nil {
				break
			}
		}
	}
	return r, false, nil
}
