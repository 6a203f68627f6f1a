// Package manifest reads and writes the append-only JSON document that
// tracks every partition, run, schema version, and drop ever recorded by
// the pipeline.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vectorpart/internal/errs"
)

// CurrentVersion is the manifest schema version this package reads and
// writes. Load rejects any other value.
const CurrentVersion = 1

// SchemaEntry is the registry's record of a record type's last-seen
// signature and the schema version assigned to it.
type SchemaEntry struct {
	Signature string `json:"signature"`
	Version   int    `json:"version"`
}

// ModelInfo describes one record type's presence within a partition.
type ModelInfo struct {
	SchemaSignature string `json:"schema_signature"`
	SchemaVersion   int    `json:"schema_version"`
	Rows            int    `json:"rows,omitempty"`
	Deleted         bool   `json:"deleted,omitempty"`
	DeletedAt       string `json:"deleted_at,omitempty"`
}

// PartitionEntry is one partition's manifest record.
type PartitionEntry struct {
	Name        string               `json:"name"`
	Dir         string               `json:"dir"`
	Models      map[string]ModelInfo `json:"models"`
	Stale       bool                 `json:"stale"`
	StaleReason string               `json:"stale_reason,omitempty"`
	StaleAt     string               `json:"stale_at,omitempty"`
	Replaces    []string             `json:"replaces,omitempty"`
	ReplacedBy  []string             `json:"replaced_by,omitempty"`
	CreatedAt   string               `json:"created_at"`
	RunID       string               `json:"run_id"`
}

// Run is one recorded invocation of the partitioning engine.
type Run struct {
	ID         string   `json:"id"`
	ConfigPath string   `json:"config_path"`
	CreatedAt  string   `json:"created_at"`
	Partitions []string `json:"partitions"`
}

// DropRecord is an audit entry for an applied drop (see internal/drop).
type DropRecord struct {
	ID          string   `json:"id"`
	GeneratedAt string   `json:"generated_at"`
	AppliedAt   string   `json:"applied_at,omitempty"`
	Models      []string `json:"models"`
	Reason      string   `json:"reason,omitempty"`
}

// Manifest is the full top-level document.
type Manifest struct {
	Version      int                    `json:"version"`
	Partitions   []PartitionEntry       `json:"partitions"`
	Runs         []Run                  `json:"runs"`
	ModelSchemas map[string]SchemaEntry `json:"model_schemas"`
	Drops        []DropRecord           `json:"drops"`
}

// Empty returns a freshly initialized manifest at CurrentVersion.
func Empty() *Manifest {
	return &Manifest{
		Version:      CurrentVersion,
		ModelSchemas: map[string]SchemaEntry{},
	}
}

// Load reads the manifest at path, or returns Empty() if the file does not
// exist yet (a brand new partition root). A present manifest whose version
// does not match CurrentVersion is a fatal ConfigError-class condition.
func Load(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: read %q: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode %q: %w", path, err)
	}
	if m.Version != CurrentVersion {
		return nil, errs.New(errs.Config, fmt.Errorf("manifest: %q has version %d, expected %d", path, m.Version, CurrentVersion))
	}
	if m.ModelSchemas == nil {
		m.ModelSchemas = map[string]SchemaEntry{}
	}
	return &m, nil
}

// Save writes m to path atomically: encode to a sibling temp file, then
// rename over the destination.
func Save(path string, m *Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("manifest: create directory for %q: %w", path, err)
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("manifest: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("manifest: rename %q to %q: %w", tmp, path, err)
	}
	return nil
}

// PropagateSchema resolves the schema version for recordType given its
// current signature, per the monotonic version-propagation rule: version 1
// if unseen, unchanged if the signature matches, prior+1 if it differs.
// Returns the resolved version and whether the record type is "modified"
// in this run (signature changed from a prior one).
func (m *Manifest) PropagateSchema(recordType, signature string) (version int, modified bool) {
	prior, ok := m.ModelSchemas[recordType]
	if !ok {
		return 1, false
	}
	if prior.Signature == signature {
		return prior.Version, false
	}
	return prior.Version + 1, true
}

// NonStalePartitions returns the partitions not marked stale.
func (m *Manifest) NonStalePartitions() []PartitionEntry {
	var out []PartitionEntry
	for _, p := range m.Partitions {
		if !p.Stale {
			out = append(out, p)
		}
	}
	return out
}

// HighestPartitionIndex returns the highest numeric suffix among all
// recorded partition names (stale or not), or -1 if none exist.
func (m *Manifest) HighestPartitionIndex() int {
	highest := -1
	for _, p := range m.Partitions {
		if n, ok := parsePartitionIndex(p.Name); ok && n > highest {
			highest = n
		}
	}
	return highest
}
