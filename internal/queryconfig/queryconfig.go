// Package queryconfig builds the reverse index the fan-out query client
// uses to resolve a record type to the collections that hold it, by
// scanning every partition's resume-state files.
package queryconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"vectorpart/internal/resume"
)

// RecordTypeEntry is one record type's aggregated view across partitions.
type RecordTypeEntry struct {
	Collections    []string `json:"collections"`
	Partitions     []string `json:"partitions"`
	TotalDocuments int      `json:"total_documents"`
}

// Config is the built reverse index plus the forward (collection -> record
// types) map and generation metadata.
type Config struct {
	GeneratedAt           string                      `json:"generated_at"`
	RecordTypes           map[string]*RecordTypeEntry `json:"record_types"`
	CollectionRecordTypes map[string][]string         `json:"collection_record_types"`
	TotalCollections      int                         `json:"total_collections"`
	TotalDocuments        int                         `json:"total_documents"`
}

const resumeStateSuffix = "_resume_state.json"

// Build scans partitionRoot's subdirectories in lexicographic order,
// reading every `*_resume_state.json` file, and aggregates each started
// record type (collection_count a positive int) into the record type's
// collection set, that collection's record-type set, and the record
// type's document total. Malformed or unreadable resume-state files are
// skipped, not fatal.
func Build(partitionRoot string) (*Config, error) {
	entries, err := os.ReadDir(partitionRoot)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	recordTypes := map[string]*RecordTypeEntry{}
	collectionSets := map[string]map[string]struct{}{} // collection -> record type set
	recordTypePartitions := map[string]map[string]struct{}{}
	recordTypeCollections := map[string]map[string]struct{}{}

	for _, partitionName := range names {
		partitionDir := filepath.Join(partitionRoot, partitionName)
		files, err := os.ReadDir(partitionDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !hasResumeStateSuffix(f.Name()) {
				continue
			}
			collectionName := f.Name()[:len(f.Name())-len(resumeStateSuffix)]

			doc, err := resume.Load(filepath.Join(partitionDir, f.Name()))
			if err != nil {
				continue
			}

			for recordType, state := range doc {
				if !state.Started || state.CollectionCount <= 0 {
					continue
				}
				if recordTypeCollections[recordType] == nil {
					recordTypeCollections[recordType] = map[string]struct{}{}
					recordTypePartitions[recordType] = map[string]struct{}{}
					recordTypes[recordType] = &RecordTypeEntry{}
				}
				recordTypeCollections[recordType][collectionName] = struct{}{}
				recordTypePartitions[recordType][partitionName] = struct{}{}
				recordTypes[recordType].TotalDocuments += state.CollectionCount

				if collectionSets[collectionName] == nil {
					collectionSets[collectionName] = map[string]struct{}{}
				}
				collectionSets[collectionName][recordType] = struct{}{}
			}
		}
	}

	for recordType, entry := range recordTypes {
		entry.Collections = sortedKeys(recordTypeCollections[recordType])
		entry.Partitions = sortedKeys(recordTypePartitions[recordType])
	}

	collectionRecordTypes := map[string][]string{}
	totalDocuments := 0
	for collection, set := range collectionSets {
		collectionRecordTypes[collection] = sortedKeys(set)
	}
	for _, entry := range recordTypes {
		totalDocuments += entry.TotalDocuments
	}

	return &Config{
		GeneratedAt:           time.Now().UTC().Format(time.RFC3339),
		RecordTypes:           recordTypes,
		CollectionRecordTypes: collectionRecordTypes,
		TotalCollections:      len(collectionRecordTypes),
		TotalDocuments:        totalDocuments,
	}, nil
}

func hasResumeStateSuffix(name string) bool {
	return len(name) > len(resumeStateSuffix) && name[len(name)-len(resumeStateSuffix):] == resumeStateSuffix
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Save writes cfg to path as indented JSON.
func Save(path string, cfg *Config) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
