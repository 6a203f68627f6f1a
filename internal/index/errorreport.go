package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrorRow is one document's state at the moment an unrecoverable batch
// failure occurred.
type ErrorRow struct {
	RowIndex int            `yaml:"row_index" json:"row_index"`
	ID       string         `yaml:"id" json:"id"`
	Document string         `yaml:"document" json:"document"`
	Metadata map[string]any `yaml:"metadata" json:"metadata"`
	Tokens   int            `yaml:"token_count" json:"token_count"`
}

// ErrorReport is persisted under <state_dir>/errors/ whenever a batch
// upsert fails for a reason other than a recoverable duplicate id.
type ErrorReport struct {
	Timestamp  string         `yaml:"timestamp" json:"timestamp"`
	RecordType string         `yaml:"record_type" json:"record_type"`
	Collection string         `yaml:"collection" json:"collection"`
	Reason     string         `yaml:"reason" json:"reason"`
	SourceCSV  string         `yaml:"source_csv" json:"source_csv"`
	Rows       []ErrorRow     `yaml:"rows" json:"rows"`
	ResumeState map[string]any `yaml:"resume_state,omitempty" json:"resume_state,omitempty"`
	Error      string         `yaml:"error" json:"error"`
}

// jsonMarshalIndent is the fallback encoder used when yaml.Marshal fails.
func jsonMarshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

var unsafeFilenameChars = regexp.MustCompile(`[^0-9A-Za-z_.-]`)

// safeFilenameComponent strips every character outside [0-9A-Za-z_.-] to
// "_", per the pipeline's filename convention for record-type-derived
// names.
func safeFilenameComponent(s string) string {
	return unsafeFilenameChars.ReplaceAllString(s, "_")
}

// WriteErrorReport writes report to <stateDir>/errors/, retrying with a
// "_N" suffix if the timestamped name collides, and returns the path
// written.
func WriteErrorReport(stateDir string, report ErrorReport, now time.Time) (string, error) {
	dir := filepath.Join(stateDir, "errors")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("index: create error report directory %q: %w", dir, err)
	}

	if report.Timestamp == "" {
		report.Timestamp = now.UTC().Format(time.RFC3339)
	}

	stamp := now.UTC().Format("20060102T150405.000000Z")
	base := fmt.Sprintf("%s_%s", stamp, safeFilenameComponent(report.RecordType))

	b, marshalErr := yaml.Marshal(report)
	ext := ".yaml"
	if marshalErr != nil {
		var jsonErr error
		b, jsonErr = jsonMarshalIndent(report)
		if jsonErr != nil {
			return "", fmt.Errorf("index: encode error report: yaml: %v, json: %w", marshalErr, jsonErr)
		}
		ext = ".json"
	}

	for attempt := 0; ; attempt++ {
		name := base + ext
		if attempt > 0 {
			name = fmt.Sprintf("%s_%d%s", base, attempt, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("index: create error report %q: %w", path, err)
		}
		_, writeErr := f.Write(b)
		closeErr := f.Close()
		if writeErr != nil {
			return "", fmt.Errorf("index: write error report %q: %w", path, writeErr)
		}
		if closeErr != nil {
			return "", fmt.Errorf("index: close error report %q: %w", path, closeErr)
		}
		return path, nil
	}
}
