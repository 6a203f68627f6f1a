// Package config loads and validates the TOML prep-config that drives a
// partitioning run, following the teacher's decode-struct-then-convert
// parsing convention. Drop plans (package drop) and the record-type
// registry (package registry) are loaded elsewhere.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"vectorpart/internal/csvsource"
	"vectorpart/internal/digest"
	"vectorpart/internal/errs"
)

// ModelConfig is one record type's ingestion configuration: where its
// source rows come from, how source columns map onto target fields, which
// columns veto a row when empty, and the field list used to compute its
// schema signature.
type ModelConfig struct {
	SourceTemplate  string                    `toml:"source"`
	Columns         map[string]string         `toml:"columns"`
	DropNAColumns   []string                  `toml:"drop_na_columns"`
	HeaderRow       csvsource.HeaderRowPolicy `toml:"header_row"`
	MalformedColumn int                       `toml:"malformed_column"`
	Delimiter       string                    `toml:"delimiter"`
	Fields          []digest.FieldSpec        `toml:"fields"`
}

// PrepConfig is the top-level partitioning-run configuration: one
// ModelConfig per record type, plus the run-wide partition size cap.
type PrepConfig struct {
	DirectorySize int                    `toml:"directory_size"`
	Models        map[string]ModelConfig `toml:"models"`
}

// LoadPrepConfig reads and validates a TOML prep-config file.
func LoadPrepConfig(path string) (*PrepConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.Config, fmt.Errorf("config: read %q: %w", path, err))
	}

	var cfg PrepConfig
	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return nil, errs.New(errs.Config, fmt.Errorf("config: decode %q: %w", path, err))
	}

	if cfg.DirectorySize < 0 {
		return nil, errs.New(errs.Config, fmt.Errorf("config: directory_size must be >= 0, got %d", cfg.DirectorySize))
	}

	for name, m := range cfg.Models {
		if m.SourceTemplate == "" {
			return nil, errs.New(errs.Config, fmt.Errorf("config: model %q: source is required", name))
		}
		switch m.HeaderRow {
		case "", csvsource.HeaderAll, csvsource.HeaderFirstOnly:
		default:
			return nil, errs.New(errs.Config, fmt.Errorf("config: model %q: header_row must be \"all\" or \"first-only\", got %q", name, m.HeaderRow))
		}
		if m.MalformedColumn < 0 {
			return nil, errs.New(errs.Config, fmt.Errorf("config: model %q: malformed_column must be a positive 1-based index", name))
		}
		for _, col := range m.DropNAColumns {
			if col == "" {
				return nil, errs.New(errs.Config, fmt.Errorf("config: model %q: drop_na_columns entries must be non-empty strings", name))
			}
		}
	}

	return &cfg, nil
}
