// Package drop implements the plan/apply split for retiring record types
// from the partition tree: GeneratePlan decides what would be removed
// (optionally bounded by a creation-date window) without touching disk,
// and Apply physically removes it and records the change in the manifest.
package drop

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"vectorpart/internal/manifest"
)

// ModelDrop is one record type's portion of a Plan.
type ModelDrop struct {
	Partitions     []string `json:"partitions"`
	SchemaVersions []int    `json:"schema_versions"`
	Reason         string   `json:"reason,omitempty"`
}

// Plan is a reviewable, disk-persisted description of what Apply would do.
type Plan struct {
	GeneratedAt    string               `json:"generated_at"`
	SourceManifest string               `json:"source_manifest"`
	Models         map[string]ModelDrop `json:"models"`
}

// GeneratePlan scans manifestPath's partitions for each requested record
// type, matching those whose CreatedAt falls in [after, before) and whose
// model entry is not already deleted. before/after may be nil to leave
// that bound open.
func GeneratePlan(manifestPath string, models []string, before, after *time.Time, defaultReason string) (*Plan, error) {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
		SourceManifest: manifestPath,
		Models:         map[string]ModelDrop{},
	}

	for _, model := range models {
		var partitions []string
		versionSet := map[int]struct{}{}

		for _, p := range m.Partitions {
			info, ok := p.Models[model]
			if !ok || info.Deleted {
				continue
			}
			createdAt, err := time.Parse(time.RFC3339, p.CreatedAt)
			if err != nil {
				// partition.Run writes CreatedAt without a zone; read it as UTC.
				createdAt, err = time.Parse("2006-01-02T15:04:05", p.CreatedAt)
			}
			if err != nil {
				continue
			}
			if after != nil && createdAt.Before(*after) {
				continue
			}
			if before != nil && !createdAt.Before(*before) {
				continue
			}
			partitions = append(partitions, p.Name)
			versionSet[info.SchemaVersion] = struct{}{}
		}

		if len(partitions) == 0 {
			continue
		}
		sort.Strings(partitions)
		versions := make([]int, 0, len(versionSet))
		for v := range versionSet {
			versions = append(versions, v)
		}
		sort.Ints(versions)

		plan.Models[model] = ModelDrop{Partitions: partitions, SchemaVersions: versions, Reason: defaultReason}
	}

	return plan, nil
}

// SavePlan writes plan to path as canonical, indented JSON.
func SavePlan(path string, plan *Plan) error {
	b, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// LoadPlan reads a plan previously written by SavePlan.
func LoadPlan(path string) (*Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var plan Plan
	if err := json.Unmarshal(b, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ApplyResult summarizes what Apply removed (or, for a dry run, would
// remove).
type ApplyResult struct {
	DryRun         bool
	RemovedFiles   []string
	UpdatedModels  []string
}

// Apply removes, for each (model, partitions) pair in plan, that model's
// CSV and digest sidecar from every named partition directory under
// partitionRoot — or, when dryRun, only reports what would be removed —
// marks each affected manifest partition entry's model sub-record deleted,
// and appends a drops[] audit entry before saving the manifest back to
// manifestPath. The manifest is left untouched on a dry run.
func Apply(manifestPath, partitionRoot string, plan *Plan, dryRun bool) (*ApplyResult, error) {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{DryRun: dryRun}
	now := time.Now().UTC().Format(time.RFC3339)

	models := make([]string, 0, len(plan.Models))
	for model := range plan.Models {
		models = append(models, model)
	}
	sort.Strings(models)

	for _, model := range models {
		md := plan.Models[model]
		for _, partitionName := range md.Partitions {
			csvPath := filepath.Join(partitionRoot, partitionName, model+".csv")
			digestPath := csvPath + ".digests"

			result.RemovedFiles = append(result.RemovedFiles, csvPath, digestPath)
			if !dryRun {
				if err := os.Remove(csvPath); err != nil && !os.IsNotExist(err) {
					return nil, err
				}
				if err := os.Remove(digestPath); err != nil && !os.IsNotExist(err) {
					return nil, err
				}
			}

			for i := range m.Partitions {
				if m.Partitions[i].Name != partitionName {
					continue
				}
				info, ok := m.Partitions[i].Models[model]
				if !ok {
					continue
				}
				if !dryRun {
					info.Deleted = true
					info.DeletedAt = now
					m.Partitions[i].Models[model] = info
				}
			}
		}
		result.UpdatedModels = append(result.UpdatedModels, model)
	}

	if dryRun {
		return result, nil
	}

	reason := ""
	if len(models) > 0 {
		reason = plan.Models[models[0]].Reason
	}
	m.Drops = append(m.Drops, manifest.DropRecord{
		ID:          plan.GeneratedAt,
		GeneratedAt: plan.GeneratedAt,
		AppliedAt:   now,
		Models:      models,
		Reason:      reason,
	})

	if err := manifest.Save(manifestPath, m); err != nil {
		return nil, err
	}
	return result, nil
}
