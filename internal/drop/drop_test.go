package drop

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vectorpart/internal/manifest"
)

func writeManifestWithPartitions(t *testing.T, path string, partitions ...manifest.PartitionEntry) {
	t.Helper()
	m := manifest.Empty()
	m.Partitions = partitions
	require.NoError(t, manifest.Save(path, m))
}

func TestGeneratePlanMatchesPartitionsWithinDateWindow(t *testing.T) {
	manifestPath := filepath.Join(t.TempDir(), "manifest.json")
	writeManifestWithPartitions(t, manifestPath,
		manifest.PartitionEntry{Name: "partition_00000", CreatedAt: "2026-01-01T00:00:00Z", Models: map[string]manifest.ModelInfo{"widget": {SchemaVersion: 1}}},
		manifest.PartitionEntry{Name: "partition_00001", CreatedAt: "2026-06-01T00:00:00Z", Models: map[string]manifest.ModelInfo{"widget": {SchemaVersion: 2}}},
	)

	before := mustParse(t, "2026-03-01T00:00:00Z")
	plan, err := GeneratePlan(manifestPath, []string{"widget"}, &before, nil, "quarterly cleanup")
	require.NoError(t, err)
	require.Equal(t, []string{"partition_00000"}, plan.Models["widget"].Partitions)
	require.Equal(t, []int{1}, plan.Models["widget"].SchemaVersions)
	require.Equal(t, "quarterly cleanup", plan.Models["widget"].Reason)
}

func TestGeneratePlanSkipsAlreadyDeletedModels(t *testing.T) {
	manifestPath := filepath.Join(t.TempDir(), "manifest.json")
	writeManifestWithPartitions(t, manifestPath,
		manifest.PartitionEntry{Name: "partition_00000", CreatedAt: "2026-01-01T00:00:00Z", Models: map[string]manifest.ModelInfo{"widget": {SchemaVersion: 1, Deleted: true}}},
	)

	plan, err := GeneratePlan(manifestPath, []string{"widget"}, nil, nil, "")
	require.NoError(t, err)
	_, present := plan.Models["widget"]
	require.False(t, present)
}

func TestApplyRemovesFilesAndMarksManifestDeleted(t *testing.T) {
	root := t.TempDir()
	manifestPath := filepath.Join(root, "manifest.json")
	partitionDir := filepath.Join(root, "partition_00000")
	require.NoError(t, os.MkdirAll(partitionDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(partitionDir, "widget.csv"), []byte("sku\nSKU1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(partitionDir, "widget.csv.digests"), []byte("abc\n"), 0o644))

	writeManifestWithPartitions(t, manifestPath,
		manifest.PartitionEntry{Name: "partition_00000", CreatedAt: "2026-01-01T00:00:00Z", Models: map[string]manifest.ModelInfo{"widget": {SchemaVersion: 1}}},
	)

	plan := &Plan{GeneratedAt: "2026-07-01T00:00:00Z", Models: map[string]ModelDrop{"widget": {Partitions: []string{"partition_00000"}, SchemaVersions: []int{1}, Reason: "test"}}}

	result, err := Apply(manifestPath, root, plan, false)
	require.NoError(t, err)
	require.False(t, result.DryRun)

	_, err = os.Stat(filepath.Join(partitionDir, "widget.csv"))
	require.True(t, os.IsNotExist(err))

	m, err := manifest.Load(manifestPath)
	require.NoError(t, err)
	require.True(t, m.Partitions[0].Models["widget"].Deleted)
	require.Len(t, m.Drops, 1)
	require.Equal(t, "test", m.Drops[0].Reason)
}

func TestApplyDryRunLeavesFilesAndManifestUntouched(t *testing.T) {
	root := t.TempDir()
	manifestPath := filepath.Join(root, "manifest.json")
	partitionDir := filepath.Join(root, "partition_00000")
	require.NoError(t, os.MkdirAll(partitionDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(partitionDir, "widget.csv"), []byte("sku\n"), 0o644))

	writeManifestWithPartitions(t, manifestPath,
		manifest.PartitionEntry{Name: "partition_00000", CreatedAt: "2026-01-01T00:00:00Z", Models: map[string]manifest.ModelInfo{"widget": {SchemaVersion: 1}}},
	)

	plan := &Plan{GeneratedAt: "2026-07-01T00:00:00Z", Models: map[string]ModelDrop{"widget": {Partitions: []string{"partition_00000"}}}}
	result, err := Apply(manifestPath, root, plan, true)
	require.NoError(t, err)
	require.True(t, result.DryRun)
	require.NotEmpty(t, result.RemovedFiles)

	_, err = os.Stat(filepath.Join(partitionDir, "widget.csv"))
	require.NoError(t, err)

	m, err := manifest.Load(manifestPath)
	require.NoError(t, err)
	require.False(t, m.Partitions[0].Models["widget"].Deleted)
	require.Empty(t, m.Drops)
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return tm
}
