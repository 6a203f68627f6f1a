package partition

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vectorpart/internal/config"
	"vectorpart/internal/csvsource"
	"vectorpart/internal/digest"
	"vectorpart/internal/manifest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func tableModel(source string) config.ModelConfig {
	return config.ModelConfig{
		SourceTemplate: source,
		HeaderRow:      csvsource.HeaderAll,
		Fields: []digest.FieldSpec{
			{Name: "id", Type: "string", Required: true},
			{Name: "name", Type: "string"},
		},
	}
}

func TestRunColdIngestSplitsByDirectorySize(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "source", "tables.csv")
	writeFile(t, src, "id,name\n1,a\n2,b\n3,c\n")

	prep := &config.PrepConfig{
		DirectorySize: 2,
		Models:        map[string]config.ModelConfig{"Table": tableModel(src)},
	}

	m := manifest.Empty()
	res, err := Run(RunConfig{
		RootDir:    root,
		ConfigPath: "prep.toml",
		RunID:      "run-1",
		Now:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Prep:       prep,
	}, m)
	require.NoError(t, err)
	require.Len(t, res.CreatedPartitions, 2)
	require.Equal(t, "partition_00001", res.CreatedPartitions[0].Name)
	require.Equal(t, 2, res.CreatedPartitions[0].Models["Table"].Rows)
	require.Equal(t, "partition_00002", res.CreatedPartitions[1].Name)
	require.Equal(t, 1, res.CreatedPartitions[1].Models["Table"].Rows)
	require.Equal(t, 1, m.ModelSchemas["Table"].Version)
}

func TestRunDeduplicatedReingest(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "source", "tables.csv")
	writeFile(t, src, "id,name\n1,a\n2,b\n3,c\n")

	prep := &config.PrepConfig{
		DirectorySize: 2,
		Models:        map[string]config.ModelConfig{"Table": tableModel(src)},
	}
	m := manifest.Empty()
	_, err := Run(RunConfig{RootDir: root, RunID: "run-1", Now: time.Now().UTC(), Prep: prep}, m)
	require.NoError(t, err)

	writeFile(t, src, "id,name\n1,a\n2,b\n3,c\n4,d\n5,e\n")
	res, err := Run(RunConfig{RootDir: root, RunID: "run-2", Now: time.Now().UTC(), Prep: prep}, m)
	require.NoError(t, err)
	require.Len(t, res.CreatedPartitions, 1)
	require.Equal(t, "partition_00003", res.CreatedPartitions[0].Name)
	require.Equal(t, 2, res.CreatedPartitions[0].Models["Table"].Rows)
}

func TestRunSchemaChangeMarksImpactedPartitionsStale(t *testing.T) {
	root := t.TempDir()
	tableSrc := filepath.Join(root, "source", "tables.csv")
	fieldSrc := filepath.Join(root, "source", "fields.csv")
	writeFile(t, tableSrc, "id,name\n1,a\n")
	writeFile(t, fieldSrc, "id,name\n1,f\n")

	prep := &config.PrepConfig{
		DirectorySize: 0,
		Models: map[string]config.ModelConfig{
			"Table": tableModel(tableSrc),
			"Field": tableModel(fieldSrc),
		},
	}
	m := manifest.Empty()
	first, err := Run(RunConfig{RootDir: root, RunID: "run-1", Now: time.Now().UTC(), Prep: prep}, m)
	require.NoError(t, err)
	require.Len(t, first.CreatedPartitions, 1)

	changed := prep.Models["Field"]
	changed.Fields = append(changed.Fields, digest.FieldSpec{Name: "extra", Type: "string"})
	prep.Models["Field"] = changed
	writeFile(t, fieldSrc, "id,name,extra\n1,f,x\n2,g,y\n")

	second, err := Run(RunConfig{RootDir: root, RunID: "run-2", Now: time.Now().UTC(), Prep: prep}, m)
	require.NoError(t, err)
	require.Contains(t, second.ImpactedNames, "partition_00001")

	var old manifest.PartitionEntry
	for _, p := range m.Partitions {
		if p.Name == "partition_00001" {
			old = p
		}
	}
	require.True(t, old.Stale)
	require.Equal(t, "schema-change", old.StaleReason)
	require.NotEmpty(t, old.ReplacedBy)
	require.Equal(t, 2, m.ModelSchemas["Field"].Version)
	require.Equal(t, 1, m.ModelSchemas["Table"].Version)

	// Table rows (not modified) must have been carried over into the new
	// partition, not re-ingested from source.
	var newPartition manifest.PartitionEntry
	for _, p := range second.CreatedPartitions {
		newPartition = p
	}
	require.Equal(t, 1, newPartition.Models["Table"].Rows)
	require.Equal(t, 2, newPartition.Models["Field"].Rows)
}
