package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prep.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadPrepConfigParsesModelsAndFields(t *testing.T) {
	path := writeTOML(t, `
directory_size = 100

[models.widget]
source = "/data/widget/part-*.csv"
header_row = "all"

  [[models.widget.fields]]
  name = "sku"
  type = "string"
  required = true
`)

	cfg, err := LoadPrepConfig(path)
	require.NoError(t, err)
	require.Equal(t, 100, cfg.DirectorySize)
	require.Contains(t, cfg.Models, "widget")
	require.Equal(t, "/data/widget/part-*.csv", cfg.Models["widget"].SourceTemplate)
	require.Len(t, cfg.Models["widget"].Fields, 1)
	require.Equal(t, "sku", cfg.Models["widget"].Fields[0].Name)
}

func TestLoadPrepConfigRejectsMissingSource(t *testing.T) {
	path := writeTOML(t, `
[models.widget]
header_row = "all"
`)
	_, err := LoadPrepConfig(path)
	require.Error(t, err)
}

func TestLoadPrepConfigRejectsInvalidHeaderRow(t *testing.T) {
	path := writeTOML(t, `
[models.widget]
source = "/data/widget/part-*.csv"
header_row = "sometimes"
`)
	_, err := LoadPrepConfig(path)
	require.Error(t, err)
}

func TestLoadPrepConfigRejectsNegativeDirectorySize(t *testing.T) {
	path := writeTOML(t, `
directory_size = -1
`)
	_, err := LoadPrepConfig(path)
	require.Error(t, err)
}

func TestLoadPrepConfigRejectsEmptyDropNAColumnName(t *testing.T) {
	path := writeTOML(t, `
[models.widget]
source = "/data/widget/part-*.csv"
drop_na_columns = [""]
`)
	_, err := LoadPrepConfig(path)
	require.Error(t, err)
}
