package resume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vectorpart/internal/csvsource"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partition_00001_resume_state.json")
	offset := int64(42)
	doc := Document{
		"Table": {Started: true, Complete: false, RowIndex: 3, FileOffset: &offset, Fieldnames: []string{"id", "name"}},
	}
	require.NoError(t, Save(path, doc))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, doc["Table"].RowIndex, loaded["Table"].RowIndex)
	require.Equal(t, *doc["Table"].FileOffset, *loaded["Table"].FileOffset)
}

func TestLoadMissingReturnsEmpty(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Empty(t, doc)
}

func TestOpenOffsetModeResumesMidFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.csv")
	require.NoError(t, writeAll(p, "id,name\n1,a\n2,b\n3,c\n"))

	plain, err := csvsource.NewReader([]string{p}, csvsource.Options{HeaderRow: csvsource.HeaderAll})
	require.NoError(t, err)
	row1, err := plain.Next()
	require.NoError(t, err)
	require.Equal(t, "a", row1.Value("name"))
	offsetAfterFirst := row1.ByteOffset
	plain.Close()

	state := State{Started: true, FileOffset: &offsetAfterFirst, RowIndex: 1, Fieldnames: []string{"id", "name"}}
	r, usedOffset, err := Open([]string{p}, csvsource.Options{HeaderRow: csvsource.HeaderAll}, state)
	require.NoError(t, err)
	require.True(t, usedOffset)
	defer r.Close()

	row2, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "b", row2.Value("name"))
}

func TestOpenFallsBackToCountModeOnBadOffset(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.csv")
	require.NoError(t, writeAll(p, "id,name\n1,a\n2,b\n"))

	badOffset := int64(-1)
	state := State{Started: true, RowIndex: 1, FileOffset: &badOffset, Fieldnames: []string{"id", "name"}}
	r, usedOffset, err := Open([]string{p}, csvsource.Options{HeaderRow: csvsource.HeaderAll}, state)
	require.NoError(t, err)
	require.False(t, usedOffset)
	defer r.Close()

	row, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "b", row.Value("name"))
}

func writeAll(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
