package csvsource

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestReaderBasic(t *testing.T) {
	dir := t.TempDir()
	p := writeTemp(t, dir, "a.csv", "name,age\nann,30\nbob,40\n")

	r, err := NewReader([]string{p}, Options{HeaderRow: HeaderAll})
	require.NoError(t, err)
	defer r.Close()

	row, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, []string{"name", "age"}, row.Header)
	require.Equal(t, "ann", row.Value("name"))
	require.Equal(t, "30", row.Value("age"))

	row, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, "bob", row.Value("name"))

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestReaderSeriesHeaderFirstOnly(t *testing.T) {
	dir := t.TempDir()
	p1 := writeTemp(t, dir, "f1.csv", "name,age\nann,30\n")
	p2 := writeTemp(t, dir, "f2.csv", "cara,22\n")

	r, err := NewReader([]string{p1, p2}, Options{HeaderRow: HeaderFirstOnly})
	require.NoError(t, err)
	defer r.Close()

	row, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "ann", row.Value("name"))

	row, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, "cara", row.Value("name"))
	require.Equal(t, "22", row.Value("age"))
}

func TestReaderBlankCellsAreNil(t *testing.T) {
	dir := t.TempDir()
	p := writeTemp(t, dir, "a.csv", "name,email\nann,\n")
	r, err := NewReader([]string{p}, Options{HeaderRow: HeaderAll})
	require.NoError(t, err)
	defer r.Close()

	row, err := r.Next()
	require.NoError(t, err)
	require.Nil(t, row.Cells[1])
}

func TestReaderMalformedColumnRejoin(t *testing.T) {
	dir := t.TempDir()
	// header has 3 columns; a data row has 5 because commas leaked into
	// column 2 ("description").
	p := writeTemp(t, dir, "a.csv", "id,description,price\n1,hello, world, indeed,9\n")
	r, err := NewReader([]string{p}, Options{HeaderRow: HeaderAll, MalformedColumn: 2})
	require.NoError(t, err)
	defer r.Close()

	row, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "1", row.Value("id"))
	require.Equal(t, "hello, world, indeed", row.Value("description"))
	require.Equal(t, "9", row.Value("price"))
}

func TestDiscoverSeriesExpandsNumberedFiles(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "rows_2.csv", "b\n")
	writeTemp(t, dir, "rows_10.csv", "c\n")
	writeTemp(t, dir, "rows_1.csv", "a\n")

	got, err := DiscoverSeries(filepath.Join(dir, "rows_<int>.csv"))
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "rows_1.csv"),
		filepath.Join(dir, "rows_2.csv"),
		filepath.Join(dir, "rows_10.csv"),
	}, got)
}

func TestDiscoverSeriesNoPlaceholder(t *testing.T) {
	got, err := DiscoverSeries("/tmp/plain.csv")
	require.NoError(t, err)
	require.Equal(t, []string{"/tmp/plain.csv"}, got)
}
