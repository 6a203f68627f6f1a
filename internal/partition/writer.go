// Package partition implements the partitioning engine: a two-phase
// directory writer (build in place, then finalize) driven by a three-pass
// run (carryover stale-but-impacted partitions' unmodified record types,
// ingest newly configured sources, finalize and update the manifest).
package partition

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"vectorpart/internal/manifest"
)

// ModelVersion carries the schema signature/version a record type was
// resolved to for the run currently being written.
type ModelVersion struct {
	Signature string
	Version   int
}

type recordTypeFiles struct {
	csvFile    *os.File
	csvWriter  *csv.Writer
	digestFile *os.File
	header     []string
	rows       int
}

// Writer builds partition directories in place and finalizes them into
// manifest.PartitionEntry records. It holds at most one open CSV handle
// and one open digest handle per (partition, record type) at a time.
type Writer struct {
	rootDir       string
	directorySize int
	runID         string
	createdAt     string
	nextIndex     int
	headers       map[string][]string
	versions      map[string]ModelVersion

	currentName  string
	currentFiles map[string]*recordTypeFiles
	replaces     map[string]struct{} // source partitions carried into the current partition

	// replacements maps an old (impacted) partition name to the set of new
	// partition names that replaced some of its content, accumulated
	// across the whole run.
	replacements map[string]map[string]struct{}

	created []manifest.PartitionEntry
}

// NewWriter constructs a Writer rooted at rootDir. headers supplies the
// final column order to emit for each record type; versions supplies the
// schema signature/version each record type resolved to for this run.
func NewWriter(rootDir string, m *manifest.Manifest, directorySize int, runID, createdAt string, headers map[string][]string, versions map[string]ModelVersion) *Writer {
	// Partition numbering starts at 1 on an empty manifest.
	nextIndex := m.HighestPartitionIndex() + 1
	if nextIndex < 1 {
		nextIndex = 1
	}
	return &Writer{
		rootDir:       rootDir,
		directorySize: directorySize,
		runID:         runID,
		createdAt:     createdAt,
		nextIndex:     nextIndex,
		headers:       headers,
		versions:      versions,
		currentFiles:  map[string]*recordTypeFiles{},
		replaces:      map[string]struct{}{},
		replacements:  map[string]map[string]struct{}{},
	}
}

// WriteRow writes one already-deduplicated, already-sanitised row to the
// current partition's record-type CSV and digest sidecar, opening a new
// partition first if none is open or the current one has reached
// directorySize rows for this record type. sourcePartition, when non-empty,
// names the impacted partition this row was carried over from.
func (w *Writer) WriteRow(recordType, digest string, cells []string, sourcePartition string) error {
	if w.currentName == "" {
		if err := w.openPartition(); err != nil {
			return err
		}
	}

	rtf, err := w.recordTypeFiles(recordType)
	if err != nil {
		return err
	}

	if w.directorySize > 0 && rtf.rows >= w.directorySize {
		if _, err := w.FinalizeCurrent(); err != nil {
			return err
		}
		if err := w.openPartition(); err != nil {
			return err
		}
		rtf, err = w.recordTypeFiles(recordType)
		if err != nil {
			return err
		}
	}

	if err := rtf.csvWriter.Write(cells); err != nil {
		return fmt.Errorf("partition: write row to %s/%s.csv: %w", w.currentName, recordType, err)
	}
	rtf.csvWriter.Flush()
	if err := rtf.csvWriter.Error(); err != nil {
		return fmt.Errorf("partition: flush %s/%s.csv: %w", w.currentName, recordType, err)
	}
	if _, err := fmt.Fprintln(rtf.digestFile, digest); err != nil {
		return fmt.Errorf("partition: write digest for %s/%s: %w", w.currentName, recordType, err)
	}
	rtf.rows++

	if sourcePartition != "" {
		w.replaces[sourcePartition] = struct{}{}
		if w.replacements[sourcePartition] == nil {
			w.replacements[sourcePartition] = map[string]struct{}{}
		}
		w.replacements[sourcePartition][w.currentName] = struct{}{}
	}
	return nil
}

func (w *Writer) openPartition() error {
	name := manifest.PartitionName(w.nextIndex)
	w.nextIndex++
	dir := filepath.Join(w.rootDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("partition: create directory %q: %w", dir, err)
	}
	w.currentName = name
	w.currentFiles = map[string]*recordTypeFiles{}
	w.replaces = map[string]struct{}{}
	return nil
}

func (w *Writer) recordTypeFiles(recordType string) (*recordTypeFiles, error) {
	if rtf, ok := w.currentFiles[recordType]; ok {
		return rtf, nil
	}

	dir := filepath.Join(w.rootDir, w.currentName)
	csvPath := filepath.Join(dir, recordType+".csv")
	digestPath := filepath.Join(dir, recordType+".csv.digests")

	csvFile, err := os.Create(csvPath)
	if err != nil {
		return nil, fmt.Errorf("partition: create %q: %w", csvPath, err)
	}
	digestFile, err := os.Create(digestPath)
	if err != nil {
		csvFile.Close()
		return nil, fmt.Errorf("partition: create %q: %w", digestPath, err)
	}

	cw := csv.NewWriter(csvFile)
	header := w.headers[recordType]
	if len(header) > 0 {
		if err := cw.Write(header); err != nil {
			csvFile.Close()
			digestFile.Close()
			return nil, fmt.Errorf("partition: write header for %q: %w", csvPath, err)
		}
		cw.Flush()
	}

	rtf := &recordTypeFiles{csvFile: csvFile, csvWriter: cw, digestFile: digestFile, header: header}
	w.currentFiles[recordType] = rtf
	return rtf, nil
}

// FinalizeCurrent closes the current partition's open files. An empty
// partition (no rows written for any record type) is removed from disk and
// not recorded. Otherwise it builds and records the manifest.PartitionEntry
// for it and returns it.
func (w *Writer) FinalizeCurrent() (*manifest.PartitionEntry, error) {
	if w.currentName == "" {
		return nil, nil
	}
	name := w.currentName
	files := w.currentFiles
	replaces := w.replaces
	w.currentName = ""
	w.currentFiles = map[string]*recordTypeFiles{}
	w.replaces = map[string]struct{}{}

	total := 0
	models := map[string]manifest.ModelInfo{}
	for recordType, rtf := range files {
		rtf.csvWriter.Flush()
		closeErr := rtf.csvFile.Close()
		digestCloseErr := rtf.digestFile.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("partition: close %s/%s.csv: %w", name, recordType, closeErr)
		}
		if digestCloseErr != nil {
			return nil, fmt.Errorf("partition: close %s/%s.csv.digests: %w", name, recordType, digestCloseErr)
		}
		total += rtf.rows
		v := w.versions[recordType]
		models[recordType] = manifest.ModelInfo{
			SchemaSignature: v.Signature,
			SchemaVersion:   v.Version,
			Rows:            rtf.rows,
		}
	}

	if total == 0 {
		_ = os.RemoveAll(filepath.Join(w.rootDir, name))
		return nil, nil
	}

	replacesList := make([]string, 0, len(replaces))
	for r := range replaces {
		replacesList = append(replacesList, r)
	}
	sort.Strings(replacesList)

	entry := manifest.PartitionEntry{
		Name:      name,
		Dir:       name,
		Models:    models,
		Stale:     false,
		Replaces:  replacesList,
		CreatedAt: w.createdAt,
		RunID:     w.runID,
	}
	w.created = append(w.created, entry)
	return &entry, nil
}

// CloseAll closes every currently open file handle without finalizing,
// used on the abort path so partial writes don't leak descriptors.
func (w *Writer) CloseAll() error {
	var firstErr error
	for _, rtf := range w.currentFiles {
		rtf.csvWriter.Flush()
		if err := rtf.csvFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := rtf.digestFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.currentFiles = map[string]*recordTypeFiles{}
	return firstErr
}

// CreatedPartitions returns every partition finalized so far by this
// writer, in creation order.
func (w *Writer) CreatedPartitions() []manifest.PartitionEntry {
	return w.created
}

// Replacements returns, for every impacted source partition touched during
// the run, the set of new partition names that carried some of its rows
// forward.
func (w *Writer) Replacements() map[string]map[string]struct{} {
	return w.replacements
}
