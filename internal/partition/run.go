package partition

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"vectorpart/internal/config"
	"vectorpart/internal/csvsource"
	"vectorpart/internal/digest"
	"vectorpart/internal/errs"
	"vectorpart/internal/manifest"
)

const naMarkerPattern = "NA"
const naMarkerAlt = "N/A"

// RunConfig bundles everything one partitioning run needs beyond the
// loaded manifest.
type RunConfig struct {
	RootDir    string
	ConfigPath string
	RunID      string
	Now        time.Time
	Prep       *config.PrepConfig
}

// RunResult is what a single partitioning run produced.
type RunResult struct {
	CreatedPartitions []manifest.PartitionEntry
	ImpactedNames     []string
}

// Run executes the three-pass partitioning algorithm against m (mutated in
// place: new partitions appended, impacted ones marked stale, schema
// registry updated) and writes the resulting partition directories under
// rc.RootDir.
func Run(rc RunConfig, m *manifest.Manifest) (*RunResult, error) {
	createdAt := rc.Now.UTC().Format("2006-01-02T15:04:05")

	modified := map[string]bool{}
	versions := map[string]ModelVersion{}
	for name, mc := range rc.Prep.Models {
		sig := digest.SchemaSignature(mc.Fields)
		version, isModified := m.PropagateSchema(name, sig)
		versions[name] = ModelVersion{Signature: sig, Version: version}
		if isModified {
			modified[name] = true
		}
	}

	nonStale := m.NonStalePartitions()

	impacted := map[string]manifest.PartitionEntry{}
	for _, p := range nonStale {
		for recordType := range p.Models {
			if modified[recordType] {
				impacted[p.Name] = p
				break
			}
		}
	}

	// No check for a modified record type without a configured source is
	// made here: modified record types are taken only from rc.Prep.Models,
	// so each one has a source by construction and errs.SchemaChangeNoSource
	// is never raised.

	seenHashes, err := hydrateSeenHashes(rc.RootDir, nonStale)
	if err != nil {
		return nil, err
	}

	headers := map[string][]string{}
	for _, p := range impacted {
		for recordType := range p.Models {
			if modified[recordType] {
				continue
			}
			if _, ok := headers[recordType]; ok {
				continue
			}
			h, err := readCSVHeader(filepath.Join(rc.RootDir, p.Name, recordType+".csv"))
			if err != nil {
				return nil, err
			}
			headers[recordType] = h
		}
	}
	for name, mc := range rc.Prep.Models {
		headers[name] = targetHeader(mc)
	}

	writer := NewWriter(rc.RootDir, m, rc.Prep.DirectorySize, rc.RunID, createdAt, headers, versions)

	runErr := func() error {
		// Pass 1: carryover.
		impactedNames := make([]string, 0, len(impacted))
		for name := range impacted {
			impactedNames = append(impactedNames, name)
		}
		sort.Strings(impactedNames)

		for _, name := range impactedNames {
			p := impacted[name]
			recordTypes := make([]string, 0, len(p.Models))
			for rt := range p.Models {
				if !modified[rt] {
					recordTypes = append(recordTypes, rt)
				}
			}
			sort.Strings(recordTypes)

			for _, recordType := range recordTypes {
				if err := carryOver(rc.RootDir, writer, name, recordType, seenHashes); err != nil {
					return err
				}
			}
		}

		// Pass 2: ingest.
		modelNames := make([]string, 0, len(rc.Prep.Models))
		for name := range rc.Prep.Models {
			modelNames = append(modelNames, name)
		}
		sort.Strings(modelNames)

		for _, name := range modelNames {
			if err := ingest(writer, name, rc.Prep.Models[name], seenHashes); err != nil {
				return err
			}
		}
		return nil
	}()

	if _, err := writer.FinalizeCurrent(); err != nil {
		if closeErr := writer.CloseAll(); closeErr != nil {
			return nil, fmt.Errorf("partition: finalize error %w; close error: %v", err, closeErr)
		}
		return nil, err
	}
	if err := writer.CloseAll(); err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, runErr
	}

	created := writer.CreatedPartitions()
	createdNames := make([]string, 0, len(created))
	for _, p := range created {
		createdNames = append(createdNames, p.Name)
	}

	m.Partitions = append(m.Partitions, created...)
	m.Runs = append(m.Runs, manifest.Run{
		ID:         rc.RunID,
		ConfigPath: rc.ConfigPath,
		CreatedAt:  createdAt,
		Partitions: createdNames,
	})
	for name, v := range versions {
		m.ModelSchemas[name] = manifest.SchemaEntry{Signature: v.Signature, Version: v.Version}
	}

	replacements := writer.Replacements()
	impactedNames := make([]string, 0, len(impacted))
	for i := range m.Partitions {
		entry := &m.Partitions[i]
		if _, ok := impacted[entry.Name]; !ok || entry.Stale {
			continue
		}
		impactedNames = append(impactedNames, entry.Name)
		entry.Stale = true
		entry.StaleReason = "schema-change"
		entry.StaleAt = createdAt
		if newNames, ok := replacements[entry.Name]; ok {
			merged := map[string]struct{}{}
			for _, n := range entry.ReplacedBy {
				merged[n] = struct{}{}
			}
			for n := range newNames {
				merged[n] = struct{}{}
			}
			list := make([]string, 0, len(merged))
			for n := range merged {
				list = append(list, n)
			}
			sort.Strings(list)
			entry.ReplacedBy = list
		}
	}
	sort.Strings(impactedNames)

	return &RunResult{CreatedPartitions: created, ImpactedNames: impactedNames}, nil
}

// hydrateSeenHashes reads every non-stale partition's digest sidecars so
// the ingest pass can never re-emit a row already present anywhere live.
func hydrateSeenHashes(rootDir string, nonStale []manifest.PartitionEntry) (map[string]map[string]struct{}, error) {
	seen := map[string]map[string]struct{}{}
	for _, p := range nonStale {
		for recordType := range p.Models {
			path := filepath.Join(rootDir, p.Name, recordType+".csv.digests")
			f, err := os.Open(path)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return nil, errs.New(errs.IO, fmt.Errorf("partition: open digest sidecar %q: %w", path, err))
			}
			if seen[recordType] == nil {
				seen[recordType] = map[string]struct{}{}
			}
			sc := bufio.NewScanner(f)
			for sc.Scan() {
				seen[recordType][sc.Text()] = struct{}{}
			}
			f.Close()
			if err := sc.Err(); err != nil {
				return nil, errs.New(errs.IO, fmt.Errorf("partition: read digest sidecar %q: %w", path, err))
			}
		}
	}
	return seen, nil
}

func readCSVHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.IO, fmt.Errorf("partition: open %q: %w", path, err))
	}
	defer f.Close()
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, errs.New(errs.IO, fmt.Errorf("partition: read header of %q: %w", path, err))
	}
	return header, nil
}

// carryOver copies every row of partitionName/recordType.csv verbatim into
// the writer's current output, consuming each row's already-recorded
// digest so the ingest pass never re-emits it.
func carryOver(rootDir string, w *Writer, partitionName, recordType string, seen map[string]map[string]struct{}) error {
	csvPath := filepath.Join(rootDir, partitionName, recordType+".csv")
	digestPath := filepath.Join(rootDir, partitionName, recordType+".csv.digests")

	cf, err := os.Open(csvPath)
	if err != nil {
		return errs.New(errs.IO, fmt.Errorf("partition: open %q: %w", csvPath, err))
	}
	defer cf.Close()
	df, err := os.Open(digestPath)
	if err != nil {
		return errs.New(errs.IO, fmt.Errorf("partition: open %q: %w", digestPath, err))
	}
	defer df.Close()

	cr := csv.NewReader(cf)
	cr.FieldsPerRecord = -1
	if _, err := cr.Read(); err != nil { // header
		return errs.New(errs.IO, fmt.Errorf("partition: read header of %q: %w", csvPath, err))
	}
	ds := bufio.NewScanner(df)

	for {
		row, err := cr.Read()
		if err != nil {
			break
		}
		if !ds.Scan() {
			break
		}
		d := ds.Text()
		if seen[recordType] == nil {
			seen[recordType] = map[string]struct{}{}
		}
		seen[recordType][d] = struct{}{}
		if err := w.WriteRow(recordType, d, row, partitionName); err != nil {
			return err
		}
	}
	return nil
}

// targetHeader computes the output column order for a model: the Fields
// list's declared order if present, else the sorted set of target column
// names from Columns.
func targetHeader(mc config.ModelConfig) []string {
	if len(mc.Fields) > 0 {
		out := make([]string, len(mc.Fields))
		for i, f := range mc.Fields {
			out[i] = f.Name
		}
		return out
	}
	out := make([]string, 0, len(mc.Columns))
	for name := range mc.Columns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ingest drives the CSV reader for one configured model, projecting source
// columns onto target fields, dropping NA rows, de-duplicating by digest,
// and writing every new row.
func ingest(w *Writer, recordType string, mc config.ModelConfig, seen map[string]map[string]struct{}) error {
	paths, err := csvsource.DiscoverSeries(mc.SourceTemplate)
	if err != nil {
		return errs.New(errs.IO, err)
	}
	if len(paths) == 0 {
		return nil
	}

	delim := rune(',')
	if mc.Delimiter != "" {
		delim = rune(mc.Delimiter[0])
	}

	reader, err := csvsource.NewReader(paths, csvsource.Options{
		Delimiter:       delim,
		HeaderRow:       mc.HeaderRow,
		MalformedColumn: mc.MalformedColumn,
	})
	if err != nil {
		return errs.New(errs.IO, err)
	}
	defer reader.Close()

	header := targetHeader(mc)
	if seen[recordType] == nil {
		seen[recordType] = map[string]struct{}{}
	}

	for {
		row, err := reader.Next()
		if err != nil {
			break
		}
		cells := projectColumns(row, header, mc.Columns)
		if isNARow(cells, header, mc.DropNAColumns) {
			continue
		}
		d := digest.Row(header, cells)
		if _, ok := seen[recordType][d]; ok {
			continue
		}
		seen[recordType][d] = struct{}{}
		if err := w.WriteRow(recordType, d, cells, ""); err != nil {
			return err
		}
	}
	return nil
}

// projectColumns maps each target field in header onto its configured
// source column (identity if unmapped) and reads the value from row.
func projectColumns(row *csvsource.Row, header []string, columns map[string]string) []string {
	out := make([]string, len(header))
	for i, field := range header {
		source := columns[field]
		if source == "" {
			source = field
		}
		out[i] = row.Value(source)
	}
	return out
}

// isNARow reports whether any of dropNAColumns is nil, empty, "NA", or
// "N/A" in cells.
func isNARow(cells, header, dropNAColumns []string) bool {
	for _, col := range dropNAColumns {
		idx := -1
		for i, h := range header {
			if h == col {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		v := cells[idx]
		if v == "" || v == naMarkerPattern || v == naMarkerAlt {
			return true
		}
	}
	return false
}
