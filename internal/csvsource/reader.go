// Package csvsource streams rows out of a single CSV file or an ordered
// numbered series, recovering from malformed rows the way the original
// partitioning pipeline did: re-join around a declared malformed column,
// then stitch short rows across physical lines, and only drop a row when
// neither recovery closes the gap.
package csvsource

import (
	"fmt"
	"io"
	"os"
)

// HeaderRowPolicy controls how headers are consumed across a numbered
// series of source files.
type HeaderRowPolicy string

const (
	// HeaderAll consumes and discards a header row in every file of the
	// series.
	HeaderAll HeaderRowPolicy = "all"
	// HeaderFirstOnly treats only the first file's first row as a header;
	// every other file in the series starts at its first data row.
	HeaderFirstOnly HeaderRowPolicy = "first-only"
)

// Options configures a Reader.
type Options struct {
	Delimiter       rune // defaults to ','
	HeaderRow       HeaderRowPolicy
	MalformedColumn int // 1-based; 0 means "not configured"
	// Fieldnames, when non-empty, is used as the header instead of reading
	// one from the source — the resume-from-offset path, where the cursor
	// is already positioned past the header line.
	Fieldnames []string
}

// Row is one decoded record: the ordered header for the file it came from,
// the raw cell values (nil entries for blank/missing cells, matching the
// source spec's string|nil semantics), and positional bookkeeping used to
// persist resume state.
type Row struct {
	Header     []string
	Cells      []*string
	FileIndex  int
	FilePath   string
	RowIndex   int   // 0-based logical row index across the whole series
	ByteOffset int64 // byte offset in FilePath just past this row
}

// Value returns the cell for name, or "" if absent/nil.
func (r *Row) Value(name string) string {
	for i, h := range r.Header {
		if h == name {
			if i < len(r.Cells) && r.Cells[i] != nil {
				return *r.Cells[i]
			}
			return ""
		}
	}
	return ""
}

// RawCells returns the cell values as plain strings (nil -> ""), matching
// Header order — the slice digest.Row expects.
func (r *Row) RawCells() []string {
	out := make([]string, len(r.Header))
	for i := range out {
		if i < len(r.Cells) && r.Cells[i] != nil {
			out[i] = *r.Cells[i]
		}
	}
	return out
}

// Reader is a lazy, finite, non-restartable stream of Row over one file or
// an ordered series of files.
type Reader struct {
	paths           []string
	delimiter       rune
	headerPolicy    HeaderRowPolicy
	malformedColumn int
	fixedHeader     []string

	fileIdx    int
	f          *os.File
	lr         *lineReader
	header     []string
	rowIndex   int
	staged     []string // a record already read from disk, pending return by Next()
}

// NewReader opens a fresh reader over paths starting at the beginning.
func NewReader(paths []string, opts Options) (*Reader, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	r := &Reader{
		paths:           paths,
		delimiter:       opts.Delimiter,
		headerPolicy:    opts.HeaderRow,
		malformedColumn: opts.MalformedColumn,
		fixedHeader:     opts.Fieldnames,
		fileIdx:         -1,
	}
	return r, nil
}

// NewReaderAtOffset reopens a reader positioned at byteOffset within
// paths[fileIdx], with header supplied explicitly (the offset is already
// past the header line so none is read from the file). If the seek fails
// for any reason the caller should fall back to NewReader and skip rows by
// count instead (see the resume package).
func NewReaderAtOffset(paths []string, opts Options, fileIdx int, byteOffset int64, rowIndex int) (*Reader, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if fileIdx < 0 || fileIdx >= len(paths) {
		return nil, fmt.Errorf("csvsource: file index %d out of range for %d files", fileIdx, len(paths))
	}
	f, err := os.Open(paths[fileIdx])
	if err != nil {
		return nil, fmt.Errorf("csvsource: open %q: %w", paths[fileIdx], err)
	}
	if _, err := f.Seek(byteOffset, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("csvsource: seek %q to %d: %w", paths[fileIdx], byteOffset, err)
	}
	if len(opts.Fieldnames) == 0 {
		f.Close()
		return nil, fmt.Errorf("csvsource: resume requires known fieldnames")
	}
	r := &Reader{
		paths:           paths,
		delimiter:       opts.Delimiter,
		headerPolicy:    opts.HeaderRow,
		malformedColumn: opts.MalformedColumn,
		fixedHeader:     opts.Fieldnames,
		fileIdx:         fileIdx,
		f:               f,
		lr:              newLineReader(f, byte(opts.Delimiter)),
		header:          opts.Fieldnames,
		rowIndex:        rowIndex,
	}
	return r, nil
}

// Close releases the currently open file handle, if any.
func (r *Reader) Close() error {
	if r.f != nil {
		return r.f.Close()
	}
	return nil
}

// openNextFile advances to the next file in the series, consuming its
// header according to policy. Returns io.EOF once the series is exhausted.
func (r *Reader) openNextFile() error {
	if r.f != nil {
		r.f.Close()
		r.f = nil
	}
	r.fileIdx++
	if r.fileIdx >= len(r.paths) {
		return io.EOF
	}
	f, err := os.Open(r.paths[r.fileIdx])
	if err != nil {
		return fmt.Errorf("csvsource: open %q: %w", r.paths[r.fileIdx], err)
	}
	r.f = f
	r.lr = newLineReader(f, byte(r.delimiter))

	needsHeader := r.headerPolicy == HeaderAll || (r.headerPolicy == HeaderFirstOnly && r.fileIdx == 0)

	switch {
	case len(r.fixedHeader) > 0 && r.fileIdx == 0:
		r.header = r.fixedHeader
		if needsHeader {
			if _, _, err := r.lr.readRecord(); err != nil && err != io.EOF {
				return err
			}
		}
	case needsHeader:
		fields, _, err := r.lr.readRecord()
		if err != nil {
			if err == io.EOF {
				return io.EOF
			}
			return err
		}
		r.header = fields
	case r.header == nil:
		// No header anywhere: synthesize column_1..column_N from the first
		// physical row's width.
		fields, _, err := r.lr.readRecord()
		if err != nil {
			return err
		}
		header := make([]string, len(fields))
		for i := range header {
			header[i] = fmt.Sprintf("column_%d", i+1)
		}
		r.header = header
		return r.pushBack(fields)
	}
	return nil
}

// pushBack stages a decoded record to be returned by the next Next() call,
// used when the first row had to be read to synthesize a header.
func (r *Reader) pushBack(fields []string) error {
	r.staged = fields
	return nil
}

// Next returns the next decoded row, applying malformed-column re-join and
// multi-line stitching when a row's width doesn't match the header, or
// io.EOF once every file in the series is exhausted.
func (r *Reader) Next() (*Row, error) {
	for {
		if r.f == nil {
			if err := r.openNextFile(); err != nil {
				return nil, err
			}
		}

		var fields []string
		var firstPhysical, lastPhysical int
		var byteOffset int64
		var err error

		if r.staged != nil {
			fields = r.staged
			r.staged = nil
			byteOffset = r.lr.pos
		} else {
			fields, byteOffset, err = r.readAndRecover(&firstPhysical, &lastPhysical)
			if err == io.EOF {
				if closeErr := r.f.Close(); closeErr != nil {
					return nil, fmt.Errorf("csvsource: close %q: %w", r.paths[r.fileIdx], closeErr)
				}
				r.f = nil
				continue
			}
			if err != nil {
				return nil, err
			}
			if fields == nil {
				// Row dropped by recovery; try the next one.
				continue
			}
		}

		cells := make([]*string, len(fields))
		for i, v := range fields {
			trimmed := v
			if trimmed == "" {
				cells[i] = nil
				continue
			}
			s := trimmed
			cells[i] = &s
		}

		row := &Row{
			Header:     r.header,
			Cells:      cells,
			FileIndex:  r.fileIdx,
			FilePath:   r.paths[r.fileIdx],
			RowIndex:   r.rowIndex,
			ByteOffset: byteOffset,
		}
		r.rowIndex++
		return row, nil
	}
}

// readAndRecover reads one logical record, applying the two recovery
// passes from the malformed-row design: a wider-than-header row is
// re-joined around the configured malformed column; a shorter-than-header
// row pulls subsequent physical rows and stitches them onto its last cell.
// Returns (nil, offset, nil) when the row must be dropped, and records the
// first/last physical row numbers consumed in firstPhysical/lastPhysical.
// Next skips a dropped row without logging or reporting it; the physical
// row numbers are not surfaced to Next's caller.
func (r *Reader) readAndRecover(firstPhysical, lastPhysical *int) ([]string, int64, error) {
	fields, offset, err := r.lr.readRecord()
	if err != nil {
		return nil, offset, err
	}
	*firstPhysical = r.rowIndex
	*lastPhysical = r.rowIndex

	width := len(r.header)

	if len(fields) > width && r.malformedColumn > 0 {
		if joined, ok := rejoinMalformed(fields, width, r.malformedColumn, string(r.delimiter)); ok {
			fields = joined
		}
	}

	for len(fields) < width {
		next, nextOffset, err := r.lr.readRecord()
		if err != nil {
			// Source ended before the row could be completed: drop it.
			return nil, nextOffset, nil
		}
		*lastPhysical++
		fields[len(fields)-1] = fields[len(fields)-1] + "\n" + next[0]
		fields = append(fields, next[1:]...)
		offset = nextOffset
		if len(fields) > width && r.malformedColumn > 0 {
			if joined, ok := rejoinMalformed(fields, width, r.malformedColumn, string(r.delimiter)); ok {
				fields = joined
			}
		}
	}

	if len(fields) != width {
		return nil, offset, nil
	}
	return fields, offset, nil
}

// rejoinMalformed coalesces cells around the 1-based malformedColumn index
// by re-joining the middle slice so the final width equals want. Returns
// ok=false if the resulting width still doesn't match.
func rejoinMalformed(fields []string, want int, malformedColumn int, delim string) ([]string, bool) {
	idx := malformedColumn - 1
	if idx < 0 || idx >= len(fields) {
		return fields, false
	}
	extra := len(fields) - want
	if extra <= 0 {
		return fields, false
	}
	end := idx + extra + 1
	if end > len(fields) {
		return fields, false
	}
	merged := joinRaw(fields[idx:end], delim)
	out := make([]string, 0, want)
	out = append(out, fields[:idx]...)
	out = append(out, merged)
	out = append(out, fields[end:]...)
	if len(out) != want {
		return fields, false
	}
	return out, true
}

func joinRaw(fields []string, delim string) string {
	out := fields[0]
	for _, f := range fields[1:] {
		out += delim + f
	}
	return out
}
