package index

import (
	"encoding/json"
	"sort"
	"strings"

	"vectorpart/internal/csvsource"
	"vectorpart/internal/digest"
)

// fieldMap extracts a row's values into a generic field map keyed by
// header name, normalizing blank cells to absent keys so DocumentID and
// metadata building agree with the digest package's nil-as-empty rule.
func fieldMap(row *csvsource.Row) map[string]any {
	out := make(map[string]any, len(row.Header))
	for i, h := range row.Header {
		if i < len(row.Cells) && row.Cells[i] != nil {
			out[h] = *row.Cells[i]
		}
	}
	return out
}

// buildDocumentID computes the deterministic, field-order-independent
// document id for a row of the given record type.
func buildDocumentID(recordType string, row *csvsource.Row) string {
	return digest.DocumentID(recordType, fieldMap(row))
}

// buildSemanticText joins the non-empty semantic fields with newlines, or
// falls back to the canonical JSON of the full field map when every
// semantic field is empty (or none are declared).
func buildSemanticText(row *csvsource.Row, semanticFields []string) string {
	var parts []string
	for _, f := range semanticFields {
		v := row.Value(f)
		if v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}

	fields := fieldMap(row)
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	ordered := make(map[string]any, len(fields))
	for _, n := range names {
		ordered[n] = fields[n]
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		return ""
	}
	return string(b)
}

// buildMetadata assembles the base metadata for a document: record type,
// source path, schema version (if known), and every non-empty keyword
// field value. Callers append compaction/truncation flags afterward.
func buildMetadata(recordType, sourcePath string, schemaVersion int, row *csvsource.Row, keywordFields []string, partitionName string) map[string]any {
	meta := map[string]any{
		"record_type": recordType,
		"source_path": sourcePath,
	}
	if schemaVersion > 0 {
		meta["schema_version"] = schemaVersion
	}
	if partitionName != "" {
		meta["partition_name"] = partitionName
	}
	for _, f := range keywordFields {
		if v := row.Value(f); v != "" {
			meta[f] = v
		}
	}
	return meta
}
