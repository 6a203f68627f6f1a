// Package digest computes the stable fingerprints that drive cross-run
// de-duplication (row digest) and schema-version propagation (schema
// signature).
package digest

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// unitSeparator is the fixed, non-printable delimiter (U+241F) row cells
// are joined with before hashing.
const unitSeparator = "␟"

// Row computes the 40-hex-char SHA-1 digest of a row's cells, in header
// order. A row shorter than header is right-padded with empty strings; a
// row longer than header must already have been stitched to width by the
// caller.
func Row(header []string, cells []string) string {
	values := make([]string, len(header))
	for i := range header {
		if i < len(cells) {
			values[i] = cells[i]
		}
	}
	sum := sha1.Sum([]byte(strings.Join(values, unitSeparator)))
	return hex.EncodeToString(sum[:])
}

// FieldSpec is the shape of a single record-type field as used for schema
// signature computation: name, type, optional alias, required flag, and an
// optional default value.
type FieldSpec struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Alias    string      `json:"alias,omitempty"`
	Required bool        `json:"required,omitempty"`
	Default  interface{} `json:"default,omitempty"`
}

// SchemaSignature computes the SHA-1 digest of a record type's field list,
// serialized as JSON after sorting by field name. Two field lists that
// differ only in declaration order hash identically.
func SchemaSignature(fields []FieldSpec) string {
	sorted := make([]FieldSpec, len(fields))
	copy(sorted, fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	b, err := json.Marshal(sorted)
	if err != nil {
		// Field values are always JSON-marshalable primitives; a failure
		// here would mean a caller stuffed a non-marshalable Default in.
		panic("digest: schema signature fields must be JSON-marshalable: " + err.Error())
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// DocumentID builds the deterministic document id for a record: the
// 40-hex-char SHA-1 of the canonical (sorted-key) JSON of the record's full
// field map, prefixed by the record type.
func DocumentID(recordType string, fields map[string]any) string {
	// encoding/json emits map keys in sorted order.
	b, err := json.Marshal(fields)
	if err != nil {
		panic("digest: document fields must be JSON-marshalable: " + err.Error())
	}
	sum := sha1.Sum(b)
	return recordType + ":" + hex.EncodeToString(sum[:])
}
