package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ZeroHash is the hash value used for empty inputs (e.g. a work unit with no
// output files). 64 zeros, same width as a real SHA-256 hex digest.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// HashBytes returns the lowercase hex SHA-256 of raw bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashCanonicalJSON hashes the canonical JSON form of v. Canonical means
// encoding/json output: struct fields in declaration order, map keys sorted.
// Callers that need field-order stability should pass structs, not maps.
func HashCanonicalJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize for hashing: %w", err)
	}
	return HashBytes(b), nil
}

// MetadataHash computes the per-table metadata hash carried on a TableSpec.
// The serialization is canonical: the TableMetadata struct marshaled with
// columns and keys in their stored order.
func MetadataHash(md *TableMetadata) (string, error) {
	return HashCanonicalJSON(md)
}

// SchemaHash computes the structural hash used for staleness detection:
// SHA-256 over sorted (table, column, type, nullable) tuples.
func SchemaHash(tables []TableMetadata) string {
	var tuples []string
	for _, t := range tables {
		for _, c := range t.Columns {
			tuples = append(tuples, fmt.Sprintf("%s.%s|%s|%s|%t",
				t.Schema, t.Table, c.Name, c.Type, c.Nullable))
		}
	}
	sort.Strings(tuples)
	return HashBytes([]byte(strings.Join(tuples, "\n")))
}

// WorkUnitContentHash hashes the ordered list of table metadata hashes.
func WorkUnitContentHash(tables []TableSpec) string {
	hashes := make([]string, len(tables))
	for i, t := range tables {
		hashes[i] = t.MetadataHash
	}
	return HashBytes([]byte(strings.Join(hashes, "\n")))
}

// OutputHash hashes the concatenated content hashes of a work unit's files,
// sorted by path. Empty input yields ZeroHash.
func OutputHash(files []IndexableFile) string {
	if len(files) == 0 {
		return ZeroHash
	}
	sorted := make([]IndexableFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var sb strings.Builder
	for _, f := range sorted {
		sb.WriteString(f.ContentHash)
	}
	return HashBytes([]byte(sb.String()))
}

// IsHexHash reports whether s looks like a lowercase 64-char hex SHA-256.
func IsHexHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
