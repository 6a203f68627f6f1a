package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDuplicateIDs(t *testing.T) {
	msg := "insert failed, ids already exist: Table:0123456789abcdef0123, Field:fedcba9876543210aaaa"
	got := ParseDuplicateIDs(msg)
	require.Equal(t, []string{"Table:0123456789abcdef0123", "Field:fedcba9876543210aaaa"}, got)
}

func TestDuplicateIDErrorMessage(t *testing.T) {
	err := &DuplicateIDError{IDs: []string{"Table:abc"}}
	require.Contains(t, err.Error(), "Table:abc")
}
