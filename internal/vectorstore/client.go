// Package vectorstore defines the vector-store client interface the
// indexer and query client drive (spec §6), plus an HTTP-backed
// implementation. The concrete vendor is an external collaborator; this
// package only fixes the shape every vendor must be adapted to.
package vectorstore

import (
	"context"
	"fmt"
	"strings"
)

// GetRequest is the parameters for Collection.Get.
type GetRequest struct {
	IDs           []string
	Where         map[string]any
	WhereDocument map[string]any
	Limit         int
	Offset        int
	Include       []string
}

// GetResult is what Collection.Get returns. Embeddings may be shorter than
// IDs, or contain nil entries, when the caller didn't request them or the
// backend omitted them for some rows — see SPEC_FULL.md's Open Question
// decision on sparse embeddings.
type GetResult struct {
	IDs        []string
	Documents  []string
	Metadatas  []map[string]any
	Embeddings [][]float32
}

// QueryRequest is the parameters for Collection.Query.
type QueryRequest struct {
	QueryTexts      []string
	QueryEmbeddings [][]float32
	NResults        int
	Where           map[string]any
	WhereDocument   map[string]any
	Include         []string
}

// QueryResult is what Collection.Query returns: one slice per query index,
// each sub-slice sorted ascending by distance as the backend returns it.
type QueryResult struct {
	IDs       [][]string
	Distances [][]float64
	Documents [][]string
	Metadatas [][]map[string]any
}

// Collection is a single named container in the vector store.
type Collection interface {
	Name() string
	Upsert(ctx context.Context, ids []string, documents []string, metadatas []map[string]any) error
	Get(ctx context.Context, req GetRequest) (GetResult, error)
	Query(ctx context.Context, req QueryRequest) (QueryResult, error)
	Count(ctx context.Context) (int, error)
}

// Client opens and caches collection handles against one vector-store
// endpoint.
type Client interface {
	Collection(ctx context.Context, name string, createIfAbsent bool) (Collection, error)
	Close() error
}

// DuplicateIDError is raised by Upsert when the backend rejects some ids
// as already present. IDs is populated when the backend reports them
// structurally; when it only reports a message, callers fall back to
// ParseDuplicateIDs.
type DuplicateIDError struct {
	IDs []string
	Msg string
}

func (e *DuplicateIDError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("vectorstore: duplicate ids: %s", strings.Join(e.IDs, ", "))
}

// duplicateIDPattern matches the canonical document id shape
// "<record_type>:<40-hex>" (or any reasonably long hex suffix), used to
// recover offending ids from an unstructured error message.
const duplicateIDPattern = `[^,\s]+:[0-9a-fA-F]{16,}`
