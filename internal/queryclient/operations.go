package queryclient

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"vectorpart/internal/errs"
	"vectorpart/internal/vectorstore"
)

// QueryRequest extends vectorstore.QueryRequest with the record-type filter
// used to resolve which collections to fan out to.
type QueryRequest struct {
	vectorstore.QueryRequest
	Models []string
}

// queryCandidate is one (distance, id, document, metadata) tuple tagged
// with its collection scan order and position within that collection's
// sub-result, used to break distance ties deterministically.
type queryCandidate struct {
	distance   float64
	id         string
	document   string
	metadata   map[string]any
	colOrder   int
	docOrder   int
}

type collectionOutcome struct {
	name   string
	result vectorstore.QueryResult
	err    error
}

// Query fans req out to every collection resolved from req.Models,
// gathers results with per-collection fail-isolation (a single collection's
// failure is logged, not raised — unless every collection fails), and
// merges per query index by ascending distance with a stable
// (collection order, document order) tie-break.
func (c *Client) Query(ctx context.Context, req QueryRequest) (vectorstore.QueryResult, error) {
	if err := c.requireConnected(); err != nil {
		return vectorstore.QueryResult{}, err
	}

	n := len(req.QueryTexts)
	if len(req.QueryEmbeddings) > n {
		n = len(req.QueryEmbeddings)
	}

	names := c.resolveCollections(req.Models)
	if len(names) == 0 {
		return emptyQueryResult(n), nil
	}

	outcomes := c.fanOutQuery(ctx, names, req)

	var succeeded int
	for _, o := range outcomes {
		if o.err != nil {
			c.logger.Warnf("queryclient: query against collection %q failed: %v", o.name, o.err)
			continue
		}
		succeeded++
	}
	if succeeded == 0 {
		return vectorstore.QueryResult{}, errs.New(errs.QueryTotalFailure, fmt.Errorf("queryclient: all %d collections failed", len(names)))
	}

	return mergeQueryResults(outcomes, n, req.NResults), nil
}

func (c *Client) fanOutQuery(ctx context.Context, names []string, req QueryRequest) []collectionOutcome {
	outcomes := make([]collectionOutcome, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			col, err := c.collection(ctx, name)
			if err != nil {
				outcomes[i] = collectionOutcome{name: name, err: err}
				return
			}
			res, err := col.Query(ctx, req.QueryRequest)
			outcomes[i] = collectionOutcome{name: name, result: res, err: err}
		}(i, name)
	}
	wg.Wait()
	return outcomes
}

func mergeQueryResults(outcomes []collectionOutcome, n, nResults int) vectorstore.QueryResult {
	out := vectorstore.QueryResult{
		IDs:       make([][]string, n),
		Distances: make([][]float64, n),
		Documents: make([][]string, n),
		Metadatas: make([][]map[string]any, n),
	}

	for qi := 0; qi < n; qi++ {
		var candidates []queryCandidate
		for colOrder, o := range outcomes {
			if o.err != nil || qi >= len(o.result.IDs) {
				continue
			}
			ids := o.result.IDs[qi]
			for docOrder, id := range ids {
				cand := queryCandidate{id: id, colOrder: colOrder, docOrder: docOrder}
				if qi < len(o.result.Distances) && docOrder < len(o.result.Distances[qi]) {
					cand.distance = o.result.Distances[qi][docOrder]
				}
				if qi < len(o.result.Documents) && docOrder < len(o.result.Documents[qi]) {
					cand.document = o.result.Documents[qi][docOrder]
				}
				if qi < len(o.result.Metadatas) && docOrder < len(o.result.Metadatas[qi]) {
					cand.metadata = o.result.Metadatas[qi][docOrder]
				}
				candidates = append(candidates, cand)
			}
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].distance != candidates[j].distance {
				return candidates[i].distance < candidates[j].distance
			}
			if candidates[i].colOrder != candidates[j].colOrder {
				return candidates[i].colOrder < candidates[j].colOrder
			}
			return candidates[i].docOrder < candidates[j].docOrder
		})

		if nResults > 0 && len(candidates) > nResults {
			candidates = candidates[:nResults]
		}

		for _, cand := range candidates {
			out.IDs[qi] = append(out.IDs[qi], cand.id)
			out.Distances[qi] = append(out.Distances[qi], cand.distance)
			out.Documents[qi] = append(out.Documents[qi], cand.document)
			out.Metadatas[qi] = append(out.Metadatas[qi], cand.metadata)
		}
	}
	return out
}

func emptyQueryResult(n int) vectorstore.QueryResult {
	return vectorstore.QueryResult{
		IDs:       make([][]string, n),
		Distances: make([][]float64, n),
		Documents: make([][]string, n),
		Metadatas: make([][]map[string]any, n),
	}
}

// Get fans req out the same way Query does; sub-results are concatenated
// (not merged/sorted — Get has no distance to rank by), and Embeddings is
// populated only if at least one sub-result returned any.
func (c *Client) Get(ctx context.Context, req vectorstore.GetRequest, models []string) (vectorstore.GetResult, error) {
	if err := c.requireConnected(); err != nil {
		return vectorstore.GetResult{}, err
	}

	names := c.resolveCollections(models)
	if len(names) == 0 {
		return vectorstore.GetResult{}, nil
	}

	type outcome struct {
		name   string
		result vectorstore.GetResult
		err    error
	}
	outcomes := make([]outcome, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			col, err := c.collection(ctx, name)
			if err != nil {
				outcomes[i] = outcome{name: name, err: err}
				return
			}
			res, err := col.Get(ctx, req)
			outcomes[i] = outcome{name: name, result: res, err: err}
		}(i, name)
	}
	wg.Wait()

	var merged vectorstore.GetResult
	hasEmbeddings := false
	for _, o := range outcomes {
		if o.err != nil {
			c.logger.Warnf("queryclient: get against collection %q failed: %v", o.name, o.err)
			continue
		}
		merged.IDs = append(merged.IDs, o.result.IDs...)
		merged.Documents = append(merged.Documents, o.result.Documents...)
		merged.Metadatas = append(merged.Metadatas, o.result.Metadatas...)
		if len(o.result.Embeddings) > 0 {
			hasEmbeddings = true
			merged.Embeddings = append(merged.Embeddings, o.result.Embeddings...)
		}
	}
	if !hasEmbeddings {
		merged.Embeddings = nil
	}
	return merged, nil
}

// Count sums per-collection counts, logging and skipping any collection
// whose count call fails.
func (c *Client) Count(ctx context.Context, models []string) (int, error) {
	if err := c.requireConnected(); err != nil {
		return 0, err
	}

	names := c.resolveCollections(models)
	if len(names) == 0 {
		return 0, nil
	}

	counts := make([]int, len(names))
	errsOut := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			col, err := c.collection(ctx, name)
			if err != nil {
				errsOut[i] = err
				return
			}
			n, err := col.Count(ctx)
			if err != nil {
				errsOut[i] = err
				return
			}
			counts[i] = n
		}(i, name)
	}
	wg.Wait()

	total := 0
	for i, err := range errsOut {
		if err != nil {
			c.logger.Warnf("queryclient: count against collection %q failed: %v", names[i], err)
			continue
		}
		total += counts[i]
	}
	return total, nil
}
