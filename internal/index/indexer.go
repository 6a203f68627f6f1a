// Package index implements the batch indexer: the per-document pipeline
// (digest-backed id, semantic text, metadata, oversize compaction, token
// truncation) and the flush protocol (pre-flush dedup against the vector
// store, request-size shrinking, duplicate-id-tolerant upsert, resumable
// progress persistence) that turns a partition's record-type CSVs into
// vector-store collections.
package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"vectorpart/internal/compact"
	"vectorpart/internal/csvsource"
	"vectorpart/internal/errs"
	"vectorpart/internal/manifest"
	"vectorpart/internal/registry"
	"vectorpart/internal/resume"
	"vectorpart/internal/tokencount"
	"vectorpart/internal/truncate"
	"vectorpart/internal/vectorstore"
)

// Config bundles every collaborator and policy knob Run needs to index one
// partition tree.
type Config struct {
	PartitionRoot    string
	StateDir         string
	Registry         registry.Registry
	Client           vectorstore.Client
	Compactor        compact.Compactor // optional; nil falls straight to HardTrim
	Counter          tokencount.Counter
	Policy           Policy
	TruncateStrategy truncate.Strategy
	Logger           Logger // optional; nil discards oversize-drop error logs
}

// Logger is the minimal error sink buildPendingDoc uses to report a
// dropped oversize document; satisfied by *zap.SugaredLogger.
type Logger interface {
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Errorf(string, ...any) {}

// CollectionName derives the vector-store collection a partition's record
// type is indexed into: one collection per partition, named after the
// partition, holding every record type the partition carries. Partitions
// are indexed independently so query fan-out can address exactly the
// collections a given partition set covers, and the name matches the
// resume-state file prefix queryconfig.Build reads collection names from.
func CollectionName(partitionName, recordType string) string {
	return partitionName
}

// RunResult summarizes one invocation of Run.
type RunResult struct {
	DocumentsIndexed int
	Skipped          []string // "partition/record_type" already complete and unchanged
}

// Run indexes every non-stale partition recorded in m, resuming any
// partition/record type a prior run left incomplete and skipping any it left
// complete against an unchanged source file.
func Run(ctx context.Context, cfg Config, m *manifest.Manifest) (RunResult, error) {
	var result RunResult
	for _, p := range m.NonStalePartitions() {
		recordTypes := make([]string, 0, len(p.Models))
		for rt := range p.Models {
			recordTypes = append(recordTypes, rt)
		}
		sort.Strings(recordTypes)

		for _, rt := range recordTypes {
			n, skipped, err := indexPartitionRecordType(ctx, cfg, p, rt)
			if err != nil {
				return result, err
			}
			result.DocumentsIndexed += n
			if skipped {
				result.Skipped = append(result.Skipped, p.Name+"/"+rt)
			}
		}
	}
	return result, nil
}

// indexPartitionRecordType runs the full pipeline for one (partition,
// record type) pair.
func indexPartitionRecordType(ctx context.Context, cfg Config, p manifest.PartitionEntry, rt string) (documentsIndexed int, skipped bool, err error) {
	csvPath := filepath.Join(cfg.PartitionRoot, p.Name, rt+".csv")
	sig, err := resume.StatSignature(csvPath)
	if err != nil {
		return 0, false, fmt.Errorf("index: stat %q: %w", csvPath, err)
	}

	statePath := filepath.Join(cfg.PartitionRoot, p.Name, resume.FileName(p.Name))
	doc, err := resume.Load(statePath)
	if err != nil {
		return 0, false, err
	}
	state := doc[rt]

	if state.Complete && state.SourceSignature.Equal(sig) {
		return 0, true, nil
	}

	rtDef, err := cfg.Registry.RecordType(rt)
	if err != nil {
		return 0, false, err
	}

	collectionName := CollectionName(p.Name, rt)
	collection, err := cfg.Client.Collection(ctx, collectionName, true)
	if err != nil {
		return 0, false, fmt.Errorf("index: open collection %q: %w", collectionName, err)
	}

	reader, _, err := resume.Open([]string{csvPath}, csvsource.Options{HeaderRow: csvsource.HeaderAll}, state)
	if err != nil {
		return 0, false, fmt.Errorf("index: open %q: %w", csvPath, err)
	}
	defer reader.Close()

	policy := cfg.Policy
	counter := cfg.Counter
	if counter == nil {
		counter = tokencount.Approximate{}
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	builder := NewBatchBuilder(policy.EffectiveBatchSize())
	fc := &flushContext{cfg: cfg, collection: collection, collectionName: collectionName, recordType: rt, sourcePath: csvPath, builder: builder}

	total := state.DocumentsIndexed
	fieldnames := state.Fieldnames
	var lastRow *pendingDoc

	persist := func(complete bool) error {
		newState := resume.State{
			Started:          true,
			Complete:         complete,
			IndexedAt:        time.Now().UTC().Format(time.RFC3339),
			DocumentsIndexed: total,
			SourceSignature:  sig,
			Fieldnames:       fieldnames,
			RowIndex:         state.RowIndex,
		}
		if count, countErr := collection.Count(ctx); countErr == nil {
			newState.CollectionCount = count
		}
		if lastRow != nil {
			newState.FileIndex = lastRow.FileIndex
			offset := lastRow.ByteOffset
			newState.FileOffset = &offset
			newState.RowIndex = lastRow.RowIndex + 1
		}
		doc[rt] = newState
		return resume.Save(statePath, doc)
	}

	flushAndPersist := func() error {
		n, last, flushErr := fc.flush(ctx)
		if flushErr != nil {
			return flushErr
		}
		total += n
		if last != nil {
			lastRow = last
		}
		return persist(false)
	}

	for {
		row, nextErr := reader.Next()
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			return total, false, errs.New(errs.IO, fmt.Errorf("index: read %q: %w", csvPath, nextErr))
		}
		fieldnames = row.Header

		pd, dropped := buildPendingDoc(cfg, policy, counter, rt, rtDef, p, row)
		if dropped {
			continue
		}

		if builder.Len() > 0 && builder.WouldExceedSafetyLimit(pd.Tokens, policy.TokenSafetyLimit) {
			if err := flushAndPersist(); err != nil {
				return total, false, err
			}
		}

		builder.Add(pd)

		if builder.ReachedBatchSize() {
			if err := flushAndPersist(); err != nil {
				return total, false, err
			}
		}
	}

	if builder.Len() > 0 {
		if err := flushAndPersist(); err != nil {
			return total, false, err
		}
	}

	if err := persist(true); err != nil {
		return total, false, err
	}
	return total, false, nil
}

// truncationSafetyMargin is the fraction of the embedding token limit
// truncation targets, leaving headroom for the embedding vendor's own
// tokenizer to disagree with Counter's estimate.
const truncationSafetyMargin = 0.95

// buildPendingDoc runs one row through id/text/metadata construction,
// oversize-byte compaction, and token truncation. dropped reports whether
// the document's token count exceeds the hard per-request limit even
// after truncation, in which case it is logged at error level and must
// not be added to any batch.
func buildPendingDoc(cfg Config, policy Policy, counter tokencount.Counter, rt string, rtDef *registry.RecordType, p manifest.PartitionEntry, row *csvsource.Row) (doc pendingDoc, dropped bool) {
	id := buildDocumentID(rt, row)
	text := buildSemanticText(row, rtDef.SemanticFields)
	meta := buildMetadata(rt, row.FilePath, p.Models[rt].SchemaVersion, row, rtDef.KeywordFields, p.Name)

	if originalBytes := len(text); originalBytes > policy.DocumentByteLimit {
		compacted, fellBackToHardTrim := compactDocument(cfg.Compactor, id, text, rt, policy.DocumentByteLimit)
		text = compacted
		meta["original_bytes"] = originalBytes
		meta["compacted"] = true
		meta["compacted_bytes"] = len(text)
		if fellBackToHardTrim {
			meta["compaction_fallback"] = "hard_trim"
		}
	}

	tokens := counter.Count(text)
	if tokens > policy.EmbeddingTokenLimit {
		safetyBudget := int(float64(policy.EmbeddingTokenLimit) * truncationSafetyMargin)
		if truncated, newTokens, didTruncate := truncate.Apply(text, cfg.TruncateStrategy, safetyBudget, counter, rt, rtDef.SemanticFields); didTruncate {
			meta["original_tokens"] = tokens
			text = truncated
			tokens = newTokens
			meta["truncated"] = true
		}
	}
	if tokens > policy.MaxTokensPerRequest {
		cfg.Logger.Errorf("index: dropping oversize document %s (%s/%s): %d tokens exceeds hard limit %d", id, p.Name, rt, tokens, policy.MaxTokensPerRequest)
		return pendingDoc{}, true
	}

	return pendingDoc{
		ID:         id,
		Document:   text,
		Metadata:   meta,
		Tokens:     tokens,
		RowIndex:   row.RowIndex,
		ByteOffset: row.ByteOffset,
		FileIndex:  row.FileIndex,
	}, false
}

// compactDocument asks compactor (if any) to bring text under targetBytes,
// then guarantees the budget with HardTrim regardless of what the compactor
// returned. fellBack reports whether HardTrim actually had to cut text,
// signalling the compaction_fallback="hard_trim" metadata marker.
func compactDocument(compactor compact.Compactor, id, text, recordType string, targetBytes int) (result string, fellBack bool) {
	if compactor != nil {
		if res, err := compactor.Compact(id, text, recordType, targetBytes); err == nil {
			text = res.Text
		}
	}
	if len(text) <= targetBytes {
		return text, false
	}
	return compact.HardTrim(text, targetBytes), true
}

// flushContext carries the collaborators a single record type's flush calls
// need, avoiding a long parameter list threaded through every flush.
type flushContext struct {
	cfg            Config
	collection     vectorstore.Collection
	collectionName string
	recordType     string
	sourcePath     string
	builder        *BatchBuilder
}

// flush drains the builder's pending documents, skips any the collection
// already holds, shrinks the outgoing request to respect the token safety
// limit (requeuing the remainder), and upserts what's left with
// duplicate-id-tolerant retry. On an unrecoverable upsert failure it
// persists an error report and returns a wrapped error.
func (fc *flushContext) flush(ctx context.Context) (sent int, last *pendingDoc, err error) {
	batch := fc.builder.Drain()
	if len(batch) == 0 {
		return 0, nil, nil
	}

	existing, err := existingIDs(ctx, fc.collection, idsOf(batch))
	if err != nil {
		fc.builder.Requeue(batch)
		return 0, nil, fmt.Errorf("index: dedup check against %s: %w", fc.collectionName, err)
	}

	var toSend []pendingDoc
	for _, d := range batch {
		if !existing[d.ID] {
			toSend = append(toSend, d)
		}
	}
	if len(toSend) == 0 {
		last := batch[len(batch)-1]
		return 0, &last, nil
	}

	head, tail := splitForTokenLimit(toSend, fc.cfg.Policy.TokenSafetyLimit)
	if len(tail) > 0 {
		fc.builder.ShrinkTo(len(head))
	}

	sentBatch, upsertErr := upsertWithRetry(ctx, fc.collection, head)
	if upsertErr != nil {
		reportPath, reportErr := fc.writeErrorReport(head, upsertErr)
		wrapped := errs.New(errs.UpsertFailure, upsertErr)
		if reportErr != nil {
			return 0, nil, fmt.Errorf("index: %w (error report also failed: %v)", wrapped, reportErr)
		}
		return 0, nil, fmt.Errorf("index: upsert to %s failed, report written to %s: %w", fc.collectionName, reportPath, wrapped)
	}

	if len(tail) > 0 {
		fc.builder.Requeue(tail)
	}
	if len(sentBatch) == 0 {
		last := batch[len(batch)-1]
		return 0, &last, nil
	}
	l := sentBatch[len(sentBatch)-1]
	return len(sentBatch), &l, nil
}

func (fc *flushContext) writeErrorReport(batch []pendingDoc, upsertErr error) (string, error) {
	rows := make([]ErrorRow, len(batch))
	for i, d := range batch {
		rows[i] = ErrorRow{RowIndex: d.RowIndex, ID: d.ID, Document: d.Document, Metadata: d.Metadata, Tokens: d.Tokens}
	}
	report := ErrorReport{
		RecordType: fc.recordType,
		Collection: fc.collectionName,
		Reason:     "upsert_failure",
		SourceCSV:  fc.sourcePath,
		Rows:       rows,
		Error:      upsertErr.Error(),
	}
	return WriteErrorReport(fc.cfg.StateDir, report, time.Now())
}

func idsOf(batch []pendingDoc) []string {
	ids := make([]string, len(batch))
	for i, d := range batch {
		ids[i] = d.ID
	}
	return ids
}

// existingIDs queries coll for which of ids it already holds, paging
// through Get until a page comes back empty.
func existingIDs(ctx context.Context, coll vectorstore.Collection, ids []string) (map[string]bool, error) {
	existing := map[string]bool{}
	if len(ids) == 0 {
		return existing, nil
	}
	offset := 0
	for offset < len(ids) {
		res, err := coll.Get(ctx, vectorstore.GetRequest{IDs: ids, Limit: len(ids), Offset: offset})
		if err != nil {
			return nil, err
		}
		if len(res.IDs) == 0 {
			break
		}
		for _, id := range res.IDs {
			existing[id] = true
		}
		offset += len(res.IDs)
	}
	return existing, nil
}

// splitForTokenLimit returns the longest head prefix of batch whose total
// token count fits within limit (always at least one document), and the
// remaining tail to requeue. Called with the token safety limit: a single
// document over that limit but within the hard per-request cap is still
// sent alone, since buildPendingDoc already dropped anything over the
// hard cap before it reached a batch.
func splitForTokenLimit(batch []pendingDoc, limit int) (head, tail []pendingDoc) {
	total := 0
	for _, d := range batch {
		total += d.Tokens
	}
	if total <= limit || limit <= 0 {
		return batch, nil
	}
	i := len(batch)
	for i > 1 && total > limit {
		i--
		total -= batch[i].Tokens
	}
	return batch[:i], batch[i:]
}

// upsertWithRetry upserts batch, and on a DuplicateIDError filters the
// reported ids out and retries, repeating until it succeeds or a retry
// makes no further progress. Returns the documents actually sent to the
// backend (duplicates already present there are not re-sent).
func upsertWithRetry(ctx context.Context, coll vectorstore.Collection, batch []pendingDoc) ([]pendingDoc, error) {
	remaining := batch
	for {
		if len(remaining) == 0 {
			return remaining, nil
		}
		ids := make([]string, len(remaining))
		docs := make([]string, len(remaining))
		metas := make([]map[string]any, len(remaining))
		for i, d := range remaining {
			ids[i] = d.ID
			docs[i] = d.Document
			metas[i] = d.Metadata
		}

		err := coll.Upsert(ctx, ids, docs, metas)
		if err == nil {
			return remaining, nil
		}

		var dupErr *vectorstore.DuplicateIDError
		if !errors.As(err, &dupErr) {
			return remaining, err
		}
		dupIDs := dupErr.IDs
		if len(dupIDs) == 0 {
			dupIDs = vectorstore.ParseDuplicateIDs(dupErr.Error())
		}
		if len(dupIDs) == 0 {
			return remaining, err
		}
		dupSet := make(map[string]bool, len(dupIDs))
		for _, id := range dupIDs {
			dupSet[id] = true
		}
		filtered := make([]pendingDoc, 0, len(remaining))
		for _, d := range remaining {
			if !dupSet[d.ID] {
				filtered = append(filtered, d)
			}
		}
		if len(filtered) == len(remaining) {
			return remaining, err
		}
		remaining = filtered
	}
}
