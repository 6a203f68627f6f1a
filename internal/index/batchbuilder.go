package index

// pendingDoc is one document staged in a BatchBuilder, carrying enough
// bookkeeping to persist resume state and error reports after a flush.
type pendingDoc struct {
	ID         string
	Document   string
	Metadata   map[string]any
	Tokens     int
	RowIndex   int
	ByteOffset int64
	FileIndex  int
}

// BatchBuilder owns the mutable pending-batch state the original
// implementation built from closures captured over many locals: the
// buffered documents, their running token total, and the
// monotonically-non-increasing effective batch size for the record type
// being indexed.
type BatchBuilder struct {
	pending            []pendingDoc
	currentTokens      int
	effectiveBatchSize int
}

// NewBatchBuilder starts a builder at the policy's effective batch size.
func NewBatchBuilder(effectiveBatchSize int) *BatchBuilder {
	return &BatchBuilder{effectiveBatchSize: effectiveBatchSize}
}

// Len reports how many documents are currently pending.
func (b *BatchBuilder) Len() int { return len(b.pending) }

// Tokens reports the pending batch's running token total.
func (b *BatchBuilder) Tokens() int { return b.currentTokens }

// EffectiveBatchSize reports the current (possibly shrunk) batch-size cap.
func (b *BatchBuilder) EffectiveBatchSize() int { return b.effectiveBatchSize }

// ShrinkTo lowers the effective batch size; per the monotonic
// non-increase invariant, a caller should never grow it back.
func (b *BatchBuilder) ShrinkTo(n int) {
	if n < b.effectiveBatchSize {
		b.effectiveBatchSize = n
	}
}

// Add appends doc to the pending batch.
func (b *BatchBuilder) Add(doc pendingDoc) {
	b.pending = append(b.pending, doc)
	b.currentTokens += doc.Tokens
}

// WouldExceedSafetyLimit reports whether adding a document with the given
// token count would push the running total over limit.
func (b *BatchBuilder) WouldExceedSafetyLimit(tokens, limit int) bool {
	return b.currentTokens+tokens > limit
}

// ReachedBatchSize reports whether the pending batch is at or above the
// current effective batch size.
func (b *BatchBuilder) ReachedBatchSize() bool {
	return len(b.pending) >= b.effectiveBatchSize
}

// Drain removes and returns every currently pending document, resetting
// the builder's buffer (but not its effective batch size).
func (b *BatchBuilder) Drain() []pendingDoc {
	out := b.pending
	b.pending = nil
	b.currentTokens = 0
	return out
}

// Requeue puts docs back at the front of the pending buffer -- used when a
// flush shrinks the outgoing slice and the remainder must still be sent.
func (b *BatchBuilder) Requeue(docs []pendingDoc) {
	tokens := 0
	for _, d := range docs {
		tokens += d.Tokens
	}
	b.pending = append(docs, b.pending...)
	b.currentTokens += tokens
}
