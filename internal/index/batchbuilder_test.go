package index

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatchBuilderAddAndDrain(t *testing.T) {
	b := NewBatchBuilder(10)
	b.Add(pendingDoc{ID: "a", Tokens: 5})
	b.Add(pendingDoc{ID: "b", Tokens: 7})
	require.Equal(t, 2, b.Len())
	require.Equal(t, 12, b.Tokens())

	drained := b.Drain()
	require.Len(t, drained, 2)
	require.Equal(t, 0, b.Len())
	require.Equal(t, 0, b.Tokens())
}

func TestBatchBuilderShrinkToIsMonotonicNonIncreasing(t *testing.T) {
	b := NewBatchBuilder(100)
	b.ShrinkTo(50)
	require.Equal(t, 50, b.EffectiveBatchSize())
	b.ShrinkTo(200) // must not grow back
	require.Equal(t, 50, b.EffectiveBatchSize())
	b.ShrinkTo(10)
	require.Equal(t, 10, b.EffectiveBatchSize())
}

func TestBatchBuilderReachedBatchSize(t *testing.T) {
	b := NewBatchBuilder(2)
	require.False(t, b.ReachedBatchSize())
	b.Add(pendingDoc{ID: "a", Tokens: 1})
	require.False(t, b.ReachedBatchSize())
	b.Add(pendingDoc{ID: "b", Tokens: 1})
	require.True(t, b.ReachedBatchSize())
}

func TestBatchBuilderWouldExceedSafetyLimit(t *testing.T) {
	b := NewBatchBuilder(10)
	b.Add(pendingDoc{ID: "a", Tokens: 90})
	require.True(t, b.WouldExceedSafetyLimit(20, 100))
	require.False(t, b.WouldExceedSafetyLimit(5, 100))
}

func TestBatchBuilderRequeuePrependsAndRestoresTokens(t *testing.T) {
	b := NewBatchBuilder(10)
	b.Add(pendingDoc{ID: "a", Tokens: 3})
	tail := []pendingDoc{{ID: "z", Tokens: 4}}
	b.Requeue(tail)
	require.Equal(t, 2, b.Len())
	require.Equal(t, 7, b.Tokens())
	require.Equal(t, "z", b.pending[0].ID)
}
