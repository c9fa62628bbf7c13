package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/vecmath"
	"github.com/scrypster/recall/pkg/types"
)

func TestMockEmbedderDeterministicAndNormalized(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, []string{"astronomy homework plan"})
	require.NoError(t, err)
	b, err := e.Embed(ctx, []string{"astronomy homework plan"})
	require.NoError(t, err)

	assert.Equal(t, a[0], b[0], "same text must embed identically")
	assert.InDelta(t, 1.0, vecmath.Norm(a[0]), 1e-5)
}

func TestMockEmbedderSharedTokensAreCloser(t *testing.T) {
	e := NewMockEmbedder(128)
	ctx := context.Background()

	vecs, err := e.Embed(ctx, []string{
		"astronomy homework plan",
		"discuss astronomy homework",
		"prepare for history quiz",
	})
	require.NoError(t, err)

	simRelated := vecmath.DotOne(vecs[0], vecs[1])
	simUnrelated := vecmath.DotOne(vecs[0], vecs[2])
	assert.Greater(t, simRelated, simUnrelated)
}

func TestMockEmbedderEmptyTextIsZeroVector(t *testing.T) {
	e := NewMockEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{""})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, vecmath.Norm(vecs[0]), 1e-12)
}

func TestConcatSummarizer(t *testing.T) {
	s := ConcatSummarizer{}

	digest, err := s.Summarize(context.Background(), []types.Memory{
		{Text: "studied stars\nmore detail"},
		{Text: "observed planets"},
	})
	require.NoError(t, err)
	assert.Contains(t, digest, "Consolidated 2 related memories")
	assert.Contains(t, digest, "studied stars")
	assert.NotContains(t, digest, "more detail", "only leading lines are joined")

	_, err = s.Summarize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}
