package corpus

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "corpus.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// unitVec builds a simple 4-dim unit vector pointing along the given axis.
func unitVec(axis int) []float32 {
	v := make([]float32, 4)
	v[axis] = 1
	return v
}

func TestEncodeDecodeVector(t *testing.T) {
	original := []float32{0.1, -2.5, 3.75, 0}
	decoded, err := DecodeVector(EncodeVector(original))
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeVectorRejectsBadLength(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestInsertAndCountChunks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, "IAM policies grant permissions", unitVec(0), SourceTextbook, nil)
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, "VPC network topology", unitVec(1), SourceDiagram, map[string]interface{}{"page": 12})
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, "Which service stores objects?", unitVec(2), SourceExamPaper, nil)
	require.NoError(t, err)

	counts, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		SourceTextbook:  1,
		SourceDiagram:   1,
		SourceExamPaper: 1,
	}, counts)
}

func TestInsertChunkValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, "", unitVec(0), SourceTextbook, nil)
	assert.Error(t, err)

	_, err = s.InsertChunk(ctx, "content", unitVec(0), "", nil)
	assert.Error(t, err)
}

func TestVectorSearchOrdersBySimilarity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, "exact match", []float32{1, 0, 0, 0}, SourceTextbook, nil)
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, "close match", []float32{0.9, 0.1, 0, 0}, SourceTextbook, nil)
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, "orthogonal", []float32{0, 0, 1, 0}, SourceTextbook, nil)
	require.NoError(t, err)

	hits, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, []string{SourceTextbook}, 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "exact match", hits[0].Content)
	assert.Equal(t, "close match", hits[1].Content)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Greater(t, hits[1].Score, hits[2].Score)
}

func TestVectorSearchFiltersSourceTypes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, "textbook chunk", unitVec(0), SourceTextbook, nil)
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, "exam chunk", unitVec(0), SourceExamPaper, nil)
	require.NoError(t, err)

	hits, err := s.VectorSearch(ctx, unitVec(0), []string{SourceExamPaper}, 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "exam chunk", hits[0].Content)
	assert.Equal(t, SourceExamPaper, hits[0].SourceType)
}

func TestVectorSearchSimilarityThreshold(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, "relevant", []float32{1, 0, 0, 0}, SourceTextbook, nil)
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, "unrelated", []float32{0, 1, 0, 0}, SourceTextbook, nil)
	require.NoError(t, err)

	hits, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, nil, 10, 0.7)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "relevant", hits[0].Content)
}

func TestKeywordSearchRanksByRelevance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, "IAM roles and IAM policies control IAM access", nil, SourceTextbook, nil)
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, "IAM is one of many services", nil, SourceTextbook, nil)
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, "object storage buckets", nil, SourceTextbook, nil)
	require.NoError(t, err)

	hits, err := s.KeywordSearch(ctx, "IAM policies", nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "IAM roles and IAM policies control IAM access", hits[0].Content)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestKeywordSearchEmptyQuery(t *testing.T) {
	s := openTestStore(t)

	hits, err := s.KeywordSearch(context.Background(), "   ", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestKeywordSearchQuotedInput(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertChunk(ctx, `the "least privilege" principle`, nil, SourceTextbook, nil)
	require.NoError(t, err)

	// Raw quotes and FTS operators in user input must not break the query.
	hits, err := s.KeywordSearch(ctx, `"least privilege" AND NOT`, nil, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestMaxSimilarity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// No question chunks yet.
	sim, err := s.MaxSimilarity(ctx, unitVec(0), SourceQuestion)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)

	_, err = s.InsertChunk(ctx, "existing question", []float32{0.9, 0.1, 0, 0}, SourceQuestion, nil)
	require.NoError(t, err)
	_, err = s.InsertChunk(ctx, "textbook, not question", []float32{1, 0, 0, 0}, SourceTextbook, nil)
	require.NoError(t, err)

	sim, err = s.MaxSimilarity(ctx, []float32{1, 0, 0, 0}, SourceQuestion)
	require.NoError(t, err)
	assert.Greater(t, sim, 0.9)
	assert.Less(t, sim, 1.0)
}

func TestStyleProfileRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.StyleProfileJSON(ctx, "SAA-C03")
	require.NoError(t, err)
	assert.False(t, found)

	profile := `{"tone":"formal","avg_stem_length":42}`
	require.NoError(t, s.PutStyleProfileJSON(ctx, "SAA-C03", profile))

	got, found, err := s.StyleProfileJSON(ctx, "SAA-C03")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, profile, got)

	// Upsert replaces.
	require.NoError(t, s.PutStyleProfileJSON(ctx, "SAA-C03", `{"tone":"casual"}`))
	got, _, err = s.StyleProfileJSON(ctx, "SAA-C03")
	require.NoError(t, err)
	assert.Equal(t, `{"tone":"casual"}`, got)
}

func TestFTSQuery(t *testing.T) {
	assert.Equal(t, `"IAM" OR "policies"`, ftsQuery("IAM policies"))
	assert.Equal(t, "", ftsQuery(""))
	assert.Equal(t, `"""quoted"""`, ftsQuery(`"quoted"`))
}
