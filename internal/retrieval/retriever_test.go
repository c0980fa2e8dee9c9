package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certquiz/internal/config"
	"certquiz/internal/corpus"
)

type mockEngine struct {
	embedErr error
}

func (m *mockEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return []float32{1, 0, 0}, nil
}

func (m *mockEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (m *mockEngine) Dimensions() int { return 3 }
func (m *mockEngine) Name() string    { return "mock" }

type mockStore struct {
	vectorHits  []corpus.SearchHit
	keywordHits []corpus.SearchHit
	vectorErr   error
	keywordErr  error

	vectorSourceTypes  []string
	keywordSourceTypes []string
	vectorLimit        int
}

func (m *mockStore) VectorSearch(ctx context.Context, query []float32, sourceTypes []string, limit int, minSimilarity float64) ([]corpus.SearchHit, error) {
	m.vectorSourceTypes = sourceTypes
	m.vectorLimit = limit
	return m.vectorHits, m.vectorErr
}

func (m *mockStore) KeywordSearch(ctx context.Context, query string, sourceTypes []string, limit int) ([]corpus.SearchHit, error) {
	m.keywordSourceTypes = sourceTypes
	return m.keywordHits, m.keywordErr
}

func hit(id int64, content, sourceType string) corpus.SearchHit {
	return corpus.SearchHit{Chunk: corpus.Chunk{ID: id, Content: content, SourceType: sourceType}}
}

func testConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		VectorWeight:        0.5,
		KeywordWeight:       0.5,
		RRFConstant:         60,
		SimilarityThreshold: 0,
	}
}

func TestSearchFusesBothRankings(t *testing.T) {
	store := &mockStore{
		vectorHits: []corpus.SearchHit{
			hit(1, "both lists", corpus.SourceTextbook),
			hit(2, "vector only", corpus.SourceTextbook),
		},
		keywordHits: []corpus.SearchHit{
			hit(3, "keyword only", corpus.SourceTextbook),
			hit(1, "both lists", corpus.SourceTextbook),
		},
	}
	r := NewHybridRetriever(store, &mockEngine{}, testConfig())

	results, err := r.Search(context.Background(), "query", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Chunk 1 appears in both lists (vector rank 1, keyword rank 2) and must
	// dominate the single-list hits.
	assert.Equal(t, int64(1), results[0].Chunk.ID)
	assert.Equal(t, 1, results[0].VectorRank)
	assert.Equal(t, 2, results[0].KeywordRank)
	assert.InDelta(t, 0.5/61+0.5/62, results[0].Combined, 1e-9)

	// Rank-1 single-list hits tie on score; vector rank breaks the tie.
	assert.Equal(t, int64(3), results[1].Chunk.ID)
	assert.Equal(t, int64(2), results[2].Chunk.ID)
	assert.InDelta(t, results[1].Combined, results[2].Combined, 1e-9)
}

func TestSearchTieBreakPrefersVectorRank(t *testing.T) {
	// Two chunks with identical combined scores: one from vector rank 1, one
	// from keyword rank 1. Vector presence wins.
	store := &mockStore{
		vectorHits:  []corpus.SearchHit{hit(10, "from vector", corpus.SourceTextbook)},
		keywordHits: []corpus.SearchHit{hit(20, "from keyword", corpus.SourceTextbook)},
	}
	r := NewHybridRetriever(store, &mockEngine{}, testConfig())

	results, err := r.Search(context.Background(), "query", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(10), results[0].Chunk.ID)
	assert.Equal(t, int64(20), results[1].Chunk.ID)
}

func TestSearchTruncatesToLimit(t *testing.T) {
	store := &mockStore{
		vectorHits: []corpus.SearchHit{
			hit(1, "a", corpus.SourceTextbook),
			hit(2, "b", corpus.SourceTextbook),
			hit(3, "c", corpus.SourceTextbook),
		},
	}
	r := NewHybridRetriever(store, &mockEngine{}, testConfig())

	results, err := r.Search(context.Background(), "query", nil, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchFailsWhenVectorLegFails(t *testing.T) {
	store := &mockStore{
		vectorErr:   errors.New("db locked"),
		keywordHits: []corpus.SearchHit{hit(1, "a", corpus.SourceTextbook)},
	}
	r := NewHybridRetriever(store, &mockEngine{}, testConfig())

	_, err := r.Search(context.Background(), "query", nil, 10)
	require.Error(t, err)
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "vector search", re.Stage)
}

func TestSearchFailsWhenKeywordLegFails(t *testing.T) {
	store := &mockStore{
		vectorHits: []corpus.SearchHit{hit(1, "a", corpus.SourceTextbook)},
		keywordErr: errors.New("fts corrupt"),
	}
	r := NewHybridRetriever(store, &mockEngine{}, testConfig())

	_, err := r.Search(context.Background(), "query", nil, 10)
	require.Error(t, err)
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "keyword search", re.Stage)
}

func TestSearchFailsWhenEmbeddingFails(t *testing.T) {
	store := &mockStore{}
	r := NewHybridRetriever(store, &mockEngine{embedErr: errors.New("quota exceeded")}, testConfig())

	_, err := r.Search(context.Background(), "query", nil, 10)
	require.Error(t, err)
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "query embedding", re.Stage)
}

func TestFetchFactsFiltersInstructionalSources(t *testing.T) {
	store := &mockStore{}
	r := NewHybridRetriever(store, &mockEngine{}, testConfig())

	_, err := r.FetchFacts(context.Background(), "query", 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{corpus.SourceTextbook, corpus.SourceDiagram}, store.vectorSourceTypes)
	assert.ElementsMatch(t, []string{corpus.SourceTextbook, corpus.SourceDiagram}, store.keywordSourceTypes)
}

func TestFetchStyleExamplesPrefersExamPaper(t *testing.T) {
	store := &mockStore{
		vectorHits: []corpus.SearchHit{
			hit(1, "generated q1", corpus.SourceQuestion),
			hit(2, "generated q2", corpus.SourceQuestion),
			hit(3, "real exam item", corpus.SourceExamPaper),
		},
	}
	r := NewHybridRetriever(store, &mockEngine{}, testConfig())

	results, err := r.FetchStyleExamples(context.Background(), "query", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, corpus.SourceExamPaper, results[0].Chunk.SourceType)
	assert.Equal(t, int64(1), results[1].Chunk.ID)
}

func TestFetchStyleExamplesOverFetches(t *testing.T) {
	store := &mockStore{}
	r := NewHybridRetriever(store, &mockEngine{}, testConfig())

	_, err := r.FetchStyleExamples(context.Background(), "query", 5)
	require.NoError(t, err)
	assert.Equal(t, 10, store.vectorLimit)
	assert.ElementsMatch(t, []string{corpus.SourceExamPaper, corpus.SourceQuestion}, store.vectorSourceTypes)
}
