// Package retrieval implements hybrid search over the corpus: dense vector
// search and FTS keyword search run in parallel and are merged with
// reciprocal rank fusion.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"certquiz/internal/config"
	"certquiz/internal/corpus"
	"certquiz/internal/embedding"
)

// Store is the corpus surface the retriever needs.
type Store interface {
	VectorSearch(ctx context.Context, query []float32, sourceTypes []string, limit int, minSimilarity float64) ([]corpus.SearchHit, error)
	KeywordSearch(ctx context.Context, query string, sourceTypes []string, limit int) ([]corpus.SearchHit, error)
}

// Result is a fused search hit. VectorRank and KeywordRank are 1-based; zero
// means the chunk was absent from that sub-search.
type Result struct {
	Chunk       corpus.Chunk
	VectorRank  int
	KeywordRank int
	Combined    float64
}

// Error wraps a sub-search failure. Hybrid search is fail-fast: one failed
// leg fails the whole lookup.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("retrieval failed during %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HybridRetriever fuses vector and keyword search results.
type HybridRetriever struct {
	store  Store
	engine embedding.Engine

	vectorWeight  float64
	keywordWeight float64
	rrfConstant   float64
	minSimilarity float64
}

// NewHybridRetriever builds a retriever from the retrieval configuration.
func NewHybridRetriever(store Store, engine embedding.Engine, cfg config.RetrievalConfig) *HybridRetriever {
	return &HybridRetriever{
		store:         store,
		engine:        engine,
		vectorWeight:  cfg.VectorWeight,
		keywordWeight: cfg.KeywordWeight,
		rrfConstant:   float64(cfg.RRFConstant),
		minSimilarity: cfg.SimilarityThreshold,
	}
}

// Search runs both sub-searches concurrently and fuses the rankings.
func (r *HybridRetriever) Search(ctx context.Context, query string, sourceTypes []string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	var vectorHits, keywordHits []corpus.SearchHit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		queryVec, err := r.engine.Embed(gctx, query)
		if err != nil {
			return &Error{Stage: "query embedding", Err: err}
		}
		vectorHits, err = r.store.VectorSearch(gctx, queryVec, sourceTypes, limit, r.minSimilarity)
		if err != nil {
			return &Error{Stage: "vector search", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		keywordHits, err = r.store.KeywordSearch(gctx, query, sourceTypes, limit)
		if err != nil {
			return &Error{Stage: "keyword search", Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return r.fuse(vectorHits, keywordHits, limit), nil
}

// fuse merges the two rankings with reciprocal rank fusion. A chunk absent
// from one list simply contributes nothing for that list. Ties break on
// vector rank, then keyword rank, then first appearance.
func (r *HybridRetriever) fuse(vectorHits, keywordHits []corpus.SearchHit, limit int) []Result {
	type slot struct {
		result Result
		order  int
	}
	merged := make(map[int64]*slot)
	order := 0

	add := func(hit corpus.SearchHit) *slot {
		s, ok := merged[hit.ID]
		if !ok {
			s = &slot{result: Result{Chunk: hit.Chunk}, order: order}
			order++
			merged[hit.ID] = s
		}
		return s
	}

	for i, hit := range vectorHits {
		s := add(hit)
		s.result.VectorRank = i + 1
		s.result.Combined += r.vectorWeight / (r.rrfConstant + float64(i+1))
	}
	for i, hit := range keywordHits {
		s := add(hit)
		s.result.KeywordRank = i + 1
		s.result.Combined += r.keywordWeight / (r.rrfConstant + float64(i+1))
	}

	slots := make([]*slot, 0, len(merged))
	for _, s := range merged {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.result.Combined != b.result.Combined {
			return a.result.Combined > b.result.Combined
		}
		if ar, br := rankKey(a.result.VectorRank), rankKey(b.result.VectorRank); ar != br {
			return ar < br
		}
		if ar, br := rankKey(a.result.KeywordRank), rankKey(b.result.KeywordRank); ar != br {
			return ar < br
		}
		return a.order < b.order
	})

	if len(slots) > limit {
		slots = slots[:limit]
	}
	results := make([]Result, len(slots))
	for i, s := range slots {
		results[i] = s.result
	}
	return results
}

// rankKey maps "absent" (0) after every real rank.
func rankKey(rank int) int {
	if rank == 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}

// FetchFacts retrieves instructional material (textbook and diagram chunks)
// relevant to the query.
func (r *HybridRetriever) FetchFacts(ctx context.Context, query string, limit int) ([]Result, error) {
	return r.Search(ctx, query, []string{corpus.SourceTextbook, corpus.SourceDiagram}, limit)
}

// FetchStyleExamples retrieves question-phrasing exemplars. It over-fetches
// so authentic past exam items can be preferred over previously generated
// questions, then truncates to limit.
func (r *HybridRetriever) FetchStyleExamples(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	candidates, err := r.Search(ctx, query, []string{corpus.SourceExamPaper, corpus.SourceQuestion}, limit*2)
	if err != nil {
		return nil, err
	}

	examples := make([]Result, 0, len(candidates))
	var rest []Result
	for _, c := range candidates {
		if c.Chunk.SourceType == corpus.SourceExamPaper {
			examples = append(examples, c)
		} else {
			rest = append(rest, c)
		}
	}
	examples = append(examples, rest...)

	if len(examples) > limit {
		examples = examples[:limit]
	}
	return examples, nil
}
