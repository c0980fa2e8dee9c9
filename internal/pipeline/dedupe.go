package pipeline

import (
	"context"
	"fmt"

	"certquiz/internal/corpus"
	"certquiz/internal/embedding"
)

// dedupeStore is the corpus surface the deduplicator needs.
type dedupeStore interface {
	MaxSimilarity(ctx context.Context, embedding []float32, sourceType string) (float64, error)
	InsertChunk(ctx context.Context, content string, embedding []float32, sourceType string, metadata map[string]interface{}) (int64, error)
}

// Deduplicator rejects questions that are semantically too close to ones
// already in the corpus, and records accepted questions so later jobs see
// them too.
type Deduplicator struct {
	engine    embedding.Engine
	store     dedupeStore
	threshold float64
}

// NewDeduplicator builds a deduplicator. threshold is the cosine similarity
// at or above which a question counts as a duplicate.
func NewDeduplicator(engine embedding.Engine, store dedupeStore, threshold float64) *Deduplicator {
	if threshold <= 0 {
		threshold = 0.85
	}
	return &Deduplicator{engine: engine, store: store, threshold: threshold}
}

// IsDuplicate reports whether the question text is too similar to an
// existing question, along with the similarity found.
func (d *Deduplicator) IsDuplicate(ctx context.Context, questionText string) (bool, float64, error) {
	vec, err := d.engine.Embed(ctx, questionText)
	if err != nil {
		return false, 0, fmt.Errorf("dedupe embedding failed: %w", err)
	}
	similarity, err := d.store.MaxSimilarity(ctx, vec, corpus.SourceQuestion)
	if err != nil {
		return false, 0, err
	}
	return similarity >= d.threshold, similarity, nil
}

// Record stores an accepted question in the corpus so both this job and
// future jobs dedupe against it, and so it can serve as a style example.
func (d *Deduplicator) Record(ctx context.Context, q *Question) error {
	vec, err := d.engine.Embed(ctx, q.Question)
	if err != nil {
		return fmt.Errorf("failed to embed accepted question: %w", err)
	}
	_, err = d.store.InsertChunk(ctx, q.Question, vec, corpus.SourceQuestion, map[string]interface{}{
		"question_id":   q.ID,
		"topic":         q.Topic,
		"difficulty":    q.Difficulty,
		"question_type": q.QuestionType,
	})
	return err
}
