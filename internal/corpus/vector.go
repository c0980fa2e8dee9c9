package corpus

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// EncodeVector serializes an embedding as little-endian float32 bytes, the
// blob format sqlite-vec's distance functions operate on.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}

// VectorSearch returns up to limit chunks ranked by cosine similarity to the
// query embedding, restricted to the given source types. Chunks scoring below
// minSimilarity are excluded.
func (s *Store) VectorSearch(ctx context.Context, query []float32, sourceTypes []string, limit int, minSimilarity float64) ([]SearchHit, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query embedding must not be empty")
	}
	if limit <= 0 {
		limit = 10
	}

	filter, filterArgs := sourceFilter("source_type", sourceTypes)
	q := `SELECT id, content, source_type, metadata, created_at,
			vec_distance_cosine(embedding, ?) AS distance
		FROM chunks
		WHERE embedding IS NOT NULL` + filter + `
		ORDER BY distance ASC
		LIMIT ?`

	args := append([]interface{}{EncodeVector(query)}, filterArgs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var distance float64
		c, err := scanChunk(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("vector search scan failed: %w", err)
		}
		similarity := 1 - distance
		if similarity < minSimilarity {
			continue
		}
		hits = append(hits, SearchHit{Chunk: c, Score: similarity})
	}
	return hits, rows.Err()
}

// KeywordSearch returns up to limit chunks ranked by FTS5 bm25 relevance,
// restricted to the given source types. Scores are negated bm25 so that
// higher means more relevant.
func (s *Store) KeywordSearch(ctx context.Context, query string, sourceTypes []string, limit int) ([]SearchHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	filter, filterArgs := sourceFilter("c.source_type", sourceTypes)
	q := `SELECT c.id, c.content, c.source_type, c.metadata, c.created_at,
			bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		WHERE chunks_fts MATCH ?` + filter + `
		ORDER BY rank ASC
		LIMIT ?`

	args := append([]interface{}{match}, filterArgs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var rank float64
		c, err := scanChunk(rows, &rank)
		if err != nil {
			return nil, fmt.Errorf("keyword search scan failed: %w", err)
		}
		hits = append(hits, SearchHit{Chunk: c, Score: -rank})
	}
	return hits, rows.Err()
}

// MaxSimilarity returns the highest cosine similarity between the given
// embedding and any chunk of the given source type. Returns 0 when no such
// chunks exist.
func (s *Store) MaxSimilarity(ctx context.Context, embedding []float32, sourceType string) (float64, error) {
	if len(embedding) == 0 {
		return 0, fmt.Errorf("embedding must not be empty")
	}

	// MIN over an empty set yields NULL, hence the nullable scan.
	var distance sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(vec_distance_cosine(embedding, ?))
		 FROM chunks
		 WHERE embedding IS NOT NULL AND source_type = ?`,
		EncodeVector(embedding), sourceType,
	).Scan(&distance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("similarity lookup failed: %w", err)
	}
	if !distance.Valid {
		return 0, nil
	}
	return 1 - distance.Float64, nil
}

// ftsQuery converts free text into a safe FTS5 MATCH expression by quoting
// each term and joining with OR. Returns "" when the text has no terms.
func ftsQuery(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}
