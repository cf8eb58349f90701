package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tutorbase/internal/core/domain"
)

// ChunkRepository persists chunks and serves both the pgvector-ranked search
// and the full scan the client-side fallback recomputes over.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ReplaceChunks deletes the document's existing chunks and inserts the new
// set in one transaction, which makes reprocessing idempotent.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, doc.ID); err != nil {
		return nil, fmt.Errorf("delete prior chunks: %w", err)
	}

	now := time.Now().UTC()
	for _, c := range chunks {
		_, err := tx.ExecContext(ctx, `
INSERT INTO document_chunks (
	id, document_id, collection_id, chunk_index, content, char_start, char_end, token_count, page_start, page_end, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
			c.ID, c.DocumentID, c.CollectionID, c.Index, c.Content,
			c.CharStart, c.CharEnd, c.TokenCount, c.PageStart, c.PageEnd, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert chunk %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace tx: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) UpdateEmbedding(ctx context.Context, chunkID string, vector []float32) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE document_chunks
SET embedding = $2::vector
WHERE id = $1
`, chunkID, formatVector(vector))
	if err != nil {
		return fmt.Errorf("update chunk embedding: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update chunk embedding rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update chunk embedding: chunk %s not found", chunkID)
	}
	return nil
}

// Rank runs the native pgvector search. Cosine distance maps to a [0,1]
// similarity via 1 - distance.
func (r *ChunkRepository) Rank(ctx context.Context, scope domain.SearchScope, queryVector []float32, limit int, threshold float64) ([]domain.ScoredChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT c.id, c.document_id, c.collection_id, c.chunk_index, c.content,
       c.char_start, c.char_end, c.token_count, c.page_start, c.page_end,
       1 - (c.embedding <=> $2::vector) AS similarity,
       d.filename
FROM document_chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.collection_id = $1
  AND c.embedding IS NOT NULL
  AND 1 - (c.embedding <=> $2::vector) >= $3
ORDER BY similarity DESC
LIMIT $4
`, scope.CollectionID, formatVector(queryVector), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("rank chunks: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoredChunk
	for rows.Next() {
		var sc domain.ScoredChunk
		err := rows.Scan(
			&sc.Chunk.ID, &sc.Chunk.DocumentID, &sc.Chunk.CollectionID, &sc.Chunk.Index, &sc.Chunk.Content,
			&sc.Chunk.CharStart, &sc.Chunk.CharEnd, &sc.Chunk.TokenCount, &sc.Chunk.PageStart, &sc.Chunk.PageEnd,
			&sc.Score, &sc.Filename,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ranked chunk: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ranked chunks: %w", err)
	}
	return out, nil
}

// FetchEmbedded returns every embedded chunk in scope, vectors included, in
// a deterministic scan order.
func (r *ChunkRepository) FetchEmbedded(ctx context.Context, scope domain.SearchScope) ([]domain.ScoredChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT c.id, c.document_id, c.collection_id, c.chunk_index, c.content,
       c.char_start, c.char_end, c.token_count, c.page_start, c.page_end,
       c.embedding::text,
       d.filename
FROM document_chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.collection_id = $1
  AND c.embedding IS NOT NULL
ORDER BY c.document_id, c.chunk_index
`, scope.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("fetch embedded chunks: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoredChunk
	for rows.Next() {
		var sc domain.ScoredChunk
		var rawVector string
		err := rows.Scan(
			&sc.Chunk.ID, &sc.Chunk.DocumentID, &sc.Chunk.CollectionID, &sc.Chunk.Index, &sc.Chunk.Content,
			&sc.Chunk.CharStart, &sc.Chunk.CharEnd, &sc.Chunk.TokenCount, &sc.Chunk.PageStart, &sc.Chunk.PageEnd,
			&rawVector, &sc.Filename,
		)
		if err != nil {
			return nil, fmt.Errorf("scan embedded chunk: %w", err)
		}
		vector, err := parseVector(rawVector)
		if err != nil {
			return nil, fmt.Errorf("parse vector for chunk %s: %w", sc.Chunk.ID, err)
		}
		sc.Chunk.Embedding = vector
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedded chunks: %w", err)
	}
	return out, nil
}

// Dimensions reports the dimensionality of stored vectors in scope, 0 when
// the scope holds none.
func (r *ChunkRepository) Dimensions(ctx context.Context, scope domain.SearchScope) (int, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT vector_dims(embedding)
FROM document_chunks
WHERE collection_id = $1
  AND embedding IS NOT NULL
LIMIT 1
`, scope.CollectionID)

	var dims int
	if err := row.Scan(&dims); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan vector dims: %w", err)
	}
	return dims, nil
}

// formatVector renders the pgvector text literal, e.g. "[0.1,0.2]".
func formatVector(vector []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// parseVector decodes the pgvector text literal. Any other shape is a loud
// failure rather than a silently empty vector.
func parseVector(raw string) ([]float32, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return nil, fmt.Errorf("not a vector literal: %q", truncateForError(raw))
	}
	inner := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	if inner == "" {
		return nil, fmt.Errorf("empty vector literal")
	}

	parts := strings.Split(inner, ",")
	vector := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", i, err)
		}
		vector[i] = float32(f)
	}
	return vector, nil
}

func truncateForError(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
