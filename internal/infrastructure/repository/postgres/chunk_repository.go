package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/policy-qa/internal/core/domain"
)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ReplaceChunks swaps the document's chunk set in one transaction so a
// reprocessed document never exposes a mix of old and new chunks.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	for _, c := range chunks {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO chunks (id, document_id, ordinal, text, metadata)
VALUES ($1,$2,$3,$4,$5)
`, c.ID, documentID, c.Ordinal, c.Text, metaJSON); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, ordinal, text, metadata
FROM chunks
WHERE document_id = $1
ORDER BY ordinal
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var metaRaw []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Text, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(metaRaw, &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
