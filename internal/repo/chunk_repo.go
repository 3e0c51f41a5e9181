package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/dbutil"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ChunkMatch is a chunk returned by vector search together with its cosine
// similarity to the query embedding. The embedding is carried along so the
// reranker can compare candidates against each other without a second trip
// to the database.
type ChunkMatch struct {
	Chunk      model.Chunk
	Similarity float32
}

func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	const query = `
		INSERT INTO chunks (id, doc_id, org_id, text, start_pos, end_pos, embedding, model, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocID, c.OrgID, c.Text, c.Start, c.End,
			pgvector.NewVector(c.Embedding), c.Model, c.Ctime,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ChunkRepo) DeleteByDoc(ctx context.Context, orgID, docID string) error {
	sqlStr, args := dbutil.Finalize("DELETE FROM chunks WHERE doc_id=? AND org_id=?", []interface{}{docID, orgID})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChunkRepo) DeleteByOrg(ctx context.Context, orgID string) error {
	sqlStr, args := dbutil.Finalize("DELETE FROM chunks WHERE org_id=?", []interface{}{orgID})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChunkRepo) CountByDoc(ctx context.Context, orgID, docID string) (int64, error) {
	sqlStr, args := dbutil.Finalize("SELECT COUNT(*) FROM chunks WHERE doc_id=? AND org_id=?", []interface{}{docID, orgID})
	var count int64
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// VectorSearch returns the chunks nearest to the query embedding within one
// organization, best first. Results carry the stored embedding.
func (r *ChunkRepo) VectorSearch(ctx context.Context, orgID string, embedding []float32, limit int) ([]ChunkMatch, error) {
	const query = `
		SELECT id, doc_id, org_id, text, start_pos, end_pos, embedding, model, ctime,
			1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE org_id = $2 AND embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(embedding), orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		var vec pgvector.Vector
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.DocID, &m.Chunk.OrgID, &m.Chunk.Text,
			&m.Chunk.Start, &m.Chunk.End, &vec, &m.Chunk.Model, &m.Chunk.Ctime, &m.Similarity); err != nil {
			return nil, err
		}
		m.Chunk.Embedding = vec.Slice()
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *ChunkRepo) ListByDoc(ctx context.Context, orgID, docID string) ([]model.Chunk, error) {
	where := map[string]interface{}{
		"doc_id":   docID,
		"org_id":   orgID,
		"_orderby": "start_pos asc",
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where,
		[]string{"id", "doc_id", "org_id", "text", "start_pos", "end_pos", "embedding", "model", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []model.Chunk
	for rows.Next() {
		var c model.Chunk
		var vec pgvector.Vector
		if err := rows.Scan(&c.ID, &c.DocID, &c.OrgID, &c.Text, &c.Start, &c.End, &vec, &c.Model, &c.Ctime); err != nil {
			return nil, err
		}
		c.Embedding = vec.Slice()
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
