package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/dbutil"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
)

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

var documentFields = []string{"id", "org_id", "title", "source", "text", "metadata", "ctime", "mtime"}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	meta, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":       doc.ID,
		"org_id":   doc.OrgID,
		"title":    doc.Title,
		"source":   doc.Source,
		"text":     doc.Text,
		"metadata": meta,
		"ctime":    doc.Ctime,
		"mtime":    doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// Update rewrites the mutable fields of a document. The source field is
// fixed at creation time.
func (r *DocumentRepo) Update(ctx context.Context, doc *model.Document) error {
	meta, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	where := map[string]interface{}{
		"id":     doc.ID,
		"org_id": doc.OrgID,
	}
	update := map[string]interface{}{
		"title":    doc.Title,
		"text":     doc.Text,
		"metadata": meta,
		"mtime":    doc.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, orgID, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"id":     docID,
		"org_id": orgID,
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListByIDs returns the named documents, tenant-filtered, in the order the
// ids were given. Missing ids are skipped.
func (r *DocumentRepo) ListByIDs(ctx context.Context, orgID string, docIDs []string) ([]*model.Document, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{
		"org_id": orgID,
		"id in":  docIDs,
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byID := make(map[string]*model.Document, len(docIDs))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		byID[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ordered := make([]*model.Document, 0, len(byID))
	for _, id := range docIDs {
		if doc, ok := byID[id]; ok {
			ordered = append(ordered, doc)
		}
	}
	return ordered, nil
}

func (r *DocumentRepo) List(ctx context.Context, orgID string, limit, offset uint) ([]*model.Document, error) {
	where := map[string]interface{}{
		"org_id":   orgID,
		"_orderby": "ctime desc",
		"_limit":   []uint{offset, limit},
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) Delete(ctx context.Context, orgID, docID string) error {
	sqlStr, args := dbutil.Finalize("DELETE FROM documents WHERE id=? AND org_id=?", []interface{}{docID, orgID})
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ListUnindexed returns documents that have no chunk rows yet. The indexer
// sweep uses it to pick up documents whose embed task was lost.
func (r *DocumentRepo) ListUnindexed(ctx context.Context, limit int) ([]*model.Document, error) {
	const query = `
		SELECT d.id, d.org_id, d.title, d.source, d.text, d.metadata, d.ctime, d.mtime
		FROM documents d
		LEFT JOIN chunks c ON c.doc_id = d.id
		WHERE c.id IS NULL
		ORDER BY d.ctime ASC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// LexicalSearch matches documents whose title or text contains any of the
// given terms, newest first. It backs the degraded search path when the
// embedding provider is down.
func (r *DocumentRepo) LexicalSearch(ctx context.Context, orgID string, terms []string, limit int) ([]*model.Document, error) {
	sqlStr := `SELECT id, org_id, title, source, text, metadata, ctime, mtime FROM documents WHERE org_id=?`
	args := []interface{}{orgID}
	if len(terms) > 0 {
		sqlStr += " AND ("
		for i, term := range terms {
			if i > 0 {
				sqlStr += " OR "
			}
			sqlStr += "(title ILIKE ? OR text ILIKE ?)"
			pattern := "%" + term + "%"
			args = append(args, pattern, pattern)
		}
		sqlStr += ")"
	}
	sqlStr += " ORDER BY ctime DESC LIMIT ?"
	args = append(args, limit)
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	var meta string
	if err := row.Scan(&doc.ID, &doc.OrgID, &doc.Title, &doc.Source, &doc.Text, &meta, &doc.Ctime, &doc.Mtime); err != nil {
		return nil, err
	}
	if err := unmarshalMetadata(meta, &doc.Metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}

func marshalMetadata(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	blob, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

func unmarshalMetadata(raw string, out *map[string]string) error {
	if raw == "" || raw == "{}" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}
