package service

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proxi-ai/proxi/internal/cache"
	"github.com/proxi-ai/proxi/internal/filestore"
	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
	"github.com/proxi-ai/proxi/internal/pkg/logutil"
)

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Update(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, orgID, docID string) (*model.Document, error)
	List(ctx context.Context, orgID string, limit, offset uint) ([]*model.Document, error)
	Delete(ctx context.Context, orgID, docID string) error
}

type ChunkStore interface {
	DeleteByDoc(ctx context.Context, orgID, docID string) error
}

type IndexQueue interface {
	EnqueueEmbed(ctx context.Context, orgID, docID string) error
	EnqueueReindex(ctx context.Context, orgID string) error
}

// DocumentService owns document mutations. Every write follows the same
// sequence: persist, invalidate the tenant's caches, then enqueue the
// indexing work. Ordering matters: a stale cache entry must never outlive
// the row it described.
type DocumentService struct {
	docs   DocumentStore
	chunks ChunkStore
	files  filestore.Store
	cache  *cache.Cache
	queue  IndexQueue
	now    func() time.Time
}

func NewDocumentService(docs DocumentStore, chunks ChunkStore, files filestore.Store, c *cache.Cache, queue IndexQueue) *DocumentService {
	return &DocumentService{
		docs:   docs,
		chunks: chunks,
		files:  files,
		cache:  c,
		queue:  queue,
		now:    time.Now,
	}
}

type CreateDocumentRequest struct {
	Title    string
	Source   string
	Text     string
	Metadata map[string]string
}

func (s *DocumentService) Create(ctx context.Context, orgID string, req CreateDocumentRequest) (*model.Document, error) {
	if orgID == "" {
		return nil, errs.ErrMissingTenant
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, errs.ErrInvalid
	}
	now := s.now().UnixMilli()
	doc := &model.Document{
		ID:       uuid.NewString(),
		OrgID:    orgID,
		Title:    strings.TrimSpace(req.Title),
		Source:   req.Source,
		Text:     req.Text,
		Metadata: req.Metadata,
		Ctime:    now,
		Mtime:    now,
	}
	if doc.Title == "" {
		doc.Title = "Untitled"
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	s.saveOriginal(ctx, doc)
	s.invalidate(ctx, orgID)
	s.enqueueEmbed(ctx, orgID, doc.ID)
	return doc, nil
}

type UpdateDocumentRequest struct {
	Title    string
	Text     string
	Metadata map[string]string
}

func (s *DocumentService) Update(ctx context.Context, orgID, docID string, req UpdateDocumentRequest) (*model.Document, error) {
	if orgID == "" {
		return nil, errs.ErrMissingTenant
	}
	doc, err := s.docs.GetByID(ctx, orgID, docID)
	if err != nil {
		return nil, err
	}
	if req.Title != "" {
		doc.Title = strings.TrimSpace(req.Title)
	}
	if req.Text != "" {
		doc.Text = req.Text
	}
	if req.Metadata != nil {
		doc.Metadata = req.Metadata
	}
	doc.Mtime = s.now().UnixMilli()
	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, err
	}
	// Chunks describe the old text; drop them so the indexer rebuilds.
	if err := s.chunks.DeleteByDoc(ctx, orgID, docID); err != nil {
		logutil.GetLogger(ctx).Warn("drop stale chunks failed", zap.String("doc_id", docID), zap.Error(err))
	}
	s.invalidate(ctx, orgID)
	s.enqueueEmbed(ctx, orgID, docID)
	return doc, nil
}

func (s *DocumentService) Delete(ctx context.Context, orgID, docID string) error {
	if orgID == "" {
		return errs.ErrMissingTenant
	}
	if err := s.docs.Delete(ctx, orgID, docID); err != nil {
		return err
	}
	if s.files != nil {
		if err := s.files.Delete(ctx, blobKey(orgID, docID)); err != nil {
			logutil.GetLogger(ctx).Warn("delete original blob failed", zap.String("doc_id", docID), zap.Error(err))
		}
	}
	s.invalidate(ctx, orgID)
	return nil
}

func (s *DocumentService) Get(ctx context.Context, orgID, docID string) (*model.Document, error) {
	if orgID == "" {
		return nil, errs.ErrMissingTenant
	}
	return s.docs.GetByID(ctx, orgID, docID)
}

func (s *DocumentService) List(ctx context.Context, orgID string, limit, offset uint) ([]*model.Document, error) {
	if orgID == "" {
		return nil, errs.ErrMissingTenant
	}
	if limit == 0 || limit > 200 {
		limit = 50
	}
	return s.docs.List(ctx, orgID, limit, offset)
}

// Reindex queues a full rebuild of the tenant's chunks.
func (s *DocumentService) Reindex(ctx context.Context, orgID string) error {
	if orgID == "" {
		return errs.ErrMissingTenant
	}
	return s.queue.EnqueueReindex(ctx, orgID)
}

func (s *DocumentService) saveOriginal(ctx context.Context, doc *model.Document) {
	if s.files == nil {
		return
	}
	body := []byte(doc.Text)
	err := s.files.Save(ctx, blobKey(doc.OrgID, doc.ID), bytes.NewReader(body), int64(len(body)))
	if err != nil {
		logutil.GetLogger(ctx).Warn("store original upload failed", zap.String("doc_id", doc.ID), zap.Error(err))
	}
}

func (s *DocumentService) invalidate(ctx context.Context, orgID string) {
	if _, err := s.cache.InvalidateOrg(ctx, orgID); err != nil {
		logutil.GetLogger(ctx).Warn("cache invalidation failed", zap.String("org_id", orgID), zap.Error(err))
	}
}

func (s *DocumentService) enqueueEmbed(ctx context.Context, orgID, docID string) {
	if err := s.queue.EnqueueEmbed(ctx, orgID, docID); err != nil {
		logutil.GetLogger(ctx).Error("enqueue embed task failed", zap.String("doc_id", docID), zap.Error(err))
	}
}

func blobKey(orgID, docID string) string {
	return orgID + "/" + docID
}
