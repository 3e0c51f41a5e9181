package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/proxi-ai/proxi/internal/ai"
	"github.com/proxi-ai/proxi/internal/cache"
	"github.com/proxi-ai/proxi/internal/config"
	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
	"github.com/proxi-ai/proxi/internal/pkg/logutil"
)

const (
	TaskEmbedDoc   = "embed_doc"
	TaskReindexOrg = "reindex_org"

	QueueKey = cache.NSQueue + ":embed_tasks"

	listBatchSize = 100
)

// Task is one unit of background indexing work pushed through the queue.
type Task struct {
	Type  string `json:"type"`
	OrgID string `json:"org_id"`
	DocID string `json:"doc_id,omitempty"`
}

type DocumentStore interface {
	GetByID(ctx context.Context, orgID, docID string) (*model.Document, error)
	List(ctx context.Context, orgID string, limit, offset uint) ([]*model.Document, error)
	ListUnindexed(ctx context.Context, limit int) ([]*model.Document, error)
}

type ChunkStore interface {
	InsertBatch(ctx context.Context, chunks []model.Chunk) error
	CountByDoc(ctx context.Context, orgID, docID string) (int64, error)
	DeleteByOrg(ctx context.Context, orgID string) error
}

// Indexer chunks and embeds documents in the background. Work arrives over
// the queue or from the periodic sweep; each unit is processed independently
// so one bad document never stalls the rest.
type Indexer struct {
	docs        DocumentStore
	chunks      ChunkStore
	embedder    ai.IEmbedder
	cache       *cache.Cache
	store       cache.Store
	chunker     *Chunker
	concurrency int
	sweepBatch  int
	now         func() time.Time
}

func New(docs DocumentStore, chunks ChunkStore, embedder ai.IEmbedder, c *cache.Cache, cfg config.IndexerConfig) *Indexer {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	sweepBatch := cfg.SweepBatch
	if sweepBatch <= 0 {
		sweepBatch = 10
	}
	return &Indexer{
		docs:        docs,
		chunks:      chunks,
		embedder:    embedder,
		cache:       c,
		store:       c.Store(),
		chunker:     NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		concurrency: concurrency,
		sweepBatch:  sweepBatch,
		now:         time.Now,
	}
}

func (i *Indexer) EnqueueEmbed(ctx context.Context, orgID, docID string) error {
	return i.enqueue(ctx, Task{Type: TaskEmbedDoc, OrgID: orgID, DocID: docID})
}

func (i *Indexer) EnqueueReindex(ctx context.Context, orgID string) error {
	return i.enqueue(ctx, Task{Type: TaskReindexOrg, OrgID: orgID})
}

func (i *Indexer) enqueue(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return i.store.QueuePush(ctx, QueueKey, payload)
}

// EmbedDocument chunks and embeds one document. A document that already has
// chunk rows is skipped, so redelivered tasks are harmless.
func (i *Indexer) EmbedDocument(ctx context.Context, orgID, docID string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("org_id", orgID), zap.String("doc_id", docID))

	count, err := i.chunks.CountByDoc(ctx, orgID, docID)
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}
	if count > 0 {
		logger.Debug("document already indexed, skipping")
		return nil
	}

	doc, err := i.docs.GetByID(ctx, orgID, docID)
	if err != nil {
		if errs.IsNotFound(err) {
			logger.Warn("document vanished before indexing")
			return nil
		}
		return fmt.Errorf("load document: %w", err)
	}

	spans := i.chunker.Split(Normalize(doc.Text))
	if len(spans) == 0 {
		logger.Warn("document has no indexable text")
		return nil
	}

	now := i.now().UnixMilli()
	rows := make([]model.Chunk, 0, len(spans))
	for _, span := range spans {
		vec, err := i.embedder.Embed(ctx, span.Text)
		if err != nil {
			return fmt.Errorf("embed chunk at %d: %w", span.Start, err)
		}
		rows = append(rows, model.Chunk{
			ID:        uuid.NewString(),
			DocID:     doc.ID,
			OrgID:     orgID,
			Text:      span.Text,
			Start:     span.Start,
			End:       span.End,
			Embedding: vec,
			Model:     i.embedder.ModelName(),
			Ctime:     now,
		})
	}
	if err := i.chunks.InsertBatch(ctx, rows); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}
	logger.Info("document indexed", zap.Int("chunks", len(rows)))

	i.invalidate(ctx, orgID)
	return nil
}

// ReindexOrganization drops every chunk the tenant owns and rebuilds them
// document by document. Individual failures are logged and skipped.
func (i *Indexer) ReindexOrganization(ctx context.Context, orgID string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("org_id", orgID))

	if err := i.chunks.DeleteByOrg(ctx, orgID); err != nil {
		return fmt.Errorf("drop org chunks: %w", err)
	}

	var offset uint
	total := 0
	for {
		docs, err := i.docs.List(ctx, orgID, listBatchSize, offset)
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		if len(docs) == 0 {
			break
		}
		for _, doc := range docs {
			if err := i.EmbedDocument(ctx, orgID, doc.ID); err != nil {
				logger.Error("reindex document failed", zap.String("doc_id", doc.ID), zap.Error(err))
				continue
			}
			total++
		}
		offset += uint(len(docs))
	}
	logger.Info("organization reindexed", zap.Int("documents", total))

	i.invalidate(ctx, orgID)
	return nil
}

// Sweep picks up documents that have no chunks, healing tasks that were
// lost between enqueue and delivery.
func (i *Indexer) Sweep(ctx context.Context) error {
	docs, err := i.docs.ListUnindexed(ctx, i.sweepBatch)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := i.EmbedDocument(ctx, doc.OrgID, doc.ID); err != nil {
			logutil.GetLogger(ctx).Error("sweep embed failed",
				zap.String("doc_id", doc.ID), zap.Error(err))
		}
	}
	return nil
}

// Run consumes the task queue until the context is cancelled. Tasks run
// concurrently up to the configured limit; failures are logged, never fatal.
func (i *Indexer) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	logger.Info("indexer worker started", zap.Int("concurrency", i.concurrency))

	g := &errgroup.Group{}
	g.SetLimit(i.concurrency)
	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		default:
		}
		payload, ok, err := i.store.QueuePop(ctx, QueueKey, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				_ = g.Wait()
				return ctx.Err()
			}
			logger.Warn("queue pop failed", zap.Error(err))
			select {
			case <-ctx.Done():
				_ = g.Wait()
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if !ok {
			continue
		}
		g.Go(func() error {
			i.process(ctx, payload)
			return nil
		})
	}
}

func (i *Indexer) process(ctx context.Context, payload []byte) {
	logger := logutil.GetLogger(ctx)
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		logger.Error("malformed task payload", zap.ByteString("payload", payload), zap.Error(err))
		return
	}
	var err error
	switch task.Type {
	case TaskEmbedDoc:
		err = i.EmbedDocument(ctx, task.OrgID, task.DocID)
	case TaskReindexOrg:
		err = i.ReindexOrganization(ctx, task.OrgID)
	default:
		logger.Warn("unknown task type", zap.String("type", task.Type))
		return
	}
	if err != nil {
		logger.Error("task failed", zap.String("type", task.Type),
			zap.String("org_id", task.OrgID), zap.String("doc_id", task.DocID), zap.Error(err))
	}
}

// invalidate drops the tenant's cached search and response entries, which
// may reference stale document sets after an index change.
func (i *Indexer) invalidate(ctx context.Context, orgID string) {
	if _, err := i.cache.InvalidateOrg(ctx, orgID); err != nil {
		logutil.GetLogger(ctx).Warn("cache invalidation failed", zap.String("org_id", orgID), zap.Error(err))
	}
}
