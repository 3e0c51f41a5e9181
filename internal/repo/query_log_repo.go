package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/dbutil"
)

type QueryLogRepo struct {
	db *sql.DB
}

func NewQueryLogRepo(db *sql.DB) *QueryLogRepo {
	return &QueryLogRepo{db: db}
}

func (r *QueryLogRepo) Create(ctx context.Context, log *model.QueryLog) error {
	data := map[string]interface{}{
		"id":         log.ID,
		"org_id":     log.OrgID,
		"user_id":    log.UserID,
		"input":      log.Input,
		"tokens_in":  log.TokensIn,
		"tokens_out": log.TokensOut,
		"vendor":     log.Vendor,
		"cache_hit":  log.CacheHit,
		"latency_ms": log.LatencyMs,
		"error":      log.Error,
		"ctime":      log.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("query_logs", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *QueryLogRepo) ListRecent(ctx context.Context, orgID string, limit uint) ([]model.QueryLog, error) {
	where := map[string]interface{}{
		"org_id":   orgID,
		"_orderby": "ctime desc",
		"_limit":   []uint{0, limit},
	}
	sqlStr, args, err := builder.BuildSelect("query_logs", where,
		[]string{"id", "org_id", "user_id", "input", "tokens_in", "tokens_out", "vendor", "cache_hit", "latency_ms", "error", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []model.QueryLog
	for rows.Next() {
		var item model.QueryLog
		if err := rows.Scan(&item.ID, &item.OrgID, &item.UserID, &item.Input, &item.TokensIn,
			&item.TokensOut, &item.Vendor, &item.CacheHit, &item.LatencyMs, &item.Error, &item.Ctime); err != nil {
			return nil, err
		}
		logs = append(logs, item)
	}
	return logs, rows.Err()
}
