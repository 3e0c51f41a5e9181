package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/proxi-ai/proxi/internal/model"
	"github.com/proxi-ai/proxi/internal/pkg/dbutil"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
)

type OrgRepo struct {
	db *sql.DB
}

func NewOrgRepo(db *sql.DB) *OrgRepo {
	return &OrgRepo{db: db}
}

func (r *OrgRepo) Create(ctx context.Context, org *model.Organization) error {
	data := map[string]interface{}{
		"id":    org.ID,
		"name":  org.Name,
		"rpm":   org.RPM,
		"burst": org.Burst,
		"ctime": org.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("organizations", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *OrgRepo) GetByID(ctx context.Context, orgID string) (*model.Organization, error) {
	where := map[string]interface{}{
		"id": orgID,
	}
	sqlStr, args, err := builder.BuildSelect("organizations", where, []string{"id", "name", "rpm", "burst", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var org model.Organization
	if err := row.Scan(&org.ID, &org.Name, &org.RPM, &org.Burst, &org.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

// UpdateLimits sets per-organization rate limit overrides. Zero values fall
// back to the configured defaults at check time.
func (r *OrgRepo) UpdateLimits(ctx context.Context, orgID string, rpm, burst int) error {
	where := map[string]interface{}{
		"id": orgID,
	}
	update := map[string]interface{}{
		"rpm":   rpm,
		"burst": burst,
	}
	sqlStr, args, err := builder.BuildUpdate("organizations", where, update)
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
