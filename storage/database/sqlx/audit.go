package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/awe-academy/core/audit"
)

type auditRepository struct {
	store
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *sqlx.DB) audit.Repository {
	return &auditRepository{newStore(db)}
}

func (repo *auditRepository) QueryAuditEntries(ctx context.Context, filter audit.QueryFilter) ([]audit.Entry, error) {
	b := psql.Select("l.id", "l.user_id", "COALESCE(u.username, '') AS username", "l.action", "l.details", "l.created_at").
		From("system_logs l").
		LeftJoin("users u ON u.id = l.user_id").
		OrderBy("l.created_at DESC", "l.id DESC")

	if filter.UserID != 0 {
		b = b.Where(sq.Eq{"l.user_id": filter.UserID})
	}
	if filter.Action != "" {
		b = b.Where(sq.Eq{"l.action": filter.Action})
	}
	if !filter.From.IsZero() {
		b = b.Where(sq.GtOrEq{"l.created_at": filter.From.UTC()})
	}
	if !filter.To.IsZero() {
		b = b.Where(sq.LtOrEq{"l.created_at": filter.To.UTC()})
	}
	if filter.Limit > 0 {
		b = b.Limit(filter.Limit)
	}

	var entries []audit.Entry
	if err := repo.selekt(ctx, &entries, b); err != nil {
		return nil, errors.Wrap(err, "querying audit entries")
	}
	return entries, nil
}
