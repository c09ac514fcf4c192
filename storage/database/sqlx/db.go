package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/audit"
)

const pqUniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// store runs statements on the database, or on the transaction it is bound to.
type store struct {
	db   *sqlx.DB
	exec sqlx.ExtContext
	tx   bool
}

func newStore(db *sqlx.DB) store {
	return store{db: db, exec: db}
}

// atomic runs fn in a transaction, committed when fn succeeds and rolled back otherwise.
// A store already bound to a transaction runs fn in it.
func (s store) atomic(ctx context.Context, fn func(tx store) error) (err error) {
	if s.tx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, core.TxOptions)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err = fn(store{db: s.db, exec: tx, tx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (s store) get(ctx context.Context, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, s.exec, dest, query, args...)
}

func (s store) selekt(ctx context.Context, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, s.exec, dest, query, args...)
}

// execute runs b and returns the number of affected rows.
func (s store) execute(ctx context.Context, b sq.Sqlizer) (int, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := s.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s store) executeRaw(ctx context.Context, query string, args ...interface{}) (int, error) {
	res, err := s.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CreateAuditEntry is shared by every repository of the package, so entries join their transaction.
func (s store) CreateAuditEntry(ctx context.Context, entry audit.Entry) (audit.Entry, error) {
	b := psql.Insert("system_logs").
		Columns("user_id", "action", "details", "created_at").
		Values(entry.UserID, entry.Action, entry.Details, entry.CreatedAt.UTC()).
		Suffix("RETURNING id")
	if err := s.get(ctx, &entry.ID, b); err != nil {
		return audit.Entry{}, errors.Wrap(err, "inserting audit entry")
	}
	return entry, nil
}

// trapNoRowsErr maps psql "no rows" err to `notFound`
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation && pqErr.Constraint == constraint
	}
	return false
}

func orderBy(b sq.SelectBuilder, ordering []core.DBOrdering, allowed map[string]string, fallback string) sq.SelectBuilder {
	clauses := core.OrderingFields(ordering, allowed)
	if len(clauses) == 0 {
		return b.OrderBy(fallback)
	}
	return b.OrderBy(clauses...)
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}
