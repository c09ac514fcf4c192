package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/student"
	"github.com/trezcool/awe-academy/core/supply"
)

var supplyColumns = []string{
	"id", "name", "description", "quantity_available", "unit", "created_at", "updated_at",
}

var supplyOrdering = map[string]string{
	"id":                 "id",
	"name":               "name",
	"quantity_available": "quantity_available",
	"created_at":         "created_at",
}

type (
	supplyRow struct {
		ID                int         `db:"id"`
		Name              string      `db:"name"`
		Description       null.String `db:"description"`
		QuantityAvailable int         `db:"quantity_available"`
		Unit              string      `db:"unit"`
		CreatedAt         time.Time   `db:"created_at"`
		UpdatedAt         time.Time   `db:"updated_at"`
	}

	distributionRow struct {
		ID               int         `db:"id"`
		SupplyID         int         `db:"supply_id"`
		StudentID        int         `db:"student_id"`
		Quantity         int         `db:"quantity"`
		DistributionDate time.Time   `db:"distribution_date"`
		DistributedBy    int         `db:"distributed_by"`
		Notes            null.String `db:"notes"`
		CreatedAt        time.Time   `db:"created_at"`
		StudentNumber    null.String `db:"student_number"`
		StudentName      null.String `db:"student_name"`
		DistributorName  null.String `db:"distributor_name"`
	}
)

func (r supplyRow) supply() supply.Supply {
	return supply.Supply{
		ID:                r.ID,
		Name:              r.Name,
		Description:       r.Description.String,
		QuantityAvailable: r.QuantityAvailable,
		Unit:              r.Unit,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func (r distributionRow) distribution() supply.Distribution {
	return supply.Distribution{
		ID:               r.ID,
		SupplyID:         r.SupplyID,
		StudentID:        r.StudentID,
		Quantity:         r.Quantity,
		DistributionDate: r.DistributionDate,
		DistributedBy:    r.DistributedBy,
		Notes:            r.Notes.String,
		CreatedAt:        r.CreatedAt,
		StudentNumber:    r.StudentNumber.String,
		StudentName:      r.StudentName.String,
		DistributorName:  r.DistributorName.String,
	}
}

type supplyRepository struct {
	store
}

var _ supply.Repository = (*supplyRepository)(nil) // interface compliance check

func NewSupplyRepository(db *sqlx.DB) supply.Repository {
	return &supplyRepository{newStore(db)}
}

func (repo *supplyRepository) Atomic(ctx context.Context, fn func(repo supply.Repository) error) error {
	return repo.atomic(ctx, func(tx store) error {
		return fn(&supplyRepository{tx})
	})
}

func (repo *supplyRepository) CreateSupply(ctx context.Context, s supply.Supply) (supply.Supply, error) {
	b := psql.Insert("supplies").
		Columns("name", "description", "quantity_available", "unit", "created_at", "updated_at").
		Values(s.Name, null.NewString(s.Description, s.Description != ""), s.QuantityAvailable, s.Unit,
			s.CreatedAt.UTC(), s.UpdatedAt.UTC()).
		Suffix("RETURNING id")
	if err := repo.get(ctx, &s.ID, b); err != nil {
		return supply.Supply{}, errors.Wrap(err, "inserting supply")
	}
	return s, nil
}

func (repo *supplyRepository) getSupply(ctx context.Context, id int, suffix string) (supply.Supply, error) {
	b := psql.Select(supplyColumns...).From("supplies").Where(sq.Eq{"id": id})
	if suffix != "" {
		b = b.Suffix(suffix)
	}
	var row supplyRow
	if err := repo.get(ctx, &row, b); err != nil {
		return supply.Supply{}, trapNoRowsErr(err, supply.ErrNotFound, "finding supply")
	}
	return row.supply(), nil
}

func (repo *supplyRepository) GetSupply(ctx context.Context, id int) (supply.Supply, error) {
	return repo.getSupply(ctx, id, "")
}

func (repo *supplyRepository) GetSupplyForUpdate(ctx context.Context, id int) (supply.Supply, error) {
	return repo.getSupply(ctx, id, "FOR UPDATE")
}

func (repo *supplyRepository) QuerySupplies(ctx context.Context, filter supply.QueryFilter, ordering []core.DBOrdering) ([]supply.Supply, error) {
	b := psql.Select(supplyColumns...).From("supplies")
	if filter.Search != "" {
		b = b.Where(sq.ILike{"name": "%" + filter.Search + "%"})
	}
	if filter.MaxQuantity != nil {
		b = b.Where(sq.LtOrEq{"quantity_available": *filter.MaxQuantity})
	}
	b = orderBy(b, ordering, supplyOrdering, "id")

	var rows []supplyRow
	if err := repo.selekt(ctx, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying supplies")
	}
	supplies := make([]supply.Supply, 0, len(rows))
	for _, r := range rows {
		supplies = append(supplies, r.supply())
	}
	return supplies, nil
}

func (repo *supplyRepository) UpdateSupply(ctx context.Context, s supply.Supply) (supply.Supply, error) {
	b := psql.Update("supplies").
		Set("name", s.Name).
		Set("description", null.NewString(s.Description, s.Description != "")).
		Set("quantity_available", s.QuantityAvailable).
		Set("unit", s.Unit).
		Set("updated_at", s.UpdatedAt.UTC()).
		Where(sq.Eq{"id": s.ID})
	n, err := repo.execute(ctx, b)
	if err != nil {
		return supply.Supply{}, errors.Wrap(err, "updating supply")
	}
	if n == 0 {
		return supply.Supply{}, supply.ErrNotFound
	}
	return s, nil
}

func (repo *supplyRepository) DecrementStock(ctx context.Context, id, quantity int, at time.Time) (bool, error) {
	b := psql.Update("supplies").
		Set("quantity_available", sq.Expr("quantity_available - ?", quantity)).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": id}).
		Where(sq.GtOrEq{"quantity_available": quantity})
	n, err := repo.execute(ctx, b)
	if err != nil {
		return false, errors.Wrap(err, "decrementing stock")
	}
	return n == 1, nil
}

func (repo *supplyRepository) DeleteSupply(ctx context.Context, id int) error {
	n, err := repo.execute(ctx, psql.Delete("supplies").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting supply")
	}
	if n == 0 {
		return supply.ErrNotFound
	}
	return nil
}

func (repo *supplyRepository) GetStudent(ctx context.Context, id int) (student.Student, error) {
	return repo.getStudent(ctx, id)
}

func (repo *supplyRepository) CreateDistribution(ctx context.Context, d supply.Distribution) (supply.Distribution, error) {
	b := psql.Insert("supply_distributions").
		Columns("supply_id", "student_id", "quantity", "distribution_date", "distributed_by", "notes", "created_at").
		Values(d.SupplyID, d.StudentID, d.Quantity, d.DistributionDate, d.DistributedBy,
			null.NewString(d.Notes, d.Notes != ""), d.CreatedAt.UTC()).
		Suffix("RETURNING id")
	if err := repo.get(ctx, &d.ID, b); err != nil {
		return supply.Distribution{}, errors.Wrap(err, "inserting distribution")
	}
	return d, nil
}

func (repo *supplyRepository) QueryDistributions(ctx context.Context, supplyID int) ([]supply.Distribution, error) {
	b := psql.Select(
		"d.id", "d.supply_id", "d.student_id", "d.quantity", "d.distribution_date", "d.distributed_by",
		"d.notes", "d.created_at", "s.student_number", "s.first_name || ' ' || s.last_name AS student_name",
		"u.name AS distributor_name",
	).
		From("supply_distributions d").
		LeftJoin("students s ON s.id = d.student_id").
		LeftJoin("users u ON u.id = d.distributed_by").
		Where(sq.Eq{"d.supply_id": supplyID}).
		OrderBy("d.distribution_date DESC", "d.id DESC")

	var rows []distributionRow
	if err := repo.selekt(ctx, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying distributions")
	}
	ds := make([]supply.Distribution, 0, len(rows))
	for _, r := range rows {
		ds = append(ds, r.distribution())
	}
	return ds, nil
}

func (repo *supplyRepository) DeleteDistributionsBySupply(ctx context.Context, supplyID int) (int, error) {
	n, err := repo.execute(ctx, psql.Delete("supply_distributions").Where(sq.Eq{"supply_id": supplyID}))
	return n, errors.Wrap(err, "deleting distributions")
}
