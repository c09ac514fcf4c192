package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/student"
	"github.com/trezcool/awe-academy/core/supply"
)

type supplyRepository struct {
	conn
}

var _ supply.Repository = (*supplyRepository)(nil) // interface compliance check

func NewSupplyRepository(db *DB) supply.Repository {
	return &supplyRepository{conn{db: db}}
}

func (repo *supplyRepository) Atomic(_ context.Context, fn func(repo supply.Repository) error) error {
	return repo.atomic(func(tx conn) error {
		return fn(&supplyRepository{tx})
	})
}

func (repo *supplyRepository) CreateSupply(_ context.Context, s supply.Supply) (supply.Supply, error) {
	err := repo.update("CreateSupply", func(t *tables) error {
		s.ID = t.nextID("supplies")
		t.supplies[s.ID] = s
		return nil
	})
	return s, err
}

func (repo *supplyRepository) GetSupply(_ context.Context, id int) (supply.Supply, error) {
	var s supply.Supply
	err := repo.view("GetSupply", func(t *tables) error {
		var ok bool
		if s, ok = t.supplies[id]; !ok {
			return supply.ErrNotFound
		}
		return nil
	})
	return s, err
}

// GetSupplyForUpdate needs no lock: transactions are serialised.
func (repo *supplyRepository) GetSupplyForUpdate(ctx context.Context, id int) (supply.Supply, error) {
	return repo.GetSupply(ctx, id)
}

func (repo *supplyRepository) QuerySupplies(_ context.Context, filter supply.QueryFilter, ordering []core.DBOrdering) ([]supply.Supply, error) {
	var supplies []supply.Supply
	err := repo.view("QuerySupplies", func(t *tables) error {
		search := strings.ToLower(filter.Search)
		for _, s := range t.supplies {
			if search != "" && !strings.Contains(strings.ToLower(s.Name), search) {
				continue
			}
			if filter.MaxQuantity != nil && s.QuantityAvailable > *filter.MaxQuantity {
				continue
			}
			supplies = append(supplies, s)
		}
		return nil
	})

	if len(ordering) > 0 && ordering[0].Field == "quantity_available" {
		asc := ordering[0].Ascending
		sort.SliceStable(supplies, func(i, j int) bool {
			qi, qj := supplies[i].QuantityAvailable, supplies[j].QuantityAvailable
			if qi == qj {
				return supplies[i].ID < supplies[j].ID
			}
			if asc {
				return qi < qj
			}
			return qi > qj
		})
	} else {
		sortByID(supplies, func(i int) int { return supplies[i].ID }, ordering)
	}
	return supplies, err
}

func (repo *supplyRepository) UpdateSupply(_ context.Context, s supply.Supply) (supply.Supply, error) {
	err := repo.update("UpdateSupply", func(t *tables) error {
		orig, ok := t.supplies[s.ID]
		if !ok {
			return supply.ErrNotFound
		}
		s.CreatedAt = orig.CreatedAt
		t.supplies[s.ID] = s
		return nil
	})
	return s, err
}

func (repo *supplyRepository) DecrementStock(_ context.Context, id, quantity int, at time.Time) (bool, error) {
	var ok bool
	err := repo.update("DecrementStock", func(t *tables) error {
		s, found := t.supplies[id]
		if !found || s.QuantityAvailable < quantity {
			return nil
		}
		s.QuantityAvailable -= quantity
		s.UpdatedAt = at
		t.supplies[id] = s
		ok = true
		return nil
	})
	return ok, err
}

func (repo *supplyRepository) DeleteSupply(_ context.Context, id int) error {
	return repo.update("DeleteSupply", func(t *tables) error {
		if _, ok := t.supplies[id]; !ok {
			return supply.ErrNotFound
		}
		delete(t.supplies, id)
		return nil
	})
}

func (repo *supplyRepository) GetStudent(_ context.Context, id int) (student.Student, error) {
	var s student.Student
	err := repo.view("GetStudent", func(t *tables) error {
		var err error
		s, err = t.getStudent(id)
		return err
	})
	return s, err
}

func (repo *supplyRepository) CreateDistribution(_ context.Context, d supply.Distribution) (supply.Distribution, error) {
	err := repo.update("CreateDistribution", func(t *tables) error {
		d.ID = t.nextID("supply_distributions")
		t.distributions[d.ID] = d
		return nil
	})
	return d, err
}

func (repo *supplyRepository) QueryDistributions(_ context.Context, supplyID int) ([]supply.Distribution, error) {
	var ds []supply.Distribution
	err := repo.view("QueryDistributions", func(t *tables) error {
		for _, d := range t.distributions {
			if d.SupplyID != supplyID {
				continue
			}
			s := t.students[d.StudentID]
			d.StudentNumber = s.StudentNumber
			d.StudentName = s.FullName()
			d.DistributorName = t.users[d.DistributedBy].Name
			ds = append(ds, d)
		}
		return nil
	})

	sort.Slice(ds, func(i, j int) bool {
		if !ds[i].DistributionDate.Equal(ds[j].DistributionDate) {
			return ds[i].DistributionDate.After(ds[j].DistributionDate)
		}
		return ds[i].ID > ds[j].ID
	})
	return ds, err
}

func (repo *supplyRepository) DeleteDistributionsBySupply(_ context.Context, supplyID int) (int, error) {
	var n int
	err := repo.update("DeleteDistributionsBySupply", func(t *tables) error {
		for id, d := range t.distributions {
			if d.SupplyID == supplyID {
				delete(t.distributions, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
