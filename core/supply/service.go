package supply

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/audit"
	"github.com/trezcool/awe-academy/core/student"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound = core.NewNotFoundError("supply")
)

type (
	Repository interface {
		audit.Writer

		// Atomic runs fn inside one transaction; the Repository given to fn is bound to it.
		Atomic(ctx context.Context, fn func(repo Repository) error) error

		CreateSupply(ctx context.Context, s Supply) (Supply, error)
		GetSupply(ctx context.Context, id int) (Supply, error)
		// GetSupplyForUpdate locks the supply row until the end of the transaction.
		GetSupplyForUpdate(ctx context.Context, id int) (Supply, error)
		QuerySupplies(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Supply, error)
		UpdateSupply(ctx context.Context, s Supply) (Supply, error)
		// DecrementStock removes `quantity` from the stock only if that much is available.
		// It reports whether the stock was decremented.
		DecrementStock(ctx context.Context, id, quantity int, at time.Time) (bool, error)
		DeleteSupply(ctx context.Context, id int) error

		GetStudent(ctx context.Context, id int) (student.Student, error)
		CreateDistribution(ctx context.Context, d Distribution) (Distribution, error)
		// QueryDistributions returns the distributions of a Supply, latest first.
		QueryDistributions(ctx context.Context, supplyID int) ([]Distribution, error)
		DeleteDistributionsBySupply(ctx context.Context, supplyID int) (int, error)
	}

	ServiceInterface interface {
		CreateSupply(ctx context.Context, actor core.Actor, ns NewSupply) (Supply, error)
		GetSupply(ctx context.Context, id int) (Supply, error)
		QuerySupplies(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Supply, error)
		LowStock(ctx context.Context) ([]Supply, error)
		UpdateSupply(ctx context.Context, actor core.Actor, id int, us UpdateSupply) (Supply, error)
		Distribute(ctx context.Context, actor core.Actor, nd NewDistribution) (Distributed, error)
		Distributions(ctx context.Context, supplyID int) ([]Distribution, error)
		DeleteSupply(ctx context.Context, actor core.Actor, id int) error
		LowStockThreshold() int
	}

	Service struct {
		repo      Repository
		validate  *validator.Validate
		metrics   core.LedgerMetrics
		threshold int
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, validate *validator.Validate, metrics core.LedgerMetrics, conf *core.Config) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	if metrics == nil {
		metrics = core.NopMetrics
	}
	return &Service{
		repo:      repo,
		validate:  validate,
		metrics:   metrics,
		threshold: conf.Ledger.LowStockThreshold,
	}
}

func (svc *Service) LowStockThreshold() int {
	return svc.threshold
}

func (svc *Service) CreateSupply(ctx context.Context, actor core.Actor, ns NewSupply) (Supply, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return Supply{}, err
	}

	now := NowFunc().UTC()
	s := Supply{
		Name:              ns.Name,
		Description:       ns.Description,
		QuantityAvailable: ns.QuantityAvailable,
		Unit:              ns.Unit,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		var err error
		if s, err = repo.CreateSupply(ctx, s); err != nil {
			return errors.Wrap(err, "inserting supply")
		}
		_, err = repo.CreateAuditEntry(ctx, audit.NewEntry(actor, audit.ActionSupplyCreated,
			fmt.Sprintf("Created supply: %s with initial quantity of %d", s.Name, s.QuantityAvailable)))
		return errors.Wrap(err, "writing audit entry")
	})
	if err != nil {
		return Supply{}, core.StoreError("creating supply", err)
	}
	return s, nil
}

func (svc *Service) GetSupply(ctx context.Context, id int) (Supply, error) {
	s, err := svc.repo.GetSupply(ctx, id)
	return s, core.StoreError("finding supply", err)
}

func (svc *Service) QuerySupplies(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Supply, error) {
	filter.Clean()
	supplies, err := svc.repo.QuerySupplies(ctx, filter, ordering)
	return supplies, core.StoreError("querying supplies", err)
}

// LowStock lists the supplies at or below the low stock threshold, emptiest first.
func (svc *Service) LowStock(ctx context.Context) ([]Supply, error) {
	threshold := svc.threshold
	supplies, err := svc.repo.QuerySupplies(ctx, QueryFilter{MaxQuantity: &threshold},
		[]core.DBOrdering{{Field: "quantity_available", Ascending: true}})
	return supplies, core.StoreError("querying low stock supplies", err)
}

func (svc *Service) UpdateSupply(ctx context.Context, actor core.Actor, id int, us UpdateSupply) (Supply, error) {
	if err := us.Validate(svc.validate); err != nil {
		return Supply{}, err
	}

	var s Supply
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		var err error
		if s, err = repo.GetSupplyForUpdate(ctx, id); err != nil {
			return err
		}
		s.Name = us.Name
		s.Description = us.Description
		s.QuantityAvailable = us.QuantityAvailable
		s.Unit = us.Unit
		s.UpdatedAt = NowFunc().UTC()

		if s, err = repo.UpdateSupply(ctx, s); err != nil {
			return errors.Wrap(err, "updating supply")
		}
		_, err = repo.CreateAuditEntry(ctx, audit.NewEntry(actor, audit.ActionSupplyUpdated,
			fmt.Sprintf("Updated supply ID: %d", s.ID)))
		return errors.Wrap(err, "writing audit entry")
	})
	if err != nil {
		return Supply{}, core.StoreError("updating supply", err)
	}
	return s, nil
}

// Distribute issues a quantity of a Supply to a student and decrements the stock.
// The supply row is locked for the whole transaction and the decrement is conditioned
// on the available quantity, so concurrent distributions never drive the stock negative.
func (svc *Service) Distribute(ctx context.Context, actor core.Actor, nd NewDistribution) (Distributed, error) {
	if err := nd.Validate(svc.validate); err != nil {
		svc.metrics.OperationRejected("distribute_supply", "validation")
		return Distributed{}, err
	}

	var res Distributed
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		s, err := repo.GetSupplyForUpdate(ctx, nd.SupplyID)
		if err != nil {
			return err
		}
		if nd.Quantity > s.QuantityAvailable {
			return &core.InsufficientStockError{Requested: nd.Quantity, Available: s.QuantityAvailable}
		}
		if _, err = repo.GetStudent(ctx, nd.StudentID); err != nil {
			return err
		}

		now := NowFunc().UTC()
		ok, err := repo.DecrementStock(ctx, s.ID, nd.Quantity, now)
		if err != nil {
			return errors.Wrap(err, "decrementing stock")
		}
		if !ok {
			return &core.InsufficientStockError{Requested: nd.Quantity, Available: s.QuantityAvailable}
		}
		s.QuantityAvailable -= nd.Quantity
		s.UpdatedAt = now

		d, err := repo.CreateDistribution(ctx, Distribution{
			SupplyID:         s.ID,
			StudentID:        nd.StudentID,
			Quantity:         nd.Quantity,
			DistributionDate: core.TruncateDay(nd.DistributionDate),
			DistributedBy:    actor.UserID,
			Notes:            nd.Notes,
			CreatedAt:        now,
		})
		if err != nil {
			return errors.Wrap(err, "inserting distribution")
		}

		_, err = repo.CreateAuditEntry(ctx, audit.NewEntry(actor, audit.ActionSupplyDistributed,
			fmt.Sprintf("Distributed %d %s of %s", d.Quantity, s.Unit, s.Name)))
		if err != nil {
			return errors.Wrap(err, "writing audit entry")
		}

		res = Distributed{Distribution: d, Supply: s}
		return nil
	})
	if err != nil {
		switch errors.Cause(err).(type) {
		case *core.InsufficientStockError:
			svc.metrics.OperationRejected("distribute_supply", "insufficient_stock")
		case *core.NotFoundError:
			svc.metrics.OperationRejected("distribute_supply", "not_found")
		}
		return Distributed{}, core.StoreError("distributing supply", err)
	}

	svc.metrics.SupplyDistributed(res.Supply.Name, res.Distribution.Quantity)
	return res, nil
}

func (svc *Service) Distributions(ctx context.Context, supplyID int) ([]Distribution, error) {
	if _, err := svc.repo.GetSupply(ctx, supplyID); err != nil {
		return nil, core.StoreError("finding supply", err)
	}
	ds, err := svc.repo.QueryDistributions(ctx, supplyID)
	return ds, core.StoreError("querying distributions", err)
}

// DeleteSupply removes a Supply with its distributions. The distributed quantities are not restored.
func (svc *Service) DeleteSupply(ctx context.Context, actor core.Actor, id int) error {
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		s, err := repo.GetSupplyForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, err = repo.DeleteDistributionsBySupply(ctx, id); err != nil {
			return errors.Wrap(err, "deleting distributions")
		}
		if err = repo.DeleteSupply(ctx, id); err != nil {
			return errors.Wrap(err, "deleting supply")
		}
		_, err = repo.CreateAuditEntry(ctx, audit.NewEntry(actor, audit.ActionSupplyDeleted, "Deleted supply: "+s.Name))
		return errors.Wrap(err, "writing audit entry")
	})
	return core.StoreError("deleting supply", err)
}
