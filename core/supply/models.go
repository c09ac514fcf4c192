package supply

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/awe-academy/core"
)

// StockStatus
const (
	OutOfStock = "out_of_stock"
	LowStock   = "low_stock"
	InStock    = "in_stock"
)

type Supply struct {
	ID                int       `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	QuantityAvailable int       `json:"quantity_available"`
	Unit              string    `json:"unit"`
	CreatedAt         time.Time `json:"created_at"` // UTC
	UpdatedAt         time.Time `json:"updated_at"` // UTC
}

// StockStatus classifies the available quantity against the low stock `threshold`.
func (s Supply) StockStatus(threshold int) string {
	switch {
	case s.QuantityAvailable <= 0:
		return OutOfStock
	case s.QuantityAvailable <= threshold:
		return LowStock
	default:
		return InStock
	}
}

// Distribution is an immutable record of supply issued to a student.
type Distribution struct {
	ID               int       `json:"id"`
	SupplyID         int       `json:"supply_id"`
	StudentID        int       `json:"student_id"`
	Quantity         int       `json:"quantity"`
	DistributionDate time.Time `json:"distribution_date"`
	DistributedBy    int       `json:"distributed_by"`
	Notes            string    `json:"notes"`
	CreatedAt        time.Time `json:"created_at"` // UTC

	// read only, joined from students & users
	StudentNumber   string `json:"student_number,omitempty"`
	StudentName     string `json:"student_name,omitempty"`
	DistributorName string `json:"distributor_name,omitempty"`
}

// Distributed is the outcome of a successful distribution.
type Distributed struct {
	Distribution Distribution `json:"distribution"`
	Supply       Supply       `json:"supply"`
}

// NewSupply contains information needed to stock a new Supply.
type NewSupply struct {
	Name              string `json:"name" validate:"required,notblank,max=150"`
	Description       string `json:"description" validate:"max=2000"`
	QuantityAvailable int    `json:"quantity_available" validate:"min=0"`
	Unit              string `json:"unit" validate:"required,notblank,max=30"`
}

func (ns *NewSupply) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Description = core.CleanString(ns.Description)
	ns.Unit = core.CleanString(ns.Unit)
	return validate.Struct(ns)
}

// UpdateSupply replaces the attributes of a Supply, the available quantity included.
type UpdateSupply struct {
	Name              string `json:"name" validate:"required,notblank,max=150"`
	Description       string `json:"description" validate:"max=2000"`
	QuantityAvailable int    `json:"quantity_available" validate:"min=0"`
	Unit              string `json:"unit" validate:"required,notblank,max=30"`
}

func (us *UpdateSupply) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	us.Description = core.CleanString(us.Description)
	us.Unit = core.CleanString(us.Unit)
	return validate.Struct(us)
}

// NewDistribution contains information needed to issue a Supply to a student.
type NewDistribution struct {
	SupplyID         int       `json:"supply_id" validate:"required"`
	StudentID        int       `json:"student_id" validate:"required"`
	Quantity         int       `json:"quantity" validate:"required,gt=0"`
	DistributionDate time.Time `json:"distribution_date" validate:"required"`
	Notes            string    `json:"notes" validate:"max=1000"`
}

func (nd *NewDistribution) Validate(validate *validator.Validate) error {
	nd.Notes = core.CleanString(nd.Notes)
	return validate.Struct(nd)
}

type QueryFilter struct {
	Search      string `query:"search"`
	MaxQuantity *int   `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
