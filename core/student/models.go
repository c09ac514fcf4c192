package student

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/awe-academy/core"
)

// Statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type Student struct {
	ID            int       `json:"id"`
	StudentNumber string    `json:"student_number"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	DateOfBirth   time.Time `json:"date_of_birth"`
	Gender        string    `json:"gender"`
	Address       string    `json:"address"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	ClassYear     string    `json:"class_year"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

func (s Student) IsActive() bool {
	return s.Status == StatusActive
}

// NewStudent contains information needed to register a Student.
type NewStudent struct {
	StudentNumber string    `json:"student_number" validate:"required,notblank,max=30"`
	FirstName     string    `json:"first_name" validate:"required,notblank,max=100"`
	LastName      string    `json:"last_name" validate:"required,notblank,max=100"`
	DateOfBirth   time.Time `json:"date_of_birth" validate:"required"`
	Gender        string    `json:"gender" validate:"required,oneof=M F O"`
	Address       string    `json:"address" validate:"required,notblank"`
	Phone         string    `json:"phone" validate:"omitempty,max=30"`
	Email         string    `json:"email" validate:"omitempty,email"`
	ClassYear     string    `json:"class_year" validate:"required,max=20"`
	Status        string    `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.StudentNumber = core.CleanString(ns.StudentNumber)
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.Gender = core.CleanString(ns.Gender)
	ns.Address = core.CleanString(ns.Address)
	ns.Phone = core.CleanString(ns.Phone)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.ClassYear = core.CleanString(ns.ClassYear)
	ns.Status = core.CleanString(ns.Status, true /* lower */)
	if ns.Status == "" {
		ns.Status = StatusActive
	}
	return validate.Struct(ns)
}

// UpdateStudent replaces the editable attributes of a Student. The student number never changes.
type UpdateStudent struct {
	FirstName   string    `json:"first_name" validate:"required,notblank,max=100"`
	LastName    string    `json:"last_name" validate:"required,notblank,max=100"`
	DateOfBirth time.Time `json:"date_of_birth" validate:"required"`
	Gender      string    `json:"gender" validate:"required,oneof=M F O"`
	Address     string    `json:"address" validate:"required,notblank"`
	Phone       string    `json:"phone" validate:"omitempty,max=30"`
	Email       string    `json:"email" validate:"omitempty,email"`
	ClassYear   string    `json:"class_year" validate:"required,max=20"`
	Status      string    `json:"status" validate:"required,oneof=active inactive"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.FirstName = core.CleanString(us.FirstName)
	us.LastName = core.CleanString(us.LastName)
	us.Gender = core.CleanString(us.Gender)
	us.Address = core.CleanString(us.Address)
	us.Phone = core.CleanString(us.Phone)
	us.Email = core.CleanString(us.Email, true /* lower */)
	us.ClassYear = core.CleanString(us.ClassYear)
	us.Status = core.CleanString(us.Status, true /* lower */)
	return validate.Struct(us)
}

type QueryFilter struct {
	Search    string `query:"search"`
	Status    string `query:"status"`
	ClassYear string `query:"class_year"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.ClassYear = core.CleanString(qf.ClassYear)
}
