package student

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/audit"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("student")
	ErrStudentNumberExists = errors.New("a student with this student number already exists")
	ErrHasLedgerRecords    = errors.New("student has fee or supply records; set the status to inactive instead")
)

type (
	Repository interface {
		audit.Writer

		// Atomic runs fn inside one transaction; the Repository given to fn is bound to it.
		Atomic(ctx context.Context, fn func(repo Repository) error) error
		StudentNumberExists(ctx context.Context, number string) (bool, error)
		CreateStudent(ctx context.Context, s Student) (Student, error)
		GetStudent(ctx context.Context, id int) (Student, error)
		QueryStudents(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		UpdateStudent(ctx context.Context, s Student) (Student, error)
		// HasLedgerRecords reports whether fee assessments or distributions reference the student.
		HasLedgerRecords(ctx context.Context, id int) (bool, error)
		DeleteStudent(ctx context.Context, id int) error
	}

	ServiceInterface interface {
		Create(ctx context.Context, actor core.Actor, ns NewStudent) (Student, error)
		Get(ctx context.Context, id int) (Student, error)
		Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		Update(ctx context.Context, actor core.Actor, id int, us UpdateStudent) (Student, error)
		Delete(ctx context.Context, actor core.Actor, id int) error
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, ns NewStudent) (Student, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return Student{}, err
	}

	now := time.Now().UTC()
	s := Student{
		StudentNumber: ns.StudentNumber,
		FirstName:     ns.FirstName,
		LastName:      ns.LastName,
		DateOfBirth:   core.TruncateDay(ns.DateOfBirth),
		Gender:        ns.Gender,
		Address:       ns.Address,
		Phone:         ns.Phone,
		Email:         ns.Email,
		ClassYear:     ns.ClassYear,
		Status:        ns.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		exists, err := repo.StudentNumberExists(ctx, s.StudentNumber)
		if err != nil {
			return err
		}
		if exists {
			return core.NewValidationError(ErrStudentNumberExists,
				core.FieldError{Field: "student_number", Error: ErrStudentNumberExists.Error()})
		}

		if s, err = repo.CreateStudent(ctx, s); err != nil {
			return err
		}
		_, err = repo.CreateAuditEntry(ctx, audit.NewEntry(actor, audit.ActionStudentCreated,
			fmt.Sprintf("Created student ID: %d", s.ID)))
		return err
	})
	if err != nil {
		return Student{}, core.StoreError("creating student", err)
	}
	return s, nil
}

func (svc *Service) Get(ctx context.Context, id int) (Student, error) {
	s, err := svc.repo.GetStudent(ctx, id)
	return s, core.StoreError("finding student", err)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	filter.Clean()
	students, err := svc.repo.QueryStudents(ctx, filter, ordering)
	return students, core.StoreError("querying students", err)
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id int, us UpdateStudent) (Student, error) {
	if err := us.Validate(svc.validate); err != nil {
		return Student{}, err
	}

	var s Student
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		var err error
		if s, err = repo.GetStudent(ctx, id); err != nil {
			return err
		}
		s.FirstName = us.FirstName
		s.LastName = us.LastName
		s.DateOfBirth = core.TruncateDay(us.DateOfBirth)
		s.Gender = us.Gender
		s.Address = us.Address
		s.Phone = us.Phone
		s.Email = us.Email
		s.ClassYear = us.ClassYear
		s.Status = us.Status
		s.UpdatedAt = time.Now().UTC()

		if s, err = repo.UpdateStudent(ctx, s); err != nil {
			return err
		}
		_, err = repo.CreateAuditEntry(ctx, audit.NewEntry(actor, audit.ActionStudentUpdated,
			fmt.Sprintf("Updated student ID: %d", s.ID)))
		return err
	})
	if err != nil {
		return Student{}, core.StoreError("updating student", err)
	}
	return s, nil
}

func (svc *Service) Delete(ctx context.Context, actor core.Actor, id int) error {
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		s, err := repo.GetStudent(ctx, id)
		if err != nil {
			return err
		}
		hasRecords, err := repo.HasLedgerRecords(ctx, id)
		if err != nil {
			return err
		}
		if hasRecords {
			return core.NewValidationError(ErrHasLedgerRecords)
		}

		if err = repo.DeleteStudent(ctx, id); err != nil {
			return err
		}
		_, err = repo.CreateAuditEntry(ctx, audit.NewEntry(actor, audit.ActionStudentDeleted,
			fmt.Sprintf("Deleted student: %s (%s %s)", s.StudentNumber, s.FirstName, s.LastName)))
		return err
	})
	return core.StoreError("deleting student", err)
}
