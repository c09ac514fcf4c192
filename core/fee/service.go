package fee

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/audit"
	"github.com/trezcool/awe-academy/core/student"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound           = core.NewNotFoundError("fee")
	ErrStudentFeeNotFound = core.NewNotFoundError("student fee")
	ErrPaymentNotFound    = core.NewNotFoundError("payment")
	ErrAlreadyAssigned    = errors.New("this fee is already assigned to the student")
)

type (
	Repository interface {
		audit.Writer

		// Atomic runs fn inside one transaction; the Repository given to fn is bound to it.
		Atomic(ctx context.Context, fn func(repo Repository) error) error

		CreateFee(ctx context.Context, f Fee) (Fee, error)
		GetFee(ctx context.Context, id int) (Fee, error)
		// GetFeeForUpdate locks the fee row until the end of the transaction.
		GetFeeForUpdate(ctx context.Context, id int) (Fee, error)
		QueryFees(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]FeeSummary, error)
		UpdateFee(ctx context.Context, f Fee) (Fee, error)
		DeleteFee(ctx context.Context, id int) error

		GetStudent(ctx context.Context, id int) (student.Student, error)
		// AssignFeeToActiveStudents creates an unpaid StudentFee for every active student and returns how many.
		AssignFeeToActiveStudents(ctx context.Context, feeID int, at time.Time) (int, error)
		StudentFeeExists(ctx context.Context, studentID, feeID int) (bool, error)
		CreateStudentFee(ctx context.Context, sf StudentFee) (StudentFee, error)
		GetStudentFee(ctx context.Context, id int) (StudentFee, error)
		// GetStudentFeeForUpdate locks the student fee row, and shares the fee row, until the end of the transaction.
		GetStudentFeeForUpdate(ctx context.Context, id int) (StudentFee, error)
		QueryStudentFees(ctx context.Context, filter StudentFeeFilter) ([]StudentFee, error)
		SetStudentFeeBalance(ctx context.Context, id int, amountPaid decimal.Decimal, status PaymentStatus, at time.Time) error
		MaxAmountPaid(ctx context.Context, feeID int) (decimal.Decimal, error)
		DeleteStudentFeesByFee(ctx context.Context, feeID int) (int, error)

		// NextPaymentID reserves the id of the next payment.
		NextPaymentID(ctx context.Context) (int, error)
		CreatePayment(ctx context.Context, p Payment) (Payment, error)
		// QueryPayments returns the payments of a StudentFee, latest first.
		QueryPayments(ctx context.Context, studentFeeID int) ([]Payment, error)
		GetReceipt(ctx context.Context, paymentID int) (Receipt, error)
		DeletePaymentsByFee(ctx context.Context, feeID int) (int, error)

		// QueryLedgerTotals returns every StudentFee with the sum of its payments.
		QueryLedgerTotals(ctx context.Context) ([]LedgerTotal, error)
	}

	ServiceInterface interface {
		CreateFee(ctx context.Context, actor core.Actor, nf NewFee) (Fee, int, error)
		GetFee(ctx context.Context, id int) (Fee, error)
		QueryFees(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]FeeSummary, error)
		UpdateFee(ctx context.Context, actor core.Actor, id int, uf UpdateFee) (Fee, error)
		DeleteFee(ctx context.Context, actor core.Actor, id int) error
		AssignFee(ctx context.Context, actor core.Actor, feeID, studentID int) (StudentFee, error)

		GetStudentFee(ctx context.Context, id int) (StudentFee, error)
		QueryStudentFees(ctx context.Context, filter StudentFeeFilter) ([]StudentFee, error)
		ApplyPayment(ctx context.Context, actor core.Actor, np NewPayment) (RecordedPayment, error)
		PaymentHistory(ctx context.Context, studentFeeID int) ([]Payment, error)
		GetReceipt(ctx context.Context, paymentID int) (Receipt, error)

		Reconcile(ctx context.Context, actor core.Actor, fix bool) ([]Discrepancy, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
		mailSvc  core.EmailService
		metrics  core.LedgerMetrics
		logger   core.Logger
		conf     *core.Config
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	repo Repository,
	validate *validator.Validate,
	mailSvc core.EmailService,
	metrics core.LedgerMetrics,
	logger core.Logger,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	if metrics == nil {
		metrics = core.NopMetrics
	}
	return &Service{
		repo:     repo,
		validate: validate,
		mailSvc:  mailSvc,
		metrics:  metrics,
		logger:   logger,
		conf:     conf,
	}
}

func (svc *Service) CreateFee(ctx context.Context, actor core.Actor, nf NewFee) (Fee, int, error) {
	if err := nf.Validate(svc.validate); err != nil {
		return Fee{}, 0, err
	}

	now := NowFunc().UTC()
	f := Fee{
		Name:         nf.Name,
		Amount:       nf.Amount,
		Description:  nf.Description,
		AcademicYear: nf.AcademicYear,
		DueDate:      core.TruncateDay(nf.DueDate),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var assigned int

	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		var err error
		if f, err = repo.CreateFee(ctx, f); err != nil {
			return errors.Wrap(err, "inserting fee")
		}
		if nf.ApplyToAll {
			if assigned, err = repo.AssignFeeToActiveStudents(ctx, f.ID, now); err != nil {
				return errors.Wrap(err, "assigning fee to active students")
			}
		}
		_, err = repo.CreateAuditEntry(ctx, audit.NewEntry(actor, audit.ActionFeeCreated, "Created fee: "+f.Name))
		return errors.Wrap(err, "writing audit entry")
	})
	if err != nil {
		return Fee{}, 0, core.StoreError("creating fee", err)
	}
	return f, assigned, nil
}

func (svc *Service) GetFee(ctx context.Context, id int) (Fee, error) {
	f, err := svc.repo.GetFee(ctx, id)
	return f, core.StoreError("finding fee", err)
}

func (svc *Service) QueryFees(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]FeeSummary, error) {
	filter.Clean()
	fees, err := svc.repo.QueryFees(ctx, filter, ordering)
	return fees, core.StoreError("querying fees", err)
}

// UpdateFee edits a Fee and re-derives the status of its assessments against the new amount.
// The amount cannot go below what a student already paid.
func (svc *Service) UpdateFee(ctx context.Context, actor core.Actor, id int, uf UpdateFee) (Fee, error) {
	if err := uf.Validate(svc.validate); err != nil {
		return Fee{}, err
	}

	var f Fee
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		var err error
		if f, err = repo.GetFeeForUpdate(ctx, id); err != nil {
			return err
		}

		amountChanged := !f.Amount.Equal(uf.Amount)
		if amountChanged {
			maxPaid, err := repo.MaxAmountPaid(ctx, id)
			if err != nil {
				return errors.Wrap(err, "finding max amount paid")
			}
			if uf.Amount.LessThan(maxPaid) {
				msg := fmt.Sprintf("amount cannot be lower than the %s already paid by a student", maxPaid.StringFixed(2))
				return core.NewValidationError(errors.New(msg), core.FieldError{Field: "amount", Error: msg})
			}
		}

		now := NowFunc().UTC()
		f.Name = uf.Name
		f.Amount = uf.Amount
		f.Description = uf.Description
		f.AcademicYear = uf.AcademicYear
		f.DueDate = core.TruncateDay(uf.DueDate)
		f.UpdatedAt = now
		if f, err = repo.UpdateFee(ctx, f); err != nil {
			return errors.Wrap(err, "updating fee")
		}

		if amountChanged {
			sfs, err := repo.QueryStudentFees(ctx, StudentFeeFilter{FeeID: id})
			if err != nil {
				return errors.Wrap(err, "querying student fees")
			}
			for _, sf := range sfs {
				status := DeriveStatus(sf.AmountPaid, f.Amount)
				if status == sf.PaymentStatus {
					continue
				}
				if err = repo.SetStudentFeeBalance(ctx, sf.ID, sf.AmountPaid, status, now); err != nil {
					return errors.Wrap(err, "updating student fee status")
				}
			}
		}

		_, err = repo.CreateAuditEntry(ctx, audit.NewEntry(actor, audit.ActionFeeUpdated, fmt.Sprintf("Updated fee ID: %d", f.ID)))
		return errors.Wrap(err, "writing audit entry")
	})
	if err != nil {
		return Fee{}, core.StoreError("updating fee", err)
	}
	return f, nil
}

// DeleteFee removes a Fee with its assessments and their payments.
func (svc *Service) DeleteFee(ctx context.Context, actor core.Actor, id int) error {
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		f, err := repo.GetFeeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, err = repo.DeletePaymentsByFee(ctx, id); err != nil {
			return errors.Wrap(err, "deleting payments")
		}
		if _, err = repo.DeleteStudentFeesByFee(ctx, id); err != nil {
			return errors.Wrap(err, "deleting student fees")
		}
		if err = repo.DeleteFee(ctx, id); err != nil {
			return errors.Wrap(err, "deleting fee")
		}
		_, err = repo.CreateAuditEntry(ctx, audit.NewEntry(actor, audit.ActionFeeDeleted, "Deleted fee: "+f.Name))
		return errors.Wrap(err, "writing audit entry")
	})
	return core.StoreError("deleting fee", err)
}

// AssignFee attaches a Fee to a single student.
func (svc *Service) AssignFee(ctx context.Context, actor core.Actor, feeID, studentID int) (StudentFee, error) {
	var sf StudentFee
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		f, err := repo.GetFee(ctx, feeID)
		if err != nil {
			return err
		}
		s, err := repo.GetStudent(ctx, studentID)
		if err != nil {
			return err
		}
		exists, err := repo.StudentFeeExists(ctx, studentID, feeID)
		if err != nil {
			return errors.Wrap(err, "checking assignment")
		}
		if exists {
			return core.NewValidationError(ErrAlreadyAssigned,
				core.FieldError{Field: "student_id", Error: ErrAlreadyAssigned.Error()})
		}

		now := NowFunc().UTC()
		sf, err = repo.CreateStudentFee(ctx, StudentFee{
			StudentID:     studentID,
			FeeID:         feeID,
			AmountPaid:    decimal.Zero,
			PaymentStatus: StatusUnpaid,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return errors.Wrap(err, "inserting student fee")
		}
		_, err = repo.CreateAuditEntry(ctx, audit.NewEntry(actor, audit.ActionFeeAssigned,
			fmt.Sprintf("Assigned fee: %s to student %s", f.Name, s.StudentNumber)))
		if err != nil {
			return errors.Wrap(err, "writing audit entry")
		}
		sf, err = repo.GetStudentFee(ctx, sf.ID)
		return err
	})
	if err != nil {
		return StudentFee{}, core.StoreError("assigning fee", err)
	}
	return sf, nil
}

func (svc *Service) GetStudentFee(ctx context.Context, id int) (StudentFee, error) {
	sf, err := svc.repo.GetStudentFee(ctx, id)
	return sf, core.StoreError("finding student fee", err)
}

func (svc *Service) QueryStudentFees(ctx context.Context, filter StudentFeeFilter) ([]StudentFee, error) {
	sfs, err := svc.repo.QueryStudentFees(ctx, filter)
	return sfs, core.StoreError("querying student fees", err)
}

// PaymentHistory lists the payments applied to a StudentFee, latest first.
func (svc *Service) PaymentHistory(ctx context.Context, studentFeeID int) ([]Payment, error) {
	if _, err := svc.repo.GetStudentFee(ctx, studentFeeID); err != nil {
		return nil, core.StoreError("finding student fee", err)
	}
	payments, err := svc.repo.QueryPayments(ctx, studentFeeID)
	return payments, core.StoreError("querying payments", err)
}

func (svc *Service) GetReceipt(ctx context.Context, paymentID int) (Receipt, error) {
	rct, err := svc.repo.GetReceipt(ctx, paymentID)
	return rct, core.StoreError("finding receipt", err)
}
