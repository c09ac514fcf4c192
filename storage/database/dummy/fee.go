package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/fee"
	"github.com/trezcool/awe-academy/core/student"
)

type feeRepository struct {
	conn
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *DB) fee.Repository {
	return &feeRepository{conn{db: db}}
}

func (repo *feeRepository) Atomic(_ context.Context, fn func(repo fee.Repository) error) error {
	return repo.atomic(func(tx conn) error {
		return fn(&feeRepository{tx})
	})
}

func (repo *feeRepository) CreateFee(_ context.Context, f fee.Fee) (fee.Fee, error) {
	err := repo.update("CreateFee", func(t *tables) error {
		f.ID = t.nextID("fees")
		t.fees[f.ID] = f
		return nil
	})
	return f, err
}

func (repo *feeRepository) GetFee(_ context.Context, id int) (fee.Fee, error) {
	var f fee.Fee
	err := repo.view("GetFee", func(t *tables) error {
		var ok bool
		if f, ok = t.fees[id]; !ok {
			return fee.ErrNotFound
		}
		return nil
	})
	return f, err
}

// GetFeeForUpdate needs no lock: transactions are serialised.
func (repo *feeRepository) GetFeeForUpdate(ctx context.Context, id int) (fee.Fee, error) {
	return repo.GetFee(ctx, id)
}

func (repo *feeRepository) QueryFees(_ context.Context, filter fee.QueryFilter, ordering []core.DBOrdering) ([]fee.FeeSummary, error) {
	var fees []fee.FeeSummary
	err := repo.view("QueryFees", func(t *tables) error {
		search := strings.ToLower(filter.Search)
		for _, f := range t.fees {
			switch {
			case search != "" && !strings.Contains(strings.ToLower(f.Name), search):
				continue
			case filter.AcademicYear != "" && f.AcademicYear != filter.AcademicYear:
				continue
			case !filter.DueFrom.IsZero() && f.DueDate.Before(core.TruncateDay(filter.DueFrom)):
				continue
			case !filter.DueTo.IsZero() && f.DueDate.After(core.TruncateDay(filter.DueTo)):
				continue
			}

			fs := fee.FeeSummary{Fee: f, Collected: decimal.Zero}
			for _, sf := range t.studentFees {
				if sf.FeeID != f.ID {
					continue
				}
				fs.Assessed++
				if sf.PaymentStatus == fee.StatusPaid {
					fs.Paid++
				}
				fs.Collected = fs.Collected.Add(sf.AmountPaid)
			}
			fees = append(fees, fs)
		}
		return nil
	})

	sortByID(fees, func(i int) int { return fees[i].ID }, ordering)
	return fees, err
}

func (repo *feeRepository) UpdateFee(_ context.Context, f fee.Fee) (fee.Fee, error) {
	err := repo.update("UpdateFee", func(t *tables) error {
		orig, ok := t.fees[f.ID]
		if !ok {
			return fee.ErrNotFound
		}
		f.CreatedAt = orig.CreatedAt
		t.fees[f.ID] = f
		return nil
	})
	return f, err
}

func (repo *feeRepository) DeleteFee(_ context.Context, id int) error {
	return repo.update("DeleteFee", func(t *tables) error {
		if _, ok := t.fees[id]; !ok {
			return fee.ErrNotFound
		}
		delete(t.fees, id)
		return nil
	})
}

func (repo *feeRepository) GetStudent(_ context.Context, id int) (student.Student, error) {
	var s student.Student
	err := repo.view("GetStudent", func(t *tables) error {
		var err error
		s, err = t.getStudent(id)
		return err
	})
	return s, err
}

func (repo *feeRepository) AssignFeeToActiveStudents(_ context.Context, feeID int, at time.Time) (int, error) {
	var n int
	err := repo.update("AssignFeeToActiveStudents", func(t *tables) error {
		ids := make([]int, 0, len(t.students))
		for id, s := range t.students {
			if s.IsActive() {
				ids = append(ids, id)
			}
		}
		sort.Ints(ids)
		for _, studentID := range ids {
			if t.studentFeeExists(studentID, feeID) {
				continue
			}
			id := t.nextID("student_fees")
			t.studentFees[id] = fee.StudentFee{
				ID:            id,
				StudentID:     studentID,
				FeeID:         feeID,
				AmountPaid:    decimal.Zero,
				PaymentStatus: fee.StatusUnpaid,
				CreatedAt:     at,
				UpdatedAt:     at,
			}
			n++
		}
		return nil
	})
	return n, err
}

func (t *tables) studentFeeExists(studentID, feeID int) bool {
	for _, sf := range t.studentFees {
		if sf.StudentID == studentID && sf.FeeID == feeID {
			return true
		}
	}
	return false
}

func (repo *feeRepository) StudentFeeExists(_ context.Context, studentID, feeID int) (bool, error) {
	var exists bool
	err := repo.view("StudentFeeExists", func(t *tables) error {
		exists = t.studentFeeExists(studentID, feeID)
		return nil
	})
	return exists, err
}

func (repo *feeRepository) CreateStudentFee(_ context.Context, sf fee.StudentFee) (fee.StudentFee, error) {
	err := repo.update("CreateStudentFee", func(t *tables) error {
		if t.studentFeeExists(sf.StudentID, sf.FeeID) {
			return fee.ErrAlreadyAssigned
		}
		sf.ID = t.nextID("student_fees")
		t.studentFees[sf.ID] = sf
		return nil
	})
	return sf, err
}

// joinStudentFee fills the read only fields of sf.
func (t *tables) joinStudentFee(sf fee.StudentFee) fee.StudentFee {
	f := t.fees[sf.FeeID]
	s := t.students[sf.StudentID]
	sf.FeeName = f.Name
	sf.FeeAmount = f.Amount
	sf.DueDate = f.DueDate
	sf.StudentNumber = s.StudentNumber
	sf.StudentName = s.FullName()
	sf.StudentEmail = s.Email
	return sf
}

func (repo *feeRepository) GetStudentFee(_ context.Context, id int) (fee.StudentFee, error) {
	var sf fee.StudentFee
	err := repo.view("GetStudentFee", func(t *tables) error {
		var ok bool
		if sf, ok = t.studentFees[id]; !ok {
			return fee.ErrStudentFeeNotFound
		}
		sf = t.joinStudentFee(sf)
		return nil
	})
	return sf, err
}

// GetStudentFeeForUpdate needs no lock: transactions are serialised.
func (repo *feeRepository) GetStudentFeeForUpdate(ctx context.Context, id int) (fee.StudentFee, error) {
	return repo.GetStudentFee(ctx, id)
}

func (repo *feeRepository) QueryStudentFees(_ context.Context, filter fee.StudentFeeFilter) ([]fee.StudentFee, error) {
	var sfs []fee.StudentFee
	err := repo.view("QueryStudentFees", func(t *tables) error {
		for _, sf := range t.studentFees {
			switch {
			case filter.FeeID != 0 && sf.FeeID != filter.FeeID:
				continue
			case filter.StudentID != 0 && sf.StudentID != filter.StudentID:
				continue
			case filter.Status != "" && sf.PaymentStatus != filter.Status:
				continue
			}
			sfs = append(sfs, t.joinStudentFee(sf))
		}
		return nil
	})

	sortByID(sfs, func(i int) int { return sfs[i].ID }, nil)
	return sfs, err
}

func (repo *feeRepository) SetStudentFeeBalance(_ context.Context, id int, amountPaid decimal.Decimal, status fee.PaymentStatus, at time.Time) error {
	return repo.update("SetStudentFeeBalance", func(t *tables) error {
		sf, ok := t.studentFees[id]
		if !ok {
			return fee.ErrStudentFeeNotFound
		}
		sf.AmountPaid = amountPaid
		sf.PaymentStatus = status
		sf.UpdatedAt = at
		t.studentFees[id] = sf
		return nil
	})
}

func (repo *feeRepository) MaxAmountPaid(_ context.Context, feeID int) (decimal.Decimal, error) {
	max := decimal.Zero
	err := repo.view("MaxAmountPaid", func(t *tables) error {
		for _, sf := range t.studentFees {
			if sf.FeeID == feeID && sf.AmountPaid.GreaterThan(max) {
				max = sf.AmountPaid
			}
		}
		return nil
	})
	return max, err
}

func (repo *feeRepository) DeleteStudentFeesByFee(_ context.Context, feeID int) (int, error) {
	var n int
	err := repo.update("DeleteStudentFeesByFee", func(t *tables) error {
		for id, sf := range t.studentFees {
			if sf.FeeID == feeID {
				delete(t.studentFees, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (repo *feeRepository) NextPaymentID(_ context.Context) (int, error) {
	var id int
	err := repo.update("NextPaymentID", func(t *tables) error {
		id = t.nextID("payments")
		return nil
	})
	return id, err
}

func (repo *feeRepository) CreatePayment(_ context.Context, p fee.Payment) (fee.Payment, error) {
	err := repo.update("CreatePayment", func(t *tables) error {
		if p.ID == 0 {
			p.ID = t.nextID("payments")
		}
		for _, other := range t.payments {
			if other.ReceiptNumber == p.ReceiptNumber {
				return errDuplicateReceipt
			}
		}
		t.payments[p.ID] = p
		return nil
	})
	return p, err
}

func (repo *feeRepository) QueryPayments(_ context.Context, studentFeeID int) ([]fee.Payment, error) {
	var payments []fee.Payment
	err := repo.view("QueryPayments", func(t *tables) error {
		for _, p := range t.payments {
			if p.StudentFeeID == studentFeeID {
				p.RecordedBy = t.users[p.CreatedBy].Name
				payments = append(payments, p)
			}
		}
		return nil
	})

	sort.Slice(payments, func(i, j int) bool {
		pi, pj := payments[i], payments[j]
		if !pi.PaymentDate.Equal(pj.PaymentDate) {
			return pi.PaymentDate.After(pj.PaymentDate)
		}
		if !pi.CreatedAt.Equal(pj.CreatedAt) {
			return pi.CreatedAt.After(pj.CreatedAt)
		}
		return pi.ID > pj.ID
	})
	return payments, err
}

func (repo *feeRepository) GetReceipt(_ context.Context, paymentID int) (fee.Receipt, error) {
	var rct fee.Receipt
	err := repo.view("GetReceipt", func(t *tables) error {
		p, ok := t.payments[paymentID]
		if !ok {
			return fee.ErrPaymentNotFound
		}
		p.RecordedBy = t.users[p.CreatedBy].Name
		sf := t.joinStudentFee(t.studentFees[p.StudentFeeID])
		rct = fee.Receipt{
			Payment:       p,
			StudentNumber: sf.StudentNumber,
			StudentName:   sf.StudentName,
			ClassYear:     t.students[sf.StudentID].ClassYear,
			FeeName:       sf.FeeName,
			AcademicYear:  t.fees[sf.FeeID].AcademicYear,
			FeeAmount:     sf.FeeAmount,
			AmountPaid:    sf.AmountPaid,
			Balance:       sf.Remaining(),
		}
		return nil
	})
	return rct, err
}

func (repo *feeRepository) DeletePaymentsByFee(_ context.Context, feeID int) (int, error) {
	var n int
	err := repo.update("DeletePaymentsByFee", func(t *tables) error {
		for id, p := range t.payments {
			if t.studentFees[p.StudentFeeID].FeeID == feeID {
				delete(t.payments, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (repo *feeRepository) QueryLedgerTotals(_ context.Context) ([]fee.LedgerTotal, error) {
	var totals []fee.LedgerTotal
	err := repo.view("QueryLedgerTotals", func(t *tables) error {
		sums := make(map[int]decimal.Decimal, len(t.studentFees))
		for _, p := range t.payments {
			sums[p.StudentFeeID] = sums[p.StudentFeeID].Add(p.Amount)
		}
		for _, sf := range t.studentFees {
			totals = append(totals, fee.LedgerTotal{
				StudentFee:    t.joinStudentFee(sf),
				PaymentsTotal: sums[sf.ID],
			})
		}
		return nil
	})

	sortByID(totals, func(i int) int { return totals[i].ID }, nil)
	return totals, err
}
