package fee_test

import (
	"context"
	"io"
	"strconv"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/audit"
	"github.com/trezcool/awe-academy/core/fee"
	"github.com/trezcool/awe-academy/core/student"
	"github.com/trezcool/awe-academy/core/user"
	emailsvc "github.com/trezcool/awe-academy/services/email"
	"github.com/trezcool/awe-academy/storage/database/dummy"
	"github.com/trezcool/awe-academy/tests"
)

type testEnv struct {
	db          *dummydb.DB
	repo        fee.Repository
	studentRepo student.Repository
	auditRepo   audit.Repository
	mailSvc     *emailsvc.ConsoleServiceMock
	logger      *recordingLogger
	svc         *fee.Service
	actor       core.Actor
}

// recordingLogger keeps the messages logged at error level.
type recordingLogger struct {
	core.Logger
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

func setup(t *testing.T) *testEnv {
	conf := core.NewTestConfig()
	logger := testutil.NewLogger(conf)
	validate, _ := testutil.NewValidator()

	db := dummydb.Open()
	env := &testEnv{
		db:          db,
		repo:        dummydb.NewFeeRepository(db),
		studentRepo: dummydb.NewStudentRepository(db),
		auditRepo:   dummydb.NewAuditRepository(db),
		mailSvc:     emailsvc.NewConsoleServiceMock(conf, logger),
		logger:      &recordingLogger{Logger: logger},
	}
	env.svc = fee.NewService(env.repo, validate, env.mailSvc, nil, env.logger, conf)

	officer := testutil.CreateUser(t, dummydb.NewUserRepository(db), "Frank", "finance", "finance@awe.test", "", user.RoleFinanceOfficer, true)
	env.actor = officer.Actor()
	return env
}

// assessed creates a fee of `amount` assigned to one new active student.
func (env *testEnv) assessed(t *testing.T, amount string) fee.StudentFee {
	t.Helper()
	s := testutil.CreateStudent(t, env.studentRepo, "AWE-"+amount, "Amani", "Kabila", "amani@awe.test", student.StatusActive)
	f := testutil.CreateFee(t, env.repo, "Tuition", amount)
	sf, err := env.svc.AssignFee(context.Background(), env.actor, f.ID, s.ID)
	require.NoError(t, err, "AssignFee()")
	return sf
}

func payment(sfID int, amount string) fee.NewPayment {
	return fee.NewPayment{
		StudentFeeID:  sfID,
		Amount:        decimal.RequireFromString(amount),
		PaymentDate:   time.Date(2024, time.September, 1, 15, 30, 0, 0, time.UTC),
		PaymentMethod: fee.MethodCash,
	}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		paid, amount string
		want         fee.PaymentStatus
	}{
		{"0", "500", fee.StatusUnpaid},
		{"0.01", "500", fee.StatusPartial},
		{"499.99", "500", fee.StatusPartial},
		{"500", "500", fee.StatusPaid},
		{"600", "500", fee.StatusPaid},
		{"0", "0", fee.StatusUnpaid},
	}
	for _, tt := range tests {
		t.Run(tt.paid+"/"+tt.amount, func(t *testing.T) {
			got := fee.DeriveStatus(decimal.RequireFromString(tt.paid), decimal.RequireFromString(tt.amount))
			if got != tt.want {
				t.Errorf("failed! DeriveStatus() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestReceiptNumber(t *testing.T) {
	at := time.Date(2024, time.September, 1, 23, 30, 0, 0, time.FixedZone("WAT", 3600))
	assert.Equal(t, "RCT-20240901-000042", fee.ReceiptNumber("RCT", at, 42))
}

func TestService_ApplyPayment(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	sf := env.assessed(t, "500")

	steps := []struct {
		amount     string
		wantPaid   string
		wantStatus fee.PaymentStatus
	}{
		{"200", "200", fee.StatusPartial},
		{"300", "500", fee.StatusPaid},
	}
	for _, step := range steps {
		rp, err := env.svc.ApplyPayment(ctx, env.actor, payment(sf.ID, step.amount))
		require.NoError(t, err, "ApplyPayment(%s)", step.amount)
		if !rp.StudentFee.AmountPaid.Equal(decimal.RequireFromString(step.wantPaid)) {
			t.Errorf("failed! amount_paid = %v; want %v", rp.StudentFee.AmountPaid, step.wantPaid)
		}
		if rp.StudentFee.PaymentStatus != step.wantStatus {
			t.Errorf("failed! payment_status = %v; want %v", rp.StudentFee.PaymentStatus, step.wantStatus)
		}
		assert.Equal(t, env.actor.UserID, rp.Payment.CreatedBy)
		assert.Equal(t, time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC), rp.Payment.PaymentDate)
		assert.Equal(t, fee.ReceiptNumber("RCT", rp.Payment.CreatedAt, rp.Payment.ID), rp.Payment.ReceiptNumber)
	}

	t.Run("overpayment", func(t *testing.T) {
		_, err := env.svc.ApplyPayment(ctx, env.actor, payment(sf.ID, "1"))
		var over *core.OverpaymentError
		require.True(t, errors.As(err, &over), "want OverpaymentError, got %v", err)
		assert.True(t, over.Remaining.IsZero())
		assert.True(t, over.Amount.Equal(decimal.NewFromInt(1)))

		got, err := env.svc.GetStudentFee(ctx, sf.ID)
		require.NoError(t, err)
		assert.True(t, got.AmountPaid.Equal(decimal.NewFromInt(500)))
		assert.Equal(t, fee.StatusPaid, got.PaymentStatus)

		history, err := env.svc.PaymentHistory(ctx, sf.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.True(t, history[0].Amount.Equal(decimal.NewFromInt(300)), "latest first")
	})

	t.Run("validation", func(t *testing.T) {
		for _, np := range []fee.NewPayment{
			payment(sf.ID, "0"),
			payment(sf.ID, "-10"),
			{StudentFeeID: sf.ID, Amount: decimal.NewFromInt(1), PaymentDate: time.Now(), PaymentMethod: "barter"},
			{Amount: decimal.NewFromInt(1), PaymentDate: time.Now(), PaymentMethod: fee.MethodCheck},
		} {
			_, err := env.svc.ApplyPayment(ctx, env.actor, np)
			assert.True(t, core.IsValidation(err), "want validation error, got %v", err)
		}
	})

	t.Run("unknown student fee", func(t *testing.T) {
		_, err := env.svc.ApplyPayment(ctx, env.actor, payment(9999, "1"))
		assert.True(t, core.IsNotFound(err), "want not found, got %v", err)
	})

	t.Run("receipts emailed", func(t *testing.T) {
		sent := env.mailSvc.SentMessages()
		require.Len(t, sent, 2)
		assert.Equal(t, "amani@awe.test", sent[1].To[0].Address)
		require.Len(t, sent[1].Attachments, 1)
	})

	t.Run("audit", func(t *testing.T) {
		entries, err := env.auditRepo.QueryAuditEntries(ctx, audit.QueryFilter{Action: audit.ActionPaymentRecorded, Limit: 50})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "Recorded payment of $300.00 for student AWE-500", entries[0].Details)
		assert.Equal(t, "finance", entries[0].Username)
	})
}

func TestService_ApplyPayment_rollback(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	sf := env.assessed(t, "500")

	env.db.FailOn("CreateAuditEntry", errors.New("disk full"))
	_, err := env.svc.ApplyPayment(ctx, env.actor, payment(sf.ID, "200"))
	require.Error(t, err)
	assert.True(t, core.IsPersistence(err), "want persistence error, got %v", err)
	assert.NotContains(t, err.Error(), "disk full", "store details stay hidden")
	env.db.FailOn("CreateAuditEntry", nil)

	got, err := env.svc.GetStudentFee(ctx, sf.ID)
	require.NoError(t, err)
	assert.True(t, got.AmountPaid.IsZero())
	assert.Equal(t, fee.StatusUnpaid, got.PaymentStatus)

	history, err := env.svc.PaymentHistory(ctx, sf.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, env.mailSvc.SentMessages())
}

func TestService_ApplyPayment_concurrent(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	sf := env.assessed(t, "500")

	var (
		wg             sync.WaitGroup
		mu             sync.Mutex
		ok, overpaid   int
		unexpectedErrs []error
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.ApplyPayment(ctx, env.actor, payment(sf.ID, "50"))
			mu.Lock()
			defer mu.Unlock()
			var over *core.OverpaymentError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &over):
				overpaid++
			default:
				unexpectedErrs = append(unexpectedErrs, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, unexpectedErrs)
	assert.Equal(t, 10, ok)
	assert.Equal(t, 2, overpaid)

	got, err := env.svc.GetStudentFee(ctx, sf.ID)
	require.NoError(t, err)
	assert.True(t, got.AmountPaid.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, fee.StatusPaid, got.PaymentStatus)
}

func TestService_CreateFee(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	testutil.CreateStudent(t, env.studentRepo, "AWE-001", "Amani", "Kabila", "", student.StatusActive)
	testutil.CreateStudent(t, env.studentRepo, "AWE-002", "Baraka", "Moyo", "", student.StatusActive)
	testutil.CreateStudent(t, env.studentRepo, "AWE-003", "Chiku", "Ndege", "", student.StatusInactive)

	nf := fee.NewFee{
		Name:         "  Tuition  ",
		Amount:       decimal.RequireFromString("500.004"),
		AcademicYear: "2024-2025",
		DueDate:      time.Date(2024, time.September, 30, 17, 0, 0, 0, time.UTC),
		ApplyToAll:   true,
	}
	f, assigned, err := env.svc.CreateFee(ctx, env.actor, nf)
	require.NoError(t, err)
	assert.Equal(t, 2, assigned)
	assert.Equal(t, "Tuition", f.Name)
	assert.True(t, f.Amount.Equal(decimal.NewFromInt(500)), "amounts are kept to the cent")
	assert.Equal(t, time.Date(2024, time.September, 30, 0, 0, 0, 0, time.UTC), f.DueDate)

	sfs, err := env.svc.QueryStudentFees(ctx, fee.StudentFeeFilter{FeeID: f.ID})
	require.NoError(t, err)
	require.Len(t, sfs, 2)
	for _, sf := range sfs {
		assert.Equal(t, fee.StatusUnpaid, sf.PaymentStatus)
		assert.True(t, sf.AmountPaid.IsZero())
	}

	t.Run("without assignment", func(t *testing.T) {
		nf.Name = "Uniform"
		nf.ApplyToAll = false
		_, assigned, err := env.svc.CreateFee(ctx, env.actor, nf)
		require.NoError(t, err)
		assert.Zero(t, assigned)
	})

	t.Run("invalid", func(t *testing.T) {
		_, _, err := env.svc.CreateFee(ctx, env.actor, fee.NewFee{Name: "Trip", Amount: decimal.NewFromInt(-1)})
		assert.True(t, core.IsValidation(err))
	})
}

func TestService_AssignFee(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	sf := env.assessed(t, "500")

	_, err := env.svc.AssignFee(ctx, env.actor, sf.FeeID, sf.StudentID)
	assert.True(t, core.IsValidation(err), "want validation error, got %v", err)

	_, err = env.svc.AssignFee(ctx, env.actor, 9999, sf.StudentID)
	assert.True(t, core.IsNotFound(err))
	_, err = env.svc.AssignFee(ctx, env.actor, sf.FeeID, 9999)
	assert.True(t, core.IsNotFound(err))
}

func TestService_UpdateFee(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	sf := env.assessed(t, "500")
	_, err := env.svc.ApplyPayment(ctx, env.actor, payment(sf.ID, "300"))
	require.NoError(t, err)

	uf := fee.UpdateFee{
		Name:         "Tuition",
		Amount:       decimal.NewFromInt(250),
		AcademicYear: "2024-2025",
		DueDate:      time.Date(2024, time.October, 15, 0, 0, 0, 0, time.UTC),
	}
	_, err = env.svc.UpdateFee(ctx, env.actor, sf.FeeID, uf)
	assert.True(t, core.IsValidation(err), "amount cannot go below what was paid")

	uf.Amount = decimal.NewFromInt(300)
	f, err := env.svc.UpdateFee(ctx, env.actor, sf.FeeID, uf)
	require.NoError(t, err)
	assert.True(t, f.Amount.Equal(decimal.NewFromInt(300)))
	got, err := env.svc.GetStudentFee(ctx, sf.ID)
	require.NoError(t, err)
	assert.Equal(t, fee.StatusPaid, got.PaymentStatus)

	uf.Amount = decimal.NewFromInt(800)
	_, err = env.svc.UpdateFee(ctx, env.actor, sf.FeeID, uf)
	require.NoError(t, err)
	got, err = env.svc.GetStudentFee(ctx, sf.ID)
	require.NoError(t, err)
	assert.Equal(t, fee.StatusPartial, got.PaymentStatus)

	_, err = env.svc.UpdateFee(ctx, env.actor, 9999, uf)
	assert.True(t, core.IsNotFound(err))
}

// assessAll creates a 500 fee applied to `n` new active students and returns their assessments.
func (env *testEnv) assessAll(t *testing.T, n int) (fee.Fee, []fee.StudentFee) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		testutil.CreateStudent(t, env.studentRepo, "AWE-00"+strconv.Itoa(i), "Pupil", strconv.Itoa(i), "", student.StatusActive)
	}
	f, assigned, err := env.svc.CreateFee(ctx, env.actor, fee.NewFee{
		Name:         "Tuition",
		Amount:       decimal.NewFromInt(500),
		AcademicYear: "2024-2025",
		DueDate:      time.Date(2024, time.September, 30, 0, 0, 0, 0, time.UTC),
		ApplyToAll:   true,
	})
	require.NoError(t, err, "CreateFee()")
	require.Equal(t, n, assigned)
	sfs, err := env.svc.QueryStudentFees(ctx, fee.StudentFeeFilter{FeeID: f.ID})
	require.NoError(t, err, "QueryStudentFees()")
	require.Len(t, sfs, n)
	return f, sfs
}

// ledgerCounts returns the assessments of fee `feeID` and the number of payments against them.
func (env *testEnv) ledgerCounts(t *testing.T, feeID int, sfs []fee.StudentFee) (int, int) {
	t.Helper()
	ctx := context.Background()
	remaining, err := env.svc.QueryStudentFees(ctx, fee.StudentFeeFilter{FeeID: feeID})
	require.NoError(t, err)
	var payments int
	for _, sf := range sfs {
		history, err := env.repo.QueryPayments(ctx, sf.ID)
		require.NoError(t, err)
		payments += len(history)
	}
	return len(remaining), payments
}

func (env *testEnv) auditCount(t *testing.T, action string) int {
	t.Helper()
	entries, err := env.auditRepo.QueryAuditEntries(context.Background(), audit.QueryFilter{Action: action, Limit: 50})
	require.NoError(t, err)
	return len(entries)
}

func TestService_DeleteFee(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	f, sfs := env.assessAll(t, 3)
	for i, amt := range []string{"100", "150", "200", "50", "350"} {
		_, err := env.svc.ApplyPayment(ctx, env.actor, payment(sfs[i%3].ID, amt))
		require.NoError(t, err, "ApplyPayment(%s)", amt)
	}
	assessed, payments := env.ledgerCounts(t, f.ID, sfs)
	require.Equal(t, 3, assessed)
	require.Equal(t, 5, payments)

	require.NoError(t, env.svc.DeleteFee(ctx, env.actor, f.ID))

	_, err := env.svc.GetFee(ctx, f.ID)
	assert.True(t, core.IsNotFound(err))
	for _, sf := range sfs {
		_, err = env.svc.GetStudentFee(ctx, sf.ID)
		assert.True(t, core.IsNotFound(err), "student fee %d", sf.ID)
	}
	assessed, payments = env.ledgerCounts(t, f.ID, sfs)
	assert.Zero(t, assessed)
	assert.Zero(t, payments)
	if got := env.auditCount(t, audit.ActionFeeDeleted); got != 1 {
		t.Errorf("failed! fee_deleted entries = %v; want %v", got, 1)
	}

	assert.True(t, core.IsNotFound(env.svc.DeleteFee(ctx, env.actor, f.ID)))
	assert.Equal(t, 1, env.auditCount(t, audit.ActionFeeDeleted))
}

func TestService_DeleteFee_rollback(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	f, sfs := env.assessAll(t, 3)
	for i, amt := range []string{"100", "150", "200", "50", "350"} {
		_, err := env.svc.ApplyPayment(ctx, env.actor, payment(sfs[i%3].ID, amt))
		require.NoError(t, err, "ApplyPayment(%s)", amt)
	}

	env.db.FailOn("DeleteFee", errors.New("connection reset"))
	err := env.svc.DeleteFee(ctx, env.actor, f.ID)
	assert.True(t, core.IsPersistence(err), "want persistence error, got %v", err)
	env.db.FailOn("DeleteFee", nil)

	_, err = env.svc.GetFee(ctx, f.ID)
	assert.NoError(t, err)
	assessed, payments := env.ledgerCounts(t, f.ID, sfs)
	assert.Equal(t, 3, assessed, "student fees are restored")
	assert.Equal(t, 5, payments, "payments are restored")
	assert.Zero(t, env.auditCount(t, audit.ActionFeeDeleted))
}

func TestService_CreateFee_rollback(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	testutil.CreateStudent(t, env.studentRepo, "AWE-001", "Amani", "Kabila", "", student.StatusActive)

	env.db.FailOn("AssignFeeToActiveStudents", errors.New("deadlock detected"))
	_, _, err := env.svc.CreateFee(ctx, env.actor, fee.NewFee{
		Name:         "Tuition",
		Amount:       decimal.NewFromInt(500),
		AcademicYear: "2024-2025",
		DueDate:      time.Date(2024, time.September, 30, 0, 0, 0, 0, time.UTC),
		ApplyToAll:   true,
	})
	assert.True(t, core.IsPersistence(err), "want persistence error, got %v", err)
	env.db.FailOn("AssignFeeToActiveStudents", nil)

	fees, err := env.svc.QueryFees(ctx, fee.QueryFilter{}, nil)
	require.NoError(t, err)
	assert.Empty(t, fees, "no fee without its assessments")
	sfs, err := env.svc.QueryStudentFees(ctx, fee.StudentFeeFilter{})
	require.NoError(t, err)
	assert.Empty(t, sfs)
	assert.Zero(t, env.auditCount(t, audit.ActionFeeCreated))
}

func TestService_ApplyPayment_receiptNotAttached(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	sf := env.assessed(t, "500")

	restore := fee.SetReceiptAttachment(func(fee.Receipt) io.Reader {
		return iotest.ErrReader(errors.New("read failed"))
	})
	defer restore()

	rp, err := env.svc.ApplyPayment(ctx, env.actor, payment(sf.ID, "200"))
	require.NoError(t, err, "the payment stands without its receipt email")
	assert.Equal(t, fee.StatusPartial, rp.StudentFee.PaymentStatus)
	assert.Empty(t, env.mailSvc.SentMessages())

	logged := env.logger.Errors()
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], rp.Payment.ReceiptNumber)
	assert.Contains(t, logged[0], "read failed")
}

func TestService_Reconcile(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	sf := env.assessed(t, "500")
	_, err := env.svc.ApplyPayment(ctx, env.actor, payment(sf.ID, "200"))
	require.NoError(t, err)

	found, err := env.svc.Reconcile(ctx, env.actor, false)
	require.NoError(t, err)
	assert.Empty(t, found)

	// drift the stored balance away from the payment rows
	require.NoError(t, env.repo.SetStudentFeeBalance(ctx, sf.ID, decimal.NewFromInt(500), fee.StatusPaid, time.Now()))

	found, err = env.svc.Reconcile(ctx, env.actor, false)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, fee.Discrepancy{
		StudentFeeID:   sf.ID,
		AmountPaid:     found[0].AmountPaid,
		PaymentsTotal:  found[0].PaymentsTotal,
		Status:         fee.StatusPaid,
		ExpectedStatus: fee.StatusPartial,
	}, found[0])
	assert.True(t, found[0].PaymentsTotal.Equal(decimal.NewFromInt(200)))

	_, err = env.svc.Reconcile(ctx, env.actor, true)
	require.NoError(t, err)
	got, err := env.svc.GetStudentFee(ctx, sf.ID)
	require.NoError(t, err)
	assert.True(t, got.AmountPaid.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, fee.StatusPartial, got.PaymentStatus)

	entries, err := env.auditRepo.QueryAuditEntries(ctx, audit.QueryFilter{Action: audit.ActionLedgerReconciled, Limit: 50})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReceipt_Text(t *testing.T) {
	rct := fee.Receipt{
		Payment: fee.Payment{
			Amount:        decimal.NewFromInt(200),
			PaymentDate:   time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC),
			PaymentMethod: fee.MethodBankTransfer,
			ReceiptNumber: "RCT-20240901-000001",
		},
		StudentNumber: "AWE-001",
		StudentName:   "Amani Kabila",
		FeeName:       "Tuition",
		FeeAmount:     decimal.NewFromInt(500),
		AmountPaid:    decimal.NewFromInt(200),
		Balance:       decimal.NewFromInt(300),
	}
	want := "RECEIPT RCT-20240901-000001\n\n" +
		"Student:        Amani Kabila (AWE-001)\n" +
		"Fee:            Tuition\n" +
		"Payment date:   2024-09-01\n" +
		"Payment method: bank_transfer\n" +
		"Amount:         200.00\n" +
		"Total paid:     200.00 of 500.00\n" +
		"Balance:        300.00\n"
	assert.Equal(t, want, rct.Text())
}
