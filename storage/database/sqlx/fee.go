package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/fee"
	"github.com/trezcool/awe-academy/core/student"
)

var feeColumns = []string{
	"f.id", "f.name", "f.amount", "f.description", "f.academic_year", "f.due_date", "f.created_at", "f.updated_at",
}

var feeOrdering = map[string]string{
	"id":            "f.id",
	"name":          "f.name",
	"amount":        "f.amount",
	"academic_year": "f.academic_year",
	"due_date":      "f.due_date",
	"created_at":    "f.created_at",
}

type (
	feeRow struct {
		ID           int             `db:"id"`
		Name         string          `db:"name"`
		Amount       decimal.Decimal `db:"amount"`
		Description  null.String     `db:"description"`
		AcademicYear string          `db:"academic_year"`
		DueDate      time.Time       `db:"due_date"`
		CreatedAt    time.Time       `db:"created_at"`
		UpdatedAt    time.Time       `db:"updated_at"`
	}

	feeSummaryRow struct {
		feeRow
		Assessed  int             `db:"assessed"`
		Paid      int             `db:"paid"`
		Collected decimal.Decimal `db:"collected"`
	}

	studentFeeRow struct {
		ID            int             `db:"id"`
		StudentID     int             `db:"student_id"`
		FeeID         int             `db:"fee_id"`
		AmountPaid    decimal.Decimal `db:"amount_paid"`
		PaymentStatus string          `db:"payment_status"`
		CreatedAt     time.Time       `db:"created_at"`
		UpdatedAt     time.Time       `db:"updated_at"`
		FeeName       string          `db:"fee_name"`
		FeeAmount     decimal.Decimal `db:"fee_amount"`
		DueDate       time.Time       `db:"due_date"`
		StudentNumber string          `db:"student_number"`
		StudentName   string          `db:"student_name"`
		StudentEmail  null.String     `db:"student_email"`
	}

	ledgerTotalRow struct {
		studentFeeRow
		PaymentsTotal decimal.Decimal `db:"payments_total"`
	}

	paymentRow struct {
		ID            int             `db:"id"`
		StudentFeeID  int             `db:"student_fee_id"`
		Amount        decimal.Decimal `db:"amount"`
		PaymentDate   time.Time       `db:"payment_date"`
		PaymentMethod string          `db:"payment_method"`
		ReceiptNumber string          `db:"receipt_number"`
		Notes         null.String     `db:"notes"`
		CreatedBy     int             `db:"created_by"`
		CreatedAt     time.Time       `db:"created_at"`
		RecordedBy    null.String     `db:"recorded_by"`
	}

	receiptRow struct {
		paymentRow
		StudentNumber string          `db:"student_number"`
		StudentName   string          `db:"student_name"`
		ClassYear     string          `db:"class_year"`
		FeeName       string          `db:"fee_name"`
		AcademicYear  string          `db:"academic_year"`
		FeeAmount     decimal.Decimal `db:"fee_amount"`
		AmountPaid    decimal.Decimal `db:"amount_paid"`
	}
)

func (r feeRow) fee() fee.Fee {
	return fee.Fee{
		ID:           r.ID,
		Name:         r.Name,
		Amount:       r.Amount,
		Description:  r.Description.String,
		AcademicYear: r.AcademicYear,
		DueDate:      r.DueDate,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (r studentFeeRow) studentFee() fee.StudentFee {
	return fee.StudentFee{
		ID:            r.ID,
		StudentID:     r.StudentID,
		FeeID:         r.FeeID,
		AmountPaid:    r.AmountPaid,
		PaymentStatus: fee.PaymentStatus(r.PaymentStatus),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		FeeName:       r.FeeName,
		FeeAmount:     r.FeeAmount,
		DueDate:       r.DueDate,
		StudentNumber: r.StudentNumber,
		StudentName:   r.StudentName,
		StudentEmail:  r.StudentEmail.String,
	}
}

func (r paymentRow) payment() fee.Payment {
	return fee.Payment{
		ID:            r.ID,
		StudentFeeID:  r.StudentFeeID,
		Amount:        r.Amount,
		PaymentDate:   r.PaymentDate,
		PaymentMethod: r.PaymentMethod,
		ReceiptNumber: r.ReceiptNumber,
		Notes:         r.Notes.String,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
		RecordedBy:    r.RecordedBy.String,
	}
}

func selectStudentFees() sq.SelectBuilder {
	return psql.Select(
		"sf.id", "sf.student_id", "sf.fee_id", "sf.amount_paid", "sf.payment_status", "sf.created_at", "sf.updated_at",
		"f.name AS fee_name", "f.amount AS fee_amount", "f.due_date",
		"s.student_number", "s.first_name || ' ' || s.last_name AS student_name", "s.email AS student_email",
	).
		From("student_fees sf").
		Join("fees f ON f.id = sf.fee_id").
		Join("students s ON s.id = sf.student_id")
}

type feeRepository struct {
	store
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *sqlx.DB) fee.Repository {
	return &feeRepository{newStore(db)}
}

func (repo *feeRepository) Atomic(ctx context.Context, fn func(repo fee.Repository) error) error {
	return repo.atomic(ctx, func(tx store) error {
		return fn(&feeRepository{tx})
	})
}

func (repo *feeRepository) CreateFee(ctx context.Context, f fee.Fee) (fee.Fee, error) {
	b := psql.Insert("fees").
		Columns("name", "amount", "description", "academic_year", "due_date", "created_at", "updated_at").
		Values(f.Name, f.Amount, null.NewString(f.Description, f.Description != ""), f.AcademicYear,
			f.DueDate, f.CreatedAt.UTC(), f.UpdatedAt.UTC()).
		Suffix("RETURNING id")
	if err := repo.get(ctx, &f.ID, b); err != nil {
		return fee.Fee{}, errors.Wrap(err, "inserting fee")
	}
	return f, nil
}

func (repo *feeRepository) getFee(ctx context.Context, id int, suffix string) (fee.Fee, error) {
	b := psql.Select(feeColumns...).From("fees f").Where(sq.Eq{"f.id": id})
	if suffix != "" {
		b = b.Suffix(suffix)
	}
	var row feeRow
	if err := repo.get(ctx, &row, b); err != nil {
		return fee.Fee{}, trapNoRowsErr(err, fee.ErrNotFound, "finding fee")
	}
	return row.fee(), nil
}

func (repo *feeRepository) GetFee(ctx context.Context, id int) (fee.Fee, error) {
	return repo.getFee(ctx, id, "")
}

func (repo *feeRepository) GetFeeForUpdate(ctx context.Context, id int) (fee.Fee, error) {
	return repo.getFee(ctx, id, "FOR UPDATE")
}

func (repo *feeRepository) QueryFees(ctx context.Context, filter fee.QueryFilter, ordering []core.DBOrdering) ([]fee.FeeSummary, error) {
	b := psql.Select(feeColumns...).
		Columns(
			"COUNT(sf.id) AS assessed",
			"COUNT(sf.id) FILTER (WHERE sf.payment_status = 'paid') AS paid",
			"COALESCE(SUM(sf.amount_paid), 0) AS collected",
		).
		From("fees f").
		LeftJoin("student_fees sf ON sf.fee_id = f.id").
		GroupBy("f.id")

	if filter.Search != "" {
		b = b.Where(sq.ILike{"f.name": "%" + filter.Search + "%"})
	}
	if filter.AcademicYear != "" {
		b = b.Where(sq.Eq{"f.academic_year": filter.AcademicYear})
	}
	if !filter.DueFrom.IsZero() {
		b = b.Where(sq.GtOrEq{"f.due_date": core.TruncateDay(filter.DueFrom)})
	}
	if !filter.DueTo.IsZero() {
		b = b.Where(sq.LtOrEq{"f.due_date": core.TruncateDay(filter.DueTo)})
	}
	b = orderBy(b, ordering, feeOrdering, "f.id")

	var rows []feeSummaryRow
	if err := repo.selekt(ctx, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying fees")
	}
	fees := make([]fee.FeeSummary, 0, len(rows))
	for _, r := range rows {
		fees = append(fees, fee.FeeSummary{Fee: r.fee(), Assessed: r.Assessed, Paid: r.Paid, Collected: r.Collected})
	}
	return fees, nil
}

func (repo *feeRepository) UpdateFee(ctx context.Context, f fee.Fee) (fee.Fee, error) {
	b := psql.Update("fees").
		Set("name", f.Name).
		Set("amount", f.Amount).
		Set("description", null.NewString(f.Description, f.Description != "")).
		Set("academic_year", f.AcademicYear).
		Set("due_date", f.DueDate).
		Set("updated_at", f.UpdatedAt.UTC()).
		Where(sq.Eq{"id": f.ID})
	n, err := repo.execute(ctx, b)
	if err != nil {
		return fee.Fee{}, errors.Wrap(err, "updating fee")
	}
	if n == 0 {
		return fee.Fee{}, fee.ErrNotFound
	}
	return f, nil
}

func (repo *feeRepository) DeleteFee(ctx context.Context, id int) error {
	n, err := repo.execute(ctx, psql.Delete("fees").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting fee")
	}
	if n == 0 {
		return fee.ErrNotFound
	}
	return nil
}

func (repo *feeRepository) GetStudent(ctx context.Context, id int) (student.Student, error) {
	return repo.getStudent(ctx, id)
}

func (repo *feeRepository) AssignFeeToActiveStudents(ctx context.Context, feeID int, at time.Time) (int, error) {
	n, err := repo.executeRaw(ctx, `
		INSERT INTO student_fees (student_id, fee_id, amount_paid, payment_status, created_at, updated_at)
		SELECT id, $1, 0, $2, $3, $3 FROM students WHERE status = $4
		ON CONFLICT ON CONSTRAINT student_fees_student_fee_key DO NOTHING`,
		feeID, fee.StatusUnpaid, at.UTC(), student.StatusActive)
	if err != nil {
		return 0, errors.Wrap(err, "inserting student fees")
	}
	return n, nil
}

func (repo *feeRepository) StudentFeeExists(ctx context.Context, studentID, feeID int) (bool, error) {
	var exists bool
	b := psql.Select().Column(sq.Expr(
		"EXISTS(SELECT 1 FROM student_fees WHERE student_id = ? AND fee_id = ?)", studentID, feeID))
	if err := repo.get(ctx, &exists, b); err != nil {
		return false, errors.Wrap(err, "checking student fee")
	}
	return exists, nil
}

func (repo *feeRepository) CreateStudentFee(ctx context.Context, sf fee.StudentFee) (fee.StudentFee, error) {
	b := psql.Insert("student_fees").
		Columns("student_id", "fee_id", "amount_paid", "payment_status", "created_at", "updated_at").
		Values(sf.StudentID, sf.FeeID, sf.AmountPaid, sf.PaymentStatus, sf.CreatedAt.UTC(), sf.UpdatedAt.UTC()).
		Suffix("RETURNING id")
	if err := repo.get(ctx, &sf.ID, b); err != nil {
		if isUniqueViolation(err, "student_fees_student_fee_key") {
			return fee.StudentFee{}, core.NewValidationError(fee.ErrAlreadyAssigned,
				core.FieldError{Field: "student_id", Error: fee.ErrAlreadyAssigned.Error()})
		}
		return fee.StudentFee{}, errors.Wrap(err, "inserting student fee")
	}
	return sf, nil
}

func (repo *feeRepository) getStudentFee(ctx context.Context, id int, suffix string) (fee.StudentFee, error) {
	b := selectStudentFees().Where(sq.Eq{"sf.id": id})
	if suffix != "" {
		b = b.Suffix(suffix)
	}
	var row studentFeeRow
	if err := repo.get(ctx, &row, b); err != nil {
		return fee.StudentFee{}, trapNoRowsErr(err, fee.ErrStudentFeeNotFound, "finding student fee")
	}
	return row.studentFee(), nil
}

func (repo *feeRepository) GetStudentFee(ctx context.Context, id int) (fee.StudentFee, error) {
	return repo.getStudentFee(ctx, id, "")
}

func (repo *feeRepository) GetStudentFeeForUpdate(ctx context.Context, id int) (fee.StudentFee, error) {
	return repo.getStudentFee(ctx, id, "FOR UPDATE OF sf FOR SHARE OF f")
}

func (repo *feeRepository) QueryStudentFees(ctx context.Context, filter fee.StudentFeeFilter) ([]fee.StudentFee, error) {
	b := selectStudentFees().OrderBy("sf.id")
	if filter.FeeID != 0 {
		b = b.Where(sq.Eq{"sf.fee_id": filter.FeeID})
	}
	if filter.StudentID != 0 {
		b = b.Where(sq.Eq{"sf.student_id": filter.StudentID})
	}
	if filter.Status != "" {
		b = b.Where(sq.Eq{"sf.payment_status": filter.Status})
	}

	var rows []studentFeeRow
	if err := repo.selekt(ctx, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying student fees")
	}
	sfs := make([]fee.StudentFee, 0, len(rows))
	for _, r := range rows {
		sfs = append(sfs, r.studentFee())
	}
	return sfs, nil
}

func (repo *feeRepository) SetStudentFeeBalance(ctx context.Context, id int, amountPaid decimal.Decimal, status fee.PaymentStatus, at time.Time) error {
	b := psql.Update("student_fees").
		Set("amount_paid", amountPaid).
		Set("payment_status", status).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": id})
	n, err := repo.execute(ctx, b)
	if err != nil {
		return errors.Wrap(err, "updating student fee")
	}
	if n == 0 {
		return fee.ErrStudentFeeNotFound
	}
	return nil
}

func (repo *feeRepository) MaxAmountPaid(ctx context.Context, feeID int) (decimal.Decimal, error) {
	var max decimal.Decimal
	b := psql.Select("COALESCE(MAX(amount_paid), 0)").From("student_fees").Where(sq.Eq{"fee_id": feeID})
	if err := repo.get(ctx, &max, b); err != nil {
		return decimal.Zero, errors.Wrap(err, "finding max amount paid")
	}
	return max, nil
}

func (repo *feeRepository) DeleteStudentFeesByFee(ctx context.Context, feeID int) (int, error) {
	n, err := repo.execute(ctx, psql.Delete("student_fees").Where(sq.Eq{"fee_id": feeID}))
	return n, errors.Wrap(err, "deleting student fees")
}

func (repo *feeRepository) NextPaymentID(ctx context.Context) (int, error) {
	var id int
	if err := repo.get(ctx, &id, psql.Select("nextval(pg_get_serial_sequence('payments', 'id'))")); err != nil {
		return 0, errors.Wrap(err, "reserving payment id")
	}
	return id, nil
}

func (repo *feeRepository) CreatePayment(ctx context.Context, p fee.Payment) (fee.Payment, error) {
	b := psql.Insert("payments").
		Columns("id", "student_fee_id", "amount", "payment_date", "payment_method", "receipt_number", "notes",
			"created_by", "created_at").
		Values(p.ID, p.StudentFeeID, p.Amount, p.PaymentDate, p.PaymentMethod, p.ReceiptNumber,
			null.NewString(p.Notes, p.Notes != ""), p.CreatedBy, p.CreatedAt.UTC())
	if _, err := repo.execute(ctx, b); err != nil {
		return fee.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (repo *feeRepository) QueryPayments(ctx context.Context, studentFeeID int) ([]fee.Payment, error) {
	b := psql.Select(
		"p.id", "p.student_fee_id", "p.amount", "p.payment_date", "p.payment_method", "p.receipt_number",
		"p.notes", "p.created_by", "p.created_at", "u.name AS recorded_by",
	).
		From("payments p").
		LeftJoin("users u ON u.id = p.created_by").
		Where(sq.Eq{"p.student_fee_id": studentFeeID}).
		OrderBy("p.payment_date DESC", "p.created_at DESC", "p.id DESC")

	var rows []paymentRow
	if err := repo.selekt(ctx, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	payments := make([]fee.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.payment())
	}
	return payments, nil
}

func (repo *feeRepository) GetReceipt(ctx context.Context, paymentID int) (fee.Receipt, error) {
	b := psql.Select(
		"p.id", "p.student_fee_id", "p.amount", "p.payment_date", "p.payment_method", "p.receipt_number",
		"p.notes", "p.created_by", "p.created_at", "u.name AS recorded_by",
		"s.student_number", "s.first_name || ' ' || s.last_name AS student_name", "s.class_year",
		"f.name AS fee_name", "f.academic_year", "f.amount AS fee_amount", "sf.amount_paid",
	).
		From("payments p").
		Join("student_fees sf ON sf.id = p.student_fee_id").
		Join("fees f ON f.id = sf.fee_id").
		Join("students s ON s.id = sf.student_id").
		LeftJoin("users u ON u.id = p.created_by").
		Where(sq.Eq{"p.id": paymentID})

	var row receiptRow
	if err := repo.get(ctx, &row, b); err != nil {
		return fee.Receipt{}, trapNoRowsErr(err, fee.ErrPaymentNotFound, "finding receipt")
	}
	rct := fee.Receipt{
		Payment:       row.payment(),
		StudentNumber: row.StudentNumber,
		StudentName:   row.StudentName,
		ClassYear:     row.ClassYear,
		FeeName:       row.FeeName,
		AcademicYear:  row.AcademicYear,
		FeeAmount:     row.FeeAmount,
		AmountPaid:    row.AmountPaid,
	}
	rct.Balance = fee.StudentFee{FeeAmount: rct.FeeAmount, AmountPaid: rct.AmountPaid}.Remaining()
	return rct, nil
}

func (repo *feeRepository) DeletePaymentsByFee(ctx context.Context, feeID int) (int, error) {
	b := psql.Delete("payments").Where("student_fee_id IN (SELECT id FROM student_fees WHERE fee_id = ?)", feeID)
	n, err := repo.execute(ctx, b)
	return n, errors.Wrap(err, "deleting payments")
}

func (repo *feeRepository) QueryLedgerTotals(ctx context.Context) ([]fee.LedgerTotal, error) {
	b := selectStudentFees().
		Column("COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.student_fee_id = sf.id), 0) AS payments_total").
		OrderBy("sf.id").
		Suffix("FOR UPDATE OF sf")

	var rows []ledgerTotalRow
	if err := repo.selekt(ctx, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying ledger totals")
	}
	totals := make([]fee.LedgerTotal, 0, len(rows))
	for _, r := range rows {
		totals = append(totals, fee.LedgerTotal{StudentFee: r.studentFee(), PaymentsTotal: r.PaymentsTotal})
	}
	return totals, nil
}
