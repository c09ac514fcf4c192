package fee

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/awe-academy/core"
)

// Payment methods
const (
	MethodCash         = "cash"
	MethodCheck        = "check"
	MethodBankTransfer = "bank_transfer"
)

type Fee struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	AcademicYear string          `json:"academic_year"`
	DueDate      time.Time       `json:"due_date"`
	CreatedAt    time.Time       `json:"created_at"` // UTC
	UpdatedAt    time.Time       `json:"updated_at"` // UTC
}

// FeeSummary is a Fee with the totals of its assessments.
type FeeSummary struct {
	Fee
	Assessed  int             `json:"assessed"`
	Paid      int             `json:"paid"`
	Collected decimal.Decimal `json:"collected"`
}

// StudentFee is the per-student instance of a Fee.
type StudentFee struct {
	ID            int             `json:"id"`
	StudentID     int             `json:"student_id"`
	FeeID         int             `json:"fee_id"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	CreatedAt     time.Time       `json:"created_at"` // UTC
	UpdatedAt     time.Time       `json:"updated_at"` // UTC

	// read only, joined from fees & students
	FeeName       string          `json:"fee_name"`
	FeeAmount     decimal.Decimal `json:"fee_amount"`
	DueDate       time.Time       `json:"due_date"`
	StudentNumber string          `json:"student_number"`
	StudentName   string          `json:"student_name"`
	StudentEmail  string          `json:"-"`
}

// Remaining is what is left to pay on the assessment.
func (sf StudentFee) Remaining() decimal.Decimal {
	r := sf.FeeAmount.Sub(sf.AmountPaid)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Payment is an immutable record of one payment event.
type Payment struct {
	ID            int             `json:"id"`
	StudentFeeID  int             `json:"student_fee_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   time.Time       `json:"payment_date"`
	PaymentMethod string          `json:"payment_method"`
	ReceiptNumber string          `json:"receipt_number"`
	Notes         string          `json:"notes"`
	CreatedBy     int             `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"` // UTC

	// read only, joined from users
	RecordedBy string `json:"recorded_by,omitempty"`
}

// RecordedPayment is the outcome of a successful payment application.
type RecordedPayment struct {
	Payment    Payment    `json:"payment"`
	StudentFee StudentFee `json:"student_fee"`
}

// Receipt is a payment with everything needed to print it.
type Receipt struct {
	Payment
	StudentNumber string          `json:"student_number"`
	StudentName   string          `json:"student_name"`
	ClassYear     string          `json:"class_year"`
	FeeName       string          `json:"fee_name"`
	AcademicYear  string          `json:"academic_year"`
	FeeAmount     decimal.Decimal `json:"fee_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Balance       decimal.Decimal `json:"balance"`
}

// LedgerTotal pairs a StudentFee with the sum of its payment rows.
type LedgerTotal struct {
	StudentFee
	PaymentsTotal decimal.Decimal
}

// Discrepancy is a StudentFee whose stored balance disagrees with its payments.
type Discrepancy struct {
	StudentFeeID   int             `json:"student_fee_id"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	PaymentsTotal  decimal.Decimal `json:"payments_total"`
	Status         PaymentStatus   `json:"status"`
	ExpectedStatus PaymentStatus   `json:"expected_status"`
}

// NewFee contains information needed to create a Fee.
type NewFee struct {
	Name         string          `json:"name" validate:"required,notblank,max=150"`
	Amount       decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Description  string          `json:"description" validate:"max=2000"`
	AcademicYear string          `json:"academic_year" validate:"required,notblank,max=20"`
	DueDate      time.Time       `json:"due_date" validate:"required"`
	ApplyToAll   bool            `json:"apply_to_all"`
}

func (nf *NewFee) Validate(validate *validator.Validate) error {
	nf.Name = core.CleanString(nf.Name)
	nf.Description = core.CleanString(nf.Description)
	nf.AcademicYear = core.CleanString(nf.AcademicYear)
	nf.Amount = nf.Amount.Round(2)
	return validate.Struct(nf)
}

// UpdateFee replaces the attributes of a Fee.
type UpdateFee struct {
	Name         string          `json:"name" validate:"required,notblank,max=150"`
	Amount       decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Description  string          `json:"description" validate:"max=2000"`
	AcademicYear string          `json:"academic_year" validate:"required,notblank,max=20"`
	DueDate      time.Time       `json:"due_date" validate:"required"`
}

func (uf *UpdateFee) Validate(validate *validator.Validate) error {
	uf.Name = core.CleanString(uf.Name)
	uf.Description = core.CleanString(uf.Description)
	uf.AcademicYear = core.CleanString(uf.AcademicYear)
	uf.Amount = uf.Amount.Round(2)
	return validate.Struct(uf)
}

// NewPayment contains information needed to apply a payment to a StudentFee.
type NewPayment struct {
	StudentFeeID  int             `json:"student_fee_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"required,gt=0"`
	PaymentDate   time.Time       `json:"payment_date" validate:"required"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=cash check bank_transfer"`
	Notes         string          `json:"notes" validate:"max=1000"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.PaymentMethod = core.CleanString(np.PaymentMethod, true /* lower */)
	np.Notes = core.CleanString(np.Notes)
	np.Amount = np.Amount.Round(2)
	return validate.Struct(np)
}

type QueryFilter struct {
	Search       string    `query:"search"`
	AcademicYear string    `query:"academic_year"`
	DueFrom      time.Time `query:"-"` // bound from "due_from"
	DueTo        time.Time `query:"-"` // bound from "due_to"
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.AcademicYear = core.CleanString(qf.AcademicYear)
}

type StudentFeeFilter struct {
	FeeID     int           `query:"fee_id"`
	StudentID int           `query:"student_id"`
	Status    PaymentStatus `query:"status"`
}
