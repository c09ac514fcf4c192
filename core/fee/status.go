package fee

import "github.com/shopspring/decimal"

type PaymentStatus string

const (
	StatusUnpaid  PaymentStatus = "unpaid"
	StatusPartial PaymentStatus = "partial"
	StatusPaid    PaymentStatus = "paid"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case StatusUnpaid, StatusPartial, StatusPaid:
		return true
	}
	return false
}

// DeriveStatus is the only place a StudentFee status is computed.
// Every write path that touches amount_paid or a fee amount goes through it.
func DeriveStatus(amountPaid, feeAmount decimal.Decimal) PaymentStatus {
	switch {
	case amountPaid.Sign() <= 0:
		return StatusUnpaid
	case amountPaid.LessThan(feeAmount):
		return StatusPartial
	default:
		return StatusPaid
	}
}
