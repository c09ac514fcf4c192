package core

import "github.com/shopspring/decimal"

// LedgerMetrics records ledger activity.
type LedgerMetrics interface {
	PaymentRecorded(method string, amount decimal.Decimal)
	SupplyDistributed(supply string, quantity int)
	OperationRejected(op, reason string)
}

type nopMetrics struct{}

// NopMetrics discards everything.
var NopMetrics LedgerMetrics = nopMetrics{}

func (nopMetrics) PaymentRecorded(string, decimal.Decimal) {}
func (nopMetrics) SupplyDistributed(string, int)           {}
func (nopMetrics) OperationRejected(string, string)        {}
