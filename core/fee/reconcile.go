package fee

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/audit"
)

// Reconcile compares every StudentFee balance with the sum of its payments and the status
// derived from it. With `fix`, the stored balance and status are rewritten from the payments
// and one audit entry is recorded.
func (svc *Service) Reconcile(ctx context.Context, actor core.Actor, fix bool) ([]Discrepancy, error) {
	var found []Discrepancy

	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		totals, err := repo.QueryLedgerTotals(ctx)
		if err != nil {
			return errors.Wrap(err, "querying ledger totals")
		}

		for _, lt := range totals {
			expected := DeriveStatus(lt.PaymentsTotal, lt.FeeAmount)
			if lt.AmountPaid.Equal(lt.PaymentsTotal) && lt.PaymentStatus == expected {
				continue
			}
			found = append(found, Discrepancy{
				StudentFeeID:   lt.ID,
				AmountPaid:     lt.AmountPaid,
				PaymentsTotal:  lt.PaymentsTotal,
				Status:         lt.PaymentStatus,
				ExpectedStatus: expected,
			})
		}
		if !fix || len(found) == 0 {
			return nil
		}

		now := NowFunc().UTC()
		for _, d := range found {
			if err = repo.SetStudentFeeBalance(ctx, d.StudentFeeID, d.PaymentsTotal, d.ExpectedStatus, now); err != nil {
				return errors.Wrap(err, "repairing student fee")
			}
		}
		_, err = repo.CreateAuditEntry(ctx, audit.NewEntry(actor, audit.ActionLedgerReconciled,
			fmt.Sprintf("Reconciled %d student fee(s)", len(found))))
		return errors.Wrap(err, "writing audit entry")
	})
	if err != nil {
		return nil, core.StoreError("reconciling ledger", err)
	}
	return found, nil
}
