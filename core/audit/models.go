package audit

import (
	"context"
	"time"

	"github.com/trezcool/awe-academy/core"
)

// Actions
const (
	ActionFeeCreated        = "fee_created"
	ActionFeeUpdated        = "fee_updated"
	ActionFeeDeleted        = "fee_deleted"
	ActionFeeAssigned       = "fee_assigned"
	ActionPaymentRecorded   = "payment_recorded"
	ActionLedgerReconciled  = "ledger_reconciled"
	ActionSupplyCreated     = "supply_created"
	ActionSupplyUpdated     = "supply_updated"
	ActionSupplyDistributed = "supply_distributed"
	ActionSupplyDeleted     = "supply_deleted"
	ActionStudentCreated    = "student_created"
	ActionStudentUpdated    = "student_updated"
	ActionStudentDeleted    = "student_deleted"
)

// Entry is one append-only audit log row.
type Entry struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	Username  string    `json:"username,omitempty" db:"username"`
	Action    string    `json:"action" db:"action"`
	Details   string    `json:"details" db:"details"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

// NewEntry returns the entry describing what `actor` just did.
func NewEntry(actor core.Actor, action, details string) Entry {
	return Entry{
		UserID:    actor.UserID,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
}

type QueryFilter struct {
	UserID int       `query:"user_id"`
	Action string    `query:"action"`
	From   time.Time `query:"-"` // bound from "from"
	To     time.Time `query:"-"` // bound from "to"
	Limit  uint64    `query:"limit"`
}

func (qf *QueryFilter) Clean() {
	qf.Action = core.CleanString(qf.Action, true /* lower */)
	if qf.Limit == 0 || qf.Limit > 500 {
		qf.Limit = 50
	}
}

// Writer appends entries. Ledger repositories implement it inside their transactions.
type Writer interface {
	CreateAuditEntry(ctx context.Context, entry Entry) (Entry, error)
}

type Repository interface {
	Writer
	// QueryAuditEntries returns the matching entries, newest first.
	QueryAuditEntries(ctx context.Context, filter QueryFilter) ([]Entry, error)
}
