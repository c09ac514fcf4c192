package dummydb

import (
	"context"

	"github.com/trezcool/awe-academy/core/audit"
)

type auditRepository struct {
	conn
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) audit.Repository {
	return &auditRepository{conn{db: db}}
}

// CreateAuditEntry is shared by every repository of the package, so entries join their transaction.
func (c conn) CreateAuditEntry(_ context.Context, entry audit.Entry) (audit.Entry, error) {
	err := c.update("CreateAuditEntry", func(t *tables) error {
		entry.ID = t.nextID("system_logs")
		entry.Username = t.users[entry.UserID].Username
		t.auditLog = append(t.auditLog, entry)
		return nil
	})
	return entry, err
}

func (repo *auditRepository) QueryAuditEntries(_ context.Context, filter audit.QueryFilter) ([]audit.Entry, error) {
	var entries []audit.Entry
	err := repo.view("QueryAuditEntries", func(t *tables) error {
		// newest first
		for i := len(t.auditLog) - 1; i >= 0; i-- {
			e := t.auditLog[i]
			switch {
			case filter.UserID != 0 && e.UserID != filter.UserID:
				continue
			case filter.Action != "" && e.Action != filter.Action:
				continue
			case !filter.From.IsZero() && e.CreatedAt.Before(filter.From):
				continue
			case !filter.To.IsZero() && e.CreatedAt.After(filter.To):
				continue
			}
			entry := e
			entry.Username = t.users[e.UserID].Username
			entries = append(entries, entry)
			if filter.Limit > 0 && uint64(len(entries)) >= filter.Limit {
				break
			}
		}
		return nil
	})
	return entries, err
}
