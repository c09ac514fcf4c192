package audit

import (
	"context"

	"github.com/trezcool/awe-academy/core"
)

type ServiceInterface interface {
	Query(ctx context.Context, filter QueryFilter) ([]Entry, error)
}

type Service struct {
	repo Repository
}

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	filter.Clean()
	entries, err := svc.repo.QueryAuditEntries(ctx, filter)
	return entries, core.StoreError("querying audit log", err)
}
