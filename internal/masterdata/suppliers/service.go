package suppliers

import (
	"context"
	"time"

	"github.com/tillpoint/tillpoint/internal/masterdata/shared"
	internalShared "github.com/tillpoint/tillpoint/internal/shared"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, internalShared.Validation("suppliers: get", "invalid supplier ID")
	}
	return s.repo.Get(ctx, id)
}

// GetByName resolves a supplier by its unique name.
func (s *Service) GetByName(ctx context.Context, name string) (Supplier, error) {
	return s.repo.GetByName(ctx, name)
}

func (s *Service) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	if err := s.validate("suppliers: create", &supplier); err != nil {
		return Supplier{}, err
	}
	now := internalShared.Timestamp(s.now())
	supplier.ID = 0
	supplier.Created = now
	supplier.LastUpdated = now
	return s.repo.Create(ctx, supplier)
}

func (s *Service) Update(ctx context.Context, id int64, supplier Supplier) error {
	if id <= 0 {
		return internalShared.Validation("suppliers: update", "invalid supplier ID")
	}
	if err := s.validate("suppliers: update", &supplier); err != nil {
		return err
	}
	supplier.LastUpdated = internalShared.Timestamp(s.now())
	return s.repo.Update(ctx, id, supplier)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return internalShared.Validation("suppliers: delete", "invalid supplier ID")
	}
	return s.repo.Delete(ctx, id)
}
