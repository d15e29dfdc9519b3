package customers

import (
	"context"
	"strings"
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

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByPhone(ctx context.Context, phone string) (Customer, error) {
	return s.repo.GetByPhone(ctx, strings.TrimSpace(phone))
}

func (s *Service) Create(ctx context.Context, customer Customer) (Customer, error) {
	if err := validate("customers: create", &customer); err != nil {
		return Customer{}, err
	}
	now := internalShared.Timestamp(s.now())
	customer.ID = 0
	customer.Created = now
	customer.LastUpdated = now
	return s.repo.Create(ctx, customer)
}

func (s *Service) Update(ctx context.Context, id int64, customer Customer) error {
	if err := validate("customers: update", &customer); err != nil {
		return err
	}
	customer.LastUpdated = internalShared.Timestamp(s.now())
	return s.repo.Update(ctx, id, customer)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func validate(op string, c *Customer) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Email = strings.TrimSpace(c.Email)
	return internalShared.ValidateStruct(op, *c)
}
