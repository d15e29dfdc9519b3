package suppliers

import (
	"strings"

	"github.com/tillpoint/tillpoint/internal/shared"
)

func (s *Service) validate(op string, sup *Supplier) error {
	sup.Name = strings.TrimSpace(sup.Name)
	sup.Email = strings.TrimSpace(sup.Email)
	if sup.Name == "" {
		return shared.Validation(op, "supplier name is required")
	}
	return shared.ValidateStruct(op, *sup)
}
