package services

import (
	"database/sql"
	"errors"

	"storefront/internal/domain"
	"storefront/internal/repos"
)

type InventoryService struct {
	Inv *repos.InventoryRepo
}

func NewInventoryService(inv *repos.InventoryRepo) *InventoryService {
	return &InventoryService{Inv: inv}
}

// CheckAvailability maps stock to IN_STOCK (5+), LOW_STOCK (1-4) or OUT_OF_STOCK.
func (s *InventoryService) CheckAvailability(productID string) (domain.Availability, error) {
	qty, err := s.Inv.Stock(productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Availability{}, ErrNotFound
		}
		return domain.Availability{}, err
	}

	status := "OUT_OF_STOCK"
	switch {
	case qty >= 5:
		status = "IN_STOCK"
	case qty > 0:
		status = "LOW_STOCK"
	}
	return domain.Availability{Status: status, Qty: qty}, nil
}

// SetStock overwrites the stock of a product (admin restock).
func (s *InventoryService) SetStock(productID string, qty int) (domain.Availability, error) {
	if qty < 0 {
		return domain.Availability{}, ErrInvalidInput
	}
	if err := s.Inv.SetStock(productID, qty); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Availability{}, ErrNotFound
		}
		return domain.Availability{}, err
	}
	return s.CheckAvailability(productID)
}
