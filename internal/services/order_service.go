package services

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/repos"
)

type OrderService struct {
	Orders *repos.OrderRepo
	Prods  *repos.ProductRepo
}

func NewOrderService(orders *repos.OrderRepo, prods *repos.ProductRepo) *OrderService {
	return &OrderService{Orders: orders, Prods: prods}
}

// Create records a pending order for userID. Names and prices are copied from
// the product table, and the stored total is computed from them. Stock is not
// reserved here; it is only taken when the payment is confirmed.
func (s *OrderService) Create(userID string, lines []domain.OrderLine) (domain.Order, error) {
	if len(lines) == 0 {
		return domain.Order{}, ErrEmptyOrder
	}

	orderID := uuid.NewString()
	total := decimal.Zero
	items := make([]domain.OrderItem, 0, len(lines))
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity < 1 {
			return domain.Order{}, fmt.Errorf("%w: every line needs a product and a positive quantity", ErrInvalidInput)
		}
		p, err := s.Prods.Get(l.ProductID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.Order{}, fmt.Errorf("%w: product %s", ErrNotFound, l.ProductID)
			}
			return domain.Order{}, err
		}
		it := domain.OrderItem{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  l.Quantity,
		}
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		items = append(items, it)
	}
	if !total.IsPositive() {
		return domain.Order{}, fmt.Errorf("%w: order total must be positive", ErrInvalidInput)
	}

	o := domain.Order{
		ID:     orderID,
		UserID: &userID,
		Total:  total,
		Status: domain.OrderPending,
		Items:  items,
	}
	if err := s.Orders.CreateWithItems(o); err != nil {
		return domain.Order{}, err
	}
	return s.Orders.Get(orderID)
}

// Get returns an order visible to u: its owner, or any admin.
func (s *OrderService) Get(u *domain.User, orderID string) (domain.Order, error) {
	o, err := s.Orders.Get(orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, ErrNotFound
		}
		return domain.Order{}, err
	}
	if u == nil || (!o.OwnedBy(u.ID) && !u.IsAdmin()) {
		return domain.Order{}, ErrForbidden
	}
	return o, nil
}

func (s *OrderService) ListForUser(userID string) ([]domain.Order, error) {
	return s.Orders.ListByUser(userID)
}

func (s *OrderService) ListLatest(limit int) ([]domain.Order, error) {
	return s.Orders.ListLatest(limit)
}
