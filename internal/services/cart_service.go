package services

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/repos"
)

type CartService struct {
	Carts *repos.CartRepo
	Prods *repos.ProductRepo
}

func NewCartService(carts *repos.CartRepo, prods *repos.ProductRepo) *CartService {
	return &CartService{Carts: carts, Prods: prods}
}

// CartView is the server copy of a user's cart. Found is false when the user
// never had a cart row.
type CartView struct {
	Items []domain.CartItem `json:"items"`
	Total decimal.Decimal   `json:"total"`
	Found bool              `json:"found"`
}

func (s *CartService) View(userID string) (CartView, error) {
	cartID, found, err := s.Carts.FindCart(userID)
	if err != nil {
		return CartView{}, err
	}
	if !found {
		return CartView{Items: []domain.CartItem{}, Total: decimal.Zero}, nil
	}
	return s.view(cartID)
}

func (s *CartService) view(cartID string) (CartView, error) {
	items, err := s.Carts.Items(cartID)
	if err != nil {
		return CartView{}, err
	}
	return CartView{Items: items, Total: domain.CartTotal(items), Found: true}, nil
}

// Add puts qty units of a product in the cart, incrementing an existing line.
// Nothing is written when the resulting quantity would exceed stock.
func (s *CartService) Add(userID, productID string, qty int) (CartView, error) {
	if qty < 1 {
		return CartView{}, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	p, err := s.Prods.Get(productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CartView{}, ErrNotFound
		}
		return CartView{}, err
	}
	if p.Stock <= 0 {
		return CartView{}, ErrOutOfStock
	}

	cartID, err := s.Carts.EnsureCart(userID)
	if err != nil {
		return CartView{}, err
	}
	current := 0
	if it, err := s.Carts.FindItem(cartID, productID); err == nil {
		current = it.Quantity
	} else if !errors.Is(err, sql.ErrNoRows) {
		return CartView{}, err
	}
	if current+qty > p.Stock {
		return CartView{}, fmt.Errorf("%w: only %d of %s available", ErrInsufficientStock, p.Stock, p.Name)
	}

	if err := s.Carts.AddOrIncrement(cartID, productID, qty); err != nil {
		return CartView{}, err
	}
	return s.view(cartID)
}

// Update sets the quantity of a line. Zero or less removes the line; more
// than the product stock is rejected and leaves the line unchanged.
func (s *CartService) Update(userID, itemID string, qty int) (CartView, error) {
	line, err := s.ownedLine(userID, itemID)
	if err != nil {
		return CartView{}, err
	}
	if qty <= 0 {
		if err := s.Carts.RemoveItem(itemID); err != nil {
			return CartView{}, err
		}
		return s.view(line.CartID)
	}
	if qty > line.Stock {
		return CartView{}, fmt.Errorf("%w: only %d available", ErrInsufficientStock, line.Stock)
	}
	if err := s.Carts.SetQuantity(itemID, qty); err != nil {
		return CartView{}, err
	}
	return s.view(line.CartID)
}

func (s *CartService) Remove(userID, itemID string) (CartView, error) {
	line, err := s.ownedLine(userID, itemID)
	if err != nil {
		return CartView{}, err
	}
	if err := s.Carts.RemoveItem(itemID); err != nil {
		return CartView{}, err
	}
	return s.view(line.CartID)
}

// Replace overwrites the whole cart, merging duplicate products. Every line
// must reference an existing product with enough stock.
func (s *CartService) Replace(userID string, lines []domain.CartItem) (CartView, error) {
	merged := make([]domain.CartItem, 0, len(lines))
	index := map[string]int{}
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity < 1 {
			return CartView{}, fmt.Errorf("%w: every line needs a product and a positive quantity", ErrInvalidInput)
		}
		if i, ok := index[l.ProductID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, domain.CartItem{ID: l.ID, ProductID: l.ProductID, Quantity: l.Quantity})
	}
	for _, l := range merged {
		p, err := s.Prods.Get(l.ProductID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return CartView{}, fmt.Errorf("%w: product %s", ErrNotFound, l.ProductID)
			}
			return CartView{}, err
		}
		if l.Quantity > p.Stock {
			return CartView{}, fmt.Errorf("%w: only %d of %s available", ErrInsufficientStock, p.Stock, p.Name)
		}
	}

	cartID, err := s.Carts.EnsureCart(userID)
	if err != nil {
		return CartView{}, err
	}
	// Only ids already in this cart are kept; anything else gets a fresh id.
	existing, err := s.Carts.Items(cartID)
	if err != nil {
		return CartView{}, err
	}
	known := make(map[string]bool, len(existing))
	for _, it := range existing {
		known[it.ID] = true
	}
	for i := range merged {
		if !known[merged[i].ID] {
			merged[i].ID = ""
		}
	}
	if err := s.Carts.Replace(cartID, merged); err != nil {
		return CartView{}, err
	}
	return s.view(cartID)
}

// Clear empties the cart of userID once its order is paid.
func (s *CartService) Clear(userID string) error {
	return s.Carts.ClearUser(userID)
}

func (s *CartService) ownedLine(userID, itemID string) (repos.CartLine, error) {
	line, err := s.Carts.LineByID(itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repos.CartLine{}, ErrNotFound
		}
		return repos.CartLine{}, err
	}
	if line.UserID != userID {
		return repos.CartLine{}, ErrForbidden
	}
	return line, nil
}
