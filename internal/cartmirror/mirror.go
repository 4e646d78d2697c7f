// Package cartmirror keeps a client-side copy of the shopping cart in memory,
// in device storage and, when signed in, in the remote cart table.
//
// The copies are reconciled opportunistically: Fetch takes the first source
// that has a cart without merging, and every mutation writes the whole list
// to each store. A failed write is logged and recorded in LastError; the
// store that succeeded is not rolled back.
package cartmirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"storefront/internal/apiclient"
	"storefront/internal/domain"
	"storefront/internal/validate"
)

var (
	ErrOutOfStock        = errors.New("this product is out of stock")
	ErrInsufficientStock = errors.New("not enough stock for that quantity")
	ErrItemNotFound      = errors.New("cart item not found")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrQuantityLimit     = fmt.Errorf("at most %d units per line", validate.MaxCartQty)
)

// Remote is the server side of the cart.
type Remote interface {
	HasSession() bool
	Cart(ctx context.Context) (apiclient.CartView, error)
	ReplaceCart(ctx context.Context, items []domain.CartItem) (apiclient.CartView, error)
}

// Source says where Fetch found the cart.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
	SourceEmpty  Source = "empty"
)

type Mirror struct {
	local  LocalStore
	remote Remote

	mu      sync.Mutex
	items   []domain.CartItem
	lastErr string
}

// New builds a mirror. remote may be nil for an anonymous device.
func New(local LocalStore, remote Remote) *Mirror {
	return &Mirror{local: local, remote: remote}
}

// Items returns a copy of the in-memory lines.
func (m *Mirror) Items() []domain.CartItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CartItem(nil), m.items...)
}

func (m *Mirror) Total() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.CartTotal(m.items)
}

// LastError is the message of the last failed operation, or "".
func (m *Mirror) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Mirror) signedIn() bool {
	return m.remote != nil && m.remote.HasSession()
}

// fail records err; callers hold mu.
func (m *Mirror) fail(op string, err error) error {
	log.Error().Err(err).Str("op", op).Msg("cart mirror")
	m.lastErr = err.Error()
	return err
}

// Fetch loads the cart: the remote row when signed in, else device storage,
// else an empty list. The first source found wins.
func (m *Mirror) Fetch(ctx context.Context) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = ""

	var remoteErr error
	if m.signedIn() {
		cv, err := m.remote.Cart(ctx)
		switch {
		case err != nil:
			remoteErr = m.fail("fetch.remote", err)
		case cv.Found:
			// Device storage follows the remote cart.
			m.items = cv.Items
			if err := m.saveLocal(); err != nil {
				return SourceRemote, m.fail("fetch.local", err)
			}
			return SourceRemote, nil
		}
	}

	raw, found, err := m.local.Get(AnonymousKey)
	if err != nil {
		m.items = nil
		return SourceEmpty, m.fail("fetch.local", err)
	}
	if found {
		var items []domain.CartItem
		if err := json.Unmarshal(raw, &items); err != nil {
			m.items = nil
			return SourceEmpty, m.fail("fetch.local", fmt.Errorf("corrupt local cart: %w", err))
		}
		m.items = items
		return SourceLocal, remoteErr
	}
	m.items = nil
	return SourceEmpty, remoteErr
}

// Add puts qty units of p in the cart. The stock checks run before anything
// is written, so a rejected add leaves every copy untouched.
func (m *Mirror) Add(ctx context.Context, p domain.Product, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = ""

	if qty < 1 {
		return m.fail("add", ErrInvalidQuantity)
	}
	if p.Stock <= 0 {
		return m.fail("add", ErrOutOfStock)
	}
	idx := m.indexByProduct(p.ID)
	current := 0
	if idx >= 0 {
		current = m.items[idx].Quantity
	}
	if current+qty > validate.MaxCartQty {
		return m.fail("add", ErrQuantityLimit)
	}
	if current+qty > p.Stock {
		return m.fail("add", fmt.Errorf("%w: %d of %s available", ErrInsufficientStock, p.Stock, p.Name))
	}

	if idx >= 0 {
		m.items[idx].Quantity += qty
		m.items[idx].Stock = p.Stock
		m.items[idx].Price = p.Price
	} else {
		m.items = append(m.items, domain.CartItem{
			ID:        uuid.NewString(),
			ProductID: p.ID,
			Quantity:  qty,
			Name:      p.Name,
			Price:     p.Price,
			Stock:     p.Stock,
			ImageURL:  p.ImageURL,
		})
	}
	return m.persist(ctx, "add")
}

// Update sets a line's quantity. Zero or less removes the line; more than
// the known stock or the per-line limit is rejected and nothing changes.
func (m *Mirror) Update(ctx context.Context, itemID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = ""

	idx := m.indexByID(itemID)
	if idx < 0 {
		return m.fail("update", ErrItemNotFound)
	}
	if qty <= 0 {
		m.items = append(m.items[:idx], m.items[idx+1:]...)
		return m.persist(ctx, "update")
	}
	if qty > validate.MaxCartQty {
		return m.fail("update", ErrQuantityLimit)
	}
	if qty > m.items[idx].Stock {
		return m.fail("update", fmt.Errorf("%w: %d of %s available", ErrInsufficientStock, m.items[idx].Stock, m.items[idx].Name))
	}
	m.items[idx].Quantity = qty
	return m.persist(ctx, "update")
}

func (m *Mirror) Remove(ctx context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = ""

	idx := m.indexByID(itemID)
	if idx < 0 {
		return m.fail("remove", ErrItemNotFound)
	}
	m.items = append(m.items[:idx], m.items[idx+1:]...)
	return m.persist(ctx, "remove")
}

// Clear empties every copy of the cart.
func (m *Mirror) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = ""
	m.items = nil
	return m.persist(ctx, "clear")
}

// persist writes the whole list to device storage, then to the remote cart.
// Both writes are attempted; the first error is returned.
func (m *Mirror) persist(ctx context.Context, op string) error {
	var first error
	if err := m.saveLocal(); err != nil {
		first = m.fail(op+".local", err)
	}
	if !m.signedIn() {
		return first
	}
	cv, err := m.remote.ReplaceCart(ctx, m.items)
	if err != nil {
		err = m.fail(op+".remote", err)
		if first == nil {
			first = err
		}
		return first
	}
	// The server assigns ids to new lines; adopt them so later updates match.
	m.items = cv.Items
	if err := m.saveLocal(); err != nil && first == nil {
		first = m.fail(op+".local", err)
	}
	return first
}

func (m *Mirror) saveLocal() error {
	if len(m.items) == 0 {
		return m.local.Delete(AnonymousKey)
	}
	raw, err := json.Marshal(m.items)
	if err != nil {
		return err
	}
	return m.local.Set(AnonymousKey, raw)
}

func (m *Mirror) indexByProduct(productID string) int {
	for i, it := range m.items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

func (m *Mirror) indexByID(itemID string) int {
	for i, it := range m.items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}
