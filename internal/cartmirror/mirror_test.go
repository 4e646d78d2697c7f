package cartmirror_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apiclient"
	"storefront/internal/cartmirror"
	"storefront/internal/domain"
)

type fakeRemote struct {
	session  bool
	items    []domain.CartItem
	found    bool
	fetchErr error
	writeErr error
	writes   int
	nextID   int
}

func (f *fakeRemote) HasSession() bool { return f.session }

func (f *fakeRemote) Cart(context.Context) (apiclient.CartView, error) {
	if f.fetchErr != nil {
		return apiclient.CartView{}, f.fetchErr
	}
	return apiclient.CartView{Items: f.items, Found: f.found, Total: domain.CartTotal(f.items)}, nil
}

func (f *fakeRemote) ReplaceCart(_ context.Context, items []domain.CartItem) (apiclient.CartView, error) {
	f.writes++
	if f.writeErr != nil {
		return apiclient.CartView{}, f.writeErr
	}
	out := make([]domain.CartItem, len(items))
	for i, it := range items {
		f.nextID++
		it.ID = fmt.Sprintf("srv-%d", f.nextID)
		out[i] = it
	}
	f.items, f.found = out, true
	return apiclient.CartView{Items: out, Found: true, Total: domain.CartTotal(out)}, nil
}

type brokenStore struct{ err error }

func (b brokenStore) Get(string) ([]byte, bool, error) { return nil, false, nil }
func (b brokenStore) Set(string, []byte) error         { return b.err }
func (b brokenStore) Delete(string) error              { return b.err }

func product(id string, stock int, price string) domain.Product {
	return domain.Product{ID: id, Name: "Item " + id, Price: decimal.RequireFromString(price), Stock: stock}
}

func localItems(t *testing.T, s cartmirror.LocalStore) []domain.CartItem {
	t.Helper()
	raw, ok, err := s.Get(cartmirror.AnonymousKey)
	require.NoError(t, err)
	if !ok {
		return nil
	}
	var items []domain.CartItem
	require.NoError(t, json.Unmarshal(raw, &items))
	return items
}

func TestFetchPrefersRemoteWhenSignedIn(t *testing.T) {
	ctx := context.Background()
	local := cartmirror.NewMemoryStore()
	raw, _ := json.Marshal([]domain.CartItem{{ID: "l1", ProductID: "p-local", Quantity: 1}})
	require.NoError(t, local.Set(cartmirror.AnonymousKey, raw))

	remote := &fakeRemote{session: true, found: true, items: []domain.CartItem{{ID: "r1", ProductID: "p-remote", Quantity: 2}}}
	m := cartmirror.New(local, remote)

	src, err := m.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, cartmirror.SourceRemote, src)
	require.Len(t, m.Items(), 1)
	assert.Equal(t, "p-remote", m.Items()[0].ProductID)
	stored := localItems(t, local)
	require.Len(t, stored, 1)
	assert.Equal(t, "p-remote", stored[0].ProductID)
}

func TestFetchRemoteEmptyCartClearsDevice(t *testing.T) {
	ctx := context.Background()
	local := cartmirror.NewMemoryStore()
	raw, _ := json.Marshal([]domain.CartItem{{ID: "l1", ProductID: "p-paid", Quantity: 2}})
	require.NoError(t, local.Set(cartmirror.AnonymousKey, raw))

	// The paid order's cart was emptied server side.
	m := cartmirror.New(local, &fakeRemote{session: true, found: true})
	src, err := m.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, cartmirror.SourceRemote, src)
	assert.Empty(t, m.Items())
	assert.Empty(t, localItems(t, local))

	// After logout the paid lines do not come back.
	src, err = cartmirror.New(local, nil).Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, cartmirror.SourceEmpty, src)
}

func TestFetchFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	local := cartmirror.NewMemoryStore()
	raw, _ := json.Marshal([]domain.CartItem{{ID: "l1", ProductID: "p-local", Quantity: 1}})
	require.NoError(t, local.Set(cartmirror.AnonymousKey, raw))

	t.Run("no remote row", func(t *testing.T) {
		m := cartmirror.New(local, &fakeRemote{session: true})
		src, err := m.Fetch(ctx)
		require.NoError(t, err)
		assert.Equal(t, cartmirror.SourceLocal, src)
		assert.Equal(t, "p-local", m.Items()[0].ProductID)
	})

	t.Run("anonymous", func(t *testing.T) {
		m := cartmirror.New(local, nil)
		src, err := m.Fetch(ctx)
		require.NoError(t, err)
		assert.Equal(t, cartmirror.SourceLocal, src)
	})

	t.Run("remote error", func(t *testing.T) {
		m := cartmirror.New(local, &fakeRemote{session: true, fetchErr: errors.New("offline")})
		src, err := m.Fetch(ctx)
		require.Error(t, err)
		assert.Equal(t, cartmirror.SourceLocal, src)
		assert.Len(t, m.Items(), 1)
		assert.Equal(t, "offline", m.LastError())
	})
}

func TestFetchEmpty(t *testing.T) {
	m := cartmirror.New(cartmirror.NewMemoryStore(), nil)
	src, err := m.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cartmirror.SourceEmpty, src)
	assert.Empty(t, m.Items())
	assert.True(t, m.Total().IsZero())
}

func TestAddAnonymous(t *testing.T) {
	ctx := context.Background()
	local := cartmirror.NewMemoryStore()
	m := cartmirror.New(local, nil)
	p := product("p1", 5, "10.50")

	require.NoError(t, m.Add(ctx, p, 2))
	require.NoError(t, m.Add(ctx, p, 1))

	items := m.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.NotEmpty(t, items[0].ID)
	assert.True(t, m.Total().Equal(decimal.RequireFromString("31.50")))

	stored := localItems(t, local)
	require.Len(t, stored, 1)
	assert.Equal(t, 3, stored[0].Quantity)
}

func TestAddRejectsBeforeWriting(t *testing.T) {
	ctx := context.Background()
	local := cartmirror.NewMemoryStore()
	remote := &fakeRemote{session: true}
	m := cartmirror.New(local, remote)

	require.NoError(t, m.Add(ctx, product("p1", 3, "1"), 2))
	writes := remote.writes

	err := m.Add(ctx, product("p1", 3, "1"), 2)
	require.ErrorIs(t, err, cartmirror.ErrInsufficientStock)
	assert.NotEmpty(t, m.LastError())

	err = m.Add(ctx, product("p2", 0, "1"), 1)
	require.ErrorIs(t, err, cartmirror.ErrOutOfStock)

	err = m.Add(ctx, product("p3", 9, "1"), 0)
	require.ErrorIs(t, err, cartmirror.ErrInvalidQuantity)

	assert.Equal(t, writes, remote.writes)
	require.Len(t, m.Items(), 1)
	assert.Equal(t, 2, m.Items()[0].Quantity)
	assert.Equal(t, 2, localItems(t, local)[0].Quantity)
}

func TestAddSignedInAdoptsServerIDs(t *testing.T) {
	ctx := context.Background()
	local := cartmirror.NewMemoryStore()
	remote := &fakeRemote{session: true}
	m := cartmirror.New(local, remote)

	require.NoError(t, m.Add(ctx, product("p1", 5, "2"), 1))
	items := m.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "srv-1", items[0].ID)
	assert.Equal(t, "srv-1", localItems(t, local)[0].ID)
	assert.Equal(t, 1, remote.writes)
}

func TestUpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	local := cartmirror.NewMemoryStore()
	m := cartmirror.New(local, nil)
	require.NoError(t, m.Add(ctx, product("p1", 4, "3"), 1))
	require.NoError(t, m.Add(ctx, product("p2", 2, "5"), 1))
	id1, id2 := m.Items()[0].ID, m.Items()[1].ID

	require.NoError(t, m.Update(ctx, id1, 4))
	assert.Equal(t, 4, m.Items()[0].Quantity)

	err := m.Update(ctx, id1, 5)
	require.ErrorIs(t, err, cartmirror.ErrInsufficientStock)
	assert.Equal(t, 4, m.Items()[0].Quantity)

	require.ErrorIs(t, m.Update(ctx, "nope", 1), cartmirror.ErrItemNotFound)

	require.NoError(t, m.Update(ctx, id2, 0))
	require.Len(t, m.Items(), 1)

	require.NoError(t, m.Remove(ctx, id1))
	assert.Empty(t, m.Items())
	assert.Nil(t, localItems(t, local))

	require.ErrorIs(t, m.Remove(ctx, id1), cartmirror.ErrItemNotFound)
}

func TestRemoteWriteFailureKeepsLocal(t *testing.T) {
	ctx := context.Background()
	local := cartmirror.NewMemoryStore()
	remote := &fakeRemote{session: true, writeErr: errors.New("502 bad gateway")}
	m := cartmirror.New(local, remote)

	err := m.Add(ctx, product("p1", 5, "1"), 1)
	require.Error(t, err)
	assert.Equal(t, "502 bad gateway", m.LastError())

	// The copies now disagree: local has the line, remote does not.
	assert.Len(t, localItems(t, local), 1)
	assert.Len(t, m.Items(), 1)
	assert.False(t, remote.found)
}

func TestLocalWriteFailureStillWritesRemote(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{session: true}
	m := cartmirror.New(brokenStore{err: errors.New("disk full")}, remote)

	err := m.Add(ctx, product("p1", 5, "1"), 1)
	require.Error(t, err)
	assert.Equal(t, "disk full", m.LastError())
	assert.Len(t, remote.items, 1)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	local := cartmirror.NewMemoryStore()
	remote := &fakeRemote{session: true}
	m := cartmirror.New(local, remote)
	require.NoError(t, m.Add(ctx, product("p1", 5, "1"), 2))

	require.NoError(t, m.Clear(ctx))
	assert.Empty(t, m.Items())
	assert.Empty(t, remote.items)
	assert.Nil(t, localItems(t, local))
	assert.Empty(t, m.LastError())
}

func TestFileStore(t *testing.T) {
	s := cartmirror.NewFileStore(t.TempDir())

	_, ok, err := s.Get(cartmirror.AnonymousKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(cartmirror.AnonymousKey, []byte(`[]`)))
	b, ok, err := s.Get(cartmirror.AnonymousKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, string(b))

	require.NoError(t, s.Delete(cartmirror.AnonymousKey))
	require.NoError(t, s.Delete(cartmirror.AnonymousKey))

	require.Error(t, s.Set("../escape", []byte("x")))
}

func TestQuantityLimit(t *testing.T) {
	ctx := context.Background()
	local := cartmirror.NewMemoryStore()
	remote := &fakeRemote{session: true}
	m := cartmirror.New(local, remote)
	big := product("p-bulk", 500, "1.00")

	err := m.Add(ctx, big, 100)
	assert.ErrorIs(t, err, cartmirror.ErrQuantityLimit)
	assert.Empty(t, m.Items())
	assert.Zero(t, remote.writes)

	require.NoError(t, m.Add(ctx, big, 99))
	assert.ErrorIs(t, m.Add(ctx, big, 1), cartmirror.ErrQuantityLimit)

	id := m.Items()[0].ID
	assert.ErrorIs(t, m.Update(ctx, id, 100), cartmirror.ErrQuantityLimit)
	assert.Equal(t, 99, m.Items()[0].Quantity)
	assert.Equal(t, 99, localItems(t, local)[0].Quantity)
	assert.Equal(t, 1, remote.writes)
}

func TestMemoryStoreZeroValue(t *testing.T) {
	var s cartmirror.MemoryStore
	_, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("k", []byte("v")))
	b, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(b))
	require.NoError(t, s.Delete("k"))
}
