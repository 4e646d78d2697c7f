package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/repos"
	"storefront/internal/services"
)

func TestCatalogService_ListProducts(t *testing.T) {
	db := memdb(t)
	svc := services.NewCatalogService(repos.NewProductRepo(db))

	page, err := svc.ListProducts("", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 12, page.PageSize)
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Items, 4)

	page, err = svc.ListProducts("", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Items, 1)

	page, err = svc.ListProducts("privacy", 1, 12)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "p-webcam", page.Items[0].ID)

	_, err = svc.GetProduct("p-gone")
	assert.ErrorIs(t, err, services.ErrNotFound)
}
