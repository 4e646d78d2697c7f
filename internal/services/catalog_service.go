package services

import (
	"database/sql"
	"errors"

	"storefront/internal/domain"
	"storefront/internal/repos"
)

const defaultPageSize = 12

type CatalogService struct {
	Prods *repos.ProductRepo
}

func NewCatalogService(prods *repos.ProductRepo) *CatalogService {
	return &CatalogService{Prods: prods}
}

// ProductPage is one page of a catalog listing.
type ProductPage struct {
	Items    []domain.Product
	Page     int
	PageSize int
	Total    int
}

func (s *CatalogService) ListProducts(q string, page, pageSize int) (ProductPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = defaultPageSize
	}
	items, err := s.Prods.List(q, pageSize, (page-1)*pageSize)
	if err != nil {
		return ProductPage{}, err
	}
	total, err := s.Prods.Count(q)
	if err != nil {
		return ProductPage{}, err
	}
	return ProductPage{Items: items, Page: page, PageSize: pageSize, Total: total}, nil
}

func (s *CatalogService) GetProduct(id string) (domain.Product, error) {
	p, err := s.Prods.Get(id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, ErrNotFound
	}
	return p, err
}
