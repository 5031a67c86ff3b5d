package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrInvalidCatalogData = errors.New("invalid catalog data")
)

// Service fetches products and returns them normalized and validated.
// It does not cache and does not paginate.
type Service struct {
	querier Querier
	logger  *slog.Logger
}

func NewService(querier Querier, logger *slog.Logger) *Service {
	return &Service{
		querier: querier,
		logger:  logger.With("component", "catalog"),
	}
}

// ProductByHandle returns ErrProductNotFound when the catalog has no product with that handle.
func (s *Service) ProductByHandle(ctx context.Context, handle string) (*Product, error) {
	var data productByHandleData
	if err := s.querier.Query(ctx, productByHandleQuery, map[string]any{"handle": handle}, &data); err != nil {
		return nil, err
	}
	if data.Product == nil {
		return nil, fmt.Errorf("%s: %w", handle, ErrProductNotFound)
	}
	return s.prepare(ctx, data.Product)
}

// Products lists the first n products. A failed load is an error, never an empty list.
func (s *Service) Products(ctx context.Context, first int) ([]Product, error) {
	var data productsData
	if err := s.querier.Query(ctx, productsQuery, map[string]any{"first": first}, &data); err != nil {
		return nil, err
	}
	products := make([]Product, 0, len(data.Products.Edges))
	for i := range data.Products.Edges {
		p, err := s.prepare(ctx, &data.Products.Edges[i].Node)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}

func (s *Service) prepare(ctx context.Context, w *wireProduct) (*Product, error) {
	p, err := normalize(w)
	if err != nil {
		s.logger.ErrorContext(ctx, "Malformed product in catalog response", "handle", w.Handle, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalogData, err)
	}
	if err := p.Validate(); err != nil {
		s.logger.ErrorContext(ctx, "Catalog product violates variant invariants", "handle", p.Handle, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCatalogData, p.Handle, err)
	}
	return p, nil
}
