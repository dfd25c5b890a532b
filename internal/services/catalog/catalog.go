package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IlyasAtabaev731/shopper/internal/domain/models"
	"github.com/google/uuid"
)

const (
	newCollectionSize = 8
	featuredSize      = 4

	womenCategory = "women"
)

var ErrInvalidProduct = errors.New("invalid product")

type Storage interface {
	SaveProduct(ctx context.Context, product models.Product) (models.Product, error)
	Products(ctx context.Context, category string) ([]models.Product, error)
	NextProductID(ctx context.Context) (int64, error)
}

type Service struct {
	storage Storage
	logger  *slog.Logger
}

func New(storage Storage, logger *slog.Logger) *Service {
	return &Service{storage: storage, logger: logger}
}

// NextProductID reports the id the next added product is expected to get:
// one past the current maximum, or 1 for an empty catalog.
func (s *Service) NextProductID(ctx context.Context) (int64, error) {
	const op = "services.catalog.NextProductID"

	id, err := s.storage.NextProductID(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// AddProduct stores p under a freshly assigned id. Any id sent by the caller
// is ignored.
func (s *Service) AddProduct(ctx context.Context, p models.Product) (models.Product, error) {
	const op = "services.catalog.AddProduct"

	if err := validate(p); err != nil {
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	p.Key = uuid.NewString()
	p.ID = 0
	p.CreatedAt = time.Now().UTC()

	saved, err := s.storage.SaveProduct(ctx, p)
	if err != nil {
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("Product added", slog.Int64("id", saved.ID), slog.String("name", saved.Name))

	return saved, nil
}

func validate(p models.Product) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case p.Description == "":
		return fmt.Errorf("%w: description is required", ErrInvalidProduct)
	case p.Image == "":
		return fmt.Errorf("%w: image is required", ErrInvalidProduct)
	case p.Category == "":
		return fmt.Errorf("%w: category is required", ErrInvalidProduct)
	}
	return nil
}

// ListProducts returns products in insertion order, optionally restricted to
// one category (exact match).
func (s *Service) ListProducts(ctx context.Context, category string) ([]models.Product, error) {
	const op = "services.catalog.ListProducts"

	products, err := s.storage.Products(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return products, nil
}

// NewCollections returns the most recently added products.
func (s *Service) NewCollections(ctx context.Context) ([]models.Product, error) {
	products, err := s.ListProducts(ctx, "")
	if err != nil {
		return nil, err
	}

	return last(products, newCollectionSize), nil
}

func (s *Service) PopularInWomen(ctx context.Context) ([]models.Product, error) {
	return s.Related(ctx, womenCategory)
}

// Related returns the first products of category. An empty category has no
// related products.
func (s *Service) Related(ctx context.Context, category string) ([]models.Product, error) {
	if category == "" {
		return []models.Product{}, nil
	}

	products, err := s.ListProducts(ctx, category)
	if err != nil {
		return nil, err
	}

	return first(products, featuredSize), nil
}

func first(products []models.Product, n int) []models.Product {
	if len(products) > n {
		return products[:n]
	}
	return products
}

func last(products []models.Product, n int) []models.Product {
	if len(products) > n {
		return products[len(products)-n:]
	}
	return products
}
