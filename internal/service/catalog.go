package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrInvalidSortOrder = errors.New("sort_order must be >= 1")
	ErrSortOrderTaken   = errors.New("sort_order already used by another product")
	ErrSameProduct      = errors.New("cannot swap a product with itself")
)

const sortOrderConstraint = "products_sort_order_key"

// CatalogStore defines the DB methods needed for product ordering.
// Satisfied by *database.Queries (and its WithTx variant).
type CatalogStore interface {
	GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error)
	GetMaxProductSortOrder(ctx context.Context) (int32, error)
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	SetProductSortOrder(ctx context.Context, arg database.SetProductSortOrderParams) (database.Product, error)
}

// NewCatalogStore creates a CatalogStore from a DBTX (pool or tx).
type NewCatalogStore func(db database.DBTX) CatalogStore

// CatalogService owns the manual display order of products.
type CatalogService struct {
	pool     TxBeginner
	newStore NewCatalogStore
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(pool TxBeginner, newStore NewCatalogStore) *CatalogService {
	return &CatalogService{pool: pool, newStore: newStore}
}

// CreateProduct appends a product after the current last sort key.
// The SortOrder field of arg is ignored.
func (s *CatalogService) CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Product{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	last, err := store.GetMaxProductSortOrder(ctx)
	if err != nil {
		return database.Product{}, fmt.Errorf("get max sort order: %w", err)
	}
	arg.SortOrder = pgtype.Int4{Int32: last + 1, Valid: true}

	product, err := store.CreateProduct(ctx, arg)
	if err != nil {
		if isUniqueViolation(err, sortOrderConstraint) {
			return database.Product{}, ErrSortOrderTaken
		}
		return database.Product{}, fmt.Errorf("create product: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Product{}, fmt.Errorf("commit: %w", err)
	}
	return product, nil
}

// SwapSortOrder exchanges the sort keys of two products. The unique index
// on sort_order forces a detour through NULL.
func (s *CatalogService) SwapSortOrder(ctx context.Context, aID, bID uuid.UUID) (database.Product, database.Product, error) {
	if aID == bID {
		return database.Product{}, database.Product{}, ErrSameProduct
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Product{}, database.Product{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	a, err := getProduct(ctx, store, aID)
	if err != nil {
		return database.Product{}, database.Product{}, err
	}
	b, err := getProduct(ctx, store, bID)
	if err != nil {
		return database.Product{}, database.Product{}, err
	}

	aKey, bKey := a.SortOrder, b.SortOrder
	if !aKey.Valid || !bKey.Valid {
		// Unordered products are placed at the end before swapping.
		last, err := store.GetMaxProductSortOrder(ctx)
		if err != nil {
			return database.Product{}, database.Product{}, fmt.Errorf("get max sort order: %w", err)
		}
		if !aKey.Valid {
			last++
			aKey = pgtype.Int4{Int32: last, Valid: true}
		}
		if !bKey.Valid {
			last++
			bKey = pgtype.Int4{Int32: last, Valid: true}
		}
	}

	steps := []database.SetProductSortOrderParams{
		{ID: aID, SortOrder: pgtype.Int4{}},
		{ID: bID, SortOrder: aKey},
		{ID: aID, SortOrder: bKey},
	}
	for i, step := range steps {
		p, err := store.SetProductSortOrder(ctx, step)
		if err != nil {
			return database.Product{}, database.Product{}, fmt.Errorf("swap step %d: %w", i+1, err)
		}
		if p.ID == aID {
			a = p
		} else {
			b = p
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Product{}, database.Product{}, fmt.Errorf("commit: %w", err)
	}
	return a, b, nil
}

// SetSortOrder overwrites one product's sort key.
func (s *CatalogService) SetSortOrder(ctx context.Context, id uuid.UUID, sortOrder int32) (database.Product, error) {
	if sortOrder < 1 {
		return database.Product{}, ErrInvalidSortOrder
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Product{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	p, err := s.newStore(tx).SetProductSortOrder(ctx, database.SetProductSortOrderParams{
		ID:        id,
		SortOrder: pgtype.Int4{Int32: sortOrder, Valid: true},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Product{}, ErrProductNotFound
		}
		if isUniqueViolation(err, sortOrderConstraint) {
			return database.Product{}, ErrSortOrderTaken
		}
		return database.Product{}, fmt.Errorf("set sort order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Product{}, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func getProduct(ctx context.Context, store CatalogStore, id uuid.UUID) (database.Product, error) {
	p, err := store.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Product{}, ErrProductNotFound
		}
		return database.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}
