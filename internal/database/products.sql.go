package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, name, description, image_path, price_cents, is_active, featured, sort_order, created_at, updated_at`

func scanProduct(row interface{ Scan(...interface{}) error }) (Product, error) {
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.ImagePath,
		&i.PriceCents,
		&i.IsActive,
		&i.Featured,
		&i.SortOrder,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func (q *Queries) listProducts(ctx context.Context, query string, args ...interface{}) ([]Product, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Product{}
	for rows.Next() {
		i, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listActiveProducts = `-- name: ListActiveProducts :many
SELECT ` + productColumns + ` FROM products
WHERE is_active = true
ORDER BY sort_order ASC NULLS LAST, name ASC
`

func (q *Queries) ListActiveProducts(ctx context.Context) ([]Product, error) {
	return q.listProducts(ctx, listActiveProducts)
}

const listFeaturedProducts = `-- name: ListFeaturedProducts :many
SELECT ` + productColumns + ` FROM products
WHERE is_active = true AND featured = true
ORDER BY sort_order ASC NULLS LAST, name ASC
`

func (q *Queries) ListFeaturedProducts(ctx context.Context) ([]Product, error) {
	return q.listProducts(ctx, listFeaturedProducts)
}

const listAllProducts = `-- name: ListAllProducts :many
SELECT ` + productColumns + ` FROM products
ORDER BY sort_order ASC NULLS LAST, name ASC
`

func (q *Queries) ListAllProducts(ctx context.Context) ([]Product, error) {
	return q.listProducts(ctx, listAllProducts)
}

const getActiveProductsByIDs = `-- name: GetActiveProductsByIDs :many
SELECT ` + productColumns + ` FROM products
WHERE id = ANY($1::uuid[]) AND is_active = true
`

func (q *Queries) GetActiveProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	return q.listProducts(ctx, getActiveProductsByIDs, ids)
}

const getProduct = `-- name: GetProduct :one
SELECT ` + productColumns + ` FROM products
WHERE id = $1
`

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProduct, id))
}

const getMaxProductSortOrder = `-- name: GetMaxProductSortOrder :one
SELECT COALESCE(MAX(sort_order), 0)::int4 FROM products
`

func (q *Queries) GetMaxProductSortOrder(ctx context.Context) (int32, error) {
	row := q.db.QueryRow(ctx, getMaxProductSortOrder)
	var sortOrder int32
	err := row.Scan(&sortOrder)
	return sortOrder, err
}

const createProduct = `-- name: CreateProduct :one
INSERT INTO products (name, description, image_path, price_cents, is_active, featured, sort_order)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + productColumns

type CreateProductParams struct {
	Name        string      `json:"name"`
	Description pgtype.Text `json:"description"`
	ImagePath   pgtype.Text `json:"image_path"`
	PriceCents  int64       `json:"price_cents"`
	IsActive    bool        `json:"is_active"`
	Featured    bool        `json:"featured"`
	SortOrder   pgtype.Int4 `json:"sort_order"`
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, createProduct,
		arg.Name,
		arg.Description,
		arg.ImagePath,
		arg.PriceCents,
		arg.IsActive,
		arg.Featured,
		arg.SortOrder,
	))
}

const updateProduct = `-- name: UpdateProduct :one
UPDATE products
SET name = $2, description = $3, image_path = $4, price_cents = $5,
    is_active = $6, featured = $7, updated_at = now()
WHERE id = $1
RETURNING ` + productColumns

type UpdateProductParams struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description pgtype.Text `json:"description"`
	ImagePath   pgtype.Text `json:"image_path"`
	PriceCents  int64       `json:"price_cents"`
	IsActive    bool        `json:"is_active"`
	Featured    bool        `json:"featured"`
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, updateProduct,
		arg.ID,
		arg.Name,
		arg.Description,
		arg.ImagePath,
		arg.PriceCents,
		arg.IsActive,
		arg.Featured,
	))
}

const softDeleteProduct = `-- name: SoftDeleteProduct :one
UPDATE products SET is_active = false, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING id
`

func (q *Queries) SoftDeleteProduct(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, softDeleteProduct, id)
	var out uuid.UUID
	err := row.Scan(&out)
	return out, err
}

const setProductImage = `-- name: SetProductImage :one
UPDATE products SET image_path = $2, updated_at = now()
WHERE id = $1
RETURNING ` + productColumns

type SetProductImageParams struct {
	ID        uuid.UUID   `json:"id"`
	ImagePath pgtype.Text `json:"image_path"`
}

func (q *Queries) SetProductImage(ctx context.Context, arg SetProductImageParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, setProductImage, arg.ID, arg.ImagePath))
}

const listProductsWithImages = `-- name: ListProductsWithImages :many
SELECT ` + productColumns + ` FROM products
WHERE image_path IS NOT NULL AND image_path <> ''
ORDER BY sort_order ASC NULLS LAST, name ASC
`

func (q *Queries) ListProductsWithImages(ctx context.Context) ([]Product, error) {
	return q.listProducts(ctx, listProductsWithImages)
}

const setProductSortOrder = `-- name: SetProductSortOrder :one
UPDATE products SET sort_order = $2, updated_at = now()
WHERE id = $1
RETURNING ` + productColumns

type SetProductSortOrderParams struct {
	ID        uuid.UUID   `json:"id"`
	SortOrder pgtype.Int4 `json:"sort_order"`
}

func (q *Queries) SetProductSortOrder(ctx context.Context, arg SetProductSortOrderParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, setProductSortOrder, arg.ID, arg.SortOrder))
}
