package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const storeColumns = `id, name, contact, address, phone, created_at, updated_at`

func scanStore(row interface{ Scan(...interface{}) error }) (Store, error) {
	var i Store
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Contact,
		&i.Address,
		&i.Phone,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listStores = `-- name: ListStores :many
SELECT ` + storeColumns + ` FROM stores
ORDER BY name ASC
`

func (q *Queries) ListStores(ctx context.Context) ([]Store, error) {
	rows, err := q.db.Query(ctx, listStores)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Store{}
	for rows.Next() {
		i, err := scanStore(rows)
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

const getStore = `-- name: GetStore :one
SELECT ` + storeColumns + ` FROM stores
WHERE id = $1
`

func (q *Queries) GetStore(ctx context.Context, id uuid.UUID) (Store, error) {
	return scanStore(q.db.QueryRow(ctx, getStore, id))
}

const createStore = `-- name: CreateStore :one
INSERT INTO stores (name, contact, address, phone)
VALUES ($1, $2, $3, $4)
RETURNING ` + storeColumns

type CreateStoreParams struct {
	Name    string      `json:"name"`
	Contact pgtype.Text `json:"contact"`
	Address string      `json:"address"`
	Phone   pgtype.Text `json:"phone"`
}

func (q *Queries) CreateStore(ctx context.Context, arg CreateStoreParams) (Store, error) {
	return scanStore(q.db.QueryRow(ctx, createStore,
		arg.Name,
		arg.Contact,
		arg.Address,
		arg.Phone,
	))
}

const deleteAllStores = `-- name: DeleteAllStores :execrows
DELETE FROM stores
`

func (q *Queries) DeleteAllStores(ctx context.Context) (int64, error) {
	result, err := q.db.Exec(ctx, deleteAllStores)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
