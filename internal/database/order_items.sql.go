package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderItemColumns = `id, order_id, product_id, quantity, unit_price_cents, product_snapshot, item_notes, created_at`

func scanOrderItem(row interface{ Scan(...interface{}) error }) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.ProductID,
		&i.Quantity,
		&i.UnitPriceCents,
		&i.ProductSnapshot,
		&i.ItemNotes,
		&i.CreatedAt,
	)
	return i, err
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (order_id, product_id, quantity, unit_price_cents, product_snapshot, item_notes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + orderItemColumns

type CreateOrderItemParams struct {
	OrderID         uuid.UUID   `json:"order_id"`
	ProductID       uuid.UUID   `json:"product_id"`
	Quantity        int32       `json:"quantity"`
	UnitPriceCents  int64       `json:"unit_price_cents"`
	ProductSnapshot []byte      `json:"product_snapshot"`
	ItemNotes       pgtype.Text `json:"item_notes"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.ProductID,
		arg.Quantity,
		arg.UnitPriceCents,
		arg.ProductSnapshot,
		arg.ItemNotes,
	))
}

const listOrderItemsByOrder = `-- name: ListOrderItemsByOrder :many
SELECT ` + orderItemColumns + ` FROM order_items
WHERE order_id = $1
ORDER BY created_at ASC, id ASC
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		i, err := scanOrderItem(rows)
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

const updateOrderItem = `-- name: UpdateOrderItem :one
UPDATE order_items SET quantity = $3, item_notes = $4
WHERE id = $1 AND order_id = $2
RETURNING ` + orderItemColumns

type UpdateOrderItemParams struct {
	ID        uuid.UUID   `json:"id"`
	OrderID   uuid.UUID   `json:"order_id"`
	Quantity  int32       `json:"quantity"`
	ItemNotes pgtype.Text `json:"item_notes"`
}

// UpdateOrderItem never touches unit_price_cents; the captured price is
// immutable once the item exists.
func (q *Queries) UpdateOrderItem(ctx context.Context, arg UpdateOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, updateOrderItem, arg.ID, arg.OrderID, arg.Quantity, arg.ItemNotes))
}

const deleteOrderItem = `-- name: DeleteOrderItem :one
DELETE FROM order_items WHERE id = $1 AND order_id = $2
RETURNING id
`

type DeleteOrderItemParams struct {
	ID      uuid.UUID `json:"id"`
	OrderID uuid.UUID `json:"order_id"`
}

func (q *Queries) DeleteOrderItem(ctx context.Context, arg DeleteOrderItemParams) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, deleteOrderItem, arg.ID, arg.OrderID)
	var out uuid.UUID
	err := row.Scan(&out)
	return out, err
}
