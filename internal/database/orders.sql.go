package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, customer_id, order_date, delivery_date, status, retrieval_method, payment_method, subtotal_cents, delivery_fee_cents, total_cents, address, customizations, payment_session_id, created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.CustomerID,
		&i.OrderDate,
		&i.DeliveryDate,
		&i.Status,
		&i.RetrievalMethod,
		&i.PaymentMethod,
		&i.SubtotalCents,
		&i.DeliveryFeeCents,
		&i.TotalCents,
		&i.Address,
		&i.Customizations,
		&i.PaymentSessionID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
    customer_id, delivery_date, status, retrieval_method, payment_method,
    subtotal_cents, delivery_fee_cents, total_cents, address, customizations, payment_session_id
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	CustomerID       uuid.UUID   `json:"customer_id"`
	DeliveryDate     pgtype.Date `json:"delivery_date"`
	Status           string      `json:"status"`
	RetrievalMethod  string      `json:"retrieval_method"`
	PaymentMethod    string      `json:"payment_method"`
	SubtotalCents    int64       `json:"subtotal_cents"`
	DeliveryFeeCents int64       `json:"delivery_fee_cents"`
	TotalCents       int64       `json:"total_cents"`
	Address          []byte      `json:"address"`
	Customizations   pgtype.Text `json:"customizations"`
	PaymentSessionID pgtype.Text `json:"payment_session_id"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.CustomerID,
		arg.DeliveryDate,
		arg.Status,
		arg.RetrievalMethod,
		arg.PaymentMethod,
		arg.SubtotalCents,
		arg.DeliveryFeeCents,
		arg.TotalCents,
		arg.Address,
		arg.Customizations,
		arg.PaymentSessionID,
	))
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderByPaymentSession = `-- name: GetOrderByPaymentSession :one
SELECT ` + orderColumns + ` FROM orders WHERE payment_session_id = $1
`

func (q *Queries) GetOrderByPaymentSession(ctx context.Context, paymentSessionID string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByPaymentSession, paymentSessionID))
}

// ListOrdersRow is an order joined with the contact fields of its customer.
type ListOrdersRow struct {
	ID               uuid.UUID   `json:"id"`
	CustomerID       uuid.UUID   `json:"customer_id"`
	OrderDate        time.Time   `json:"order_date"`
	DeliveryDate     pgtype.Date `json:"delivery_date"`
	Status           string      `json:"status"`
	RetrievalMethod  string      `json:"retrieval_method"`
	PaymentMethod    string      `json:"payment_method"`
	SubtotalCents    int64       `json:"subtotal_cents"`
	DeliveryFeeCents int64       `json:"delivery_fee_cents"`
	TotalCents       int64       `json:"total_cents"`
	Address          []byte      `json:"address"`
	Customizations   pgtype.Text `json:"customizations"`
	PaymentSessionID pgtype.Text `json:"payment_session_id"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	CustomerName     string      `json:"customer_name"`
	CustomerEmail    pgtype.Text `json:"customer_email"`
	CustomerPhone    pgtype.Text `json:"customer_phone"`
}

const listOrdersSelect = `
SELECT o.id, o.customer_id, o.order_date, o.delivery_date, o.status, o.retrieval_method,
       o.payment_method, o.subtotal_cents, o.delivery_fee_cents, o.total_cents, o.address,
       o.customizations, o.payment_session_id, o.created_at, o.updated_at,
       c.name, c.email, c.phone
FROM orders o
JOIN customers c ON c.id = o.customer_id
WHERE ($1::text IS NULL OR o.status = $1)
  AND ($2::text IS NULL
       OR c.name ILIKE '%' || $2 || '%'
       OR c.email ILIKE '%' || $2 || '%'
       OR c.phone ILIKE '%' || $2 || '%')
  AND ($3::date IS NULL OR o.delivery_date >= $3)
  AND ($4::date IS NULL OR o.delivery_date <= $4)
ORDER BY o.order_date DESC`

const listOrders = `-- name: ListOrders :many` + listOrdersSelect + `
LIMIT $5 OFFSET $6
`

type ListOrdersParams struct {
	Status   pgtype.Text `json:"status"`
	Search   pgtype.Text `json:"search"`
	FromDate pgtype.Date `json:"from_date"`
	ToDate   pgtype.Date `json:"to_date"`
	Limit    int32       `json:"limit"`
	Offset   int32       `json:"offset"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]ListOrdersRow, error) {
	return q.listOrderRows(ctx, listOrders,
		arg.Status,
		arg.Search,
		arg.FromDate,
		arg.ToDate,
		arg.Limit,
		arg.Offset,
	)
}

const listOrdersForExport = `-- name: ListOrdersForExport :many` + listOrdersSelect + `
`

type ListOrdersForExportParams struct {
	Status   pgtype.Text `json:"status"`
	Search   pgtype.Text `json:"search"`
	FromDate pgtype.Date `json:"from_date"`
	ToDate   pgtype.Date `json:"to_date"`
}

func (q *Queries) ListOrdersForExport(ctx context.Context, arg ListOrdersForExportParams) ([]ListOrdersRow, error) {
	return q.listOrderRows(ctx, listOrdersForExport,
		arg.Status,
		arg.Search,
		arg.FromDate,
		arg.ToDate,
	)
}

func (q *Queries) listOrderRows(ctx context.Context, query string, args ...interface{}) ([]ListOrdersRow, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListOrdersRow{}
	for rows.Next() {
		var i ListOrdersRow
		if err := rows.Scan(
			&i.ID,
			&i.CustomerID,
			&i.OrderDate,
			&i.DeliveryDate,
			&i.Status,
			&i.RetrievalMethod,
			&i.PaymentMethod,
			&i.SubtotalCents,
			&i.DeliveryFeeCents,
			&i.TotalCents,
			&i.Address,
			&i.Customizations,
			&i.PaymentSessionID,
			&i.CreatedAt,
			&i.UpdatedAt,
			&i.CustomerName,
			&i.CustomerEmail,
			&i.CustomerPhone,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID            uuid.UUID `json:"id"`
	Status        string    `json:"status"`
	CurrentStatus string    `json:"current_status"`
}

// UpdateOrderStatus only applies when the stored status still equals
// CurrentStatus; a concurrent change yields pgx.ErrNoRows.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.CurrentStatus))
}

const updateOrderDetails = `-- name: UpdateOrderDetails :one
UPDATE orders
SET delivery_date = $2, retrieval_method = $3, payment_method = $4,
    address = $5, customizations = $6, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderDetailsParams struct {
	ID              uuid.UUID   `json:"id"`
	DeliveryDate    pgtype.Date `json:"delivery_date"`
	RetrievalMethod string      `json:"retrieval_method"`
	PaymentMethod   string      `json:"payment_method"`
	Address         []byte      `json:"address"`
	Customizations  pgtype.Text `json:"customizations"`
}

func (q *Queries) UpdateOrderDetails(ctx context.Context, arg UpdateOrderDetailsParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderDetails,
		arg.ID,
		arg.DeliveryDate,
		arg.RetrievalMethod,
		arg.PaymentMethod,
		arg.Address,
		arg.Customizations,
	))
}

const updateOrderTotals = `-- name: UpdateOrderTotals :one
UPDATE orders
SET subtotal_cents = $2, delivery_fee_cents = $3, total_cents = $4, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderTotalsParams struct {
	ID               uuid.UUID `json:"id"`
	SubtotalCents    int64     `json:"subtotal_cents"`
	DeliveryFeeCents int64     `json:"delivery_fee_cents"`
	TotalCents       int64     `json:"total_cents"`
}

func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderTotals,
		arg.ID,
		arg.SubtotalCents,
		arg.DeliveryFeeCents,
		arg.TotalCents,
	))
}

const deleteOrder = `-- name: DeleteOrder :one
DELETE FROM orders WHERE id = $1
RETURNING id
`

func (q *Queries) DeleteOrder(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, deleteOrder, id)
	var out uuid.UUID
	err := row.Scan(&out)
	return out, err
}
