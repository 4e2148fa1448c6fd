package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const customerColumns = `id, name, email, phone, join_date, created_at, updated_at`

func scanCustomer(row interface{ Scan(...interface{}) error }) (Customer, error) {
	var i Customer
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Email,
		&i.Phone,
		&i.JoinDate,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func (q *Queries) listCustomers(ctx context.Context, query string, args ...interface{}) ([]Customer, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Customer{}
	for rows.Next() {
		i, err := scanCustomer(rows)
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

const listCustomers = `-- name: ListCustomers :many
SELECT ` + customerColumns + ` FROM customers
WHERE ($1::text IS NULL
       OR name ILIKE '%' || $1 || '%'
       OR email ILIKE '%' || $1 || '%'
       OR phone ILIKE '%' || $1 || '%')
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

type ListCustomersParams struct {
	Search pgtype.Text `json:"search"`
	Limit  int32       `json:"limit"`
	Offset int32       `json:"offset"`
}

func (q *Queries) ListCustomers(ctx context.Context, arg ListCustomersParams) ([]Customer, error) {
	return q.listCustomers(ctx, listCustomers, arg.Search, arg.Limit, arg.Offset)
}

const listAllCustomers = `-- name: ListAllCustomers :many
SELECT ` + customerColumns + ` FROM customers
ORDER BY created_at DESC
`

func (q *Queries) ListAllCustomers(ctx context.Context) ([]Customer, error) {
	return q.listCustomers(ctx, listAllCustomers)
}

const getCustomer = `-- name: GetCustomer :one
SELECT ` + customerColumns + ` FROM customers WHERE id = $1
`

func (q *Queries) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, getCustomer, id))
}

const getCustomerByEmail = `-- name: GetCustomerByEmail :one
SELECT ` + customerColumns + ` FROM customers
WHERE lower(email) = lower($1)
ORDER BY created_at ASC
LIMIT 1
`

func (q *Queries) GetCustomerByEmail(ctx context.Context, email string) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, getCustomerByEmail, email))
}

const getCustomerByPhone = `-- name: GetCustomerByPhone :one
SELECT ` + customerColumns + ` FROM customers
WHERE phone = $1
ORDER BY created_at ASC
LIMIT 1
`

func (q *Queries) GetCustomerByPhone(ctx context.Context, phone string) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, getCustomerByPhone, phone))
}

const createCustomer = `-- name: CreateCustomer :one
INSERT INTO customers (name, email, phone)
VALUES ($1, $2, $3)
RETURNING ` + customerColumns

type CreateCustomerParams struct {
	Name  string      `json:"name"`
	Email pgtype.Text `json:"email"`
	Phone pgtype.Text `json:"phone"`
}

func (q *Queries) CreateCustomer(ctx context.Context, arg CreateCustomerParams) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, createCustomer, arg.Name, arg.Email, arg.Phone))
}

const updateCustomer = `-- name: UpdateCustomer :one
UPDATE customers SET name = $2, email = $3, phone = $4, updated_at = now()
WHERE id = $1
RETURNING ` + customerColumns

type UpdateCustomerParams struct {
	ID    uuid.UUID   `json:"id"`
	Name  string      `json:"name"`
	Email pgtype.Text `json:"email"`
	Phone pgtype.Text `json:"phone"`
}

func (q *Queries) UpdateCustomer(ctx context.Context, arg UpdateCustomerParams) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, updateCustomer, arg.ID, arg.Name, arg.Email, arg.Phone))
}

const deleteCustomer = `-- name: DeleteCustomer :one
DELETE FROM customers WHERE id = $1
RETURNING id
`

func (q *Queries) DeleteCustomer(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, deleteCustomer, id)
	var out uuid.UUID
	err := row.Scan(&out)
	return out, err
}

const countOrdersByCustomer = `-- name: CountOrdersByCustomer :one
SELECT COUNT(*) FROM orders WHERE customer_id = $1
`

func (q *Queries) CountOrdersByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countOrdersByCustomer, customerID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const getCustomerStats = `-- name: GetCustomerStats :one
SELECT
    COUNT(*)::int8 AS total_orders,
    COALESCE(SUM(total_cents) FILTER (WHERE status NOT IN ('cancelled', 'refund_due')), 0)::int8 AS total_spent_cents,
    MAX(order_date) AS last_order_date
FROM orders
WHERE customer_id = $1
`

type GetCustomerStatsRow struct {
	TotalOrders     int64              `json:"total_orders"`
	TotalSpentCents int64              `json:"total_spent_cents"`
	LastOrderDate   pgtype.Timestamptz `json:"last_order_date"`
}

func (q *Queries) GetCustomerStats(ctx context.Context, customerID uuid.UUID) (GetCustomerStatsRow, error) {
	row := q.db.QueryRow(ctx, getCustomerStats, customerID)
	var i GetCustomerStatsRow
	err := row.Scan(&i.TotalOrders, &i.TotalSpentCents, &i.LastOrderDate)
	return i, err
}

const listCustomerOrders = `-- name: ListCustomerOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE customer_id = $1
ORDER BY order_date DESC
LIMIT $2 OFFSET $3
`

type ListCustomerOrdersParams struct {
	CustomerID uuid.UUID `json:"customer_id"`
	Limit      int32     `json:"limit"`
	Offset     int32     `json:"offset"`
}

func (q *Queries) ListCustomerOrders(ctx context.Context, arg ListCustomerOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listCustomerOrders, arg.CustomerID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
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
