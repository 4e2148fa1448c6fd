package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Customer struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Email     pgtype.Text `json:"email"`
	Phone     pgtype.Text `json:"phone"`
	JoinDate  pgtype.Date `json:"join_date"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type Order struct {
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
}

type OrderItem struct {
	ID              uuid.UUID   `json:"id"`
	OrderID         uuid.UUID   `json:"order_id"`
	ProductID       uuid.UUID   `json:"product_id"`
	Quantity        int32       `json:"quantity"`
	UnitPriceCents  int64       `json:"unit_price_cents"`
	ProductSnapshot []byte      `json:"product_snapshot"`
	ItemNotes       pgtype.Text `json:"item_notes"`
	CreatedAt       time.Time   `json:"created_at"`
}

type Product struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description pgtype.Text `json:"description"`
	ImagePath   pgtype.Text `json:"image_path"`
	PriceCents  int64       `json:"price_cents"`
	IsActive    bool        `json:"is_active"`
	Featured    bool        `json:"featured"`
	SortOrder   pgtype.Int4 `json:"sort_order"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type ScheduleBlock struct {
	ID              uuid.UUID   `json:"id"`
	BlockedDate     pgtype.Date `json:"blocked_date"`
	DeliveryBlocked bool        `json:"delivery_blocked"`
	PickupBlocked   bool        `json:"pickup_blocked"`
	Reason          pgtype.Text `json:"reason"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"hashed_password"`
	FullName       string    `json:"full_name"`
	Role           string    `json:"role"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Store struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Contact   pgtype.Text `json:"contact"`
	Address   string      `json:"address"`
	Phone     pgtype.Text `json:"phone"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
