package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Errors returned by the order service.
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderItemNotFound = errors.New("order item not found")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrStatusChanged     = errors.New("order status changed, please retry")
	ErrInvalidItemOp     = errors.New("invalid item operation")
)

const (
	ItemOpDelete = "delete"
	ItemOpUpsert = "upsert"
)

// OrderStore defines the DB methods needed to edit existing orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	GetActiveProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]database.Product, error)
	UpdateOrderDetails(ctx context.Context, arg database.UpdateOrderDetailsParams) (database.Order, error)
	UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	UpdateOrderItem(ctx context.Context, arg database.UpdateOrderItemParams) (database.OrderItem, error)
	DeleteOrderItem(ctx context.Context, arg database.DeleteOrderItemParams) (uuid.UUID, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// UpdateOrderRequest edits an order. Nil header fields are left unchanged.
type UpdateOrderRequest struct {
	OrderID         uuid.UUID
	DeliveryDate    *string
	RetrievalMethod *string
	PaymentMethod   *string
	Address         *database.Address
	Customizations  *string
	Items           []ItemOp
}

// ItemOp is one line edit. Upsert with an ID changes quantity and notes of
// an existing line and keeps its captured price; upsert without an ID adds
// a line priced from the active catalog.
type ItemOp struct {
	Op        string
	ID        string
	ProductID string
	Quantity  int32
	Notes     string
}

// OrderDetail is an order together with its current lines.
type OrderDetail struct {
	Order database.Order
	Items []database.OrderItem
}

// OrderService handles admin edits to existing orders.
type OrderService struct {
	pool             TxBeginner
	newStore         NewOrderStore
	deliveryFeeCents int64
	notifier         Notifier
}

// NewOrderService creates a new OrderService. notifier may be nil.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, deliveryFeeCents int64, notifier Notifier) *OrderService {
	return &OrderService{
		pool:             pool,
		newStore:         newStore,
		deliveryFeeCents: deliveryFeeCents,
		notifier:         notifier,
	}
}

// allowedTransitions defines valid status transitions.
// Key is current status, value is the set of statuses it can transition to.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPending:    {enum.OrderStatusProcessing, enum.OrderStatusCompleted, enum.OrderStatusCancelled},
	enum.OrderStatusProcessing: {enum.OrderStatusPending, enum.OrderStatusCompleted, enum.OrderStatusCancelled},
	enum.OrderStatusCompleted:  {enum.OrderStatusRefundDue},
	enum.OrderStatusCancelled:  {enum.OrderStatusPending, enum.OrderStatusRefundDue},
	enum.OrderStatusRefundDue:  {enum.OrderStatusCancelled, enum.OrderStatusCompleted},
}

// IsValidOrderStatus checks if the given status is a valid order status.
func IsValidOrderStatus(s string) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// ValidateStatusTransition checks if the transition from current to next is allowed.
func ValidateStatusTransition(current, next string) error {
	for _, s := range allowedTransitions[current] {
		if s == next {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, next)
}

// UpdateStatus moves an order to a new status. The write is conditional on
// the status read, so a concurrent change surfaces as ErrStatusChanged.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (database.Order, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !IsValidOrderStatus(status) {
		return database.Order{}, ErrInvalidStatus
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	current, err := store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	if current.Status == status {
		return current, nil
	}
	if err := ValidateStatusTransition(current.Status, status); err != nil {
		return database.Order{}, err
	}

	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:            orderID,
		Status:        status,
		CurrentStatus: current.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrStatusChanged
		}
		return database.Order{}, fmt.Errorf("update status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit: %w", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyOrder(enum.EventOrderUpdated, updated)
	}
	return updated, nil
}

// UpdateOrder applies header changes and item operations atomically and
// recomputes the totals from the stored lines.
func (s *OrderService) UpdateOrder(ctx context.Context, req UpdateOrderRequest) (*OrderDetail, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Load current state ---
	current, err := store.GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	// --- Merge and validate header ---
	details, err := s.mergeDetails(current, req)
	if err != nil {
		return nil, err
	}
	if _, err := store.UpdateOrderDetails(ctx, details); err != nil {
		return nil, fmt.Errorf("update order details: %w", err)
	}

	// --- Apply item operations ---
	if err := applyItemOps(ctx, store, req.OrderID, req.Items); err != nil {
		return nil, err
	}

	// --- Recompute totals from stored lines ---
	items, err := store.ListOrderItemsByOrder(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	var subtotal int64
	for _, item := range items {
		subtotal += item.UnitPriceCents * int64(item.Quantity)
	}
	var fee int64
	if details.RetrievalMethod == enum.RetrievalMethodDelivery {
		fee = s.deliveryFeeCents
		if current.RetrievalMethod == enum.RetrievalMethodDelivery {
			// Keep the fee the buyer was quoted.
			fee = current.DeliveryFeeCents
		}
	}

	order, err := store.UpdateOrderTotals(ctx, database.UpdateOrderTotalsParams{
		ID:               req.OrderID,
		SubtotalCents:    subtotal,
		DeliveryFeeCents: fee,
		TotalCents:       subtotal + fee,
	})
	if err != nil {
		return nil, fmt.Errorf("update order totals: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyOrder(enum.EventOrderUpdated, order)
	}
	return &OrderDetail{Order: order, Items: items}, nil
}

func (s *OrderService) mergeDetails(current database.Order, req UpdateOrderRequest) (database.UpdateOrderDetailsParams, error) {
	params := database.UpdateOrderDetailsParams{
		ID:              current.ID,
		DeliveryDate:    current.DeliveryDate,
		RetrievalMethod: current.RetrievalMethod,
		PaymentMethod:   current.PaymentMethod,
		Address:         current.Address,
		Customizations:  current.Customizations,
	}

	if req.DeliveryDate != nil {
		d, err := database.ParseDate(*req.DeliveryDate)
		if err != nil {
			return params, ErrInvalidDeliveryDate
		}
		params.DeliveryDate = d
	}
	if req.RetrievalMethod != nil {
		m := strings.ToLower(strings.TrimSpace(*req.RetrievalMethod))
		if m != enum.RetrievalMethodPickup && m != enum.RetrievalMethodDelivery {
			return params, ErrInvalidRetrievalMethod
		}
		params.RetrievalMethod = m
	}
	if req.PaymentMethod != nil {
		m := strings.ToLower(strings.TrimSpace(*req.PaymentMethod))
		if m != enum.PaymentMethodPickup && m != enum.PaymentMethodStripe {
			return params, ErrInvalidPaymentMethod
		}
		params.PaymentMethod = m
	}
	if req.Address != nil {
		raw, err := database.EncodeAddress(req.Address)
		if err != nil {
			return params, fmt.Errorf("encode address: %w", err)
		}
		params.Address = raw
	}
	if req.Customizations != nil {
		params.Customizations = database.Text(*req.Customizations)
	}

	if params.RetrievalMethod == enum.RetrievalMethodDelivery {
		addr, err := database.DecodeAddress(params.Address)
		if err != nil || !isCompleteAddress(addr) {
			return params, ErrAddressRequired
		}
	} else {
		params.Address = nil
	}
	return params, nil
}

func applyItemOps(ctx context.Context, store OrderStore, orderID uuid.UUID, ops []ItemOp) error {
	var newIDs []uuid.UUID
	for i, op := range ops {
		switch op.Op {
		case ItemOpDelete:
			if _, err := uuid.Parse(op.ID); err != nil {
				return fmt.Errorf("items[%d]: %w", i, ErrInvalidItemOp)
			}
		case ItemOpUpsert:
			if op.Quantity < 1 {
				return fmt.Errorf("items[%d]: %w", i, ErrInvalidItem)
			}
			if op.ID != "" {
				if _, err := uuid.Parse(op.ID); err != nil {
					return fmt.Errorf("items[%d]: %w", i, ErrInvalidItemOp)
				}
				continue
			}
			pid, err := uuid.Parse(op.ProductID)
			if err != nil {
				return fmt.Errorf("items[%d]: %w", i, ErrInvalidItem)
			}
			newIDs = append(newIDs, pid)
		default:
			return fmt.Errorf("items[%d]: %w", i, ErrInvalidItemOp)
		}
	}

	products := map[uuid.UUID]database.Product{}
	if len(newIDs) > 0 {
		distinct := uniqueIDs(newIDs)
		rows, err := store.GetActiveProductsByIDs(ctx, distinct)
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		if len(rows) != len(distinct) {
			return ErrProductUnavailable
		}
		for _, p := range rows {
			products[p.ID] = p
		}
	}

	for i, op := range ops {
		switch {
		case op.Op == ItemOpDelete:
			if _, err := store.DeleteOrderItem(ctx, database.DeleteOrderItemParams{
				ID:      uuid.MustParse(op.ID),
				OrderID: orderID,
			}); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("items[%d]: %w", i, ErrOrderItemNotFound)
				}
				return fmt.Errorf("items[%d]: delete: %w", i, err)
			}
		case op.ID != "":
			if _, err := store.UpdateOrderItem(ctx, database.UpdateOrderItemParams{
				ID:        uuid.MustParse(op.ID),
				OrderID:   orderID,
				Quantity:  op.Quantity,
				ItemNotes: database.Text(op.Notes),
			}); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("items[%d]: %w", i, ErrOrderItemNotFound)
				}
				return fmt.Errorf("items[%d]: update: %w", i, err)
			}
		default:
			p := products[uuid.MustParse(op.ProductID)]
			snapshot, err := database.EncodeSnapshot(database.SnapshotOf(p))
			if err != nil {
				return fmt.Errorf("items[%d]: encode snapshot: %w", i, err)
			}
			if _, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
				OrderID:         orderID,
				ProductID:       p.ID,
				Quantity:        op.Quantity,
				UnitPriceCents:  p.PriceCents,
				ProductSnapshot: snapshot,
				ItemNotes:       database.Text(op.Notes),
			}); err != nil {
				return fmt.Errorf("items[%d]: create: %w", i, err)
			}
		}
	}
	return nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
