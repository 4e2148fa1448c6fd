package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Errors returned by the checkout service. All of them are validation
// failures and are reported before any write.
var (
	ErrCustomerNameRequired   = errors.New("customer name is required")
	ErrContactRequired        = errors.New("either email or phone is required")
	ErrDeliveryDateRequired   = errors.New("delivery date is required")
	ErrInvalidDeliveryDate    = errors.New("delivery date must be YYYY-MM-DD")
	ErrAddressRequired        = errors.New("address is required for delivery orders")
	ErrEmptyItems             = errors.New("at least one item is required")
	ErrInvalidItem            = errors.New("invalid item data")
	ErrInvalidRetrievalMethod = errors.New("invalid retrieval_method")
	ErrInvalidPaymentMethod   = errors.New("invalid payment_method")
	ErrProductUnavailable     = errors.New("one or more products not found or inactive")
	ErrDateUnavailable        = errors.New("selected date is not available for this retrieval method")
)

const paymentSessionConstraint = "orders_payment_session_id_key"

var errSessionConflict = errors.New("payment session already materialized")

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CheckoutStore defines the DB methods needed to turn a request into an order.
// Satisfied by *database.Queries (and its WithTx variant).
type CheckoutStore interface {
	GetActiveProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]database.Product, error)
	GetScheduleBlockByDate(ctx context.Context, blockedDate pgtype.Date) (database.ScheduleBlock, error)
	GetOrderByPaymentSession(ctx context.Context, paymentSessionID string) (database.Order, error)
	GetCustomerByEmail(ctx context.Context, email string) (database.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (database.Customer, error)
	CreateCustomer(ctx context.Context, arg database.CreateCustomerParams) (database.Customer, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

// NewCheckoutStore creates a CheckoutStore from a DBTX (pool or tx).
type NewCheckoutStore func(db database.DBTX) CheckoutStore

// Notifier receives order lifecycle events after they are committed.
type Notifier interface {
	NotifyOrder(eventType string, order database.Order)
}

// CheckoutCustomer identifies the buyer. At least one of Email or Phone.
type CheckoutCustomer struct {
	Name  string
	Email string
	Phone string
}

// CheckoutOrder carries the order level fields of a request.
type CheckoutOrder struct {
	DeliveryDate    string // YYYY-MM-DD
	RetrievalMethod string
	PaymentMethod   string
	Address         *database.Address
	Customizations  string
}

// CheckoutItem is a requested line. Any client price is ignored.
type CheckoutItem struct {
	ProductID string
	Quantity  int32
	Notes     string
}

// CheckoutRequest is the input of Checkout and Quote.
// PaymentSessionID is set when the request is replayed from a completed
// hosted payment session; it makes the replay idempotent.
type CheckoutRequest struct {
	Customer         CheckoutCustomer
	Order            CheckoutOrder
	Items            []CheckoutItem
	PaymentSessionID string
}

// PricedLine is a request line re-priced from the catalog.
type PricedLine struct {
	Product  database.Product
	Quantity int32
	Notes    string
}

// LineTotalCents is the unit price times the quantity.
func (l PricedLine) LineTotalCents() int64 {
	return l.Product.PriceCents * int64(l.Quantity)
}

// Totals are always integer cents.
type Totals struct {
	SubtotalCents    int64 `json:"subtotal_cents"`
	DeliveryFeeCents int64 `json:"delivery_fee_cents"`
	TotalCents       int64 `json:"total_cents"`
}

// Quote is a validated, re-priced request that has not been persisted.
type Quote struct {
	Request      CheckoutRequest
	DeliveryDate pgtype.Date
	Lines        []PricedLine
	Totals       Totals
}

// CheckoutResult is the outcome of a successful checkout. Duplicate is set
// when the payment session had already produced an order; only Order is
// populated in that case.
type CheckoutResult struct {
	Order     database.Order
	Customer  database.Customer
	Items     []database.OrderItem
	Totals    Totals
	Duplicate bool
}

// CheckoutService validates, re-prices and persists storefront orders.
type CheckoutService struct {
	pool             TxBeginner
	newStore         NewCheckoutStore
	deliveryFeeCents int64
	notifier         Notifier
}

// NewCheckoutService creates a new CheckoutService. notifier may be nil.
func NewCheckoutService(pool TxBeginner, newStore NewCheckoutStore, deliveryFeeCents int64, notifier Notifier) *CheckoutService {
	return &CheckoutService{
		pool:             pool,
		newStore:         newStore,
		deliveryFeeCents: deliveryFeeCents,
		notifier:         notifier,
	}
}

// DeliveryFeeCents is the flat surcharge applied to delivery orders.
func (s *CheckoutService) DeliveryFeeCents() int64 {
	return s.deliveryFeeCents
}

// normalize trims free text and applies the pay-on-pickup default.
func normalize(req CheckoutRequest) CheckoutRequest {
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	req.Order.DeliveryDate = strings.TrimSpace(req.Order.DeliveryDate)
	req.Order.RetrievalMethod = strings.ToLower(strings.TrimSpace(req.Order.RetrievalMethod))
	req.Order.PaymentMethod = strings.ToLower(strings.TrimSpace(req.Order.PaymentMethod))
	if req.Order.PaymentMethod == "" {
		req.Order.PaymentMethod = enum.PaymentMethodPickup
	}
	req.Order.Customizations = strings.TrimSpace(req.Order.Customizations)
	if req.Order.RetrievalMethod != enum.RetrievalMethodDelivery {
		req.Order.Address = nil
	}
	req.PaymentSessionID = strings.TrimSpace(req.PaymentSessionID)
	return req
}

// ValidateCheckout checks a request without touching storage.
func ValidateCheckout(req CheckoutRequest) error {
	req = normalize(req)

	if req.Customer.Name == "" {
		return ErrCustomerNameRequired
	}
	if req.Customer.Email == "" && req.Customer.Phone == "" {
		return ErrContactRequired
	}
	if req.Order.DeliveryDate == "" {
		return ErrDeliveryDateRequired
	}
	if _, err := database.ParseDate(req.Order.DeliveryDate); err != nil {
		return ErrInvalidDeliveryDate
	}
	switch req.Order.RetrievalMethod {
	case enum.RetrievalMethodPickup, enum.RetrievalMethodDelivery:
	default:
		return ErrInvalidRetrievalMethod
	}
	if req.Order.RetrievalMethod == enum.RetrievalMethodDelivery && !isCompleteAddress(req.Order.Address) {
		return ErrAddressRequired
	}
	switch req.Order.PaymentMethod {
	case enum.PaymentMethodPickup, enum.PaymentMethodStripe:
	default:
		return ErrInvalidPaymentMethod
	}
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for i, item := range req.Items {
		if item.Quantity < 1 {
			return fmt.Errorf("item[%d]: %w", i, ErrInvalidItem)
		}
		if _, err := uuid.Parse(strings.TrimSpace(item.ProductID)); err != nil {
			return fmt.Errorf("item[%d]: %w", i, ErrInvalidItem)
		}
	}
	return nil
}

func isCompleteAddress(a *database.Address) bool {
	if a == nil {
		return false
	}
	return strings.TrimSpace(a.Line1) != "" && strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.State) != "" && strings.TrimSpace(a.Zip) != ""
}

// CalculateTotals sums the re-priced lines and applies the delivery fee
// only to delivery orders.
func CalculateTotals(lines []PricedLine, retrievalMethod string, deliveryFeeCents int64) Totals {
	var subtotal int64
	for _, l := range lines {
		subtotal += l.LineTotalCents()
	}
	var fee int64
	if retrievalMethod == enum.RetrievalMethodDelivery {
		fee = deliveryFeeCents
	}
	return Totals{
		SubtotalCents:    subtotal,
		DeliveryFeeCents: fee,
		TotalCents:       subtotal + fee,
	}
}

// IsBlocked reports whether block closes the given retrieval method.
func IsBlocked(block database.ScheduleBlock, retrievalMethod string) bool {
	switch retrievalMethod {
	case enum.RetrievalMethodDelivery:
		return block.DeliveryBlocked
	case enum.RetrievalMethodPickup:
		return block.PickupBlocked
	}
	return false
}

// Quote validates and re-prices a request without persisting anything.
// The hosted payment path uses it to build line items from trusted prices.
func (s *CheckoutService) Quote(ctx context.Context, req CheckoutRequest) (*Quote, error) {
	req = normalize(req)
	if err := ValidateCheckout(req); err != nil {
		return nil, validationErr(err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	return s.quote(ctx, s.newStore(tx), req)
}

// quote re-prices req against active catalog rows and checks the schedule.
// req must already be normalized and valid.
func (s *CheckoutService) quote(ctx context.Context, store CheckoutStore, req CheckoutRequest) (*Quote, error) {
	deliveryDate, err := database.ParseDate(req.Order.DeliveryDate)
	if err != nil {
		return nil, validationErr(ErrInvalidDeliveryDate)
	}

	// Distinct ids, first-seen order.
	ids := make([]uuid.UUID, 0, len(req.Items))
	seen := make(map[uuid.UUID]bool, len(req.Items))
	for _, item := range req.Items {
		id := uuid.MustParse(strings.TrimSpace(item.ProductID))
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	products, err := store.GetActiveProductsByIDs(ctx, ids)
	if err != nil {
		return nil, storageErr("load products", err)
	}
	if len(products) != len(ids) {
		return nil, validationErr(ErrProductUnavailable)
	}
	byID := make(map[uuid.UUID]database.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	block, err := store.GetScheduleBlockByDate(ctx, deliveryDate)
	switch {
	case err == nil:
		if IsBlocked(block, req.Order.RetrievalMethod) {
			return nil, validationErr(ErrDateUnavailable)
		}
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, storageErr("load schedule", err)
	}

	lines := make([]PricedLine, len(req.Items))
	for i, item := range req.Items {
		p, ok := byID[uuid.MustParse(strings.TrimSpace(item.ProductID))]
		if !ok {
			return nil, validationErr(ErrProductUnavailable)
		}
		lines[i] = PricedLine{Product: p, Quantity: item.Quantity, Notes: strings.TrimSpace(item.Notes)}
	}

	return &Quote{
		Request:      req,
		DeliveryDate: deliveryDate,
		Lines:        lines,
		Totals:       CalculateTotals(lines, req.Order.RetrievalMethod, s.deliveryFeeCents),
	}, nil
}

// Checkout validates, re-prices and persists an order with its items in a
// single transaction. Replaying a request with an already materialized
// PaymentSessionID returns the existing order with Duplicate set.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	req = normalize(req)
	if err := ValidateCheckout(req); err != nil {
		return nil, validationErr(err)
	}

	result, err := s.checkoutTx(ctx, req)
	if errors.Is(err, errSessionConflict) {
		// A concurrent delivery of the same event won the insert.
		return s.existingSessionOrder(ctx, req.PaymentSessionID)
	}
	if err != nil {
		return nil, err
	}

	if !result.Duplicate && s.notifier != nil {
		s.notifier.NotifyOrder(enum.EventOrderCreated, result.Order)
	}
	return result, nil
}

func (s *CheckoutService) checkoutTx(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if req.PaymentSessionID != "" {
		existing, err := store.GetOrderByPaymentSession(ctx, req.PaymentSessionID)
		if err == nil {
			return duplicateResult(existing), nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, storageErr("lookup payment session", err)
		}
	}

	q, err := s.quote(ctx, store, req)
	if err != nil {
		return nil, err
	}

	customer, err := resolveCustomer(ctx, store, req.Customer)
	if err != nil {
		return nil, err
	}

	address, err := database.EncodeAddress(req.Order.Address)
	if err != nil {
		return nil, &CheckoutError{Kind: KindUnknown, Op: "encode address", Err: err}
	}

	var sessionID pgtype.Text
	if req.PaymentSessionID != "" {
		sessionID = pgtype.Text{String: req.PaymentSessionID, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		CustomerID:       customer.ID,
		DeliveryDate:     q.DeliveryDate,
		Status:           enum.OrderStatusPending,
		RetrievalMethod:  req.Order.RetrievalMethod,
		PaymentMethod:    req.Order.PaymentMethod,
		SubtotalCents:    q.Totals.SubtotalCents,
		DeliveryFeeCents: q.Totals.DeliveryFeeCents,
		TotalCents:       q.Totals.TotalCents,
		Address:          address,
		Customizations:   database.Text(req.Order.Customizations),
		PaymentSessionID: sessionID,
	})
	if err != nil {
		if req.PaymentSessionID != "" && isUniqueViolation(err, paymentSessionConstraint) {
			return nil, errSessionConflict
		}
		return nil, storageErr("create order", err)
	}

	items := make([]database.OrderItem, 0, len(q.Lines))
	for i, line := range q.Lines {
		snapshot, err := database.EncodeSnapshot(database.SnapshotOf(line.Product))
		if err != nil {
			return nil, &CheckoutError{Kind: KindUnknown, Op: "encode snapshot", Err: err}
		}
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:         order.ID,
			ProductID:       line.Product.ID,
			Quantity:        line.Quantity,
			UnitPriceCents:  line.Product.PriceCents,
			ProductSnapshot: snapshot,
			ItemNotes:       database.Text(line.Notes),
		})
		if err != nil {
			log.Printf("ERROR: checkout: order %s item[%d] insert failed, rolling back: %v", order.ID, i, err)
			return nil, &CheckoutError{
				Kind: KindUnknown,
				Op:   "create order items",
				Err:  fmt.Errorf("order %s item[%d]: %w", order.ID, i, err),
			}
		}
		items = append(items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("ERROR: checkout: commit order %s: %v", order.ID, err)
		return nil, &CheckoutError{Kind: KindUnknown, Op: "commit", Err: err}
	}

	return &CheckoutResult{
		Order:    order,
		Customer: customer,
		Items:    items,
		Totals:   q.Totals,
	}, nil
}

func (s *CheckoutService) existingSessionOrder(ctx context.Context, sessionID string) (*CheckoutResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	order, err := s.newStore(tx).GetOrderByPaymentSession(ctx, sessionID)
	if err != nil {
		return nil, storageErr("lookup payment session", err)
	}
	return duplicateResult(order), nil
}

func duplicateResult(order database.Order) *CheckoutResult {
	return &CheckoutResult{
		Order: order,
		Totals: Totals{
			SubtotalCents:    order.SubtotalCents,
			DeliveryFeeCents: order.DeliveryFeeCents,
			TotalCents:       order.TotalCents,
		},
		Duplicate: true,
	}
}

// resolveCustomer finds the customer by email, then by phone, and inserts a
// new one when neither matches. An existing customer is never modified.
func resolveCustomer(ctx context.Context, store CheckoutStore, c CheckoutCustomer) (database.Customer, error) {
	if c.Email != "" {
		existing, err := store.GetCustomerByEmail(ctx, c.Email)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return database.Customer{}, storageErr("lookup customer by email", err)
		}
	}
	if c.Phone != "" {
		existing, err := store.GetCustomerByPhone(ctx, c.Phone)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return database.Customer{}, storageErr("lookup customer by phone", err)
		}
	}

	created, err := store.CreateCustomer(ctx, database.CreateCustomerParams{
		Name:  c.Name,
		Email: database.Text(c.Email),
		Phone: database.Text(c.Phone),
	})
	if err != nil {
		return database.Customer{}, storageErr("create customer", err)
	}
	return created, nil
}
