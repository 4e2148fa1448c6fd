package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr   error
	rollbackErr error
	committed   bool
	rolledBack  bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr == nil {
		m.committed = true
	}
	return m.commitErr
}
func (m *mockTx) Rollback(ctx context.Context) error {
	if !m.committed {
		m.rolledBack = true
	}
	return m.rollbackErr
}
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner and hands out a fresh mockTx per call.
type mockTxBeginner struct {
	err       error
	commitErr error
	txs       []*mockTx
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.err != nil {
		return nil, m.err
	}
	tx := &mockTx{commitErr: m.commitErr}
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *mockTxBeginner) last() *mockTx {
	if len(m.txs) == 0 {
		return nil
	}
	return m.txs[len(m.txs)-1]
}

// fakeStore is an in-memory implementation of the checkout, order and
// catalog stores. Writes are applied immediately; tests assert on the
// mockTx to check commit or rollback. The *Err fields inject failures.
type fakeStore struct {
	products  map[uuid.UUID]database.Product
	customers []database.Customer
	orders    map[uuid.UUID]database.Order
	items     []database.OrderItem
	blocks    map[string]database.ScheduleBlock

	writes int

	createOrderErr    error
	createItemErr     error
	createItemFailAt  int
	productsErr       error
	updateStatusErr   error
	setSortOrderCalls []database.SetProductSortOrderParams
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products:         make(map[uuid.UUID]database.Product),
		orders:           make(map[uuid.UUID]database.Order),
		blocks:           make(map[string]database.ScheduleBlock),
		createItemFailAt: -1,
	}
}

func (f *fakeStore) addProduct(name string, priceCents int64, active bool) database.Product {
	p := database.Product{
		ID:          uuid.New(),
		Name:        name,
		Description: pgtype.Text{String: name + " description", Valid: true},
		PriceCents:  priceCents,
		IsActive:    active,
		SortOrder:   pgtype.Int4{Int32: int32(len(f.products) + 1), Valid: true},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	f.products[p.ID] = p
	return p
}

func (f *fakeStore) GetActiveProductsByIDs(_ context.Context, ids []uuid.UUID) ([]database.Product, error) {
	if f.productsErr != nil {
		return nil, f.productsErr
	}
	var out []database.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetScheduleBlockByDate(_ context.Context, d pgtype.Date) (database.ScheduleBlock, error) {
	b, ok := f.blocks[database.FormatDate(d)]
	if !ok {
		return database.ScheduleBlock{}, pgx.ErrNoRows
	}
	return b, nil
}

func (f *fakeStore) GetOrderByPaymentSession(_ context.Context, sessionID string) (database.Order, error) {
	for _, o := range f.orders {
		if o.PaymentSessionID.Valid && o.PaymentSessionID.String == sessionID {
			return o, nil
		}
	}
	return database.Order{}, pgx.ErrNoRows
}

func (f *fakeStore) GetCustomerByEmail(_ context.Context, email string) (database.Customer, error) {
	for _, c := range f.customers {
		if c.Email.Valid && strings.EqualFold(c.Email.String, email) {
			return c, nil
		}
	}
	return database.Customer{}, pgx.ErrNoRows
}

func (f *fakeStore) GetCustomerByPhone(_ context.Context, phone string) (database.Customer, error) {
	for _, c := range f.customers {
		if c.Phone.Valid && c.Phone.String == phone {
			return c, nil
		}
	}
	return database.Customer{}, pgx.ErrNoRows
}

func (f *fakeStore) CreateCustomer(_ context.Context, arg database.CreateCustomerParams) (database.Customer, error) {
	f.writes++
	c := database.Customer{
		ID:        uuid.New(),
		Name:      arg.Name,
		Email:     arg.Email,
		Phone:     arg.Phone,
		JoinDate:  pgtype.Date{Time: time.Now(), Valid: true},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.customers = append(f.customers, c)
	return c, nil
}

func (f *fakeStore) CreateOrder(_ context.Context, arg database.CreateOrderParams) (database.Order, error) {
	if f.createOrderErr != nil {
		return database.Order{}, f.createOrderErr
	}
	f.writes++
	o := database.Order{
		ID:               uuid.New(),
		CustomerID:       arg.CustomerID,
		OrderDate:        time.Now(),
		DeliveryDate:     arg.DeliveryDate,
		Status:           arg.Status,
		RetrievalMethod:  arg.RetrievalMethod,
		PaymentMethod:    arg.PaymentMethod,
		SubtotalCents:    arg.SubtotalCents,
		DeliveryFeeCents: arg.DeliveryFeeCents,
		TotalCents:       arg.TotalCents,
		Address:          arg.Address,
		Customizations:   arg.Customizations,
		PaymentSessionID: arg.PaymentSessionID,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeStore) CreateOrderItem(_ context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	if f.createItemErr != nil && (f.createItemFailAt < 0 || f.createItemFailAt == f.countItems(arg.OrderID)) {
		return database.OrderItem{}, f.createItemErr
	}
	f.writes++
	item := database.OrderItem{
		ID:              uuid.New(),
		OrderID:         arg.OrderID,
		ProductID:       arg.ProductID,
		Quantity:        arg.Quantity,
		UnitPriceCents:  arg.UnitPriceCents,
		ProductSnapshot: arg.ProductSnapshot,
		ItemNotes:       arg.ItemNotes,
		CreatedAt:       time.Now(),
	}
	f.items = append(f.items, item)
	return item, nil
}

func (f *fakeStore) countItems(orderID uuid.UUID) int {
	n := 0
	for _, it := range f.items {
		if it.OrderID == orderID {
			n++
		}
	}
	return n
}

func (f *fakeStore) GetOrder(_ context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (f *fakeStore) ListOrderItemsByOrder(_ context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	var out []database.OrderItem
	for _, it := range f.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateOrderDetails(_ context.Context, arg database.UpdateOrderDetailsParams) (database.Order, error) {
	o, ok := f.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	f.writes++
	o.DeliveryDate = arg.DeliveryDate
	o.RetrievalMethod = arg.RetrievalMethod
	o.PaymentMethod = arg.PaymentMethod
	o.Address = arg.Address
	o.Customizations = arg.Customizations
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeStore) UpdateOrderTotals(_ context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error) {
	o, ok := f.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	f.writes++
	o.SubtotalCents = arg.SubtotalCents
	o.DeliveryFeeCents = arg.DeliveryFeeCents
	o.TotalCents = arg.TotalCents
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	if f.updateStatusErr != nil {
		return database.Order{}, f.updateStatusErr
	}
	o, ok := f.orders[arg.ID]
	if !ok || o.Status != arg.CurrentStatus {
		return database.Order{}, pgx.ErrNoRows
	}
	f.writes++
	o.Status = arg.Status
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeStore) UpdateOrderItem(_ context.Context, arg database.UpdateOrderItemParams) (database.OrderItem, error) {
	for i, it := range f.items {
		if it.ID == arg.ID && it.OrderID == arg.OrderID {
			f.writes++
			it.Quantity = arg.Quantity
			it.ItemNotes = arg.ItemNotes
			f.items[i] = it
			return it, nil
		}
	}
	return database.OrderItem{}, pgx.ErrNoRows
}

func (f *fakeStore) DeleteOrderItem(_ context.Context, arg database.DeleteOrderItemParams) (uuid.UUID, error) {
	for i, it := range f.items {
		if it.ID == arg.ID && it.OrderID == arg.OrderID {
			f.writes++
			f.items = append(f.items[:i], f.items[i+1:]...)
			return it.ID, nil
		}
	}
	return uuid.Nil, pgx.ErrNoRows
}

func (f *fakeStore) GetProduct(_ context.Context, id uuid.UUID) (database.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return database.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) GetMaxProductSortOrder(_ context.Context) (int32, error) {
	var highest int32
	for _, p := range f.products {
		if p.SortOrder.Valid && p.SortOrder.Int32 > highest {
			highest = p.SortOrder.Int32
		}
	}
	return highest, nil
}

func (f *fakeStore) CreateProduct(_ context.Context, arg database.CreateProductParams) (database.Product, error) {
	f.writes++
	p := database.Product{
		ID:          uuid.New(),
		Name:        arg.Name,
		Description: arg.Description,
		ImagePath:   arg.ImagePath,
		PriceCents:  arg.PriceCents,
		IsActive:    arg.IsActive,
		Featured:    arg.Featured,
		SortOrder:   arg.SortOrder,
	}
	f.products[p.ID] = p
	return p, nil
}

// SetProductSortOrder enforces the unique index on sort_order.
func (f *fakeStore) SetProductSortOrder(_ context.Context, arg database.SetProductSortOrderParams) (database.Product, error) {
	f.setSortOrderCalls = append(f.setSortOrderCalls, arg)
	p, ok := f.products[arg.ID]
	if !ok {
		return database.Product{}, pgx.ErrNoRows
	}
	if arg.SortOrder.Valid {
		for _, other := range f.products {
			if other.ID != arg.ID && other.SortOrder.Valid && other.SortOrder.Int32 == arg.SortOrder.Int32 {
				return database.Product{}, &pgconn.PgError{Code: "23505", ConstraintName: sortOrderConstraint}
			}
		}
	}
	f.writes++
	p.SortOrder = arg.SortOrder
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeStore) sortedProducts() []database.Product {
	out := make([]database.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder.Int32 < out[j].SortOrder.Int32 })
	return out
}

// mockNotifier records published events.
type mockNotifier struct {
	events []string
	orders []database.Order
}

func (m *mockNotifier) NotifyOrder(eventType string, order database.Order) {
	m.events = append(m.events, eventType)
	m.orders = append(m.orders, order)
}
