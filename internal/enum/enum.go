package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefundDue  = "refund_due"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleAdmin = "ADMIN"
	UserRoleStaff = "STAFF"
)

const (
	RetrievalMethodPickup   = "pickup"
	RetrievalMethodDelivery = "delivery"
)

const (
	PaymentMethodPickup = "pickup"
	PaymentMethodStripe = "stripe"
)

// ── Group B: Configurable labels (no DB constraint) ──

const (
	EventOrderCreated = "order.created"
	EventOrderUpdated = "order.updated"
	EventOrderDeleted = "order.deleted"
)

const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"
)
