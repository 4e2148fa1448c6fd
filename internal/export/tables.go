package export

import (
	"time"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
)

const usDateLayout = "01/02/2006"

var customerHeaders = []string{
	"Customer ID", "Name", "Email", "Phone", "Join Date", "Created At",
}

var orderHeaders = []string{
	"Order ID", "Customer Name", "Customer Email", "Customer Phone",
	"Order Date", "Delivery Date", "Status", "Retrieval Method", "Payment Method",
	"Subtotal", "Delivery Fee", "Total", "Address", "Customizations", "Created At",
}

// Customers builds the customer directory export.
func Customers(customers []database.Customer) Table {
	t := Table{Headers: customerHeaders, Rows: make([][]string, 0, len(customers))}
	for _, c := range customers {
		t.Rows = append(t.Rows, []string{
			c.ID.String(),
			c.Name,
			c.Email.String,
			c.Phone.String,
			usDate(c.JoinDate),
			isoTime(c.CreatedAt),
		})
	}
	return t
}

// Orders builds the order export. Address is the stored JSON object.
func Orders(rows []database.ListOrdersRow) Table {
	t := Table{Headers: orderHeaders, Rows: make([][]string, 0, len(rows))}
	for _, o := range rows {
		t.Rows = append(t.Rows, []string{
			o.ID.String(),
			o.CustomerName,
			o.CustomerEmail.String,
			o.CustomerPhone.String,
			o.OrderDate.UTC().Format(usDateLayout),
			usDate(o.DeliveryDate),
			Title(o.Status),
			Title(o.RetrievalMethod),
			Title(o.PaymentMethod),
			database.FormatCents(o.SubtotalCents),
			database.FormatCents(o.DeliveryFeeCents),
			database.FormatCents(o.TotalCents),
			string(o.Address),
			o.Customizations.String,
			isoTime(o.CreatedAt),
		})
	}
	return t
}

func usDate(d pgtype.Date) string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(usDateLayout)
}

func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
