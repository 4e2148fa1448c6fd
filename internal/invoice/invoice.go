// Package invoice renders order invoices as HTML and, through a headless
// browser, as PDF. Invoices are built from stored rows only so they keep
// rendering after catalog entries change.
package invoice

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/enum"
)

//go:embed templates/invoice.gohtml
var templateFS embed.FS

const fallbackItemName = "Item"

// ErrPDFUnavailable is returned by PDF when no converter is configured.
var ErrPDFUnavailable = errors.New("pdf rendering not configured")

// PDFConverter turns a complete HTML document into PDF bytes.
type PDFConverter interface {
	Convert(ctx context.Context, html []byte) ([]byte, error)
}

// Line is one rendered order item.
type Line struct {
	Name        string
	Description string
	Notes       string
	Quantity    int32
	UnitPrice   string
	LineTotal   string
}

// Data is everything the template needs. Amounts are preformatted.
type Data struct {
	OrderID         string
	Number          string
	OrderDate       string
	DeliveryDate    string
	Status          string
	RetrievalMethod string
	PaymentMethod   string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	Address         string
	Customizations  string
	Lines           []Line
	Subtotal        string
	DeliveryFee     string
	HasDeliveryFee  bool
	Total           string
}

// Build assembles invoice data for an order. Items without a stored
// snapshot are labelled "Item".
func Build(order database.Order, customer database.Customer, items []database.OrderItem) (Data, error) {
	d := Data{
		OrderID:         order.ID.String(),
		Number:          ShortID(order.ID.String()),
		OrderDate:       order.OrderDate.Format("January 2, 2006"),
		Status:          label(order.Status),
		RetrievalMethod: label(order.RetrievalMethod),
		PaymentMethod:   label(order.PaymentMethod),
		CustomerName:    customer.Name,
		CustomerEmail:   customer.Email.String,
		CustomerPhone:   customer.Phone.String,
		Customizations:  order.Customizations.String,
		Subtotal:        database.FormatCents(order.SubtotalCents),
		DeliveryFee:     database.FormatCents(order.DeliveryFeeCents),
		HasDeliveryFee:  order.DeliveryFeeCents > 0,
		Total:           database.FormatCents(order.TotalCents),
		Lines:           make([]Line, 0, len(items)),
	}
	if order.DeliveryDate.Valid {
		d.DeliveryDate = order.DeliveryDate.Time.Format("January 2, 2006")
	}

	if order.RetrievalMethod == enum.RetrievalMethodDelivery {
		addr, err := database.DecodeAddress(order.Address)
		if err != nil {
			return Data{}, err
		}
		if addr != nil {
			d.Address = addr.OneLine()
		}
	}

	for _, it := range items {
		snap, err := database.DecodeSnapshot(it.ProductSnapshot)
		if err != nil {
			return Data{}, fmt.Errorf("item %s: %w", it.ID, err)
		}
		line := Line{
			Name:      fallbackItemName,
			Notes:     it.ItemNotes.String,
			Quantity:  it.Quantity,
			UnitPrice: database.FormatCents(it.UnitPriceCents),
			LineTotal: database.FormatCents(it.UnitPriceCents * int64(it.Quantity)),
		}
		if snap != nil {
			if snap.Name != "" {
				line.Name = snap.Name
			}
			line.Description = snap.Description
		}
		d.Lines = append(d.Lines, line)
	}
	return d, nil
}

// ShortID is the first eight characters of an order id, used as the
// invoice number and in download filenames.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func label(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Renderer executes the invoice template and optionally converts it to PDF.
type Renderer struct {
	tmpl *template.Template
	pdf  PDFConverter
}

// NewRenderer parses the embedded template. pdf may be nil, in which case
// only HTML rendering is available.
func NewRenderer(pdf PDFConverter) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/invoice.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parse invoice template: %w", err)
	}
	return &Renderer{tmpl: tmpl, pdf: pdf}, nil
}

// HTML writes the invoice document to w.
func (r *Renderer) HTML(w io.Writer, d Data) error {
	return r.tmpl.Execute(w, d)
}

// PDF renders the invoice document and converts it.
func (r *Renderer) PDF(ctx context.Context, d Data) ([]byte, error) {
	if r.pdf == nil {
		return nil, ErrPDFUnavailable
	}
	var buf bytes.Buffer
	if err := r.HTML(&buf, d); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	out, err := r.pdf.Convert(ctx, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("convert to pdf: %w", err)
	}
	return out, nil
}
