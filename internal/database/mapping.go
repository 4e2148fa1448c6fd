package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format for calendar dates. Delivery
// dates and schedule blocks are plain days, never instants.
const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("date must be YYYY-MM-DD")

// Address is the structured delivery address stored in orders.address.
type Address struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2,omitempty"`
	City  string `json:"city"`
	State string `json:"state"`
	Zip   string `json:"zip"`
}

// IsZero reports whether no address field carries a value.
func (a Address) IsZero() bool {
	return strings.TrimSpace(a.Line1) == "" && strings.TrimSpace(a.Line2) == "" &&
		strings.TrimSpace(a.City) == "" && strings.TrimSpace(a.State) == "" &&
		strings.TrimSpace(a.Zip) == ""
}

// OneLine renders the address as a single comma separated line.
func (a Address) OneLine() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.State + " " + a.Zip} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// EncodeAddress maps an address to its JSONB column value. A nil address
// is stored as SQL NULL.
func EncodeAddress(a *Address) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// DecodeAddress is the inverse of EncodeAddress.
func DecodeAddress(raw []byte) (*Address, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var a Address
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	return &a, nil
}

// ProductSnapshot freezes the display fields of a product on an order item
// so invoices keep rendering after the catalog entry changes.
type ProductSnapshot struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ImagePath   string    `json:"image_path,omitempty"`
	PriceCents  int64     `json:"price_cents"`
}

// SnapshotOf captures the current state of p.
func SnapshotOf(p Product) ProductSnapshot {
	return ProductSnapshot{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description.String,
		ImagePath:   p.ImagePath.String,
		PriceCents:  p.PriceCents,
	}
}

func EncodeSnapshot(s ProductSnapshot) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot returns nil for rows written before snapshots existed.
func DecodeSnapshot(raw []byte) (*ProductSnapshot, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s ProductSnapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode product snapshot: %w", err)
	}
	return &s, nil
}

// ParseDate parses a YYYY-MM-DD string into a DATE value.
func ParseDate(s string) (pgtype.Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return pgtype.Date{}, ErrInvalidDate
	}
	return pgtype.Date{Time: t, Valid: true}, nil
}

// FormatDate renders a DATE as YYYY-MM-DD, or "" when NULL.
func FormatDate(d pgtype.Date) string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(DateLayout)
}

// FormatCents renders integer cents as a two-decimal amount, e.g. 1999 -> "19.99".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// Text maps an optional string to a nullable TEXT value; blank is NULL.
func Text(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// TextPtr returns nil for NULL, for JSON responses.
func TextPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}
