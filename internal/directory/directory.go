// Package directory reads the retail partner list: a CSV of stores that
// carry the apples, and the free-form addresses in it.
package directory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/caramelapple/storefront/internal/database"
)

var (
	ErrEmptyFile = errors.New("csv must contain a header row and at least one store")
	ErrNoStores  = errors.New("no valid stores found in csv")
)

var (
	spaces = regexp.MustCompile(`\s+`)

	// "<street>, <city>, ST 12345" and "<street>, <city> ST 12345"
	fullAddress    = regexp.MustCompile(`^(.+),\s*([^,]+),\s*([A-Z]{2})\s+(\d{5})$`)
	noCommaState   = regexp.MustCompile(`^(.+),\s*([^,]+)\s+([A-Z]{2})\s+(\d{5})$`)
	trailingRegion = regexp.MustCompile(`^(.+?)\s+([A-Z]{2})\s+(\d{5})$`)
)

// ParseAddress splits a one-line US address into its parts. Whatever
// cannot be recognised ends up in Line1; the result is never empty when
// the input is not.
func ParseAddress(s string) database.Address {
	s = spaces.ReplaceAllString(strings.TrimSpace(s), " ")

	for _, re := range []*regexp.Regexp{fullAddress, noCommaState} {
		if m := re.FindStringSubmatch(s); m != nil {
			return database.Address{
				Line1: strings.TrimSpace(m[1]),
				City:  strings.TrimSpace(m[2]),
				State: m[3],
				Zip:   m[4],
			}
		}
	}

	if m := trailingRegion.FindStringSubmatch(s); m != nil {
		addr := database.Address{Line1: strings.TrimSpace(m[1]), State: m[2], Zip: m[3]}
		if i := strings.LastIndex(m[1], ","); i > 0 {
			addr.Line1 = strings.TrimSpace(m[1][:i])
			addr.City = strings.TrimSpace(m[1][i+1:])
		}
		return addr
	}

	return database.Address{Line1: s}
}

// Skipped records a CSV row that was not imported.
type Skipped struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ReadCSV parses "Store,Contact,Address,Phone" rows. The first row is a
// header and is ignored. Rows without a name or address are skipped and
// reported rather than failing the whole file.
func ReadCSV(r io.Reader) ([]database.CreateStoreParams, []Skipped, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}

	var rows [][]string
	for _, rec := range records {
		if !blank(rec) {
			rows = append(rows, rec)
		}
	}
	if len(rows) < 2 {
		return nil, nil, ErrEmptyFile
	}

	var (
		stores  []database.CreateStoreParams
		skipped []Skipped
	)
	for i, rec := range rows[1:] {
		line := i + 2
		name, contact, address, phone := field(rec, 0), field(rec, 1), field(rec, 2), field(rec, 3)
		if name == "" || address == "" {
			skipped = append(skipped, Skipped{Line: line, Reason: "missing name or address"})
			continue
		}
		stores = append(stores, database.CreateStoreParams{
			Name:    name,
			Contact: database.Text(contact),
			Address: address,
			Phone:   database.Text(phone),
		})
	}
	if len(stores) == 0 {
		return nil, skipped, ErrNoStores
	}
	return stores, skipped, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
