// Package export writes admin tables as CSV or XLSX downloads.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caramelapple/storefront/internal/enum"
	"github.com/tealeg/xlsx"
)

// Table is a header row plus data rows of equal width.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Escape quotes a CSV field only when it contains a comma, a double quote
// or a line break. Internal quotes are doubled.
func Escape(v string) string {
	if !strings.ContainsAny(v, ",\"\n\r") {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// WriteCSV writes t with rows separated by "\n" and no trailing newline.
func WriteCSV(w io.Writer, t Table) error {
	lines := make([]string, 0, len(t.Rows)+1)
	lines = append(lines, joinRow(t.Headers))
	for _, row := range t.Rows {
		lines = append(lines, joinRow(row))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

func joinRow(fields []string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = Escape(f)
	}
	return strings.Join(escaped, ",")
}

// WriteXLSX writes t as a single-sheet workbook.
func WriteXLSX(w io.Writer, sheetName string, t Table) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(sheetName)
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range t.Headers {
		header.AddCell().SetString(h)
	}
	for _, r := range t.Rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Write dispatches on format. Unknown formats fall back to CSV.
func Write(w io.Writer, format, sheetName string, t Table) error {
	if format == enum.ExportFormatXLSX {
		return WriteXLSX(w, sheetName, t)
	}
	return WriteCSV(w, t)
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	if format == enum.ExportFormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename builds "<kind>_export_YYYY-MM-DD.<ext>".
func Filename(kind, format string, now time.Time) string {
	ext := enum.ExportFormatCSV
	if format == enum.ExportFormatXLSX {
		ext = enum.ExportFormatXLSX
	}
	return fmt.Sprintf("%s_export_%s.%s", kind, now.UTC().Format("2006-01-02"), ext)
}

// Title upper-cases the first letter of a stored enum value.
func Title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
