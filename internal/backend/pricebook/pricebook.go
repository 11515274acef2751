// Package pricebook reads the shop's price workbook into an in-memory
// mapping keyed by the lower-cased product name.
package pricebook

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column headers of the price workbook. They are a fixed human-language
// contract shared with the shop's price.xlsx, not configuration. The
// spelling of ColumnPendulum is the file's and must stay as-is.
const (
	ColumnName     = "Назва"
	ColumnCrib     = "Ліжечко"
	ColumnPendulum = "Мятник"
	ColumnDrawer   = "Шухляда"
)

// RequiredColumns lists every header a workbook must carry, in sheet order.
var RequiredColumns = []string{ColumnName, ColumnCrib, ColumnPendulum, ColumnDrawer}

// Row holds the three price fields of one product. Values stay exactly as
// the sheet (or the operator) provided them; they are display strings and
// are never coerced to numbers.
type Row struct {
	Crib     string
	Pendulum string
	Drawer   string
}

// Book maps a normalized product name to its price row. An image joins the
// book through its lower-cased filename stem.
type Book map[string]Row

// SchemaError reports the required workbook columns that are absent from
// the header row. A load that fails this way produces no book at all.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("price workbook is missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Normalize derives the join key for a product name or a filename stem:
// plain case-folding, nothing else. No whitespace trimming happens here,
// so sheet values and filenames must already agree on spacing.
func Normalize(name string) string {
	return strings.ToLower(name)
}

// Load reads the workbook at path. See Read for the parsing contract.
func Load(path string) (Book, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price workbook %s: %w", path, err)
	}
	defer f.Close()
	return fromWorkbook(f)
}

// Read parses a price workbook from r (typically an uploaded file). The
// first row of the first sheet is the header; all four required columns
// must be present or a *SchemaError naming the missing ones is returned.
// Data rows fold into the book in sheet order, so a duplicated name keeps
// the values of its last row. A sheet with headers but no data rows is a
// valid, empty book. Rows whose name cell is empty are skipped.
func Read(r io.Reader) (Book, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price workbook: %w", err)
	}
	defer f.Close()
	return fromWorkbook(f)
}

func fromWorkbook(f *excelize.File) (Book, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &SchemaError{Missing: RequiredColumns}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		// No header row at all means every required column is missing.
		return nil, &SchemaError{Missing: RequiredColumns}
	}

	idx, err := columnIndex(rows[0])
	if err != nil {
		return nil, err
	}

	book := make(Book, len(rows)-1)
	for _, row := range rows[1:] {
		name := cell(row, idx[ColumnName])
		if name == "" {
			// A row without a product name can never join an image.
			continue
		}
		book[Normalize(name)] = Row{
			Crib:     cell(row, idx[ColumnCrib]),
			Pendulum: cell(row, idx[ColumnPendulum]),
			Drawer:   cell(row, idx[ColumnDrawer]),
		}
	}
	return book, nil
}

// columnIndex locates the required columns in the header row, collecting
// every missing one into a single SchemaError. The first occurrence wins
// when a header is duplicated.
func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		if _, ok := idx[name]; !ok {
			idx[name] = i
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}
	return idx, nil
}

// cell returns the value at column i, tolerating rows that excelize
// returns shorter than the header (trailing empty cells are trimmed away
// by the reader).
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Lookup returns the row for an already-normalized key.
func (b Book) Lookup(key string) (Row, bool) {
	row, ok := b[key]
	return row, ok
}

// Clone returns an independent copy of the book so that edits applied to
// one copy never show up in another.
func (b Book) Clone() Book {
	clone := make(Book, len(b))
	for key, row := range b {
		clone[key] = row
	}
	return clone
}
