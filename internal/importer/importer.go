// Package importer turns product spreadsheets into typed rows for bulk
// import. Column headers are matched loosely so sheets exported from
// different billing tools can be uploaded as they are.
package importer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"garmentpos/backend/internal/domain"
)

var (
	ErrEmptySheet   = errors.New("spreadsheet has no rows")
	ErrMissingName  = errors.New("no product name column found in header row")
	ErrTooManyRows  = errors.New("spreadsheet has too many rows")
	ErrNoWorksheets = errors.New("spreadsheet has no worksheets")
)

type column int

const (
	colProductCode column = iota
	colName
	colCategory
	colStockUnit
	colCostPrice
	colSellingPrice
	colMRP
	colGST
	colStockQuantity
	colPurchaseDate
)

// headerAliases is keyed by the normalized header text.
var headerAliases = map[string]column{
	"productcode":   colProductCode,
	"code":          colProductCode,
	"itemcode":      colProductCode,
	"stylecode":     colProductCode,
	"designcode":    colProductCode,
	"name":          colName,
	"productname":   colName,
	"itemname":      colName,
	"product":       colName,
	"item":          colName,
	"description":   colName,
	"category":      colCategory,
	"categoryname":  colCategory,
	"type":          colCategory,
	"unit":          colStockUnit,
	"stockunit":     colStockUnit,
	"uom":           colStockUnit,
	"cost":          colCostPrice,
	"costprice":     colCostPrice,
	"purchaseprice": colCostPrice,
	"buyingprice":   colCostPrice,
	"sellingprice":  colSellingPrice,
	"saleprice":     colSellingPrice,
	"price":         colSellingPrice,
	"rate":          colSellingPrice,
	"mrp":           colMRP,
	"gst":           colGST,
	"gstpercentage": colGST,
	"gstrate":       colGST,
	"tax":           colGST,
	"taxrate":       colGST,
	"qty":           colStockQuantity,
	"quantity":      colStockQuantity,
	"stock":         colStockQuantity,
	"stockquantity": colStockQuantity,
	"openingstock":  colStockQuantity,
	"purchasedate":  colPurchaseDate,
	"date":          colPurchaseDate,
}

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2/1/2006",
	"01-02-06",
	"02-Jan-2006",
	"2 Jan 2006",
}

type Options struct {
	MaxRows  int
	Location *time.Location
}

// ParseXLSX reads the first worksheet of an .xlsx file.
func ParseXLSX(r io.Reader, opts Options) ([]domain.ParsedRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoWorksheets
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return ParseRows(rows, opts)
}

// ParseRows maps raw cells to typed rows. The first non-empty row is the
// header. Row numbers in the result are 1-based sheet rows.
func ParseRows(rows [][]string, opts Options) ([]domain.ParsedRow, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	headerIdx := -1
	for i, row := range rows {
		if !blank(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, ErrEmptySheet
	}

	columns := map[column]int{}
	for i, cell := range rows[headerIdx] {
		col, ok := headerAliases[normalizeHeader(cell)]
		if !ok {
			continue
		}
		if _, seen := columns[col]; !seen {
			columns[col] = i
		}
	}
	if _, ok := columns[colName]; !ok {
		return nil, ErrMissingName
	}

	data := rows[headerIdx+1:]
	if opts.MaxRows > 0 && len(data) > opts.MaxRows {
		return nil, fmt.Errorf("%w: %d rows, limit %d", ErrTooManyRows, len(data), opts.MaxRows)
	}

	parsed := make([]domain.ParsedRow, 0, len(data))
	for i, row := range data {
		if blank(row) {
			continue
		}
		parsed = append(parsed, parseRow(row, headerIdx+i+2, columns, loc))
	}
	return parsed, nil
}

func parseRow(row []string, rowNumber int, columns map[column]int, loc *time.Location) domain.ParsedRow {
	cell := func(c column) string {
		idx, ok := columns[c]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	out := domain.ParsedRow{
		RowNumber:    rowNumber,
		ProductCode:  cell(colProductCode),
		Name:         cell(colName),
		CategoryName: cell(colCategory),
		StockUnit:    cell(colStockUnit),
	}

	var problems []string
	if v, err := parseMoney(cell(colCostPrice)); err != nil {
		problems = append(problems, "cost price: "+err.Error())
	} else if v != nil {
		out.CostPrice = *v
	}
	if v, err := parseMoney(cell(colSellingPrice)); err != nil {
		problems = append(problems, "selling price: "+err.Error())
	} else if v != nil {
		out.SellingPrice = *v
	}
	if v, err := parseMoney(cell(colMRP)); err != nil {
		problems = append(problems, "mrp: "+err.Error())
	} else {
		out.MRP = v
	}
	if v, err := parseMoney(cell(colGST)); err != nil {
		problems = append(problems, "gst: "+err.Error())
	} else {
		out.GSTPercentage = v
	}
	if v, err := parseMoney(cell(colStockQuantity)); err != nil {
		problems = append(problems, "stock quantity: "+err.Error())
	} else if v != nil {
		switch {
		case !v.IsInteger():
			problems = append(problems, "stock quantity: must be a whole number")
		case v.Abs().GreaterThan(decimal.NewFromInt(domain.MaxStockQuantity)):
			problems = append(problems, "stock quantity: too large")
		default:
			out.StockQuantity = int(v.IntPart())
		}
	}
	if raw := cell(colPurchaseDate); raw != "" {
		if t, err := parseDate(raw, loc); err != nil {
			problems = append(problems, "purchase date: "+err.Error())
		} else {
			out.PurchaseDate = &t
		}
	}

	out.ParseError = strings.Join(problems, "; ")
	return out
}

// parseMoney accepts values such as "₹1,299.00" or "18%". Empty cells
// yield nil.
func parseMoney(raw string) (*decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == ',' || r == '%' || r == '₹' || unicode.IsSpace(r):
			return -1
		}
		return r
	}, raw)
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "Rs."), "Rs")
	if cleaned == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", raw)
	}
	if v.Abs().GreaterThanOrEqual(domain.MaxMoney) {
		return nil, fmt.Errorf("%q is too large", raw)
	}
	return &v, nil
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	// Unformatted date cells come through as Excel serial numbers.
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a recognised date", raw)
}

func normalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
