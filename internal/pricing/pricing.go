// Package pricing computes bill totals. It performs no I/O.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidDiscount = errors.New("discount percentage must be between 0 and 100")
	ErrInvalidGST      = errors.New("gst percentage must be between 0 and 100")
	ErrNegativeInput   = errors.New("price, quantity and rate must not be negative")
)

var hundred = decimal.NewFromInt(100)

// Amounts are rounded to paise.
const places = 2

type Line struct {
	UnitPrice     decimal.Decimal
	Quantity      int
	GSTPercentage decimal.Decimal
}

type LineResult struct {
	Subtotal  decimal.Decimal
	GSTAmount decimal.Decimal
	Total     decimal.Decimal
}

type Charge struct {
	Name     string
	Quantity decimal.Decimal
	Unit     string
	Rate     decimal.Decimal
}

type ChargeResult struct {
	Charge
	Amount decimal.Decimal
}

type Totals struct {
	Lines                  []LineResult
	Charges                []ChargeResult
	Subtotal               decimal.Decimal
	TotalGST               decimal.Decimal
	AdditionalChargesTotal decimal.Decimal
	DiscountPercentage     decimal.Decimal
	DiscountAmount         decimal.Decimal
	GrandTotal             decimal.Decimal
}

func ComputeLine(line Line) (LineResult, error) {
	if line.UnitPrice.IsNegative() || line.Quantity < 0 {
		return LineResult{}, ErrNegativeInput
	}
	if err := checkPercent(line.GSTPercentage, ErrInvalidGST); err != nil {
		return LineResult{}, err
	}

	subtotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
	gst := subtotal.Mul(line.GSTPercentage).Div(hundred).Round(places)
	return LineResult{
		Subtotal:  subtotal,
		GSTAmount: gst,
		Total:     subtotal.Add(gst),
	}, nil
}

// Compute prices a whole bill. Charges without a name or with a zero rate
// are dropped. The discount applies to the pre-GST subtotal only.
func Compute(lines []Line, charges []Charge, discountPct decimal.Decimal) (Totals, error) {
	if err := checkPercent(discountPct, ErrInvalidDiscount); err != nil {
		return Totals{}, err
	}

	totals := Totals{
		Lines:              make([]LineResult, 0, len(lines)),
		DiscountPercentage: discountPct,
	}
	for i, line := range lines {
		res, err := ComputeLine(line)
		if err != nil {
			return Totals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		totals.Lines = append(totals.Lines, res)
		totals.Subtotal = totals.Subtotal.Add(res.Subtotal)
		totals.TotalGST = totals.TotalGST.Add(res.GSTAmount)
	}

	for _, charge := range charges {
		if charge.Rate.IsNegative() || charge.Quantity.IsNegative() {
			return Totals{}, fmt.Errorf("charge %q: %w", charge.Name, ErrNegativeInput)
		}
		charge.Name = strings.TrimSpace(charge.Name)
		if charge.Name == "" || !charge.Rate.IsPositive() {
			continue
		}
		amount := charge.Quantity.Mul(charge.Rate).Round(places)
		totals.Charges = append(totals.Charges, ChargeResult{Charge: charge, Amount: amount})
		totals.AdditionalChargesTotal = totals.AdditionalChargesTotal.Add(amount)
	}

	totals.DiscountAmount = totals.Subtotal.Mul(discountPct).Div(hundred).Round(places)
	totals.GrandTotal = totals.Subtotal.
		Add(totals.AdditionalChargesTotal).
		Add(totals.TotalGST).
		Sub(totals.DiscountAmount)
	return totals, nil
}

func checkPercent(v decimal.Decimal, err error) error {
	if v.IsNegative() || v.GreaterThan(hundred) {
		return err
	}
	return nil
}
