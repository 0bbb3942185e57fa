package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func TestComputeLine(t *testing.T) {
	res, err := ComputeLine(Line{UnitPrice: d("100"), Quantity: 2, GSTPercentage: d("18")})
	require.NoError(t, err)
	assertDecimal(t, "200", res.Subtotal)
	assertDecimal(t, "36", res.GSTAmount)
	assertDecimal(t, "236", res.Total)
}

func TestComputeBillWithDiscount(t *testing.T) {
	line := Line{UnitPrice: d("100"), Quantity: 2, GSTPercentage: d("18")}
	totals, err := Compute([]Line{line, line}, nil, d("10"))
	require.NoError(t, err)

	assertDecimal(t, "400", totals.Subtotal)
	assertDecimal(t, "72", totals.TotalGST)
	assertDecimal(t, "40", totals.DiscountAmount)
	assertDecimal(t, "432", totals.GrandTotal)
}

func TestDiscountIgnoresGSTAndCharges(t *testing.T) {
	totals, err := Compute(
		[]Line{{UnitPrice: d("500"), Quantity: 1, GSTPercentage: d("12")}},
		[]Charge{{Name: "Alteration", Quantity: d("2"), Rate: d("50")}},
		d("20"),
	)
	require.NoError(t, err)

	assertDecimal(t, "100", totals.AdditionalChargesTotal)
	assertDecimal(t, "100", totals.DiscountAmount)
	// 500 + 100 + 60 - 100
	assertDecimal(t, "560", totals.GrandTotal)
}

func TestInvalidChargesDropped(t *testing.T) {
	totals, err := Compute(
		[]Line{{UnitPrice: d("10"), Quantity: 1}},
		[]Charge{
			{Name: "", Quantity: d("1"), Rate: d("30")},
			{Name: "Packing", Quantity: d("1"), Rate: d("0")},
			{Name: " Stitching ", Quantity: d("1.5"), Unit: "hr", Rate: d("40")},
		},
		decimal.Zero,
	)
	require.NoError(t, err)

	require.Len(t, totals.Charges, 1)
	assert.Equal(t, "Stitching", totals.Charges[0].Name)
	assertDecimal(t, "60", totals.AdditionalChargesTotal)
	assertDecimal(t, "70", totals.GrandTotal)
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		lines    []Line
		charges  []Charge
		discount decimal.Decimal
		want     error
	}{
		{name: "discount above 100", discount: d("100.01"), want: ErrInvalidDiscount},
		{name: "negative discount", discount: d("-1"), want: ErrInvalidDiscount},
		{name: "negative price", lines: []Line{{UnitPrice: d("-1"), Quantity: 1}}, want: ErrNegativeInput},
		{name: "negative quantity", lines: []Line{{UnitPrice: d("1"), Quantity: -1}}, want: ErrNegativeInput},
		{name: "gst above 100", lines: []Line{{UnitPrice: d("1"), Quantity: 1, GSTPercentage: d("101")}}, want: ErrInvalidGST},
		{name: "negative rate", charges: []Charge{{Name: "x", Quantity: d("1"), Rate: d("-5")}}, want: ErrNegativeInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.lines, tt.charges, tt.discount)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBoundaryDiscounts(t *testing.T) {
	lines := []Line{{UnitPrice: d("99.99"), Quantity: 3}}

	full, err := Compute(lines, nil, d("100"))
	require.NoError(t, err)
	assertDecimal(t, "0", full.GrandTotal)

	none, err := Compute(lines, nil, decimal.Zero)
	require.NoError(t, err)
	assertDecimal(t, "299.97", none.GrandTotal)
}

func TestLineOrderDoesNotChangeTotals(t *testing.T) {
	a := Line{UnitPrice: d("249.50"), Quantity: 3, GSTPercentage: d("5")}
	b := Line{UnitPrice: d("1299"), Quantity: 1, GSTPercentage: d("12")}

	first, err := Compute([]Line{a, b}, nil, d("7.5"))
	require.NoError(t, err)
	second, err := Compute([]Line{b, a}, nil, d("7.5"))
	require.NoError(t, err)
	assertDecimal(t, first.GrandTotal.String(), second.GrandTotal)
}
