// Package idgen mints entity ids and the human-readable document numbers
// printed on bills, lots, audits and product labels.
package idgen

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const maxSKUAttempts = 1000

// Sequencer hands out per-scope counters. Implementations must make the
// increment atomic with respect to concurrent callers.
type Sequencer interface {
	NextSequence(ctx context.Context, scope string) (int64, error)
}

type SKUSequencer interface {
	Sequencer
	SKUExists(ctx context.Context, sku string) (bool, error)
}

func NewID() string {
	return uuid.NewString()
}

// NextBillNumber returns BILL-YYYYMMDD-NNNN for the day of at.
func NextBillNumber(ctx context.Context, seq Sequencer, at time.Time) (string, error) {
	day := at.Format("20060102")
	n, err := seq.NextSequence(ctx, "bill:"+day)
	if err != nil {
		return "", fmt.Errorf("next bill sequence: %w", err)
	}
	return fmt.Sprintf("BILL-%s-%04d", day, n), nil
}

func NextLotNumber(ctx context.Context, seq Sequencer, at time.Time) (string, error) {
	return nextDated(ctx, seq, "LOT", at)
}

func NextAuditNumber(ctx context.Context, seq Sequencer, at time.Time) (string, error) {
	return nextDated(ctx, seq, "AUDIT", at)
}

// nextDated returns PREFIX-YYYY-MM-DD for the first number of the day and
// PREFIX-YYYY-MM-DD-001, -002 ... afterwards.
func nextDated(ctx context.Context, seq Sequencer, prefix string, at time.Time) (string, error) {
	day := at.Format("2006-01-02")
	n, err := seq.NextSequence(ctx, strings.ToLower(prefix)+":"+day)
	if err != nil {
		return "", fmt.Errorf("next %s sequence: %w", strings.ToLower(prefix), err)
	}
	return DatedNumber(prefix, at, n), nil
}

func DatedNumber(prefix string, at time.Time, n int64) string {
	base := prefix + "-" + at.Format("2006-01-02")
	if n <= 1 {
		return base
	}
	return fmt.Sprintf("%s-%03d", base, n-1)
}

// NextSKU mints LP-<CAT>-NNNNNN, or <CODE>-<CAT>-NNNNNN when the product has
// a product code. Counters run per category (and per code). A minted value
// that already exists is skipped.
func NextSKU(ctx context.Context, seq SKUSequencer, productCode string, categoryCode string) (string, error) {
	cat := Normalize(categoryCode)
	if cat == "" {
		return "", fmt.Errorf("category code is required for sku")
	}
	prefix := "LP"
	if code := Normalize(productCode); code != "" {
		prefix = code
	}
	scope := "sku:" + prefix + ":" + cat

	for range maxSKUAttempts {
		n, err := seq.NextSequence(ctx, scope)
		if err != nil {
			return "", fmt.Errorf("next sku sequence: %w", err)
		}
		sku := FormatSKU(prefix, cat, n)
		exists, err := seq.SKUExists(ctx, sku)
		if err != nil {
			return "", err
		}
		if !exists {
			return sku, nil
		}
	}
	return "", fmt.Errorf("could not mint a free sku in scope %s", scope)
}

func FormatSKU(prefix string, categoryCode string, n int64) string {
	return fmt.Sprintf("%s-%s-%06d", prefix, categoryCode, n)
}

// Normalize keeps only letters and digits, upper-cased.
func Normalize(code string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(code) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// CategoryCode derives a short code from a category name: the first three
// letters or digits, with a numeric suffix when taken reports a clash.
func CategoryCode(ctx context.Context, name string, taken func(ctx context.Context, code string) (bool, error)) (string, error) {
	base := Normalize(name)
	if len(base) > 3 {
		base = base[:3]
	}
	if base == "" {
		base = "GEN"
	}

	candidate := base
	for i := 1; i < 100; i++ {
		exists, err := taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return "", fmt.Errorf("no free category code for %q", name)
}
