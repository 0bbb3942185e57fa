package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/idgen"
	"garmentpos/backend/internal/store"
)

func (s *Service) GetCustomerByMobile(ctx context.Context, mobile string) (domain.Customer, error) {
	mobile = normalizeMobile(mobile)
	if mobile == "" {
		return domain.Customer{}, validationError("mobile number is required")
	}
	c, err := s.repo.GetCustomerByMobile(ctx, mobile)
	if err != nil {
		return domain.Customer{}, err
	}
	return *c, nil
}

func (s *Service) ListCustomerBills(ctx context.Context, mobile string, limit int) ([]domain.Bill, error) {
	customer, err := s.GetCustomerByMobile(ctx, mobile)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBillsByCustomer(ctx, customer.ID, limit)
}

// RecomputeCustomerTotals rebuilds the customer's aggregates from their
// bills, repairing any drift introduced outside the sale path.
func (s *Service) RecomputeCustomerTotals(ctx context.Context, mobile string) (domain.Customer, error) {
	mobile = normalizeMobile(mobile)
	if mobile == "" {
		return domain.Customer{}, validationError("mobile number is required")
	}

	var updated domain.Customer
	err := s.inTx(ctx, "recompute_customer", func(tx store.Tx) error {
		customer, err := tx.GetCustomerByMobile(ctx, mobile)
		if err != nil {
			return err
		}
		updated, err = refreshCustomerTotals(ctx, tx, *customer, s.now().UTC())
		return err
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logActivity(ctx, "customer_recompute", "customer", updated.ID, fmt.Sprintf("total=%s,count=%d", updated.TotalPurchases, updated.PurchaseCount))
	return updated, nil
}

// resolveCustomer finds the customer by mobile, filling in any fields the
// stored record is missing. A new customer is created only when both name
// and mobile are given. A nil result means the bill carries no customer.
func resolveCustomer(ctx context.Context, tx store.Tx, in *domain.CustomerInput, now time.Time) (*domain.Customer, error) {
	if in == nil {
		return nil, nil
	}
	mobile := normalizeMobile(in.Mobile)
	if mobile == "" {
		return nil, nil
	}

	existing, err := tx.GetCustomerByMobile(ctx, mobile)
	if err == nil {
		merged, changed := mergeCustomer(*existing, in)
		if changed {
			merged.UpdatedAt = now
			if err := tx.UpdateCustomer(ctx, merged); err != nil {
				return nil, err
			}
		}
		return &merged, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, nil
	}
	customer := domain.Customer{
		ID:        idgen.NewID(),
		Mobile:    mobile,
		Name:      name,
		Email:     strings.TrimSpace(in.Email),
		GSTNumber: strings.ToUpper(strings.TrimSpace(in.GSTNumber)),
		FirmName:  strings.TrimSpace(in.FirmName),
		Address:   strings.TrimSpace(in.Address),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.InsertCustomer(ctx, customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// mergeCustomer only fills empty fields; populated fields are never
// overwritten.
func mergeCustomer(c domain.Customer, in *domain.CustomerInput) (domain.Customer, bool) {
	changed := false
	fill := func(dst *string, v string) {
		v = strings.TrimSpace(v)
		if *dst == "" && v != "" {
			*dst = v
			changed = true
		}
	}
	fill(&c.Name, in.Name)
	fill(&c.Email, in.Email)
	fill(&c.GSTNumber, strings.ToUpper(in.GSTNumber))
	fill(&c.FirmName, in.FirmName)
	fill(&c.Address, in.Address)
	return c, changed
}

func refreshCustomerTotals(ctx context.Context, tx store.Tx, c domain.Customer, now time.Time) (domain.Customer, error) {
	totals, err := tx.CustomerBillTotals(ctx, c.ID)
	if err != nil {
		return domain.Customer{}, err
	}
	c.TotalPurchases = totals.TotalPurchases
	c.PurchaseCount = totals.PurchaseCount
	c.LastPurchaseAt = totals.LastPurchaseAt
	c.UpdatedAt = now
	if err := tx.UpdateCustomer(ctx, c); err != nil {
		return domain.Customer{}, err
	}
	return c, nil
}

// normalizeMobile keeps digits only, dropping a leading +91 country code.
func normalizeMobile(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 12 && strings.HasPrefix(digits, "91") {
		digits = digits[2:]
	}
	return digits
}
