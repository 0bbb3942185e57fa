package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"garmentpos/backend/internal/cache"
	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/idgen"
	"garmentpos/backend/internal/pricing"
	"garmentpos/backend/internal/store"
)

// CreateBill sells the requested items as one unit of work: stock is
// decremented, first-sale price locks are set, ledger entries are appended,
// the customer is upserted and their totals are recomputed.
func (s *Service) CreateBill(ctx context.Context, req domain.BillCreateRequest) (domain.Bill, error) {
	if len(req.Items) == 0 {
		return domain.Bill{}, validationError("bill needs at least one item")
	}
	for i := range req.Items {
		req.Items[i].ProductID = strings.TrimSpace(req.Items[i].ProductID)
		if req.Items[i].ProductID == "" {
			return domain.Bill{}, validationError("item %d: product id is required", i+1)
		}
		if req.Items[i].Quantity <= 0 {
			return domain.Bill{}, validationError("item %d: quantity must be positive", i+1)
		}
	}
	if req.DiscountPercentage.IsNegative() || req.DiscountPercentage.GreaterThan(hundred) {
		return domain.Bill{}, store.ErrInvalidDiscount
	}
	paymentMode := strings.ToLower(defaultString(req.PaymentMode, domain.PaymentCash))
	if !isSupportedPaymentMode(paymentMode) {
		return domain.Bill{}, validationError("unsupported payment mode %q", req.PaymentMode)
	}
	charges := make([]pricing.Charge, 0, len(req.AdditionalCharges))
	for _, c := range req.AdditionalCharges {
		charges = append(charges, pricing.Charge{Name: c.Name, Quantity: c.Quantity, Unit: strings.TrimSpace(c.Unit), Rate: c.Rate})
	}

	actor := actorOf(ctx)
	var bill domain.Bill
	err := s.inTx(ctx, "create_bill", func(tx store.Tx) error {
		nowUTC, local := s.clock()

		products := make(map[string]*domain.Product, len(req.Items))
		demand := make(map[string]int, len(req.Items))
		lines := make([]pricing.Line, 0, len(req.Items))
		for _, item := range req.Items {
			p, ok := products[item.ProductID]
			if !ok {
				locked, err := tx.GetProductForUpdate(ctx, item.ProductID)
				if err != nil {
					return err
				}
				p = locked
				products[item.ProductID] = p
			}
			demand[item.ProductID] += item.Quantity
			lines = append(lines, pricing.Line{UnitPrice: p.SellingPrice, Quantity: item.Quantity, GSTPercentage: p.GST()})
		}
		for _, item := range req.Items {
			p := products[item.ProductID]
			if p.StockQuantity < demand[item.ProductID] {
				return &store.InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.StockQuantity, Requested: demand[item.ProductID]}
			}
		}

		totals, err := pricing.Compute(lines, charges, req.DiscountPercentage)
		if err != nil {
			return pricingError(err)
		}

		billNumber, err := idgen.NextBillNumber(ctx, tx, local)
		if err != nil {
			return err
		}
		billID := idgen.NewID()
		ref := ledgerRef{Type: domain.RefBill, ID: billID, Number: billNumber}

		items := make([]domain.BillItem, 0, len(req.Items))
		for i, item := range req.Items {
			p := products[item.ProductID]
			if _, err := recordMovement(ctx, tx, *p, domain.MovementOut, item.Quantity, ref, actor, nowUTC); err != nil {
				return err
			}
			if !p.PriceLocked {
				at := nowUTC
				p.PriceLocked = true
				p.PriceLockedBy = actor.Username
				p.PriceLockedAt = &at
				p.UpdatedAt = nowUTC
				if err := tx.UpdateProduct(ctx, *p); err != nil {
					return err
				}
			}
			line := totals.Lines[i]
			items = append(items, domain.BillItem{
				ProductID:     p.ID,
				SKU:           p.SKU,
				Name:          p.Name,
				Quantity:      item.Quantity,
				UnitPrice:     p.SellingPrice,
				GSTPercentage: p.GST(),
				GSTAmount:     line.GSTAmount,
				LineSubtotal:  line.Subtotal,
				LineTotal:     line.Total,
			})
		}

		customer, err := resolveCustomer(ctx, tx, req.Customer, nowUTC)
		if err != nil {
			return err
		}

		bill = domain.Bill{
			ID:                     billID,
			BillNumber:             billNumber,
			Items:                  items,
			AdditionalCharges:      toBillCharges(totals.Charges),
			Subtotal:               totals.Subtotal,
			TotalGST:               totals.TotalGST,
			AdditionalChargesTotal: totals.AdditionalChargesTotal,
			DiscountPercentage:     totals.DiscountPercentage,
			DiscountAmount:         totals.DiscountAmount,
			GrandTotal:             totals.GrandTotal,
			PaymentMode:            paymentMode,
			CreatedBy:              actor.Username,
			CreatedAt:              nowUTC,
		}
		snapshotCustomer(&bill, customer, req.Customer)

		if err := tx.InsertBill(ctx, bill); err != nil {
			return err
		}
		if customer != nil {
			if _, err := refreshCustomerTotals(ctx, tx, *customer, nowUTC); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Bill{}, err
	}

	s.cacheBill(ctx, &bill)
	s.logActivity(ctx, "bill_create", "bill", bill.ID, fmt.Sprintf("number=%s,total=%s,items=%d", bill.BillNumber, bill.GrandTotal, len(bill.Items)))
	return bill, nil
}

func (s *Service) GetBill(ctx context.Context, id string) (domain.Bill, error) {
	id = strings.TrimSpace(id)
	if cached, ok := s.cachedBill(ctx, cache.BillIDKey(id)); ok {
		return *cached, nil
	}
	bill, err := s.repo.GetBill(ctx, id)
	if err != nil {
		return domain.Bill{}, err
	}
	s.cacheBill(ctx, bill)
	return *bill, nil
}

func (s *Service) GetBillByNumber(ctx context.Context, billNumber string) (domain.Bill, error) {
	billNumber = strings.ToUpper(strings.TrimSpace(billNumber))
	if cached, ok := s.cachedBill(ctx, cache.BillNumberKey(billNumber)); ok {
		return *cached, nil
	}
	bill, err := s.repo.GetBillByNumber(ctx, billNumber)
	if err != nil {
		return domain.Bill{}, err
	}
	s.cacheBill(ctx, bill)
	return *bill, nil
}

// ListBills returns the bills of one local calendar day, newest first.
func (s *Service) ListBills(ctx context.Context, date string, limit int) ([]domain.Bill, error) {
	from, to, err := s.dayRange(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBills(ctx, from, to, limit)
}

func (s *Service) cachedBill(ctx context.Context, key string) (*domain.Bill, bool) {
	bill, ok, err := s.bills.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("bill cache read failed")
		return nil, false
	}
	return bill, ok
}

func (s *Service) cacheBill(ctx context.Context, bill *domain.Bill) {
	for _, key := range []string{cache.BillIDKey(bill.ID), cache.BillNumberKey(bill.BillNumber)} {
		if err := s.bills.Set(ctx, key, bill, s.billTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("bill cache write failed")
		}
	}
}

func pricingError(err error) error {
	if errors.Is(err, pricing.ErrInvalidDiscount) {
		return store.ErrInvalidDiscount
	}
	return fmt.Errorf("%w: %v", store.ErrValidation, err)
}

func toBillCharges(charges []pricing.ChargeResult) []domain.AdditionalCharge {
	if len(charges) == 0 {
		return nil
	}
	out := make([]domain.AdditionalCharge, 0, len(charges))
	for _, c := range charges {
		out = append(out, domain.AdditionalCharge{Name: c.Name, Quantity: c.Quantity, Unit: c.Unit, Rate: c.Rate, Amount: c.Amount})
	}
	return out
}

func snapshotCustomer(bill *domain.Bill, customer *domain.Customer, input *domain.CustomerInput) {
	if customer != nil {
		bill.CustomerID = customer.ID
		bill.CustomerName = customer.Name
		bill.CustomerMobile = customer.Mobile
		bill.CustomerEmail = customer.Email
		bill.CustomerGSTNumber = customer.GSTNumber
		bill.CustomerFirmName = customer.FirmName
		return
	}
	if input == nil {
		return
	}
	bill.CustomerName = strings.TrimSpace(input.Name)
	bill.CustomerMobile = normalizeMobile(input.Mobile)
	bill.CustomerEmail = strings.TrimSpace(input.Email)
	bill.CustomerGSTNumber = strings.ToUpper(strings.TrimSpace(input.GSTNumber))
	bill.CustomerFirmName = strings.TrimSpace(input.FirmName)
}

func isSupportedPaymentMode(mode string) bool {
	switch mode {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentUPI, domain.PaymentCredit:
		return true
	}
	return false
}
