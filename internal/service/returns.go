package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/idgen"
	"garmentpos/backend/internal/store"
)

// CreateReturn books returned goods back into stock against an existing
// bill. The bill itself is never modified.
func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnCreateRequest) (domain.Return, error) {
	billID := strings.TrimSpace(req.BillID)
	if billID == "" {
		return domain.Return{}, validationError("bill id is required")
	}
	if len(req.Items) == 0 {
		return domain.Return{}, validationError("return needs at least one item")
	}
	requested := make(map[string]int, len(req.Items))
	order := make([]string, 0, len(req.Items))
	for i, item := range req.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return domain.Return{}, validationError("item %d: product id is required", i+1)
		}
		if item.Quantity <= 0 {
			return domain.Return{}, fmt.Errorf("%w: item %d quantity must be positive", store.ErrInvalidReturnQuantity, i+1)
		}
		if _, seen := requested[productID]; !seen {
			order = append(order, productID)
		}
		requested[productID] += item.Quantity
	}
	refundMode := strings.ToLower(defaultString(req.RefundMode, domain.RefundCash))
	if !isSupportedRefundMode(refundMode) {
		return domain.Return{}, validationError("unsupported refund mode %q", req.RefundMode)
	}

	actor := actorOf(ctx)
	var ret domain.Return
	err := s.inTx(ctx, "create_return", func(tx store.Tx) error {
		bill, err := tx.GetBill(ctx, billID)
		if err != nil {
			return err
		}
		returned, err := tx.ReturnedQuantities(ctx, bill.ID)
		if err != nil {
			return err
		}

		sold := make(map[string]int, len(bill.Items))
		prices := make(map[string]decimal.Decimal, len(bill.Items))
		for _, line := range bill.Items {
			sold[line.ProductID] += line.Quantity
			if _, ok := prices[line.ProductID]; !ok {
				prices[line.ProductID] = line.UnitPrice
			}
		}
		for _, productID := range order {
			remaining := sold[productID] - returned[productID]
			if sold[productID] == 0 {
				return fmt.Errorf("%w: product %s is not on bill %s", store.ErrInvalidReturnQuantity, productID, bill.BillNumber)
			}
			if requested[productID] > remaining {
				return fmt.Errorf("%w: requested %d, returnable %d", store.ErrInvalidReturnQuantity, requested[productID], remaining)
			}
		}

		now := s.now().UTC()
		returnID := idgen.NewID()
		ref := ledgerRef{Type: domain.RefBill, ID: bill.ID, Number: bill.BillNumber, Note: "return " + returnID}
		items := make([]domain.ReturnItem, 0, len(order))
		refund := decimal.Zero
		for _, productID := range order {
			product, err := tx.GetProductForUpdate(ctx, productID)
			if err != nil {
				return err
			}
			qty := requested[productID]
			if _, err := recordMovement(ctx, tx, *product, domain.MovementReturn, qty, ref, actor, now); err != nil {
				return err
			}
			amount := prices[productID].Mul(decimal.NewFromInt(int64(qty))).Round(2)
			refund = refund.Add(amount)
			items = append(items, domain.ReturnItem{
				ProductID: product.ID,
				SKU:       product.SKU,
				Name:      product.Name,
				Quantity:  qty,
				UnitPrice: prices[productID],
				Amount:    amount,
			})
		}

		ret = domain.Return{
			ID:           returnID,
			BillID:       bill.ID,
			BillNumber:   bill.BillNumber,
			Items:        items,
			RefundAmount: refund,
			RefundMode:   refundMode,
			Reason:       strings.TrimSpace(req.Reason),
			CreatedBy:    actor.Username,
			CreatedAt:    now,
		}
		return tx.InsertReturn(ctx, ret)
	})
	if err != nil {
		return domain.Return{}, err
	}

	s.logActivity(ctx, "return_create", "return", ret.ID, fmt.Sprintf("bill=%s,refund=%s,mode=%s", ret.BillNumber, ret.RefundAmount, ret.RefundMode))
	return ret, nil
}

func (s *Service) ListReturns(ctx context.Context, billID string) ([]domain.Return, error) {
	bill, err := s.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListReturnsByBill(ctx, bill.ID)
}

func isSupportedRefundMode(mode string) bool {
	switch mode {
	case domain.RefundCash, domain.RefundCard, domain.RefundUPI, domain.RefundStoreCredit:
		return true
	}
	return false
}
