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

func (s *Service) CreateWastage(ctx context.Context, req domain.WastageCreateRequest) (domain.Wastage, error) {
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return domain.Wastage{}, validationError("product id is required")
	}
	if req.Quantity <= 0 {
		return domain.Wastage{}, validationError("wastage quantity must be positive")
	}

	actor := actorOf(ctx)
	var wastage domain.Wastage
	err := s.inTx(ctx, "create_wastage", func(tx store.Tx) error {
		product, err := tx.GetProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if product.StockQuantity < req.Quantity {
			return &store.InsufficientStockError{ProductID: product.ID, Name: product.Name, Available: product.StockQuantity, Requested: req.Quantity}
		}

		now := s.now().UTC()
		wastage = domain.Wastage{
			ID:         idgen.NewID(),
			ProductID:  product.ID,
			SKU:        product.SKU,
			Name:       product.Name,
			Quantity:   req.Quantity,
			Reason:     strings.TrimSpace(req.Reason),
			CostImpact: product.CostPrice.Mul(decimal.NewFromInt(int64(req.Quantity))).Round(2),
			CreatedBy:  actor.Username,
			CreatedAt:  now,
		}
		ref := ledgerRef{Type: domain.RefWastage, ID: wastage.ID, Note: wastage.Reason}
		if _, err := recordMovement(ctx, tx, *product, domain.MovementWastage, req.Quantity, ref, actor, now); err != nil {
			return err
		}
		return tx.InsertWastage(ctx, wastage)
	})
	if err != nil {
		return domain.Wastage{}, err
	}

	s.logActivity(ctx, "wastage_create", "product", wastage.ProductID, fmt.Sprintf("qty=%d,cost_impact=%s,reason=%s", wastage.Quantity, wastage.CostImpact, wastage.Reason))
	return wastage, nil
}

func (s *Service) ListWastage(ctx context.Context, limit int) ([]domain.Wastage, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListWastage(ctx, limit)
}
