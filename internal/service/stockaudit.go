package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/idgen"
	"garmentpos/backend/internal/store"
)

func (s *Service) CreateStockAudit(ctx context.Context, req domain.StockAuditCreateRequest) (domain.StockAudit, error) {
	actor := actorOf(ctx)
	var audit domain.StockAudit
	err := s.inTx(ctx, "create_stock_audit", func(tx store.Tx) error {
		nowUTC, local := s.clock()
		number, err := idgen.NextAuditNumber(ctx, tx, local)
		if err != nil {
			return err
		}
		audit = domain.StockAudit{
			ID:          idgen.NewID(),
			AuditNumber: number,
			Status:      domain.AuditInProgress,
			Items:       []domain.StockAuditItem{},
			Notes:       strings.TrimSpace(req.Notes),
			CreatedBy:   actor.Username,
			CreatedAt:   nowUTC,
		}
		return tx.InsertStockAudit(ctx, audit)
	})
	if err != nil {
		return domain.StockAudit{}, err
	}

	s.logActivity(ctx, "stock_audit_create", "stock_audit", audit.ID, "number="+audit.AuditNumber)
	return audit, nil
}

func (s *Service) GetStockAudit(ctx context.Context, id string) (domain.StockAudit, error) {
	audit, err := s.repo.GetStockAudit(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.StockAudit{}, err
	}
	return *audit, nil
}

func (s *Service) ListStockAudits(ctx context.Context, status string, limit int) ([]domain.StockAudit, error) {
	st := domain.AuditStatus(strings.ToLower(strings.TrimSpace(status)))
	switch st {
	case "", domain.AuditInProgress, domain.AuditCompleted, domain.AuditCancelled:
	default:
		return nil, validationError("unknown audit status %q", status)
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListStockAudits(ctx, st, limit)
}

// AddAuditItem records a physical count for the product with the given
// SKU. Scanning the same product again replaces the earlier count.
func (s *Service) AddAuditItem(ctx context.Context, auditID string, req domain.StockAuditScanRequest) (domain.StockAudit, error) {
	sku := strings.TrimSpace(req.SKU)
	if sku == "" {
		return domain.StockAudit{}, validationError("sku is required")
	}
	if req.PhysicalCount < 0 {
		return domain.StockAudit{}, validationError("physical count must not be negative")
	}

	return s.mutateAudit(ctx, "add_audit_item", auditID, func(tx store.Tx, a *domain.StockAudit) error {
		product, err := tx.GetProductBySKU(ctx, sku)
		if err != nil {
			return err
		}
		item := domain.StockAuditItem{
			ProductID:     product.ID,
			SKU:           product.SKU,
			Name:          product.Name,
			SystemStock:   product.StockQuantity,
			PhysicalCount: req.PhysicalCount,
			Difference:    req.PhysicalCount - product.StockQuantity,
			Notes:         strings.TrimSpace(req.Notes),
			ScannedAt:     s.now().UTC(),
		}
		idx := slices.IndexFunc(a.Items, func(it domain.StockAuditItem) bool { return it.ProductID == product.ID })
		if idx >= 0 {
			a.Items[idx] = item
		} else {
			a.Items = append(a.Items, item)
		}
		return nil
	})
}

func (s *Service) RemoveAuditItem(ctx context.Context, auditID string, productID string) (domain.StockAudit, error) {
	productID = strings.TrimSpace(productID)
	return s.mutateAudit(ctx, "remove_audit_item", auditID, func(_ store.Tx, a *domain.StockAudit) error {
		a.Items = slices.DeleteFunc(a.Items, func(it domain.StockAuditItem) bool { return it.ProductID == productID })
		return nil
	})
}

// CompleteAudit closes the audit. With applyAdjustments every product whose
// scan showed a difference is set to its physical count through the ledger.
func (s *Service) CompleteAudit(ctx context.Context, auditID string, applyAdjustments bool) (domain.StockAudit, error) {
	actor := actorOf(ctx)
	audit, err := s.mutateAudit(ctx, "complete_stock_audit", auditID, func(tx store.Tx, a *domain.StockAudit) error {
		now := s.now().UTC()
		if applyAdjustments {
			ref := ledgerRef{Type: domain.RefAudit, ID: a.ID, Number: a.AuditNumber}
			for _, item := range a.Items {
				if item.Difference == 0 {
					continue
				}
				product, err := tx.GetProductForUpdate(ctx, item.ProductID)
				if err != nil {
					return err
				}
				delta := item.PhysicalCount - product.StockQuantity
				switch {
				case delta > 0:
					_, err = recordMovement(ctx, tx, *product, domain.MovementIn, delta, ref, actor, now)
				case delta < 0:
					_, err = recordMovement(ctx, tx, *product, domain.MovementOut, -delta, ref, actor, now)
				}
				if err != nil {
					return err
				}
			}
			a.AdjustmentsApplied = true
		}
		a.Status = domain.AuditCompleted
		a.CompletedAt = &now
		return nil
	})
	if err != nil {
		return domain.StockAudit{}, err
	}

	s.logActivity(ctx, "stock_audit_complete", "stock_audit", audit.ID, fmt.Sprintf("number=%s,discrepancies=%d,applied=%t", audit.AuditNumber, audit.Discrepancies, audit.AdjustmentsApplied))
	return audit, nil
}

// CancelAudit discards the scans. Stock is never touched.
func (s *Service) CancelAudit(ctx context.Context, auditID string) (domain.StockAudit, error) {
	audit, err := s.mutateAudit(ctx, "cancel_stock_audit", auditID, func(_ store.Tx, a *domain.StockAudit) error {
		now := s.now().UTC()
		a.Items = []domain.StockAuditItem{}
		a.Status = domain.AuditCancelled
		a.CancelledAt = &now
		return nil
	})
	if err != nil {
		return domain.StockAudit{}, err
	}

	s.logActivity(ctx, "stock_audit_cancel", "stock_audit", audit.ID, "number="+audit.AuditNumber)
	return audit, nil
}

// mutateAudit loads an in-progress audit under lock, applies fn, refreshes
// the aggregates and saves it.
func (s *Service) mutateAudit(ctx context.Context, op string, auditID string, fn func(tx store.Tx, audit *domain.StockAudit) error) (domain.StockAudit, error) {
	auditID = strings.TrimSpace(auditID)
	var saved domain.StockAudit
	err := s.inTx(ctx, op, func(tx store.Tx) error {
		audit, err := tx.GetStockAuditForUpdate(ctx, auditID)
		if err != nil {
			return err
		}
		if audit.Status != domain.AuditInProgress {
			return fmt.Errorf("%w: %s is %s", store.ErrAuditNotInProgress, audit.AuditNumber, audit.Status)
		}
		if err := fn(tx, audit); err != nil {
			return err
		}
		refreshAuditTotals(audit)
		if err := tx.UpdateStockAudit(ctx, *audit); err != nil {
			return err
		}
		saved = *audit
		return nil
	})
	if err != nil {
		return domain.StockAudit{}, err
	}
	return saved, nil
}

func refreshAuditTotals(audit *domain.StockAudit) {
	audit.TotalProducts = len(audit.Items)
	audit.Discrepancies = 0
	for _, item := range audit.Items {
		if item.Difference != 0 {
			audit.Discrepancies++
		}
	}
}
