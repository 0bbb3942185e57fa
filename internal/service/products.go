package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/idgen"
	"garmentpos/backend/internal/store"
)

var hundred = decimal.NewFromInt(100)

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, validationError("category name is required")
	}

	var created domain.Category
	err := s.inTx(ctx, "create_category", func(tx store.Tx) error {
		category, err := createCategory(ctx, tx, name, req.Code, s.now().UTC())
		if err != nil {
			return err
		}
		created = category
		return nil
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.logActivity(ctx, "category_create", "category", created.ID, fmt.Sprintf("name=%s,code=%s", created.Name, created.Code))
	return created, nil
}

func createCategory(ctx context.Context, tx store.Tx, name string, code string, at time.Time) (domain.Category, error) {
	if _, err := tx.GetCategoryByName(ctx, name); err == nil {
		return domain.Category{}, store.ErrDuplicateCategory
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Category{}, err
	}

	code = idgen.Normalize(code)
	if code == "" {
		derived, err := idgen.CategoryCode(ctx, name, tx.CategoryCodeExists)
		if err != nil {
			return domain.Category{}, err
		}
		code = derived
	}

	category := domain.Category{ID: idgen.NewID(), Name: name, Code: code, CreatedAt: at}
	if err := tx.InsertCategory(ctx, category); err != nil {
		return domain.Category{}, err
	}
	return category, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) GetProductBySKU(ctx context.Context, sku string) (domain.Product, error) {
	p, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, validationError("product name is required")
	}
	if req.InitialStock < 0 {
		return domain.Product{}, validationError("initial stock must not be negative")
	}
	if req.InitialStock > domain.MaxStockQuantity {
		return domain.Product{}, validationError("initial stock must not exceed %d", domain.MaxStockQuantity)
	}
	if err := checkPrices(req.CostPrice, req.SellingPrice, req.MRP, req.GSTPercentage); err != nil {
		return domain.Product{}, err
	}

	actor := actorOf(ctx)
	var created domain.Product
	err := s.inTx(ctx, "create_product", func(tx store.Tx) error {
		category, err := tx.GetCategory(ctx, strings.TrimSpace(req.CategoryID))
		if err != nil {
			return err
		}
		sku, err := idgen.NextSKU(ctx, tx, req.ProductCode, category.Code)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		product := domain.Product{
			ID:            idgen.NewID(),
			SKU:           sku,
			Name:          req.Name,
			CategoryID:    category.ID,
			ProductCode:   idgen.Normalize(req.ProductCode),
			StockUnit:     defaultString(req.StockUnit, "pcs"),
			CostPrice:     req.CostPrice,
			SellingPrice:  req.SellingPrice,
			MRP:           req.MRP,
			GSTPercentage: req.GSTPercentage,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertProduct(ctx, product); err != nil {
			return err
		}
		if req.InitialStock > 0 {
			ref := ledgerRef{Type: domain.RefProduct, ID: product.ID, Note: "opening stock"}
			entry, err := recordMovement(ctx, tx, product, domain.MovementIn, req.InitialStock, ref, actor, now)
			if err != nil {
				return err
			}
			product.StockQuantity = entry.NewStock
		}
		created = product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logActivity(ctx, "product_create", "product", created.ID, fmt.Sprintf("sku=%s,price=%s,stock=%d", created.SKU, created.SellingPrice, created.StockQuantity))
	return created, nil
}

// UpdateProduct edits mutable attributes. Price fields of a locked product
// can only be changed by a privileged actor.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor := actorOf(ctx)
	var saved domain.Product
	err := s.inTx(ctx, "update_product", func(tx store.Tx) error {
		existing, err := tx.GetProductForUpdate(ctx, strings.TrimSpace(id))
		if err != nil {
			return err
		}

		updated := *existing
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return validationError("product name is required")
			}
			updated.Name = name
		}
		if req.StockUnit != nil {
			updated.StockUnit = defaultString(*req.StockUnit, "pcs")
		}
		if req.CostPrice != nil {
			updated.CostPrice = *req.CostPrice
		}
		if req.SellingPrice != nil {
			updated.SellingPrice = *req.SellingPrice
		}
		if req.MRP != nil {
			updated.MRP = req.MRP
		}
		if req.GSTPercentage != nil {
			updated.GSTPercentage = req.GSTPercentage
		}
		if err := checkPrices(updated.CostPrice, updated.SellingPrice, updated.MRP, updated.GSTPercentage); err != nil {
			return err
		}

		priceChanged := pricesDiffer(*existing, updated)
		if priceChanged && existing.PriceLocked && !actor.Privileged() {
			return fmt.Errorf("%w: %s was sold and its prices can only be changed by an admin", store.ErrPriceLocked, existing.SKU)
		}

		now := s.now().UTC()
		updated.UpdatedAt = now
		if err := tx.UpdateProduct(ctx, updated); err != nil {
			return err
		}
		if priceChanged {
			if err := tx.InsertPriceHistory(ctx, domain.PriceHistory{
				ID:               idgen.NewID(),
				ProductID:        updated.ID,
				OldSellingPrice:  existing.SellingPrice,
				NewSellingPrice:  updated.SellingPrice,
				OldCostPrice:     existing.CostPrice,
				NewCostPrice:     updated.CostPrice,
				ChangedBy:        actor.Username,
				ChangedWhileLock: existing.PriceLocked,
				ChangedAt:        now,
			}); err != nil {
				return err
			}
		}
		saved = updated
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logActivity(ctx, "product_update", "product", saved.ID, fmt.Sprintf("sku=%s,price=%s,cost=%s", saved.SKU, saved.SellingPrice, saved.CostPrice))
	return saved, nil
}

func (s *Service) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.PriceHistory, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListPriceHistory(ctx, productID, limit)
}

// ListLedger returns the most recent entries of a product, newest first.
func (s *Service) ListLedger(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	entries, err := s.repo.ListLedger(ctx, productID, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

// VerifyLedger replays a product's ledger from zero and checks that each
// entry chains onto the previous one and that the result equals the
// product's current stock.
func (s *Service) VerifyLedger(ctx context.Context, productID string) (domain.LedgerVerification, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.LedgerVerification{}, err
	}
	entries, err := s.repo.ListLedger(ctx, productID, 0)
	if err != nil {
		return domain.LedgerVerification{}, err
	}

	result := domain.LedgerVerification{
		ProductID:     product.ID,
		StockQuantity: product.StockQuantity,
		LedgerEntries: len(entries),
		Consistent:    true,
	}
	running := 0
	for _, e := range entries {
		want := running + e.Type.Sign()*e.Quantity
		if e.PreviousStock != running || e.NewStock != want || e.NewStock < 0 {
			result.Consistent = false
			result.BrokenAt = e.ID
			result.Detail = fmt.Sprintf("expected %d -> %d, entry records %d -> %d", running, want, e.PreviousStock, e.NewStock)
			return result, nil
		}
		running = e.NewStock
	}
	if running != product.StockQuantity {
		result.Consistent = false
		result.Detail = fmt.Sprintf("ledger sums to %d, product stock is %d", running, product.StockQuantity)
	}
	return result, nil
}

func checkPrices(cost decimal.Decimal, selling decimal.Decimal, mrp *decimal.Decimal, gst *decimal.Decimal) error {
	if cost.IsNegative() || selling.IsNegative() {
		return validationError("prices must not be negative")
	}
	if mrp != nil && mrp.IsNegative() {
		return validationError("mrp must not be negative")
	}
	if gst != nil && (gst.IsNegative() || gst.GreaterThan(hundred)) {
		return validationError("gst percentage must be between 0 and 100")
	}
	if cost.GreaterThanOrEqual(domain.MaxMoney) || selling.GreaterThanOrEqual(domain.MaxMoney) ||
		(mrp != nil && mrp.GreaterThanOrEqual(domain.MaxMoney)) {
		return validationError("prices must be below %s", domain.MaxMoney)
	}
	return nil
}

func pricesDiffer(a domain.Product, b domain.Product) bool {
	return !a.CostPrice.Equal(b.CostPrice) ||
		!a.SellingPrice.Equal(b.SellingPrice) ||
		!optionalEqual(a.MRP, b.MRP) ||
		!optionalEqual(a.GSTPercentage, b.GSTPercentage)
}

func optionalEqual(a *decimal.Decimal, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
