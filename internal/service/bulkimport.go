package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/idgen"
	"garmentpos/backend/internal/store"
)

const lotStatusActive = "active"

// rowError rejects a single import row without aborting the batch.
type rowError struct {
	msg string
}

func (e *rowError) Error() string { return e.msg }

func rowErrorf(format string, args ...any) error {
	return &rowError{msg: fmt.Sprintf(format, args...)}
}

// BulkImportProducts applies parsed spreadsheet rows in one unit of work.
// Invalid rows are reported and skipped. Created products are grouped under
// a single new lot; products matched in update mode are not.
func (s *Service) BulkImportProducts(ctx context.Context, req domain.BulkImportRequest) (domain.BulkImportResult, error) {
	if len(req.Rows) == 0 {
		return domain.BulkImportResult{}, validationError("import has no rows")
	}

	actor := actorOf(ctx)
	var result domain.BulkImportResult
	err := s.inTx(ctx, "bulk_import", func(tx store.Tx) error {
		result = domain.BulkImportResult{
			Created: []domain.Product{},
			Updated: []domain.Product{},
			Errors:  []domain.ImportRowError{},
		}
		nowUTC, local := s.clock()

		var fallback *domain.Category
		if id := strings.TrimSpace(req.CategoryID); id != "" {
			category, err := tx.GetCategory(ctx, id)
			if err != nil {
				return err
			}
			fallback = category
		}

		run := &importRun{
			tx:         tx,
			actor:      actor,
			now:        nowUTC,
			local:      local,
			lotID:      idgen.NewID(),
			batchID:    idgen.NewID(),
			fallback:   fallback,
			categories: map[string]domain.Category{},
		}
		for i, row := range req.Rows {
			if row.RowNumber == 0 {
				row.RowNumber = i + 1
			}
			product, updated, err := run.apply(ctx, row, req.UpdateStock)
			var rerr *rowError
			switch {
			case errors.As(err, &rerr):
				result.Errors = append(result.Errors, domain.ImportRowError{Row: row.RowNumber, Message: rerr.msg})
			case err != nil:
				return fmt.Errorf("row %d: %w", row.RowNumber, err)
			case updated:
				result.Updated = append(result.Updated, product)
			default:
				result.Created = append(result.Created, product)
			}
		}

		if len(result.Created) > 0 {
			lot := domain.Lot{
				ID:              run.lotID,
				LotNumber:       run.lotNumber,
				CategoryID:      lotCategory(fallback, result.Created),
				ProductCount:    len(result.Created),
				TotalStockValue: decimal.Zero,
				Status:          lotStatusActive,
				CreatedBy:       actor.Username,
				CreatedAt:       nowUTC,
			}
			for _, p := range result.Created {
				lot.TotalStockValue = lot.TotalStockValue.Add(p.CostPrice.Mul(decimal.NewFromInt(int64(p.StockQuantity))))
			}
			lot.TotalStockValue = lot.TotalStockValue.Round(2)
			if err := tx.InsertLot(ctx, lot); err != nil {
				return err
			}
			result.Lot = &lot
		}
		result.CreatedCount = len(result.Created)
		result.UpdatedCount = len(result.Updated)
		result.ErrorCount = len(result.Errors)
		return nil
	})
	if err != nil {
		return domain.BulkImportResult{}, err
	}

	lotNumber := ""
	if result.Lot != nil {
		lotNumber = result.Lot.LotNumber
		s.logActivity(ctx, "lot_create", "lot", result.Lot.ID, fmt.Sprintf("number=%s,products=%d,value=%s", lotNumber, result.Lot.ProductCount, result.Lot.TotalStockValue))
	}
	log.Info().
		Int("created", result.CreatedCount).
		Int("updated", result.UpdatedCount).
		Int("errors", result.ErrorCount).
		Str("lot", lotNumber).
		Msg("bulk import applied")
	s.logActivity(ctx, "bulk_import", "import", "", fmt.Sprintf("created=%d,updated=%d,errors=%d", result.CreatedCount, result.UpdatedCount, result.ErrorCount))
	return result, nil
}

func (s *Service) GetLot(ctx context.Context, id string) (domain.Lot, error) {
	lot, err := s.repo.GetLot(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Lot{}, err
	}
	return *lot, nil
}

func (s *Service) ListLots(ctx context.Context, limit int) ([]domain.Lot, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListLots(ctx, limit)
}

type importRun struct {
	tx         store.Tx
	actor      domain.Actor
	now        time.Time
	local      time.Time
	lotID      string
	lotNumber  string
	batchID    string
	fallback   *domain.Category
	categories map[string]domain.Category
}

func (r *importRun) apply(ctx context.Context, row domain.ParsedRow, updateStock bool) (domain.Product, bool, error) {
	if row.ParseError != "" {
		return domain.Product{}, false, rowErrorf("%s", row.ParseError)
	}
	name := strings.TrimSpace(row.Name)
	if name == "" {
		return domain.Product{}, false, rowErrorf("product name is required")
	}
	if row.StockQuantity < 0 {
		return domain.Product{}, false, rowErrorf("stock quantity must not be negative")
	}
	if row.StockQuantity > domain.MaxStockQuantity {
		return domain.Product{}, false, rowErrorf("stock quantity must not exceed %d", domain.MaxStockQuantity)
	}
	if err := checkPrices(row.CostPrice, row.SellingPrice, row.MRP, row.GSTPercentage); err != nil {
		return domain.Product{}, false, rowErrorf("%s", strings.TrimPrefix(err.Error(), store.ErrValidation.Error()+": "))
	}

	category, err := r.category(ctx, row.CategoryName)
	if err != nil {
		return domain.Product{}, false, err
	}

	if updateStock && idgen.Normalize(row.ProductCode) != "" {
		existing, err := r.findExisting(ctx, row.ProductCode, category.ID)
		if err != nil {
			return domain.Product{}, false, err
		}
		if existing != nil {
			updated, err := r.update(ctx, *existing, row, name)
			return updated, true, err
		}
	}

	// Categories named by a row are only created once the row is accepted.
	if category.ID == "" {
		if category, err = r.createCategory(ctx, category.Name); err != nil {
			return domain.Product{}, false, err
		}
	}
	created, err := r.create(ctx, row, name, category)
	return created, false, err
}

// category resolves the row's category by name and falls back to the
// category chosen for the whole import. A name with no stored category
// yields a Category with an empty ID.
func (r *importRun) category(ctx context.Context, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		if r.fallback == nil {
			return domain.Category{}, rowErrorf("category is required")
		}
		return *r.fallback, nil
	}

	key := strings.ToLower(name)
	if c, ok := r.categories[key]; ok {
		return c, nil
	}
	existing, err := r.tx.GetCategoryByName(ctx, name)
	switch {
	case err == nil:
		r.categories[key] = *existing
		return *existing, nil
	case errors.Is(err, store.ErrNotFound):
		return domain.Category{Name: name}, nil
	default:
		return domain.Category{}, err
	}
}

func (r *importRun) createCategory(ctx context.Context, name string) (domain.Category, error) {
	created, err := createCategory(ctx, r.tx, name, "", r.now)
	if err != nil {
		return domain.Category{}, err
	}
	r.categories[strings.ToLower(name)] = created
	return created, nil
}

func (r *importRun) findExisting(ctx context.Context, productCode string, categoryID string) (*domain.Product, error) {
	scopes := []string{""}
	if categoryID != "" {
		scopes = []string{categoryID, ""}
	}
	for _, scope := range scopes {
		p, err := r.tx.FindProductByCode(ctx, productCode, scope)
		if err == nil {
			return r.tx.GetProductForUpdate(ctx, p.ID)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (r *importRun) update(ctx context.Context, existing domain.Product, row domain.ParsedRow, name string) (domain.Product, error) {
	updated := existing
	updated.Name = name
	if unit := strings.TrimSpace(row.StockUnit); unit != "" {
		updated.StockUnit = unit
	}
	updated.CostPrice = row.CostPrice
	updated.SellingPrice = row.SellingPrice
	if row.MRP != nil {
		updated.MRP = row.MRP
	}
	if row.GSTPercentage != nil {
		updated.GSTPercentage = row.GSTPercentage
	}
	if row.PurchaseDate != nil {
		updated.PurchaseDate = row.PurchaseDate
	}

	priceChanged := pricesDiffer(existing, updated)
	if priceChanged && existing.PriceLocked && !r.actor.Privileged() {
		return domain.Product{}, rowErrorf("%s is price locked; only an admin can change its prices", existing.SKU)
	}

	updated.UpdatedAt = r.now
	if err := r.tx.UpdateProduct(ctx, updated); err != nil {
		return domain.Product{}, err
	}
	if priceChanged {
		if err := r.tx.InsertPriceHistory(ctx, domain.PriceHistory{
			ID:               idgen.NewID(),
			ProductID:        updated.ID,
			OldSellingPrice:  existing.SellingPrice,
			NewSellingPrice:  updated.SellingPrice,
			OldCostPrice:     existing.CostPrice,
			NewCostPrice:     updated.CostPrice,
			ChangedBy:        r.actor.Username,
			ChangedWhileLock: existing.PriceLocked,
			ChangedAt:        r.now,
		}); err != nil {
			return domain.Product{}, err
		}
	}

	ref := ledgerRef{Type: domain.RefImport, ID: r.batchID, Note: fmt.Sprintf("import row %d", row.RowNumber)}
	delta := row.StockQuantity - existing.StockQuantity
	var err error
	switch {
	case delta > 0:
		_, err = recordMovement(ctx, r.tx, updated, domain.MovementIn, delta, ref, r.actor, r.now)
	case delta < 0:
		_, err = recordMovement(ctx, r.tx, updated, domain.MovementOut, -delta, ref, r.actor, r.now)
	}
	if err != nil {
		return domain.Product{}, err
	}
	updated.StockQuantity = row.StockQuantity
	return updated, nil
}

func (r *importRun) create(ctx context.Context, row domain.ParsedRow, name string, category domain.Category) (domain.Product, error) {
	if r.lotNumber == "" {
		number, err := idgen.NextLotNumber(ctx, r.tx, r.local)
		if err != nil {
			return domain.Product{}, err
		}
		r.lotNumber = number
	}
	sku, err := idgen.NextSKU(ctx, r.tx, row.ProductCode, category.Code)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:            idgen.NewID(),
		SKU:           sku,
		Name:          name,
		CategoryID:    category.ID,
		ProductCode:   idgen.Normalize(row.ProductCode),
		StockUnit:     defaultString(row.StockUnit, "pcs"),
		CostPrice:     row.CostPrice,
		SellingPrice:  row.SellingPrice,
		MRP:           row.MRP,
		GSTPercentage: row.GSTPercentage,
		LotID:         r.lotID,
		PurchaseDate:  row.PurchaseDate,
		CreatedAt:     r.now,
		UpdatedAt:     r.now,
	}
	if err := r.tx.InsertProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}
	if row.StockQuantity > 0 {
		ref := ledgerRef{Type: domain.RefLot, ID: r.lotID, Number: r.lotNumber}
		entry, err := recordMovement(ctx, r.tx, product, domain.MovementIn, row.StockQuantity, ref, r.actor, r.now)
		if err != nil {
			return domain.Product{}, err
		}
		product.StockQuantity = entry.NewStock
	}
	return product, nil
}

// lotCategory is the import's chosen category, or the category every created
// product shares. Mixed imports leave it empty.
func lotCategory(fallback *domain.Category, created []domain.Product) string {
	if fallback != nil {
		return fallback.ID
	}
	categoryID := created[0].CategoryID
	for _, p := range created[1:] {
		if p.CategoryID != categoryID {
			return ""
		}
	}
	return categoryID
}
