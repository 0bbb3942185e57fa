package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/store"
)

type memTx struct {
	st *state
}

func (t *memTx) NextSequence(_ context.Context, scope string) (int64, error) {
	t.st.sequences[scope]++
	return t.st.sequences[scope], nil
}

func (t *memTx) GetProductForUpdate(_ context.Context, id string) (*domain.Product, error) {
	return t.st.product(id)
}

func (t *memTx) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	return t.st.productBySKUCode(sku)
}

func (t *memTx) FindProductByCode(_ context.Context, productCode string, categoryID string) (*domain.Product, error) {
	code := strings.ToUpper(strings.TrimSpace(productCode))
	var match *domain.Product
	for _, p := range t.st.products {
		if code == "" || strings.ToUpper(p.ProductCode) != code {
			continue
		}
		if categoryID != "" && p.CategoryID != categoryID {
			continue
		}
		// Oldest product wins so repeated imports keep updating the same row.
		if match == nil || p.CreatedAt.Before(match.CreatedAt) {
			match = &p
		}
	}
	if match == nil {
		return nil, store.ErrProductNotFound
	}
	return match, nil
}

func (t *memTx) SKUExists(_ context.Context, sku string) (bool, error) {
	_, ok := t.st.productBySKU[sku]
	return ok, nil
}

func (t *memTx) InsertProduct(_ context.Context, product domain.Product) error {
	if _, exists := t.st.productBySKU[product.SKU]; exists {
		return store.ErrDuplicateSKU
	}
	if product.StockQuantity < 0 {
		return store.ErrValidation
	}
	t.st.products[product.ID] = product
	t.st.productBySKU[product.SKU] = product.ID
	return nil
}

func (t *memTx) UpdateProduct(_ context.Context, product domain.Product) error {
	existing, ok := t.st.products[product.ID]
	if !ok {
		return store.ErrProductNotFound
	}
	product.SKU = existing.SKU
	product.StockQuantity = existing.StockQuantity
	t.st.products[product.ID] = product
	return nil
}

func (t *memTx) AdjustStock(_ context.Context, productID string, delta int) (int, int, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return 0, 0, store.ErrProductNotFound
	}
	previous := p.StockQuantity
	if previous+delta < 0 {
		return 0, 0, &store.InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: previous, Requested: -delta}
	}
	p.StockQuantity = previous + delta
	t.st.products[productID] = p
	return previous, p.StockQuantity, nil
}

func (t *memTx) AppendLedger(_ context.Context, entry domain.LedgerEntry) error {
	if entry.Quantity <= 0 || entry.NewStock < 0 {
		return store.ErrValidation
	}
	t.st.ledger = append(t.st.ledger, entry)
	return nil
}

func (t *memTx) InsertPriceHistory(_ context.Context, entry domain.PriceHistory) error {
	t.st.priceHistory = append(t.st.priceHistory, entry)
	return nil
}

func (t *memTx) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	c, ok := t.st.categories[id]
	if !ok {
		return nil, store.ErrCategoryNotFound
	}
	return &c, nil
}

func (t *memTx) GetCategoryByName(_ context.Context, name string) (*domain.Category, error) {
	for _, c := range t.st.categories {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return &c, nil
		}
	}
	return nil, store.ErrCategoryNotFound
}

func (t *memTx) CategoryCodeExists(_ context.Context, code string) (bool, error) {
	for _, c := range t.st.categories {
		if strings.EqualFold(c.Code, code) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertCategory(ctx context.Context, category domain.Category) error {
	if _, err := t.GetCategoryByName(ctx, category.Name); err == nil {
		return store.ErrDuplicateCategory
	}
	if exists, _ := t.CategoryCodeExists(ctx, category.Code); exists {
		return store.ErrDuplicateCategory
	}
	t.st.categories[category.ID] = category
	return nil
}

func (t *memTx) GetCustomerByMobile(_ context.Context, mobile string) (*domain.Customer, error) {
	c, ok := t.st.customerByMobile(mobile)
	if !ok {
		return nil, store.ErrCustomerNotFound
	}
	return c, nil
}

func (t *memTx) InsertCustomer(_ context.Context, customer domain.Customer) error {
	if _, exists := t.st.customerByMob[customer.Mobile]; exists {
		return store.ErrConflict
	}
	t.st.customers[customer.ID] = customer
	t.st.customerByMob[customer.Mobile] = customer.ID
	return nil
}

func (t *memTx) UpdateCustomer(_ context.Context, customer domain.Customer) error {
	if _, ok := t.st.customers[customer.ID]; !ok {
		return store.ErrCustomerNotFound
	}
	t.st.customers[customer.ID] = customer
	return nil
}

func (t *memTx) CustomerBillTotals(_ context.Context, customerID string) (domain.CustomerTotals, error) {
	totals := domain.CustomerTotals{TotalPurchases: decimal.Zero}
	for _, b := range t.st.bills {
		if b.CustomerID != customerID {
			continue
		}
		totals.TotalPurchases = totals.TotalPurchases.Add(b.GrandTotal)
		totals.PurchaseCount++
		if totals.LastPurchaseAt == nil || b.CreatedAt.After(*totals.LastPurchaseAt) {
			at := b.CreatedAt
			totals.LastPurchaseAt = &at
		}
	}
	return totals, nil
}

func (t *memTx) InsertBill(_ context.Context, bill domain.Bill) error {
	if _, exists := t.st.billByNumber[bill.BillNumber]; exists {
		return store.ErrConflict
	}
	t.st.bills[bill.ID] = cloneBill(bill)
	t.st.billByNumber[bill.BillNumber] = bill.ID
	return nil
}

func (t *memTx) GetBill(_ context.Context, id string) (*domain.Bill, error) {
	return t.st.bill(id)
}

func (t *memTx) ReturnedQuantities(_ context.Context, billID string) (map[string]int, error) {
	result := map[string]int{}
	for _, r := range t.st.returns {
		if r.BillID != billID {
			continue
		}
		for _, item := range r.Items {
			result[item.ProductID] += item.Quantity
		}
	}
	return result, nil
}

func (t *memTx) InsertReturn(_ context.Context, ret domain.Return) error {
	ret.Items = slices.Clone(ret.Items)
	t.st.returns = append(t.st.returns, ret)
	return nil
}

func (t *memTx) InsertWastage(_ context.Context, wastage domain.Wastage) error {
	t.st.wastage = append(t.st.wastage, wastage)
	return nil
}

func (t *memTx) GetStockAuditForUpdate(_ context.Context, id string) (*domain.StockAudit, error) {
	return t.st.audit(id)
}

func (t *memTx) InsertStockAudit(_ context.Context, audit domain.StockAudit) error {
	for _, a := range t.st.audits {
		if a.AuditNumber == audit.AuditNumber {
			return store.ErrConflict
		}
	}
	audit.Items = slices.Clone(audit.Items)
	t.st.audits[audit.ID] = audit
	return nil
}

func (t *memTx) UpdateStockAudit(_ context.Context, audit domain.StockAudit) error {
	if _, ok := t.st.audits[audit.ID]; !ok {
		return store.ErrAuditNotFound
	}
	audit.Items = slices.Clone(audit.Items)
	t.st.audits[audit.ID] = audit
	return nil
}

func (t *memTx) InsertLot(_ context.Context, lot domain.Lot) error {
	for _, l := range t.st.lots {
		if l.LotNumber == lot.LotNumber {
			return store.ErrConflict
		}
	}
	t.st.lots[lot.ID] = lot
	return nil
}
