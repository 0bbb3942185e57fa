package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/store"
)

type pgTx struct {
	q *sql.Tx
}

func (t *pgTx) NextSequence(ctx context.Context, scope string) (int64, error) {
	var value int64
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO id_sequences (scope, value)
		VALUES ($1, 1)
		ON CONFLICT (scope) DO UPDATE SET value = id_sequences.value + 1
		RETURNING value
	`, scope).Scan(&value)
	return value, err
}

func (t *pgTx) GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, t.q, `id = $1 FOR UPDATE`, id)
}

func (t *pgTx) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return getProduct(ctx, t.q, `sku = $1`, strings.ToUpper(strings.TrimSpace(sku)))
}

func (t *pgTx) FindProductByCode(ctx context.Context, productCode string, categoryID string) (*domain.Product, error) {
	return scanProduct(t.q.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE upper(product_code) = upper($1)
			AND ($2 = '' OR category_id = $2)
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE
	`, strings.TrimSpace(productCode), categoryID))
}

func (t *pgTx) SKUExists(ctx context.Context, sku string) (bool, error) {
	var exists bool
	err := t.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE sku = $1)`, sku).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertProduct(ctx context.Context, p domain.Product) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, p.ID, p.SKU, p.Name, p.CategoryID, p.ProductCode, p.StockUnit, p.CostPrice, p.SellingPrice,
		nullDecimal(p.MRP), nullDecimal(p.GSTPercentage), p.StockQuantity, p.PriceLocked, p.PriceLockedBy, nullTime(p.PriceLockedAt),
		p.LotID, nullTime(p.PurchaseDate), p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicateSKU
	}
	return err
}

func (t *pgTx) UpdateProduct(ctx context.Context, p domain.Product) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category_id = $3, product_code = $4, stock_unit = $5,
			cost_price = $6, selling_price = $7, mrp = $8, gst_percentage = $9,
			price_locked = $10, price_locked_by = $11, price_locked_at = $12,
			lot_id = $13, purchase_date = $14, updated_at = $15
		WHERE id = $1
	`, p.ID, p.Name, p.CategoryID, p.ProductCode, p.StockUnit,
		p.CostPrice, p.SellingPrice, nullDecimal(p.MRP), nullDecimal(p.GSTPercentage),
		p.PriceLocked, p.PriceLockedBy, nullTime(p.PriceLockedAt),
		p.LotID, nullTime(p.PurchaseDate), p.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrProductNotFound
	}
	return nil
}

// AdjustStock relies on the floor check in the WHERE clause so concurrent
// decrements can never drive stock below zero.
func (t *pgTx) AdjustStock(ctx context.Context, productID string, delta int) (int, int, error) {
	var current int
	err := t.q.QueryRowContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1 AND stock_quantity + $2 >= 0
		RETURNING stock_quantity
	`, productID, delta).Scan(&current)
	if err == nil {
		return current - delta, current, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, 0, err
	}

	p, getErr := getProduct(ctx, t.q, `id = $1`, productID)
	if getErr != nil {
		return 0, 0, getErr
	}
	return 0, 0, &store.InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.StockQuantity, Requested: -delta}
}

func (t *pgTx) AppendLedger(ctx context.Context, e domain.LedgerEntry) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO stock_ledger (
			id, product_id, sku, type, quantity, previous_stock, new_stock,
			reference_type, reference_id, reference_number, note, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, e.ID, e.ProductID, e.SKU, string(e.Type), e.Quantity, e.PreviousStock, e.NewStock,
		e.ReferenceType, e.ReferenceID, e.ReferenceNumber, e.Note, e.CreatedBy, e.CreatedAt)
	return err
}

func (t *pgTx) InsertPriceHistory(ctx context.Context, h domain.PriceHistory) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO price_history (
			id, product_id, old_selling_price, new_selling_price, old_cost_price, new_cost_price,
			changed_by, changed_while_lock, changed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, h.ID, h.ProductID, h.OldSellingPrice, h.NewSellingPrice, h.OldCostPrice, h.NewCostPrice,
		h.ChangedBy, h.ChangedWhileLock, h.ChangedAt)
	return err
}

func scanCategory(row rowScanner) (*domain.Category, error) {
	var c domain.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCategoryNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (t *pgTx) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	return scanCategory(t.q.QueryRowContext(ctx, `SELECT id, name, code, created_at FROM categories WHERE id = $1`, id))
}

func (t *pgTx) GetCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	return scanCategory(t.q.QueryRowContext(ctx, `
		SELECT id, name, code, created_at FROM categories WHERE lower(name) = lower($1)
	`, strings.TrimSpace(name)))
}

func (t *pgTx) CategoryCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := t.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE upper(code) = upper($1))`, code).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertCategory(ctx context.Context, c domain.Category) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO categories (id, name, code, created_at) VALUES ($1,$2,$3,$4)
	`, c.ID, c.Name, c.Code, c.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicateCategory
	}
	return err
}

func (t *pgTx) GetCustomerByMobile(ctx context.Context, mobile string) (*domain.Customer, error) {
	return scanCustomer(t.q.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE mobile = $1 FOR UPDATE`, mobile))
}

func (t *pgTx) InsertCustomer(ctx context.Context, c domain.Customer) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, c.ID, c.Mobile, c.Name, c.Email, c.GSTNumber, c.FirmName, c.Address,
		c.TotalPurchases, c.PurchaseCount, nullTime(c.LastPurchaseAt), c.CreatedAt, c.UpdatedAt)
	return err
}

func (t *pgTx) UpdateCustomer(ctx context.Context, c domain.Customer) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, email = $3, gst_number = $4, firm_name = $5, address = $6,
			total_purchases = $7, purchase_count = $8, last_purchase_at = $9, updated_at = $10
		WHERE id = $1
	`, c.ID, c.Name, c.Email, c.GSTNumber, c.FirmName, c.Address,
		c.TotalPurchases, c.PurchaseCount, nullTime(c.LastPurchaseAt), c.UpdatedAt)
	return err
}

func (t *pgTx) CustomerBillTotals(ctx context.Context, customerID string) (domain.CustomerTotals, error) {
	var totals domain.CustomerTotals
	var last sql.NullTime
	err := t.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(grand_total), 0), COUNT(*), MAX(created_at)
		FROM bills
		WHERE customer_id = $1
	`, customerID).Scan(&totals.TotalPurchases, &totals.PurchaseCount, &last)
	totals.LastPurchaseAt = timePtr(last)
	return totals, err
}

func (t *pgTx) InsertBill(ctx context.Context, b domain.Bill) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO bills (`+billColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, b.ID, b.BillNumber, b.CustomerID, b.CustomerName, b.CustomerMobile, b.CustomerEmail,
		b.CustomerGSTNumber, b.CustomerFirmName, b.Subtotal, b.TotalGST, b.AdditionalChargesTotal,
		b.DiscountPercentage, b.DiscountAmount, b.GrandTotal, b.PaymentMode, b.CreatedBy, b.CreatedAt)
	if err != nil {
		return err
	}

	for i, it := range b.Items {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO bill_items (
				bill_id, line_no, product_id, sku, name, quantity, unit_price,
				gst_percentage, gst_amount, line_subtotal, line_total
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, b.ID, i+1, it.ProductID, it.SKU, it.Name, it.Quantity, it.UnitPrice,
			it.GSTPercentage, it.GSTAmount, it.LineSubtotal, it.LineTotal); err != nil {
			return err
		}
	}
	for i, c := range b.AdditionalCharges {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO bill_charges (bill_id, line_no, name, quantity, unit, rate, amount)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, b.ID, i+1, c.Name, c.Quantity, c.Unit, c.Rate, c.Amount); err != nil {
			return err
		}
	}
	return nil
}

// GetBill locks the bill row so concurrent returns against it serialize.
func (t *pgTx) GetBill(ctx context.Context, id string) (*domain.Bill, error) {
	return getBill(ctx, t.q, `id = $1 FOR UPDATE`, id)
}

func (t *pgTx) ReturnedQuantities(ctx context.Context, billID string) (map[string]int, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT ri.product_id, SUM(ri.quantity)
		FROM return_items ri
		JOIN returns r ON r.id = ri.return_id
		WHERE r.bill_id = $1
		GROUP BY ri.product_id
	`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string]int{}
	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		result[productID] = qty
	}
	return result, rows.Err()
}

func (t *pgTx) InsertReturn(ctx context.Context, r domain.Return) error {
	if _, err := t.q.ExecContext(ctx, `
		INSERT INTO returns (id, bill_id, bill_number, refund_amount, refund_mode, reason, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, r.ID, r.BillID, r.BillNumber, r.RefundAmount, r.RefundMode, r.Reason, r.CreatedBy, r.CreatedAt); err != nil {
		return err
	}
	for i, it := range r.Items {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO return_items (return_id, line_no, product_id, sku, name, quantity, unit_price, amount)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, r.ID, i+1, it.ProductID, it.SKU, it.Name, it.Quantity, it.UnitPrice, it.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) InsertWastage(ctx context.Context, w domain.Wastage) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO wastage (id, product_id, sku, name, quantity, reason, cost_impact, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, w.ID, w.ProductID, w.SKU, w.Name, w.Quantity, w.Reason, w.CostImpact, w.CreatedBy, w.CreatedAt)
	return err
}

func (t *pgTx) GetStockAuditForUpdate(ctx context.Context, id string) (*domain.StockAudit, error) {
	return getAudit(ctx, t.q, id, true)
}

func (t *pgTx) InsertStockAudit(ctx context.Context, a domain.StockAudit) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO stock_audits (`+auditColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, a.ID, a.AuditNumber, string(a.Status), a.TotalProducts, a.Discrepancies, a.Notes,
		a.AdjustmentsApplied, a.CreatedBy, a.CreatedAt, nullTime(a.CompletedAt), nullTime(a.CancelledAt))
	if err != nil {
		return err
	}
	return t.replaceAuditItems(ctx, a)
}

func (t *pgTx) UpdateStockAudit(ctx context.Context, a domain.StockAudit) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE stock_audits
		SET status = $2, total_products = $3, discrepancies = $4, notes = $5,
			adjustments_applied = $6, completed_at = $7, cancelled_at = $8
		WHERE id = $1
	`, a.ID, string(a.Status), a.TotalProducts, a.Discrepancies, a.Notes,
		a.AdjustmentsApplied, nullTime(a.CompletedAt), nullTime(a.CancelledAt))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrAuditNotFound
	}
	return t.replaceAuditItems(ctx, a)
}

func (t *pgTx) replaceAuditItems(ctx context.Context, a domain.StockAudit) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM stock_audit_items WHERE audit_id = $1`, a.ID); err != nil {
		return err
	}
	for i, it := range a.Items {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO stock_audit_items (
				audit_id, position, product_id, sku, name, system_stock, physical_count, difference, notes, scanned_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, a.ID, i, it.ProductID, it.SKU, it.Name, it.SystemStock, it.PhysicalCount, it.Difference, it.Notes, it.ScannedAt); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) InsertLot(ctx context.Context, l domain.Lot) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO lots (`+lotColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, l.ID, l.LotNumber, l.CategoryID, l.ProductCount, l.TotalStockValue, l.Status, l.CreatedBy, l.CreatedAt)
	return err
}
