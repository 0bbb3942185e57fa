package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx so read helpers can run
// inside or outside a unit of work.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{q: sqlTx}); err != nil {
		return mapError(err)
	}
	return mapError(sqlTx.Commit())
}

const productColumns = `
	id, sku, name, category_id, product_code, stock_unit, cost_price, selling_price,
	mrp, gst_percentage, stock_quantity, price_locked, price_locked_by, price_locked_at,
	lot_id, purchase_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p            domain.Product
		mrp, gst     decimal.NullDecimal
		lockedAt     sql.NullTime
		purchaseDate sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.CategoryID, &p.ProductCode, &p.StockUnit, &p.CostPrice, &p.SellingPrice,
		&mrp, &gst, &p.StockQuantity, &p.PriceLocked, &p.PriceLockedBy, &lockedAt,
		&p.LotID, &purchaseDate, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProductNotFound
		}
		return nil, err
	}
	p.MRP = decimalPtr(mrp)
	p.GSTPercentage = decimalPtr(gst)
	p.PriceLockedAt = timePtr(lockedAt)
	p.PurchaseDate = timePtr(purchaseDate)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func getProduct(ctx context.Context, q queryer, where string, arg any) (*domain.Product, error) {
	return scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE `+where, arg))
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, `id = $1`, id)
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return getProduct(ctx, s.db, `sku = $1`, strings.ToUpper(strings.TrimSpace(sku)))
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 = '' OR category_id = $1)
			AND ($2 = '' OR lot_id = $2)
			AND ($3 = '' OR name ILIKE '%' || $3 || '%' OR sku ILIKE '%' || $3 || '%')
		ORDER BY sku
	`, filter.CategoryID, filter.LotID, strings.TrimSpace(filter.Search))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.PriceHistory, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, old_selling_price, new_selling_price, old_cost_price, new_cost_price,
			changed_by, changed_while_lock, changed_at
		FROM price_history
		WHERE product_id = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.PriceHistory
	for rows.Next() {
		var h domain.PriceHistory
		if err := rows.Scan(&h.ID, &h.ProductID, &h.OldSellingPrice, &h.NewSellingPrice, &h.OldCostPrice, &h.NewCostPrice,
			&h.ChangedBy, &h.ChangedWhileLock, &h.ChangedAt); err != nil {
			return nil, err
		}
		h.ChangedAt = h.ChangedAt.UTC()
		history = append(history, h)
	}
	return history, rows.Err()
}

// ListLedger returns the product's most recent entries, oldest first.
func (s *Store) ListLedger(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	if limit < 1 {
		limit = 1_000_000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, sku, type, quantity, previous_stock, new_stock,
			reference_type, reference_id, reference_number, note, created_by, created_at
		FROM (
			SELECT * FROM stock_ledger WHERE product_id = $1 ORDER BY seq DESC LIMIT $2
		) recent
		ORDER BY seq ASC
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var movement string
		if err := rows.Scan(&e.ID, &e.ProductID, &e.SKU, &movement, &e.Quantity, &e.PreviousStock, &e.NewStock,
			&e.ReferenceType, &e.ReferenceID, &e.ReferenceNumber, &e.Note, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = domain.MovementType(movement)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, code, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

const billColumns = `
	id, bill_number, customer_id, customer_name, customer_mobile, customer_email,
	customer_gst_number, customer_firm_name, subtotal, total_gst, additional_charges_total,
	discount_percentage, discount_amount, grand_total, payment_mode, created_by, created_at`

func scanBill(row rowScanner) (*domain.Bill, error) {
	var b domain.Bill
	err := row.Scan(&b.ID, &b.BillNumber, &b.CustomerID, &b.CustomerName, &b.CustomerMobile, &b.CustomerEmail,
		&b.CustomerGSTNumber, &b.CustomerFirmName, &b.Subtotal, &b.TotalGST, &b.AdditionalChargesTotal,
		&b.DiscountPercentage, &b.DiscountAmount, &b.GrandTotal, &b.PaymentMode, &b.CreatedBy, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrBillNotFound
		}
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

func getBill(ctx context.Context, q queryer, where string, arg any) (*domain.Bill, error) {
	bill, err := scanBill(q.QueryRowContext(ctx, `SELECT `+billColumns+` FROM bills WHERE `+where, arg))
	if err != nil {
		return nil, err
	}
	if err := loadBillLines(ctx, q, bill); err != nil {
		return nil, err
	}
	return bill, nil
}

func loadBillLines(ctx context.Context, q queryer, bill *domain.Bill) error {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, sku, name, quantity, unit_price, gst_percentage, gst_amount, line_subtotal, line_total
		FROM bill_items
		WHERE bill_id = $1
		ORDER BY line_no
	`, bill.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var it domain.BillItem
		if err := rows.Scan(&it.ProductID, &it.SKU, &it.Name, &it.Quantity, &it.UnitPrice, &it.GSTPercentage,
			&it.GSTAmount, &it.LineSubtotal, &it.LineTotal); err != nil {
			_ = rows.Close()
			return err
		}
		bill.Items = append(bill.Items, it)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	chargeRows, err := q.QueryContext(ctx, `
		SELECT name, quantity, unit, rate, amount
		FROM bill_charges
		WHERE bill_id = $1
		ORDER BY line_no
	`, bill.ID)
	if err != nil {
		return err
	}
	defer chargeRows.Close()
	for chargeRows.Next() {
		var c domain.AdditionalCharge
		if err := chargeRows.Scan(&c.Name, &c.Quantity, &c.Unit, &c.Rate, &c.Amount); err != nil {
			return err
		}
		bill.AdditionalCharges = append(bill.AdditionalCharges, c)
	}
	return chargeRows.Err()
}

func (s *Store) GetBill(ctx context.Context, id string) (*domain.Bill, error) {
	return getBill(ctx, s.db, `id = $1`, id)
}

func (s *Store) GetBillByNumber(ctx context.Context, billNumber string) (*domain.Bill, error) {
	return getBill(ctx, s.db, `bill_number = $1`, billNumber)
}

func (s *Store) ListBills(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Bill, error) {
	if limit < 1 {
		limit = 200
	}
	return s.listBills(ctx, `created_at >= $1 AND created_at < $2 ORDER BY created_at DESC LIMIT $3`, from, to, limit)
}

func (s *Store) ListBillsByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Bill, error) {
	if limit < 1 {
		limit = 200
	}
	return s.listBills(ctx, `customer_id = $1 ORDER BY created_at DESC LIMIT $2`, customerID, limit)
}

func (s *Store) listBills(ctx context.Context, clause string, args ...any) ([]domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+billColumns+` FROM bills WHERE `+clause, args...)
	if err != nil {
		return nil, err
	}
	var bills []domain.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		bills = append(bills, *b)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range bills {
		if err := loadBillLines(ctx, s.db, &bills[i]); err != nil {
			return nil, err
		}
	}
	return bills, nil
}

func (s *Store) ListReturnsByBill(ctx context.Context, billID string) ([]domain.Return, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bill_id, bill_number, refund_amount, refund_mode, reason, created_by, created_at
		FROM returns
		WHERE bill_id = $1
		ORDER BY created_at
	`, billID)
	if err != nil {
		return nil, err
	}
	var returns []domain.Return
	for rows.Next() {
		var r domain.Return
		if err := rows.Scan(&r.ID, &r.BillID, &r.BillNumber, &r.RefundAmount, &r.RefundMode, &r.Reason, &r.CreatedBy, &r.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		returns = append(returns, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range returns {
		items, err := s.returnItems(ctx, returns[i].ID)
		if err != nil {
			return nil, err
		}
		returns[i].Items = items
	}
	return returns, nil
}

func (s *Store) returnItems(ctx context.Context, returnID string) ([]domain.ReturnItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, sku, name, quantity, unit_price, amount
		FROM return_items
		WHERE return_id = $1
		ORDER BY line_no
	`, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.ReturnItem
	for rows.Next() {
		var it domain.ReturnItem
		if err := rows.Scan(&it.ProductID, &it.SKU, &it.Name, &it.Quantity, &it.UnitPrice, &it.Amount); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) ListWastage(ctx context.Context, limit int) ([]domain.Wastage, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, sku, name, quantity, reason, cost_impact, created_by, created_at
		FROM wastage
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.Wastage
	for rows.Next() {
		var w domain.Wastage
		if err := rows.Scan(&w.ID, &w.ProductID, &w.SKU, &w.Name, &w.Quantity, &w.Reason, &w.CostImpact, &w.CreatedBy, &w.CreatedAt); err != nil {
			return nil, err
		}
		w.CreatedAt = w.CreatedAt.UTC()
		records = append(records, w)
	}
	return records, rows.Err()
}

const customerColumns = `
	id, mobile, name, email, gst_number, firm_name, address,
	total_purchases, purchase_count, last_purchase_at, created_at, updated_at`

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var c domain.Customer
	var last sql.NullTime
	err := row.Scan(&c.ID, &c.Mobile, &c.Name, &c.Email, &c.GSTNumber, &c.FirmName, &c.Address,
		&c.TotalPurchases, &c.PurchaseCount, &last, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCustomerNotFound
		}
		return nil, err
	}
	c.LastPurchaseAt = timePtr(last)
	return &c, nil
}

func (s *Store) GetCustomerByMobile(ctx context.Context, mobile string) (*domain.Customer, error) {
	return scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE mobile = $1`, mobile))
}

const auditColumns = `
	id, audit_number, status, total_products, discrepancies, notes,
	adjustments_applied, created_by, created_at, completed_at, cancelled_at`

func scanAudit(row rowScanner) (*domain.StockAudit, error) {
	var a domain.StockAudit
	var status string
	var completed, cancelled sql.NullTime
	err := row.Scan(&a.ID, &a.AuditNumber, &status, &a.TotalProducts, &a.Discrepancies, &a.Notes,
		&a.AdjustmentsApplied, &a.CreatedBy, &a.CreatedAt, &completed, &cancelled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAuditNotFound
		}
		return nil, err
	}
	a.Status = domain.AuditStatus(status)
	a.CompletedAt = timePtr(completed)
	a.CancelledAt = timePtr(cancelled)
	return &a, nil
}

func loadAuditItems(ctx context.Context, q queryer, audit *domain.StockAudit) error {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, sku, name, system_stock, physical_count, difference, notes, scanned_at
		FROM stock_audit_items
		WHERE audit_id = $1
		ORDER BY position
	`, audit.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	audit.Items = []domain.StockAuditItem{}
	for rows.Next() {
		var it domain.StockAuditItem
		if err := rows.Scan(&it.ProductID, &it.SKU, &it.Name, &it.SystemStock, &it.PhysicalCount, &it.Difference, &it.Notes, &it.ScannedAt); err != nil {
			return err
		}
		audit.Items = append(audit.Items, it)
	}
	return rows.Err()
}

func getAudit(ctx context.Context, q queryer, id string, lock bool) (*domain.StockAudit, error) {
	query := `SELECT ` + auditColumns + ` FROM stock_audits WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	audit, err := scanAudit(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := loadAuditItems(ctx, q, audit); err != nil {
		return nil, err
	}
	return audit, nil
}

func (s *Store) GetStockAudit(ctx context.Context, id string) (*domain.StockAudit, error) {
	return getAudit(ctx, s.db, id, false)
}

func (s *Store) ListStockAudits(ctx context.Context, status domain.AuditStatus, limit int) ([]domain.StockAudit, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+auditColumns+`
		FROM stock_audits
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	var audits []domain.StockAudit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		audits = append(audits, *a)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range audits {
		if err := loadAuditItems(ctx, s.db, &audits[i]); err != nil {
			return nil, err
		}
	}
	return audits, nil
}

func scanLot(row rowScanner) (*domain.Lot, error) {
	var l domain.Lot
	err := row.Scan(&l.ID, &l.LotNumber, &l.CategoryID, &l.ProductCount, &l.TotalStockValue, &l.Status, &l.CreatedBy, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrLotNotFound
		}
		return nil, err
	}
	return &l, nil
}

const lotColumns = `id, lot_number, category_id, product_count, total_stock_value, status, created_by, created_at`

func (s *Store) GetLot(ctx context.Context, id string) (*domain.Lot, error) {
	return scanLot(s.db.QueryRowContext(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1`, id))
}

func (s *Store) ListLots(ctx context.Context, limit int) ([]domain.Lot, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+lotColumns+` FROM lots ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []domain.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, *l)
	}
	return lots, rows.Err()
}

func (s *Store) CreateActivity(ctx context.Context, entry domain.ActivityLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListActivity(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.ActivityLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM activity_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.ActivityLog, 0, limit)
	for rows.Next() {
		var entry domain.ActivityLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	return mapError(err)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mapError folds driver errors into the store taxonomy. Unique violations
// and serialization or deadlock aborts become ErrConflict. Check violations
// and numeric overflow become ErrValidation.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		case "23514":
			return fmt.Errorf("%w: %s", store.ErrValidation, pgErr.ConstraintName)
		case "22003":
			return fmt.Errorf("%w: %s", store.ErrValidation, pgErr.Message)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func decimalPtr(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullDecimal(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
