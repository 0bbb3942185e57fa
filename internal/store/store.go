package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"garmentpos/backend/internal/domain"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrPriceLocked       = errors.New("price is locked")
	ErrInvalidState      = errors.New("invalid state")
	ErrForbidden         = errors.New("forbidden")

	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrCategoryNotFound = fmt.Errorf("category %w", ErrNotFound)
	ErrBillNotFound     = fmt.Errorf("bill %w", ErrNotFound)
	ErrAuditNotFound    = fmt.Errorf("stock audit %w", ErrNotFound)
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)
	ErrLotNotFound      = fmt.Errorf("lot %w", ErrNotFound)

	ErrInvalidDiscount       = fmt.Errorf("%w: discount percentage must be between 0 and 100", ErrValidation)
	ErrInvalidReturnQuantity = fmt.Errorf("%w: invalid return quantity", ErrValidation)
	ErrAuditNotInProgress    = fmt.Errorf("%w: stock audit is not in progress", ErrInvalidState)
	ErrDuplicateSKU          = fmt.Errorf("%w: sku already exists", ErrConflict)
	ErrDuplicateCategory     = fmt.Errorf("%w: category already exists", ErrConflict)
)

// InsufficientStockError names the product that could not cover a decrement.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.Name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Repository exposes committed reads. Every write goes through InTx so that
// stock, ledger and documents change together or not at all.
type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.PriceHistory, error)
	ListLedger(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error)

	ListCategories(ctx context.Context) ([]domain.Category, error)

	GetBill(ctx context.Context, id string) (*domain.Bill, error)
	GetBillByNumber(ctx context.Context, billNumber string) (*domain.Bill, error)
	ListBills(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Bill, error)
	ListBillsByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Bill, error)
	ListReturnsByBill(ctx context.Context, billID string) ([]domain.Return, error)
	ListWastage(ctx context.Context, limit int) ([]domain.Wastage, error)

	GetCustomerByMobile(ctx context.Context, mobile string) (*domain.Customer, error)

	GetStockAudit(ctx context.Context, id string) (*domain.StockAudit, error)
	ListStockAudits(ctx context.Context, status domain.AuditStatus, limit int) ([]domain.StockAudit, error)

	GetLot(ctx context.Context, id string) (*domain.Lot, error)
	ListLots(ctx context.Context, limit int) ([]domain.Lot, error)

	CreateActivity(ctx context.Context, entry domain.ActivityLog) error
	ListActivity(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.ActivityLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Tx is a unit of work. Reads made through a Tx see its own writes, and
// products fetched with ForUpdate stay locked until the Tx ends.
type Tx interface {
	// NextSequence atomically increments and returns the counter for scope,
	// starting at 1.
	NextSequence(ctx context.Context, scope string) (int64, error)

	GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	FindProductByCode(ctx context.Context, productCode string, categoryID string) (*domain.Product, error)
	SKUExists(ctx context.Context, sku string) (bool, error)
	InsertProduct(ctx context.Context, product domain.Product) error
	// UpdateProduct writes every attribute except stock_quantity.
	UpdateProduct(ctx context.Context, product domain.Product) error
	// AdjustStock applies delta and returns the stock before and after.
	// It fails with ErrInsufficientStock when the result would be negative.
	AdjustStock(ctx context.Context, productID string, delta int) (previous int, current int, err error)
	AppendLedger(ctx context.Context, entry domain.LedgerEntry) error
	InsertPriceHistory(ctx context.Context, entry domain.PriceHistory) error

	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*domain.Category, error)
	CategoryCodeExists(ctx context.Context, code string) (bool, error)
	InsertCategory(ctx context.Context, category domain.Category) error

	GetCustomerByMobile(ctx context.Context, mobile string) (*domain.Customer, error)
	InsertCustomer(ctx context.Context, customer domain.Customer) error
	UpdateCustomer(ctx context.Context, customer domain.Customer) error
	CustomerBillTotals(ctx context.Context, customerID string) (domain.CustomerTotals, error)

	InsertBill(ctx context.Context, bill domain.Bill) error
	// GetBill locks the bill so returns against it serialize.
	GetBill(ctx context.Context, id string) (*domain.Bill, error)
	ReturnedQuantities(ctx context.Context, billID string) (map[string]int, error)
	InsertReturn(ctx context.Context, ret domain.Return) error
	InsertWastage(ctx context.Context, wastage domain.Wastage) error

	GetStockAuditForUpdate(ctx context.Context, id string) (*domain.StockAudit, error)
	InsertStockAudit(ctx context.Context, audit domain.StockAudit) error
	UpdateStockAudit(ctx context.Context, audit domain.StockAudit) error

	InsertLot(ctx context.Context, lot domain.Lot) error
}
