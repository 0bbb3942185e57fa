package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Storage limits: stock columns are INTEGER and money columns NUMERIC(12,2).
const MaxStockQuantity = math.MaxInt32

// MaxMoney is the exclusive upper bound for prices and amounts.
var MaxMoney = decimal.New(1, 10)

type Actor struct {
	Username string
	Role     string
}

// Privileged reports whether the actor may edit prices of locked products.
func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	Name string `json:"name" validate:"required,max=80"`
	Code string `json:"code,omitempty" validate:"omitempty,alphanum,max=8"`
}

type Product struct {
	ID            string           `json:"id"`
	SKU           string           `json:"sku"`
	Name          string           `json:"name"`
	CategoryID    string           `json:"category_id"`
	ProductCode   string           `json:"product_code,omitempty"`
	StockUnit     string           `json:"stock_unit"`
	CostPrice     decimal.Decimal  `json:"cost_price"`
	SellingPrice  decimal.Decimal  `json:"selling_price"`
	MRP           *decimal.Decimal `json:"mrp,omitempty"`
	GSTPercentage *decimal.Decimal `json:"gst_percentage,omitempty"`
	StockQuantity int              `json:"stock_quantity"`
	PriceLocked   bool             `json:"price_locked"`
	PriceLockedBy string           `json:"price_locked_by,omitempty"`
	PriceLockedAt *time.Time       `json:"price_locked_at,omitempty"`
	LotID         string           `json:"lot_id,omitempty"`
	PurchaseDate  *time.Time       `json:"purchase_date,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// GST returns the product's GST rate, zero when unset.
func (p Product) GST() decimal.Decimal {
	if p.GSTPercentage == nil {
		return decimal.Zero
	}
	return *p.GSTPercentage
}

type ProductCreateRequest struct {
	Name          string           `json:"name" validate:"required,max=200"`
	CategoryID    string           `json:"category_id" validate:"required"`
	ProductCode   string           `json:"product_code,omitempty" validate:"omitempty,alphanum,max=20"`
	StockUnit     string           `json:"stock_unit,omitempty"`
	CostPrice     decimal.Decimal  `json:"cost_price"`
	SellingPrice  decimal.Decimal  `json:"selling_price"`
	MRP           *decimal.Decimal `json:"mrp,omitempty"`
	GSTPercentage *decimal.Decimal `json:"gst_percentage,omitempty"`
	InitialStock  int              `json:"initial_stock" validate:"gte=0"`
}

type ProductUpdateRequest struct {
	Name          *string          `json:"name,omitempty"`
	StockUnit     *string          `json:"stock_unit,omitempty"`
	CostPrice     *decimal.Decimal `json:"cost_price,omitempty"`
	SellingPrice  *decimal.Decimal `json:"selling_price,omitempty"`
	MRP           *decimal.Decimal `json:"mrp,omitempty"`
	GSTPercentage *decimal.Decimal `json:"gst_percentage,omitempty"`
}

type ProductFilter struct {
	CategoryID string
	LotID      string
	Search     string
}

type PriceHistory struct {
	ID               string          `json:"id"`
	ProductID        string          `json:"product_id"`
	OldSellingPrice  decimal.Decimal `json:"old_selling_price"`
	NewSellingPrice  decimal.Decimal `json:"new_selling_price"`
	OldCostPrice     decimal.Decimal `json:"old_cost_price"`
	NewCostPrice     decimal.Decimal `json:"new_cost_price"`
	ChangedBy        string          `json:"changed_by"`
	ChangedWhileLock bool            `json:"changed_while_locked"`
	ChangedAt        time.Time       `json:"changed_at"`
}

type MovementType string

const (
	MovementIn      MovementType = "in"
	MovementOut     MovementType = "out"
	MovementReturn  MovementType = "return"
	MovementWastage MovementType = "wastage"
)

// Sign is +1 for movements that add stock and -1 for those that remove it.
func (m MovementType) Sign() int {
	switch m {
	case MovementIn, MovementReturn:
		return 1
	case MovementOut, MovementWastage:
		return -1
	}
	return 0
}

const (
	RefBill    = "bill"
	RefReturn  = "return"
	RefWastage = "wastage"
	RefAudit   = "stock_audit"
	RefLot     = "lot"
	RefImport  = "import"
	RefProduct = "product"
)

type LedgerEntry struct {
	ID              string       `json:"id"`
	ProductID       string       `json:"product_id"`
	SKU             string       `json:"sku"`
	Type            MovementType `json:"type"`
	Quantity        int          `json:"quantity"`
	PreviousStock   int          `json:"previous_stock"`
	NewStock        int          `json:"new_stock"`
	ReferenceType   string       `json:"reference_type"`
	ReferenceID     string       `json:"reference_id"`
	ReferenceNumber string       `json:"reference_number,omitempty"`
	Note            string       `json:"note,omitempty"`
	CreatedBy       string       `json:"created_by"`
	CreatedAt       time.Time    `json:"created_at"`
}

type LedgerVerification struct {
	ProductID     string `json:"product_id"`
	StockQuantity int    `json:"stock_quantity"`
	LedgerEntries int    `json:"ledger_entries"`
	Consistent    bool   `json:"consistent"`
	BrokenAt      string `json:"broken_at,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

type Customer struct {
	ID             string          `json:"id"`
	Mobile         string          `json:"mobile"`
	Name           string          `json:"name"`
	Email          string          `json:"email,omitempty"`
	GSTNumber      string          `json:"gst_number,omitempty"`
	FirmName       string          `json:"firm_name,omitempty"`
	Address        string          `json:"address,omitempty"`
	TotalPurchases decimal.Decimal `json:"total_purchases"`
	PurchaseCount  int             `json:"purchase_count"`
	LastPurchaseAt *time.Time      `json:"last_purchase_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type CustomerInput struct {
	Name      string `json:"name" validate:"omitempty,max=120"`
	Mobile    string `json:"mobile" validate:"omitempty,max=20"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	GSTNumber string `json:"gst_number,omitempty" validate:"omitempty,alphanum,len=15"`
	FirmName  string `json:"firm_name,omitempty"`
	Address   string `json:"address,omitempty"`
}

type CustomerTotals struct {
	TotalPurchases decimal.Decimal
	PurchaseCount  int
	LastPurchaseAt *time.Time
}

const (
	PaymentCash   = "cash"
	PaymentCard   = "card"
	PaymentUPI    = "upi"
	PaymentCredit = "credit"
)

type BillItem struct {
	ProductID     string          `json:"product_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	GSTPercentage decimal.Decimal `json:"gst_percentage"`
	GSTAmount     decimal.Decimal `json:"gst_amount"`
	LineSubtotal  decimal.Decimal `json:"line_subtotal"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

type AdditionalCharge struct {
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit,omitempty"`
	Rate     decimal.Decimal `json:"rate"`
	Amount   decimal.Decimal `json:"amount"`
}

type Bill struct {
	ID                     string             `json:"id"`
	BillNumber             string             `json:"bill_number"`
	CustomerID             string             `json:"customer_id,omitempty"`
	CustomerName           string             `json:"customer_name,omitempty"`
	CustomerMobile         string             `json:"customer_mobile,omitempty"`
	CustomerEmail          string             `json:"customer_email,omitempty"`
	CustomerGSTNumber      string             `json:"customer_gst_number,omitempty"`
	CustomerFirmName       string             `json:"customer_firm_name,omitempty"`
	Items                  []BillItem         `json:"items"`
	AdditionalCharges      []AdditionalCharge `json:"additional_charges,omitempty"`
	Subtotal               decimal.Decimal    `json:"subtotal"`
	TotalGST               decimal.Decimal    `json:"total_gst"`
	AdditionalChargesTotal decimal.Decimal    `json:"additional_charges_total"`
	DiscountPercentage     decimal.Decimal    `json:"discount_percentage"`
	DiscountAmount         decimal.Decimal    `json:"discount_amount"`
	GrandTotal             decimal.Decimal    `json:"grand_total"`
	PaymentMode            string             `json:"payment_mode"`
	CreatedBy              string             `json:"created_by"`
	CreatedAt              time.Time          `json:"created_at"`
}

type BillItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type AdditionalChargeInput struct {
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit,omitempty"`
	Rate     decimal.Decimal `json:"rate"`
}

type BillCreateRequest struct {
	Items              []BillItemInput         `json:"items" validate:"required,min=1,dive"`
	Customer           *CustomerInput          `json:"customer,omitempty"`
	DiscountPercentage decimal.Decimal         `json:"discount_percentage"`
	PaymentMode        string                  `json:"payment_mode,omitempty"`
	AdditionalCharges  []AdditionalChargeInput `json:"additional_charges,omitempty"`
}

const (
	RefundCash        = "cash"
	RefundCard        = "card"
	RefundUPI         = "upi"
	RefundStoreCredit = "store_credit"
)

type ReturnItem struct {
	ProductID string          `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

type Return struct {
	ID           string          `json:"id"`
	BillID       string          `json:"bill_id"`
	BillNumber   string          `json:"bill_number"`
	Items        []ReturnItem    `json:"items"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	RefundMode   string          `json:"refund_mode"`
	Reason       string          `json:"reason,omitempty"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ReturnItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type ReturnCreateRequest struct {
	BillID     string            `json:"bill_id" validate:"required"`
	Items      []ReturnItemInput `json:"items" validate:"required,min=1,dive"`
	RefundMode string            `json:"refund_mode,omitempty"`
	Reason     string            `json:"reason,omitempty" validate:"max=500"`
}

type Wastage struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	Reason     string          `json:"reason"`
	CostImpact decimal.Decimal `json:"cost_impact"`
	CreatedBy  string          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

type WastageCreateRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	Reason    string `json:"reason,omitempty" validate:"max=500"`
}

type AuditStatus string

const (
	AuditInProgress AuditStatus = "in_progress"
	AuditCompleted  AuditStatus = "completed"
	AuditCancelled  AuditStatus = "cancelled"
)

type StockAuditItem struct {
	ProductID     string    `json:"product_id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	SystemStock   int       `json:"system_stock"`
	PhysicalCount int       `json:"physical_count"`
	Difference    int       `json:"difference"`
	Notes         string    `json:"notes,omitempty"`
	ScannedAt     time.Time `json:"scanned_at"`
}

type StockAudit struct {
	ID                 string           `json:"id"`
	AuditNumber        string           `json:"audit_number"`
	Status             AuditStatus      `json:"status"`
	Items              []StockAuditItem `json:"items"`
	TotalProducts      int              `json:"total_products"`
	Discrepancies      int              `json:"discrepancies"`
	Notes              string           `json:"notes,omitempty"`
	AdjustmentsApplied bool             `json:"adjustments_applied"`
	CreatedBy          string           `json:"created_by"`
	CreatedAt          time.Time        `json:"created_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty"`
}

type StockAuditCreateRequest struct {
	Notes string `json:"notes,omitempty" validate:"max=500"`
}

type StockAuditScanRequest struct {
	SKU           string `json:"sku" validate:"required"`
	PhysicalCount int    `json:"physical_count" validate:"gte=0"`
	Notes         string `json:"notes,omitempty" validate:"max=500"`
}

type StockAuditCompleteRequest struct {
	ApplyAdjustments bool `json:"apply_adjustments"`
}

type Lot struct {
	ID              string          `json:"id"`
	LotNumber       string          `json:"lot_number"`
	CategoryID      string          `json:"category_id,omitempty"`
	ProductCount    int             `json:"product_count"`
	TotalStockValue decimal.Decimal `json:"total_stock_value"`
	Status          string          `json:"status"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ParsedRow is one typed spreadsheet row. ParseError is set when a cell
// could not be converted.
type ParsedRow struct {
	RowNumber     int              `json:"row_number"`
	ProductCode   string           `json:"product_code,omitempty"`
	Name          string           `json:"name"`
	CategoryName  string           `json:"category_name,omitempty"`
	StockUnit     string           `json:"stock_unit,omitempty"`
	CostPrice     decimal.Decimal  `json:"cost_price"`
	SellingPrice  decimal.Decimal  `json:"selling_price"`
	MRP           *decimal.Decimal `json:"mrp,omitempty"`
	GSTPercentage *decimal.Decimal `json:"gst_percentage,omitempty"`
	StockQuantity int              `json:"stock_quantity"`
	PurchaseDate  *time.Time       `json:"purchase_date,omitempty"`
	ParseError    string           `json:"parse_error,omitempty"`
}

type BulkImportRequest struct {
	Rows        []ParsedRow `json:"rows"`
	CategoryID  string      `json:"category_id,omitempty"`
	UpdateStock bool        `json:"update_stock"`
}

type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type BulkImportResult struct {
	CreatedCount int              `json:"created_count"`
	UpdatedCount int              `json:"updated_count"`
	ErrorCount   int              `json:"error_count"`
	Created      []Product        `json:"created"`
	Updated      []Product        `json:"updated"`
	Errors       []ImportRowError `json:"errors"`
	Lot          *Lot             `json:"lot,omitempty"`
}

type ActivityLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type StaffCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=40"`
	Password string `json:"password" validate:"required,min=6"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
