package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/store"
	"garmentpos/backend/internal/store/memory"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *memory.Store, *testClock) {
	t.Helper()
	repo := memory.NewSeeded()
	clock := &testClock{now: time.Date(2026, 3, 14, 4, 30, 0, 0, time.UTC)}
	svc := New(repo, nil, Options{Location: ist, Now: clock.Now})
	return svc, repo, clock
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func categoryID(t *testing.T, svc *Service, name string) string {
	t.Helper()
	categories, err := svc.ListCategories(context.Background())
	require.NoError(t, err)
	for _, c := range categories {
		if c.Name == name {
			return c.ID
		}
	}
	t.Fatalf("category %s not seeded", name)
	return ""
}

func newProduct(t *testing.T, svc *Service, name string, price string, gst string, stock int) domain.Product {
	t.Helper()
	req := domain.ProductCreateRequest{
		Name:         name,
		CategoryID:   categoryID(t, svc, "Shirts"),
		CostPrice:    dec(price).Div(decimal.NewFromInt(2)),
		SellingPrice: dec(price),
		InitialStock: stock,
	}
	if gst != "" {
		req.GSTPercentage = decPtr(gst)
	}
	p, err := svc.CreateProduct(adminCtx(), req)
	require.NoError(t, err)
	return p
}

func stockOf(t *testing.T, svc *Service, id string) int {
	t.Helper()
	p, err := svc.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func sell(t *testing.T, svc *Service, ctx context.Context, productID string, qty int) domain.Bill {
	t.Helper()
	bill, err := svc.CreateBill(ctx, domain.BillCreateRequest{
		Items: []domain.BillItemInput{{ProductID: productID, Quantity: qty}},
	})
	require.NoError(t, err)
	return bill
}

func requireLedgerConsistent(t *testing.T, svc *Service, productID string) {
	t.Helper()
	v, err := svc.VerifyLedger(context.Background(), productID)
	require.NoError(t, err)
	require.True(t, v.Consistent, v.Detail)
}

func TestCreateBillComputesTotalsAndMovesStock(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := newProduct(t, svc, "Polo Tee", "100", "18", 10)

	bill, err := svc.CreateBill(staffCtx(), domain.BillCreateRequest{
		Items: []domain.BillItemInput{
			{ProductID: p.ID, Quantity: 2},
			{ProductID: p.ID, Quantity: 2},
		},
		DiscountPercentage: dec("10"),
	})
	require.NoError(t, err)

	assert.Equal(t, "BILL-20260314-0001", bill.BillNumber)
	assert.Equal(t, domain.PaymentCash, bill.PaymentMode)
	assert.Equal(t, "staff", bill.CreatedBy)
	require.Len(t, bill.Items, 2)
	assert.True(t, dec("200").Equal(bill.Items[0].LineSubtotal))
	assert.True(t, dec("36").Equal(bill.Items[0].GSTAmount))
	assert.True(t, dec("236").Equal(bill.Items[0].LineTotal))
	assert.True(t, dec("400").Equal(bill.Subtotal))
	assert.True(t, dec("72").Equal(bill.TotalGST))
	assert.True(t, dec("40").Equal(bill.DiscountAmount))
	assert.True(t, dec("432").Equal(bill.GrandTotal))

	assert.Equal(t, 6, stockOf(t, svc, p.ID))
	entries, err := svc.ListLedger(context.Background(), p.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, domain.MovementOut, entries[0].Type)
	assert.Equal(t, bill.BillNumber, entries[0].ReferenceNumber)
	assert.Equal(t, 8, entries[0].PreviousStock)
	assert.Equal(t, 6, entries[0].NewStock)
	requireLedgerConsistent(t, svc, p.ID)

	fetched, err := svc.GetBillByNumber(context.Background(), "bill-20260314-0001")
	require.NoError(t, err)
	assert.Equal(t, bill.ID, fetched.ID)
}

func TestCreateBillWithAdditionalCharges(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := newProduct(t, svc, "Blazer", "1000", "", 5)

	bill, err := svc.CreateBill(staffCtx(), domain.BillCreateRequest{
		Items:              []domain.BillItemInput{{ProductID: p.ID, Quantity: 1}},
		DiscountPercentage: dec("50"),
		PaymentMode:        "UPI",
		AdditionalCharges: []domain.AdditionalChargeInput{
			{Name: "Alteration", Quantity: dec("2"), Unit: "pcs", Rate: dec("150")},
			{Name: "", Quantity: dec("1"), Rate: dec("99")},
			{Name: "Free gift wrap", Quantity: dec("1"), Rate: dec("0")},
		},
	})
	require.NoError(t, err)

	require.Len(t, bill.AdditionalCharges, 1)
	assert.True(t, dec("300").Equal(bill.AdditionalChargesTotal))
	assert.True(t, dec("500").Equal(bill.DiscountAmount))
	assert.True(t, dec("800").Equal(bill.GrandTotal))
	assert.Equal(t, domain.PaymentUPI, bill.PaymentMode)
}

func TestCreateBillUsesLocalCalendarDay(t *testing.T) {
	svc, _, clock := newTestService(t)
	p := newProduct(t, svc, "Night Suit", "700", "5", 5)

	clock.Advance(15*time.Hour + 30*time.Minute)
	bill := sell(t, svc, staffCtx(), p.ID, 1)
	assert.Equal(t, "BILL-20260315-0001", bill.BillNumber)

	bill = sell(t, svc, staffCtx(), p.ID, 1)
	assert.Equal(t, "BILL-20260315-0002", bill.BillNumber)
}

func TestCreateBillInsufficientStockRollsBack(t *testing.T) {
	svc, _, _ := newTestService(t)
	plenty := newProduct(t, svc, "Socks", "99", "5", 20)
	scarce := newProduct(t, svc, "Tie", "399", "12", 3)

	_, err := svc.CreateBill(staffCtx(), domain.BillCreateRequest{
		Items: []domain.BillItemInput{
			{ProductID: plenty.ID, Quantity: 1},
			{ProductID: scarce.ID, Quantity: 5},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	var stockErr *store.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, scarce.ID, stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 5, stockErr.Requested)

	assert.Equal(t, 20, stockOf(t, svc, plenty.ID))
	assert.Equal(t, 3, stockOf(t, svc, scarce.ID))
	p, err := svc.GetProduct(context.Background(), plenty.ID)
	require.NoError(t, err)
	assert.False(t, p.PriceLocked)

	bill := sell(t, svc, staffCtx(), plenty.ID, 1)
	assert.Equal(t, "BILL-20260314-0001", bill.BillNumber)
}

func TestCreateBillAggregatesRepeatedLinesForStockCheck(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := newProduct(t, svc, "Cap", "199", "", 3)

	_, err := svc.CreateBill(staffCtx(), domain.BillCreateRequest{
		Items: []domain.BillItemInput{
			{ProductID: p.ID, Quantity: 2},
			{ProductID: p.ID, Quantity: 2},
		},
	})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 3, stockOf(t, svc, p.ID))
}

func TestCreateBillRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := newProduct(t, svc, "Belt", "499", "12", 5)

	_, err := svc.CreateBill(staffCtx(), domain.BillCreateRequest{
		Items:              []domain.BillItemInput{{ProductID: p.ID, Quantity: 1}},
		DiscountPercentage: dec("100.5"),
	})
	assert.ErrorIs(t, err, store.ErrInvalidDiscount)
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.CreateBill(staffCtx(), domain.BillCreateRequest{})
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.CreateBill(staffCtx(), domain.BillCreateRequest{
		Items: []domain.BillItemInput{{ProductID: p.ID, Quantity: 0}},
	})
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.CreateBill(staffCtx(), domain.BillCreateRequest{
		Items:       []domain.BillItemInput{{ProductID: p.ID, Quantity: 1}},
		PaymentMode: "barter",
	})
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.CreateBill(staffCtx(), domain.BillCreateRequest{
		Items: []domain.BillItemInput{{ProductID: "missing", Quantity: 1}},
	})
	assert.ErrorIs(t, err, store.ErrProductNotFound)
	assert.Equal(t, 5, stockOf(t, svc, p.ID))
}

func TestPriceLockIsSetOnceOnFirstSale(t *testing.T) {
	svc, _, clock := newTestService(t)
	p := newProduct(t, svc, "Kurta", "899", "5", 10)
	assert.False(t, p.PriceLocked)

	sell(t, svc, staffCtx(), p.ID, 1)
	first, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, first.PriceLocked)
	require.NotNil(t, first.PriceLockedAt)
	assert.Equal(t, "staff", first.PriceLockedBy)

	clock.Advance(2 * time.Hour)
	sell(t, svc, adminCtx(), p.ID, 1)
	second, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, first.PriceLockedAt.Equal(*second.PriceLockedAt))
	assert.Equal(t, "staff", second.PriceLockedBy)
}

func TestUpdateProductHonoursPriceLock(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := newProduct(t, svc, "Waistcoat", "1499", "12", 5)

	newPrice := dec("1599")
	_, err := svc.UpdateProduct(staffCtx(), p.ID, domain.ProductUpdateRequest{SellingPrice: &newPrice})
	require.NoError(t, err)

	sell(t, svc, staffCtx(), p.ID, 1)

	higher := dec("1699")
	_, err = svc.UpdateProduct(staffCtx(), p.ID, domain.ProductUpdateRequest{SellingPrice: &higher})
	assert.ErrorIs(t, err, store.ErrPriceLocked)

	rename := "Festive Waistcoat"
	renamed, err := svc.UpdateProduct(staffCtx(), p.ID, domain.ProductUpdateRequest{Name: &rename})
	require.NoError(t, err)
	assert.Equal(t, rename, renamed.Name)
	assert.True(t, newPrice.Equal(renamed.SellingPrice))

	updated, err := svc.UpdateProduct(adminCtx(), p.ID, domain.ProductUpdateRequest{SellingPrice: &higher})
	require.NoError(t, err)
	assert.True(t, higher.Equal(updated.SellingPrice))
	assert.Equal(t, 4, updated.StockQuantity)

	history, err := svc.ListPriceHistory(context.Background(), p.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	var locked int
	for _, h := range history {
		if h.ChangedWhileLock {
			locked++
			assert.Equal(t, "admin", h.ChangedBy)
			assert.True(t, higher.Equal(h.NewSellingPrice))
		}
	}
	assert.Equal(t, 1, locked)
}

func TestCreateReturnEnforcesCumulativeBound(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := newProduct(t, svc, "Jeans", "1200", "12", 10)
	bill := sell(t, svc, staffCtx(), p.ID, 2)
	require.Equal(t, 8, stockOf(t, svc, p.ID))

	_, err := svc.CreateReturn(staffCtx(), domain.ReturnCreateRequest{
		BillID: bill.ID,
		Items:  []domain.ReturnItemInput{{ProductID: p.ID, Quantity: 3}},
	})
	assert.ErrorIs(t, err, store.ErrInvalidReturnQuantity)
	assert.Equal(t, 8, stockOf(t, svc, p.ID))

	ret, err := svc.CreateReturn(staffCtx(), domain.ReturnCreateRequest{
		BillID:     bill.ID,
		Items:      []domain.ReturnItemInput{{ProductID: p.ID, Quantity: 1}},
		RefundMode: "store_credit",
		Reason:     "size mismatch",
	})
	require.NoError(t, err)
	assert.True(t, dec("1200").Equal(ret.RefundAmount))
	assert.Equal(t, domain.RefundStoreCredit, ret.RefundMode)
	assert.Equal(t, bill.BillNumber, ret.BillNumber)
	assert.Equal(t, 9, stockOf(t, svc, p.ID))

	_, err = svc.CreateReturn(staffCtx(), domain.ReturnCreateRequest{
		BillID: bill.ID,
		Items:  []domain.ReturnItemInput{{ProductID: p.ID, Quantity: 2}},
	})
	assert.ErrorIs(t, err, store.ErrInvalidReturnQuantity)

	_, err = svc.CreateReturn(staffCtx(), domain.ReturnCreateRequest{
		BillID: bill.ID,
		Items:  []domain.ReturnItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, stockOf(t, svc, p.ID))

	returns, err := svc.ListReturns(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Len(t, returns, 2)

	unchanged, err := svc.GetBill(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.True(t, bill.GrandTotal.Equal(unchanged.GrandTotal))
	requireLedgerConsistent(t, svc, p.ID)
}

func TestCreateReturnRejectsUnknownBillAndProduct(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := newProduct(t, svc, "Scarf", "299", "5", 4)
	other := newProduct(t, svc, "Gloves", "199", "5", 4)
	bill := sell(t, svc, staffCtx(), p.ID, 1)

	_, err := svc.CreateReturn(staffCtx(), domain.ReturnCreateRequest{
		BillID: "no-such-bill",
		Items:  []domain.ReturnItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, store.ErrBillNotFound)

	_, err = svc.CreateReturn(staffCtx(), domain.ReturnCreateRequest{
		BillID: bill.ID,
		Items:  []domain.ReturnItemInput{{ProductID: other.ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, store.ErrInvalidReturnQuantity)
	assert.Equal(t, 4, stockOf(t, svc, other.ID))

	_, err = svc.CreateReturn(staffCtx(), domain.ReturnCreateRequest{
		BillID:     bill.ID,
		Items:      []domain.ReturnItemInput{{ProductID: p.ID, Quantity: 1}},
		RefundMode: "cheque",
	})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestCreateWastage(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := newProduct(t, svc, "Silk Stole", "800", "12", 3)

	_, err := svc.CreateWastage(staffCtx(), domain.WastageCreateRequest{ProductID: p.ID, Quantity: 5, Reason: "torn"})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 3, stockOf(t, svc, p.ID))

	w, err := svc.CreateWastage(staffCtx(), domain.WastageCreateRequest{ProductID: p.ID, Quantity: 2, Reason: "water damage"})
	require.NoError(t, err)
	assert.True(t, dec("800").Equal(w.CostImpact))
	assert.Equal(t, 1, stockOf(t, svc, p.ID))

	entries, err := svc.ListLedger(context.Background(), p.ID, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.MovementWastage, entries[0].Type)
	assert.Equal(t, w.ID, entries[0].ReferenceID)

	listed, err := svc.ListWastage(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, w.ID, listed[0].ID)
}

func TestStockAuditAppliesAdjustments(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := newProduct(t, svc, "Lehenga", "4999", "12", 50)

	audit, err := svc.CreateStockAudit(staffCtx(), domain.StockAuditCreateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "AUDIT-2026-03-14", audit.AuditNumber)
	assert.Equal(t, domain.AuditInProgress, audit.Status)

	audit, err = svc.AddAuditItem(staffCtx(), audit.ID, domain.StockAuditScanRequest{SKU: p.SKU, PhysicalCount: 47, Notes: "rack B"})
	require.NoError(t, err)
	require.Len(t, audit.Items, 1)
	assert.Equal(t, -3, audit.Items[0].Difference)
	assert.Equal(t, "rack B", audit.Items[0].Notes)
	assert.Equal(t, 1, audit.Discrepancies)

	audit, err = svc.CompleteAudit(adminCtx(), audit.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditCompleted, audit.Status)
	assert.True(t, audit.AdjustmentsApplied)
	assert.NotNil(t, audit.CompletedAt)
	assert.Equal(t, 47, stockOf(t, svc, p.ID))

	entries, err := svc.ListLedger(context.Background(), p.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.MovementOut, entries[0].Type)
	assert.Equal(t, 3, entries[0].Quantity)
	assert.Equal(t, audit.AuditNumber, entries[0].ReferenceNumber)
	requireLedgerConsistent(t, svc, p.ID)
}

func TestStockAuditWithoutAdjustmentsLeavesStock(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := newProduct(t, svc, "Sherwani", "7999", "12", 50)
	steady := newProduct(t, svc, "Dhoti", "499", "5", 12)

	first, err := svc.CreateStockAudit(staffCtx(), domain.StockAuditCreateRequest{})
	require.NoError(t, err)
	audit, err := svc.CreateStockAudit(staffCtx(), domain.StockAuditCreateRequest{Notes: "evening count"})
	require.NoError(t, err)
	assert.Equal(t, "AUDIT-2026-03-14", first.AuditNumber)
	assert.Equal(t, "AUDIT-2026-03-14-001", audit.AuditNumber)

	_, err = svc.AddAuditItem(staffCtx(), audit.ID, domain.StockAuditScanRequest{SKU: p.SKU, PhysicalCount: 47})
	require.NoError(t, err)
	_, err = svc.AddAuditItem(staffCtx(), audit.ID, domain.StockAuditScanRequest{SKU: steady.SKU, PhysicalCount: 12})
	require.NoError(t, err)

	audit, err = svc.CompleteAudit(adminCtx(), audit.ID, false)
	require.NoError(t, err)
	assert.False(t, audit.AdjustmentsApplied)
	assert.Equal(t, 2, audit.TotalProducts)
	assert.Equal(t, 1, audit.Discrepancies)
	assert.Equal(t, 50, stockOf(t, svc, p.ID))

	entries, err := svc.ListLedger(context.Background(), p.ID, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStockAuditRescanReplacesAndRemoveRecomputes(t *testing.T) {
	svc, _, _ := newTestService(t)
	a := newProduct(t, svc, "Shawl", "999", "5", 10)
	b := newProduct(t, svc, "Muffler", "349", "5", 6)

	audit, err := svc.CreateStockAudit(staffCtx(), domain.StockAuditCreateRequest{})
	require.NoError(t, err)

	_, err = svc.AddAuditItem(staffCtx(), audit.ID, domain.StockAuditScanRequest{SKU: a.SKU, PhysicalCount: 8})
	require.NoError(t, err)
	_, err = svc.AddAuditItem(staffCtx(), audit.ID, domain.StockAuditScanRequest{SKU: b.SKU, PhysicalCount: 5})
	require.NoError(t, err)
	audit, err = svc.AddAuditItem(staffCtx(), audit.ID, domain.StockAuditScanRequest{SKU: a.SKU, PhysicalCount: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, audit.TotalProducts)
	assert.Equal(t, 1, audit.Discrepancies)
	assert.Equal(t, 0, audit.Items[0].Difference)

	audit, err = svc.RemoveAuditItem(staffCtx(), audit.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, audit.TotalProducts)
	assert.Equal(t, 0, audit.Discrepancies)

	_, err = svc.AddAuditItem(staffCtx(), audit.ID, domain.StockAuditScanRequest{SKU: "LP-NOPE-000001", PhysicalCount: 1})
	assert.ErrorIs(t, err, store.ErrProductNotFound)
}

func TestStockAuditTerminalStatesRejectChanges(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := newProduct(t, svc, "Cardigan", "1299", "12", 9)

	cancelled, err := svc.CreateStockAudit(staffCtx(), domain.StockAuditCreateRequest{})
	require.NoError(t, err)
	_, err = svc.AddAuditItem(staffCtx(), cancelled.ID, domain.StockAuditScanRequest{SKU: p.SKU, PhysicalCount: 1})
	require.NoError(t, err)
	cancelled, err = svc.CancelAudit(staffCtx(), cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditCancelled, cancelled.Status)
	assert.Empty(t, cancelled.Items)
	assert.Equal(t, 9, stockOf(t, svc, p.ID))

	_, err = svc.AddAuditItem(staffCtx(), cancelled.ID, domain.StockAuditScanRequest{SKU: p.SKU, PhysicalCount: 1})
	assert.ErrorIs(t, err, store.ErrAuditNotInProgress)
	_, err = svc.CompleteAudit(adminCtx(), cancelled.ID, true)
	assert.ErrorIs(t, err, store.ErrAuditNotInProgress)
	_, err = svc.CancelAudit(staffCtx(), cancelled.ID)
	assert.ErrorIs(t, err, store.ErrInvalidState)

	completed, err := svc.CreateStockAudit(staffCtx(), domain.StockAuditCreateRequest{})
	require.NoError(t, err)
	_, err = svc.CompleteAudit(adminCtx(), completed.ID, true)
	require.NoError(t, err)
	_, err = svc.RemoveAuditItem(staffCtx(), completed.ID, p.ID)
	assert.ErrorIs(t, err, store.ErrAuditNotInProgress)

	_, err = svc.CancelAudit(staffCtx(), "missing")
	assert.ErrorIs(t, err, store.ErrAuditNotFound)

	open, err := svc.ListStockAudits(context.Background(), "in_progress", 10)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func importRows(names ...string) []domain.ParsedRow {
	rows := make([]domain.ParsedRow, 0, len(names))
	for i, name := range names {
		rows = append(rows, domain.ParsedRow{
			RowNumber:     i + 2,
			Name:          name,
			CategoryName:  "Kurtas",
			CostPrice:     dec("300"),
			SellingPrice:  dec("650"),
			GSTPercentage: decPtr("5"),
			StockQuantity: 4,
		})
	}
	return rows
}

func TestBulkImportPartialSuccess(t *testing.T) {
	svc, _, _ := newTestService(t)
	rows := importRows("K1", "K2", "", "K4", "K5", "K6", "", "K8", "K9", "K10")

	result, err := svc.BulkImportProducts(staffCtx(), domain.BulkImportRequest{Rows: rows})
	require.NoError(t, err)

	assert.Equal(t, 8, result.CreatedCount)
	assert.Equal(t, 0, result.UpdatedCount)
	assert.Equal(t, 2, result.ErrorCount)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 4, result.Errors[0].Row)
	assert.Equal(t, 8, result.Errors[1].Row)

	require.NotNil(t, result.Lot)
	assert.Equal(t, 8, result.Lot.ProductCount)
	assert.Equal(t, "LOT-2026-03-14", result.Lot.LotNumber)
	assert.True(t, dec("9600").Equal(result.Lot.TotalStockValue))
	assert.NotEmpty(t, result.Lot.CategoryID)

	for _, p := range result.Created {
		assert.Equal(t, result.Lot.ID, p.LotID)
		assert.Equal(t, 4, p.StockQuantity)
		assert.Regexp(t, `^LP-KUR-\d{6}$`, p.SKU)
		requireLedgerConsistent(t, svc, p.ID)
	}

	lot, err := svc.GetLot(context.Background(), result.Lot.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Lot.LotNumber, lot.LotNumber)

	inLot, err := svc.ListProducts(context.Background(), domain.ProductFilter{LotID: lot.ID})
	require.NoError(t, err)
	assert.Len(t, inLot, 8)
}

func TestBulkImportUpdateModeAdjustsStock(t *testing.T) {
	svc, _, _ := newTestService(t)
	first := importRows("Anarkali")
	first[0].ProductCode = "ak01"
	first[0].StockQuantity = 10

	created, err := svc.BulkImportProducts(adminCtx(), domain.BulkImportRequest{Rows: first})
	require.NoError(t, err)
	require.Len(t, created.Created, 1)
	product := created.Created[0]
	assert.Equal(t, "AK01-KUR-000001", product.SKU)

	second := importRows("Anarkali Kurta")
	second[0].ProductCode = "AK01"
	second[0].StockQuantity = 4
	result, err := svc.BulkImportProducts(staffCtx(), domain.BulkImportRequest{Rows: second, UpdateStock: true})
	require.NoError(t, err)
	assert.Equal(t, 0, result.CreatedCount)
	assert.Equal(t, 1, result.UpdatedCount)
	assert.Nil(t, result.Lot)
	assert.Equal(t, "Anarkali Kurta", result.Updated[0].Name)
	assert.Equal(t, 4, stockOf(t, svc, product.ID))

	entries, err := svc.ListLedger(context.Background(), product.ID, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.MovementOut, entries[0].Type)
	assert.Equal(t, 6, entries[0].Quantity)
	requireLedgerConsistent(t, svc, product.ID)
}

func TestBulkImportRowErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	seed := importRows("Pathani Suit")
	seed[0].ProductCode = "PS01"
	created, err := svc.BulkImportProducts(adminCtx(), domain.BulkImportRequest{Rows: seed})
	require.NoError(t, err)
	sell(t, svc, staffCtx(), created.Created[0].ID, 1)

	locked := importRows("Pathani Suit")
	locked[0].ProductCode = "PS01"
	locked[0].SellingPrice = dec("700")
	noCategory := importRows("Loose Item")
	noCategory[0].CategoryName = ""
	negative := importRows("Broken Row")
	negative[0].CostPrice = dec("-1")
	parseFailed := importRows("Unreadable")
	parseFailed[0].ParseError = "stock quantity: not a whole number"

	rows := []domain.ParsedRow{locked[0], noCategory[0], negative[0], parseFailed[0]}
	result, err := svc.BulkImportProducts(staffCtx(), domain.BulkImportRequest{Rows: rows, UpdateStock: true})
	require.NoError(t, err)
	assert.Equal(t, 4, result.ErrorCount)
	assert.Equal(t, 0, result.CreatedCount)
	assert.Nil(t, result.Lot)
	assert.Contains(t, result.Errors[0].Message, "price locked")
	assert.Contains(t, result.Errors[1].Message, "category")
	assert.Contains(t, result.Errors[3].Message, "whole number")

	fallback := importRows("Loose Item")
	fallback[0].CategoryName = ""
	result, err = svc.BulkImportProducts(staffCtx(), domain.BulkImportRequest{Rows: fallback, CategoryID: categoryID(t, svc, "Sarees")})
	require.NoError(t, err)
	require.Equal(t, 1, result.CreatedCount)
	assert.Equal(t, categoryID(t, svc, "Sarees"), result.Created[0].CategoryID)
	assert.Equal(t, "LP-SAR-000003", result.Created[0].SKU)

	_, err = svc.BulkImportProducts(staffCtx(), domain.BulkImportRequest{Rows: fallback, CategoryID: "missing"})
	assert.ErrorIs(t, err, store.ErrCategoryNotFound)
}

func TestBulkImportRejectedRowCreatesNoCategory(t *testing.T) {
	svc, _, _ := newTestService(t)
	seed := importRows("Nehru Jacket")
	seed[0].ProductCode = "NJ01"
	created, err := svc.BulkImportProducts(adminCtx(), domain.BulkImportRequest{Rows: seed})
	require.NoError(t, err)
	sell(t, svc, staffCtx(), created.Created[0].ID, 1)

	before, err := svc.ListCategories(context.Background())
	require.NoError(t, err)

	locked := importRows("Nehru Jacket")
	locked[0].ProductCode = "NJ01"
	locked[0].CategoryName = "Brand New Cat"
	locked[0].SellingPrice = dec("900")
	result, err := svc.BulkImportProducts(staffCtx(), domain.BulkImportRequest{Rows: locked, UpdateStock: true})
	require.NoError(t, err)
	require.Equal(t, 1, result.ErrorCount)
	assert.Contains(t, result.Errors[0].Message, "price locked")

	after, err := svc.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	for _, c := range after {
		assert.NotEqual(t, "Brand New Cat", c.Name)
	}

	fresh := importRows("Bandhgala")
	fresh[0].CategoryName = "Brand New Cat"
	result, err = svc.BulkImportProducts(staffCtx(), domain.BulkImportRequest{Rows: fresh})
	require.NoError(t, err)
	require.Equal(t, 1, result.CreatedCount)
	after, err = svc.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Len(t, after, len(before)+1)
	assert.Equal(t, categoryID(t, svc, "Brand New Cat"), result.Created[0].CategoryID)
}

func TestBulkImportRejectsOutOfRangeRows(t *testing.T) {
	svc, _, _ := newTestService(t)
	rows := importRows("Palazzo", "Gold Lehenga", "Warehouse Lot")
	rows[1].SellingPrice = dec("12345678901")
	rows[2].StockQuantity = domain.MaxStockQuantity + 1

	result, err := svc.BulkImportProducts(staffCtx(), domain.BulkImportRequest{Rows: rows})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CreatedCount)
	require.Equal(t, 2, result.ErrorCount)
	assert.Equal(t, 3, result.Errors[0].Row)
	assert.Contains(t, result.Errors[0].Message, "prices must be below")
	assert.Equal(t, 4, result.Errors[1].Row)
	assert.Contains(t, result.Errors[1].Message, "must not exceed")
	requireLedgerConsistent(t, svc, result.Created[0].ID)

	_, err = svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:         "Overstock",
		CategoryID:   categoryID(t, svc, "Shirts"),
		SellingPrice: dec("10"),
		InitialStock: domain.MaxStockQuantity + 1,
	})
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:         "Overpriced",
		CategoryID:   categoryID(t, svc, "Shirts"),
		SellingPrice: dec("10000000000"),
	})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestCustomerUpsertAndTotals(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := newProduct(t, svc, "Tunic", "500", "", 20)

	first, err := svc.CreateBill(staffCtx(), domain.BillCreateRequest{
		Items:    []domain.BillItemInput{{ProductID: p.ID, Quantity: 1}},
		Customer: &domain.CustomerInput{Name: "Meera", Mobile: "98765 43210"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.CustomerID)
	assert.Equal(t, "9876543210", first.CustomerMobile)

	second, err := svc.CreateBill(staffCtx(), domain.BillCreateRequest{
		Items:    []domain.BillItemInput{{ProductID: p.ID, Quantity: 2}},
		Customer: &domain.CustomerInput{Name: "Someone Else", Mobile: "+91 98765 43210", Email: "meera@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, first.CustomerID, second.CustomerID)
	assert.Equal(t, "Meera", second.CustomerName)
	assert.Equal(t, "meera@example.com", second.CustomerEmail)

	customer, err := svc.GetCustomerByMobile(context.Background(), "9876543210")
	require.NoError(t, err)
	assert.Equal(t, 2, customer.PurchaseCount)
	assert.True(t, dec("1500").Equal(customer.TotalPurchases))
	assert.Equal(t, "meera@example.com", customer.Email)

	recomputed, err := svc.RecomputeCustomerTotals(adminCtx(), "9876543210")
	require.NoError(t, err)
	assert.Equal(t, customer.PurchaseCount, recomputed.PurchaseCount)
	assert.True(t, customer.TotalPurchases.Equal(recomputed.TotalPurchases))

	bills, err := svc.ListCustomerBills(context.Background(), "9876543210", 10)
	require.NoError(t, err)
	assert.Len(t, bills, 2)

	walkIn, err := svc.CreateBill(staffCtx(), domain.BillCreateRequest{
		Items:    []domain.BillItemInput{{ProductID: p.ID, Quantity: 1}},
		Customer: &domain.CustomerInput{Mobile: "9000000001"},
	})
	require.NoError(t, err)
	assert.Empty(t, walkIn.CustomerID)
	assert.Equal(t, "9000000001", walkIn.CustomerMobile)
	_, err = svc.GetCustomerByMobile(context.Background(), "9000000001")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCustomerTotalsIgnoreStoredDrift(t *testing.T) {
	svc, repo, _ := newTestService(t)
	p := newProduct(t, svc, "Kaftan", "400", "", 10)
	customer := &domain.CustomerInput{Name: "Asha", Mobile: "9811122233"}

	first, err := svc.CreateBill(staffCtx(), domain.BillCreateRequest{
		Items:    []domain.BillItemInput{{ProductID: p.ID, Quantity: 1}},
		Customer: customer,
	})
	require.NoError(t, err)

	err = repo.InTx(context.Background(), func(tx store.Tx) error {
		c, err := tx.GetCustomerByMobile(context.Background(), "9811122233")
		if err != nil {
			return err
		}
		c.TotalPurchases = dec("99999")
		c.PurchaseCount = 42
		return tx.UpdateCustomer(context.Background(), *c)
	})
	require.NoError(t, err)

	second, err := svc.CreateBill(staffCtx(), domain.BillCreateRequest{
		Items:    []domain.BillItemInput{{ProductID: p.ID, Quantity: 2}},
		Customer: customer,
	})
	require.NoError(t, err)

	got, err := svc.GetCustomerByMobile(context.Background(), "9811122233")
	require.NoError(t, err)
	assert.Equal(t, 2, got.PurchaseCount)
	assert.True(t, first.GrandTotal.Add(second.GrandTotal).Equal(got.TotalPurchases), "total %s", got.TotalPurchases)
}

func TestConcurrentBillsReceiveDistinctNumbers(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := newProduct(t, svc, "Handkerchief", "49", "5", 100)

	const workers = 25
	numbers := make(chan string, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bill, err := svc.CreateBill(staffCtx(), domain.BillCreateRequest{
				Items: []domain.BillItemInput{{ProductID: p.ID, Quantity: 1}},
			})
			if assert.NoError(t, err) {
				numbers <- bill.BillNumber
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for n := range numbers {
		assert.False(t, seen[n], "duplicate bill number %s", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
	assert.Equal(t, 100-workers, stockOf(t, svc, p.ID))
	requireLedgerConsistent(t, svc, p.ID)
}

func TestLedgerStaysConsistentAcrossOperations(t *testing.T) {
	svc, _, _ := newTestService(t)
	products, err := svc.ListProducts(context.Background(), domain.ProductFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, products)
	p := products[0]

	bill := sell(t, svc, staffCtx(), p.ID, 3)
	_, err = svc.CreateReturn(staffCtx(), domain.ReturnCreateRequest{BillID: bill.ID, Items: []domain.ReturnItemInput{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	_, err = svc.CreateWastage(staffCtx(), domain.WastageCreateRequest{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	audit, err := svc.CreateStockAudit(staffCtx(), domain.StockAuditCreateRequest{})
	require.NoError(t, err)
	_, err = svc.AddAuditItem(staffCtx(), audit.ID, domain.StockAuditScanRequest{SKU: p.SKU, PhysicalCount: p.StockQuantity + 5})
	require.NoError(t, err)
	_, err = svc.CompleteAudit(adminCtx(), audit.ID, true)
	require.NoError(t, err)

	assert.Equal(t, p.StockQuantity+5, stockOf(t, svc, p.ID))
	for _, product := range products {
		requireLedgerConsistent(t, svc, product.ID)
	}
}

func TestCreateCategoryDerivesUniqueCode(t *testing.T) {
	svc, _, _ := newTestService(t)

	c, err := svc.CreateCategory(adminCtx(), domain.CategoryCreateRequest{Name: "Shawls"})
	require.NoError(t, err)
	assert.Equal(t, "SHA", c.Code)

	c, err = svc.CreateCategory(adminCtx(), domain.CategoryCreateRequest{Name: "Shirts & Tops"})
	require.NoError(t, err)
	assert.NotEqual(t, "SHI", c.Code)
	assert.Regexp(t, `^SHI\d+$`, c.Code)

	_, err = svc.CreateCategory(adminCtx(), domain.CategoryCreateRequest{Name: "shawls"})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestActivityIsRecorded(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := newProduct(t, svc, "Bandhgala", "2999", "12", 2)
	sell(t, svc, staffCtx(), p.ID, 1)

	entries, err := svc.ListActivity(context.Background(), "2026-03-14", 10)
	require.NoError(t, err)
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, "product_create")
	assert.Contains(t, actions, "bill_create")

	_, err = svc.ListActivity(context.Background(), "14/03/2026", 10)
	assert.ErrorIs(t, err, store.ErrValidation)
}

type mapBillCache struct {
	mu      sync.Mutex
	entries map[string]domain.Bill
	hits    int
}

func (c *mapBillCache) Get(_ context.Context, key string) (*domain.Bill, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	c.hits++
	return &b, true, nil
}

func (c *mapBillCache) Set(_ context.Context, key string, value *domain.Bill, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *value
	return nil
}

func TestBillReadsGoThroughCache(t *testing.T) {
	repo := memory.NewSeeded()
	bills := &mapBillCache{entries: map[string]domain.Bill{}}
	svc := New(repo, bills, Options{Location: ist})
	p := newProduct(t, svc, "Kurta Pyjama", "1499", "5", 3)

	bill := sell(t, svc, staffCtx(), p.ID, 1)
	assert.Len(t, bills.entries, 2)

	byID, err := svc.GetBill(context.Background(), bill.ID)
	require.NoError(t, err)
	byNumber, err := svc.GetBillByNumber(context.Background(), bill.BillNumber)
	require.NoError(t, err)
	assert.Equal(t, bill.ID, byID.ID)
	assert.Equal(t, bill.ID, byNumber.ID)
	assert.Equal(t, 2, bills.hits)
}

type conflictingRepo struct {
	*memory.Store
	failures int
	calls    int
}

func (r *conflictingRepo) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	r.calls++
	if r.calls <= r.failures {
		return store.ErrConflict
	}
	return r.Store.InTx(ctx, fn)
}

func TestConflictsAreRetried(t *testing.T) {
	repo := &conflictingRepo{Store: memory.NewSeeded(), failures: 2}
	svc := New(repo, nil, Options{Location: ist})

	_, err := svc.CreateCategory(adminCtx(), domain.CategoryCreateRequest{Name: "Ethnic Wear"})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.calls)

	repo.calls, repo.failures = 0, maxConflictAttempts
	_, err = svc.CreateCategory(adminCtx(), domain.CategoryCreateRequest{Name: "Nightwear"})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, maxConflictAttempts, repo.calls)
}
