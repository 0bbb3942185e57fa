package memory

import (
	"cmp"
	"context"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/idgen"
	"garmentpos/backend/internal/store"
)

// Store keeps everything in process memory. InTx holds the write lock for
// the whole unit of work and runs it against a copy of the state, which is
// swapped in only when the callback succeeds.
type Store struct {
	mu              sync.RWMutex
	state           *state
	activity        []domain.ActivityLog
	usersByUsername map[string]domain.UserAccount
}

type state struct {
	products      map[string]domain.Product
	productBySKU  map[string]string
	categories    map[string]domain.Category
	ledger        []domain.LedgerEntry
	priceHistory  []domain.PriceHistory
	bills         map[string]domain.Bill
	billByNumber  map[string]string
	returns       []domain.Return
	wastage       []domain.Wastage
	customers     map[string]domain.Customer
	customerByMob map[string]string
	audits        map[string]domain.StockAudit
	lots          map[string]domain.Lot
	sequences     map[string]int64
}

func newState() *state {
	return &state{
		products:      map[string]domain.Product{},
		productBySKU:  map[string]string{},
		categories:    map[string]domain.Category{},
		bills:         map[string]domain.Bill{},
		billByNumber:  map[string]string{},
		customers:     map[string]domain.Customer{},
		customerByMob: map[string]string{},
		audits:        map[string]domain.StockAudit{},
		lots:          map[string]domain.Lot{},
		sequences:     map[string]int64{},
	}
}

// clone copies the maps and clips the append-only slices so appends made by
// an aborted unit of work never leak into committed state.
func (st *state) clone() *state {
	return &state{
		products:      maps.Clone(st.products),
		productBySKU:  maps.Clone(st.productBySKU),
		categories:    maps.Clone(st.categories),
		ledger:        slices.Clip(st.ledger),
		priceHistory:  slices.Clip(st.priceHistory),
		bills:         maps.Clone(st.bills),
		billByNumber:  maps.Clone(st.billByNumber),
		returns:       slices.Clip(st.returns),
		wastage:       slices.Clip(st.wastage),
		customers:     maps.Clone(st.customers),
		customerByMob: maps.Clone(st.customerByMob),
		audits:        maps.Clone(st.audits),
		lots:          maps.Clone(st.lots),
		sequences:     maps.Clone(st.sequences),
	}
}

func New() *Store {
	return &Store{
		state:           newState(),
		usersByUsername: map[string]domain.UserAccount{},
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD, falling back to dev defaults.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo categories, products and users. Seed
// stock is booked through the ledger so stock and ledger agree from the start.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	st := s.state
	categories := []domain.Category{
		{ID: idgen.NewID(), Name: "Shirts", Code: "SHI", CreatedAt: now},
		{ID: idgen.NewID(), Name: "Trousers", Code: "TRO", CreatedAt: now},
		{ID: idgen.NewID(), Name: "Sarees", Code: "SAR", CreatedAt: now},
	}
	for _, c := range categories {
		st.categories[c.ID] = c
	}

	gst5 := decimal.NewFromInt(5)
	gst12 := decimal.NewFromInt(12)
	products := []struct {
		name     string
		category domain.Category
		cost     int64
		price    int64
		gst      *decimal.Decimal
		stock    int
	}{
		{"Cotton Formal Shirt", categories[0], 450, 899, &gst5, 40},
		{"Linen Casual Shirt", categories[0], 650, 1299, &gst12, 25},
		{"Denim Slim Trouser", categories[1], 700, 1499, &gst12, 30},
		{"Chino Trouser", categories[1], 550, 1099, &gst5, 20},
		{"Banarasi Silk Saree", categories[2], 3200, 5999, &gst12, 8},
		{"Printed Cotton Saree", categories[2], 600, 1199, nil, 15},
	}
	for _, p := range products {
		scope := "sku:LP:" + p.category.Code
		st.sequences[scope]++
		product := domain.Product{
			ID:            idgen.NewID(),
			SKU:           idgen.FormatSKU("LP", p.category.Code, st.sequences[scope]),
			Name:          p.name,
			CategoryID:    p.category.ID,
			StockUnit:     "pcs",
			CostPrice:     decimal.NewFromInt(p.cost),
			SellingPrice:  decimal.NewFromInt(p.price),
			GSTPercentage: p.gst,
			StockQuantity: p.stock,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		st.products[product.ID] = product
		st.productBySKU[product.SKU] = product.ID
		st.ledger = append(st.ledger, domain.LedgerEntry{
			ID:            idgen.NewID(),
			ProductID:     product.ID,
			SKU:           product.SKU,
			Type:          domain.MovementIn,
			Quantity:      p.stock,
			PreviousStock: 0,
			NewStock:      p.stock,
			ReferenceType: domain.RefProduct,
			ReferenceID:   product.ID,
			Note:          "opening stock",
			CreatedBy:     "system",
			CreatedAt:     now,
		})
	}
	return s
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.product(id)
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.productBySKUCode(sku)
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]domain.Product, 0, len(s.state.products))
	for _, p := range s.state.products {
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if filter.LotID != "" && p.LotID != filter.LotID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) && !strings.Contains(strings.ToLower(p.SKU), search) {
			continue
		}
		result = append(result, p)
	}
	slices.SortFunc(result, func(a, b domain.Product) int { return cmp.Compare(a.SKU, b.SKU) })
	return result, nil
}

func (s *Store) ListPriceHistory(_ context.Context, productID string, limit int) ([]domain.PriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.PriceHistory
	for i := len(s.state.priceHistory) - 1; i >= 0; i-- {
		if s.state.priceHistory[i].ProductID != productID {
			continue
		}
		result = append(result, s.state.priceHistory[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// ListLedger returns the product's entries oldest first.
func (s *Store) ListLedger(_ context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.LedgerEntry
	for _, e := range s.state.ledger {
		if e.ProductID != productID {
			continue
		}
		result = append(result, e)
	}
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Collect(maps.Values(s.state.categories))
	slices.SortFunc(result, func(a, b domain.Category) int { return cmp.Compare(a.Name, b.Name) })
	return result, nil
}

func (s *Store) GetBill(_ context.Context, id string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.bill(id)
}

func (s *Store) GetBillByNumber(_ context.Context, billNumber string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.state.billByNumber[billNumber]
	if !ok {
		return nil, store.ErrBillNotFound
	}
	return s.state.bill(id)
}

func (s *Store) ListBills(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Bill
	for _, b := range s.state.bills {
		if b.CreatedAt.Before(from) || !b.CreatedAt.Before(to) {
			continue
		}
		result = append(result, cloneBill(b))
	}
	return newestFirst(result, limit, func(b domain.Bill) time.Time { return b.CreatedAt }), nil
}

func (s *Store) ListBillsByCustomer(_ context.Context, customerID string, limit int) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Bill
	for _, b := range s.state.bills {
		if b.CustomerID == customerID {
			result = append(result, cloneBill(b))
		}
	}
	return newestFirst(result, limit, func(b domain.Bill) time.Time { return b.CreatedAt }), nil
}

func (s *Store) ListReturnsByBill(_ context.Context, billID string) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Return
	for _, r := range s.state.returns {
		if r.BillID == billID {
			r.Items = slices.Clone(r.Items)
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *Store) ListWastage(_ context.Context, limit int) ([]domain.Wastage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(slices.Clone(s.state.wastage), limit, func(w domain.Wastage) time.Time { return w.CreatedAt }), nil
}

func (s *Store) GetCustomerByMobile(_ context.Context, mobile string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.customerByMobile(mobile)
	if !ok {
		return nil, store.ErrCustomerNotFound
	}
	return c, nil
}

func (s *Store) GetStockAudit(_ context.Context, id string) (*domain.StockAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.audit(id)
}

func (s *Store) ListStockAudits(_ context.Context, status domain.AuditStatus, limit int) ([]domain.StockAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.StockAudit
	for _, a := range s.state.audits {
		if status != "" && a.Status != status {
			continue
		}
		a.Items = slices.Clone(a.Items)
		result = append(result, a)
	}
	return newestFirst(result, limit, func(a domain.StockAudit) time.Time { return a.CreatedAt }), nil
}

func (s *Store) GetLot(_ context.Context, id string) (*domain.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lot, ok := s.state.lots[id]
	if !ok {
		return nil, store.ErrLotNotFound
	}
	return &lot, nil
}

func (s *Store) ListLots(_ context.Context, limit int) ([]domain.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := slices.Collect(maps.Values(s.state.lots))
	return newestFirst(result, limit, func(l domain.Lot) time.Time { return l.CreatedAt }), nil
}

func (s *Store) CreateActivity(_ context.Context, entry domain.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, entry)
	return nil
}

func (s *Store) ListActivity(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.ActivityLog
	for i := len(s.activity) - 1; i >= 0; i-- {
		entry := s.activity[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := slices.Collect(maps.Values(s.usersByUsername))
	slices.SortFunc(result, func(a, b domain.UserAccount) int { return cmp.Compare(a.Username, b.Username) })
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (st *state) product(id string) (*domain.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	return &p, nil
}

func (st *state) productBySKUCode(sku string) (*domain.Product, error) {
	id, ok := st.productBySKU[strings.ToUpper(strings.TrimSpace(sku))]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	return st.product(id)
}

func (st *state) bill(id string) (*domain.Bill, error) {
	b, ok := st.bills[id]
	if !ok {
		return nil, store.ErrBillNotFound
	}
	b = cloneBill(b)
	return &b, nil
}

func (st *state) audit(id string) (*domain.StockAudit, error) {
	a, ok := st.audits[id]
	if !ok {
		return nil, store.ErrAuditNotFound
	}
	a.Items = slices.Clone(a.Items)
	return &a, nil
}

func (st *state) customerByMobile(mobile string) (*domain.Customer, bool) {
	id, ok := st.customerByMob[mobile]
	if !ok {
		return nil, false
	}
	c := st.customers[id]
	return &c, true
}

func cloneBill(b domain.Bill) domain.Bill {
	b.Items = slices.Clone(b.Items)
	b.AdditionalCharges = slices.Clone(b.AdditionalCharges)
	return b
}

func newestFirst[T any](items []T, limit int, at func(T) time.Time) []T {
	slices.SortStableFunc(items, func(a, b T) int { return at(b).Compare(at(a)) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
