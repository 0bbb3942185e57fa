package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/service"
	"garmentpos/backend/internal/store"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 10 << 20
)

var validate = validator.New()

func init() {
	validate.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
}

type Options struct {
	AllowedOrigin string
	ImportMaxRows int
	Location      *time.Location
}

type API struct {
	service      *service.Service
	auth         *AuthManager
	opts         Options
	loginLimiter *attemptLimiter
	csrfSecret   []byte
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		log.Fatal().Err(err).Msg("failed to generate csrf secret")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &API{
		service:      svc,
		auth:         auth,
		opts:         opts,
		loginLimiter: newAttemptLimiter(5, time.Minute),
		csrfSecret:   csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts tokens of the current and the previous hour.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(a.securityHeaders)
	r.Use(a.checkCSRF)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Get("/auth/csrf-token", a.handleCSRFToken)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleStaff, domain.RoleAdmin))

			r.Get("/categories", a.handleListCategories)
			r.Post("/categories", a.handleCreateCategory)

			r.Route("/products", func(r chi.Router) {
				r.Get("/", a.handleListProducts)
				r.Post("/", a.handleCreateProduct)
				r.Post("/import", a.handleImportProducts)
				r.Get("/sku/{sku}", a.handleGetProductBySKU)
				r.Get("/{id}", a.handleGetProduct)
				r.Patch("/{id}", a.handleUpdateProduct)
				r.Get("/{id}/ledger", a.handleListLedger)
				r.Get("/{id}/price-history", a.handleListPriceHistory)
				r.With(a.requireAuth(domain.RoleAdmin)).Get("/{id}/ledger/verify", a.handleVerifyLedger)
			})

			r.Route("/bills", func(r chi.Router) {
				r.Get("/", a.handleListBills)
				r.Post("/", a.handleCreateBill)
				r.Get("/number/{number}", a.handleGetBillByNumber)
				r.Get("/{id}", a.handleGetBill)
				r.Get("/{id}/returns", a.handleListReturns)
			})

			r.Post("/returns", a.handleCreateReturn)

			r.Get("/wastage", a.handleListWastage)
			r.Post("/wastage", a.handleCreateWastage)

			r.Route("/stock-audits", func(r chi.Router) {
				r.Get("/", a.handleListStockAudits)
				r.Post("/", a.handleCreateStockAudit)
				r.Get("/{id}", a.handleGetStockAudit)
				r.Post("/{id}/items", a.handleAddAuditItem)
				r.Delete("/{id}/items/{productID}", a.handleRemoveAuditItem)
				r.Post("/{id}/complete", a.handleCompleteAudit)
				r.Post("/{id}/cancel", a.handleCancelAudit)
			})

			r.Route("/customers/{mobile}", func(r chi.Router) {
				r.Get("/", a.handleGetCustomer)
				r.Get("/bills", a.handleListCustomerBills)
				r.With(a.requireAuth(domain.RoleAdmin)).Post("/recompute", a.handleRecomputeCustomer)
			})

			r.Get("/lots", a.handleListLots)
			r.Get("/lots/{id}", a.handleGetLot)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleAdmin))
			r.Get("/activity", a.handleListActivity)
			r.Get("/users/staff", a.handleListStaff)
			r.Post("/users/staff", a.handleCreateStaff)
		})
	})

	return r
}

// requireAuth admits requests carrying a valid bearer token whose role is
// one of roles, and puts the caller into the request context.
func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, http.StatusUnauthorized, "unauthorized", errors.New("missing bearer token"))
				return
			}

			actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", err)
				return
			}
			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, "forbidden", errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}
		for _, exempt := range csrfExemptPaths {
			if r.URL.Path == exempt {
				next.ServeHTTP(w, r)
				return
			}
		}
		if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
			writeError(w, http.StatusForbidden, "forbidden", errors.New("missing or invalid CSRF token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.opts.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(startedAt)).
			Msg("http request")
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token that mutating requests echo in
// the X-CSRF-Token header.
func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"csrf_token": a.generateCSRFToken()})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

// decodeAndValidate decodes the body into dest and checks its validate
// tags. An empty body decodes as the zero request. It writes the error response itself and reports whether the caller
// may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "validation", fmt.Errorf("invalid JSON: %w", err))
		return false
	}
	if err := validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, "validation", err)
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "request failed validation",
			"code":   "validation",
			"fields": fields,
		})
		return false
	}
	return true
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeServiceError maps the store error taxonomy onto HTTP.
// specificErrors gives the service's narrower errors their own stable codes.
// They are matched before the generic classes they wrap.
var specificErrors = []struct {
	err    error
	status int
	code   string
}{
	{store.ErrInvalidDiscount, http.StatusBadRequest, "invalid_discount"},
	{store.ErrInvalidReturnQuantity, http.StatusBadRequest, "invalid_return_quantity"},
	{store.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{store.ErrCategoryNotFound, http.StatusNotFound, "category_not_found"},
	{store.ErrBillNotFound, http.StatusNotFound, "bill_not_found"},
	{store.ErrAuditNotFound, http.StatusNotFound, "audit_not_found"},
	{store.ErrCustomerNotFound, http.StatusNotFound, "customer_not_found"},
	{store.ErrLotNotFound, http.StatusNotFound, "lot_not_found"},
	{store.ErrAuditNotInProgress, http.StatusConflict, "audit_not_in_progress"},
	{store.ErrDuplicateSKU, http.StatusConflict, "duplicate_sku"},
	{store.ErrDuplicateCategory, http.StatusConflict, "duplicate_category"},
}

func writeServiceError(w http.ResponseWriter, err error) {
	var stockErr *store.InsufficientStockError
	if errors.As(err, &stockErr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      stockErr.Error(),
			"code":       "insufficient_stock",
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		})
		return
	}
	for _, e := range specificErrors {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.code, err)
			return
		}
	}

	switch {
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation", err)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "insufficient_stock", err)
	case errors.Is(err, store.ErrPriceLocked):
		writeError(w, http.StatusForbidden, "price_locked", err)
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, store.ErrInvalidState):
		writeError(w, http.StatusConflict, "state_error", err)
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

// writeError hides the cause of 5xx responses; 4xx messages are user facing.
func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
		"code":  code,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
