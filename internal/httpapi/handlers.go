package httpapi

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"garmentpos/backend/internal/domain"
	"garmentpos/backend/internal/importer"
)

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": categories})
}

func (a *API) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryCreateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	category, err := a.service.CreateCategory(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := a.service.ListProducts(r.Context(), domain.ProductFilter{
		CategoryID: q.Get("category_id"),
		LotID:      q.Get("lot_id"),
		Search:     q.Get("q"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleGetProductBySKU(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProductBySKU(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleListLedger(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 1000)
	entries, err := a.service.ListLedger(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (a *API) handleVerifyLedger(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.VerifyLedger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListPriceHistory(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	history, err := a.service.ListPriceHistory(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": history})
}

// handleImportProducts accepts either an .xlsx upload in the "file" form
// field or pre-parsed rows as JSON.
func (a *API) handleImportProducts(w http.ResponseWriter, r *http.Request) {
	var req domain.BulkImportRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		parsed, ok := a.parseImportUpload(w, r)
		if !ok {
			return
		}
		req = parsed
	} else if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := a.service.BulkImportProducts(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) parseImportUpload(w http.ResponseWriter, r *http.Request) (domain.BulkImportRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		writeError(w, http.StatusBadRequest, "validation", fmt.Errorf("invalid upload: %w", err))
		return domain.BulkImportRequest{}, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", errors.New("file is required"))
		return domain.BulkImportRequest{}, false
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".xlsx") {
		writeError(w, http.StatusBadRequest, "validation", errors.New("only .xlsx files are supported"))
		return domain.BulkImportRequest{}, false
	}

	rows, err := importer.ParseXLSX(file, importer.Options{MaxRows: a.opts.ImportMaxRows, Location: a.opts.Location})
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err)
		return domain.BulkImportRequest{}, false
	}
	updateStock, _ := strconv.ParseBool(r.FormValue("update_stock"))
	return domain.BulkImportRequest{
		Rows:        rows,
		CategoryID:  strings.TrimSpace(r.FormValue("category_id")),
		UpdateStock: updateStock,
	}, true
}

func (a *API) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req domain.BillCreateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	bill, err := a.service.CreateBill(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bill)
}

func (a *API) handleListBills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bills, err := a.service.ListBills(r.Context(), q.Get("date"), parsePositiveLimit(q.Get("limit"), 100, 500))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": bills})
}

func (a *API) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := a.service.GetBill(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (a *API) handleGetBillByNumber(w http.ResponseWriter, r *http.Request) {
	bill, err := a.service.GetBillByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (a *API) handleListReturns(w http.ResponseWriter, r *http.Request) {
	returns, err := a.service.ListReturns(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": returns})
}

func (a *API) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnCreateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	ret, err := a.service.CreateReturn(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ret)
}

func (a *API) handleListWastage(w http.ResponseWriter, r *http.Request) {
	records, err := a.service.ListWastage(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func (a *API) handleCreateWastage(w http.ResponseWriter, r *http.Request) {
	var req domain.WastageCreateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	record, err := a.service.CreateWastage(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (a *API) handleListStockAudits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	audits, err := a.service.ListStockAudits(r.Context(), q.Get("status"), parsePositiveLimit(q.Get("limit"), 50, 500))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": audits})
}

func (a *API) handleCreateStockAudit(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAuditCreateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	audit, err := a.service.CreateStockAudit(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, audit)
}

func (a *API) handleGetStockAudit(w http.ResponseWriter, r *http.Request) {
	audit, err := a.service.GetStockAudit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

func (a *API) handleAddAuditItem(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAuditScanRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	audit, err := a.service.AddAuditItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

func (a *API) handleRemoveAuditItem(w http.ResponseWriter, r *http.Request) {
	audit, err := a.service.RemoveAuditItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

func (a *API) handleCompleteAudit(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAuditCompleteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	audit, err := a.service.CompleteAudit(r.Context(), chi.URLParam(r, "id"), req.ApplyAdjustments)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

func (a *API) handleCancelAudit(w http.ResponseWriter, r *http.Request) {
	audit, err := a.service.CancelAudit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomerByMobile(r.Context(), chi.URLParam(r, "mobile"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (a *API) handleListCustomerBills(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	bills, err := a.service.ListCustomerBills(r.Context(), chi.URLParam(r, "mobile"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": bills})
}

func (a *API) handleRecomputeCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.RecomputeCustomerTotals(r.Context(), chi.URLParam(r, "mobile"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (a *API) handleListLots(w http.ResponseWriter, r *http.Request) {
	lots, err := a.service.ListLots(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": lots})
}

func (a *API) handleGetLot(w http.ResponseWriter, r *http.Request) {
	lot, err := a.service.GetLot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lot)
}

func (a *API) handleListActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := a.service.ListActivity(r.Context(), q.Get("date"), parsePositiveLimit(q.Get("limit"), 100, 1000))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": logs})
}

func (a *API) handleListStaff(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.auth.ListStaff(r.Context())})
}

func (a *API) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffCreateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	user, err := a.auth.CreateStaff(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}
