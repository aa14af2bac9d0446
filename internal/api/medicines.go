package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"medeasy/pos/domain"
	"medeasy/pos/internal/seed"
)

// medicineSelect reports stock as the sum of unexpired batches. Both
// placeholders take today's date.
const medicineSelect = `SELECT m.id, m.name, m.brand, m.form, m.category, m.selling_price,
            COALESCE(SUM(CASE WHEN b.quantity > 0 AND (b.expiry_date IS NULL OR b.expiry_date >= ?) THEN b.quantity END), 0) AS total_quantity,
            MIN(CASE WHEN b.quantity > 0 AND (b.expiry_date IS NULL OR b.expiry_date >= ?) THEN b.expiry_date END) AS earliest_expiry
        FROM medicines m
        LEFT JOIN batches b ON b.medicine_id = m.id`

const batchColumns = `id, medicine_id, batch_number, quantity, cost_price, selling_price, expiry_date, received_at`

type batchRequest struct {
	BatchNumber  string           `json:"batch_number" validate:"required,max=64"`
	Quantity     int              `json:"quantity" validate:"required,gt=0"`
	CostPrice    decimal.Decimal  `json:"cost_price"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
	ExpiryDate   string           `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
}

type createMedicineRequest struct {
	Name         string          `json:"name" validate:"required,max=200"`
	Brand        string          `json:"brand" validate:"max=200"`
	Form         string          `json:"form" validate:"max=100"`
	Category     string          `json:"category" validate:"omitempty,oneof=painkiller antibiotic supplement antibacterial antiseptic other"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	InitialBatch *batchRequest   `json:"initial_batch,omitempty"`
}

func (h *Handler) listMedicines(w http.ResponseWriter, r *http.Request) {
	skip, limit := pagination(r)
	today := h.today()
	query := medicineSelect
	args := []any{today, today}
	if search := strings.TrimSpace(r.URL.Query().Get("search")); search != "" {
		query += ` WHERE m.name LIKE ? OR m.brand LIKE ?`
		like := "%" + search + "%"
		args = append(args, like, like)
	}
	query += ` GROUP BY m.id ORDER BY m.name LIMIT ? OFFSET ?`
	args = append(args, limit, skip)

	medicines := []domain.Medicine{}
	if err := h.db.SelectContext(r.Context(), &medicines, query, args...); err != nil {
		h.internalError(w, r, err, "unable to list medicines")
		return
	}
	respondJSON(w, http.StatusOK, medicines)
}

func (h *Handler) getMedicine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "medicine")
	if !ok {
		return
	}
	med, err := h.medicineByID(r.Context(), h.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "medicine not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err, "unable to load medicine")
		return
	}
	respondJSON(w, http.StatusOK, med)
}

func (h *Handler) medicineByID(ctx context.Context, q sqlx.QueryerContext, id int64) (domain.Medicine, error) {
	var med domain.Medicine
	today := h.today()
	err := sqlx.GetContext(ctx, q, &med, medicineSelect+` WHERE m.id = ? GROUP BY m.id`, today, today, id)
	return med, err
}

func (h *Handler) createMedicine(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleManager) {
		return
	}
	var req createMedicineRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if !req.SellingPrice.IsPositive() {
		respondError(w, http.StatusBadRequest, "VALIDATION_FAILED", "selling_price must be greater than zero")
		return
	}
	if req.InitialBatch != nil {
		if msg := validateBatchPrices(req.InitialBatch); msg != "" {
			respondError(w, http.StatusBadRequest, "VALIDATION_FAILED", msg)
			return
		}
	}
	category := req.Category
	if category == "" {
		category = "other"
	}

	tx, err := h.db.BeginTxx(r.Context(), nil)
	if err != nil {
		h.internalError(w, r, err, "unable to start medicine creation")
		return
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(r.Context(), `INSERT INTO medicines (name, brand, form, category, selling_price) VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(req.Name), strings.TrimSpace(req.Brand), strings.TrimSpace(req.Form), category, req.SellingPrice.StringFixed(2))
	if err != nil {
		if isUniqueViolation(err) {
			respondError(w, http.StatusConflict, "MEDICINE_EXISTS", "a medicine with this name already exists")
			return
		}
		h.internalError(w, r, err, "unable to create medicine")
		return
	}
	id, _ := res.LastInsertId()
	if req.InitialBatch != nil {
		if _, err := insertBatch(r.Context(), tx, id, req.SellingPrice, *req.InitialBatch); err != nil {
			h.internalError(w, r, err, "unable to add initial batch")
			return
		}
	}
	med, err := h.medicineByID(r.Context(), tx, id)
	if err != nil {
		h.internalError(w, r, err, "unable to load medicine")
		return
	}
	if err := tx.Commit(); err != nil {
		h.internalError(w, r, err, "unable to finalize medicine")
		return
	}
	respondJSON(w, http.StatusCreated, med)
}

type updateMedicineRequest struct {
	Name         string          `json:"name" validate:"required,min=3,max=200"`
	Brand        *string         `json:"brand" validate:"omitempty,max=200"`
	Form         *string         `json:"form" validate:"omitempty,max=100"`
	Category     string          `json:"category" validate:"required,oneof=painkiller antibiotic supplement antibacterial antiseptic other"`
	SellingPrice decimal.Decimal `json:"selling_price"`
}

// updateMedicine edits catalogue details. The selling price is the default
// for batches added later; existing batches keep their own price.
func (h *Handler) updateMedicine(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleManager) {
		return
	}
	id, ok := pathID(w, r, "medicine")
	if !ok {
		return
	}
	var req updateMedicineRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if !req.SellingPrice.IsPositive() {
		respondError(w, http.StatusBadRequest, "VALIDATION_FAILED", "selling_price must be greater than zero")
		return
	}
	current, err := h.medicineByID(r.Context(), h.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "medicine not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err, "unable to load medicine")
		return
	}
	brand, form := current.Brand, current.Form
	if req.Brand != nil {
		brand = strings.TrimSpace(*req.Brand)
	}
	if req.Form != nil {
		form = strings.TrimSpace(*req.Form)
	}
	if _, err := h.db.ExecContext(r.Context(), `UPDATE medicines SET name = ?, brand = ?, form = ?, category = ?, selling_price = ? WHERE id = ?`,
		strings.TrimSpace(req.Name), brand, form, req.Category, req.SellingPrice.StringFixed(2), id); err != nil {
		if isUniqueViolation(err) {
			respondError(w, http.StatusConflict, "MEDICINE_EXISTS", "a medicine with this name already exists")
			return
		}
		h.internalError(w, r, err, "unable to update medicine")
		return
	}
	med, err := h.medicineByID(r.Context(), h.db, id)
	if err != nil {
		h.internalError(w, r, err, "unable to load medicine")
		return
	}
	respondJSON(w, http.StatusOK, med)
}

// deleteMedicine removes a medicine and its batches. Medicines that appear on
// a receipt cannot be deleted.
func (h *Handler) deleteMedicine(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleManager) {
		return
	}
	id, ok := pathID(w, r, "medicine")
	if !ok {
		return
	}
	tx, err := h.db.BeginTxx(r.Context(), nil)
	if err != nil {
		h.internalError(w, r, err, "unable to start medicine deletion")
		return
	}
	defer tx.Rollback()

	var sold int
	if err := tx.GetContext(r.Context(), &sold, `SELECT COUNT(*) FROM sale_items WHERE medicine_id = ?`, id); err != nil {
		h.internalError(w, r, err, "unable to check sales history")
		return
	}
	if sold > 0 {
		respondError(w, http.StatusConflict, "MEDICINE_HAS_SALES", "medicine appears on past sales and cannot be deleted")
		return
	}
	if _, err := tx.ExecContext(r.Context(), `DELETE FROM batches WHERE medicine_id = ?`, id); err != nil {
		h.internalError(w, r, err, "unable to delete batches")
		return
	}
	res, err := tx.ExecContext(r.Context(), `DELETE FROM medicines WHERE id = ?`, id)
	if err != nil {
		h.internalError(w, r, err, "unable to delete medicine")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "medicine not found")
		return
	}
	if err := tx.Commit(); err != nil {
		h.internalError(w, r, err, "unable to finalize medicine deletion")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "medicine")
	if !ok {
		return
	}
	batches := []domain.Batch{}
	if err := h.db.SelectContext(r.Context(), &batches, `SELECT `+batchColumns+` FROM batches WHERE medicine_id = ?
                ORDER BY expiry_date IS NULL, expiry_date, id`, id); err != nil {
		h.internalError(w, r, err, "unable to list batches")
		return
	}
	respondJSON(w, http.StatusOK, batches)
}

func (h *Handler) addBatch(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleManager) {
		return
	}
	id, ok := pathID(w, r, "medicine")
	if !ok {
		return
	}
	var req batchRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if msg := validateBatchPrices(&req); msg != "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_FAILED", msg)
		return
	}

	var defaultPrice decimal.Decimal
	err := h.db.GetContext(r.Context(), &defaultPrice, `SELECT selling_price FROM medicines WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "medicine not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err, "unable to load medicine")
		return
	}
	batch, err := insertBatch(r.Context(), h.db, id, defaultPrice, req)
	if err != nil {
		h.internalError(w, r, err, "unable to add batch")
		return
	}
	respondJSON(w, http.StatusCreated, batch)
}

func validateBatchPrices(req *batchRequest) string {
	if req.CostPrice.IsNegative() {
		return "cost_price must not be negative"
	}
	if req.SellingPrice != nil && !req.SellingPrice.IsPositive() {
		return "selling_price must be greater than zero"
	}
	return ""
}

func insertBatch(ctx context.Context, ex sqlx.ExecerContext, medicineID int64, defaultPrice decimal.Decimal, req batchRequest) (domain.Batch, error) {
	price := defaultPrice
	if req.SellingPrice != nil {
		price = *req.SellingPrice
	}
	batch := domain.Batch{
		MedicineID:   medicineID,
		BatchNumber:  strings.TrimSpace(req.BatchNumber),
		Quantity:     req.Quantity,
		CostPrice:    req.CostPrice.Round(2),
		SellingPrice: price.Round(2),
		ExpiryDate:   nullIfEmpty(req.ExpiryDate),
	}
	res, err := ex.ExecContext(ctx, `INSERT INTO batches (medicine_id, batch_number, quantity, cost_price, selling_price, expiry_date) VALUES (?, ?, ?, ?, ?, ?)`,
		batch.MedicineID, batch.BatchNumber, batch.Quantity, batch.CostPrice.StringFixed(2), batch.SellingPrice.StringFixed(2), batch.ExpiryDate)
	if err != nil {
		return domain.Batch{}, err
	}
	batch.ID, _ = res.LastInsertId()
	return batch, nil
}

// importMedicines loads a catalog CSV uploaded as the "file" form field.
func (h *Handler) importMedicines(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleManager) {
		return
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_FORM", "expected a multipart upload")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_FORM", "file is required")
		return
	}
	defer file.Close()

	rows, err := seed.ParseMedicines(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_CSV", err.Error())
		return
	}
	result, err := seed.Import(r.Context(), h.db, rows)
	if err != nil {
		h.internalError(w, r, err, "unable to import medicines")
		return
	}
	respondJSON(w, http.StatusOK, result)
}
