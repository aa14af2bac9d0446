package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"medeasy/pos/domain"
	"medeasy/pos/internal/pricing"
)

var errMedicineNotFound = errors.New("medicine not found")

const saleSelect = `SELECT s.id, s.invoice_number, s.user_id, s.payment_method, s.total_amount, s.sale_date,
            CASE WHEN u.full_name = '' THEN u.username ELSE u.full_name END AS sold_by_full_name
        FROM sales s
        JOIN users u ON u.id = s.user_id`

// quote prices a quantity of one medicine exactly as createSale would charge
// it right now, without touching stock.
func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var req domain.QuoteRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	name, batches, err := loadBatches(r.Context(), h.db, req.MedicineID)
	if errors.Is(err, errMedicineNotFound) {
		h.metrics.quotes.WithLabelValues("not_found").Inc()
		respondError(w, http.StatusNotFound, "NOT_FOUND", "medicine not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err, "unable to load batches")
		return
	}
	allocations, err := pricing.Allocate(req.MedicineID, batches, req.Quantity, h.today())
	if err != nil {
		h.metrics.quotes.WithLabelValues("insufficient_stock").Inc()
		respondStockError(w, name, err)
		return
	}
	h.metrics.quotes.WithLabelValues("ok").Inc()
	respondJSON(w, http.StatusOK, domain.QuoteResponse{
		MedicineID: req.MedicineID,
		Quantity:   req.Quantity,
		TotalPrice: pricing.Total(allocations),
	})
}

// createSale depletes batches first-expiry-first-out in one transaction and
// returns the receipt. Either every line is sold or nothing is.
func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	items := mergeItems(req.Items)
	now := h.now()
	today := now.Format("2006-01-02")

	tx, err := h.db.BeginTxx(r.Context(), nil)
	if err != nil {
		h.internalError(w, r, err, "unable to start sale")
		return
	}
	defer tx.Rollback()

	saleItems := make([]domain.SaleItem, 0, len(items))
	total := decimal.Zero
	units := 0

	for _, item := range items {
		name, batches, err := loadBatches(r.Context(), tx, item.MedicineID)
		if errors.Is(err, errMedicineNotFound) {
			h.metrics.sales.WithLabelValues("not_found").Inc()
			respondError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("medicine %d not found", item.MedicineID))
			return
		}
		if err != nil {
			h.internalError(w, r, err, "unable to load batches")
			return
		}
		allocations, err := pricing.Allocate(item.MedicineID, batches, item.Quantity, today)
		if err != nil {
			h.metrics.sales.WithLabelValues("insufficient_stock").Inc()
			respondStockError(w, name, err)
			return
		}
		for _, a := range allocations {
			res, err := tx.ExecContext(r.Context(), `UPDATE batches SET quantity = quantity - ? WHERE id = ? AND quantity >= ?`, a.Quantity, a.BatchID, a.Quantity)
			if err != nil {
				h.internalError(w, r, err, "unable to update stock")
				return
			}
			if n, _ := res.RowsAffected(); n != 1 {
				h.metrics.sales.WithLabelValues("insufficient_stock").Inc()
				respondError(w, http.StatusConflict, "INSUFFICIENT_STOCK", "stock for "+name+" changed, please retry")
				return
			}
		}
		total = total.Add(pricing.Total(allocations))
		units += item.Quantity
		for _, a := range allocations {
			saleItems = append(saleItems, domain.SaleItem{
				MedicineID: item.MedicineID,
				BatchID:    a.BatchID,
				Quantity:   a.Quantity,
				UnitPrice:  a.UnitPrice,
				Subtotal:   a.Subtotal,
			})
		}
	}

	invoice := fmt.Sprintf("INV-%s-%s", now.Format("20060102"), strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8]))
	res, err := tx.ExecContext(r.Context(), `INSERT INTO sales (invoice_number, user_id, payment_method, total_amount, sale_date) VALUES (?, ?, ?, ?, ?)`,
		invoice, currentUserID(r), string(req.PaymentMethod), total.StringFixed(2), now.Format(time.RFC3339))
	if err != nil {
		h.internalError(w, r, err, "unable to create sale")
		return
	}
	saleID, _ := res.LastInsertId()

	for _, si := range saleItems {
		if _, err := tx.ExecContext(r.Context(), `INSERT INTO sale_items (sale_id, medicine_id, batch_id, quantity, unit_price, subtotal) VALUES (?, ?, ?, ?, ?, ?)`,
			saleID, si.MedicineID, si.BatchID, si.Quantity, si.UnitPrice.StringFixed(2), si.Subtotal.StringFixed(2)); err != nil {
			h.internalError(w, r, err, "unable to save sale items")
			return
		}
	}

	receipt, err := h.receipt(r.Context(), tx, saleID)
	if err != nil {
		h.internalError(w, r, err, "unable to build receipt")
		return
	}
	if err := tx.Commit(); err != nil {
		h.internalError(w, r, err, "unable to finalize sale")
		return
	}

	h.metrics.sales.WithLabelValues("ok").Inc()
	h.metrics.salesAmount.WithLabelValues(string(req.PaymentMethod)).Add(total.InexactFloat64())
	h.metrics.unitsSold.Add(float64(units))
	zerolog.Ctx(r.Context()).Info().
		Str("invoice", invoice).
		Str("total", total.StringFixed(2)).
		Str("payment_method", string(req.PaymentMethod)).
		Int("units", units).
		Msg("sale_completed")

	respondJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	skip, limit := pagination(r)
	query := saleSelect
	var args []any
	if role, _ := r.Context().Value(ctxRole).(string); role == domain.RoleCashier {
		query += ` WHERE s.user_id = ?`
		args = append(args, currentUserID(r))
	}
	query += ` ORDER BY s.id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, skip)

	sales := []domain.Sale{}
	if err := h.db.SelectContext(r.Context(), &sales, query, args...); err != nil {
		h.internalError(w, r, err, "unable to list sales")
		return
	}
	respondJSON(w, http.StatusOK, sales)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "sale")
	if !ok {
		return
	}
	receipt, err := h.receipt(r.Context(), h.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "sale not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err, "unable to load sale")
		return
	}
	if role, _ := r.Context().Value(ctxRole).(string); role == domain.RoleCashier && receipt.UserID != currentUserID(r) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "sale not found")
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}

func (h *Handler) receipt(ctx context.Context, q sqlx.QueryerContext, saleID int64) (domain.Receipt, error) {
	var receipt domain.Receipt
	if err := sqlx.GetContext(ctx, q, &receipt.Sale, saleSelect+` WHERE s.id = ?`, saleID); err != nil {
		return domain.Receipt{}, err
	}
	receipt.Items = []domain.ReceiptItem{}
	if err := sqlx.SelectContext(ctx, q, &receipt.Items, `SELECT si.medicine_id, m.name AS medicine_name, si.batch_id, si.quantity, si.unit_price, si.subtotal
                FROM sale_items si
                JOIN medicines m ON m.id = si.medicine_id
                WHERE si.sale_id = ?
                ORDER BY si.id`, saleID); err != nil {
		return domain.Receipt{}, err
	}
	pharmacy := h.cfg.Pharmacy
	receipt.Pharmacy = &pharmacy
	return receipt, nil
}

func loadBatches(ctx context.Context, q sqlx.QueryerContext, medicineID int64) (string, []domain.Batch, error) {
	var name string
	err := sqlx.GetContext(ctx, q, &name, `SELECT name FROM medicines WHERE id = ?`, medicineID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, errMedicineNotFound
	}
	if err != nil {
		return "", nil, err
	}
	var batches []domain.Batch
	if err := sqlx.SelectContext(ctx, q, &batches, `SELECT `+batchColumns+` FROM batches WHERE medicine_id = ? AND quantity > 0`, medicineID); err != nil {
		return "", nil, err
	}
	return name, batches, nil
}

// mergeItems folds repeated medicines into one line, keeping first-seen order.
func mergeItems(items []domain.SaleItemRequest) []domain.SaleItemRequest {
	out := make([]domain.SaleItemRequest, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, it := range items {
		if i, ok := index[it.MedicineID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.MedicineID] = len(out)
		out = append(out, it)
	}
	return out
}

func respondStockError(w http.ResponseWriter, name string, err error) {
	var stockErr *pricing.StockError
	if errors.As(err, &stockErr) {
		respondError(w, http.StatusConflict, "INSUFFICIENT_STOCK",
			fmt.Sprintf("insufficient stock for %s: %d available, %d requested", name, stockErr.Available, stockErr.Requested))
		return
	}
	respondError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
}
