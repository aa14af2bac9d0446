package api

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"medeasy/pos/domain"
)

const (
	defaultLowStockThreshold = 10
	defaultExpiryWindowDays  = 30
)

func (h *Handler) dashboardStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	today := h.today()
	cutoff := h.now().AddDate(0, 0, defaultExpiryWindowDays).Format("2006-01-02")

	var stats domain.DashboardStats
	if err := h.db.GetContext(ctx, &stats.TotalMedicines, `SELECT COUNT(*) FROM medicines`); err != nil {
		h.internalError(w, r, err, "unable to count medicines")
		return
	}
	if err := h.db.GetContext(ctx, &stats.LowStockCount, `SELECT COUNT(*) FROM (`+medicineSelect+` GROUP BY m.id) WHERE total_quantity < ?`,
		today, today, defaultLowStockThreshold); err != nil {
		h.internalError(w, r, err, "unable to count low stock")
		return
	}
	if err := h.db.GetContext(ctx, &stats.ExpiringSoonItemsCount, `SELECT COUNT(*) FROM batches
                WHERE quantity > 0 AND expiry_date IS NOT NULL AND expiry_date >= ? AND expiry_date <= ?`, today, cutoff); err != nil {
		h.internalError(w, r, err, "unable to count expiring batches")
		return
	}

	var totals []decimal.Decimal
	if err := h.db.SelectContext(ctx, &totals, `SELECT total_amount FROM sales WHERE substr(sale_date, 1, 10) = ?`, today); err != nil {
		h.internalError(w, r, err, "unable to load today's sales")
		return
	}
	stats.SalesToday = len(totals)
	stats.RevenueToday = decimal.Sum(decimal.Zero, totals...)
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold := queryInt(r, "threshold", defaultLowStockThreshold)
	today := h.today()
	medicines := []domain.Medicine{}
	if err := h.db.SelectContext(r.Context(), &medicines, `SELECT * FROM (`+medicineSelect+` GROUP BY m.id)
                WHERE total_quantity < ? ORDER BY total_quantity, name`, today, today, threshold); err != nil {
		h.internalError(w, r, err, "unable to list low stock")
		return
	}
	respondJSON(w, http.StatusOK, medicines)
}

func (h *Handler) expiringSoon(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", defaultExpiryWindowDays)
	cutoff := h.now().AddDate(0, 0, days).Format("2006-01-02")
	batches := []domain.ExpiringBatch{}
	if err := h.db.SelectContext(r.Context(), &batches, `SELECT b.id AS batch_id, b.medicine_id, m.name AS medicine_name, b.batch_number,
                b.quantity AS quantity_remaining, b.expiry_date
                FROM batches b
                JOIN medicines m ON m.id = b.medicine_id
                WHERE b.quantity > 0 AND b.expiry_date IS NOT NULL AND b.expiry_date >= ? AND b.expiry_date <= ?
                ORDER BY b.expiry_date, b.id`, h.today(), cutoff); err != nil {
		h.internalError(w, r, err, "unable to list expiring batches")
		return
	}
	respondJSON(w, http.StatusOK, batches)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
