package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates how a sale was settled.
type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "cash"
	PaymentMobileMoney PaymentMethod = "mobile_money"
)

// DefaultPaymentMethod is selected for a fresh cart.
const DefaultPaymentMethod = PaymentCash

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentMobileMoney
}

// ParsePaymentMethod accepts the wire names case-insensitively.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(value)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown payment method %q", value)
	}
	return m, nil
}

type Sale struct {
	ID            int64           `db:"id" json:"id"`
	InvoiceNumber string          `db:"invoice_number" json:"invoice_number"`
	UserID        int64           `db:"user_id" json:"user_id"`
	SoldBy        string          `db:"sold_by_full_name" json:"sold_by_full_name"`
	PaymentMethod PaymentMethod   `db:"payment_method" json:"payment_method"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	SaleDate      string          `db:"sale_date" json:"sale_date"`
}

// SaleItem is one batch allocation recorded against a sale.
type SaleItem struct {
	ID         int64           `db:"id" json:"id"`
	SaleID     int64           `db:"sale_id" json:"sale_id"`
	MedicineID int64           `db:"medicine_id" json:"medicine_id"`
	BatchID    int64           `db:"batch_id" json:"batch_id"`
	Quantity   int             `db:"quantity" json:"quantity"`
	UnitPrice  decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal   decimal.Decimal `db:"subtotal" json:"subtotal"`
}

// SaleItemRequest is one requested line of a sale.
type SaleItemRequest struct {
	MedicineID int64 `json:"medicine_id" validate:"required,gt=0"`
	Quantity   int   `json:"quantity" validate:"required,gt=0"`
}

// SaleRequest is the payload for creating a sale.
type SaleRequest struct {
	Items         []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod PaymentMethod     `json:"payment_method" validate:"required,oneof=cash mobile_money"`
}

// QuoteRequest asks the server to price a quantity of one medicine.
type QuoteRequest struct {
	MedicineID int64 `json:"medicine_id" validate:"required,gt=0"`
	Quantity   int   `json:"quantity" validate:"required,gt=0"`
}

// QuoteResponse is the authoritative price for QuoteRequest.
type QuoteResponse struct {
	MedicineID int64           `json:"medicine_id"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// ReceiptItem is a priced line of a completed sale. A medicine drawn from
// several batches appears once per batch.
type ReceiptItem struct {
	MedicineID   int64           `db:"medicine_id" json:"medicine_id"`
	MedicineName string          `db:"medicine_name" json:"medicine_name"`
	BatchID      int64           `db:"batch_id" json:"batch_id"`
	Quantity     int             `db:"quantity" json:"quantity"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal     decimal.Decimal `db:"subtotal" json:"subtotal"`
}

// Receipt is the server-confirmed record of a sale.
type Receipt struct {
	Sale
	Pharmacy *Pharmacy     `json:"pharmacy,omitempty"`
	Items    []ReceiptItem `json:"items"`
}

// DashboardStats summarises the current day for the dashboard cards.
type DashboardStats struct {
	TotalMedicines         int             `json:"total_medicines"`
	LowStockCount          int             `json:"low_stock_count"`
	ExpiringSoonItemsCount int             `json:"expiring_soon_items_count"`
	SalesToday             int             `json:"sales_today"`
	RevenueToday           decimal.Decimal `json:"revenue_today"`
}
