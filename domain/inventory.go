package domain

import "github.com/shopspring/decimal"

// Batch is one delivery of a medicine. Each batch carries its own cost and
// selling price, so a sale spanning batches is priced per batch.
type Batch struct {
	ID           int64           `db:"id" json:"id"`
	MedicineID   int64           `db:"medicine_id" json:"medicine_id"`
	BatchNumber  string          `db:"batch_number" json:"batch_number"`
	Quantity     int             `db:"quantity" json:"quantity"`
	CostPrice    decimal.Decimal `db:"cost_price" json:"cost_price"`
	SellingPrice decimal.Decimal `db:"selling_price" json:"selling_price"`
	ExpiryDate   *string         `db:"expiry_date" json:"expiry_date"`
	ReceivedAt   string          `db:"received_at" json:"received_at"`
}

// ExpiringBatch is a row of the expiring-soon report.
type ExpiringBatch struct {
	BatchID           int64  `db:"batch_id" json:"batch_id"`
	MedicineID        int64  `db:"medicine_id" json:"medicine_id"`
	MedicineName      string `db:"medicine_name" json:"medicine_name"`
	BatchNumber       string `db:"batch_number" json:"batch_number"`
	QuantityRemaining int    `db:"quantity_remaining" json:"quantity_remaining"`
	ExpiryDate        string `db:"expiry_date" json:"expiry_date"`
}
