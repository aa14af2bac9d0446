package domain

import "github.com/shopspring/decimal"

// Medicine is a catalog entry. TotalQuantity is the sellable stock summed over
// its unexpired batches at the time the row was read.
type Medicine struct {
	ID             int64           `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Brand          string          `db:"brand" json:"brand"`
	Form           string          `db:"form" json:"form"`
	Category       string          `db:"category" json:"category"`
	SellingPrice   decimal.Decimal `db:"selling_price" json:"selling_price"`
	TotalQuantity  int             `db:"total_quantity" json:"total_quantity"`
	EarliestExpiry *string         `db:"earliest_expiry" json:"earliest_expiry"`
}

// Categories accepted for medicines.
var Categories = []string{"painkiller", "antibiotic", "supplement", "antibacterial", "antiseptic", "other"}
