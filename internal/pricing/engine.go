package pricing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"medeasy/pos/domain"
)

// ErrInsufficientStock is returned when sellable batches cannot cover a quantity.
var ErrInsufficientStock = errors.New("insufficient stock")

// StockError details a failed allocation.
type StockError struct {
	MedicineID int64
	Requested  int
	Available  int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for medicine %d: requested %d, available %d", e.MedicineID, e.Requested, e.Available)
}

// Unwrap lets callers match ErrInsufficientStock.
func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// Allocation is the part of a quantity drawn from one batch.
type Allocation struct {
	BatchID   int64
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// Sellable filters batches that still have stock and are not expired on
// today (YYYY-MM-DD), ordered first-expiry-first-out. Batches without an
// expiry date go last; ties break on batch id so older deliveries sell first.
func Sellable(batches []domain.Batch, today string) []domain.Batch {
	out := make([]domain.Batch, 0, len(batches))
	for _, b := range batches {
		if b.Quantity <= 0 {
			continue
		}
		if b.ExpiryDate != nil && *b.ExpiryDate < today {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ei, ej := out[i].ExpiryDate, out[j].ExpiryDate
		switch {
		case ei == nil && ej == nil:
			return out[i].ID < out[j].ID
		case ei == nil:
			return false
		case ej == nil:
			return true
		case *ei != *ej:
			return *ei < *ej
		default:
			return out[i].ID < out[j].ID
		}
	})
	return out
}

// Available sums the sellable quantity.
func Available(batches []domain.Batch, today string) int {
	total := 0
	for _, b := range Sellable(batches, today) {
		total += b.Quantity
	}
	return total
}

// Allocate draws qty units from the sellable batches of one medicine.
func Allocate(medicineID int64, batches []domain.Batch, qty int, today string) ([]Allocation, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", qty)
	}
	if available := Available(batches, today); available < qty {
		return nil, &StockError{MedicineID: medicineID, Requested: qty, Available: available}
	}

	sellable := Sellable(batches, today)
	remaining := qty
	allocations := make([]Allocation, 0, len(sellable))
	for _, b := range sellable {
		if remaining == 0 {
			break
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, Allocation{
			BatchID:   b.ID,
			Quantity:  take,
			UnitPrice: b.SellingPrice,
			Subtotal:  b.SellingPrice.Mul(decimal.NewFromInt(int64(take))).Round(2),
		})
		remaining -= take
	}
	return allocations, nil
}

// Total sums allocation subtotals.
func Total(allocations []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.Subtotal)
	}
	return total
}
