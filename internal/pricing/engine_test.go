package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"medeasy/pos/domain"
)

func date(s string) *string { return &s }

func batch(id int64, qty int, price string, expiry *string) domain.Batch {
	return domain.Batch{ID: id, MedicineID: 1, Quantity: qty, SellingPrice: decimal.RequireFromString(price), ExpiryDate: expiry}
}

func TestSellableOrdersByExpiryAndDropsExpired(t *testing.T) {
	batches := []domain.Batch{
		batch(1, 10, "2.00", nil),
		batch(2, 5, "1.90", date("2026-12-01")),
		batch(3, 5, "1.80", date("2026-01-01")),
		batch(4, 0, "1.00", date("2026-11-01")),
		batch(5, 5, "1.70", date("2026-11-01")),
	}
	got := Sellable(batches, "2026-10-19")
	ids := make([]int64, 0, len(got))
	for _, b := range got {
		ids = append(ids, b.ID)
	}
	require.Equal(t, []int64{5, 2, 1}, ids)
	require.Equal(t, 20, Available(batches, "2026-10-19"))
}

func TestAllocateBlendsBatches(t *testing.T) {
	batches := []domain.Batch{
		batch(1, 5, "2.00", date("2027-01-01")),
		batch(2, 45, "1.8333", date("2027-06-01")),
	}

	five, err := Allocate(1, batches, 5, "2026-10-19")
	require.NoError(t, err)
	require.Len(t, five, 1)
	require.Equal(t, "10", Total(five).String())

	eight, err := Allocate(1, batches, 8, "2026-10-19")
	require.NoError(t, err)
	require.Len(t, eight, 2)
	require.Equal(t, 5, eight[0].Quantity)
	require.Equal(t, 3, eight[1].Quantity)
	require.True(t, Total(eight).Equal(decimal.RequireFromString("15.50")), Total(eight).String())
}

func TestAllocateInsufficientStock(t *testing.T) {
	batches := []domain.Batch{batch(1, 5, "2.00", nil), batch(2, 3, "2.00", date("2020-01-01"))}
	_, err := Allocate(9, batches, 6, "2026-10-19")
	require.True(t, errors.Is(err, ErrInsufficientStock))

	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, 5, stockErr.Available)
	require.Equal(t, 6, stockErr.Requested)
	require.EqualValues(t, 9, stockErr.MedicineID)
}

func TestAllocateRejectsNonPositive(t *testing.T) {
	_, err := Allocate(1, nil, 0, "2026-10-19")
	require.Error(t, err)
}
