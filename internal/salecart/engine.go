package salecart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"medeasy/pos/domain"
)

// DefaultResetGrace delays the reset after Close so a closing dialog does not
// flash an empty cart.
const DefaultResetGrace = 150 * time.Millisecond

// Quote is the server's price for a quantity of one medicine.
type Quote struct {
	MedicineID int64
	Quantity   int
	Total      decimal.Decimal
}

// Quoter prices a target quantity. Implementations must be idempotent.
type Quoter interface {
	Quote(ctx context.Context, medicineID int64, quantity int) (Quote, error)
}

// Submitter creates a sale and returns its receipt.
type Submitter interface {
	CreateSale(ctx context.Context, req domain.SaleRequest) (domain.Receipt, error)
}

// LineItem is one medicine in the cart. Subtotal is always the quoted total
// for Quantity.
type LineItem struct {
	Medicine domain.Medicine
	Quantity int
	Subtotal decimal.Decimal
}

// LineState is the lifecycle position of a medicine in the cart.
type LineState int

const (
	Absent LineState = iota
	Pending
	Present
)

func (s LineState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Present:
		return "present"
	default:
		return "absent"
	}
}

// Engine owns one sale cart. Every quantity change is priced by the Quoter;
// nothing is priced locally. Methods are safe for concurrent use and never
// hold the lock across a network call.
type Engine struct {
	quoter    Quoter
	submitter Submitter
	logger    zerolog.Logger
	grace     time.Duration

	mu         sync.Mutex
	items      []LineItem
	method     domain.PaymentMethod
	pending    map[int64]uint64
	ticket     uint64
	submitting bool
	resetTimer *time.Timer
	closeGen   uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithResetGrace overrides DefaultResetGrace.
func WithResetGrace(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.grace = d
		}
	}
}

// New returns an empty cart.
func New(quoter Quoter, submitter Submitter, opts ...Option) *Engine {
	e := &Engine{
		quoter:    quoter,
		submitter: submitter,
		logger:    zerolog.Nop(),
		grace:     DefaultResetGrace,
		method:    domain.DefaultPaymentMethod,
		pending:   make(map[int64]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddOrIncrement adds delta units of medicine, appending a new line or
// growing the existing one. The new total quantity is checked against the
// medicine's stock ceiling and then quoted.
func (e *Engine) AddOrIncrement(ctx context.Context, medicine domain.Medicine, delta int) error {
	if delta <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, delta)
	}

	e.mu.Lock()
	if err := e.checkMutableLocked(medicine.ID); err != nil {
		e.mu.Unlock()
		return err
	}
	current := 0
	if idx := e.indexLocked(medicine.ID); idx >= 0 {
		current = e.items[idx].Quantity
	}
	target := current + delta
	if target > medicine.TotalQuantity {
		e.mu.Unlock()
		return stockExceeded(medicine, target)
	}
	ticket := e.beginQuoteLocked(medicine.ID)
	e.mu.Unlock()

	return e.reconcile(ctx, medicine, target, ticket)
}

// SetQuantity replaces the quantity of an existing line. A quantity of zero
// or less removes the line without contacting the pricing service.
func (e *Engine) SetQuantity(ctx context.Context, medicineID int64, quantity int) error {
	if quantity <= 0 {
		return e.RemoveItem(medicineID)
	}

	e.mu.Lock()
	if err := e.checkMutableLocked(medicineID); err != nil {
		e.mu.Unlock()
		return err
	}
	idx := e.indexLocked(medicineID)
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: medicine %d", ErrNotInCart, medicineID)
	}
	line := e.items[idx]
	if quantity == line.Quantity {
		e.mu.Unlock()
		return nil
	}
	if quantity > line.Medicine.TotalQuantity {
		e.mu.Unlock()
		return stockExceeded(line.Medicine, quantity)
	}
	ticket := e.beginQuoteLocked(medicineID)
	e.mu.Unlock()

	return e.reconcile(ctx, line.Medicine, quantity, ticket)
}

// RemoveItem drops the line for medicineID. It is a no-op when absent and
// makes any in-flight quote for that medicine stale. It only fails while a
// submission is in flight.
func (e *Engine) RemoveItem(medicineID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.submitting {
		return ErrSubmitInFlight
	}
	e.removeLocked(medicineID)
	return nil
}

// ComputeTotal sums the line subtotals.
func (e *Engine) ComputeTotal() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := decimal.Zero
	for _, it := range e.items {
		total = total.Add(it.Subtotal)
	}
	return total
}

// SetPaymentMethod selects how the sale will be paid.
func (e *Engine) SetPaymentMethod(method domain.PaymentMethod) error {
	if !method.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, method)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.submitting {
		return ErrSubmitInFlight
	}
	e.method = method
	return nil
}

// Reset empties the cart, restores the default payment method, discards
// pending quotes and cancels a scheduled reset. It fails with
// ErrSubmitInFlight while a submission is outstanding.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.submitting {
		return ErrSubmitInFlight
	}
	e.cancelScheduledResetLocked()
	e.resetLocked()
	return nil
}

// Close schedules a Reset after the grace delay. Open before it fires keeps
// the cart. A delay that expires during a submission is dropped: a successful
// submission resets the cart anyway and a failed one keeps it for correction.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelScheduledResetLocked()
	gen := e.closeGen
	e.resetTimer = time.AfterFunc(e.grace, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closeGen != gen {
			return
		}
		e.resetTimer = nil
		if e.submitting {
			e.logger.Debug().Msg("scheduled reset skipped, submission in flight")
			return
		}
		e.resetLocked()
	})
}

// Open cancels a reset scheduled by Close.
func (e *Engine) Open() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelScheduledResetLocked()
}

// Submit sends the cart to the sale submission service. On success the cart
// is reset and the receipt returned. On failure the cart is untouched and the
// returned error matches ErrSubmissionFailed and the submitter's own error.
func (e *Engine) Submit(ctx context.Context) (domain.Receipt, error) {
	e.mu.Lock()
	if e.submitting {
		e.mu.Unlock()
		return domain.Receipt{}, ErrSubmitInFlight
	}
	if len(e.items) == 0 {
		e.mu.Unlock()
		return domain.Receipt{}, ErrEmptyCart
	}
	if len(e.pending) > 0 {
		e.mu.Unlock()
		return domain.Receipt{}, ErrLinePending
	}
	if e.submitter == nil {
		e.mu.Unlock()
		return domain.Receipt{}, fmt.Errorf("%w: no submitter configured", ErrSubmissionFailed)
	}
	req := domain.SaleRequest{
		Items:         make([]domain.SaleItemRequest, 0, len(e.items)),
		PaymentMethod: e.method,
	}
	for _, it := range e.items {
		req.Items = append(req.Items, domain.SaleItemRequest{MedicineID: it.Medicine.ID, Quantity: it.Quantity})
	}
	e.submitting = true
	e.mu.Unlock()

	receipt, err := e.submitter.CreateSale(ctx, req)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitting = false
	if err != nil {
		e.logger.Warn().Err(err).Int("items", len(req.Items)).Msg("sale submission failed")
		return domain.Receipt{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	e.logger.Info().Str("invoice", receipt.InvoiceNumber).Str("total", receipt.TotalAmount.StringFixed(2)).Msg("sale submitted")
	e.cancelScheduledResetLocked()
	e.resetLocked()
	return receipt, nil
}

// Items returns a copy of the lines in insertion order.
func (e *Engine) Items() []LineItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]LineItem, len(e.items))
	copy(out, e.items)
	return out
}

// PaymentMethod returns the selected payment method.
func (e *Engine) PaymentMethod() domain.PaymentMethod {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.method
}

// State reports where medicineID is in its line lifecycle.
func (e *Engine) State(medicineID int64) LineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pending[medicineID]; ok {
		return Pending
	}
	if e.indexLocked(medicineID) >= 0 {
		return Present
	}
	return Absent
}

// Pending reports whether a quote for medicineID is in flight. The shell
// should disable that line's quantity controls while it is.
func (e *Engine) Pending(medicineID int64) bool {
	return e.State(medicineID) == Pending
}

// Submitting reports whether a submission is in flight.
func (e *Engine) Submitting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitting
}

func (e *Engine) reconcile(ctx context.Context, medicine domain.Medicine, target int, ticket uint64) error {
	var (
		q   Quote
		err error
	)
	if e.quoter == nil {
		err = errors.New("no quoter configured")
	} else {
		q, err = e.quoter.Quote(ctx, medicine.ID, target)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if current, ok := e.pending[medicine.ID]; !ok || current != ticket {
		e.logger.Debug().Int64("medicine_id", medicine.ID).Uint64("ticket", ticket).Msg("discarding stale quote")
		return nil
	}
	delete(e.pending, medicine.ID)

	if err != nil {
		return fmt.Errorf("%w for %s: %w", ErrQuoteUnavailable, medicine.Name, err)
	}
	if err := validateQuote(q, medicine); err != nil {
		return fmt.Errorf("%w for %s: %w", ErrQuoteUnavailable, medicine.Name, err)
	}

	line := LineItem{Medicine: medicine, Quantity: q.Quantity, Subtotal: q.Total}
	if idx := e.indexLocked(medicine.ID); idx >= 0 {
		e.items[idx] = line
	} else {
		e.items = append(e.items, line)
	}
	return nil
}

func validateQuote(q Quote, medicine domain.Medicine) error {
	switch {
	case q.MedicineID != 0 && q.MedicineID != medicine.ID:
		return fmt.Errorf("quote is for medicine %d", q.MedicineID)
	case q.Quantity <= 0:
		return fmt.Errorf("quote quantity %d is not positive", q.Quantity)
	case q.Quantity > medicine.TotalQuantity:
		return fmt.Errorf("quote quantity %d exceeds stock of %d", q.Quantity, medicine.TotalQuantity)
	case q.Total.IsNegative():
		return fmt.Errorf("quote total %s is negative", q.Total)
	}
	return nil
}

func (e *Engine) checkMutableLocked(medicineID int64) error {
	if e.submitting {
		return ErrSubmitInFlight
	}
	if _, busy := e.pending[medicineID]; busy {
		return fmt.Errorf("%w for medicine %d", ErrLinePending, medicineID)
	}
	return nil
}

func (e *Engine) beginQuoteLocked(medicineID int64) uint64 {
	e.ticket++
	e.pending[medicineID] = e.ticket
	return e.ticket
}

func (e *Engine) indexLocked(medicineID int64) int {
	for i, it := range e.items {
		if it.Medicine.ID == medicineID {
			return i
		}
	}
	return -1
}

func (e *Engine) removeLocked(medicineID int64) {
	delete(e.pending, medicineID)
	if idx := e.indexLocked(medicineID); idx >= 0 {
		e.items = append(e.items[:idx], e.items[idx+1:]...)
	}
}

func (e *Engine) resetLocked() {
	e.items = nil
	e.method = domain.DefaultPaymentMethod
	clear(e.pending)
}

func (e *Engine) cancelScheduledResetLocked() {
	e.closeGen++
	if e.resetTimer != nil {
		e.resetTimer.Stop()
		e.resetTimer = nil
	}
}

func stockExceeded(medicine domain.Medicine, target int) error {
	return fmt.Errorf("%w: only %d units of %s available, %d requested", ErrStockExceeded, medicine.TotalQuantity, medicine.Name, target)
}
