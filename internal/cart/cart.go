// Package cart holds the shopping cart state and mirrors it into the local store.
//
// Mutations apply synchronously to the in-memory state, notify subscribers and
// then rewrite the whole cart into the local store in the background. A cart may
// hold items from several merchants.
package cart

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mmynk/orderstate/internal/async"
	"github.com/mmynk/orderstate/internal/calculator"
	"github.com/mmynk/orderstate/internal/gateway"
	"github.com/mmynk/orderstate/internal/metrics"
	"github.com/mmynk/orderstate/internal/models"
	"github.com/mmynk/orderstate/internal/storage"
)

// DefaultBaseFee is the flat delivery fee for a non-empty cart without an override.
const DefaultBaseFee int64 = 5000

// ItemInput describes a menu item being added to the cart.
type ItemInput struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Image string `json:"image,omitempty"`

	// MerchantID and MerchantName are used when no merchant snapshot is supplied.
	MerchantID   string `json:"merchantId,omitempty"`
	MerchantName string `json:"merchantName,omitempty"`
}

// State is a consistent copy of the cart, including derived totals.
type State struct {
	Items               []models.CartItem `json:"items"`
	Merchant            *models.Merchant  `json:"merchant,omitempty"`
	MerchantNotes       map[string]string `json:"merchantNotes"`
	DeliveryFeeOverride *int64            `json:"deliveryFeeOverride,omitempty"`
	DeliveryFeeLoading  bool              `json:"deliveryFeeLoading"`

	// Subtotals splits CartTotal per merchant, in first-added order.
	Subtotals []calculator.MerchantSubtotal `json:"subtotals"`

	calculator.Totals
}

// Options configures an Engine. The zero value is usable.
type Options struct {
	// BaseFee overrides DefaultBaseFee when positive.
	BaseFee int64
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Engine owns the cart. It is safe for concurrent use.
type Engine struct {
	mu          sync.Mutex
	items       []models.CartItem
	merchant    *models.Merchant
	notes       map[string]string
	feeOverride *int64
	feeLoading  bool
	quoteSeq    uint64

	// gen counts mutations; persisted is the newest generation written to the store.
	gen       uint64
	persistMu sync.Mutex
	persisted uint64

	observers async.Observers[State]

	policy  calculator.FeePolicy
	store   storage.KVStore
	quoter  gateway.FeeQuoter
	runner  *async.Runner
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates an Engine and loads the persisted cart from store.
// Unreadable or missing keys start the cart empty. quoter may be nil.
func New(ctx context.Context, store storage.KVStore, quoter gateway.FeeQuoter, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseFee := opts.BaseFee
	if baseFee <= 0 {
		baseFee = DefaultBaseFee
	}

	e := &Engine{
		notes:   map[string]string{},
		policy:  calculator.FeePolicy{BaseFee: baseFee},
		store:   store,
		quoter:  quoter,
		runner:  async.NewRunner(ctx, logger),
		logger:  logger,
		metrics: opts.Metrics,
	}
	e.load(ctx)
	return e
}

func (e *Engine) load(ctx context.Context) {
	var items []models.CartItem
	if _, err := storage.GetJSON(ctx, e.store, storage.KeyCartItems, &items); err != nil {
		e.logger.Warn("Failed to load cart items", "error", err)
		e.metrics.LocalStoreError(storage.KeyCartItems)
	}
	e.items = normalize(items)

	var merchant models.Merchant
	ok, err := storage.GetJSON(ctx, e.store, storage.KeyCartMerchant, &merchant)
	if err != nil {
		e.logger.Warn("Failed to load cart merchant", "error", err)
		e.metrics.LocalStoreError(storage.KeyCartMerchant)
	}
	if ok && err == nil {
		e.merchant = &merchant
	}

	notes := map[string]string{}
	if _, err := storage.GetJSON(ctx, e.store, storage.KeyCartNotes, &notes); err != nil {
		e.logger.Warn("Failed to load merchant notes", "error", err)
		e.metrics.LocalStoreError(storage.KeyCartNotes)
		notes = map[string]string{}
	}
	e.notes = notes

	e.logger.Debug("Cart loaded", "items", len(e.items))
}

// normalize drops lines with non-positive quantity and merges duplicate IDs.
func normalize(items []models.CartItem) []models.CartItem {
	out := make([]models.CartItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.ID == "" || item.Quantity <= 0 {
			continue
		}
		if i, ok := index[item.ID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}
	return out
}

// AddItem adds one unit of item. An existing line with the same ID gains one
// unit and keeps its notes and merchant fields; otherwise a new line is appended.
// A non-nil merchant becomes the cart's bound merchant. It always succeeds.
func (e *Engine) AddItem(item ItemInput, merchant *models.Merchant) bool {
	e.mutate("add_item", func() bool {
		if merchant != nil {
			m := *merchant
			e.merchant = &m
		}

		if i := e.indexOf(item.ID); i >= 0 {
			e.items[i].Quantity++
			return true
		}

		line := models.CartItem{
			ID:           item.ID,
			Name:         item.Name,
			Price:        item.Price,
			Quantity:     1,
			Image:        item.Image,
			MerchantID:   item.MerchantID,
			MerchantName: item.MerchantName,
		}
		if merchant != nil {
			line.MerchantID = merchant.ID
			line.MerchantName = merchant.Name
		}
		e.items = append(e.items, line)
		return true
	})
	return true
}

// RemoveItem removes the line with the given ID. Absent IDs are ignored.
func (e *Engine) RemoveItem(id string) {
	e.mutate("remove_item", func() bool {
		return e.remove(id)
	})
}

// UpdateQuantity sets the quantity of a line. quantity <= 0 removes it.
func (e *Engine) UpdateQuantity(id string, quantity int) {
	e.mutate("update_quantity", func() bool {
		if quantity <= 0 {
			return e.remove(id)
		}
		i := e.indexOf(id)
		if i < 0 || e.items[i].Quantity == quantity {
			return false
		}
		e.items[i].Quantity = quantity
		return true
	})
}

// UpdateNotes replaces the free-text notes on a line.
func (e *Engine) UpdateNotes(id, notes string) {
	e.mutate("update_notes", func() bool {
		i := e.indexOf(id)
		if i < 0 || e.items[i].Notes == notes {
			return false
		}
		e.items[i].Notes = notes
		return true
	})
}

// SetMerchantNote sets the note for a merchant. An empty note removes it.
func (e *Engine) SetMerchantNote(merchantName, note string) {
	e.mutate("set_merchant_note", func() bool {
		if note == "" {
			if _, ok := e.notes[merchantName]; !ok {
				return false
			}
			delete(e.notes, merchantName)
			return true
		}
		if e.notes[merchantName] == note {
			return false
		}
		e.notes[merchantName] = note
		return true
	})
}

// MerchantNote returns the note for a merchant.
func (e *Engine) MerchantNote(merchantName string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notes[merchantName]
}

// Clear empties the cart and deletes its store keys before returning.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.items = nil
	e.merchant = nil
	e.notes = map[string]string{}
	e.feeOverride = nil
	// A quote still in flight belongs to the old cart.
	e.quoteSeq++
	e.feeLoading = false
	e.gen++
	gen := e.gen

	// Holding persistMu while deleting keeps in-flight snapshot writes from
	// landing after the delete; setting persisted makes older ones skip.
	e.persistMu.Lock()
	ctx := context.WithoutCancel(e.runner.Context())
	err := e.store.Delete(ctx, storage.KeyCartItems, storage.KeyCartMerchant, storage.KeyCartNotes)
	e.persisted = gen
	e.persistMu.Unlock()

	st := e.stateLocked()
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("Failed to delete cart keys", "error", err)
		e.metrics.LocalStoreError(storage.KeyCartItems)
	}
	e.metrics.CartMutation("clear")
	e.observers.Notify(st)
}

// SetDeliveryFee overrides the delivery fee with a fee resolved elsewhere.
func (e *Engine) SetDeliveryFee(fee int64) {
	e.mu.Lock()
	e.feeOverride = &fee
	st := e.stateLocked()
	e.mu.Unlock()

	e.metrics.CartMutation("set_delivery_fee")
	e.observers.Notify(st)
}

// ClearDeliveryFee drops the override so the base fee policy applies again.
func (e *Engine) ClearDeliveryFee() {
	e.mu.Lock()
	e.feeOverride = nil
	st := e.stateLocked()
	e.mu.Unlock()

	e.observers.Notify(st)
}

// CalculateDeliveryFee quotes the fee for delivering from merchantID to (lat, lng)
// and stores it as the override. On failure the previous fee stays in effect.
// The cart stays editable while the quote is in flight. When quotes overlap, only
// the most recently started one is applied. It returns the fee in effect afterwards.
func (e *Engine) CalculateDeliveryFee(ctx context.Context, merchantID string, lat, lng float64) int64 {
	e.mu.Lock()
	e.quoteSeq++
	seq := e.quoteSeq
	e.feeLoading = true
	st := e.stateLocked()
	e.mu.Unlock()
	e.observers.Notify(st)

	var (
		fee int64
		err = gateway.ErrUnavailable
	)
	if e.quoter != nil {
		fee, err = e.quoter.QuoteDeliveryFee(ctx, merchantID, lat, lng)
	}
	if err != nil {
		e.logger.Warn("Delivery fee quote failed, keeping previous fee",
			"merchant_id", merchantID,
			"error", err,
		)
	}
	e.metrics.FeeQuote(metrics.Outcome(err))

	e.mu.Lock()
	if seq == e.quoteSeq {
		if err == nil {
			e.feeOverride = &fee
		}
		e.feeLoading = false
	}
	st = e.stateLocked()
	e.mu.Unlock()
	e.observers.Notify(st)

	return st.DeliveryFee
}

// State returns a copy of the cart with derived totals.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Items returns a copy of the cart lines in insertion order.
func (e *Engine) Items() []models.CartItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.CartItem(nil), e.items...)
}

// Totals returns the derived totals, recomputed from the current lines.
func (e *Engine) Totals() calculator.Totals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return calculator.Calculate(e.items, e.feeOverride, e.policy)
}

// Subscribe registers fn to receive the new state after every change.
// fn runs on the goroutine that made the change, after the lock is released.
// It returns an unsubscribe function.
func (e *Engine) Subscribe(fn func(State)) func() {
	return e.observers.Subscribe(fn)
}

// Wait blocks until pending store writes have finished.
func (e *Engine) Wait() {
	e.runner.Wait()
}

// Close cancels the engine context and waits for scheduled store writes,
// which still land.
func (e *Engine) Close() {
	e.runner.Close()
}

// mutate applies fn under the lock. When fn reports a change, subscribers are
// notified and a snapshot write is scheduled.
func (e *Engine) mutate(op string, fn func() bool) {
	e.mu.Lock()
	if !fn() {
		e.mu.Unlock()
		return
	}
	e.gen++
	gen := e.gen
	snap := e.snapshotLocked()
	st := e.stateLocked()
	e.mu.Unlock()

	e.metrics.CartMutation(op)
	e.observers.Notify(st)
	e.runner.Go("persist cart", func(ctx context.Context) {
		e.persist(ctx, gen, snap)
	})
}

type snapshot struct {
	items    []models.CartItem
	merchant *models.Merchant
	notes    map[string]string
}

func (e *Engine) snapshotLocked() snapshot {
	return snapshot{
		items:    append([]models.CartItem{}, e.items...),
		merchant: cloneMerchant(e.merchant),
		notes:    cloneNotes(e.notes),
	}
}

// persist writes snap unless a newer generation has already been written.
// Writes still land after the owner's context is cancelled.
func (e *Engine) persist(ctx context.Context, gen uint64, snap snapshot) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	if gen <= e.persisted {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if err := storage.SetJSON(ctx, e.store, storage.KeyCartItems, snap.items); err != nil {
		e.logger.Warn("Failed to persist cart items", "error", err)
		e.metrics.LocalStoreError(storage.KeyCartItems)
	}
	var err error
	if snap.merchant != nil {
		err = storage.SetJSON(ctx, e.store, storage.KeyCartMerchant, snap.merchant)
	} else {
		err = e.store.Delete(ctx, storage.KeyCartMerchant)
	}
	if err != nil {
		e.logger.Warn("Failed to persist cart merchant", "error", err)
		e.metrics.LocalStoreError(storage.KeyCartMerchant)
	}
	if err := storage.SetJSON(ctx, e.store, storage.KeyCartNotes, snap.notes); err != nil {
		e.logger.Warn("Failed to persist merchant notes", "error", err)
		e.metrics.LocalStoreError(storage.KeyCartNotes)
	}
	e.persisted = gen
}

func (e *Engine) indexOf(id string) int {
	for i := range e.items {
		if e.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) remove(id string) bool {
	i := e.indexOf(id)
	if i < 0 {
		return false
	}
	e.items = append(e.items[:i:i], e.items[i+1:]...)
	return true
}

func (e *Engine) stateLocked() State {
	st := State{
		Items:              append([]models.CartItem{}, e.items...),
		Merchant:           cloneMerchant(e.merchant),
		MerchantNotes:      cloneNotes(e.notes),
		DeliveryFeeLoading: e.feeLoading,
		Subtotals:          calculator.MerchantSubtotals(e.items),
		Totals:             calculator.Calculate(e.items, e.feeOverride, e.policy),
	}
	if e.feeOverride != nil {
		fee := *e.feeOverride
		st.DeliveryFeeOverride = &fee
	}
	return st
}

func cloneMerchant(m *models.Merchant) *models.Merchant {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}

func cloneNotes(notes map[string]string) map[string]string {
	out := make(map[string]string, len(notes))
	for k, v := range notes {
		out[k] = v
	}
	return out
}
