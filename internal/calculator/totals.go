// Package calculator derives cart totals from the current cart lines.
package calculator

import "github.com/mmynk/orderstate/internal/models"

// Totals represents the derived amounts for a cart.
// It is recomputed on every read and never stored.
type Totals struct {
	// CartTotal is Σ price × quantity.
	CartTotal int64 `json:"cartTotal"`

	// CartCount is Σ quantity.
	CartCount int `json:"cartCount"`

	// DeliveryFee is the override when one is set, otherwise the base fee policy.
	DeliveryFee int64 `json:"deliveryFee"`

	// GrandTotal is CartTotal + DeliveryFee.
	GrandTotal int64 `json:"grandTotal"`
}

// FeePolicy resolves the delivery fee when no override is set.
type FeePolicy struct {
	// BaseFee applies to any non-empty cart.
	BaseFee int64
}

// Fee returns BaseFee for a non-empty cart and zero for an empty one.
func (p FeePolicy) Fee(items []models.CartItem) int64 {
	if len(items) == 0 {
		return 0
	}
	return p.BaseFee
}

// Calculate computes the totals for items.
// override, when non-nil, replaces the policy fee.
func Calculate(items []models.CartItem, override *int64, policy FeePolicy) Totals {
	var t Totals
	for _, item := range items {
		t.CartTotal += item.Subtotal()
		t.CartCount += item.Quantity
	}

	if override != nil {
		t.DeliveryFee = *override
	} else {
		t.DeliveryFee = policy.Fee(items)
	}
	t.GrandTotal = t.CartTotal + t.DeliveryFee

	return t
}

// MerchantSubtotals groups the cart total by merchant name, preserving first-seen order.
// Carts may span several merchants; checkout screens show one subtotal per merchant.
// Lines with a non-positive quantity are skipped.
func MerchantSubtotals(items []models.CartItem) []MerchantSubtotal {
	index := make(map[string]int)
	out := []MerchantSubtotal{}
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		i, ok := index[item.MerchantName]
		if !ok {
			i = len(out)
			index[item.MerchantName] = i
			out = append(out, MerchantSubtotal{MerchantID: item.MerchantID, MerchantName: item.MerchantName})
		}
		out[i].Subtotal += item.Subtotal()
		out[i].Count += item.Quantity
	}
	return out
}

// MerchantSubtotal is one merchant's share of the cart.
type MerchantSubtotal struct {
	MerchantID   string `json:"merchantId"`
	MerchantName string `json:"merchantName"`
	Subtotal     int64  `json:"subtotal"`
	Count        int    `json:"count"`
}
