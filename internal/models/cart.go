package models

// CartItem represents a single line in the cart.
// There is exactly one CartItem per distinct ID.
type CartItem struct {
	// ID is the menu item identifier.
	ID string `json:"id"`

	// Name is the menu item name.
	Name string `json:"name"`

	// Price is the unit price in the smallest currency unit.
	Price int64 `json:"price"`

	// Quantity is always >= 1. Decrementing to zero removes the line.
	Quantity int `json:"quantity"`

	// Notes is free text for the kitchen (e.g., "no chili").
	Notes string `json:"notes"`

	// MerchantID and MerchantName identify the merchant selling the item.
	// A cart may hold items from several merchants.
	MerchantID   string `json:"merchantId"`
	MerchantName string `json:"merchantName"`

	// Image is the menu item picture URL.
	Image string `json:"image,omitempty"`
}

// Subtotal returns Price × Quantity.
func (i CartItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}
