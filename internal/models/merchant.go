package models

// Merchant is a snapshot of a merchant's public listing.
// Carts bind to one and favorites store one per entry.
type Merchant struct {
	// ID is the merchant's remote identifier.
	ID string `json:"id"`

	// Name is the display name of the merchant (e.g., "Warung Bu Sri").
	Name string `json:"name"`

	// Image is the URL of the merchant's cover image.
	Image string `json:"image,omitempty"`

	// Category is the merchant's primary food category.
	Category string `json:"category,omitempty"`

	// Rating is the average rating (0-5).
	Rating float64 `json:"rating"`

	// RatingCount is the number of ratings behind Rating.
	RatingCount int `json:"ratingCount"`

	// IsOpen reports whether the merchant was accepting orders when the snapshot was taken.
	IsOpen bool `json:"isOpen"`

	// Address is the merchant's street address.
	Address string `json:"address,omitempty"`

	// Latitude and Longitude locate the merchant for delivery fee quotes.
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}
