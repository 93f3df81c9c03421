// Package models defines the core domain models for orderstate.
//
// # Models
//
// The following models are shared by the state engines:
//   - Merchant: A snapshot of a merchant as shown in listings, carts and favorites
//   - CartItem: One line in the shopping cart
//   - FavoriteEntry / FavoriteRow: A locally held favorite and its remote row
//   - Fields / Artifact: Partial registration wizard input and binary uploads
//   - DriverRecord / MerchantRecord: Records inserted on registration submission
//   - Profile / ProfileUpdate: The signed-in user's profile
//
// # Design Principles
//
// 1. **Snapshots, not references**: Carts and favorites copy the merchant fields they
// display so they can be rendered without a network round-trip
// 2. **Smallest currency unit**: Prices and fees are int64 (no floating point money)
// 3. **IDs as strings**: Relationships use ID strings instead of pointers
package models
