// Package gateway defines the boundary to the hosted backend.
//
// Engines depend on the narrow interfaces (FavoritesGateway, FeeQuoter,
// RegistrationGateway, ProfileReader); Gateway is the full contract a backend
// adapter implements.
package gateway

import (
	"context"
	"errors"

	"github.com/mmynk/orderstate/internal/models"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is returned when the backend cannot be reached.
	ErrUnavailable = errors.New("backend unavailable")
)

// FavoritesGateway reads and writes a user's favorite rows.
type FavoritesGateway interface {
	// FetchFavorites returns the user's favorites, newest first.
	FetchFavorites(ctx context.Context, userID string) ([]models.FavoriteRow, error)

	// InsertFavorite creates a favorite row and returns its row ID.
	InsertFavorite(ctx context.Context, userID, merchantID string) (string, error)

	// DeleteFavorite removes the user's favorite row for merchantID.
	DeleteFavorite(ctx context.Context, userID, merchantID string) error
}

// FeeQuoter quotes delivery fees.
type FeeQuoter interface {
	// QuoteDeliveryFee returns the fee in the smallest currency unit for delivering
	// from merchantID to the given coordinates.
	QuoteDeliveryFee(ctx context.Context, merchantID string, lat, lng float64) (int64, error)
}

// ArtifactStore stores uploaded binary files.
type ArtifactStore interface {
	// UploadArtifact stores a and returns a stable reference (URL) to it.
	// category groups uploads (e.g., "drivers/selfie_photo"); ownerID scopes them to a user.
	UploadArtifact(ctx context.Context, a models.Artifact, category, ownerID string) (string, error)
}

// ProfileReader reads a user's profile.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// RegistrationGateway is what a registration submission needs.
type RegistrationGateway interface {
	ArtifactStore

	// InsertDriverRecord inserts a driver record and returns its ID.
	InsertDriverRecord(ctx context.Context, rec *models.DriverRecord) (string, error)

	// InsertMerchantRecord inserts a merchant record and returns its ID.
	InsertMerchantRecord(ctx context.Context, rec *models.MerchantRecord) (string, error)

	// UpdateProfile applies the non-empty fields of u to the user's profile.
	UpdateProfile(ctx context.Context, userID string, u models.ProfileUpdate) error
}

// Gateway is the full backend contract.
type Gateway interface {
	FavoritesGateway
	FeeQuoter
	RegistrationGateway
	ProfileReader
}
