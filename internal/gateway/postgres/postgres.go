// Package postgres implements gateway.Gateway against the hosted Postgres backend.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mmynk/orderstate/internal/gateway"
	"github.com/mmynk/orderstate/internal/models"
)

// Ensure Gateway implements gateway.Gateway
var _ gateway.Gateway = (*Gateway)(nil)

// Gateway implements gateway.Gateway using Postgres for records and an
// ArtifactStore for binary uploads.
type Gateway struct {
	db        *sql.DB
	artifacts gateway.ArtifactStore
}

// New opens a connection pool to dsn and verifies it.
func New(ctx context.Context, dsn string, artifacts gateway.ArtifactStore) (*Gateway, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}

	return &Gateway{db: db, artifacts: artifacts}, nil
}

// NewWithDB wraps an existing pool.
func NewWithDB(db *sql.DB, artifacts gateway.ArtifactStore) *Gateway {
	return &Gateway{db: db, artifacts: artifacts}
}

// Close closes the connection pool.
func (g *Gateway) Close() error {
	return g.db.Close()
}

// Migrate creates the backend tables when they are missing. Used for local development and tests.
func (g *Gateway) Migrate(ctx context.Context) error {
	if _, err := g.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// FetchFavorites returns the user's favorites joined with merchant listings, newest first.
func (g *Gateway) FetchFavorites(ctx context.Context, userID string) ([]models.FavoriteRow, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT f.id, f.user_id, f.created_at,
		       m.id, m.name, COALESCE(m.image_url, ''), COALESCE(m.category, ''),
		       COALESCE(m.rating, 0), COALESCE(m.rating_count, 0), m.is_open,
		       COALESCE(m.address, ''), COALESCE(m.latitude, 0), COALESCE(m.longitude, 0)
		FROM favorites f
		JOIN merchants m ON m.id = f.merchant_id
		WHERE f.user_id = $1
		ORDER BY f.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch favorites: %w", err)
	}
	defer rows.Close()

	var out []models.FavoriteRow
	for rows.Next() {
		var row models.FavoriteRow
		m := &row.Merchant
		if err := rows.Scan(&row.RowID, &row.UserID, &row.CreatedAt,
			&m.ID, &m.Name, &m.Image, &m.Category,
			&m.Rating, &m.RatingCount, &m.IsOpen,
			&m.Address, &m.Latitude, &m.Longitude); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate favorites: %w", err)
	}

	return out, nil
}

// InsertFavorite creates the favorite row, or returns the existing one for the same merchant.
func (g *Gateway) InsertFavorite(ctx context.Context, userID, merchantID string) (string, error) {
	var rowID string
	err := g.db.QueryRowContext(ctx, `
		INSERT INTO favorites (user_id, merchant_id) VALUES ($1, $2)
		ON CONFLICT (user_id, merchant_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id`,
		userID, merchantID,
	).Scan(&rowID)
	if err != nil {
		return "", fmt.Errorf("failed to insert favorite: %w", translate(err))
	}
	return rowID, nil
}

// DeleteFavorite removes the user's favorite for merchantID.
func (g *Gateway) DeleteFavorite(ctx context.Context, userID, merchantID string) error {
	_, err := g.db.ExecContext(ctx,
		"DELETE FROM favorites WHERE user_id = $1 AND merchant_id = $2",
		userID, merchantID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete favorite: %w", err)
	}
	return nil
}

// QuoteDeliveryFee calls the backend's quote_delivery_fee function.
func (g *Gateway) QuoteDeliveryFee(ctx context.Context, merchantID string, lat, lng float64) (int64, error) {
	var fee int64
	err := g.db.QueryRowContext(ctx,
		"SELECT quote_delivery_fee($1, $2, $3)",
		merchantID, lat, lng,
	).Scan(&fee)
	if err != nil {
		return 0, fmt.Errorf("failed to quote delivery fee: %w", translate(err))
	}
	return fee, nil
}

// UploadArtifact delegates to the configured ArtifactStore.
func (g *Gateway) UploadArtifact(ctx context.Context, a models.Artifact, category, ownerID string) (string, error) {
	if g.artifacts == nil {
		return "", errors.New("no artifact store configured")
	}
	return g.artifacts.UploadArtifact(ctx, a, category, ownerID)
}

// InsertDriverRecord inserts a driver application.
func (g *Gateway) InsertDriverRecord(ctx context.Context, rec *models.DriverRecord) (string, error) {
	var id string
	err := g.db.QueryRowContext(ctx, `
		INSERT INTO drivers (user_id, full_name, phone, vehicle_type, vehicle_brand, plate_number,
		                     selfie_url, vehicle_photo_url, id_card_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		rec.UserID, rec.FullName, rec.Phone, rec.VehicleType, rec.VehicleBrand, rec.PlateNumber,
		rec.SelfieURL, rec.VehicleURL, rec.IDCardURL, rec.Status,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert driver: %w", translate(err))
	}
	return id, nil
}

// InsertMerchantRecord inserts a merchant application.
func (g *Gateway) InsertMerchantRecord(ctx context.Context, rec *models.MerchantRecord) (string, error) {
	var id string
	err := g.db.QueryRowContext(ctx, `
		INSERT INTO merchants (owner_id, owner_name, phone, name, category, description, address,
		                       latitude, longitude, image_url, id_card_url, status, is_open)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, FALSE)
		RETURNING id`,
		rec.OwnerID, rec.OwnerName, rec.Phone, rec.Name, rec.Category, rec.Description, rec.Address,
		rec.Latitude, rec.Longitude, rec.ShopPhotoURL, rec.IDCardURL, rec.Status,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert merchant: %w", translate(err))
	}
	return id, nil
}

// UpdateProfile applies the non-empty fields of u.
func (g *Gateway) UpdateProfile(ctx context.Context, userID string, u models.ProfileUpdate) error {
	if u.IsEmpty() {
		return nil
	}
	res, err := g.db.ExecContext(ctx, `
		UPDATE profiles
		SET full_name = COALESCE(NULLIF($2, ''), full_name),
		    phone = COALESCE(NULLIF($3, ''), phone),
		    updated_at = NOW()
		WHERE id = $1`,
		userID, u.FullName, u.Phone,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("profile %s: %w", userID, gateway.ErrNotFound)
	}
	return nil
}

// GetProfile reads a user's profile.
func (g *Gateway) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	p := &models.Profile{}
	err := g.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(email, ''), COALESCE(full_name, ''), COALESCE(phone, ''), role
		FROM profiles WHERE id = $1`,
		userID,
	).Scan(&p.UserID, &p.Email, &p.FullName, &p.Phone, &p.Role)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile %s: %w", userID, gateway.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// translate maps Postgres error classes onto gateway sentinels.
func translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code.Class() {
	case "23": // integrity constraint violation
		if pqErr.Code == "23503" {
			return fmt.Errorf("%w: %s", gateway.ErrNotFound, pqErr.Message)
		}
	case "08": // connection exception
		return fmt.Errorf("%w: %s", gateway.ErrUnavailable, pqErr.Message)
	}
	return err
}
