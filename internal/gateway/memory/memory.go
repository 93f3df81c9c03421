// Package memory provides an in-process gateway.Gateway holding all backend state in memory.
// It backs tests and the server's offline dev mode, and supports per-operation
// failure injection.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/orderstate/internal/gateway"
	"github.com/mmynk/orderstate/internal/models"
)

// Op names a gateway operation for hooks and call counting.
type Op string

const (
	OpFetchFavorites Op = "fetch_favorites"
	OpInsertFavorite Op = "insert_favorite"
	OpDeleteFavorite Op = "delete_favorite"
	OpQuoteFee       Op = "quote_delivery_fee"
	OpUpload         Op = "upload_artifact"
	OpInsertDriver   Op = "insert_driver"
	OpInsertMerchant Op = "insert_merchant"
	OpUpdateProfile  Op = "update_profile"
	OpGetProfile     Op = "get_profile"
)

// Hook runs before an operation. A non-nil error fails the operation.
// Hooks may block to simulate slow networks.
type Hook func(ctx context.Context) error

// Ensure Gateway implements gateway.Gateway
var _ gateway.Gateway = (*Gateway)(nil)

// Gateway holds backend state in memory.
type Gateway struct {
	mu sync.RWMutex

	merchants map[string]models.Merchant
	favorites map[string][]models.FavoriteRow // userID -> rows, oldest first
	fees      map[string]int64
	uploads   map[string]models.Artifact // url -> artifact
	drivers   []models.DriverRecord
	shops     []models.MerchantRecord
	profiles  map[string]models.Profile

	// DefaultFee is quoted for merchants without an explicit fee.
	DefaultFee int64

	// Now stamps created rows.
	Now func() time.Time

	hooks map[Op]Hook
	calls map[Op]int
}

// New creates an empty Gateway.
func New() *Gateway {
	return &Gateway{
		merchants:  map[string]models.Merchant{},
		favorites:  map[string][]models.FavoriteRow{},
		fees:       map[string]int64{},
		uploads:    map[string]models.Artifact{},
		profiles:   map[string]models.Profile{},
		DefaultFee: 8000,
		Now:        time.Now,
		hooks:      map[Op]Hook{},
		calls:      map[Op]int{},
	}
}

// SetHook installs h to run before every call of op. A nil h removes the hook.
func (g *Gateway) SetHook(op Op, h Hook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h == nil {
		delete(g.hooks, op)
		return
	}
	g.hooks[op] = h
}

// Fail makes every call of op return err.
func (g *Gateway) Fail(op Op, err error) {
	g.SetHook(op, func(context.Context) error { return err })
}

// Calls returns how many times op was invoked, including failed calls.
func (g *Gateway) Calls(op Op) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.calls[op]
}

// begin records the call and runs the hook outside the lock.
func (g *Gateway) begin(ctx context.Context, op Op) error {
	g.mu.Lock()
	g.calls[op]++
	h := g.hooks[op]
	g.mu.Unlock()

	if h != nil {
		if err := h(ctx); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// PutMerchant seeds a merchant listing.
func (g *Gateway) PutMerchant(m models.Merchant) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.merchants[m.ID] = m
}

// PutFee sets the quoted fee for a merchant.
func (g *Gateway) PutFee(merchantID string, fee int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fees[merchantID] = fee
}

// PutProfile seeds a profile.
func (g *Gateway) PutProfile(p models.Profile) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiles[p.UserID] = p
}

func (g *Gateway) FetchFavorites(ctx context.Context, userID string) ([]models.FavoriteRow, error) {
	if err := g.begin(ctx, OpFetchFavorites); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	rows := make([]models.FavoriteRow, 0, len(g.favorites[userID]))
	for _, row := range g.favorites[userID] {
		if m, ok := g.merchants[row.Merchant.ID]; ok {
			row.Merchant = m
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows, nil
}

func (g *Gateway) InsertFavorite(ctx context.Context, userID, merchantID string) (string, error) {
	if err := g.begin(ctx, OpInsertFavorite); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, row := range g.favorites[userID] {
		if row.Merchant.ID == merchantID {
			return row.RowID, nil
		}
	}
	merchant, ok := g.merchants[merchantID]
	if !ok {
		merchant = models.Merchant{ID: merchantID}
	}
	row := models.FavoriteRow{
		RowID:     uuid.New().String(),
		UserID:    userID,
		Merchant:  merchant,
		CreatedAt: g.Now(),
	}
	g.favorites[userID] = append(g.favorites[userID], row)
	return row.RowID, nil
}

func (g *Gateway) DeleteFavorite(ctx context.Context, userID, merchantID string) error {
	if err := g.begin(ctx, OpDeleteFavorite); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	rows := g.favorites[userID]
	for i, row := range rows {
		if row.Merchant.ID == merchantID {
			g.favorites[userID] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (g *Gateway) QuoteDeliveryFee(ctx context.Context, merchantID string, lat, lng float64) (int64, error) {
	if err := g.begin(ctx, OpQuoteFee); err != nil {
		return 0, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	if fee, ok := g.fees[merchantID]; ok {
		return fee, nil
	}
	return g.DefaultFee, nil
}

func (g *Gateway) UploadArtifact(ctx context.Context, a models.Artifact, category, ownerID string) (string, error) {
	if err := g.begin(ctx, OpUpload); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	url := fmt.Sprintf("memory://%s/%s/%s-%s", category, ownerID, uuid.New().String(), a.FileName)
	g.uploads[url] = a
	return url, nil
}

func (g *Gateway) InsertDriverRecord(ctx context.Context, rec *models.DriverRecord) (string, error) {
	if err := g.begin(ctx, OpInsertDriver); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	stored := *rec
	stored.ID = uuid.New().String()
	stored.CreatedAt = g.Now()
	g.drivers = append(g.drivers, stored)
	return stored.ID, nil
}

func (g *Gateway) InsertMerchantRecord(ctx context.Context, rec *models.MerchantRecord) (string, error) {
	if err := g.begin(ctx, OpInsertMerchant); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	stored := *rec
	stored.ID = uuid.New().String()
	stored.CreatedAt = g.Now()
	g.shops = append(g.shops, stored)
	return stored.ID, nil
}

func (g *Gateway) UpdateProfile(ctx context.Context, userID string, u models.ProfileUpdate) error {
	if err := g.begin(ctx, OpUpdateProfile); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.profiles[userID]
	if !ok {
		p = models.Profile{UserID: userID, Role: "customer"}
	}
	if u.FullName != "" {
		p.FullName = u.FullName
	}
	if u.Phone != "" {
		p.Phone = u.Phone
	}
	g.profiles[userID] = p
	return nil
}

func (g *Gateway) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if err := g.begin(ctx, OpGetProfile); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	p, ok := g.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, gateway.ErrNotFound)
	}
	return &p, nil
}

// Uploads returns the number of stored artifacts.
func (g *Gateway) Uploads() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.uploads)
}

// Drivers returns a copy of the inserted driver records.
func (g *Gateway) Drivers() []models.DriverRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]models.DriverRecord(nil), g.drivers...)
}

// Merchants returns a copy of the inserted merchant records.
func (g *Gateway) Merchants() []models.MerchantRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]models.MerchantRecord(nil), g.shops...)
}

// FavoriteRows returns a copy of the user's rows, oldest first.
func (g *Gateway) FavoriteRows(userID string) []models.FavoriteRow {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]models.FavoriteRow(nil), g.favorites[userID]...)
}

// seed is the JSON fixture format accepted by LoadSeed.
type seed struct {
	Merchants []models.Merchant `json:"merchants"`
	Fees      map[string]int64  `json:"fees"`
	Profiles  []models.Profile  `json:"profiles"`
}

// LoadSeed loads merchants, fees and profiles from a JSON fixture.
func (g *Gateway) LoadSeed(data []byte) error {
	var s seed
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to decode seed: %w", err)
	}
	for _, m := range s.Merchants {
		g.PutMerchant(m)
	}
	for id, fee := range s.Fees {
		g.PutFee(id, fee)
	}
	for _, p := range s.Profiles {
		g.PutProfile(p)
	}
	return nil
}
