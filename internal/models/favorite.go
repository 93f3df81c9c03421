package models

import "time"

// FavoriteEntry is a favorited merchant as held by the favorites engine.
// There is at most one entry per merchant ID.
type FavoriteEntry struct {
	Merchant

	// AddedAt is when the entry was added locally, or the remote creation time after a sync.
	AddedAt time.Time `json:"addedAt"`

	// RemoteRowID is the remote row backing this entry.
	// Empty until the remote store confirms the insert. Only used to address deletes.
	RemoteRowID string `json:"remoteRowId,omitempty"`
}

// FavoriteRow is a favorites row as returned by the remote store.
type FavoriteRow struct {
	RowID     string
	UserID    string
	Merchant  Merchant
	CreatedAt time.Time
}

// Entry converts a remote row to a confirmed local entry.
func (r FavoriteRow) Entry() FavoriteEntry {
	return FavoriteEntry{
		Merchant:    r.Merchant,
		AddedAt:     r.CreatedAt,
		RemoteRowID: r.RowID,
	}
}
