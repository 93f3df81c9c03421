package favorites

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/orderstate/internal/auth"
	"github.com/mmynk/orderstate/internal/gateway/memory"
	"github.com/mmynk/orderstate/internal/models"
	"github.com/mmynk/orderstate/internal/storage"
)

var (
	warung = models.Merchant{ID: "s1", Name: "Warung Bu Sri"}
	bakso  = models.Merchant{ID: "s2", Name: "Bakso Mas Joko"}
	soto   = models.Merchant{ID: "s3", Name: "Soto Ayam"}
)

func newTestEngine(t *testing.T) (*Engine, *storage.MemoryStore, *memory.Gateway) {
	t.Helper()
	store := storage.NewMemoryStore()
	gw := memory.New()
	gw.PutMerchant(warung)
	gw.PutMerchant(bakso)
	gw.PutMerchant(soto)
	e := New(context.Background(), store, gw, Options{})
	t.Cleanup(e.Close)
	return e, store, gw
}

// block installs a hook on op that waits until the returned release is called.
func block(gw *memory.Gateway, op memory.Op, err error) (release func()) {
	ch := make(chan struct{})
	gw.SetHook(op, func(ctx context.Context) error {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		return err
	})
	return func() { close(ch) }
}

func signIn(t *testing.T, e *Engine, userID string) {
	t.Helper()
	e.OnIdentityChange(userID)
	e.Wait()
	require.True(t, e.State().HasSynced)
}

func TestAdd_VisibleBeforeRemoteConfirms(t *testing.T) {
	e, _, gw := newTestEngine(t)
	signIn(t, e, "userA")

	release := block(gw, memory.OpInsertFavorite, nil)
	require.True(t, e.Add(warung))

	assert.True(t, e.IsFavorite("s1"), "entry shows before the insert completes")
	assert.Empty(t, e.Entries()[0].RemoteRowID)

	release()
	e.Wait()

	entries := e.Entries()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].RemoteRowID)
	require.Len(t, gw.FavoriteRows("userA"), 1)
	assert.Equal(t, gw.FavoriteRows("userA")[0].RowID, entries[0].RemoteRowID)
}

func TestAdd_Anonymous(t *testing.T) {
	e, store, gw := newTestEngine(t)

	require.True(t, e.Add(warung))
	e.Wait()

	assert.Equal(t, 0, gw.Calls(memory.OpInsertFavorite))
	assert.True(t, e.IsFavorite("s1"))

	var stored []models.FavoriteEntry
	ok, err := storage.GetJSON(context.Background(), store, storage.KeyFavorites, &stored)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, stored, 1)
	assert.Equal(t, "s1", stored[0].ID)
}

func TestAdd_Duplicate(t *testing.T) {
	e, _, _ := newTestEngine(t)

	assert.True(t, e.Add(warung))
	assert.False(t, e.Add(warung))
	assert.Len(t, e.Entries(), 1)
}

func TestAdd_NewestFirst(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.Add(warung)
	e.Add(bakso)
	e.Add(soto)

	entries := e.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"s3", "s2", "s1"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
}

func TestAdd_RemoteFailureKeepsEntry(t *testing.T) {
	e, _, gw := newTestEngine(t)
	signIn(t, e, "userA")
	gw.Fail(memory.OpInsertFavorite, errors.New("network down"))

	e.Add(warung)
	e.Wait()

	assert.True(t, e.IsFavorite("s1"))
	assert.Empty(t, e.Entries()[0].RemoteRowID)
	assert.Empty(t, gw.FavoriteRows("userA"))
}

func TestRemove(t *testing.T) {
	t.Run("remote delete", func(t *testing.T) {
		e, _, gw := newTestEngine(t)
		signIn(t, e, "userA")
		e.Add(warung)
		e.Wait()

		require.True(t, e.Remove("s1"))
		e.Wait()

		assert.False(t, e.IsFavorite("s1"))
		assert.Empty(t, gw.FavoriteRows("userA"))
	})

	t.Run("unknown id", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		assert.False(t, e.Remove("nope"))
	})

	t.Run("failure restores entry at its position", func(t *testing.T) {
		e, _, gw := newTestEngine(t)
		signIn(t, e, "userA")
		e.Add(warung)
		e.Add(bakso)
		e.Add(soto)
		e.Wait()

		release := block(gw, memory.OpDeleteFavorite, errors.New("network down"))
		require.True(t, e.Remove("s2"))
		assert.False(t, e.IsFavorite("s2"), "removal shows before the delete completes")

		release()
		e.Wait()

		entries := e.Entries()
		require.Len(t, entries, 3)
		assert.Equal(t, "s2", entries[1].ID)
		assert.NotEmpty(t, entries[1].RemoteRowID)
	})

	t.Run("anonymous is local only", func(t *testing.T) {
		e, _, gw := newTestEngine(t)
		e.Add(warung)
		e.Remove("s1")
		e.Wait()

		assert.Equal(t, 0, gw.Calls(memory.OpDeleteFavorite))
		assert.Empty(t, e.Entries())
	})
}

func TestToggle(t *testing.T) {
	e, _, _ := newTestEngine(t)

	assert.True(t, e.Toggle(warung))
	assert.True(t, e.IsFavorite("s1"))
	assert.False(t, e.Toggle(warung))
	assert.False(t, e.IsFavorite("s1"))
}

func TestOnIdentityChange(t *testing.T) {
	t.Run("sign in fetches once and replaces the list", func(t *testing.T) {
		e, _, gw := newTestEngine(t)
		_, err := gw.InsertFavorite(context.Background(), "userA", "s2")
		require.NoError(t, err)

		e.Add(warung) // anonymous local entry
		e.Wait()

		e.OnIdentityChange("userA")
		e.Wait()

		assert.Equal(t, 1, gw.Calls(memory.OpFetchFavorites))
		st := e.State()
		assert.True(t, st.HasSynced)
		assert.Equal(t, Synced, st.Phase)
		require.Len(t, st.Entries, 1)
		assert.Equal(t, "s2", st.Entries[0].ID)
		assert.Equal(t, "Bakso Mas Joko", st.Entries[0].Name)

		e.OnIdentityChange("userA")
		e.Wait()
		assert.Equal(t, 1, gw.Calls(memory.OpFetchFavorites), "same identity does not refetch")
	})

	t.Run("loading while fetching", func(t *testing.T) {
		e, _, gw := newTestEngine(t)
		release := block(gw, memory.OpFetchFavorites, nil)

		e.OnIdentityChange("userA")
		st := e.State()
		assert.True(t, st.Loading)
		assert.Equal(t, Syncing, st.Phase)

		e.OnIdentityChange("userA")
		release()
		e.Wait()

		assert.Equal(t, 1, gw.Calls(memory.OpFetchFavorites), "no second fetch while one is in flight")
		assert.False(t, e.State().Loading)
	})

	t.Run("sign out keeps entries and resets sync", func(t *testing.T) {
		e, _, gw := newTestEngine(t)
		_, err := gw.InsertFavorite(context.Background(), "userA", "s1")
		require.NoError(t, err)
		signIn(t, e, "userA")

		e.OnIdentityChange("")
		e.Wait()

		st := e.State()
		assert.False(t, st.HasSynced)
		require.Len(t, st.Entries, 1)
		assert.Equal(t, "s1", st.Entries[0].ID)
	})

	t.Run("failed sync keeps list and retries", func(t *testing.T) {
		e, _, gw := newTestEngine(t)
		e.Add(warung)
		gw.Fail(memory.OpFetchFavorites, errors.New("network down"))

		e.OnIdentityChange("userA")
		e.Wait()

		st := e.State()
		assert.False(t, st.HasSynced)
		assert.Equal(t, Unsynced, st.Phase)
		assert.True(t, e.IsFavorite("s1"))

		gw.SetHook(memory.OpFetchFavorites, nil)
		e.OnIdentityChange("userA")
		e.Wait()

		assert.Equal(t, 2, gw.Calls(memory.OpFetchFavorites))
		assert.True(t, e.State().HasSynced)
		assert.Empty(t, e.Entries(), "remote list replaces local")
	})

	t.Run("stale result is discarded", func(t *testing.T) {
		e, _, gw := newTestEngine(t)
		_, err := gw.InsertFavorite(context.Background(), "userA", "s1")
		require.NoError(t, err)
		_, err = gw.InsertFavorite(context.Background(), "userB", "s3")
		require.NoError(t, err)

		release := block(gw, memory.OpFetchFavorites, nil)
		e.OnIdentityChange("userA")
		e.OnIdentityChange("userB")
		release()
		e.Wait()

		st := e.State()
		assert.True(t, st.HasSynced)
		require.Len(t, st.Entries, 1)
		assert.Equal(t, "s3", st.Entries[0].ID)
	})
}

func TestBind(t *testing.T) {
	e, _, gw := newTestEngine(t)
	_, err := gw.InsertFavorite(context.Background(), "userA", "s1")
	require.NoError(t, err)

	jwt := auth.NewJWTManager("secret", time.Hour)
	session := auth.NewSession(jwt, nil, nil)
	stop := e.Bind(session)
	defer stop()

	token, err := jwt.Generate(auth.Identity{UserID: "userA"})
	require.NoError(t, err)
	_, err = session.SignIn(token)
	require.NoError(t, err)
	e.Wait()

	assert.True(t, e.State().HasSynced)
	assert.True(t, e.IsFavorite("s1"))

	session.SignOut()
	e.Wait()
	assert.False(t, e.State().HasSynced)
	assert.True(t, e.IsFavorite("s1"))
}

func TestNew_LoadsAndDedupes(t *testing.T) {
	store := storage.NewMemoryStore()
	seeded := []models.FavoriteEntry{
		{Merchant: warung, AddedAt: time.Unix(20, 0)},
		{Merchant: warung, AddedAt: time.Unix(10, 0)},
		{Merchant: bakso, AddedAt: time.Unix(5, 0)},
	}
	require.NoError(t, storage.SetJSON(context.Background(), store, storage.KeyFavorites, seeded))

	e := New(context.Background(), store, memory.New(), Options{})
	defer e.Close()

	entries := e.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "s1", entries[0].ID)
	assert.Equal(t, time.Unix(20, 0).UTC(), entries[0].AddedAt.UTC())
	assert.Equal(t, "s2", entries[1].ID)
}

func TestSubscribe(t *testing.T) {
	e, _, _ := newTestEngine(t)

	var counts []int
	stop := e.Subscribe(func(st State) { counts = append(counts, len(st.Entries)) })
	e.Add(warung)
	e.Add(bakso)
	e.Remove("s1")
	stop()
	e.Add(soto)

	assert.Equal(t, []int{1, 2, 1}, counts)
}
