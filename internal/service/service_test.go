package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/orderstate/internal/auth"
	"github.com/mmynk/orderstate/internal/cart"
	"github.com/mmynk/orderstate/internal/favorites"
	"github.com/mmynk/orderstate/internal/gateway/memory"
	"github.com/mmynk/orderstate/internal/metrics"
	"github.com/mmynk/orderstate/internal/models"
	"github.com/mmynk/orderstate/internal/recent"
	"github.com/mmynk/orderstate/internal/registration"
	"github.com/mmynk/orderstate/internal/storage"
)

type testServer struct {
	url       string
	gw        *memory.Gateway
	jwt       *auth.JWTManager
	cart      *cart.Engine
	favorites *favorites.Engine
}

// setupTestServer wires every engine over an in-memory store and gateway.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store := storage.NewMemoryStore()
	gw := memory.New()
	gw.PutMerchant(models.Merchant{ID: "s1", Name: "Warung Bu Sri"})
	gw.PutFee("s1", 9000)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	jwt := auth.NewJWTManager("test-secret", time.Hour)
	session := auth.NewSession(jwt, gw, nil)

	cartEngine := cart.New(ctx, store, gw, cart.Options{Metrics: m})
	favEngine := favorites.New(ctx, store, gw, favorites.Options{Metrics: m})
	stop := favEngine.Bind(session)

	server := httptest.NewServer(NewRouter(Deps{
		Cart:      cartEngine,
		Favorites: favEngine,
		Session:   session,
		Driver:    registration.NewDriver(gw, session, registration.Options{Metrics: m}),
		Merchant:  registration.NewMerchant(gw, session, registration.Options{Metrics: m}),
		Recent:    recent.New(ctx, store, nil, m),
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}))

	t.Cleanup(func() {
		server.Close()
		stop()
		cartEngine.Close()
		favEngine.Close()
	})

	return &testServer{url: server.URL, gw: gw, jwt: jwt, cart: cartEngine, favorites: favEngine}
}

// do sends a JSON request and decodes the JSON response into out (if non-nil).
func (s *testServer) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.url+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (s *testServer) signIn(t *testing.T, userID string) {
	t.Helper()
	token, err := s.jwt.Generate(auth.Identity{UserID: userID, Email: userID + "@example.com"})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if code := s.do(t, http.MethodPost, "/api/session", map[string]string{"token": token}, nil); code != http.StatusOK {
		t.Fatalf("Expected sign in 200, got %d", code)
	}
	s.favorites.Wait()
}

func TestHealthz(t *testing.T) {
	s := setupTestServer(t)

	var body map[string]string
	if code := s.do(t, http.MethodGet, "/healthz", nil, &body); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %q", body["status"])
	}
}

func TestCartAPI(t *testing.T) {
	s := setupTestServer(t)
	merchant := map[string]any{"id": "s1", "name": "Warung Bu Sri"}
	item := map[string]any{"id": "m1", "name": "Nasi Goreng", "price": 10000}

	var state cart.State
	s.do(t, http.MethodPost, "/api/cart/items", map[string]any{"item": item, "merchant": merchant}, &state)
	s.do(t, http.MethodPost, "/api/cart/items", map[string]any{"item": item, "merchant": merchant}, &state)

	if state.CartCount != 2 {
		t.Errorf("Expected cartCount 2, got %d", state.CartCount)
	}
	if state.CartTotal != 20000 {
		t.Errorf("Expected cartTotal 20000, got %d", state.CartTotal)
	}

	t.Run("patch quantity and notes", func(t *testing.T) {
		var st cart.State
		s.do(t, http.MethodPatch, "/api/cart/items/m1", map[string]any{"quantity": 3, "notes": "pedas"}, &st)
		if len(st.Items) != 1 || st.Items[0].Quantity != 3 || st.Items[0].Notes != "pedas" {
			t.Errorf("Unexpected items after patch: %+v", st.Items)
		}
	})

	t.Run("merchant note", func(t *testing.T) {
		var st cart.State
		s.do(t, http.MethodPut, "/api/cart/notes/Warung%20Bu%20Sri", map[string]string{"note": "ring the bell"}, &st)
		if st.MerchantNotes["Warung Bu Sri"] != "ring the bell" {
			t.Errorf("Expected merchant note, got %v", st.MerchantNotes)
		}
	})

	t.Run("quote fee", func(t *testing.T) {
		var resp struct {
			Fee  int64      `json:"fee"`
			Cart cart.State `json:"cart"`
		}
		code := s.do(t, http.MethodPost, "/api/cart/delivery-fee/quote", map[string]any{"merchantId": "s1", "latitude": -6.2, "longitude": 106.8}, &resp)
		if code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", code)
		}
		if resp.Fee != 9000 || resp.Cart.DeliveryFee != 9000 {
			t.Errorf("Expected fee 9000, got %d / %d", resp.Fee, resp.Cart.DeliveryFee)
		}
	})

	t.Run("manual fee and clear override", func(t *testing.T) {
		var st cart.State
		s.do(t, http.MethodPut, "/api/cart/delivery-fee", map[string]any{"fee": 1000}, &st)
		if st.DeliveryFee != 1000 {
			t.Errorf("Expected fee 1000, got %d", st.DeliveryFee)
		}
		s.do(t, http.MethodPut, "/api/cart/delivery-fee", map[string]any{"fee": nil}, &st)
		if st.DeliveryFeeOverride != nil || st.DeliveryFee != cart.DefaultBaseFee {
			t.Errorf("Expected base fee after clearing override, got %d", st.DeliveryFee)
		}
	})

	t.Run("validation", func(t *testing.T) {
		if code := s.do(t, http.MethodPost, "/api/cart/items", map[string]any{"item": map[string]any{"price": 1}}, nil); code != http.StatusUnprocessableEntity {
			t.Errorf("Expected 422 for missing id, got %d", code)
		}
		if code := s.do(t, http.MethodPut, "/api/cart/delivery-fee", map[string]any{"fee": -5}, nil); code != http.StatusUnprocessableEntity {
			t.Errorf("Expected 422 for negative fee, got %d", code)
		}
	})

	t.Run("clear", func(t *testing.T) {
		var st cart.State
		s.do(t, http.MethodDelete, "/api/cart", nil, &st)
		if st.CartCount != 0 || len(st.Items) != 0 {
			t.Errorf("Expected empty cart, got %+v", st)
		}
	})
}

func TestFavoritesAPI(t *testing.T) {
	s := setupTestServer(t)
	s.signIn(t, "alice")

	var toggled struct {
		IsFavorite bool            `json:"isFavorite"`
		Favorites  favorites.State `json:"favorites"`
	}
	s.do(t, http.MethodPost, "/api/favorites/toggle", map[string]any{"id": "s1", "name": "Warung Bu Sri"}, &toggled)
	if !toggled.IsFavorite || len(toggled.Favorites.Entries) != 1 {
		t.Fatalf("Expected one favorite, got %+v", toggled)
	}
	s.favorites.Wait()

	if rows := s.gw.FavoriteRows("alice"); len(rows) != 1 {
		t.Errorf("Expected remote row, got %d", len(rows))
	}

	var check map[string]bool
	s.do(t, http.MethodGet, "/api/favorites/s1", nil, &check)
	if !check["isFavorite"] {
		t.Error("Expected s1 to be a favorite")
	}

	if code := s.do(t, http.MethodDelete, "/api/favorites/s1", nil, nil); code != http.StatusOK {
		t.Errorf("Expected 200, got %d", code)
	}
	if code := s.do(t, http.MethodDelete, "/api/favorites/s1", nil, nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing favorite, got %d", code)
	}
}

func TestSessionAPI(t *testing.T) {
	s := setupTestServer(t)

	if code := s.do(t, http.MethodPost, "/api/session", map[string]string{"token": "garbage"}, nil); code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad token, got %d", code)
	}
	if code := s.do(t, http.MethodPost, "/api/session/refresh-profile", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("Expected 401 when signed out, got %d", code)
	}

	s.gw.PutProfile(models.Profile{UserID: "alice", FullName: "Alice"})
	s.signIn(t, "alice")

	var resp sessionResponse
	s.do(t, http.MethodGet, "/api/session", nil, &resp)
	if resp.Identity == nil || resp.Identity.UserID != "alice" {
		t.Fatalf("Expected alice signed in, got %+v", resp.Identity)
	}
	if resp.Profile == nil || resp.Profile.FullName != "Alice" {
		t.Errorf("Expected cached profile, got %+v", resp.Profile)
	}

	s.do(t, http.MethodDelete, "/api/session", nil, &resp)
	if resp.Identity != nil {
		t.Errorf("Expected signed out, got %+v", resp.Identity)
	}
}

func TestRegistrationAPI(t *testing.T) {
	s := setupTestServer(t)
	s.signIn(t, "alice")

	photo := func(name string) map[string]string {
		return map[string]string{"fileName": name, "contentType": "image/jpeg", "data": base64.StdEncoding.EncodeToString([]byte(name))}
	}

	var draft draftResponse
	s.do(t, http.MethodPut, "/api/registration/driver/steps/1", map[string]any{"full_name": "Alice"}, &draft)
	s.do(t, http.MethodPut, "/api/registration/driver/steps/1", map[string]any{"phone": "0812"}, &draft)
	if draft.CurrentStep != 2 {
		t.Errorf("Expected current step 2, got %d", draft.CurrentStep)
	}
	if draft.Steps[1]["full_name"] != "Alice" || draft.Steps[1]["phone"] != "0812" {
		t.Errorf("Expected merged step 1, got %v", draft.Steps[1])
	}

	t.Run("missing artifact", func(t *testing.T) {
		var res registration.Result
		code := s.do(t, http.MethodPost, "/api/registration/driver/submit", map[string]any{"selfie_photo": photo("selfie.jpg")}, &res)
		if code != http.StatusUnprocessableEntity || res.OK {
			t.Errorf("Expected 422 failure, got %d %+v", code, res)
		}
		if len(s.gw.Drivers()) != 0 {
			t.Error("Expected no driver record")
		}
	})

	t.Run("submit", func(t *testing.T) {
		var res registration.Result
		code := s.do(t, http.MethodPost, "/api/registration/driver/submit", map[string]any{
			"selfie_photo":  photo("selfie.jpg"),
			"vehicle_photo": photo("vehicle.jpg"),
			"id_card_photo": photo("ktp.jpg"),
		}, &res)
		if code != http.StatusOK || !res.OK {
			t.Fatalf("Expected success, got %d %+v", code, res)
		}
		drivers := s.gw.Drivers()
		if len(drivers) != 1 || drivers[0].FullName != "Alice" || drivers[0].Status != models.StatusPending {
			t.Errorf("Unexpected driver records: %+v", drivers)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		if code := s.do(t, http.MethodGet, "/api/registration/pilot", nil, nil); code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", code)
		}
	})

	t.Run("bad step", func(t *testing.T) {
		if code := s.do(t, http.MethodPut, "/api/registration/merchant/steps/zero", map[string]any{}, nil); code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", code)
		}
	})
}

func TestRecentSearchesAPI(t *testing.T) {
	s := setupTestServer(t)

	var resp map[string][]string
	s.do(t, http.MethodPost, "/api/recent-searches", map[string]string{"term": "bakso"}, &resp)
	s.do(t, http.MethodPost, "/api/recent-searches", map[string]string{"term": "soto"}, &resp)
	if len(resp["terms"]) != 2 || resp["terms"][0] != "soto" {
		t.Errorf("Unexpected terms %v", resp["terms"])
	}

	s.do(t, http.MethodDelete, "/api/recent-searches/bakso", nil, &resp)
	if len(resp["terms"]) != 1 {
		t.Errorf("Expected one term, got %v", resp["terms"])
	}

	s.do(t, http.MethodDelete, "/api/recent-searches", nil, &resp)
	s.do(t, http.MethodGet, "/api/recent-searches", nil, &resp)
	if len(resp["terms"]) != 0 {
		t.Errorf("Expected no terms, got %v", resp["terms"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t)
	s.do(t, http.MethodPost, "/api/cart/items", map[string]any{"item": map[string]any{"id": "m1", "price": 1}}, nil)

	resp, err := http.Get(s.url + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("orderstate_cart_mutations_total")) {
		t.Errorf("Expected cart mutation counter in metrics output")
	}
}
