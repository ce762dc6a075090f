package blizzard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wow-guild-mcp/internal/models"
)

func tokenHandler(counter *atomic.Int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counter.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"expires_in":   3600,
		})
	}
}

func newTestClient(t *testing.T, authURL, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Options{
		ClientID:     "id",
		ClientSecret: "secret",
		Region:       "us",
		Limits:       NewRateLimitState(10000, 10000),
		AuthURL:      authURL,
		BaseURL:      baseURL,
	})
	require.NoError(t, err)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Options{})
	assert.Error(t, err)
}

func TestAcquireTokenCachesUntilExpiry(t *testing.T) {
	var tokenCalls atomic.Int64
	auth := httptest.NewServer(tokenHandler(&tokenCalls))
	defer auth.Close()

	c := newTestClient(t, auth.URL, "http://unused.invalid")

	ctx := context.Background()
	tok, err := c.AcquireToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test-token", tok)

	_, err = c.AcquireToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tokenCalls.Load())
}

func TestAcquireTokenRejected(t *testing.T) {
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer auth.Close()

	c := newTestClient(t, auth.URL, "http://unused.invalid")

	_, err := c.AcquireToken(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, "auth_error", ErrorKind(err))
}

func TestFetchNotFoundDoesNotRetry(t *testing.T) {
	var tokenCalls, apiCalls atomic.Int64
	auth := httptest.NewServer(tokenHandler(&tokenCalls))
	defer auth.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer api.Close()

	c := newTestClient(t, auth.URL, api.URL)

	_, err := c.GetItemDetails(context.Background(), 12345)
	var badErr *BadRequestError
	require.ErrorAs(t, err, &badErr)
	assert.Equal(t, http.StatusNotFound, badErr.StatusCode)
	assert.Equal(t, int64(1), apiCalls.Load())
}

func TestFetchRetriesAfter429(t *testing.T) {
	var tokenCalls, apiCalls atomic.Int64
	auth := httptest.NewServer(tokenHandler(&tokenCalls))
	defer auth.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiCalls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": 12345, "name": "Test Item", "level": 1,
		})
	}))
	defer api.Close()

	c := newTestClient(t, auth.URL, api.URL)

	item, err := c.GetItemDetails(context.Background(), 12345)
	require.NoError(t, err)
	assert.Equal(t, "Test Item", item.Name)
	assert.Equal(t, int64(2), apiCalls.Load())
	// The shared limiter learned about the 429.
	assert.False(t, c.Limits().Snapshot().Last429.IsZero())
}

func TestFetchExhaustsRetriesOn500(t *testing.T) {
	var tokenCalls, apiCalls atomic.Int64
	auth := httptest.NewServer(tokenHandler(&tokenCalls))
	defer auth.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer api.Close()

	c := newTestClient(t, auth.URL, api.URL)

	_, err := c.GetItemDetails(context.Background(), 12345)
	var upErr *UpstreamUnavailableError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, c.policy.maxAttempts, upErr.Attempts)
	assert.Equal(t, int64(c.policy.maxAttempts), apiCalls.Load())
	assert.Equal(t, "upstream_unavailable", ErrorKind(err))
}

func TestFetchReauthenticatesOn401(t *testing.T) {
	var tokenCalls, apiCalls atomic.Int64
	auth := httptest.NewServer(tokenHandler(&tokenCalls))
	defer auth.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiCalls.Add(1) == 1 {
			http.Error(w, "token expired", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "name": "X"})
	}))
	defer api.Close()

	c := newTestClient(t, auth.URL, api.URL)

	_, err := c.GetItemDetails(context.Background(), 1)
	require.NoError(t, err)
	// One token for the first call, a fresh one after the 401.
	assert.Equal(t, int64(2), tokenCalls.Load())
}

func TestConnectedRealmID(t *testing.T) {
	var tokenCalls atomic.Int64
	auth := httptest.NewServer(tokenHandler(&tokenCalls))
	defer auth.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"connected_realm": map[string]string{
				"href": "https://us.api.blizzard.com/data/wow/connected-realm/60?namespace=dynamic-us",
			},
		})
	}))
	defer api.Close()

	c := newTestClient(t, auth.URL, api.URL)

	id, err := c.ConnectedRealmID(context.Background(), "Stormrage")
	require.NoError(t, err)
	assert.Equal(t, int64(60), id)
}

func TestAuctionsConvertsListings(t *testing.T) {
	var tokenCalls atomic.Int64
	auth := httptest.NewServer(tokenHandler(&tokenCalls))
	defer auth.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"auctions": []map[string]any{
				{"id": 1, "item": map[string]any{"id": 100}, "quantity": 20, "unit_price": 50},
				{"id": 2, "item": map[string]any{"id": 200}, "quantity": 1, "buyout": 9000,
					"seller": map[string]any{"id": 7, "name": "trader"}},
				// Bid-only auction: skipped.
				{"id": 3, "item": map[string]any{"id": 300}, "quantity": 1},
			},
		})
	}))
	defer api.Close()

	c := newTestClient(t, auth.URL, api.URL)

	listings, err := c.Auctions(context.Background(), 60)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, int64(100), listings[0].ItemID)
	assert.Equal(t, float64(50), listings[0].UnitPrice)
	assert.Empty(t, listings[0].Seller)

	assert.Equal(t, int64(200), listings[1].ItemID)
	assert.Equal(t, float64(9000), listings[1].UnitPrice)
	assert.Equal(t, "trader", listings[1].Seller)
}

func TestCommoditiesConvertsListings(t *testing.T) {
	var tokenCalls atomic.Int64
	auth := httptest.NewServer(tokenHandler(&tokenCalls))
	defer auth.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/wow/auctions/commodities", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		// Commodity listings are flat unit-price entries with no seller.
		json.NewEncoder(w).Encode(map[string]any{
			"auctions": []map[string]any{
				{"id": 1, "item": map[string]any{"id": 168487}, "quantity": 200, "unit_price": 50},
				{"id": 2, "item": map[string]any{"id": 168487}, "quantity": 100, "unit_price": 55},
			},
		})
	}))
	defer api.Close()

	c := newTestClient(t, auth.URL, api.URL)

	listings, err := c.Commodities(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, int64(168487), listings[0].ItemID)
	assert.Equal(t, float64(50), listings[0].UnitPrice)
	assert.Empty(t, listings[0].Seller)
}

func TestNamespaceSelection(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		endpoint string
		want     string
	}{
		{"retail auctions", models.VersionRetail, "/data/wow/connected-realm/60/auctions", "dynamic-us"},
		{"retail realm", models.VersionRetail, "/data/wow/realm/stormrage", "dynamic-us"},
		{"retail item", models.VersionRetail, "/data/wow/item/168487", "static-us"},
		{"retail guild", models.VersionRetail, "/data/wow/guild/stormrage/honor/roster", "profile-us"},
		{"retail profile", models.VersionRetail, "/profile/wow/character/stormrage/thrall", "profile-us"},
		{"classic auctions", models.VersionClassic, "/data/wow/connected-realm/4408/auctions", "dynamic-classic-us"},
		{"classic item", models.VersionClassic, "/data/wow/item/13444", "static-classic-us"},
		{"classic profile", models.VersionClassic, "/profile/wow/character/whitemane/crusader", "profile-classic-us"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, "http://unused.invalid", "http://unused.invalid")
			c.opts.GameVersion = tt.version
			assert.Equal(t, tt.want, c.namespaceFor(tt.endpoint))
		})
	}
}

func TestIDFromHref(t *testing.T) {
	id, err := idFromHref("https://us.api.blizzard.com/data/wow/connected-realm/121?namespace=dynamic-us")
	require.NoError(t, err)
	assert.Equal(t, int64(121), id)

	_, err = idFromHref("")
	assert.Error(t, err)

	_, err = idFromHref("https://example.com/data/wow/connected-realm/not-a-number")
	assert.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("Wed, 21 Oct 2026 07:28:00 GMT"))
}
