package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradepost/tradepost/internal/config"
	"github.com/tradepost/tradepost/internal/domain/models"
	"github.com/tradepost/tradepost/internal/storage/memory"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*APIServer, *memory.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New(logger)
	s := New(&config.Config{ApiHost: "localhost", ApiPort: 0}, logger, store, []byte(testSecret))
	s.configureRouter()
	return s, store
}

func seedMarket(t *testing.T, store *memory.Store) {
	t.Helper()
	require.NoError(t, store.Register("alice", "pw", decimal.RequireFromString("100")))
	require.NoError(t, store.AddOwnedItem("alice", "Ball", decimal.RequireFromString("30")))
	require.NoError(t, store.AddOwnedItem("alice", "Bat", decimal.RequireFromString("10")))
	require.NoError(t, store.ListItem("alice", "Ball"))
}

func doRequest(s *APIServer, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func authToken(t *testing.T, s *APIServer, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(AuthRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/auth", bytes.NewReader(body))
	rec := doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestAuthHandler(t *testing.T) {
	s, store := newTestServer(t)
	seedMarket(t, store)

	authToken(t, s, "alice", "pw")

	body, _ := json.Marshal(AuthRequest{Username: "alice", Password: "wrong"})
	rec := doRequest(s, httptest.NewRequest(http.MethodPost, "/api/auth", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, httptest.NewRequest(http.MethodPost, "/api/auth", bytes.NewReader([]byte("not json"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestItemsHandler(t *testing.T) {
	s, store := newTestServer(t)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/items", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	seedMarket(t, store)

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/api/items", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var items []models.Item
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	require.Len(t, items, 1)
	assert.Equal(t, "Ball", items[0].Name)
	assert.Equal(t, "alice", items[0].Seller)
}

func TestItemHandler(t *testing.T) {
	s, store := newTestServer(t)
	seedMarket(t, store)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/items/ball", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var item models.Item
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&item))
	assert.Equal(t, "Ball", item.Name)

	// Unlisted items are not exposed.
	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/api/items/Bat", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInfoHandler(t *testing.T) {
	s, store := newTestServer(t)
	seedMarket(t, store)
	token := authToken(t, s, "alice", "pw")

	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var info InfoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "alice", info.Username)
	assert.True(t, info.Balance.Equal(decimal.RequireFromString("100")))
	require.Len(t, info.Inventory, 1)
	assert.Equal(t, "Bat", info.Inventory[0].Name)
}

func TestAuthenticateMiddleware(t *testing.T) {
	s, store := newTestServer(t)
	seedMarket(t, store)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/info", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	req.Header.Set("Authorization", "garbage")
	rec = doRequest(s, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/info", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec = doRequest(s, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
