package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanbridge/relay-server-go/internal/util"
)

func resolveActor(t *testing.T, req *http.Request) *string {
	t.Helper()
	var actor *string
	handler := NewIdentityMiddleware().Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = GetActor(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return actor
}

func TestIdentityMiddleware(t *testing.T) {
	t.Run("bearer token becomes hashed actor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
		req.Header.Set("Authorization", "Bearer my-device-token")

		actor := resolveActor(t, req)
		require.NotNil(t, actor)
		assert.Equal(t, util.HashToken("my-device-token"), *actor)
	})

	t.Run("query token works for websocket clients", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/relay?token=my-device-token", nil)

		actor := resolveActor(t, req)
		require.NotNil(t, actor)
		assert.Equal(t, util.HashToken("my-device-token"), *actor)
	})

	t.Run("header wins over query token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/relay?token=query-token", nil)
		req.Header.Set("Authorization", "Bearer header-token")

		actor := resolveActor(t, req)
		require.NotNil(t, actor)
		assert.Equal(t, util.HashToken("header-token"), *actor)
	})

	t.Run("no token means anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
		assert.Nil(t, resolveActor(t, req))
	})

	t.Run("malformed authorization header is ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		assert.Nil(t, resolveActor(t, req))
	})
}
