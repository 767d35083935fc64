package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "access-secret-32-chars-long!!!!!"

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	mgr := NewJWTManager(testSecret, 15*time.Minute, "rsm")

	t.Run("round trip keeps organization", func(t *testing.T) {
		tok, err := mgr.GenerateAccessToken("user-123", 42, "admin")
		require.NoError(t, err)

		claims, err := mgr.ValidateAccessToken(tok)
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.UserID)
		assert.Equal(t, int64(42), claims.OrganizationID)
		assert.Equal(t, "admin", claims.Role)
	})

	t.Run("invalid token fails validation", func(t *testing.T) {
		_, err := mgr.ValidateAccessToken("invalid-token")
		assert.Error(t, err)
	})

	t.Run("expired token fails", func(t *testing.T) {
		short := NewJWTManager(testSecret, -1*time.Second, "rsm")
		tok, err := short.GenerateAccessToken("user-1", 1, "")
		require.NoError(t, err)
		_, err = mgr.ValidateAccessToken(tok)
		assert.Error(t, err)
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		other := NewJWTManager("another-secret-that-is-32-chars!", time.Minute, "rsm")
		tok, err := other.GenerateAccessToken("user-1", 1, "")
		require.NoError(t, err)
		_, err = mgr.ValidateAccessToken(tok)
		assert.Error(t, err)
	})

	t.Run("wrong issuer fails", func(t *testing.T) {
		other := NewJWTManager(testSecret, time.Minute, "someone-else")
		tok, err := other.GenerateAccessToken("user-1", 1, "")
		require.NoError(t, err)
		_, err = mgr.ValidateAccessToken(tok)
		assert.Error(t, err)
	})
}

func TestMiddleware(t *testing.T) {
	mgr := NewJWTManager(testSecret, time.Minute, "rsm")
	var seen *AccessClaims
	h := Middleware(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserClaims(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do(""))
	assert.Equal(t, http.StatusUnauthorized, do("Basic abc"))
	assert.Equal(t, http.StatusUnauthorized, do("Bearer nope"))

	noOrg, err := mgr.GenerateAccessToken("u", 0, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do("Bearer "+noOrg))

	tok, err := mgr.GenerateAccessToken("u", 9, "member")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, do("bearer "+tok))
	require.NotNil(t, seen)
	assert.Equal(t, int64(9), seen.OrganizationID)
}
