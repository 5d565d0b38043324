package node

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuthToken_VerifiesAgainstItsOwnSecret(t *testing.T) {
	secret := newAuthSecret()
	token, err := newAuthToken(secret)
	require.NoError(t, err)
	assert.True(t, verifyAuthToken(secret, token))
}

func TestVerifyAuthToken_RejectsWrongSecret(t *testing.T) {
	secret := newAuthSecret()
	token, err := newAuthToken(secret)
	require.NoError(t, err)
	assert.False(t, verifyAuthToken(newAuthSecret(), token))
}

func TestVerifyAuthToken_RejectsExpiredToken(t *testing.T) {
	secret := newAuthSecret()
	claims := jwt.RegisteredClaims{
		Subject:   "owner",
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * bearerTokenTTL)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	require.NoError(t, err)

	assert.False(t, verifyAuthToken(secret, signed))
}

func TestVerifyAuthToken_RejectsGarbage(t *testing.T) {
	assert.False(t, verifyAuthToken(newAuthSecret(), "not-a-jwt"))
}

func TestRandomHex_ProducesDistinctIdentifiersOfRequestedLength(t *testing.T) {
	a := randomHex(8)
	b := randomHex(8)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}

func TestRequireBearerAuth_RejectsMissingHeader(t *testing.T) {
	n := newTestNode(t)
	handler := n.requireBearerAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireBearerAuth_RejectsInvalidToken(t *testing.T) {
	n := newTestNode(t)
	handler := n.requireBearerAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireBearerAuth_AcceptsValidToken(t *testing.T) {
	n := newTestNode(t)
	handler := n.requireBearerAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("Authorization", "Bearer "+n.authToken)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
