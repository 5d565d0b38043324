package node

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const bearerTokenTTL = 24 * time.Hour

// newAuthSecret generates a fresh random HS256 signing secret. A node never
// persists it: restarting reissues both the secret and the token, which is
// acceptable since the only consumer is the local owner-facing UI started
// alongside the node.
func newAuthSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("node: failed to read random bytes for auth secret: " + err.Error())
	}
	return buf
}

// newAuthToken issues an HS256 bearer token against secret, valid for
// bearerTokenTTL, for the local owner-only API.
func newAuthToken(secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   "owner",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(bearerTokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// verifyAuthToken checks tokenString against secret, rejecting expired or
// otherwise invalid tokens.
func verifyAuthToken(secret []byte, tokenString string) bool {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	return err == nil && token.Valid
}

// randomHex returns a URL-safe random identifier of n bytes, hex-encoded.
// Used for message and request tracing, not security.
func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// requireBearerAuth wraps next so it only runs when the request carries a
// valid "Authorization: Bearer <token>" header signed with secret.
func (n *Node) requireBearerAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" || !verifyAuthToken(n.authSecret, tokenString) {
			writeJSONError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next(w, r)
	}
}
