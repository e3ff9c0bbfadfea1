package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestGenerateAndParseToken(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(&Payload{ID: "alice", Name: "Alice"}, testSecret, time.Minute)
	req.NoError(err)

	payload, err := ParseToken(token, testSecret)
	req.NoError(err)
	req.Equal("alice", payload.ID)
	req.Equal("Alice", payload.Name)
	req.Equal(TokenIssuer, payload.Issuer)
}

func TestParseToken_Rejects(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(&Payload{ID: "alice"}, testSecret, time.Minute)
	req.NoError(err)
	_, err = ParseToken(token, "other-secret")
	req.Error(err)

	expired, err := GenerateToken(&Payload{ID: "alice"}, testSecret, -time.Minute)
	req.NoError(err)
	_, err = ParseToken(expired, testSecret)
	req.Error(err)

	anonymous, err := GenerateToken(&Payload{}, testSecret, time.Minute)
	req.NoError(err)
	_, err = ParseToken(anonymous, testSecret)
	req.Error(err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Payload{ID: "alice"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)
	_, err = ParseToken(unsigned, testSecret)
	req.Error(err)
}

func TestGenerateToken_DefaultTTL(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(&Payload{ID: "alice"}, testSecret, 0)
	req.NoError(err)

	payload, err := ParseToken(token, testSecret)
	req.NoError(err)
	req.Equal(int64(DefaultTokenTTL/time.Second), payload.ExpiresAt-payload.IssuedAt)
}

func TestIdentityExtractorMiddleware(t *testing.T) {
	req := require.New(t)
	token, err := GenerateToken(&Payload{ID: "bob", Name: "Bob"}, testSecret, time.Minute)
	req.NoError(err)

	var seen *Payload
	h := IdentityExtractorMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPayloadFromContext(r)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), r)
	req.NotNil(seen)
	req.Equal("bob", seen.ID)

	seen = nil
	r = httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	h.ServeHTTP(httptest.NewRecorder(), r)
	req.NotNil(seen)

	seen = nil
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	h.ServeHTTP(httptest.NewRecorder(), r)
	req.Nil(seen)
}

func TestRequireIdentity(t *testing.T) {
	h := RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(WithPayload(r.Context(), &Payload{ID: "carol"}))
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusNoContent, w.Code)
}
