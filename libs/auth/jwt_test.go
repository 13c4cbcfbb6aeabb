package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHS256RoundTrip(t *testing.T) {
	now := time.Now()
	claims := Claims{
		Sub:  "owner-1",
		Role: "owner",
		Iat:  now.Unix(),
		Exp:  now.Add(time.Hour).Unix(),
	}
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	require.NoError(t, err)

	parsed, err := ParseAndVerifyHS256(token, secret, now)
	require.NoError(t, err)
	assert.Equal(t, claims.Sub, parsed.Sub)
	assert.Equal(t, claims.Role, parsed.Role)

	_, err = ParseAndVerifyHS256(token, "wrong-secret", now)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	now := time.Now()
	token, err := SignHS256(Claims{Sub: "owner-1", Exp: now.Add(-time.Minute).Unix()}, "s")
	require.NoError(t, err)

	_, err = ParseAndVerifyHS256(token, "s", now)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenWithoutSubjectRejected(t *testing.T) {
	token, err := SignHS256(Claims{Role: "owner"}, "s")
	require.NoError(t, err)

	_, err = ParseAndVerifyHS256(token, "s", time.Now())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate(t *testing.T) {
	secret := "test-secret"
	var seen string
	h := Authenticate(secret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CallerID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	anon := httptest.NewRecorder()
	h.ServeHTTP(anon, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, anon.Code)
	assert.Empty(t, seen)

	token, err := SignHS256(Claims{Sub: "owner-7", Exp: time.Now().Add(time.Hour).Unix()}, secret)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "owner-7", seen)

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set("Authorization", "Bearer nope")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, bad)
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
}
