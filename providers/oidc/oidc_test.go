package oidc_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/rentcopilot/connection-hub/platforms"
	"github.com/rentcopilot/connection-hub/providers"
	"github.com/rentcopilot/connection-hub/providers/oidc"
	"github.com/stretchr/testify/require"
)

const (
	clientID = "connection-hub"
	keyID    = "test-key"
)

type testFixture struct {
	srv         *httptest.Server
	key         *rsa.PrivateKey
	provider    *oidc.Provider
	discoveries atomic.Int32
	tokenStatus int
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &testFixture{key: key, tokenStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /realms/{env}/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		env := r.PathValue("env")
		if env != "prod" {
			http.NotFound(w, r)
			return
		}
		f.discoveries.Add(1)
		issuer := f.srv.URL + "/realms/" + env
		writeJSON(w, http.StatusOK, map[string]any{
			"issuer":                                issuer,
			"authorization_endpoint":                issuer + "/auth",
			"token_endpoint":                        issuer + "/token",
			"jwks_uri":                              issuer + "/certs",
			"userinfo_endpoint":                     issuer + "/userinfo",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("GET /realms/{env}/certs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": keyID,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})
	mux.HandleFunc("POST /realms/{env}/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "password", r.PostForm.Get("grant_type"))
		require.Equal(t, clientID, r.PostForm.Get("client_id"))
		if f.tokenStatus != http.StatusOK {
			writeJSON(w, f.tokenStatus, map[string]string{"error": "server_error"})
			return
		}
		if r.PostForm.Get("username") != "jane" || r.PostForm.Get("password") != "secret" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":             "invalid_grant",
				"error_description": "Invalid user credentials",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "oidc-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     f.idToken(t, f.srv.URL+"/realms/"+r.PathValue("env")),
		})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	provider, err := oidc.New(oidc.Config{
		Platform:     platforms.Descriptor{Slug: "sso", Name: "SSO"},
		IssuerURL:    f.srv.URL + "/realms/{{environment}}",
		ClientID:     clientID,
		ClientSecret: "shh",
	}, oidc.WithHTTPClient(f.srv.Client()), oidc.WithClock(clockwork.NewFakeClockAt(time.Now())))
	require.NoError(t, err)
	f.provider = provider
	return f
}

func (f *testFixture) idToken(t *testing.T, issuer string) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":                issuer,
		"aud":                clientID,
		"sub":                "user-7",
		"iat":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
		"email":              "jane@example.com",
		"name":               "Jane Doe",
		"preferred_username": "jane",
		"organization":       "Example Lettings",
	})
	token.Header["kid"] = keyID
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := oidc.New(oidc.Config{IssuerURL: "https://sso"})
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestAuthenticate_Success(t *testing.T) {
	f := setupTestFixture(t)

	res, err := f.provider.Authenticate(context.Background(), providers.Credentials{Environment: "prod", Login: "jane", Password: "secret"})
	require.NoError(t, err)
	require.Equal(t, "sso-prod", res.Connection.ID)
	require.Equal(t, "oidc-access-token", res.Connection.Token)
	require.NotNil(t, res.Connection.ExpiresAt)
	require.WithinDuration(t, time.Now().Add(time.Hour), *res.Connection.ExpiresAt, time.Minute)
	require.Equal(t, "user-7", res.User.ID)
	require.Equal(t, "Jane Doe", res.User.DisplayName)
	require.Equal(t, "Example Lettings", res.User.CompanyName)

	_, err = f.provider.Authenticate(context.Background(), providers.Credentials{Environment: "prod", Login: "jane", Password: "secret"})
	require.NoError(t, err)
	require.EqualValues(t, 1, f.discoveries.Load(), "discovery is cached per issuer")
}

func TestAuthenticate_Failures(t *testing.T) {
	t.Run("invalid grant", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.provider.Authenticate(context.Background(), providers.Credentials{Environment: "prod", Login: "jane", Password: "wrong"})
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		require.Contains(t, err.Error(), "Invalid user credentials")
	})

	t.Run("unknown environment", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.provider.Authenticate(context.Background(), providers.Credentials{Environment: "nope", Login: "jane", Password: "secret"})
		require.ErrorIs(t, err, apperrors.ErrEnvironmentUnreachable)
	})

	t.Run("token endpoint down", func(t *testing.T) {
		f := setupTestFixture(t)
		f.tokenStatus = http.StatusServiceUnavailable
		_, err := f.provider.Authenticate(context.Background(), providers.Credentials{Environment: "prod", Login: "jane", Password: "secret"})
		require.ErrorIs(t, err, apperrors.ErrEnvironmentUnreachable)
	})
}
