package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codex-account-manager/internal/domain"
)

func TestNewPKCEPair(t *testing.T) {
	t.Parallel()

	pair, err := NewPKCEPair()
	require.NoError(t, err)
	require.NotEmpty(t, pair.Verifier)
	require.NotEmpty(t, pair.Challenge)

	hash := sha256.Sum256([]byte(pair.Verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(hash[:]), pair.Challenge)

	other, err := NewPKCEPair()
	require.NoError(t, err)
	assert.NotEqual(t, pair.Verifier, other.Verifier)
}

func TestBuildAuthorizeURL(t *testing.T) {
	t.Parallel()

	raw, err := BuildAuthorizeURL(AuthorizationRequest{
		Issuer:        "https://auth.example.com/",
		ClientID:      "client-1",
		RedirectURI:   "http://localhost:1455/auth/callback",
		State:         "state-1",
		CodeChallenge: "challenge-1",
	})
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/oauth/authorize", parsed.Path)

	query := parsed.Query()
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "client-1", query.Get("client_id"))
	assert.Equal(t, "http://localhost:1455/auth/callback", query.Get("redirect_uri"))
	assert.Equal(t, Scope, query.Get("scope"))
	assert.Equal(t, "challenge-1", query.Get("code_challenge"))
	assert.Equal(t, PKCEChallengeMethodS256, query.Get("code_challenge_method"))
	assert.Equal(t, "true", query.Get("id_token_add_organizations"))
	assert.Equal(t, "true", query.Get("codex_cli_simplified_flow"))
	assert.Equal(t, "state-1", query.Get("state"))
	assert.Equal(t, Originator, query.Get("originator"))
}

func TestBuildAuthorizeURLValidation(t *testing.T) {
	t.Parallel()

	_, err := BuildAuthorizeURL(AuthorizationRequest{})
	assert.Error(t, err)

	_, err = BuildAuthorizeURL(AuthorizationRequest{
		Issuer:      "https://auth.example.com",
		ClientID:    "client-1",
		RedirectURI: "http://localhost:1455/auth/callback",
		State:       "state-1",
	})
	assert.Error(t, err)
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "code-1", r.PostForm.Get("code"))
		assert.Equal(t, "verifier-1", r.PostForm.Get("code_verifier"))

		_, _ = w.Write([]byte(`{"id_token":"idt","access_token":"at","refresh_token":"rt"}`))
	}))
	t.Cleanup(server.Close)

	tokens, err := ExchangeCode(context.Background(), server.Client(), TokenExchangeRequest{
		Issuer:       server.URL,
		ClientID:     "client-1",
		RedirectURI:  "http://localhost:1455/auth/callback",
		Code:         "code-1",
		CodeVerifier: "verifier-1",
	})
	require.NoError(t, err)
	assert.Equal(t, ExchangedTokens{IDToken: "idt", AccessToken: "at", RefreshToken: "rt"}, tokens)
}

func TestExchangeCodeUpstreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	t.Cleanup(server.Close)

	_, err := ExchangeCode(context.Background(), server.Client(), TokenExchangeRequest{
		Issuer:       server.URL,
		ClientID:     "client-1",
		RedirectURI:  "http://localhost:1455/auth/callback",
		Code:         "code-1",
		CodeVerifier: "verifier-1",
	})
	require.ErrorIs(t, err, domain.ErrTokenExchangeFailed)
	assert.Contains(t, err.Error(), "code expired")
	assert.Contains(t, err.Error(), "400")
}

func TestExchangeCodeMissingTokens(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id_token":"idt"}`))
	}))
	t.Cleanup(server.Close)

	_, err := ExchangeCode(context.Background(), server.Client(), TokenExchangeRequest{
		Issuer:       server.URL,
		ClientID:     "client-1",
		RedirectURI:  "http://localhost:1455/auth/callback",
		Code:         "code-1",
		CodeVerifier: "verifier-1",
	})
	assert.ErrorIs(t, err, domain.ErrTokenExchangeFailed)
}

func TestExchangeAPIKeyBestEffort(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, tokenExchangeGrant, r.PostForm.Get("grant_type"))
			assert.Equal(t, "openai-api-key", r.PostForm.Get("requested_token"))
			assert.Equal(t, idTokenType, r.PostForm.Get("subject_token_type"))

			_, _ = w.Write([]byte(`{"access_token":"sk-exchanged"}`))
		}))
		t.Cleanup(server.Close)

		key := ExchangeAPIKey(context.Background(), server.Client(), server.URL, "client-1", "idt")
		assert.Equal(t, "sk-exchanged", key)
	})

	t.Run("failure is silent", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		t.Cleanup(server.Close)

		key := ExchangeAPIKey(context.Background(), server.Client(), server.URL, "client-1", "idt")
		assert.Empty(t, key)
	})
}

func TestParseCallback(t *testing.T) {
	t.Parallel()

	t.Run("code and state", func(t *testing.T) {
		t.Parallel()

		code, state, err := ParseCallback("http://localhost:1455/auth/callback?code=abc&state=xyz")
		require.NoError(t, err)
		assert.Equal(t, "abc", code)
		assert.Equal(t, "xyz", state)
	})

	t.Run("provider error with description", func(t *testing.T) {
		t.Parallel()

		_, _, err := ParseCallback("http://localhost:1455/auth/callback?error=access_denied&error_description=user+cancelled")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "user cancelled")
	})

	t.Run("provider error code only", func(t *testing.T) {
		t.Parallel()

		_, _, err := ParseCallback("http://localhost:1455/auth/callback?error=access_denied")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access_denied")
	})

	t.Run("missing code", func(t *testing.T) {
		t.Parallel()

		_, _, err := ParseCallback("http://localhost:1455/auth/callback?state=xyz")
		assert.Error(t, err)
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()

		_, _, err := ParseCallback("   ")
		assert.Error(t, err)
	})
}

func TestTokenEndpointErrorDetail(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "desc wins", tokenEndpointError([]byte(`{"error_description":"desc wins","error":{"message":"nested"}}`)))
	assert.Equal(t, "nested", tokenEndpointError([]byte(`{"error":{"message":"nested"}}`)))
	assert.Equal(t, "plain_code", tokenEndpointError([]byte(`{"error":"plain_code"}`)))
	assert.Equal(t, "raw body", tokenEndpointError([]byte(`raw body`)))
	assert.Equal(t, "unknown error", tokenEndpointError([]byte(`  `)))
}
