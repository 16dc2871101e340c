package authblob

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codex-account-manager/internal/domain"
)

func fakeJWT(t *testing.T, claims map[string]any) string {
	t.Helper()

	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	body := base64.RawURLEncoding.EncodeToString(payload)
	return fmt.Sprintf("%s.%s.sig", header, body)
}

func TestAccountIDPrefersTokenBundle(t *testing.T) {
	t.Parallel()

	idToken := fakeJWT(t, map[string]any{
		"https://api.openai.com/auth": map[string]any{"chatgpt_account_id": "claim-acct"},
	})
	blob := json.RawMessage(fmt.Sprintf(`{"tokens":{"account_id":"bundle-acct","id_token":%q}}`, idToken))

	assert.Equal(t, "bundle-acct", AccountID(blob))
}

func TestAccountIDFallsBackToIDTokenClaim(t *testing.T) {
	t.Parallel()

	idToken := fakeJWT(t, map[string]any{
		"https://api.openai.com/auth": map[string]any{"chatgpt_account_id": "claim-acct"},
	})
	blob := json.RawMessage(fmt.Sprintf(`{"tokens":{"id_token":%q}}`, idToken))

	assert.Equal(t, "claim-acct", AccountID(blob))
}

func TestAccountIDObjectIDTokenForm(t *testing.T) {
	t.Parallel()

	idToken := fakeJWT(t, map[string]any{
		"https://api.openai.com/auth": map[string]any{"chatgpt_account_id": "claim-acct"},
	})
	blob := json.RawMessage(fmt.Sprintf(`{"tokens":{"id_token":{"raw_jwt":%q}}}`, idToken))

	assert.Equal(t, "claim-acct", AccountID(blob))
}

func TestEmailClaimOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		claims map[string]any
		want   string
	}{
		{
			name:   "direct email claim wins",
			claims: map[string]any{"email": "a@example.com", "preferred_username": "b@example.com"},
			want:   "a@example.com",
		},
		{
			name: "profile claim beats preferred_username",
			claims: map[string]any{
				"https://api.openai.com/profile": map[string]any{"email": "profile@example.com"},
				"preferred_username":             "b@example.com",
			},
			want: "profile@example.com",
		},
		{
			name:   "preferred_username fallback",
			claims: map[string]any{"preferred_username": "b@example.com"},
			want:   "b@example.com",
		},
		{
			name:   "sub is the last resort",
			claims: map[string]any{"sub": "user-123"},
			want:   "user-123",
		},
		{
			name:   "no identity claims",
			claims: map[string]any{"aud": "app"},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			blob := json.RawMessage(fmt.Sprintf(`{"tokens":{"id_token":%q}}`, fakeJWT(t, tt.claims)))
			assert.Equal(t, tt.want, Email(blob))
		})
	}
}

func TestMalformedInputYieldsEmpty(t *testing.T) {
	t.Parallel()

	blobs := []json.RawMessage{
		nil,
		json.RawMessage(``),
		json.RawMessage(`not json`),
		json.RawMessage(`{"tokens":{"id_token":"only-one-segment"}}`),
		json.RawMessage(`{"tokens":{"id_token":"a.!!!invalid-base64!!!.c"}}`),
		json.RawMessage(`{"tokens":{"id_token":"a."}}`),
		json.RawMessage(`{"tokens":{"account_id":42}}`),
	}

	for _, blob := range blobs {
		assert.Empty(t, AccountID(blob))
		assert.Empty(t, Email(blob))
		assert.Empty(t, APIKey(blob))
		assert.Empty(t, AccessToken(blob))
	}
}

func TestJWTPayloadThatIsNotJSON(t *testing.T) {
	t.Parallel()

	body := base64.RawURLEncoding.EncodeToString([]byte("plain text"))
	blob := json.RawMessage(fmt.Sprintf(`{"tokens":{"id_token":"h.%s.s"}}`, body))

	assert.Empty(t, AccountID(blob))
	assert.Empty(t, Email(blob))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Validate(json.RawMessage(`{"OPENAI_API_KEY":"sk-test"}`)))
	assert.NoError(t, Validate(json.RawMessage(`{"tokens":{"access_token":"at-test"}}`)))

	err := Validate(json.RawMessage(`{"tokens":{"id_token":"x.y.z"}}`))
	assert.ErrorIs(t, err, domain.ErrInvalidAuthPayload)

	err = Validate(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAuthPayload)
}
