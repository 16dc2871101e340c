// Package authblob decodes the opaque Codex auth.json payload into identity
// fields and bearer material. Every function tolerates malformed input and
// returns empty results instead of failing; the blob arrives from outside the
// process and is never trusted to have any particular shape.
package authblob

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"codex-account-manager/internal/domain"
)

// The OpenAI claim namespaces contain dots, which gjson paths must escape.
const (
	authClaimsKey    = `https://api\.openai\.com/auth`
	profileClaimsKey = `https://api\.openai\.com/profile`
)

// emailClaimPaths are tried in order against the decoded id-token payload;
// the first non-empty string wins.
var emailClaimPaths = []string{
	"email",
	profileClaimsKey + ".email",
	"preferred_username",
	"upn",
	"name",
	"sub",
}

func APIKey(auth json.RawMessage) string {
	return stringAt(auth, "OPENAI_API_KEY")
}

func AccessToken(auth json.RawMessage) string {
	return stringAt(auth, "tokens.access_token")
}

// IDToken returns the raw compact id-token, accepting both the plain string
// form and the object form carrying a raw_jwt field.
func IDToken(auth json.RawMessage) string {
	if direct := stringAt(auth, "tokens.id_token"); direct != "" {
		return direct
	}
	return stringAt(auth, "tokens.id_token.raw_jwt")
}

// AccountID prefers the explicit token-bundle account id and falls back to
// the chatgpt_account_id claim inside the id-token payload.
func AccountID(auth json.RawMessage) string {
	if fromTokens := stringAt(auth, "tokens.account_id"); fromTokens != "" {
		return fromTokens
	}
	payload := decodeJWTPayload(IDToken(auth))
	if payload == nil {
		return ""
	}
	return stringAt(payload, authClaimsKey+".chatgpt_account_id")
}

func Email(auth json.RawMessage) string {
	payload := decodeJWTPayload(IDToken(auth))
	if payload == nil {
		return ""
	}
	for _, path := range emailClaimPaths {
		if value := stringAt(payload, path); value != "" {
			return value
		}
	}
	return ""
}

// Validate fails unless the blob carries an API key or an access token.
func Validate(auth json.RawMessage) error {
	if APIKey(auth) != "" {
		return nil
	}
	if AccessToken(auth) != "" {
		return nil
	}
	return domain.ErrInvalidAuthPayload
}

// decodeJWTPayload decodes the middle base64url segment of a compact token.
// Malformed input yields nil, never an error.
func decodeJWTPayload(token string) []byte {
	parts := strings.Split(token, ".")
	if len(parts) < 2 || parts[1] == "" {
		return nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil
	}
	if !gjson.ValidBytes(decoded) {
		return nil
	}
	return decoded
}

func stringAt(blob []byte, path string) string {
	result := gjson.GetBytes(blob, path)
	if result.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(result.String())
}
