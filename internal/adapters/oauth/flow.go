// Package oauth implements the provider-specific login flow: PKCE challenge
// generation, the authorize URL, the code and API-key token exchanges, and the
// local callback listener. This is deliberately not a general OAuth client;
// the endpoints, client id semantics, and extra query parameters are the ones
// the Codex CLI login uses.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"codex-account-manager/internal/domain"
)

const (
	Scope      = "openid profile email offline_access"
	Originator = "codex_cli_rs"

	tokenExchangeGrant = "urn:ietf:params:oauth:grant-type:token-exchange"
	idTokenType        = "urn:ietf:params:oauth:token-type:id_token"

	maxTokenResponseBytes = 1 << 20
)

type AuthorizationRequest struct {
	Issuer        string
	ClientID      string
	RedirectURI   string
	State         string
	CodeChallenge string
}

// BuildAuthorizeURL constructs the provider's authorize URL with the fixed
// Codex login parameters.
func BuildAuthorizeURL(req AuthorizationRequest) (string, error) {
	if req.Issuer == "" {
		return "", errors.New("issuer is required")
	}
	if req.ClientID == "" {
		return "", errors.New("client id is required")
	}
	if req.RedirectURI == "" {
		return "", errors.New("redirect uri is required")
	}
	if req.State == "" {
		return "", errors.New("state is required")
	}
	if req.CodeChallenge == "" {
		return "", errors.New("code challenge is required")
	}

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", req.ClientID)
	query.Set("redirect_uri", req.RedirectURI)
	query.Set("scope", Scope)
	query.Set("code_challenge", req.CodeChallenge)
	query.Set("code_challenge_method", PKCEChallengeMethodS256)
	query.Set("id_token_add_organizations", "true")
	query.Set("codex_cli_simplified_flow", "true")
	query.Set("state", req.State)
	query.Set("originator", Originator)

	return strings.TrimRight(req.Issuer, "/") + "/oauth/authorize?" + query.Encode(), nil
}

type TokenExchangeRequest struct {
	Issuer       string
	ClientID     string
	RedirectURI  string
	Code         string
	CodeVerifier string
}

type ExchangedTokens struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
}

// ExchangeCode trades an authorization code for the id/access/refresh token
// triple. A non-success response is reported as ErrTokenExchangeFailed with
// the upstream detail extracted from the body.
func ExchangeCode(ctx context.Context, client *http.Client, req TokenExchangeRequest) (ExchangedTokens, error) {
	values := url.Values{}
	values.Set("grant_type", "authorization_code")
	values.Set("code", req.Code)
	values.Set("redirect_uri", req.RedirectURI)
	values.Set("client_id", req.ClientID)
	values.Set("code_verifier", req.CodeVerifier)

	body, status, err := postForm(ctx, client, tokenEndpoint(req.Issuer), values)
	if err != nil {
		return ExchangedTokens{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return ExchangedTokens{}, fmt.Errorf("%w (%d): %s", domain.ErrTokenExchangeFailed, status, tokenEndpointError(body))
	}

	var payload struct {
		IDToken      string `json:"id_token"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ExchangedTokens{}, fmt.Errorf("decode token response: %w", err)
	}
	if payload.IDToken == "" || payload.AccessToken == "" || payload.RefreshToken == "" {
		return ExchangedTokens{}, fmt.Errorf("%w: response missing required token fields", domain.ErrTokenExchangeFailed)
	}

	return ExchangedTokens{
		IDToken:      payload.IDToken,
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}, nil
}

// ExchangeAPIKey performs the secondary token-exchange grant that yields a
// direct API key for the logged-in identity. Best effort: any failure returns
// an empty key and no error.
func ExchangeAPIKey(ctx context.Context, client *http.Client, issuer, clientID, idToken string) string {
	values := url.Values{}
	values.Set("grant_type", tokenExchangeGrant)
	values.Set("client_id", clientID)
	values.Set("requested_token", "openai-api-key")
	values.Set("subject_token", idToken)
	values.Set("subject_token_type", idTokenType)

	body, status, err := postForm(ctx, client, tokenEndpoint(issuer), values)
	if err != nil || status < http.StatusOK || status >= http.StatusMultipleChoices {
		return ""
	}

	return strings.TrimSpace(gjson.GetBytes(body, "access_token").String())
}

// ParseCallback extracts the authorization code and state from the redirect
// URL the browser hit.
func ParseCallback(raw string) (code, state string, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "", errors.New("callback URL is empty")
	}

	parsed, parseErr := url.Parse(trimmed)
	if parseErr != nil {
		return "", "", fmt.Errorf("invalid callback URL: %w", parseErr)
	}

	query := parsed.Query()
	code = strings.TrimSpace(query.Get("code"))
	if code == "" {
		if errorCode := strings.TrimSpace(query.Get("error")); errorCode != "" {
			if description := strings.TrimSpace(query.Get("error_description")); description != "" {
				return "", "", fmt.Errorf("login failed: %s", description)
			}
			return "", "", fmt.Errorf("login failed: %s", errorCode)
		}
		return "", "", errors.New("callback URL does not contain an authorization code")
	}

	return code, strings.TrimSpace(query.Get("state")), nil
}

func postForm(ctx context.Context, client *http.Client, endpoint string, values url.Values) ([]byte, int, error) {
	if client == nil {
		client = http.DefaultClient
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, 0, err
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := client.Do(request)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = response.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, 0, err
	}

	return body, response.StatusCode, nil
}

// tokenEndpointError digs a human-readable detail out of a failed token
// response: error_description, then error.message, then the error code, then
// the raw text.
func tokenEndpointError(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "unknown error"
	}

	if gjson.ValidBytes(body) {
		for _, path := range []string{"error_description", "error.message", "error"} {
			value := gjson.GetBytes(body, path)
			if value.Type == gjson.String && strings.TrimSpace(value.String()) != "" {
				return strings.TrimSpace(value.String())
			}
		}
	}

	return trimmed
}

func tokenEndpoint(issuer string) string {
	return strings.TrimRight(issuer, "/") + "/oauth/token"
}
