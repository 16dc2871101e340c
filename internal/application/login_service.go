package application

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"codex-account-manager/internal/adapters/authblob"
	"codex-account-manager/internal/adapters/oauth"
	"codex-account-manager/internal/domain"
	"codex-account-manager/internal/ports"
)

const (
	defaultListenerTimeout = 180 * time.Second
	callbackPollInterval   = 250 * time.Millisecond
)

type LoginConfig struct {
	Issuer      string
	ClientID    string
	RedirectURI string
	// ListenerTimeout bounds how long a started listener waits for the
	// browser redirect. Zero means the default of three minutes.
	ListenerTimeout time.Duration
}

// pendingLogin is the state carried between BeginLogin and CompleteLogin.
// There is at most one; a new BeginLogin discards the old one.
type pendingLogin struct {
	issuer       string
	clientID     string
	redirectURI  string
	state        string
	codeVerifier string
	label        string
	startedAt    time.Time
}

// LoginService runs the browser OAuth flow and the API-key path, handing the
// finished credential to the account service.
type LoginService struct {
	accounts   *AccountService
	listener   ports.CallbackListener
	opener     ports.URLOpener
	httpClient *http.Client
	clock      ports.Clock
	logger     zerolog.Logger
	config     LoginConfig

	mu      sync.Mutex
	pending *pendingLogin
}

func NewLoginService(
	accounts *AccountService,
	listener ports.CallbackListener,
	opener ports.URLOpener,
	httpClient *http.Client,
	clock ports.Clock,
	logger zerolog.Logger,
	config LoginConfig,
) *LoginService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if config.ListenerTimeout <= 0 {
		config.ListenerTimeout = defaultListenerTimeout
	}

	return &LoginService{
		accounts:   accounts,
		listener:   listener,
		opener:     opener,
		httpClient: httpClient,
		clock:      clock,
		logger:     logger.With().Str("component", "login").Logger(),
		config:     config,
	}
}

// BeginLogin generates a fresh PKCE pair and state, records the pending
// session (discarding any prior one), and opens the authorize URL in the
// browser. The optional label is applied to the account once the flow
// completes.
func (s *LoginService) BeginLogin(ctx context.Context, label string) (BrowserLoginStart, error) {
	pkce, err := oauth.NewPKCEPair()
	if err != nil {
		return BrowserLoginStart{}, fmt.Errorf("generate pkce pair: %w", err)
	}
	state, err := oauth.NewState()
	if err != nil {
		return BrowserLoginStart{}, fmt.Errorf("generate state: %w", err)
	}

	authURL, err := oauth.BuildAuthorizeURL(oauth.AuthorizationRequest{
		Issuer:        s.config.Issuer,
		ClientID:      s.config.ClientID,
		RedirectURI:   s.config.RedirectURI,
		State:         state,
		CodeChallenge: pkce.Challenge,
	})
	if err != nil {
		return BrowserLoginStart{}, err
	}

	s.mu.Lock()
	s.pending = &pendingLogin{
		issuer:       s.config.Issuer,
		clientID:     s.config.ClientID,
		redirectURI:  s.config.RedirectURI,
		state:        state,
		codeVerifier: pkce.Verifier,
		label:        strings.TrimSpace(label),
		startedAt:    s.clock.Now(),
	}
	s.mu.Unlock()

	if s.opener != nil {
		if err := s.opener.Open(ctx, authURL); err != nil {
			s.logger.Warn().Err(err).Msg("could not open browser; visit the URL manually")
		}
	}

	s.logger.Info().Msg("login started")

	return BrowserLoginStart{AuthURL: authURL, RedirectURI: s.config.RedirectURI}, nil
}

// ListenForCallback starts the local listener and polls it until the redirect
// lands, the listener fails, or the context is cancelled. Returns the full
// callback URL.
func (s *LoginService) ListenForCallback(ctx context.Context) (string, error) {
	if err := s.listener.Start(ctx, s.config.ListenerTimeout); err != nil {
		return "", err
	}

	ticker := time.NewTicker(callbackPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.listener.Cancel(context.WithoutCancel(ctx))
			return "", ctx.Err()
		case <-ticker.C:
		}

		status := s.listener.Poll(ctx)
		switch status.Phase {
		case ports.ListenerReady:
			return status.CallbackURL, nil
		case ports.ListenerError:
			if status.Err != nil {
				return "", status.Err
			}
			return "", domain.ErrCallbackStopped
		case ports.ListenerIdle:
			return "", domain.ErrCallbackStopped
		}
	}
}

// CompleteLogin consumes the pending session: verifies state, exchanges the
// code, fetches the optional API key, writes the credential, and imports it
// as the active account.
func (s *LoginService) CompleteLogin(ctx context.Context, callbackURL string) (LoginResult, error) {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()

	if pending == nil {
		return LoginResult{}, domain.ErrNoActiveLoginSession
	}

	code, state, err := oauth.ParseCallback(callbackURL)
	if err != nil {
		return LoginResult{}, err
	}
	if state != pending.state {
		return LoginResult{}, domain.ErrStateMismatch
	}

	tokens, err := oauth.ExchangeCode(ctx, s.httpClient, oauth.TokenExchangeRequest{
		Issuer:       pending.issuer,
		ClientID:     pending.clientID,
		RedirectURI:  pending.redirectURI,
		Code:         code,
		CodeVerifier: pending.codeVerifier,
	})
	if err != nil {
		return LoginResult{}, err
	}

	apiKey := oauth.ExchangeAPIKey(ctx, s.httpClient, pending.issuer, pending.clientID, tokens.IDToken)

	blob, err := s.chatGPTAuthPayload(tokens, apiKey)
	if err != nil {
		return LoginResult{}, err
	}

	view, err := s.accounts.AdoptCredential(ctx, blob, pending.label)
	if err != nil {
		return LoginResult{}, err
	}

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	s.logger.Info().Msg("login completed")

	return LoginResult{View: view, Message: "ChatGPT login completed."}, nil
}

// LoginWithAPIKey stores a bare API-key credential through the same import
// path as the browser flow, labelling the account when a label is given.
func (s *LoginService) LoginWithAPIKey(ctx context.Context, apiKey, label string) (LoginResult, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return LoginResult{}, domain.ErrInvalidAuthPayload
	}

	blob, err := json.Marshal(struct {
		AuthMode string `json:"auth_mode"`
		APIKey   string `json:"OPENAI_API_KEY"`
	}{
		AuthMode: "apikey",
		APIKey:   apiKey,
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("encode credential payload: %w", err)
	}

	view, err := s.accounts.AdoptCredential(ctx, blob, strings.TrimSpace(label))
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{View: view, Message: "API key login completed."}, nil
}

// StopListening cancels both the listener and the pending session.
func (s *LoginService) StopListening(ctx context.Context) error {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	return s.listener.Cancel(ctx)
}

func (s *LoginService) chatGPTAuthPayload(tokens oauth.ExchangedTokens, apiKey string) (json.RawMessage, error) {
	payload := struct {
		AuthMode string `json:"auth_mode"`
		APIKey   string `json:"OPENAI_API_KEY,omitempty"`
		Tokens   struct {
			IDToken      string `json:"id_token"`
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			AccountID    string `json:"account_id,omitempty"`
		} `json:"tokens"`
		LastRefresh string `json:"last_refresh"`
	}{
		AuthMode:    "chatgpt",
		APIKey:      apiKey,
		LastRefresh: s.clock.Now().UTC().Format(time.RFC3339),
	}
	payload.Tokens.IDToken = tokens.IDToken
	payload.Tokens.AccessToken = tokens.AccessToken
	payload.Tokens.RefreshToken = tokens.RefreshToken

	blob, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode credential payload: %w", err)
	}

	// account_id lives inside the id token; resolve it once here so the
	// stored blob carries it explicitly, the way the CLI writes it.
	if accountID := authblob.AccountID(blob); accountID != "" {
		payload.Tokens.AccountID = accountID
		blob, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode credential payload: %w", err)
		}
	}

	return blob, nil
}
