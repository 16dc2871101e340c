// Package bridge exposes the application services as a single op-dispatch
// surface: a JSON request {"op": ..., ...} in, {"ok": ..., ...} out. The
// transport is up to the caller; `cam rpc` runs one request from stdin.
package bridge

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"codex-account-manager/internal/application"
	"codex-account-manager/internal/domain"
	"codex-account-manager/internal/ports"
)

type Request struct {
	Op                  string `json:"op"`
	AccountID           string `json:"accountId,omitempty"`
	Label               string `json:"label,omitempty"`
	Bucket              string `json:"bucket,omitempty"`
	Index               *int   `json:"index,omitempty"`
	SwitchAwayFromMoved *bool  `json:"switchAwayFromMoved,omitempty"`
	CallbackURL         string `json:"callbackUrl,omitempty"`
	APIKey              string `json:"apiKey,omitempty"`
	URL                 string `json:"url,omitempty"`
	Settings            *Patch `json:"settings,omitempty"`
}

// Patch is a partial settings update; nil fields are left untouched.
type Patch struct {
	Theme                      *string `json:"theme,omitempty"`
	AutoArchiveZeroQuota       *bool   `json:"autoArchiveZeroQuota,omitempty"`
	AutoUnarchiveNonZeroQuota  *bool   `json:"autoUnarchiveNonZeroQuota,omitempty"`
	AutoSwitchAwayFromArchived *bool   `json:"autoSwitchAwayFromArchived,omitempty"`
	AutoRefreshActiveEnabled   *bool   `json:"autoRefreshActiveEnabled,omitempty"`
	AutoRefreshIntervalSec     *int    `json:"autoRefreshActiveIntervalSec,omitempty"`
	UsageRefreshDisplayMode    *string `json:"usageRefreshDisplayMode,omitempty"`
}

type Response struct {
	OK    bool       `json:"ok"`
	Value any        `json:"value,omitempty"`
	Error *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stable error codes callers can branch on.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeUnknownOp       = "unknown_op"
	CodeAccountNotFound = "account_not_found"
	CodeInvalidAuth     = "invalid_auth_payload"
	CodeCannotSwitch    = "cannot_switch_inactive"
	CodeNoLoginSession  = "no_active_login_session"
	CodeStateMismatch   = "state_mismatch"
	CodeListenerStopped = "stopped"
	CodeListenerTimeout = "timeout"
	CodeAddressInUse    = "address_in_use"
	CodeTokenExchange   = "token_exchange_failed"
	CodeInternal        = "internal"
)

type Bridge struct {
	accounts *application.AccountService
	login    *application.LoginService
	usage    *application.UsageService
	policy   *application.PolicyService
	state    ports.StateRepository
	opener   ports.URLOpener
	logger   zerolog.Logger
}

func New(
	accounts *application.AccountService,
	login *application.LoginService,
	usage *application.UsageService,
	policy *application.PolicyService,
	state ports.StateRepository,
	opener ports.URLOpener,
	logger zerolog.Logger,
) *Bridge {
	return &Bridge{
		accounts: accounts,
		login:    login,
		usage:    usage,
		policy:   policy,
		state:    state,
		opener:   opener,
		logger:   logger.With().Str("component", "bridge").Logger(),
	}
}

// Handle runs one request and always returns an encodable response; errors
// travel inside the envelope, never as a Go error.
func (b *Bridge) Handle(ctx context.Context, raw []byte) Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return failure(CodeInvalidRequest, "request is not valid JSON: "+err.Error())
	}
	if req.Op == "" {
		return failure(CodeInvalidRequest, "missing op")
	}

	value, err := b.dispatch(ctx, req)
	if err != nil {
		b.logger.Debug().Str("op", req.Op).Err(err).Msg("op failed")
		return failureFromError(err)
	}

	return Response{OK: true, Value: value}
}

func (b *Bridge) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Op {
	case "getAccounts":
		return b.accounts.GetAccounts(ctx)
	case "importCurrentAccount":
		return b.accounts.ImportCurrentAccount(ctx, req.Label)
	case "beginLogin":
		return b.login.BeginLogin(ctx, req.Label)
	case "listenForCallback":
		url, err := b.login.ListenForCallback(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"callbackUrl": url}, nil
	case "completeLogin":
		return b.login.CompleteLogin(ctx, req.CallbackURL)
	case "cancelLogin":
		return nil, b.login.StopListening(ctx)
	case "loginWithApiKey":
		return b.login.LoginWithAPIKey(ctx, req.APIKey, req.Label)
	case "switchAccount":
		return b.accounts.SwitchAccount(ctx, domain.AccountID(req.AccountID))
	case "moveAccount":
		index := 0
		if req.Index != nil {
			index = *req.Index
		}
		return b.accounts.MoveAccount(ctx, domain.AccountID(req.AccountID), domain.Bucket(req.Bucket), index, req.SwitchAwayFromMoved)
	case "archiveAccount":
		return b.accounts.ArchiveAccount(ctx, domain.AccountID(req.AccountID), req.SwitchAwayFromMoved)
	case "unarchiveAccount":
		return b.accounts.UnarchiveAccount(ctx, domain.AccountID(req.AccountID))
	case "removeAccount":
		return b.accounts.RemoveAccount(ctx, domain.AccountID(req.AccountID))
	case "setAccountLabel":
		return b.accounts.SetAccountLabel(ctx, domain.AccountID(req.AccountID), req.Label)
	case "getUsageForAccount":
		return b.usage.FetchForAccount(ctx, domain.AccountID(req.AccountID))
	case "getUsageForCurrent":
		return b.usage.FetchForCredentialFile(ctx)
	case "applyQuotaPolicy":
		return b.policy.Apply(ctx)
	case "getSettings":
		return b.state.LoadState(ctx)
	case "updateSettings":
		return b.updateSettings(ctx, req.Settings)
	case "openUrl":
		if req.URL == "" {
			return nil, errors.New("missing url")
		}
		return nil, b.opener.Open(ctx, req.URL)
	default:
		return nil, unknownOpError{op: req.Op}
	}
}

func (b *Bridge) updateSettings(ctx context.Context, patch *Patch) (domain.BootstrapState, error) {
	state, err := b.state.LoadState(ctx)
	if err != nil {
		return domain.BootstrapState{}, err
	}

	if patch != nil {
		if patch.Theme != nil {
			state.Theme = *patch.Theme
		}
		if patch.AutoArchiveZeroQuota != nil {
			state.AutoArchiveZeroQuota = *patch.AutoArchiveZeroQuota
		}
		if patch.AutoUnarchiveNonZeroQuota != nil {
			state.AutoUnarchiveNonZeroQuota = *patch.AutoUnarchiveNonZeroQuota
		}
		if patch.AutoSwitchAwayFromArchived != nil {
			state.AutoSwitchAwayFromArchived = *patch.AutoSwitchAwayFromArchived
		}
		if patch.AutoRefreshActiveEnabled != nil {
			state.AutoRefreshActiveEnabled = *patch.AutoRefreshActiveEnabled
		}
		if patch.AutoRefreshIntervalSec != nil {
			state.AutoRefreshIntervalSec = domain.ClampAutoRefreshInterval(*patch.AutoRefreshIntervalSec)
		}
		if patch.UsageRefreshDisplayMode != nil {
			state.UsageRefreshDisplayMode = *patch.UsageRefreshDisplayMode
		}
	}

	if err := b.state.SaveState(ctx, state); err != nil {
		return domain.BootstrapState{}, err
	}

	return state, nil
}

type unknownOpError struct{ op string }

func (e unknownOpError) Error() string { return "unknown op: " + e.op }

func failure(code, message string) Response {
	return Response{OK: false, Error: &ErrorInfo{Code: code, Message: message}}
}

func failureFromError(err error) Response {
	code := CodeInternal

	var unknown unknownOpError
	switch {
	case errors.As(err, &unknown):
		code = CodeUnknownOp
	case errors.Is(err, domain.ErrAccountNotFound):
		code = CodeAccountNotFound
	case errors.Is(err, domain.ErrInvalidAuthPayload):
		code = CodeInvalidAuth
	case errors.Is(err, domain.ErrCannotSwitchInactive):
		code = CodeCannotSwitch
	case errors.Is(err, domain.ErrNoActiveLoginSession):
		code = CodeNoLoginSession
	case errors.Is(err, domain.ErrStateMismatch):
		code = CodeStateMismatch
	case errors.Is(err, domain.ErrCallbackStopped):
		code = CodeListenerStopped
	case errors.Is(err, domain.ErrCallbackTimeout):
		code = CodeListenerTimeout
	case errors.Is(err, domain.ErrCallbackAddressInUse):
		code = CodeAddressInUse
	case errors.Is(err, domain.ErrTokenExchangeFailed):
		code = CodeTokenExchange
	}

	return failure(code, err.Error())
}
