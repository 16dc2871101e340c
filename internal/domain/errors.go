package domain

import "errors"

var (
	ErrInvalidAuthPayload   = errors.New("auth payload must contain OPENAI_API_KEY or tokens.access_token")
	ErrAccountNotFound      = errors.New("account not found")
	ErrCannotSwitchInactive = errors.New("cannot switch to a depleted or frozen account")
	ErrNoActiveLoginSession = errors.New("no active login session")
	ErrStateMismatch        = errors.New("oauth callback state mismatch")
	ErrCallbackStopped      = errors.New("callback listener stopped")
	ErrCallbackTimeout      = errors.New("timed out waiting for oauth callback")
	ErrCallbackAddressInUse = errors.New("callback listener port is already in use")
	ErrTokenExchangeFailed  = errors.New("token exchange failed")
)
