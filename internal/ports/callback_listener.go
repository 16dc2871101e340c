package ports

import (
	"context"
	"time"
)

type ListenerPhase string

const (
	ListenerIdle    ListenerPhase = "idle"
	ListenerRunning ListenerPhase = "running"
	ListenerReady   ListenerPhase = "ready"
	ListenerError   ListenerPhase = "error"
)

type ListenerStatus struct {
	Phase       ListenerPhase
	CallbackURL string
	Err         error
}

// CallbackListener is the short-lived local HTTP listener that captures the
// OAuth redirect. Start replaces any running listener; Cancel makes a pending
// Poll resolve with domain.ErrCallbackStopped within one poll interval.
type CallbackListener interface {
	Start(ctx context.Context, timeout time.Duration) error
	Poll(ctx context.Context) ListenerStatus
	Cancel(ctx context.Context) error
}
