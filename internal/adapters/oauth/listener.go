package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"codex-account-manager/internal/domain"
	"codex-account-manager/internal/ports"
)

const CallbackPath = "/auth/callback"

// Listener owns the short-lived HTTP server bound to the fixed redirect port.
// Each Start bumps a generation counter; resolutions carrying a stale
// generation are dropped, so a cancelled listen can never clobber the state
// of a newer one.
type Listener struct {
	addr string

	mu          sync.Mutex
	generation  uint64
	phase       ports.ListenerPhase
	callbackURL string
	err         error
	server      *http.Server
	tcpListener net.Listener
	timer       *time.Timer
}

var _ ports.CallbackListener = (*Listener)(nil)

func NewListener(addr string) *Listener {
	return &Listener{
		addr:  addr,
		phase: ports.ListenerIdle,
	}
}

// RedirectURI is the redirect the authorize URL advertises for this listener.
func (l *Listener) RedirectURI() string {
	_, port, err := net.SplitHostPort(l.addr)
	if err != nil {
		return "http://localhost" + CallbackPath
	}
	return fmt.Sprintf("http://localhost:%s%s", port, CallbackPath)
}

// Start replaces any running listener with a fresh one.
func (l *Listener) Start(_ context.Context, timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeLocked()
	l.generation++
	generation := l.generation
	l.callbackURL = ""
	l.err = nil

	tcpListener, err := net.Listen("tcp", l.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			l.phase = ports.ListenerError
			l.err = domain.ErrCallbackAddressInUse
			return domain.ErrCallbackAddressInUse
		}
		l.phase = ports.ListenerError
		l.err = fmt.Errorf("bind callback listener on %s: %w", l.addr, err)
		return l.err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		callbackURL := "http://localhost" + hostPortSuffix(l.addr) + r.URL.RequestURI()

		// Reply before resolving: resolving shuts the server down, and the
		// browser must still receive the completion page.
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><h3>Login completed. You can return to the account manager.</h3></body></html>"))
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		l.resolve(generation, callbackURL, nil)
	})

	server := &http.Server{Handler: mux}
	l.server = server
	l.tcpListener = tcpListener
	l.phase = ports.ListenerRunning

	go func() {
		serveErr := server.Serve(tcpListener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) && !errors.Is(serveErr, net.ErrClosed) {
			l.resolve(generation, "", fmt.Errorf("callback listener failed: %w", serveErr))
		}
	}()

	l.timer = time.AfterFunc(timeout, func() {
		l.resolve(generation, "", domain.ErrCallbackTimeout)
	})

	return nil
}

// Poll reports the listener's current state without blocking.
func (l *Listener) Poll(_ context.Context) ports.ListenerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return ports.ListenerStatus{
		Phase:       l.phase,
		CallbackURL: l.callbackURL,
		Err:         l.err,
	}
}

// Cancel stops a running listener; a pending poll loop observes the stopped
// error on its next tick.
func (l *Listener) Cancel(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase == ports.ListenerRunning {
		l.phase = ports.ListenerError
		l.err = domain.ErrCallbackStopped
	}
	l.closeLocked()
	return nil
}

func (l *Listener) resolve(generation uint64, callbackURL string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if generation != l.generation || l.phase != ports.ListenerRunning {
		return
	}

	if err != nil {
		l.phase = ports.ListenerError
		l.err = err
	} else {
		l.phase = ports.ListenerReady
		l.callbackURL = callbackURL
	}
	l.closeLocked()
}

func (l *Listener) closeLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.tcpListener != nil {
		// Release the bind socket right away so a restart can rebind the
		// fixed port without racing the drain below.
		_ = l.tcpListener.Close()
		l.tcpListener = nil
	}
	if l.server != nil {
		server := l.server
		l.server = nil
		// Graceful shutdown off the lock so an in-flight callback response
		// can drain instead of being reset mid-write.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				_ = server.Close()
			}
		}()
	}
}

func hostPortSuffix(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	return ":" + port
}
