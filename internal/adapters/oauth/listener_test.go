package oauth

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codex-account-manager/internal/domain"
	"codex-account-manager/internal/ports"
)

// freeAddr reserves a loopback port and releases it for the listener to bind.
func freeAddr(t *testing.T) string {
	t.Helper()

	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	require.NoError(t, probe.Close())
	return addr
}

func waitForPhase(t *testing.T, listener *Listener, want ports.ListenerPhase) ports.ListenerStatus {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		status := listener.Poll(context.Background())
		if status.Phase == want {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("listener never reached phase %s", want)
	return ports.ListenerStatus{}
}

func TestListenerCapturesCallback(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	listener := NewListener(addr)

	require.NoError(t, listener.Start(context.Background(), time.Minute))
	t.Cleanup(func() { _ = listener.Cancel(context.Background()) })

	status := listener.Poll(context.Background())
	assert.Equal(t, ports.ListenerRunning, status.Phase)

	response, err := http.Get(fmt.Sprintf("http://%s%s?code=abc&state=xyz", addr, CallbackPath))
	require.NoError(t, err)
	body, err := io.ReadAll(response.Body)
	_ = response.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	// The browser gets the completion page; resolving must not reset the
	// in-flight connection.
	assert.Contains(t, string(body), "Login completed")

	ready := waitForPhase(t, listener, ports.ListenerReady)
	assert.Contains(t, ready.CallbackURL, "code=abc")
	assert.Contains(t, ready.CallbackURL, "state=xyz")
	assert.Contains(t, ready.CallbackURL, CallbackPath)
}

func TestListenerCancelResolvesStopped(t *testing.T) {
	t.Parallel()

	listener := NewListener(freeAddr(t))
	require.NoError(t, listener.Start(context.Background(), time.Minute))

	require.NoError(t, listener.Cancel(context.Background()))

	status := listener.Poll(context.Background())
	assert.Equal(t, ports.ListenerError, status.Phase)
	assert.ErrorIs(t, status.Err, domain.ErrCallbackStopped)
}

func TestListenerTimeout(t *testing.T) {
	t.Parallel()

	listener := NewListener(freeAddr(t))
	require.NoError(t, listener.Start(context.Background(), 30*time.Millisecond))
	t.Cleanup(func() { _ = listener.Cancel(context.Background()) })

	status := waitForPhase(t, listener, ports.ListenerError)
	assert.ErrorIs(t, status.Err, domain.ErrCallbackTimeout)
}

func TestListenerAddressInUse(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	occupant, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = occupant.Close() })

	listener := NewListener(addr)
	err = listener.Start(context.Background(), time.Minute)
	require.ErrorIs(t, err, domain.ErrCallbackAddressInUse)

	status := listener.Poll(context.Background())
	assert.Equal(t, ports.ListenerError, status.Phase)
}

func TestListenerRestartIgnoresStaleResolution(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	listener := NewListener(addr)

	require.NoError(t, listener.Start(context.Background(), time.Minute))
	require.NoError(t, listener.Cancel(context.Background()))

	// A fresh start must not inherit the cancelled state.
	require.NoError(t, listener.Start(context.Background(), time.Minute))
	t.Cleanup(func() { _ = listener.Cancel(context.Background()) })

	status := listener.Poll(context.Background())
	assert.Equal(t, ports.ListenerRunning, status.Phase)
	assert.NoError(t, status.Err)

	response, err := http.Get(fmt.Sprintf("http://%s%s?code=second&state=xyz", addr, CallbackPath))
	require.NoError(t, err)
	_ = response.Body.Close()

	ready := waitForPhase(t, listener, ports.ListenerReady)
	assert.Contains(t, ready.CallbackURL, "code=second")
}

func TestListenerRedirectURI(t *testing.T) {
	t.Parallel()

	listener := NewListener("127.0.0.1:1455")
	assert.Equal(t, "http://localhost:1455/auth/callback", listener.RedirectURI())
}
