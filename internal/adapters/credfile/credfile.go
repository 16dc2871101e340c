// Package credfile reads and writes the Codex CLI credential file
// (~/.codex/auth.json). The blob is treated as opaque JSON; interpretation
// lives in the authblob package.
package credfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"codex-account-manager/internal/ports"
)

const (
	authFileMode = 0o600
	authDirMode  = 0o700

	tempPattern = ".auth-*.json.tmp"
)

type File struct {
	path string
	mu   sync.Mutex
}

var _ ports.CredentialFile = (*File)(nil)

func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("credential file path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve credential file path: %w", err)
	}

	return &File{path: filepath.Clean(absPath)}, nil
}

// DefaultPath is the Codex CLI credential location under the user's home
// directory, overridable through CODEX_HOME.
func DefaultPath() (string, error) {
	if codexHome := os.Getenv("CODEX_HOME"); codexHome != "" {
		return filepath.Join(codexHome, "auth.json"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(homeDir, ".codex", "auth.json"), nil
}

func (f *File) Path() string {
	return f.path
}

// Read returns the raw credential blob, or (nil, nil) when no file exists.
func (f *File) Read(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("credential file %s is not valid JSON", f.path)
	}

	return json.RawMessage(trimmed), nil
}

// Write replaces the credential file atomically, re-indenting the blob so the
// on-disk file stays human-readable.
func (f *File) Write(ctx context.Context, blob json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(blob) == 0 {
		return errors.New("credential blob is empty")
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, blob, "", "  "); err != nil {
		return fmt.Errorf("credential blob is not valid JSON: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, authDirMode); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(indented.Bytes()); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp credential file: %w", err)
	}

	if err := tempFile.Chmod(authFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp credential file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp credential file: %w", err)
	}

	if err := os.Rename(tempName, f.path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}

	cleanup = false

	if err := os.Chmod(f.path, authFileMode); err != nil {
		return fmt.Errorf("chmod credential file: %w", err)
	}

	return nil
}
