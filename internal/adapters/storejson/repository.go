// Package storejson persists the accounts store and the bootstrap state as
// JSON documents under the manager directory. Writes are atomic: encode to a
// temp file in the same directory, chmod, then rename over the target.
package storejson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"codex-account-manager/internal/domain"
	"codex-account-manager/internal/ports"
)

const (
	storeFileMode = 0o600
	storeDirMode  = 0o700

	storeTempPattern = ".accounts-*.json.tmp"
	stateTempPattern = ".state-*.json.tmp"
)

type Repository struct {
	storePath string
	statePath string
	clock     ports.Clock
	mu        *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var (
	_ ports.StoreRepository = (*Repository)(nil)
	_ ports.StateRepository = (*Repository)(nil)
)

func NewRepository(storePath, statePath string, clock ports.Clock) (*Repository, error) {
	if storePath == "" {
		return nil, errors.New("accounts store path is empty")
	}
	if statePath == "" {
		return nil, errors.New("bootstrap state path is empty")
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	storePath, err := normalizePath(storePath)
	if err != nil {
		return nil, err
	}
	statePath, err = normalizePath(statePath)
	if err != nil {
		return nil, err
	}

	return &Repository{
		storePath: storePath,
		statePath: statePath,
		clock:     clock,
		mu:        lockForPath(storePath),
	}, nil
}

func (r *Repository) Path() string {
	return r.storePath
}

// Load reads the accounts store, tolerating a missing file and sanitizing
// whatever it finds. A corrupt document is an error rather than an empty
// store so a bad read can never wipe the collection on the next save.
func (r *Repository) Load(ctx context.Context) (domain.AccountsStore, error) {
	if err := ctx.Err(); err != nil {
		return domain.AccountsStore{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.storePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.AccountsStore{}, nil
		}
		return domain.AccountsStore{}, fmt.Errorf("read accounts store: %w", err)
	}

	var schema storeSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return domain.AccountsStore{}, fmt.Errorf("decode accounts store: %w", err)
	}

	return fromStoreSchema(schema, r.clock.Now().Unix()), nil
}

func (r *Repository) Save(ctx context.Context, store domain.AccountsStore) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	store.Normalize()

	data, err := json.MarshalIndent(toStoreSchema(store), "", "  ")
	if err != nil {
		return fmt.Errorf("encode accounts store: %w", err)
	}

	if err := writeFileAtomic(r.storePath, storeTempPattern, data); err != nil {
		return fmt.Errorf("save accounts store: %w", err)
	}

	return nil
}

// LoadState reads the bootstrap state, falling back to defaults field by
// field when the file is missing or a value is out of range.
func (r *Repository) LoadState(ctx context.Context) (domain.BootstrapState, error) {
	if err := ctx.Err(); err != nil {
		return domain.BootstrapState{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock.Now().Unix()

	data, err := os.ReadFile(r.statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.DefaultBootstrapState(), nil
		}
		return domain.BootstrapState{}, fmt.Errorf("read bootstrap state: %w", err)
	}

	var schema stateSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return domain.BootstrapState{}, fmt.Errorf("decode bootstrap state: %w", err)
	}

	return fromStateSchema(schema, now), nil
}

func (r *Repository) SaveState(ctx context.Context, state domain.BootstrapState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state.SavedAt = r.clock.Now().Unix()

	data, err := json.MarshalIndent(toStateSchema(state), "", "  ")
	if err != nil {
		return fmt.Errorf("encode bootstrap state: %w", err)
	}

	if err := writeFileAtomic(r.statePath, stateTempPattern, data); err != nil {
		return fmt.Errorf("save bootstrap state: %w", err)
	}

	return nil
}

func writeFileAtomic(path, tempPattern string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, storeDirMode); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tempFile.Chmod(storeFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}

	cleanup = false

	if err := os.Chmod(path, storeFileMode); err != nil {
		return fmt.Errorf("chmod file: %w", err)
	}

	return nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
