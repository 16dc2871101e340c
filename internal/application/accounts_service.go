package application

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"codex-account-manager/internal/adapters/authblob"
	"codex-account-manager/internal/domain"
	"codex-account-manager/internal/ports"
)

// AccountService owns every mutation of the accounts store. Mutations are
// full read-modify-write cycles under one mutex, so concurrent commands
// cannot interleave partial store states.
type AccountService struct {
	repo     ports.StoreRepository
	credFile ports.CredentialFile
	clock    ports.Clock
	logger   zerolog.Logger
	newID    func() string

	mu sync.Mutex
}

func NewAccountService(repo ports.StoreRepository, credFile ports.CredentialFile, clock ports.Clock, logger zerolog.Logger) *AccountService {
	return &AccountService{
		repo:     repo,
		credFile: credFile,
		clock:    clock,
		logger:   logger.With().Str("component", "accounts").Logger(),
		newID:    uuid.NewString,
	}
}

// GetAccounts builds the reconciled view. When the on-disk credential
// identifies a managed active-bucket account other than the recorded active
// one, the store is realigned to disk and persisted.
func (s *AccountService) GetAccounts(ctx context.Context) (AccountsView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.repo.Load(ctx)
	if err != nil {
		return AccountsView{}, err
	}

	return s.reconcileLocked(ctx, store)
}

// ImportCurrentAccount adopts the credential currently on disk as a managed
// account and makes it active.
func (s *AccountService) ImportCurrentAccount(ctx context.Context, label string) (LoginResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := s.credFile.Read(ctx)
	if err != nil {
		return LoginResult{}, err
	}
	if blob == nil {
		return LoginResult{}, fmt.Errorf("no credential file at %s", s.credFile.Path())
	}
	if err := authblob.Validate(blob); err != nil {
		return LoginResult{}, err
	}

	store, err := s.repo.Load(ctx)
	if err != nil {
		return LoginResult{}, err
	}

	id := s.upsert(&store, blob, label, true)
	if err := s.repo.Save(ctx, store); err != nil {
		return LoginResult{}, err
	}

	s.logger.Info().Str("account_id", string(id)).Msg("imported on-disk credential")

	view, err := s.viewLocked(ctx, store)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{View: view, Message: "Current account imported."}, nil
}

// AdoptCredential stores a freshly obtained credential blob as the active
// managed account and writes it to the credential file. Used by the login
// flows after validation.
func (s *AccountService) AdoptCredential(ctx context.Context, blob json.RawMessage, label string) (AccountsView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := authblob.Validate(blob); err != nil {
		return AccountsView{}, err
	}

	store, err := s.repo.Load(ctx)
	if err != nil {
		return AccountsView{}, err
	}

	if err := s.credFile.Write(ctx, blob); err != nil {
		return AccountsView{}, err
	}

	id := s.upsert(&store, blob, label, true)
	if err := s.repo.Save(ctx, store); err != nil {
		return AccountsView{}, err
	}

	s.logger.Info().Str("account_id", string(id)).Msg("adopted new credential")

	return s.viewLocked(ctx, store)
}

// SwitchAccount makes the given active-bucket account current, writing its
// credential to disk.
func (s *AccountService) SwitchAccount(ctx context.Context, id domain.AccountID) (AccountsView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.repo.Load(ctx)
	if err != nil {
		return AccountsView{}, err
	}

	account := store.Account(id)
	if account == nil {
		return AccountsView{}, domain.ErrAccountNotFound
	}
	if account.Bucket != domain.BucketActive {
		return AccountsView{}, domain.ErrCannotSwitchInactive
	}

	if err := s.credFile.Write(ctx, account.Auth); err != nil {
		return AccountsView{}, err
	}

	now := s.clock.Now().Unix()
	account.LastUsedAt = now
	account.UpdatedAt = now
	store.ActiveAccountID = id

	if err := s.repo.Save(ctx, store); err != nil {
		return AccountsView{}, err
	}

	s.logger.Info().Str("account_id", string(id)).Msg("switched active account")

	return s.viewLocked(ctx, store)
}

// MoveAccount relocates an account to a position within a bucket. The index
// is bucket-relative and clamped; accounts in other buckets keep their
// relative order. Moving the current active account out of the active bucket
// falls back to the first remaining active-bucket account, unless
// switchAwayFromMoved is explicitly false, in which case the active
// reference is cleared instead.
func (s *AccountService) MoveAccount(ctx context.Context, id domain.AccountID, bucket domain.Bucket, index int, switchAwayFromMoved *bool) (AccountsView, error) {
	if !bucket.Valid() {
		return AccountsView{}, fmt.Errorf("invalid bucket %q", bucket)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.repo.Load(ctx)
	if err != nil {
		return AccountsView{}, err
	}

	position := store.IndexOf(id)
	if position < 0 {
		return AccountsView{}, domain.ErrAccountNotFound
	}

	now := s.clock.Now().Unix()
	moved := store.Accounts[position]
	leavingActive := store.ActiveAccountID == id && moved.Bucket == domain.BucketActive && bucket != domain.BucketActive

	moved.Bucket = bucket
	moved.UpdatedAt = now
	store.Accounts = append(store.Accounts[:position], store.Accounts[position+1:]...)
	insertIntoBucket(&store, moved, index)

	if leavingActive {
		if switchAwayFromMoved != nil && !*switchAwayFromMoved {
			store.ActiveAccountID = ""
		} else if err := s.fallbackActivate(ctx, &store, now); err != nil {
			return AccountsView{}, err
		}
	}

	if err := s.repo.Save(ctx, store); err != nil {
		return AccountsView{}, err
	}

	s.logger.Debug().
		Str("account_id", string(id)).
		Str("bucket", string(bucket)).
		Int("index", index).
		Msg("moved account")

	return s.viewLocked(ctx, store)
}

// ArchiveAccount moves an account to the end of the depleted bucket.
func (s *AccountService) ArchiveAccount(ctx context.Context, id domain.AccountID, switchAwayFromMoved *bool) (AccountsView, error) {
	return s.MoveAccount(ctx, id, domain.BucketDepleted, int(^uint(0)>>1), switchAwayFromMoved)
}

// UnarchiveAccount moves an account to the end of the active bucket.
func (s *AccountService) UnarchiveAccount(ctx context.Context, id domain.AccountID) (AccountsView, error) {
	return s.MoveAccount(ctx, id, domain.BucketActive, int(^uint(0)>>1), nil)
}

// RemoveAccount deletes an account. Removing the active account always runs
// fallback activation.
func (s *AccountService) RemoveAccount(ctx context.Context, id domain.AccountID) (AccountsView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.repo.Load(ctx)
	if err != nil {
		return AccountsView{}, err
	}

	position := store.IndexOf(id)
	if position < 0 {
		return AccountsView{}, domain.ErrAccountNotFound
	}

	wasActive := store.ActiveAccountID == id
	store.Accounts = append(store.Accounts[:position], store.Accounts[position+1:]...)

	if wasActive {
		if err := s.fallbackActivate(ctx, &store, s.clock.Now().Unix()); err != nil {
			return AccountsView{}, err
		}
	}

	if err := s.repo.Save(ctx, store); err != nil {
		return AccountsView{}, err
	}

	s.logger.Info().Str("account_id", string(id)).Msg("removed account")

	return s.viewLocked(ctx, store)
}

// SetAccountLabel renames an account; an empty label clears it.
func (s *AccountService) SetAccountLabel(ctx context.Context, id domain.AccountID, label string) (AccountsView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.repo.Load(ctx)
	if err != nil {
		return AccountsView{}, err
	}

	account := store.Account(id)
	if account == nil {
		return AccountsView{}, domain.ErrAccountNotFound
	}

	account.Label = label
	account.UpdatedAt = s.clock.Now().Unix()

	if err := s.repo.Save(ctx, store); err != nil {
		return AccountsView{}, err
	}

	return s.viewLocked(ctx, store)
}

// Account returns a copy of one managed record.
func (s *AccountService) Account(ctx context.Context, id domain.AccountID) (domain.ManagedAccount, error) {
	store, err := s.repo.Load(ctx)
	if err != nil {
		return domain.ManagedAccount{}, err
	}

	account := store.Account(id)
	if account == nil {
		return domain.ManagedAccount{}, domain.ErrAccountNotFound
	}
	return *account, nil
}

// Store returns the current store snapshot. Read-only callers such as the
// policy loop use this; mutations go through the operation methods.
func (s *AccountService) Store(ctx context.Context) (domain.AccountsStore, error) {
	return s.repo.Load(ctx)
}

// upsert merges a credential into the store: an existing account matching the
// blob's ChatGPT account id or email (first match in store order) is
// refreshed in place and forced into the active bucket; otherwise a new
// record is appended. Returns the account id.
func (s *AccountService) upsert(store *domain.AccountsStore, blob json.RawMessage, label string, setActive bool) domain.AccountID {
	accountID := authblob.AccountID(blob)
	email := authblob.Email(blob)
	now := s.clock.Now().Unix()

	match := -1
	for i := range store.Accounts {
		if accountID != "" && store.Accounts[i].ChatGPTAccountID == accountID {
			match = i
			break
		}
		if email != "" && store.Accounts[i].Email == email {
			match = i
			break
		}
	}

	var id domain.AccountID
	if match >= 0 {
		account := &store.Accounts[match]
		account.ChatGPTAccountID = accountID
		account.Email = email
		account.Auth = blob
		account.Bucket = domain.BucketActive
		account.UpdatedAt = now
		if label != "" {
			account.Label = label
		}
		id = account.ID
	} else {
		id = domain.AccountID(s.newID())
		store.Accounts = append(store.Accounts, domain.ManagedAccount{
			ID:               id,
			Label:            label,
			ChatGPTAccountID: accountID,
			Email:            email,
			Bucket:           domain.BucketActive,
			Auth:             blob,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	if setActive {
		store.ActiveAccountID = id
		if account := store.Account(id); account != nil {
			account.LastUsedAt = now
		}
	}

	return id
}

// fallbackActivate promotes the first active-bucket account, writing its
// credential to disk, or clears the active reference when none remains.
func (s *AccountService) fallbackActivate(ctx context.Context, store *domain.AccountsStore, now int64) error {
	for i := range store.Accounts {
		if store.Accounts[i].Bucket != domain.BucketActive {
			continue
		}

		account := &store.Accounts[i]
		if err := s.credFile.Write(ctx, account.Auth); err != nil {
			return fmt.Errorf("activate fallback account: %w", err)
		}
		account.LastUsedAt = now
		account.UpdatedAt = now
		store.ActiveAccountID = account.ID
		s.logger.Info().Str("account_id", string(account.ID)).Msg("fell back to next active account")
		return nil
	}

	store.ActiveAccountID = ""
	return nil
}

// reconcileLocked aligns the store's active reference with the on-disk
// credential identity and persists when that changed anything.
func (s *AccountService) reconcileLocked(ctx context.Context, store domain.AccountsStore) (AccountsView, error) {
	blob, err := s.credFile.Read(ctx)
	if err != nil {
		return AccountsView{}, err
	}

	diskMatch := matchDiskIdentity(&store, blob)
	if diskMatch != "" && diskMatch != store.ActiveAccountID {
		store.ActiveAccountID = diskMatch
		if err := s.repo.Save(ctx, store); err != nil {
			return AccountsView{}, err
		}
		s.logger.Debug().Str("account_id", string(diskMatch)).Msg("realigned active account to disk credential")
	}

	return s.buildView(store, blob != nil, diskMatch), nil
}

func (s *AccountService) viewLocked(ctx context.Context, store domain.AccountsStore) (AccountsView, error) {
	blob, err := s.credFile.Read(ctx)
	if err != nil {
		return AccountsView{}, err
	}
	return s.buildView(store, blob != nil, matchDiskIdentity(&store, blob)), nil
}

func (s *AccountService) buildView(store domain.AccountsStore, authExists bool, diskMatch domain.AccountID) AccountsView {
	return AccountsView{
		Accounts:            summarize(store),
		ActiveAccountID:     string(store.ActiveAccountID),
		ActiveDiskAccountID: string(diskMatch),
		CodexAuthExists:     authExists,
		CodexAuthPath:       s.credFile.Path(),
		StorePath:           s.repo.Path(),
	}
}

// matchDiskIdentity finds the active-bucket account the on-disk credential
// belongs to: ChatGPT account id first, then email.
func matchDiskIdentity(store *domain.AccountsStore, blob json.RawMessage) domain.AccountID {
	if blob == nil {
		return ""
	}

	diskAccountID := authblob.AccountID(blob)
	if diskAccountID != "" {
		for i := range store.Accounts {
			if store.Accounts[i].Bucket == domain.BucketActive && store.Accounts[i].ChatGPTAccountID == diskAccountID {
				return store.Accounts[i].ID
			}
		}
	}

	diskEmail := authblob.Email(blob)
	if diskEmail != "" {
		for i := range store.Accounts {
			if store.Accounts[i].Bucket == domain.BucketActive && store.Accounts[i].Email == diskEmail {
				return store.Accounts[i].ID
			}
		}
	}

	return ""
}

// insertIntoBucket places the account at the bucket-relative index, anchoring
// on the existing bucket members' positions in the full slice.
func insertIntoBucket(store *domain.AccountsStore, account domain.ManagedAccount, index int) {
	memberPositions := make([]int, 0, len(store.Accounts))
	for i := range store.Accounts {
		if store.Accounts[i].Bucket == account.Bucket {
			memberPositions = append(memberPositions, i)
		}
	}

	if index < 0 {
		index = 0
	}

	var insertAt int
	switch {
	case len(memberPositions) == 0:
		insertAt = len(store.Accounts)
	case index >= len(memberPositions):
		insertAt = memberPositions[len(memberPositions)-1] + 1
	default:
		insertAt = memberPositions[index]
	}

	store.Accounts = append(store.Accounts, domain.ManagedAccount{})
	copy(store.Accounts[insertAt+1:], store.Accounts[insertAt:])
	store.Accounts[insertAt] = account
}
