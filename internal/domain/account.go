package domain

import "encoding/json"

type AccountID string

// Bucket is the lifecycle state of a managed account. The persisted format
// keeps the historical archived/frozen boolean pair; the two representations
// are translated at the serialization edge.
type Bucket string

const (
	BucketActive   Bucket = "active"
	BucketDepleted Bucket = "depleted"
	BucketFrozen   Bucket = "frozen"
)

func (b Bucket) Valid() bool {
	switch b {
	case BucketActive, BucketDepleted, BucketFrozen:
		return true
	default:
		return false
	}
}

// BucketFromFlags maps the persisted archived/frozen pair to a Bucket.
// Frozen takes precedence over archived.
func BucketFromFlags(archived, frozen bool) Bucket {
	if frozen {
		return BucketFrozen
	}
	if archived {
		return BucketDepleted
	}
	return BucketActive
}

func (b Bucket) Flags() (archived, frozen bool) {
	return b == BucketDepleted, b == BucketFrozen
}

// ManagedAccount is one credential set under management. Auth is the opaque
// credential payload in the Codex CLI auth.json format; this record is its
// exclusive owner.
type ManagedAccount struct {
	ID               AccountID
	Label            string
	ChatGPTAccountID string
	Email            string
	Bucket           Bucket
	Auth             json.RawMessage
	CreatedAt        int64
	UpdatedAt        int64
	LastUsedAt       int64
}

// AccountsStore is the full persisted collection. Slice order is significant:
// it defines per-bucket display order.
type AccountsStore struct {
	ActiveAccountID AccountID
	Accounts        []ManagedAccount
}

func (s *AccountsStore) IndexOf(id AccountID) int {
	for i := range s.Accounts {
		if s.Accounts[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *AccountsStore) Account(id AccountID) *ManagedAccount {
	if i := s.IndexOf(id); i >= 0 {
		return &s.Accounts[i]
	}
	return nil
}

// BucketMembers returns the ids of accounts in the given bucket, in store order.
func (s *AccountsStore) BucketMembers(bucket Bucket) []AccountID {
	members := make([]AccountID, 0, len(s.Accounts))
	for i := range s.Accounts {
		if s.Accounts[i].Bucket == bucket {
			members = append(members, s.Accounts[i].ID)
		}
	}
	return members
}

// Normalize nulls an ActiveAccountID that does not reference an existing
// account in the active bucket.
func (s *AccountsStore) Normalize() {
	if s.ActiveAccountID == "" {
		return
	}
	account := s.Account(s.ActiveAccountID)
	if account == nil || account.Bucket != BucketActive {
		s.ActiveAccountID = ""
	}
}
