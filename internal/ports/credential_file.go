package ports

import (
	"context"
	"encoding/json"
)

// CredentialFile is the single credential blob the external Codex CLI reads.
// Read returns nil without error when the file does not exist.
type CredentialFile interface {
	Read(ctx context.Context) (json.RawMessage, error)
	Write(ctx context.Context, blob json.RawMessage) error
	Path() string
}
