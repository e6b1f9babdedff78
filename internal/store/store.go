// Package store persists per-identity credentials, the known-identity set,
// and per-group settings. Persistence is best-effort for live sessions: a
// failed write is logged by the caller and never tears down connectivity.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// CredentialRecord is the persisted credential material for one identity.
// The blobs are opaque; only the transport understands them.
type CredentialRecord struct {
	Identity  string          `json:"identity"`
	Creds     json.RawMessage `json:"creds"`
	Keys      json.RawMessage `json:"keys,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// GroupSettings holds the per-group feature switches. Both flags default to
// off until a group admin sets them.
type GroupSettings struct {
	GroupID  string `json:"groupId"`
	Welcome  bool   `json:"welcome"`
	AntiLink bool   `json:"antiLink"`
}

// Store is the persistence contract of the engine.
type Store interface {
	// PutCredentials upserts the credential record for the identity.
	PutCredentials(ctx context.Context, identity string, creds, keys json.RawMessage) error
	// GetCredentials returns the latest record, or ErrNotFound.
	GetCredentials(ctx context.Context, identity string) (*CredentialRecord, error)

	// AddKnownIdentity records an identity that paired successfully.
	// Adding the same identity again is a no-op.
	AddKnownIdentity(ctx context.Context, identity string) error
	// ListKnownIdentities returns every identity that ever paired.
	ListKnownIdentities(ctx context.Context) ([]string, error)

	// MarkLogout removes the credential record and the known-identity
	// entry together. On failure neither removal may stick alone in a way
	// that leaves the identity known but credential-less.
	MarkLogout(ctx context.Context, identity string) error

	// PutGroupSettings upserts the settings for a group.
	PutGroupSettings(ctx context.Context, settings *GroupSettings) error
	// GetGroupSettings returns the settings for a group; a group that was
	// never configured yields default settings, not an error.
	GetGroupSettings(ctx context.Context, groupID string) (*GroupSettings, error)

	Close() error
}
