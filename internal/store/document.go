package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/botmesh/botmesh/internal/storage"
)

const (
	colCredentials = "credentials"
	colNumbers     = "numbers"
	colGroups      = "groups"
)

// knownIdentity is the persisted known-identity entry.
type knownIdentity struct {
	Identity string    `json:"identity"`
	AddedAt  time.Time `json:"addedAt"`
}

// DocumentStore implements Store on the file-backed document store.
type DocumentStore struct {
	docs *storage.Store
}

// NewDocumentStore creates a Store rooted at the given data directory.
func NewDocumentStore(dataDir string) *DocumentStore {
	return &DocumentStore{docs: storage.New(dataDir)}
}

func (s *DocumentStore) PutCredentials(ctx context.Context, identity string, creds, keys json.RawMessage) error {
	rec := CredentialRecord{
		Identity:  identity,
		Creds:     creds,
		Keys:      keys,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.docs.Put(ctx, colCredentials, identity, rec); err != nil {
		return fmt.Errorf("put credentials for %s: %w", identity, err)
	}
	return nil
}

func (s *DocumentStore) GetCredentials(ctx context.Context, identity string) (*CredentialRecord, error) {
	var rec CredentialRecord
	if err := s.docs.Get(ctx, colCredentials, identity, &rec); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get credentials for %s: %w", identity, err)
	}
	return &rec, nil
}

func (s *DocumentStore) AddKnownIdentity(ctx context.Context, identity string) error {
	if s.docs.Exists(ctx, colNumbers, identity) {
		return nil
	}
	entry := knownIdentity{Identity: identity, AddedAt: time.Now().UTC()}
	if err := s.docs.Put(ctx, colNumbers, identity, entry); err != nil {
		return fmt.Errorf("add known identity %s: %w", identity, err)
	}
	return nil
}

func (s *DocumentStore) ListKnownIdentities(ctx context.Context) ([]string, error) {
	return s.docs.Keys(ctx, colNumbers)
}

// MarkLogout removes the known-identity entry before the credential record.
// If the first removal fails the full record pair stays behind for a later
// retry; if the second fails the entry is restored so the pair is never
// split.
func (s *DocumentStore) MarkLogout(ctx context.Context, identity string) error {
	if err := s.docs.Delete(ctx, colNumbers, identity); err != nil {
		return fmt.Errorf("remove known identity %s: %w", identity, err)
	}
	if err := s.docs.Delete(ctx, colCredentials, identity); err != nil {
		restore := knownIdentity{Identity: identity, AddedAt: time.Now().UTC()}
		if rerr := s.docs.Put(ctx, colNumbers, identity, restore); rerr != nil {
			return fmt.Errorf("remove credentials for %s: %w (restore failed: %v)", identity, err, rerr)
		}
		return fmt.Errorf("remove credentials for %s: %w", identity, err)
	}
	return nil
}

func (s *DocumentStore) PutGroupSettings(ctx context.Context, settings *GroupSettings) error {
	if err := s.docs.Put(ctx, colGroups, settings.GroupID, settings); err != nil {
		return fmt.Errorf("put group settings for %s: %w", settings.GroupID, err)
	}
	return nil
}

func (s *DocumentStore) GetGroupSettings(ctx context.Context, groupID string) (*GroupSettings, error) {
	var settings GroupSettings
	if err := s.docs.Get(ctx, colGroups, groupID, &settings); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &GroupSettings{GroupID: groupID}, nil
		}
		return nil, fmt.Errorf("get group settings for %s: %w", groupID, err)
	}
	return &settings, nil
}

func (s *DocumentStore) Close() error { return nil }
