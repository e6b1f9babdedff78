// Package transport defines the messaging-protocol capability the engine
// drives. Concrete protocol implementations live outside this repository;
// the engine only depends on the interfaces and event types declared here.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrConnClosed is returned by operations on a closed connection.
	ErrConnClosed = errors.New("transport: connection closed")
)

// Credentials is the opaque credential material owned by the protocol.
// The engine persists and restores it but never inspects it.
type Credentials struct {
	Creds json.RawMessage `json:"creds"`
	Keys  json.RawMessage `json:"keys,omitempty"`
}

// Transport opens protocol connections for identities.
type Transport interface {
	// Connect establishes a connection for the identity, resuming from
	// restored credentials when provided. The returned Conn delivers
	// lifecycle and message events on its Events channel; the connection
	// is not usable for sending until a ConnectionOpened event arrives.
	Connect(ctx context.Context, identity string, restored *Credentials) (Conn, error)
}

// Conn is a single protocol connection.
type Conn interface {
	// Registered reports whether the connection carries credentials that
	// have completed pairing. An unregistered connection needs a pairing
	// code before it can open.
	Registered() bool

	// RequestPairingCode asks the protocol endpoint for a one-time pairing
	// code. The endpoint rate-limits this call aggressively.
	RequestPairingCode(ctx context.Context, identity string) (string, error)

	// Events returns the connection's event stream. The channel is closed
	// when the connection terminates; a ConnectionClosed event is emitted
	// first when the cause is known.
	Events() <-chan Event

	SendMessage(ctx context.Context, conversationID string, content Content, opts *SendOptions) error
	ReadMessages(ctx context.Context, keys []MessageKey) error

	GroupMetadata(ctx context.Context, conversationID string) (*GroupMetadata, error)
	GroupParticipantsUpdate(ctx context.Context, groupID string, participants []string, action ParticipantAction) error
	GroupSettingUpdate(ctx context.Context, groupID string, setting GroupSetting) error
	GroupInviteCode(ctx context.Context, groupID string) (string, error)
	GroupRevokeInvite(ctx context.Context, groupID string) error

	// SelfID returns the connection's own address once open.
	SelfID() string

	Close() error
}

// ParticipantAction is a group membership operation.
type ParticipantAction string

const (
	ParticipantAdd     ParticipantAction = "add"
	ParticipantRemove  ParticipantAction = "remove"
	ParticipantPromote ParticipantAction = "promote"
	ParticipantDemote  ParticipantAction = "demote"
)

// GroupSetting is a group-wide switch.
type GroupSetting string

const (
	SettingAnnouncement    GroupSetting = "announcement"
	SettingNotAnnouncement GroupSetting = "not_announcement"
)

// GroupParticipant is one member of a group with its admin flag.
type GroupParticipant struct {
	ID    string `json:"id"`
	Admin bool   `json:"admin"`
}

// GroupMetadata describes a group conversation.
type GroupMetadata struct {
	ID           string             `json:"id"`
	Subject      string             `json:"subject"`
	Description  string             `json:"description,omitempty"`
	Participants []GroupParticipant `json:"participants"`
	Created      time.Time          `json:"created"`
}

// IsAdmin reports whether the given address is an admin of the group.
func (g *GroupMetadata) IsAdmin(id string) bool {
	for _, p := range g.Participants {
		if p.ID == id && p.Admin {
			return true
		}
	}
	return false
}

// ParticipantIDs returns the addresses of all members.
func (g *GroupMetadata) ParticipantIDs() []string {
	ids := make([]string, 0, len(g.Participants))
	for _, p := range g.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}
