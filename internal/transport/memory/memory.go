// Package memory provides an in-process Transport implementation. It backs
// the test suites and the development mode of the server binary; it speaks
// no real protocol.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/botmesh/botmesh/internal/transport"
)

// Transport is an in-memory transport. Behavior knobs are plain fields;
// set them before driving connections through the engine.
type Transport struct {
	mu    sync.Mutex
	conns map[string][]*Conn

	// ConnectErr, when set, fails every Connect call.
	ConnectErr error
	// PairingErr, when set, fails every pairing-code request.
	PairingErr error
	// PairingCode is returned by successful pairing-code requests.
	PairingCode string
	// AutoOpen emits ConnectionOpened right after a registered Connect.
	AutoOpen bool
}

// New creates an empty in-memory transport.
func New() *Transport {
	return &Transport{conns: make(map[string][]*Conn), PairingCode: "ABCD-1234"}
}

// Connect implements transport.Transport. The connection is registered when
// restored credentials are supplied.
func (t *Transport) Connect(ctx context.Context, identity string, restored *transport.Credentials) (transport.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ConnectErr != nil {
		return nil, t.ConnectErr
	}

	c := &Conn{
		transport:  t,
		identity:   identity,
		registered: restored != nil,
		events:     make(chan transport.Event, 64),
		groups:     make(map[string]*transport.GroupMetadata),
	}
	t.conns[identity] = append(t.conns[identity], c)

	if t.AutoOpen && c.registered {
		c.events <- transport.ConnectionOpened{SelfID: transport.UserAddress(identity)}
	}
	return c, nil
}

// Conns returns every connection ever opened for the identity.
func (t *Transport) Conns(identity string) []*Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Conn(nil), t.conns[identity]...)
}

// LastConn returns the most recent connection for the identity, or nil.
func (t *Transport) LastConn(identity string) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	cs := t.conns[identity]
	if len(cs) == 0 {
		return nil
	}
	return cs[len(cs)-1]
}

// SentMessage records one outbound send.
type SentMessage struct {
	ConversationID string
	Content        transport.Content
	Options        *transport.SendOptions
}

// Conn is one in-memory connection.
type Conn struct {
	transport *Transport
	identity  string
	events    chan transport.Event

	mu           sync.Mutex
	registered   bool
	selfID       string
	closed       bool
	sent         []SentMessage
	read         []transport.MessageKey
	pairingCalls int
	groups       map[string]*transport.GroupMetadata
	groupOps     []string
}

// Emit delivers an event to the connection's consumer. Emitting a
// ConnectionClosed event also closes the stream, matching the contract.
func (c *Conn) Emit(ev transport.Event) {
	if opened, ok := ev.(transport.ConnectionOpened); ok {
		c.mu.Lock()
		c.selfID = opened.SelfID
		c.mu.Unlock()
	}
	c.events <- ev
	if _, ok := ev.(transport.ConnectionClosed); ok {
		close(c.events)
	}
}

// EndStream closes the event channel without a ConnectionClosed event,
// simulating a transport that died silently.
func (c *Conn) EndStream() {
	close(c.events)
}

func (c *Conn) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

func (c *Conn) RequestPairingCode(ctx context.Context, identity string) (string, error) {
	c.mu.Lock()
	c.pairingCalls++
	c.mu.Unlock()
	if c.transport.PairingErr != nil {
		return "", c.transport.PairingErr
	}
	return c.transport.PairingCode, nil
}

// PairingCalls returns how many pairing-code requests this connection saw.
func (c *Conn) PairingCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairingCalls
}

func (c *Conn) Events() <-chan transport.Event {
	return c.events
}

func (c *Conn) SendMessage(ctx context.Context, conversationID string, content transport.Content, opts *transport.SendOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrConnClosed
	}
	c.sent = append(c.sent, SentMessage{ConversationID: conversationID, Content: content, Options: opts})
	return nil
}

// Sent returns every message sent through this connection.
func (c *Conn) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentMessage(nil), c.sent...)
}

func (c *Conn) ReadMessages(ctx context.Context, keys []transport.MessageKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.read = append(c.read, keys...)
	return nil
}

// ReadKeys returns every message key marked read.
func (c *Conn) ReadKeys() []transport.MessageKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.MessageKey(nil), c.read...)
}

// SetGroupMetadata seeds metadata returned by GroupMetadata.
func (c *Conn) SetGroupMetadata(meta *transport.GroupMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[meta.ID] = meta
}

func (c *Conn) GroupMetadata(ctx context.Context, conversationID string) (*transport.GroupMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, ok := c.groups[conversationID]
	if !ok {
		return nil, fmt.Errorf("memory: no metadata for %s", conversationID)
	}
	return meta, nil
}

func (c *Conn) GroupParticipantsUpdate(ctx context.Context, groupID string, participants []string, action transport.ParticipantAction) error {
	c.recordGroupOp(fmt.Sprintf("participants:%s:%s", groupID, action))
	return nil
}

func (c *Conn) GroupSettingUpdate(ctx context.Context, groupID string, setting transport.GroupSetting) error {
	c.recordGroupOp(fmt.Sprintf("setting:%s:%s", groupID, setting))
	return nil
}

func (c *Conn) GroupInviteCode(ctx context.Context, groupID string) (string, error) {
	c.recordGroupOp("invite:" + groupID)
	return "INVITECODE", nil
}

func (c *Conn) GroupRevokeInvite(ctx context.Context, groupID string) error {
	c.recordGroupOp("revoke:" + groupID)
	return nil
}

func (c *Conn) recordGroupOp(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groupOps = append(c.groupOps, op)
}

// GroupOps returns the group operations issued on this connection.
func (c *Conn) GroupOps() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.groupOps...)
}

func (c *Conn) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
