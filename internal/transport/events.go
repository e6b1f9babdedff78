package transport

// Event is a lifecycle or message event emitted by a Conn. Events for one
// connection are delivered in the order the protocol produced them.
type Event interface {
	isEvent()
}

// CredentialsUpdated signals a credential rotation. The engine must persist
// the new material before processing further events for this connection.
type CredentialsUpdated struct {
	Credentials Credentials
}

// ConnectionOpened signals that the handshake completed and the connection
// is ready for sending.
type ConnectionOpened struct {
	SelfID string
}

// ConnectionClosed signals that the connection terminated. Code carries the
// protocol status when one was reported; HasCode is false for an unexpected
// drop with no status.
type ConnectionClosed struct {
	Code    int
	HasCode bool
}

// StatusLoggedOut is the protocol status meaning the credentials were
// revoked. A close with this code is unrecoverable.
const StatusLoggedOut = 401

// LoggedOut reports whether the close is a credential revocation.
func (c ConnectionClosed) LoggedOut() bool {
	return c.HasCode && c.Code == StatusLoggedOut
}

// MessageReceived carries one inbound message.
type MessageReceived struct {
	Message *Message
}

// GroupParticipantsChanged signals members joining or leaving a group.
type GroupParticipantsChanged struct {
	GroupID      string
	Action       ParticipantAction
	Participants []string
}

func (CredentialsUpdated) isEvent()       {}
func (ConnectionOpened) isEvent()         {}
func (ConnectionClosed) isEvent()         {}
func (MessageReceived) isEvent()          {}
func (GroupParticipantsChanged) isEvent() {}
