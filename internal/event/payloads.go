package event

import "time"

// SessionPayload accompanies SessionOpened, SessionClosed and
// SessionCleaned events.
type SessionPayload struct {
	Identity   string    `json:"identity"`
	SelfID     string    `json:"selfId,omitempty"`
	StatusCode int       `json:"statusCode,omitempty"`
	At         time.Time `json:"at"`
}

// CredentialPayload accompanies CredentialSaved events.
type CredentialPayload struct {
	Identity string    `json:"identity"`
	At       time.Time `json:"at"`
}

// ReconnectPayload accompanies ReconnectScheduled events.
type ReconnectPayload struct {
	Identity string        `json:"identity"`
	Delay    time.Duration `json:"delay"`
}
