package transport

import "strings"

// MessageKey identifies a message within a conversation.
type MessageKey struct {
	ConversationID string `json:"conversationId"`
	Participant    string `json:"participant,omitempty"`
	ID             string `json:"id"`
	FromMe         bool   `json:"fromMe"`
}

// Message is one inbound message as delivered by the protocol.
type Message struct {
	Key  MessageKey `json:"key"`
	Body *Body      `json:"body,omitempty"`
}

// Sender returns the address of the message author: the participant in a
// group, otherwise the conversation itself.
func (m *Message) Sender() string {
	if m.Key.Participant != "" {
		return m.Key.Participant
	}
	return m.Key.ConversationID
}

// Body holds the message content variants the engine understands. Exactly
// one variant is populated for a given message; Ephemeral wraps another
// body one level deep.
type Body struct {
	Conversation string `json:"conversation,omitempty"`
	ExtendedText string `json:"extendedText,omitempty"`
	Image        *Media `json:"image,omitempty"`
	Video        *Media `json:"video,omitempty"`
	Contact      *Card  `json:"contact,omitempty"`
	Ephemeral    *Body  `json:"ephemeral,omitempty"`

	// QuotedKey identifies the message this one replies to, when any.
	QuotedKey *MessageKey `json:"quotedKey,omitempty"`
}

// Media is an image or video attachment.
type Media struct {
	URL     string `json:"url,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Card is a contact card attachment.
type Card struct {
	DisplayName string `json:"displayName"`
	VCard       string `json:"vcard"`
}

// Unwrap removes one level of ephemeral wrapping, if present.
func (b *Body) Unwrap() *Body {
	if b != nil && b.Ephemeral != nil {
		return b.Ephemeral
	}
	return b
}

// Text extracts the plain text of the body: direct text, extended text, or
// an image/video caption. Returns "" when the body carries none.
func (b *Body) Text() string {
	switch {
	case b == nil:
		return ""
	case b.Conversation != "":
		return b.Conversation
	case b.ExtendedText != "":
		return b.ExtendedText
	case b.Image != nil:
		return b.Image.Caption
	case b.Video != nil:
		return b.Video.Caption
	}
	return ""
}

// Content is an outbound message payload.
type Content struct {
	Text     string      `json:"text,omitempty"`
	ImageURL string      `json:"imageUrl,omitempty"`
	Caption  string      `json:"caption,omitempty"`
	React    *Reaction   `json:"react,omitempty"`
	Delete   *MessageKey `json:"delete,omitempty"`
	Mentions []string    `json:"mentions,omitempty"`
}

// Reaction is an emoji reaction to an existing message.
type Reaction struct {
	Emoji string     `json:"emoji"`
	Key   MessageKey `json:"key"`
}

// SendOptions carries per-send options.
type SendOptions struct {
	// Quoted attaches the message the send should appear to reply to.
	Quoted *Message
}

const (
	userSuffix  = "@s.whatsapp.net"
	groupSuffix = "@g.us"

	// StatusBroadcast is the broadcast/status pseudo-conversation.
	StatusBroadcast = "status@broadcast"
)

// NormalizeIdentity strips every non-digit character from raw user input.
// All registry and persistence keys use this form.
func NormalizeIdentity(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UserAddress converts a normalized identity into a direct-chat address.
func UserAddress(identity string) string {
	return identity + userSuffix
}

// BareNumber returns the numeric part of an address.
func BareNumber(address string) string {
	if i := strings.IndexByte(address, '@'); i >= 0 {
		return address[:i]
	}
	return address
}

// IsGroup reports whether the conversation is a group chat.
func IsGroup(conversationID string) bool {
	return strings.HasSuffix(conversationID, groupSuffix)
}

// IsStatusBroadcast reports whether the conversation is the status channel.
func IsStatusBroadcast(conversationID string) bool {
	return conversationID == StatusBroadcast
}
