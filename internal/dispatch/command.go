// Package dispatch routes inbound messages to command handlers under an
// authorization policy.
package dispatch

import (
	"context"
	"strings"

	"github.com/botmesh/botmesh/internal/transport"
)

// AuthLevel is the authorization a command requires.
type AuthLevel int

const (
	// AuthNone allows anyone.
	AuthNone AuthLevel = iota
	// AuthGroupAdmin requires the sender to be an admin of the
	// originating group, or the configured owner.
	AuthGroupAdmin
	// AuthOwnerOnly requires the configured owner.
	AuthOwnerOnly
)

// Request is the context a handler receives for one invocation.
type Request struct {
	Conn           transport.Conn
	ConversationID string
	Sender         string
	Command        string
	Args           []string
	Message        *transport.Message
	// Quoted is the template message replies should quote.
	Quoted *transport.Message
}

// Reply sends a text response on the originating conversation, quoting the
// dispatcher's template.
func (r *Request) Reply(ctx context.Context, text string) error {
	return r.Conn.SendMessage(ctx, r.ConversationID, transport.Content{Text: text},
		&transport.SendOptions{Quoted: r.Quoted})
}

// React attaches an emoji reaction to the triggering message.
func (r *Request) React(ctx context.Context, emoji string) error {
	return r.Conn.SendMessage(ctx, r.ConversationID, transport.Content{
		React: &transport.Reaction{Emoji: emoji, Key: r.Message.Key},
	}, nil)
}

// IsGroup reports whether the request originated in a group chat.
func (r *Request) IsGroup() bool {
	return transport.IsGroup(r.ConversationID)
}

// HandlerFunc executes one command.
type HandlerFunc func(ctx context.Context, req *Request) error

// Command describes one entry of the capability registry.
type Command struct {
	Name        string
	Aliases     []string
	Category    string
	Description string
	Auth        AuthLevel
	Handler     HandlerFunc
}

// Registry is the static command table. Lookup is by primary name or any
// alias, case-folded.
type Registry struct {
	byName   map[string]*Command
	commands []*Command
}

// NewRegistry builds a registry from the given commands.
func NewRegistry(commands ...*Command) *Registry {
	r := &Registry{byName: make(map[string]*Command)}
	for _, cmd := range commands {
		r.Register(cmd)
	}
	return r
}

// Register adds a command and its aliases.
func (r *Registry) Register(cmd *Command) {
	r.commands = append(r.commands, cmd)
	r.byName[strings.ToLower(cmd.Name)] = cmd
	for _, alias := range cmd.Aliases {
		r.byName[strings.ToLower(alias)] = cmd
	}
}

// Lookup resolves a command name or alias.
func (r *Registry) Lookup(name string) (*Command, bool) {
	cmd, ok := r.byName[strings.ToLower(name)]
	return cmd, ok
}

// Commands returns every registered command, in registration order.
func (r *Registry) Commands() []*Command {
	return append([]*Command(nil), r.commands...)
}

// ByCategory groups primary command names by category, for listings.
func (r *Registry) ByCategory() map[string][]string {
	grouped := make(map[string][]string)
	for _, cmd := range r.commands {
		grouped[cmd.Category] = append(grouped[cmd.Category], cmd.Name)
	}
	return grouped
}
