package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/botmesh/botmesh/internal/config"
	"github.com/botmesh/botmesh/internal/logging"
	"github.com/botmesh/botmesh/internal/transport"
)

const (
	deniedReply  = "❌ You are not allowed to use this command"
	failureReply = "❌ An error occurred"
)

// Dispatcher parses inbound messages into commands and invokes handlers
// from the registry. One dispatcher serves all sessions; it holds no
// per-session state.
type Dispatcher struct {
	registry *Registry
	cfg      *config.Config
	log      zerolog.Logger
}

// New creates a dispatcher over the given registry.
func New(registry *Registry, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		cfg:      cfg,
		log:      logging.Logger.With().Str("component", "dispatch").Logger(),
	}
}

// Registry returns the dispatcher's command registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// HandleMessage runs the dispatch pipeline for one inbound message.
// Non-command messages are dropped silently. Handler faults never
// propagate: they are logged and answered with a generic failure reply.
func (d *Dispatcher) HandleMessage(ctx context.Context, conn transport.Conn, msg *transport.Message) {
	if msg == nil || msg.Body == nil {
		return
	}
	if transport.IsStatusBroadcast(msg.Key.ConversationID) {
		// Status traffic is the status listener's business.
		return
	}

	body := msg.Body.Unwrap()
	text := body.Text()
	if text == "" {
		return
	}

	name, args, ok := ParseCommand(text, d.cfg.Prefix)
	if !ok {
		return
	}

	cmd, found := d.registry.Lookup(name)
	if !found {
		return
	}

	req := &Request{
		Conn:           conn,
		ConversationID: msg.Key.ConversationID,
		Sender:         msg.Sender(),
		Command:        cmd.Name,
		Args:           args,
		Message:        &transport.Message{Key: msg.Key, Body: body},
		Quoted:         QuoteTemplate(d.cfg),
	}

	log := d.log.With().
		Str("identity", transport.BareNumber(conn.SelfID())).
		Str("command", cmd.Name).
		Str("conversation", req.ConversationID).
		Logger()

	authorized, err := d.authorize(ctx, cmd, req)
	if err != nil {
		log.Warn().Err(err).Msg("authorization check failed")
	}
	if !authorized {
		log.Info().Str("sender", req.Sender).Msg("command denied")
		if err := req.Reply(ctx, deniedReply); err != nil {
			log.Warn().Err(err).Msg("denial reply failed")
		}
		return
	}

	if err := d.invoke(ctx, cmd, req); err != nil {
		log.Error().Err(err).Msg("handler failed")
		if rerr := req.Reply(ctx, failureReply); rerr != nil {
			log.Warn().Err(rerr).Msg("failure reply failed")
		}
		return
	}
	log.Debug().Msg("command handled")
}

// authorize evaluates the command's auth level for the request. A failed
// group-metadata lookup denies rather than grants.
func (d *Dispatcher) authorize(ctx context.Context, cmd *Command, req *Request) (bool, error) {
	switch cmd.Auth {
	case AuthNone:
		return true, nil
	case AuthOwnerOnly:
		return d.cfg.IsOwner(req.Sender), nil
	case AuthGroupAdmin:
		if d.cfg.IsOwner(req.Sender) {
			return true, nil
		}
		if !req.IsGroup() {
			return false, nil
		}
		meta, err := req.Conn.GroupMetadata(ctx, req.ConversationID)
		if err != nil {
			return false, fmt.Errorf("group metadata for %s: %w", req.ConversationID, err)
		}
		return meta.IsAdmin(req.Sender), nil
	}
	return false, nil
}

// invoke runs the handler, converting panics into errors so a misbehaving
// handler cannot take the session down.
func (d *Dispatcher) invoke(ctx context.Context, cmd *Command, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return cmd.Handler(ctx, req)
}

// ParseCommand splits prefixed text into a case-folded command name and
// its positional arguments. ok is false when the text is not a command.
func ParseCommand(text, prefix string) (name string, args []string, ok bool) {
	if !strings.HasPrefix(text, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimSpace(text[len(prefix):]))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// QuoteTemplate builds the contact-card message replies quote, the visual
// signature attached to every response.
func QuoteTemplate(cfg *config.Config) *transport.Message {
	vcard := fmt.Sprintf("BEGIN:VCARD\nVERSION:3.0\nN:%s;;;;\nFN:%s\nORG:%s\nTEL;type=CELL;type=VOICE;waid=%s:+%s\nEND:VCARD",
		cfg.OwnerName, cfg.OwnerName, cfg.BotName, cfg.OwnerNumber, cfg.OwnerNumber)
	return &transport.Message{
		Key: transport.MessageKey{
			ConversationID: transport.StatusBroadcast,
			Participant:    transport.UserAddress("0"),
			ID:             "BOTMESH_QUOTE",
		},
		Body: &transport.Body{
			Contact: &transport.Card{DisplayName: cfg.BotName, VCard: vcard},
		},
	}
}
