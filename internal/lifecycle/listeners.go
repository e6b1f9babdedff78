package lifecycle

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/botmesh/botmesh/internal/transport"
)

var linkPattern = regexp.MustCompile(`https?://|wa\.me/|chat\.whatsapp\.com/`)

// handleInbound routes one inbound message: status traffic goes to the
// status listener, group messages pass the anti-link gate, everything else
// reaches the dispatcher.
func (e *Engine) handleInbound(ctx context.Context, conn transport.Conn, msg *transport.Message, log zerolog.Logger) {
	if msg == nil {
		return
	}
	if transport.IsStatusBroadcast(msg.Key.ConversationID) {
		e.handleStatus(ctx, conn, msg, log)
		return
	}
	if transport.IsGroup(msg.Key.ConversationID) {
		if e.enforceAntiLink(ctx, conn, msg, log) {
			return
		}
	}
	e.dispatcher.HandleMessage(ctx, conn, msg)
}

// handleStatus auto-views and auto-reacts to status updates, gated by the
// runtime toggles.
func (e *Engine) handleStatus(ctx context.Context, conn transport.Conn, msg *transport.Message, log zerolog.Logger) {
	if e.toggles.AutoView() {
		if err := conn.ReadMessages(ctx, []transport.MessageKey{msg.Key}); err != nil {
			log.Warn().Err(err).Msg("status auto-view failed")
		}
	}
	if e.toggles.AutoReact() && len(e.cfg.ReactEmojis) > 0 {
		emoji := e.cfg.ReactEmojis[rand.Intn(len(e.cfg.ReactEmojis))]
		err := conn.SendMessage(ctx, msg.Key.ConversationID, transport.Content{
			React: &transport.Reaction{Emoji: emoji, Key: msg.Key},
		}, nil)
		if err != nil {
			log.Warn().Err(err).Msg("status auto-react failed")
		}
	}
}

// enforceAntiLink deletes link messages from non-admins in groups that
// enabled the filter. Returns true when the message was removed.
func (e *Engine) enforceAntiLink(ctx context.Context, conn transport.Conn, msg *transport.Message, log zerolog.Logger) bool {
	text := msg.Body.Unwrap().Text()
	if text == "" || !linkPattern.MatchString(text) {
		return false
	}

	groupID := msg.Key.ConversationID
	settings, err := e.store.GetGroupSettings(ctx, groupID)
	if err != nil {
		log.Warn().Err(err).Str("group", groupID).Msg("group settings load failed")
		return false
	}
	if !settings.AntiLink {
		return false
	}

	sender := msg.Sender()
	if e.cfg.IsOwner(sender) {
		return false
	}
	if meta, err := conn.GroupMetadata(ctx, groupID); err == nil && meta.IsAdmin(sender) {
		return false
	}

	if err := conn.SendMessage(ctx, groupID, transport.Content{Delete: &msg.Key}, nil); err != nil {
		log.Warn().Err(err).Str("group", groupID).Msg("anti-link delete failed")
		return false
	}
	warn := fmt.Sprintf("⚠️ @%s links are not allowed here", transport.BareNumber(sender))
	err = conn.SendMessage(ctx, groupID, transport.Content{
		Text:     warn,
		Mentions: []string{sender},
	}, nil)
	if err != nil {
		log.Warn().Err(err).Str("group", groupID).Msg("anti-link warning failed")
	}
	return true
}

// handleParticipants greets and farewells members in groups that enabled
// welcome messages.
func (e *Engine) handleParticipants(ctx context.Context, conn transport.Conn, ev transport.GroupParticipantsChanged, log zerolog.Logger) {
	if ev.Action != transport.ParticipantAdd && ev.Action != transport.ParticipantRemove {
		return
	}
	settings, err := e.store.GetGroupSettings(ctx, ev.GroupID)
	if err != nil {
		log.Warn().Err(err).Str("group", ev.GroupID).Msg("group settings load failed")
		return
	}
	if !settings.Welcome {
		return
	}

	var b strings.Builder
	if ev.Action == transport.ParticipantAdd {
		b.WriteString("👋 Welcome")
	} else {
		b.WriteString("👋 Goodbye")
	}
	for _, p := range ev.Participants {
		fmt.Fprintf(&b, " @%s", transport.BareNumber(p))
	}

	err = conn.SendMessage(ctx, ev.GroupID, transport.Content{
		Text:     b.String(),
		Mentions: ev.Participants,
	}, nil)
	if err != nil {
		log.Warn().Err(err).Str("group", ev.GroupID).Msg("welcome send failed")
	}
}
