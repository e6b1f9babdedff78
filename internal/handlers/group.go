package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/botmesh/botmesh/internal/dispatch"
	"github.com/botmesh/botmesh/internal/store"
	"github.com/botmesh/botmesh/internal/transport"
)

const groupOnlyReply = "This command only works in groups"

func (d *Deps) groupInfo(ctx context.Context, req *dispatch.Request) error {
	if !req.IsGroup() {
		return req.Reply(ctx, groupOnlyReply)
	}
	meta, err := req.Conn.GroupMetadata(ctx, req.ConversationID)
	if err != nil {
		return fmt.Errorf("group metadata: %w", err)
	}
	admins := 0
	for _, p := range meta.Participants {
		if p.Admin {
			admins++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 *%s*\n\n", meta.Subject)
	fmt.Fprintf(&b, "members: %d\nadmins: %d\n", len(meta.Participants), admins)
	fmt.Fprintf(&b, "created: %s\n", meta.Created.Format("2006-01-02"))
	if meta.Description != "" {
		fmt.Fprintf(&b, "\n%s", meta.Description)
	}
	return req.Reply(ctx, b.String())
}

// targetAddress resolves the member a group command operates on: the quoted
// message's author, or the first argument as a phone number.
func targetAddress(req *dispatch.Request) (string, bool) {
	if q := req.Message.Body.QuotedKey; q != nil && q.Participant != "" {
		return q.Participant, true
	}
	if len(req.Args) > 0 {
		if number := transport.NormalizeIdentity(req.Args[0]); number != "" {
			return transport.UserAddress(number), true
		}
	}
	return "", false
}

func (d *Deps) memberAction(action transport.ParticipantAction, done string) dispatch.HandlerFunc {
	return func(ctx context.Context, req *dispatch.Request) error {
		if !req.IsGroup() {
			return req.Reply(ctx, groupOnlyReply)
		}
		target, ok := targetAddress(req)
		if !ok {
			return req.Reply(ctx, "Reply to a member or give a number")
		}
		if err := req.Conn.GroupParticipantsUpdate(ctx, req.ConversationID,
			[]string{target}, action); err != nil {
			return fmt.Errorf("%s %s: %w", action, target, err)
		}
		return req.Reply(ctx, fmt.Sprintf("✅ @%s %s", transport.BareNumber(target), done))
	}
}

func (d *Deps) addMember(ctx context.Context, req *dispatch.Request) error {
	return d.memberAction(transport.ParticipantAdd, "added")(ctx, req)
}

func (d *Deps) kickMember(ctx context.Context, req *dispatch.Request) error {
	return d.memberAction(transport.ParticipantRemove, "removed")(ctx, req)
}

func (d *Deps) promoteMember(ctx context.Context, req *dispatch.Request) error {
	return d.memberAction(transport.ParticipantPromote, "is now admin")(ctx, req)
}

func (d *Deps) demoteMember(ctx context.Context, req *dispatch.Request) error {
	return d.memberAction(transport.ParticipantDemote, "is no longer admin")(ctx, req)
}

func (d *Deps) muteGroup(ctx context.Context, req *dispatch.Request) error {
	if !req.IsGroup() {
		return req.Reply(ctx, groupOnlyReply)
	}
	if err := req.Conn.GroupSettingUpdate(ctx, req.ConversationID, transport.SettingAnnouncement); err != nil {
		return fmt.Errorf("mute group: %w", err)
	}
	return req.Reply(ctx, "🔇 Group muted, only admins can write")
}

func (d *Deps) unmuteGroup(ctx context.Context, req *dispatch.Request) error {
	if !req.IsGroup() {
		return req.Reply(ctx, groupOnlyReply)
	}
	if err := req.Conn.GroupSettingUpdate(ctx, req.ConversationID, transport.SettingNotAnnouncement); err != nil {
		return fmt.Errorf("unmute group: %w", err)
	}
	return req.Reply(ctx, "🔊 Group unmuted, everyone can write")
}

func (d *Deps) groupLink(ctx context.Context, req *dispatch.Request) error {
	if !req.IsGroup() {
		return req.Reply(ctx, groupOnlyReply)
	}
	code, err := req.Conn.GroupInviteCode(ctx, req.ConversationID)
	if err != nil {
		return fmt.Errorf("invite code: %w", err)
	}
	return req.Reply(ctx, "https://chat.whatsapp.com/"+code)
}

func (d *Deps) revokeLink(ctx context.Context, req *dispatch.Request) error {
	if !req.IsGroup() {
		return req.Reply(ctx, groupOnlyReply)
	}
	if err := req.Conn.GroupRevokeInvite(ctx, req.ConversationID); err != nil {
		return fmt.Errorf("revoke invite: %w", err)
	}
	return req.Reply(ctx, "🔒 Invite link revoked")
}

func (d *Deps) tagAll(ctx context.Context, req *dispatch.Request) error {
	if !req.IsGroup() {
		return req.Reply(ctx, groupOnlyReply)
	}
	meta, err := req.Conn.GroupMetadata(ctx, req.ConversationID)
	if err != nil {
		return fmt.Errorf("group metadata: %w", err)
	}
	note := strings.Join(req.Args, " ")
	if note == "" {
		note = "Attention everyone"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📢 %s\n\n", note)
	for _, id := range meta.ParticipantIDs() {
		fmt.Fprintf(&b, "@%s\n", transport.BareNumber(id))
	}
	return req.Conn.SendMessage(ctx, req.ConversationID, transport.Content{
		Text:     b.String(),
		Mentions: meta.ParticipantIDs(),
	}, &transport.SendOptions{Quoted: req.Quoted})
}

func (d *Deps) welcomeToggle(ctx context.Context, req *dispatch.Request) error {
	return d.groupToggle(ctx, req, "welcome", func(s *store.GroupSettings, on bool) {
		s.Welcome = on
	})
}

func (d *Deps) antiLinkToggle(ctx context.Context, req *dispatch.Request) error {
	return d.groupToggle(ctx, req, "antilink", func(s *store.GroupSettings, on bool) {
		s.AntiLink = on
	})
}

func (d *Deps) groupToggle(ctx context.Context, req *dispatch.Request, name string, set func(*store.GroupSettings, bool)) error {
	if !req.IsGroup() {
		return req.Reply(ctx, groupOnlyReply)
	}
	on, ok := parseOnOff(req.Args)
	if !ok {
		return req.Reply(ctx, fmt.Sprintf("Usage: %s%s on|off", d.Cfg.Prefix, name))
	}
	settings, err := d.Store.GetGroupSettings(ctx, req.ConversationID)
	if err != nil {
		return fmt.Errorf("load group settings: %w", err)
	}
	set(settings, on)
	if err := d.Store.PutGroupSettings(ctx, settings); err != nil {
		return fmt.Errorf("save group settings: %w", err)
	}
	state := "disabled"
	if on {
		state = "enabled"
	}
	return req.Reply(ctx, fmt.Sprintf("✅ %s %s for this group", name, state))
}
