package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/botmesh/botmesh/internal/dispatch"
	"github.com/botmesh/botmesh/internal/transport"
)

// menu renders the command listing from the registry it was built into.
func (d *Deps) menu(reg *dispatch.Registry) dispatch.HandlerFunc {
	return func(ctx context.Context, req *dispatch.Request) error {
		var b strings.Builder
		fmt.Fprintf(&b, "╭─「 *%s* 」\n", d.Cfg.BotName)
		fmt.Fprintf(&b, "│ prefix: %s\n", d.Cfg.Prefix)
		fmt.Fprintf(&b, "│ commands: %d\n", len(reg.Commands()))
		b.WriteString("╰────────────\n")

		grouped := reg.ByCategory()
		categories := make([]string, 0, len(grouped))
		for category := range grouped {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		for _, category := range categories {
			names := grouped[category]
			sort.Strings(names)
			fmt.Fprintf(&b, "\n*%s*\n", strings.ToUpper(category))
			for _, name := range names {
				fmt.Fprintf(&b, "  %s%s\n", d.Cfg.Prefix, name)
			}
		}
		if d.Cfg.FooterText != "" {
			b.WriteString("\n" + d.Cfg.FooterText)
		}
		return req.Reply(ctx, b.String())
	}
}

func (d *Deps) alive(ctx context.Context, req *dispatch.Request) error {
	uptime := time.Since(d.StartedAt).Round(time.Second)
	text := fmt.Sprintf("✅ *%s is alive*\n\n⏱ uptime: %s\n📡 sessions: %d",
		d.Cfg.BotName, uptime, d.Registry.Count())
	if d.Cfg.ChannelLink != "" {
		text += "\n🔗 " + d.Cfg.ChannelLink
	}
	if d.Cfg.LogoURL != "" {
		return req.Conn.SendMessage(ctx, req.ConversationID,
			transport.Content{ImageURL: d.Cfg.LogoURL, Caption: text},
			&transport.SendOptions{Quoted: req.Quoted})
	}
	return req.Reply(ctx, text)
}

func (d *Deps) ping(ctx context.Context, req *dispatch.Request) error {
	start := time.Now()
	if err := req.React(ctx, "🏓"); err != nil {
		return err
	}
	latency := time.Since(start).Round(time.Millisecond)
	return req.Reply(ctx, fmt.Sprintf("🏓 Pong! %s", latency))
}

func (d *Deps) owner(ctx context.Context, req *dispatch.Request) error {
	if d.Cfg.OwnerNumber == "" {
		return req.Reply(ctx, "No owner is configured")
	}
	text := fmt.Sprintf("👤 *Owner*\n\n%s\n+%s", d.Cfg.OwnerName, d.Cfg.OwnerNumber)
	return req.Reply(ctx, text)
}

func (d *Deps) deleteMessage(ctx context.Context, req *dispatch.Request) error {
	quoted := req.Message.Body.QuotedKey
	if quoted == nil {
		return req.Reply(ctx, "Reply to the message you want deleted")
	}
	return req.Conn.SendMessage(ctx, req.ConversationID,
		transport.Content{Delete: quoted}, nil)
}
