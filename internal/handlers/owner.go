package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/botmesh/botmesh/internal/dispatch"
	"github.com/botmesh/botmesh/internal/transport"
)

// broadcast sends a text to every identity that ever paired with the engine.
func (d *Deps) broadcast(ctx context.Context, req *dispatch.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, fmt.Sprintf("Usage: %sbroadcast <text>", d.Cfg.Prefix))
	}
	text := "📢 *Broadcast*\n\n" + strings.Join(req.Args, " ")

	identities, err := d.Store.ListKnownIdentities(ctx)
	if err != nil {
		return fmt.Errorf("list identities: %w", err)
	}
	delivered := 0
	for _, identity := range identities {
		err := req.Conn.SendMessage(ctx, transport.UserAddress(identity),
			transport.Content{Text: text}, nil)
		if err == nil {
			delivered++
		}
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Broadcast delivered to %d/%d numbers",
		delivered, len(identities)))
}

func (d *Deps) autoReactToggle(ctx context.Context, req *dispatch.Request) error {
	on, ok := parseOnOff(req.Args)
	if !ok {
		return req.Reply(ctx, fmt.Sprintf("Usage: %sautoreact on|off", d.Cfg.Prefix))
	}
	d.Toggles.SetAutoReact(on)
	return req.Reply(ctx, toggleReply("Status auto-react", on))
}

func (d *Deps) autoReadToggle(ctx context.Context, req *dispatch.Request) error {
	on, ok := parseOnOff(req.Args)
	if !ok {
		return req.Reply(ctx, fmt.Sprintf("Usage: %sautoread on|off", d.Cfg.Prefix))
	}
	d.Toggles.SetAutoView(on)
	return req.Reply(ctx, toggleReply("Status auto-read", on))
}

func toggleReply(what string, on bool) string {
	if on {
		return "✅ " + what + " enabled"
	}
	return "✅ " + what + " disabled"
}
